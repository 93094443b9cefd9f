package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/earnwall/earnwall/internal/model"
)

type OfferCacheStore struct {
	db *sql.DB
}

func NewOfferCacheStore(db *sql.DB) *OfferCacheStore {
	return &OfferCacheStore{db: db}
}

// Upsert replaces cache rows for the given offers, keyed by
// (native offer id, provider id), refreshing fetched_at.
func (s *OfferCacheStore) Upsert(offers []model.Offer) error {
	if len(offers) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO offer_cache (offer_id, provider_id, title, description, category, difficulty, points, payout_usd, estimated_minutes, requirements, countries, devices, url, image_url, rating, completion_count, active, expires_at, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(offer_id, provider_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			difficulty = excluded.difficulty,
			points = excluded.points,
			payout_usd = excluded.payout_usd,
			estimated_minutes = excluded.estimated_minutes,
			requirements = excluded.requirements,
			countries = excluded.countries,
			devices = excluded.devices,
			url = excluded.url,
			image_url = excluded.image_url,
			rating = excluded.rating,
			completion_count = excluded.completion_count,
			active = excluded.active,
			expires_at = excluded.expires_at,
			fetched_at = CURRENT_TIMESTAMP`,
	)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, o := range offers {
		active := 0
		if o.Active {
			active = 1
		}
		_, err := stmt.Exec(
			o.NativeID(), o.ProviderID, o.Title, o.Description, o.Category, o.Difficulty,
			o.Points, o.PayoutUSD, o.EstimatedMinutes,
			marshalList(o.Requirements), marshalList(o.Countries), marshalList(o.Devices),
			o.URL, o.ImageURL, o.Rating, o.CompletionCount, active, o.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("upsert offer %s: %w", o.ID, err)
		}
	}

	return tx.Commit()
}

// PurgeOlderThan removes cache rows whose last fetch is older than age.
func (s *OfferCacheStore) PurgeOlderThan(age time.Duration) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM offer_cache WHERE fetched_at < datetime('now', ?)`,
		fmt.Sprintf("-%d seconds", int(age.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("purge offer cache: %w", err)
	}
	return result.RowsAffected()
}

// ListFresh returns active cached offers fetched within maxAge, highest
// payout first.
func (s *OfferCacheStore) ListFresh(maxAge time.Duration) ([]model.Offer, error) {
	rows, err := s.db.Query(
		`SELECT offer_id, provider_id, title, description, category, difficulty, points, payout_usd, estimated_minutes, requirements, countries, devices, url, image_url, rating, completion_count, active, expires_at, fetched_at
		 FROM offer_cache
		 WHERE active = 1 AND fetched_at >= datetime('now', ?)
		 ORDER BY payout_usd DESC, offer_id`,
		fmt.Sprintf("-%d seconds", int(maxAge.Seconds())),
	)
	if err != nil {
		return nil, fmt.Errorf("list offer cache: %w", err)
	}
	defer rows.Close()

	var out []model.Offer
	for rows.Next() {
		var o model.Offer
		var nativeID string
		var requirements, countries, devices string
		var active int
		var expiresAt sql.NullTime
		var fetchedAt time.Time

		err := rows.Scan(
			&nativeID, &o.ProviderID, &o.Title, &o.Description, &o.Category, &o.Difficulty,
			&o.Points, &o.PayoutUSD, &o.EstimatedMinutes,
			&requirements, &countries, &devices,
			&o.URL, &o.ImageURL, &o.Rating, &o.CompletionCount, &active, &expiresAt, &fetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cached offer: %w", err)
		}

		o.ID = model.OfferID(o.ProviderID, nativeID)
		o.Active = active != 0
		o.Requirements = unmarshalList(requirements)
		o.Countries = unmarshalList(countries)
		o.Devices = unmarshalList(devices)
		if expiresAt.Valid {
			t := expiresAt.Time
			o.ExpiresAt = &t
		}
		o.CreatedAt = fetchedAt
		o.UpdatedAt = fetchedAt
		out = append(out, o)
	}
	return out, rows.Err()
}

func marshalList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalList(data string) []string {
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil || len(out) == 0 {
		return nil
	}
	return out
}

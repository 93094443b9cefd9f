package ledger

import (
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	"github.com/earnwall/earnwall/internal/database"
	"github.com/earnwall/earnwall/internal/model"
	"github.com/earnwall/earnwall/internal/store"
)

func setupLedger(t *testing.T) (*Service, *sql.DB, *store.ProfileStore, *store.ReferralStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	completions := store.NewCompletionStore(db)
	profiles := store.NewProfileStore(db)
	referrals := store.NewReferralStore(db)
	svc := New(db, completions, profiles, referrals, slog.Default())
	return svc, db, profiles, referrals
}

func completed(userID, tx string, points int) *model.OfferCompletion {
	return &model.OfferCompletion{
		UserID:        userID,
		ProviderID:    "adgem",
		OfferID:       "42",
		TransactionID: tx,
		Points:        points,
		PayoutUSD:     float64(points) / 100,
		Status:        model.CompletionCompleted,
	}
}

func TestCreditCompletion(t *testing.T) {
	svc, _, profiles, _ := setupLedger(t)

	result, err := svc.CreditCompletion(completed("u1", "tx-1", 250))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if result.Credited != 250 {
		t.Errorf("credited = %d, want 250", result.Credited)
	}
	if result.Commission != 0 || result.ReferrerID != "" {
		t.Errorf("unreferred user should earn no commission: %+v", result)
	}

	p, err := profiles.Get("u1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.Balance != 250 || p.TotalEarned != 250 {
		t.Errorf("balance/total = %d/%d", p.Balance, p.TotalEarned)
	}
}

func TestCreditCompletionDuplicateRollsBack(t *testing.T) {
	svc, _, profiles, _ := setupLedger(t)

	if _, err := svc.CreditCompletion(completed("u1", "tx-1", 250)); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	_, err := svc.CreditCompletion(completed("u1", "tx-1", 250))
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("error = %v, want ErrDuplicate", err)
	}

	p, _ := profiles.Get("u1")
	if p.Balance != 250 {
		t.Errorf("balance = %d, want 250 (no double credit)", p.Balance)
	}
}

func TestReferralCommission(t *testing.T) {
	svc, _, profiles, referrals := setupLedger(t)

	if err := referrals.SetReferrer("u1", "u0"); err != nil {
		t.Fatalf("set referrer: %v", err)
	}

	result, err := svc.CreditCompletion(completed("u1", "tx-1", 1000))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if result.ReferrerID != "u0" {
		t.Errorf("referrer = %q, want u0", result.ReferrerID)
	}
	if result.Commission != 100 {
		t.Errorf("commission = %d, want 100", result.Commission)
	}
	if result.CommissionErr != nil {
		t.Errorf("commission error: %v", result.CommissionErr)
	}

	earner, _ := profiles.Get("u1")
	if earner.Balance != 1000 {
		t.Errorf("earner balance = %d, want 1000 (commission not deducted)", earner.Balance)
	}
	referrer, _ := profiles.Get("u0")
	if referrer == nil || referrer.Balance != 100 {
		t.Errorf("referrer balance = %+v, want 100", referrer)
	}

	edge, _ := referrals.Get("u1")
	if edge.CommissionEarned != 100 {
		t.Errorf("edge commission = %d, want 100", edge.CommissionEarned)
	}
}

func TestReferralCommissionFloors(t *testing.T) {
	svc, _, profiles, referrals := setupLedger(t)

	if err := referrals.SetReferrer("u1", "u0"); err != nil {
		t.Fatalf("set referrer: %v", err)
	}

	// floor(25 * 0.10) = 2
	result, err := svc.CreditCompletion(completed("u1", "tx-1", 25))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if result.Commission != 2 {
		t.Errorf("commission = %d, want 2", result.Commission)
	}

	// floor(9 * 0.10) = 0; no referrer credit at all.
	result, err = svc.CreditCompletion(completed("u1", "tx-2", 9))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if result.Commission != 0 {
		t.Errorf("commission = %d, want 0", result.Commission)
	}

	referrer, _ := profiles.Get("u0")
	if referrer.Balance != 2 {
		t.Errorf("referrer balance = %d, want 2", referrer.Balance)
	}
}

func TestCreditCompletionPromotesPending(t *testing.T) {
	svc, _, profiles, _ := setupLedger(t)

	pending := completed("u1", "tx-1", 250)
	pending.Status = model.CompletionPending
	if err := svc.RecordWithoutCredit(pending); err != nil {
		t.Fatalf("record pending: %v", err)
	}

	result, err := svc.CreditCompletion(completed("u1", "tx-1", 250))
	if err != nil {
		t.Fatalf("credit after pending: %v", err)
	}
	if result.Credited != 250 {
		t.Errorf("credited = %d, want 250", result.Credited)
	}

	p, _ := profiles.Get("u1")
	if p == nil || p.Balance != 250 {
		t.Errorf("balance = %+v, want 250", p)
	}

	// The promoted row now blocks a second credit.
	if _, err := svc.CreditCompletion(completed("u1", "tx-1", 250)); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("replay error = %v, want ErrDuplicate", err)
	}
	p, _ = profiles.Get("u1")
	if p.Balance != 250 {
		t.Errorf("balance after replay = %d, want 250", p.Balance)
	}
}

func TestRecordWithoutCredit(t *testing.T) {
	svc, _, profiles, _ := setupLedger(t)

	c := completed("u1", "tx-1", 250)
	c.Status = model.CompletionRejected
	if err := svc.RecordWithoutCredit(c); err != nil {
		t.Fatalf("record: %v", err)
	}

	p, err := profiles.Get("u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p != nil {
		t.Errorf("rejected completion must not create or credit a profile, got %+v", p)
	}

	// The recorded row still blocks a replay with the same tuple.
	replay := completed("u1", "tx-1", 250)
	replay.Status = model.CompletionRejected
	if err := svc.RecordWithoutCredit(replay); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("replay error = %v, want ErrDuplicate", err)
	}
}

func TestRecordWithoutCreditChargebackSupersedesCredit(t *testing.T) {
	svc, _, profiles, _ := setupLedger(t)

	if _, err := svc.CreditCompletion(completed("u1", "tx-1", 250)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	cb := completed("u1", "tx-1", 250)
	cb.Status = model.CompletionChargeback
	if err := svc.RecordWithoutCredit(cb); err != nil {
		t.Fatalf("record chargeback: %v", err)
	}

	// Reversal is recorded; the balance stays additive-only.
	p, _ := profiles.Get("u1")
	if p == nil || p.Balance != 250 {
		t.Errorf("balance = %+v, want 250", p)
	}

	// A rejected callback never supersedes a credited row.
	rej := completed("u1", "tx-2", 100)
	if _, err := svc.CreditCompletion(rej); err != nil {
		t.Fatalf("credit tx-2: %v", err)
	}
	rejAgain := completed("u1", "tx-2", 100)
	rejAgain.Status = model.CompletionRejected
	if err := svc.RecordWithoutCredit(rejAgain); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("rejected over credited = %v, want ErrDuplicate", err)
	}
}

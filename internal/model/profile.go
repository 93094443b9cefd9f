package model

import "time"

// Profile holds a user's point balance. Balance and TotalEarned are mutated
// only through atomic increments at the store layer; TotalEarned never
// decreases.
type Profile struct {
	UserID      string    `json:"user_id"`
	Balance     int64     `json:"balance"`
	TotalEarned int64     `json:"total_earned"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Referral is the durable referred-user -> referrer edge, established at
// signup and read-only to this core except for the commission counter.
type Referral struct {
	ReferredID       string    `json:"referred_id"`
	ReferrerID       string    `json:"referrer_id"`
	CommissionEarned int64     `json:"commission_earned"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

package store

import "testing"

func TestProfileCreditCreatesRow(t *testing.T) {
	s := NewProfileStore(setupTestDB(t))

	got, err := s.Get("u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("profile should not exist yet")
	}

	if err := s.Credit("u1", 250); err != nil {
		t.Fatalf("credit: %v", err)
	}

	got, err = s.Get("u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("profile should exist after credit")
	}
	if got.Balance != 250 || got.TotalEarned != 250 {
		t.Errorf("balance/total = %d/%d, want 250/250", got.Balance, got.TotalEarned)
	}
}

func TestProfileCreditAccumulates(t *testing.T) {
	s := NewProfileStore(setupTestDB(t))

	for _, points := range []int64{100, 50, 25} {
		if err := s.Credit("u1", points); err != nil {
			t.Fatalf("credit %d: %v", points, err)
		}
	}

	got, err := s.Get("u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Balance != 175 {
		t.Errorf("balance = %d, want 175", got.Balance)
	}
	if got.TotalEarned != 175 {
		t.Errorf("total_earned = %d, want 175", got.TotalEarned)
	}
}

func TestReferralEdge(t *testing.T) {
	db := setupTestDB(t)
	s := NewReferralStore(db)

	if err := s.SetReferrer("u1", "u0"); err != nil {
		t.Fatalf("set referrer: %v", err)
	}
	// The edge is write-once.
	if err := s.SetReferrer("u1", "other"); err != nil {
		t.Fatalf("re-set referrer: %v", err)
	}

	ref, err := s.Referrer("u1")
	if err != nil {
		t.Fatalf("referrer: %v", err)
	}
	if ref != "u0" {
		t.Errorf("referrer = %q, want u0", ref)
	}

	none, err := s.Referrer("u9")
	if err != nil {
		t.Fatalf("referrer u9: %v", err)
	}
	if none != "" {
		t.Errorf("unreferred user referrer = %q, want empty", none)
	}

	if err := s.AddCommission("u1", 25); err != nil {
		t.Fatalf("add commission: %v", err)
	}
	if err := s.AddCommission("u1", 10); err != nil {
		t.Fatalf("add commission: %v", err)
	}

	edge, err := s.Get("u1")
	if err != nil {
		t.Fatalf("get edge: %v", err)
	}
	if edge.CommissionEarned != 35 {
		t.Errorf("commission_earned = %d, want 35", edge.CommissionEarned)
	}
}

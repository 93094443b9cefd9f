package store

import "testing"

func TestPushSubscriptionLifecycle(t *testing.T) {
	s := NewPushStore(setupTestDB(t))

	if err := s.Upsert("u1", "https://push.example/ep1", "p256", "auth"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Re-subscribing the same endpoint reassigns it.
	if err := s.Upsert("u2", "https://push.example/ep1", "p256b", "authb"); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	u1, err := s.ListByUser("u1")
	if err != nil {
		t.Fatalf("list u1: %v", err)
	}
	if len(u1) != 0 {
		t.Errorf("u1 should have lost the endpoint, got %d", len(u1))
	}

	u2, err := s.ListByUser("u2")
	if err != nil {
		t.Fatalf("list u2: %v", err)
	}
	if len(u2) != 1 || u2[0].P256dhKey != "p256b" {
		t.Errorf("u2 subs = %+v", u2)
	}

	if err := s.DeleteByEndpoint("https://push.example/ep1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	u2, _ = s.ListByUser("u2")
	if len(u2) != 0 {
		t.Errorf("endpoint should be gone, got %d", len(u2))
	}
}

func TestBackupRunRecord(t *testing.T) {
	s := NewBackupStore(setupTestDB(t))

	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Fatal("no runs recorded yet")
	}

	if err := s.Record("earnwall/backup-1.db.enc", 1024); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Record("earnwall/backup-2.db.enc", 2048); err != nil {
		t.Fatalf("record: %v", err)
	}

	latest, err = s.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ObjectKey != "earnwall/backup-2.db.enc" || latest.SizeBytes != 2048 {
		t.Errorf("latest = %+v", latest)
	}
}

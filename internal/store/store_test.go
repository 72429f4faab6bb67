package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "loyalty.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIncrementDailyCountSequence(t *testing.T) {
	s := openTestStore(t)
	day := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	for want := 1; want <= 6; want++ {
		got, err := s.IncrementDailyCount("5551239876", day)
		if err != nil {
			t.Fatalf("increment %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("count after increment %d: got %d", want, got)
		}
	}
}

func TestIncrementDailyCountIsPerDay(t *testing.T) {
	s := openTestStore(t)
	day1 := time.Date(2026, 8, 20, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 21, 0, 1, 0, 0, time.UTC)
	if _, err := s.IncrementDailyCount("5551239876", day1); err != nil {
		t.Fatalf("day1: %v", err)
	}
	got, err := s.IncrementDailyCount("5551239876", day2)
	if err != nil {
		t.Fatalf("day2: %v", err)
	}
	if got != 1 {
		t.Fatalf("new day should restart at 1, got %d", got)
	}
}

func TestIncrementDailyCountConcurrent(t *testing.T) {
	s := openTestStore(t)
	day := time.Now()
	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementDailyCount("9876543210", day); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent increment: %v", err)
	}
	final, err := s.DailyCount("9876543210", day)
	if err != nil {
		t.Fatalf("final read: %v", err)
	}
	if final != workers {
		t.Fatalf("final count: got %d want %d", final, workers)
	}
}

func TestPruneDailyCounts(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -9)
	edge := now.AddDate(0, 0, -7)
	if _, err := s.IncrementDailyCount("oldcard99", old); err != nil {
		t.Fatalf("seed old: %v", err)
	}
	if _, err := s.IncrementDailyCount("edgecard9", edge); err != nil {
		t.Fatalf("seed edge: %v", err)
	}
	if _, err := s.IncrementDailyCount("newcard99", now); err != nil {
		t.Fatalf("seed new: %v", err)
	}

	n, err := s.PruneDailyCounts(now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned rows: got %d want 1", n)
	}
	if c, _ := s.DailyCount("edgecard9", edge); c != 1 {
		t.Fatalf("cutoff-day row must survive, got count %d", c)
	}
	if c, _ := s.DailyCount("newcard99", now); c != 1 {
		t.Fatalf("recent row must survive, got count %d", c)
	}
	if c, _ := s.DailyCount("oldcard99", old); c != 0 {
		t.Fatalf("old row must be gone, got count %d", c)
	}
}

func TestLookupProfileByAnyIdentifier(t *testing.T) {
	s := openTestStore(t)
	seed := CustomerProfile{
		LoyaltyID:     "5551239876",
		CIDCustomerID: sql.NullString{String: "CID_ABC123", Valid: true},
		PhoneNumber:   sql.NullString{String: "5551239876", Valid: true},
		QRCode:        sql.NullString{String: "https://rtnsmart.com/rtnsmartapp/?USER_dGVzdA==", Valid: true},
		DriverLicense: sql.NullString{String: "D1234567", Valid: true},
		EAIVVerified:  sql.NullBool{Bool: true, Valid: true},
	}
	if err := s.SeedProfile(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for _, key := range []string{"5551239876", "https://rtnsmart.com/rtnsmartapp/?USER_dGVzdA==", "D1234567"} {
		p, err := s.LookupProfileByIdentifier(key)
		if err != nil {
			t.Fatalf("lookup by %q: %v", key, err)
		}
		if !p.EAIVVerified.Valid || !p.EAIVVerified.Bool {
			t.Fatalf("lookup by %q: eaiv flag lost", key)
		}
		if p.CIDCustomerID.String != "CID_ABC123" {
			t.Fatalf("lookup by %q: cid %q", key, p.CIDCustomerID.String)
		}
	}
}

func TestLookupProfileNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LookupProfileByIdentifier("0000000000")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestMarkProfileAVTVerified(t *testing.T) {
	s := openTestStore(t)
	if err := s.SeedProfile(CustomerProfile{
		LoyaltyID:   "5551239876",
		PhoneNumber: sql.NullString{String: "5551239876", Valid: true},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	n, err := s.MarkProfileAVTVerified("5551239876")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows updated: got %d want 1", n)
	}
	p, err := s.LookupProfileByIdentifier("5551239876")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !p.AVTVerified.Valid || !p.AVTVerified.Bool {
		t.Fatalf("avt_verified not set")
	}
	if !p.LastAVTVerified.Valid {
		t.Fatalf("last_avt_verified not set")
	}
}

func TestMarkProfileAVTVerifiedNoMatch(t *testing.T) {
	s := openTestStore(t)
	n, err := s.MarkProfileAVTVerified("unknown-id")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if n != 0 {
		t.Fatalf("rows updated: got %d want 0", n)
	}
}

func TestAppendAuditRows(t *testing.T) {
	s := openTestStore(t)
	entry := ValidationLogEntry{
		LoyaltyID:          "5551239876",
		StoreID:            "1421",
		Valid:              true,
		EligibleForTier3:   true,
		EligibleForCIDFund: false,
		IsManagerCard:      true,
		DailyCount:         6,
		Reason:             "Manager/store card detected: 6 transactions today (exceeds cap of 5)",
	}
	if err := s.AppendValidationLog(entry); err != nil {
		t.Fatalf("validation log: %v", err)
	}
	if n, _ := s.ValidationLogCount("5551239876"); n != 1 {
		t.Fatalf("validation log rows: got %d want 1", n)
	}

	rec := AVTTransactionRecord{
		TransactionID: "TX-9001",
		StoreID:       "1421",
		LoyaltyID:     "5551239876",
		CIDCustomerID: "CID_ABC123",
		AVTPerformed:  true,
		AVTMethod:     "in_person_confirmation",
		CashierID:     "88",
		EAIVVerified:  true,
	}
	if err := s.AppendAVTTransaction(rec); err != nil {
		t.Fatalf("avt transaction: %v", err)
	}
	if n, _ := s.AVTTransactionCount("TX-9001"); n != 1 {
		t.Fatalf("avt rows: got %d want 1", n)
	}
}

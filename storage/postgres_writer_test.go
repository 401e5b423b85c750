package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"vendor-desk/models"
)

// Runs against a real database only when VENDOR_DESK_TEST_DSN is set.
func TestPostgresJournalRoundTrip(t *testing.T) {
	dsn := os.Getenv("VENDOR_DESK_TEST_DSN")
	if dsn == "" {
		t.Skip("VENDOR_DESK_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pj, err := NewPostgresJournal(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresJournal: %v", err)
	}
	defer pj.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	d := models.LeadDecision{
		OfferID:       uuid.NewString(),
		OrderID:       "A1",
		VendorPhone:   "9999999999",
		Action:        "accept",
		StatusMutated: true,
		LeadCommitted: false,
		Error:         "lead taken",
		ArrivedAt:     now.Add(-45 * time.Second),
		DecidedAt:     now,
	}
	if err := pj.RecordDecision(ctx, d); err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}
	if err := pj.RecordDecision(ctx, d); err != nil {
		t.Fatalf("RecordDecision replay: %v", err)
	}

	recent, err := pj.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var found int
	for _, r := range recent {
		if r.OfferID == d.OfferID {
			found++
			if !r.StatusMutated || r.LeadCommitted || r.Error != d.Error {
				t.Errorf("stored decision = %+v; want %+v", r, d)
			}
		}
	}
	if found != 1 {
		t.Errorf("found %d rows for offer %s; want 1", found, d.OfferID)
	}
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"organcore/pkg/domain"
)

func TestSnapshotSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateWaitingEntry(domain.WaitingListEntry{
			RecipientID: "r1", OrganType: domain.OrganHeart, Region: "north",
			UrgencyLevel: 8, Tier: domain.TierCritical, Active: true,
		}); err != nil {
			return err
		}
		weights := domain.DefaultScoringWeights()
		weights[domain.WeightMinimumScore] = 50
		_, err := tx.SetWeights(weights)
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	entries := reopened.ListWaitingEntries()
	if len(entries) != 1 || entries[0].RecipientID != "r1" || !entries[0].Active {
		t.Fatalf("rehydrated entries = %+v", entries)
	}
	if got := reopened.Weights().MinimumScore(); got != 50 {
		t.Fatalf("rehydrated minimum score = %g, want 50", got)
	}
}

func TestFailedTransactionDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.CreateWaitingEntry(domain.WaitingListEntry{
			RecipientID: "r1", OrganType: domain.OrganHeart, UrgencyLevel: 99, Tier: domain.TierLow,
		})
		return txErr
	}); err == nil {
		t.Fatalf("expected urgency validation error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if len(reopened.ListWaitingEntries()) != 0 {
		t.Fatalf("failed transaction leaked into snapshot")
	}
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"organcore/pkg/domain"
)

func newTestStore() *Store {
	s := NewStore(nil)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	s.SetNowFunc(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	return s
}

func TestCreateWaitingEntryAndLookup(t *testing.T) {
	s := newTestStore()
	var created domain.WaitingListEntry
	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateWaitingEntry(domain.WaitingListEntry{
			RecipientID:  "r1",
			OrganType:    domain.OrganHeart,
			Region:       "north",
			UrgencyLevel: 5,
			Tier:         domain.TierHigh,
			Active:       true,
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamps, got %+v", created)
	}
	got, ok := s.GetWaitingEntry(created.ID)
	if !ok || got.RecipientID != "r1" {
		t.Fatalf("lookup after commit failed: %+v ok=%v", got, ok)
	}
	if _, ok := s.FindActiveEntry("r1", domain.OrganHeart); !ok {
		t.Fatalf("expected active entry for r1/Heart")
	}
	if _, ok := s.FindActiveEntry("r1", domain.OrganLiver); ok {
		t.Fatalf("unexpected active entry for r1/Liver")
	}
}

func TestCreateWaitingEntryValidation(t *testing.T) {
	s := newTestStore()
	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.CreateWaitingEntry(domain.WaitingListEntry{
			RecipientID:  "r1",
			OrganType:    domain.OrganHeart,
			UrgencyLevel: 11,
			Tier:         domain.TierLow,
		})
		return txErr
	})
	var invalid domain.InvalidUrgencyLevelError
	if !errors.As(err, &invalid) || invalid.Level != 11 {
		t.Fatalf("expected InvalidUrgencyLevelError, got %v", err)
	}
	if len(s.ListWaitingEntries()) != 0 {
		t.Fatalf("failed transaction must not mutate state")
	}
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	s := newTestStore()
	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, txErr := tx.CreateWaitingEntry(domain.WaitingListEntry{
			RecipientID: "r1", OrganType: domain.OrganLiver, UrgencyLevel: 3, Tier: domain.TierMedium, Active: true,
		}); txErr != nil {
			return txErr
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(s.ListWaitingEntries()) != 0 {
		t.Fatalf("aborted transaction leaked state")
	}
}

func TestBlockingRulePreventsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAllRule{})
	s := NewStore(engine)
	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.CreateWaitingEntry(domain.WaitingListEntry{
			RecipientID: "r1", OrganType: domain.OrganHeart, UrgencyLevel: 5, Tier: domain.TierHigh, Active: true,
		})
		return txErr
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if len(s.ListWaitingEntries()) != 0 {
		t.Fatalf("blocked transaction leaked state")
	}
}

type blockAllRule struct{}

func (blockAllRule) Name() string { return "block_all" }

func (blockAllRule) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "block_all", Severity: domain.SeverityBlock}}}, nil
}

func TestSetWeightsReadAfterWrite(t *testing.T) {
	s := newTestStore()
	next := domain.DefaultScoringWeights()
	next[domain.WeightMinimumScore] = 60
	if _, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.SetWeights(next)
		return txErr
	}); err != nil {
		t.Fatalf("set weights: %v", err)
	}
	if got := s.Weights().MinimumScore(); got != 60 {
		t.Fatalf("minimum score after write = %g, want 60", got)
	}
	// Mutating the caller's map must not reach the store.
	next[domain.WeightMinimumScore] = 10
	if got := s.Weights().MinimumScore(); got != 60 {
		t.Fatalf("stored weights aliased caller map")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore()
	if _, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateWaitingEntry(domain.WaitingListEntry{
			RecipientID: "r1", OrganType: domain.OrganKidneys, Region: "west", UrgencyLevel: 7, Tier: domain.TierCritical, Active: true,
		}); err != nil {
			return err
		}
		if _, err := tx.CreateProposal(domain.MatchProposal{OrganID: "o1", RecipientID: "r1", HospitalID: "h1"}); err != nil {
			return err
		}
		_, err := tx.CreateAllocation(domain.AllocationRecord{OrganID: "o1", RecipientID: "r1", ProposalID: "p1"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	restored := NewStore(nil)
	restored.ImportState(s.ExportState())
	if len(restored.ListWaitingEntries()) != 1 || len(restored.ListProposals()) != 1 || len(restored.ListAllocations()) != 1 {
		t.Fatalf("round trip lost records")
	}
	if restored.Weights().MinimumScore() != 40 {
		t.Fatalf("round trip lost weights")
	}
}

func TestMigrateSnapshotRepairsNilBuckets(t *testing.T) {
	s := NewStore(nil)
	s.ImportState(Snapshot{Entries: map[string]domain.WaitingListEntry{
		"bad": {Base: domain.Base{ID: "bad"}},
	}})
	if len(s.ListWaitingEntries()) != 0 {
		t.Fatalf("entry without recipient/organ should be dropped")
	}
	if s.Weights().MinimumScore() != 40 {
		t.Fatalf("nil weights should fall back to defaults")
	}
}

func TestProposalDefaultsAppliedOnCreate(t *testing.T) {
	s := newTestStore()
	var p domain.MatchProposal
	if _, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		p, err = tx.CreateProposal(domain.MatchProposal{OrganID: "o1", RecipientID: "r1"})
		return err
	}); err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if p.Status != domain.ProposalStatusMatched {
		t.Fatalf("status = %s, want matched", p.Status)
	}
	if want := p.CreatedAt.Add(domain.ProposalTTL); !p.ExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", p.ExpiresAt, want)
	}
}

package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateWaitingEntry(WaitingListEntry) (WaitingListEntry, error)
	UpdateWaitingEntry(id string, mutator func(*WaitingListEntry) error) (WaitingListEntry, error)
	CreateProposal(MatchProposal) (MatchProposal, error)
	UpdateProposal(id string, mutator func(*MatchProposal) error) (MatchProposal, error)
	CreateAllocation(AllocationRecord) (AllocationRecord, error)
	SetWeights(ScoringWeights) (ScoringWeights, error)
	FindWaitingEntry(id string) (WaitingListEntry, bool)
	FindActiveEntry(recipientID string, organType OrganType) (WaitingListEntry, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListWaitingEntries() []WaitingListEntry
	ListProposals() []MatchProposal
	ListAllocations() []AllocationRecord
	FindWaitingEntry(id string) (WaitingListEntry, bool)
	FindProposal(id string) (MatchProposal, bool)
	Weights() ScoringWeights
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetWaitingEntry(id string) (WaitingListEntry, bool)
	FindActiveEntry(recipientID string, organType OrganType) (WaitingListEntry, bool)
	ListWaitingEntries() []WaitingListEntry
	ListProposals() []MatchProposal
	ListAllocations() []AllocationRecord
	Weights() ScoringWeights
}

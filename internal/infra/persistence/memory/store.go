// Package memory provides an in-memory implementation of the allocation
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"organcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	entries     map[string]domain.WaitingListEntry
	proposals   map[string]domain.MatchProposal
	allocations map[string]domain.AllocationRecord
	weights     domain.ScoringWeights
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Entries     map[string]domain.WaitingListEntry `json:"entries"`
	Proposals   map[string]domain.MatchProposal    `json:"proposals"`
	Allocations map[string]domain.AllocationRecord `json:"allocations"`
	Weights     domain.ScoringWeights              `json:"weights"`
}

func newMemoryState() memoryState {
	return memoryState{
		entries:     make(map[string]domain.WaitingListEntry),
		proposals:   make(map[string]domain.MatchProposal),
		allocations: make(map[string]domain.AllocationRecord),
		weights:     domain.DefaultScoringWeights(),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.entries {
		cloned.entries[k] = v
	}
	for k, v := range s.proposals {
		cloned.proposals[k] = v
	}
	for k, v := range s.allocations {
		cloned.allocations[k] = v
	}
	cloned.weights = s.weights.Clone()
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Entries:     make(map[string]domain.WaitingListEntry, len(state.entries)),
		Proposals:   make(map[string]domain.MatchProposal, len(state.proposals)),
		Allocations: make(map[string]domain.AllocationRecord, len(state.allocations)),
		Weights:     state.weights.Clone(),
	}
	for k, v := range state.entries {
		s.Entries[k] = v
	}
	for k, v := range state.proposals {
		s.Proposals[k] = v
	}
	for k, v := range state.allocations {
		s.Allocations[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Entries {
		state.entries[k] = v
	}
	for k, v := range s.Proposals {
		state.proposals[k] = v
	}
	for k, v := range s.Allocations {
		state.allocations[k] = v
	}
	state.weights = s.Weights.Clone()
	return state
}

// migrateSnapshot repairs snapshots written by earlier revisions: nil buckets
// become empty, missing weights fall back to defaults, and entries without a
// recipient or organ type are dropped.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Entries == nil {
		snapshot.Entries = map[string]domain.WaitingListEntry{}
	}
	if snapshot.Proposals == nil {
		snapshot.Proposals = map[string]domain.MatchProposal{}
	}
	if snapshot.Allocations == nil {
		snapshot.Allocations = map[string]domain.AllocationRecord{}
	}
	if snapshot.Weights == nil {
		snapshot.Weights = domain.DefaultScoringWeights()
	}
	for id, entry := range snapshot.Entries {
		if entry.RecipientID == "" || entry.OrganType == "" {
			delete(snapshot.Entries, id)
		}
	}
	return snapshot
}

// Store provides an in-memory transactional store for the allocation domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// RunInTransaction clones the state, applies fn, evaluates the registered
// rules against the mutated snapshot, and swaps the state in only when no
// blocking violation is present.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetWaitingEntry retrieves a waiting-list entry by ID.
func (s *Store) GetWaitingEntry(id string) (domain.WaitingListEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.entries[id]
	return e, ok
}

// FindActiveEntry returns the active entry for a recipient and organ type.
func (s *Store) FindActiveEntry(recipientID string, organType domain.OrganType) (domain.WaitingListEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findActiveEntry(&s.state, recipientID, organType)
}

// ListWaitingEntries returns all waiting-list entries in deterministic order.
func (s *Store) ListWaitingEntries() []domain.WaitingListEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntries(&s.state)
}

// ListProposals returns all proposals in deterministic order.
func (s *Store) ListProposals() []domain.MatchProposal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProposals(&s.state)
}

// ListAllocations returns the allocation history in deterministic order.
func (s *Store) ListAllocations() []domain.AllocationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAllocations(&s.state)
}

// Weights returns a copy of the current scoring parameter set.
func (s *Store) Weights() domain.ScoringWeights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.weights.Clone()
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

// CreateWaitingEntry stores a new waiting-list entry after validating its
// urgency and tier.
func (tx *transaction) CreateWaitingEntry(e domain.WaitingListEntry) (domain.WaitingListEntry, error) {
	if e.RecipientID == "" {
		return domain.WaitingListEntry{}, fmt.Errorf("waiting entry requires recipient id")
	}
	if e.OrganType == "" {
		return domain.WaitingListEntry{}, fmt.Errorf("waiting entry requires organ type")
	}
	if e.UrgencyLevel < domain.UrgencyMin || e.UrgencyLevel > domain.UrgencyMax {
		return domain.WaitingListEntry{}, domain.InvalidUrgencyLevelError{Level: e.UrgencyLevel}
	}
	if !e.Tier.Valid() {
		return domain.WaitingListEntry{}, fmt.Errorf("unknown priority tier %q", e.Tier)
	}
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.entries[e.ID]; exists {
		return domain.WaitingListEntry{}, fmt.Errorf("waiting entry %q already exists", e.ID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.entries[e.ID] = e
	tx.recordChange(domain.Change{Entity: domain.EntityWaitingListEntry, Action: domain.ActionCreate, After: e})
	return e, nil
}

// UpdateWaitingEntry mutates an entry using the provided mutator function.
func (tx *transaction) UpdateWaitingEntry(id string, mutator func(*domain.WaitingListEntry) error) (domain.WaitingListEntry, error) {
	current, ok := tx.state.entries[id]
	if !ok {
		return domain.WaitingListEntry{}, domain.WaitingEntryNotFoundError{EntryID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.WaitingListEntry{}, err
	}
	if current.UrgencyLevel < domain.UrgencyMin || current.UrgencyLevel > domain.UrgencyMax {
		return domain.WaitingListEntry{}, domain.InvalidUrgencyLevelError{Level: current.UrgencyLevel}
	}
	if !current.Tier.Valid() {
		return domain.WaitingListEntry{}, fmt.Errorf("unknown priority tier %q", current.Tier)
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.entries[id] = current
	tx.recordChange(domain.Change{Entity: domain.EntityWaitingListEntry, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateProposal stores a new match proposal.
func (tx *transaction) CreateProposal(p domain.MatchProposal) (domain.MatchProposal, error) {
	if p.OrganID == "" || p.RecipientID == "" {
		return domain.MatchProposal{}, fmt.Errorf("proposal requires organ and recipient ids")
	}
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.proposals[p.ID]; exists {
		return domain.MatchProposal{}, fmt.Errorf("proposal %q already exists", p.ID)
	}
	if p.Status == "" {
		p.Status = domain.ProposalStatusMatched
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	if p.ExpiresAt.IsZero() {
		p.ExpiresAt = tx.now.Add(domain.ProposalTTL)
	}
	tx.state.proposals[p.ID] = p
	tx.recordChange(domain.Change{Entity: domain.EntityMatchProposal, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdateProposal mutates a proposal using the provided mutator function.
func (tx *transaction) UpdateProposal(id string, mutator func(*domain.MatchProposal) error) (domain.MatchProposal, error) {
	current, ok := tx.state.proposals[id]
	if !ok {
		return domain.MatchProposal{}, fmt.Errorf("proposal %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.MatchProposal{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.proposals[id] = current
	tx.recordChange(domain.Change{Entity: domain.EntityMatchProposal, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateAllocation appends an allocation history record.
func (tx *transaction) CreateAllocation(a domain.AllocationRecord) (domain.AllocationRecord, error) {
	if a.OrganID == "" || a.RecipientID == "" {
		return domain.AllocationRecord{}, fmt.Errorf("allocation requires organ and recipient ids")
	}
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.allocations[a.ID]; exists {
		return domain.AllocationRecord{}, fmt.Errorf("allocation %q already exists", a.ID)
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.allocations[a.ID] = a
	tx.recordChange(domain.Change{Entity: domain.EntityAllocation, Action: domain.ActionCreate, After: a})
	return a, nil
}

// SetWeights replaces the scoring parameter set.
func (tx *transaction) SetWeights(w domain.ScoringWeights) (domain.ScoringWeights, error) {
	if len(w) == 0 {
		return nil, fmt.Errorf("scoring weights must not be empty")
	}
	before := tx.state.weights.Clone()
	tx.state.weights = w.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityScoringWeights, Action: domain.ActionUpdate, Before: before, After: tx.state.weights.Clone()})
	return tx.state.weights.Clone(), nil
}

// FindWaitingEntry exposes entry lookup within the transaction scope.
func (tx *transaction) FindWaitingEntry(id string) (domain.WaitingListEntry, bool) {
	e, ok := tx.state.entries[id]
	return e, ok
}

// FindActiveEntry exposes the active-entry lookup within the transaction scope.
func (tx *transaction) FindActiveEntry(recipientID string, organType domain.OrganType) (domain.WaitingListEntry, bool) {
	return findActiveEntry(&tx.state, recipientID, organType)
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListWaitingEntries() []domain.WaitingListEntry { return listEntries(v.state) }
func (v transactionView) ListProposals() []domain.MatchProposal         { return listProposals(v.state) }
func (v transactionView) ListAllocations() []domain.AllocationRecord    { return listAllocations(v.state) }
func (v transactionView) Weights() domain.ScoringWeights                { return v.state.weights.Clone() }

func (v transactionView) FindWaitingEntry(id string) (domain.WaitingListEntry, bool) {
	e, ok := v.state.entries[id]
	return e, ok
}

func (v transactionView) FindProposal(id string) (domain.MatchProposal, bool) {
	p, ok := v.state.proposals[id]
	return p, ok
}

func findActiveEntry(state *memoryState, recipientID string, organType domain.OrganType) (domain.WaitingListEntry, bool) {
	for _, e := range state.entries {
		if e.Active && e.RecipientID == recipientID && e.OrganType == organType {
			return e, true
		}
	}
	return domain.WaitingListEntry{}, false
}

// List helpers return slices ordered by creation time then ID so callers see
// a stable order regardless of map iteration.

func listEntries(state *memoryState) []domain.WaitingListEntry {
	out := make([]domain.WaitingListEntry, 0, len(state.entries))
	for _, e := range state.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func listProposals(state *memoryState) []domain.MatchProposal {
	out := make([]domain.MatchProposal, 0, len(state.proposals))
	for _, p := range state.proposals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func listAllocations(state *memoryState) []domain.AllocationRecord {
	out := make([]domain.AllocationRecord, 0, len(state.allocations))
	for _, a := range state.allocations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Package events delivers engine facts to interested consumers. Publication
// is best-effort: a failed publish never rolls back the commit that emitted
// the fact.
package events

import (
	"context"
	"sync"
	"time"
)

// Kind identifies the fact being published.
type Kind string

// Facts emitted by the allocation engine.
const (
	KindProposalCreated    Kind = "match_proposal_created"
	KindOrganAllocated     Kind = "organ_allocated"
	KindEmergencyMatch     Kind = "emergency_match_triggered"
	KindWaitingListUpdated Kind = "waiting_list_updated"
	KindWeightsUpdated     Kind = "scoring_parameters_updated"
)

// Fact is a single published event.
type Fact struct {
	Kind        Kind           `json:"kind"`
	OrganID     string         `json:"organ_id,omitempty"`
	RecipientID string         `json:"recipient_id,omitempty"`
	EntryID     string         `json:"entry_id,omitempty"`
	Region      string         `json:"region,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Publisher delivers facts to a downstream channel.
type Publisher interface {
	Publish(ctx context.Context, fact Fact) error
}

// MemoryPublisher retains published facts for inspection. Used in tests and
// as the default when no broker is configured.
type MemoryPublisher struct {
	mu    sync.Mutex
	facts []Fact
}

// Publish stores the fact.
func (p *MemoryPublisher) Publish(_ context.Context, fact Fact) error {
	p.mu.Lock()
	p.facts = append(p.facts, fact)
	p.mu.Unlock()
	return nil
}

// Facts returns a defensive copy of the published facts.
func (p *MemoryPublisher) Facts() []Fact {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Fact, len(p.facts))
	copy(out, p.facts)
	return out
}

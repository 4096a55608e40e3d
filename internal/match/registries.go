// Package match implements organ-recipient scoring, waiting-list management,
// and the transactional allocation engine on top of the persistence store.
package match

import (
	"context"

	"organcore/pkg/domain"
)

// OrganRegistry is the authoritative source of organ state. Lookups are
// read-only; SetStatus and MarkEmergency are mutations whose failure aborts
// the enclosing operation.
type OrganRegistry interface {
	GetOrgan(ctx context.Context, id string) (domain.OrganRecord, error)
	DonorRegion(ctx context.Context, donorID string) (string, error)
	SetStatus(ctx context.Context, id string, status domain.OrganStatus, recipientID, hospitalID string) error
	MarkEmergency(ctx context.Context, id string) error
}

// RecipientRegistry resolves recipient facts needed for scoring.
type RecipientRegistry interface {
	GetRecipient(ctx context.Context, id string) (domain.RecipientFacts, error)
}

// QualityResult is the three-state outcome of a medical quality check.
type QualityResult int

// Quality check outcomes. Unknown covers an unreachable quality service and
// scores as the fail-open default.
const (
	QualityUnknown QualityResult = iota
	QualityValidated
	QualityNotValidated
)

// QualityService reports whether an organ passed medical validation for a
// specific recipient. The predicate is pair-wise: the same organ may validate
// against one recipient and not another.
type QualityService interface {
	Compatible(ctx context.Context, organID, recipientID string) (QualityResult, error)
}

// Authorizer gates administrative and allocation operations. A nil authorizer
// allows everything.
type Authorizer interface {
	Authorize(ctx context.Context, actor, action string) error
}

// RegionDistance computes the distance between two regions. A nil function
// means no distance model is configured: every region is considered in range.
type RegionDistance func(from, to string) float64

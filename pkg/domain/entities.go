// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by organcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityWaitingListEntry identifies a waiting-list entry record.
	EntityWaitingListEntry EntityType = "waiting_list_entry"
	// EntityMatchProposal identifies a match proposal record.
	EntityMatchProposal EntityType = "match_proposal"
	// EntityAllocation identifies an allocation history record.
	EntityAllocation EntityType = "allocation"
	// EntityScoringWeights identifies the scoring weight set.
	EntityScoringWeights EntityType = "scoring_weights"
)

// OrganType enumerates the organ categories the engine allocates.
type OrganType string

// Canonical organ types recognised by the waiting-list partitioning.
const (
	OrganHeart   OrganType = "Heart"
	OrganLiver   OrganType = "Liver"
	OrganKidneys OrganType = "Kidneys"
)

// OrganStatus enumerates organ lifecycle states as reported by the organ registry.
type OrganStatus string

// Canonical organ statuses. Only Available organs participate in matching.
const (
	OrganStatusAvailable    OrganStatus = "available"
	OrganStatusMatched      OrganStatus = "matched"
	OrganStatusTransplanted OrganStatus = "transplanted"
	OrganStatusExpired      OrganStatus = "expired"
	OrganStatusRejected     OrganStatus = "rejected"
)

// PriorityTier classifies a waiting-list entry for ordering and urgency scoring.
type PriorityTier string

// Priority tiers from least to most urgent.
const (
	TierLow       PriorityTier = "low"
	TierMedium    PriorityTier = "medium"
	TierHigh      PriorityTier = "high"
	TierCritical  PriorityTier = "critical"
	TierEmergency PriorityTier = "emergency"
)

// Rank maps a tier to its ordering weight. Unknown tiers rank below Low.
func (t PriorityTier) Rank() int {
	switch t {
	case TierEmergency:
		return 5
	case TierCritical:
		return 4
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the tier is one of the canonical values.
func (t PriorityTier) Valid() bool { return t.Rank() > 0 }

// BloodType is an ABO/Rh blood group such as "O-" or "AB+".
type BloodType string

// Urgency level bounds for waiting-list entries.
const (
	UrgencyMin = 1
	UrgencyMax = 10
)

// ProposalStatus enumerates match proposal lifecycle states.
type ProposalStatus string

// Canonical proposal statuses. A proposal is created Matched; confirmation,
// rejection and expiry are downstream transitions.
const (
	ProposalStatusMatched   ProposalStatus = "matched"
	ProposalStatusConfirmed ProposalStatus = "confirmed"
	ProposalStatusRejected  ProposalStatus = "rejected"
	ProposalStatusExpired   ProposalStatus = "expired"
)

// Open reports whether the proposal still reserves its organ.
func (s ProposalStatus) Open() bool {
	return s == ProposalStatusMatched || s == ProposalStatusConfirmed
}

// ProposalTTL is the confirmation window attached to new proposals. Expiry is
// advisory: nothing in the engine acts on it without an external sweep.
const ProposalTTL = 24 * time.Hour

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WaitingListEntry places a recipient on the waiting list for one organ type.
// At most one active entry may exist per (recipient, organ type); CreatedAt is
// the registration timestamp used as the final ordering tie-break.
type WaitingListEntry struct {
	Base
	RecipientID  string       `json:"recipient_id"`
	OrganType    OrganType    `json:"organ_type"`
	Region       string       `json:"region"`
	UrgencyLevel int          `json:"urgency_level"`
	Tier         PriorityTier `json:"tier"`
	Active       bool         `json:"active"`
}

// MatchScore is the decomposed result of scoring one organ against one
// recipient. Total is always the exact sum of the five components.
type MatchScore struct {
	BloodCompatibility int  `json:"blood_compatibility"`
	Urgency            int  `json:"urgency"`
	WaitingTime        int  `json:"waiting_time"`
	Geographic         int  `json:"geographic"`
	Medical            int  `json:"medical"`
	Total              int  `json:"total"`
	Compatible         bool `json:"compatible"`
}

// MatchProposal records an allocation decision awaiting confirmation.
type MatchProposal struct {
	Base
	OrganID     string         `json:"organ_id"`
	RecipientID string         `json:"recipient_id"`
	HospitalID  string         `json:"hospital_id"`
	Score       MatchScore     `json:"score"`
	Status      ProposalStatus `json:"status"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Emergency   bool           `json:"emergency,omitempty"`
	Notes       string         `json:"notes,omitempty"`
}

// AllocationRecord is an append-only history entry written alongside each
// successful allocation.
type AllocationRecord struct {
	Base
	OrganID     string     `json:"organ_id"`
	RecipientID string     `json:"recipient_id"`
	ProposalID  string     `json:"proposal_id"`
	HospitalID  string     `json:"hospital_id"`
	Score       MatchScore `json:"score"`
	Emergency   bool       `json:"emergency,omitempty"`
}

// OrganRecord is the read-only organ view served by the organ registry.
// UrgencyLevel and QualityValidated are registry-reported facts carried for
// completeness; scoring reads urgency from the waiting-list entry and medical
// validation from the quality service.
type OrganRecord struct {
	ID               string      `json:"id"`
	Type             OrganType   `json:"type"`
	BloodType        BloodType   `json:"blood_type"`
	Status           OrganStatus `json:"status"`
	DonorID          string      `json:"donor_id"`
	RecipientID      string      `json:"recipient_id,omitempty"`
	HospitalID       string      `json:"hospital_id,omitempty"`
	UrgencyLevel     int         `json:"urgency_level,omitempty"`
	QualityValidated bool        `json:"quality_validated,omitempty"`
	Emergency        bool        `json:"emergency,omitempty"`
}

// RecipientFacts is the read-only recipient view served by the recipient registry.
type RecipientFacts struct {
	ID         string    `json:"id"`
	BloodType  BloodType `json:"blood_type"`
	Region     string    `json:"region"`
	Registered bool      `json:"registered"`
}

// Package registry provides in-memory implementations of the external
// collaborator interfaces, used by tests and single-process deployments.
package registry

import (
	"context"
	"fmt"
	"sync"

	"organcore/internal/match"
	"organcore/pkg/domain"
)

// Compile-time contract assertions against the engine collaborator interfaces.
var (
	_ match.OrganRegistry     = (*Organs)(nil)
	_ match.RecipientRegistry = (*Recipients)(nil)
	_ match.QualityService    = (*Quality)(nil)
	_ match.Authorizer        = (*RoleAuthorizer)(nil)
)

// Organs is an in-memory organ registry.
type Organs struct {
	mu      sync.RWMutex
	organs  map[string]domain.OrganRecord
	regions map[string]string
}

// NewOrgans constructs an empty organ registry.
func NewOrgans() *Organs {
	return &Organs{
		organs:  make(map[string]domain.OrganRecord),
		regions: make(map[string]string),
	}
}

// AddOrgan registers or replaces an organ record.
func (o *Organs) AddOrgan(record domain.OrganRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if record.Status == "" {
		record.Status = domain.OrganStatusAvailable
	}
	o.organs[record.ID] = record
}

// AddDonor records the region a donor belongs to.
func (o *Organs) AddDonor(donorID, region string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.regions[donorID] = region
}

// GetOrgan returns the organ record for id.
func (o *Organs) GetOrgan(_ context.Context, id string) (domain.OrganRecord, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	record, ok := o.organs[id]
	if !ok {
		return domain.OrganRecord{}, domain.OrganNotFoundError{OrganID: id}
	}
	return record, nil
}

// DonorRegion returns the region of the given donor.
func (o *Organs) DonorRegion(_ context.Context, donorID string) (string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	region, ok := o.regions[donorID]
	if !ok {
		return "", fmt.Errorf("donor %q has no registered region", donorID)
	}
	return region, nil
}

// SetStatus transitions the organ and records the recipient and hospital of
// the transition.
func (o *Organs) SetStatus(_ context.Context, id string, status domain.OrganStatus, recipientID, hospitalID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	record, ok := o.organs[id]
	if !ok {
		return domain.OrganNotFoundError{OrganID: id}
	}
	record.Status = status
	record.RecipientID = recipientID
	record.HospitalID = hospitalID
	o.organs[id] = record
	return nil
}

// MarkEmergency flags the organ as an emergency case.
func (o *Organs) MarkEmergency(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	record, ok := o.organs[id]
	if !ok {
		return domain.OrganNotFoundError{OrganID: id}
	}
	record.Emergency = true
	o.organs[id] = record
	return nil
}

// Recipients is an in-memory recipient registry.
type Recipients struct {
	mu         sync.RWMutex
	recipients map[string]domain.RecipientFacts
}

// NewRecipients constructs an empty recipient registry.
func NewRecipients() *Recipients {
	return &Recipients{recipients: make(map[string]domain.RecipientFacts)}
}

// AddRecipient registers or replaces recipient facts.
func (r *Recipients) AddRecipient(facts domain.RecipientFacts) {
	r.mu.Lock()
	defer r.mu.Unlock()
	facts.Registered = true
	r.recipients[facts.ID] = facts
}

// GetRecipient returns the facts for id.
func (r *Recipients) GetRecipient(_ context.Context, id string) (domain.RecipientFacts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	facts, ok := r.recipients[id]
	if !ok {
		return domain.RecipientFacts{}, fmt.Errorf("recipient %q not registered", id)
	}
	return facts, nil
}

// Quality is an in-memory quality service keyed by (organ, recipient) pair.
// Unset pairs report QualityUnknown; a configured error makes every check
// fail, exercising the engine's fail-open path.
type Quality struct {
	mu      sync.RWMutex
	results map[string]match.QualityResult
	err     error
}

// NewQuality constructs an empty quality service.
func NewQuality() *Quality {
	return &Quality{results: make(map[string]match.QualityResult)}
}

// SetResult records the quality outcome for an organ-recipient pair.
func (q *Quality) SetResult(organID, recipientID string, result match.QualityResult) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results[pairKey(organID, recipientID)] = result
}

// SetError makes every subsequent check return err (nil restores service).
func (q *Quality) SetError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

// Compatible returns the recorded outcome for the organ-recipient pair.
func (q *Quality) Compatible(_ context.Context, organID, recipientID string) (match.QualityResult, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.err != nil {
		return match.QualityUnknown, q.err
	}
	return q.results[pairKey(organID, recipientID)], nil
}

func pairKey(organID, recipientID string) string {
	return organID + "|" + recipientID
}

// RoleAuthorizer grants actions to actors holding the required role.
type RoleAuthorizer struct {
	mu    sync.RWMutex
	roles map[string]map[string]bool
}

// NewRoleAuthorizer constructs an empty authorizer; every action is denied
// until granted.
func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{roles: make(map[string]map[string]bool)}
}

// Grant allows actor to perform action.
func (a *RoleAuthorizer) Grant(actor, action string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.roles[actor] == nil {
		a.roles[actor] = make(map[string]bool)
	}
	a.roles[actor][action] = true
}

// Authorize returns UnauthorizedError unless actor holds action.
func (a *RoleAuthorizer) Authorize(_ context.Context, actor, action string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.roles[actor][action] {
		return nil
	}
	return domain.UnauthorizedError{Actor: actor, Action: action}
}

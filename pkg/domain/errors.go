package domain

import "fmt"

// OrganNotFoundError indicates the organ registry has no record for the
// referenced organ identifier.
type OrganNotFoundError struct {
	OrganID string
}

func (e OrganNotFoundError) Error() string {
	return fmt.Sprintf("organ %q not found", e.OrganID)
}

// OrganNotAvailableError indicates the organ exists but is not in the
// Available state required for matching or allocation.
type OrganNotAvailableError struct {
	OrganID string
	Status  OrganStatus
}

func (e OrganNotAvailableError) Error() string {
	return fmt.Sprintf("organ %q not available (status %s)", e.OrganID, e.Status)
}

// RecipientNotEligibleError indicates the recipient failed the compatibility
// gate at allocation time.
type RecipientNotEligibleError struct {
	RecipientID string
	OrganID     string
	Reason      string
	Total       int
	Minimum     float64
}

func (e RecipientNotEligibleError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("recipient %q not eligible for organ %q: %s", e.RecipientID, e.OrganID, e.Reason)
	}
	return fmt.Sprintf("recipient %q not eligible for organ %q: score %d below minimum %g", e.RecipientID, e.OrganID, e.Total, e.Minimum)
}

// InvalidUrgencyLevelError indicates an urgency outside the [UrgencyMin, UrgencyMax] range.
type InvalidUrgencyLevelError struct {
	Level int
}

func (e InvalidUrgencyLevelError) Error() string {
	return fmt.Sprintf("urgency level %d outside [%d,%d]", e.Level, UrgencyMin, UrgencyMax)
}

// EmptyWaitingListError indicates a prioritisation request against a
// partition with no active entries.
type EmptyWaitingListError struct {
	OrganType OrganType
	Region    string
}

func (e EmptyWaitingListError) Error() string {
	return fmt.Sprintf("no active waiting-list entries for %s in region %q", e.OrganType, e.Region)
}

// AlreadyOnWaitingListError indicates the recipient already holds an active
// entry for the organ type.
type AlreadyOnWaitingListError struct {
	RecipientID string
	OrganType   OrganType
}

func (e AlreadyOnWaitingListError) Error() string {
	return fmt.Sprintf("recipient %q already on the %s waiting list", e.RecipientID, e.OrganType)
}

// WaitingEntryNotFoundError indicates a waiting-list operation referenced an
// unknown or inactive entry.
type WaitingEntryNotFoundError struct {
	EntryID string
}

func (e WaitingEntryNotFoundError) Error() string {
	return fmt.Sprintf("waiting-list entry %q not found", e.EntryID)
}

// UnauthorizedError indicates the acting identity lacks the role required for
// an administrative operation.
type UnauthorizedError struct {
	Actor  string
	Action string
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("actor %q not authorized for %s", e.Actor, e.Action)
}

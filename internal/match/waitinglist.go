package match

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"organcore/internal/events"
	"organcore/pkg/domain"
)

// Waiting-list operation names used for authorization checks.
const (
	opAddEntry        = "add_waiting_entry"
	opUpdateEntry     = "update_waiting_entry"
	opDeactivateEntry = "deactivate_waiting_entry"
)

// WaitingList owns every waiting-list mutation. Entries are partitioned by
// (organ type, region); ordering within a partition is total: tier rank
// descending, urgency descending, registration time ascending.
type WaitingList struct {
	store     domain.PersistentStore
	auth      Authorizer
	logger    *zap.Logger
	publisher events.Publisher
	nowFn     func() time.Time
}

// WaitingListOption configures optional collaborators.
type WaitingListOption func(*WaitingList)

// WithWaitingListLogger sets the structured logger.
func WithWaitingListLogger(logger *zap.Logger) WaitingListOption {
	return func(w *WaitingList) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWaitingListPublisher sets the fact publisher.
func WithWaitingListPublisher(p events.Publisher) WaitingListOption {
	return func(w *WaitingList) {
		if p != nil {
			w.publisher = p
		}
	}
}

// WithWaitingListAuthorizer sets the role checker for mutating operations. A
// nil authorizer allows everything.
func WithWaitingListAuthorizer(a Authorizer) WaitingListOption {
	return func(w *WaitingList) { w.auth = a }
}

// NewWaitingList constructs a manager over the given store.
func NewWaitingList(store domain.PersistentStore, opts ...WaitingListOption) *WaitingList {
	w := &WaitingList{
		store:  store,
		logger: zap.NewNop(),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// AddEntry registers a recipient on the waiting list for one organ type.
func (w *WaitingList) AddEntry(ctx context.Context, actor string, entry domain.WaitingListEntry) (domain.WaitingListEntry, domain.Result, error) {
	if err := w.authorize(ctx, actor, opAddEntry); err != nil {
		return domain.WaitingListEntry{}, domain.Result{}, err
	}
	var created domain.WaitingListEntry
	res, err := w.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if existing, ok := tx.FindActiveEntry(entry.RecipientID, entry.OrganType); ok {
			return domain.AlreadyOnWaitingListError{RecipientID: existing.RecipientID, OrganType: existing.OrganType}
		}
		entry.Active = true
		var txErr error
		created, txErr = tx.CreateWaitingEntry(entry)
		return txErr
	})
	if err != nil {
		return domain.WaitingListEntry{}, res, err
	}
	w.logger.Info("waiting list entry added",
		zap.String("entry_id", created.ID),
		zap.String("recipient_id", created.RecipientID),
		zap.String("organ_type", string(created.OrganType)),
		zap.String("region", created.Region))
	w.publish(ctx, created, "added")
	return created, res, nil
}

// UpdateEntry adjusts the urgency and tier of an active entry.
func (w *WaitingList) UpdateEntry(ctx context.Context, actor, entryID string, urgency int, tier domain.PriorityTier) (domain.WaitingListEntry, domain.Result, error) {
	if err := w.authorize(ctx, actor, opUpdateEntry); err != nil {
		return domain.WaitingListEntry{}, domain.Result{}, err
	}
	var updated domain.WaitingListEntry
	res, err := w.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		updated, txErr = tx.UpdateWaitingEntry(entryID, func(e *domain.WaitingListEntry) error {
			if !e.Active {
				return domain.WaitingEntryNotFoundError{EntryID: entryID}
			}
			e.UrgencyLevel = urgency
			e.Tier = tier
			return nil
		})
		return txErr
	})
	if err != nil {
		return domain.WaitingListEntry{}, res, err
	}
	w.logger.Info("waiting list entry updated",
		zap.String("entry_id", updated.ID),
		zap.Int("urgency", updated.UrgencyLevel),
		zap.String("tier", string(updated.Tier)))
	w.publish(ctx, updated, "updated")
	return updated, res, nil
}

// DeactivateEntry removes an entry from consideration without deleting its
// history.
func (w *WaitingList) DeactivateEntry(ctx context.Context, actor, entryID string) (domain.Result, error) {
	if err := w.authorize(ctx, actor, opDeactivateEntry); err != nil {
		return domain.Result{}, err
	}
	var deactivated domain.WaitingListEntry
	res, err := w.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		deactivated, txErr = tx.UpdateWaitingEntry(entryID, func(e *domain.WaitingListEntry) error {
			e.Active = false
			return nil
		})
		return txErr
	})
	if err != nil {
		return res, err
	}
	w.logger.Info("waiting list entry deactivated", zap.String("entry_id", entryID))
	w.publish(ctx, deactivated, "deactivated")
	return res, nil
}

// ListActive returns the active entries of one partition in registration order.
func (w *WaitingList) ListActive(organType domain.OrganType, region string) []domain.WaitingListEntry {
	var out []domain.WaitingListEntry
	for _, e := range w.store.ListWaitingEntries() {
		if e.Active && e.OrganType == organType && e.Region == region {
			out = append(out, e)
		}
	}
	return out
}

// ListActiveAll returns the active entries for an organ type across every
// region, in registration order.
func (w *WaitingList) ListActiveAll(organType domain.OrganType) []domain.WaitingListEntry {
	var out []domain.WaitingListEntry
	for _, e := range w.store.ListWaitingEntries() {
		if e.Active && e.OrganType == organType {
			out = append(out, e)
		}
	}
	return out
}

// Prioritize returns the partition's active entries in allocation order. An
// empty partition is an error so callers can distinguish "nobody waiting"
// from an empty result set.
func (w *WaitingList) Prioritize(organType domain.OrganType, region string) ([]domain.WaitingListEntry, error) {
	entries := w.ListActive(organType, region)
	if len(entries) == 0 {
		return nil, domain.EmptyWaitingListError{OrganType: organType, Region: region}
	}
	sortEntries(entries)
	return entries, nil
}

// sortEntries applies the canonical order: tier rank desc, urgency desc,
// registration time asc, entry ID asc. The input is already registration
// ordered, so the stable sort preserves that tie-break.
func sortEntries(entries []domain.WaitingListEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Tier.Rank() != b.Tier.Rank() {
			return a.Tier.Rank() > b.Tier.Rank()
		}
		if a.UrgencyLevel != b.UrgencyLevel {
			return a.UrgencyLevel > b.UrgencyLevel
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (w *WaitingList) authorize(ctx context.Context, actor, action string) error {
	if w.auth == nil {
		return nil
	}
	return w.auth.Authorize(ctx, actor, action)
}

func (w *WaitingList) publish(ctx context.Context, entry domain.WaitingListEntry, action string) {
	if w.publisher == nil {
		return
	}
	fact := events.Fact{
		Kind:        events.KindWaitingListUpdated,
		EntryID:     entry.ID,
		RecipientID: entry.RecipientID,
		Region:      entry.Region,
		Detail:      map[string]any{"action": action, "organ_type": string(entry.OrganType)},
		OccurredAt:  w.nowFn(),
	}
	if err := w.publisher.Publish(ctx, fact); err != nil {
		w.logger.Warn("publish waiting list fact failed", zap.Error(err))
	}
}

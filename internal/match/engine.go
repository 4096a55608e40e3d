package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"organcore/internal/events"
	"organcore/pkg/domain"
)

// Engine operation names used for metrics, tracing, and audit.
const (
	opFindCompatible = "find_compatible_recipients"
	opAllocate       = "allocate"
	opSetWeight      = "set_scoring_weight"
	opSweepExpired   = "sweep_expired"
)

const defaultLookupTimeout = 5 * time.Second

// Candidate pairs a waiting-list entry with the score it received against a
// specific organ.
type Candidate struct {
	EntryID     string
	RecipientID string
	Region      string
	Score       domain.MatchScore
}

// AllocationRequest carries the inputs of an allocation attempt. Notes is
// free-text context recorded on the resulting proposal.
type AllocationRequest struct {
	OrganID     string
	RecipientID string
	HospitalID  string
	RequestedBy string
	Emergency   bool
	Notes       string
}

// Engine coordinates scoring, eligibility, and the atomic allocation commit.
// Allocation attempts for the same organ are serialized through a per-organ
// lock; attempts for different organs proceed concurrently.
type Engine struct {
	store      domain.PersistentStore
	waiting    *WaitingList
	organs     OrganRegistry
	recipients RecipientRegistry
	quality    QualityService
	scorer     *Scorer

	auth          Authorizer
	publisher     events.Publisher
	logger        *zap.Logger
	metrics       MetricsRecorder
	tracer        Tracer
	audit         AuditLogger
	nowFn         func() time.Time
	window        time.Duration
	lookupTimeout time.Duration

	organLocks keyedMutex
}

// EngineOption configures optional collaborators.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPublisher sets the fact publisher.
func WithPublisher(p events.Publisher) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithAuditLogger sets the audit sink.
func WithAuditLogger(a AuditLogger) EngineOption {
	return func(e *Engine) { e.audit = a }
}

// WithAuthorizer sets the role checker for mutating operations.
func WithAuthorizer(a Authorizer) EngineOption {
	return func(e *Engine) { e.auth = a }
}

// WithScorer overrides the default scorer.
func WithScorer(s *Scorer) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithNow overrides the time provider. Intended for tests.
func WithNow(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.nowFn = fn
		}
	}
}

// WithConfirmationWindow overrides the proposal expiry window.
func WithConfirmationWindow(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithLookupTimeout bounds collaborator lookup calls.
func WithLookupTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.lookupTimeout = d
		}
	}
}

// NewEngine constructs an allocation engine over the store and registries.
func NewEngine(store domain.PersistentStore, waiting *WaitingList, organs OrganRegistry, recipients RecipientRegistry, quality QualityService, opts ...EngineOption) *Engine {
	e := &Engine{
		store:         store,
		waiting:       waiting,
		organs:        organs,
		recipients:    recipients,
		quality:       quality,
		scorer:        NewScorer(nil),
		logger:        zap.NewNop(),
		nowFn:         func() time.Time { return time.Now().UTC() },
		window:        domain.ProposalTTL,
		lookupTimeout: defaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weights returns the current scoring parameter set.
func (e *Engine) Weights() domain.ScoringWeights { return e.store.Weights() }

// FindCompatibleRecipients scores the organ against its regional waiting list
// and returns the compatible candidates in waiting-list order. An empty
// partition yields an empty result, not an error.
func (e *Engine) FindCompatibleRecipients(ctx context.Context, organID string) (candidates []Candidate, err error) {
	defer e.observe(ctx, opFindCompatible, e.nowFn(), &err, "", organID, "")

	organ, err := e.getOrgan(ctx, organID)
	if err != nil {
		return nil, err
	}
	if organ.Status != domain.OrganStatusAvailable {
		return nil, domain.OrganNotAvailableError{OrganID: organID, Status: organ.Status}
	}
	donorRegion, err := e.donorRegion(ctx, organ.DonorID)
	if err != nil {
		return nil, err
	}

	entries, perr := e.waiting.Prioritize(organ.Type, donorRegion)
	if perr != nil {
		return nil, nil
	}
	weights := e.store.Weights()

	for _, entry := range entries {
		recipient, rerr := e.getRecipient(ctx, entry.RecipientID)
		if rerr != nil {
			// A candidate whose facts cannot be resolved is skipped, not fatal.
			e.logger.Warn("recipient lookup failed during matching",
				zap.String("recipient_id", entry.RecipientID), zap.Error(rerr))
			continue
		}
		quality := e.qualityCheck(ctx, organID, entry.RecipientID)
		score := e.scorer.Score(organ, donorRegion, recipient, entry, quality, weights)
		if score.Compatible {
			candidates = append(candidates, Candidate{
				EntryID:     entry.ID,
				RecipientID: entry.RecipientID,
				Region:      entry.Region,
				Score:       score,
			})
		}
	}
	return candidates, nil
}

// Allocate commits the organ to the recipient: the score is recomputed from
// current state, the organ transitions to Matched, the recipient's entry is
// deactivated, and a Matched proposal plus a history record are written in a
// single transaction. A second allocation of the same organ fails with
// OrganNotAvailableError.
func (e *Engine) Allocate(ctx context.Context, req AllocationRequest) (proposal domain.MatchProposal, res domain.Result, err error) {
	defer e.observe(ctx, opAllocate, e.nowFn(), &err, req.RequestedBy, req.OrganID, req.RecipientID)

	if err = e.authorize(ctx, req.RequestedBy, opAllocate); err != nil {
		return domain.MatchProposal{}, domain.Result{}, err
	}

	unlock := e.organLocks.lock(req.OrganID)
	defer unlock()

	organ, err := e.getOrgan(ctx, req.OrganID)
	if err != nil {
		return domain.MatchProposal{}, domain.Result{}, err
	}
	if organ.Status != domain.OrganStatusAvailable {
		err = domain.OrganNotAvailableError{OrganID: req.OrganID, Status: organ.Status}
		return domain.MatchProposal{}, domain.Result{}, err
	}
	entry, ok := e.store.FindActiveEntry(req.RecipientID, organ.Type)
	if !ok {
		err = domain.RecipientNotEligibleError{
			RecipientID: req.RecipientID, OrganID: req.OrganID,
			Reason: fmt.Sprintf("no active %s waiting-list entry", organ.Type),
		}
		return domain.MatchProposal{}, domain.Result{}, err
	}
	recipient, err := e.getRecipient(ctx, req.RecipientID)
	if err != nil {
		return domain.MatchProposal{}, domain.Result{}, fmt.Errorf("resolve recipient: %w", err)
	}
	donorRegion, err := e.donorRegion(ctx, organ.DonorID)
	if err != nil {
		return domain.MatchProposal{}, domain.Result{}, err
	}

	quality := e.qualityCheck(ctx, req.OrganID, req.RecipientID)
	weights := e.store.Weights()
	score := e.scorer.Score(organ, donorRegion, recipient, entry, quality, weights)
	if !score.Compatible {
		err = domain.RecipientNotEligibleError{
			RecipientID: req.RecipientID, OrganID: req.OrganID,
			Total: score.Total, Minimum: weights.MinimumScore(),
		}
		return domain.MatchProposal{}, domain.Result{}, err
	}

	now := e.nowFn()
	proposal = domain.MatchProposal{
		Base:        domain.Base{ID: uuid.NewString()},
		OrganID:     req.OrganID,
		RecipientID: req.RecipientID,
		HospitalID:  req.HospitalID,
		Score:       score,
		Status:      domain.ProposalStatusMatched,
		ExpiresAt:   now.Add(e.window),
		Emergency:   req.Emergency,
		Notes:       req.Notes,
	}

	// Registry transition first, store commit second. A failed commit rolls
	// the registry back so the organ is not stranded in Matched.
	if err = e.organs.SetStatus(ctx, req.OrganID, domain.OrganStatusMatched, req.RecipientID, req.HospitalID); err != nil {
		err = fmt.Errorf("transition organ %s: %w", req.OrganID, err)
		return domain.MatchProposal{}, domain.Result{}, err
	}
	res, err = e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current, found := tx.FindActiveEntry(req.RecipientID, organ.Type)
		if !found {
			return domain.RecipientNotEligibleError{
				RecipientID: req.RecipientID, OrganID: req.OrganID,
				Reason: "waiting-list entry deactivated concurrently",
			}
		}
		var txErr error
		if proposal, txErr = tx.CreateProposal(proposal); txErr != nil {
			return txErr
		}
		if _, txErr = tx.UpdateWaitingEntry(current.ID, func(w *domain.WaitingListEntry) error {
			w.Active = false
			return nil
		}); txErr != nil {
			return txErr
		}
		_, txErr = tx.CreateAllocation(domain.AllocationRecord{
			OrganID:     req.OrganID,
			RecipientID: req.RecipientID,
			ProposalID:  proposal.ID,
			HospitalID:  req.HospitalID,
			Score:       score,
			Emergency:   req.Emergency,
		})
		return txErr
	})
	if err != nil {
		if rbErr := e.organs.SetStatus(ctx, req.OrganID, domain.OrganStatusAvailable, "", ""); rbErr != nil {
			e.logger.Error("organ status rollback failed",
				zap.String("organ_id", req.OrganID), zap.Error(rbErr))
		}
		return domain.MatchProposal{}, res, err
	}

	e.logger.Info("organ allocated",
		zap.String("organ_id", req.OrganID),
		zap.String("recipient_id", req.RecipientID),
		zap.String("proposal_id", proposal.ID),
		zap.Int("score", score.Total),
		zap.Bool("emergency", req.Emergency))
	e.publish(ctx, events.Fact{
		Kind: events.KindProposalCreated, OrganID: req.OrganID, RecipientID: req.RecipientID,
		Detail: map[string]any{"proposal_id": proposal.ID, "expires_at": proposal.ExpiresAt, "score": score.Total},
	})
	e.publish(ctx, events.Fact{
		Kind: events.KindOrganAllocated, OrganID: req.OrganID, RecipientID: req.RecipientID, EntryID: entry.ID,
		Detail: map[string]any{"hospital_id": req.HospitalID, "emergency": req.Emergency},
	})
	return proposal, res, nil
}

// SetScoringWeight updates one named scoring parameter. The new value is
// visible to every scoring decision after the commit returns.
func (e *Engine) SetScoringWeight(ctx context.Context, actor, name string, value float64) (weights domain.ScoringWeights, res domain.Result, err error) {
	defer e.observe(ctx, opSetWeight, e.nowFn(), &err, actor, "", "")

	if err = e.authorize(ctx, actor, opSetWeight); err != nil {
		return nil, domain.Result{}, err
	}
	if name == "" {
		err = fmt.Errorf("weight name required")
		return nil, domain.Result{}, err
	}
	if value < 0 {
		err = fmt.Errorf("weight %q must not be negative", name)
		return nil, domain.Result{}, err
	}

	res, err = e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		next := tx.Snapshot().Weights().Clone()
		next[name] = value
		var txErr error
		weights, txErr = tx.SetWeights(next)
		return txErr
	})
	if err != nil {
		return nil, res, err
	}
	e.logger.Info("scoring weight updated",
		zap.String("actor", actor), zap.String("name", name), zap.Float64("value", value))
	e.publish(ctx, events.Fact{
		Kind:   events.KindWeightsUpdated,
		Detail: map[string]any{"name": name, "value": value, "actor": actor},
	})
	return weights, res, nil
}

// SweepExpired transitions Matched proposals past their expiry to Expired and
// returns how many were swept. It is invoked by an external scheduler; the
// engine never runs it on its own timer.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (swept int, err error) {
	defer e.observe(ctx, opSweepExpired, e.nowFn(), &err, "", "", "")

	var expired []string
	for _, p := range e.store.ListProposals() {
		if p.Status == domain.ProposalStatusMatched && p.ExpiresAt.Before(now) {
			expired = append(expired, p.ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	_, err = e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, id := range expired {
			if _, txErr := tx.UpdateProposal(id, func(p *domain.MatchProposal) error {
				if p.Status != domain.ProposalStatusMatched || !p.ExpiresAt.Before(now) {
					return nil
				}
				p.Status = domain.ProposalStatusExpired
				swept++
				return nil
			}); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		e.logger.Info("expired proposals swept", zap.Int("count", swept))
	}
	return swept, nil
}

// getOrgan resolves the organ with a bounded lookup.
func (e *Engine) getOrgan(ctx context.Context, organID string) (domain.OrganRecord, error) {
	lctx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()
	return e.organs.GetOrgan(lctx, organID)
}

func (e *Engine) donorRegion(ctx context.Context, donorID string) (string, error) {
	lctx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()
	region, err := e.organs.DonorRegion(lctx, donorID)
	if err != nil {
		return "", fmt.Errorf("resolve donor region: %w", err)
	}
	return region, nil
}

func (e *Engine) getRecipient(ctx context.Context, recipientID string) (domain.RecipientFacts, error) {
	lctx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()
	return e.recipients.GetRecipient(lctx, recipientID)
}

// qualityCheck degrades to QualityUnknown when the quality service cannot be
// reached; scoring fails open, never the operation.
func (e *Engine) qualityCheck(ctx context.Context, organID, recipientID string) QualityResult {
	if e.quality == nil {
		return QualityUnknown
	}
	lctx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()
	result, err := e.quality.Compatible(lctx, organID, recipientID)
	if err != nil {
		e.logger.Warn("quality service unavailable",
			zap.String("organ_id", organID), zap.String("recipient_id", recipientID), zap.Error(err))
		return QualityUnknown
	}
	return result
}

func (e *Engine) authorize(ctx context.Context, actor, action string) error {
	if e.auth == nil {
		return nil
	}
	return e.auth.Authorize(ctx, actor, action)
}

func (e *Engine) publish(ctx context.Context, fact events.Fact) {
	if e.publisher == nil {
		return
	}
	if fact.OccurredAt.IsZero() {
		fact.OccurredAt = e.nowFn()
	}
	if err := e.publisher.Publish(ctx, fact); err != nil {
		e.logger.Warn("publish fact failed", zap.String("kind", string(fact.Kind)), zap.Error(err))
	}
}

// observe feeds the operation outcome to the metrics, tracing, and audit
// sinks. Designed for use in a defer with a named error return.
func (e *Engine) observe(ctx context.Context, operation string, started time.Time, errp *error, actor, organID, recipientID string) {
	err := *errp
	duration := e.nowFn().Sub(started)
	success := err == nil
	if e.metrics != nil {
		e.metrics.Observe(ctx, operation, success, duration)
	}
	if e.tracer != nil {
		_, span := e.tracer.Start(ctx, operation)
		span.End(err)
	}
	if e.audit != nil {
		status := "success"
		var errMsg string
		if err != nil {
			status = "error"
			errMsg = err.Error()
		}
		e.audit.Record(ctx, AuditEntry{
			Operation:   operation,
			Actor:       actor,
			OrganID:     organID,
			RecipientID: recipientID,
			Status:      status,
			Error:       errMsg,
			DurationMS:  float64(duration) / float64(time.Millisecond),
			OccurredAt:  e.nowFn(),
		})
	}
}

// keyedMutex serializes critical sections per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for key and returns the release function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

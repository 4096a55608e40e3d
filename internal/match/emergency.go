package match

import (
	"context"

	"go.uber.org/zap"

	"organcore/internal/events"
	"organcore/pkg/domain"
)

const defaultEmergencyHospital = "emergency-coordination"

// EmergencyMatcher widens the search to every region within a distance of the
// donor region, picks the highest-scoring compatible candidate, and delegates
// the commit to the engine's normal allocation path.
type EmergencyMatcher struct {
	engine   *Engine
	distance RegionDistance
	hospital string
	logger   *zap.Logger
}

// EmergencyOption configures the matcher.
type EmergencyOption func(*EmergencyMatcher)

// WithDistance sets the region distance model used for the radius filter.
func WithDistance(d RegionDistance) EmergencyOption {
	return func(m *EmergencyMatcher) { m.distance = d }
}

// WithCoordinatingHospital sets the hospital recorded on emergency proposals.
func WithCoordinatingHospital(id string) EmergencyOption {
	return func(m *EmergencyMatcher) {
		if id != "" {
			m.hospital = id
		}
	}
}

// WithEmergencyLogger sets the structured logger.
func WithEmergencyLogger(logger *zap.Logger) EmergencyOption {
	return func(m *EmergencyMatcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewEmergencyMatcher constructs a matcher over the given engine.
func NewEmergencyMatcher(engine *Engine, opts ...EmergencyOption) *EmergencyMatcher {
	m := &EmergencyMatcher{
		engine:   engine,
		hospital: defaultEmergencyHospital,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Trigger flags the organ as an emergency case and searches every region
// within maxDistance of the donor region for the best compatible candidate.
// When a candidate is found the allocation is committed through Allocate and
// the proposal returned with matched true; when none is found the organ stays
// Available and matched is false.
func (m *EmergencyMatcher) Trigger(ctx context.Context, organID string, maxDistance float64) (domain.MatchProposal, bool, error) {
	e := m.engine

	organ, err := e.getOrgan(ctx, organID)
	if err != nil {
		return domain.MatchProposal{}, false, err
	}
	if organ.Status != domain.OrganStatusAvailable {
		return domain.MatchProposal{}, false, domain.OrganNotAvailableError{OrganID: organID, Status: organ.Status}
	}
	if err := e.organs.MarkEmergency(ctx, organID); err != nil {
		return domain.MatchProposal{}, false, err
	}
	donorRegion, err := e.donorRegion(ctx, organ.DonorID)
	if err != nil {
		return domain.MatchProposal{}, false, err
	}

	weights := e.store.Weights()

	var (
		best      domain.WaitingListEntry
		bestScore domain.MatchScore
		found     bool
	)
	for _, entry := range e.waiting.ListActiveAll(organ.Type) {
		if m.distance != nil && maxDistance > 0 && m.distance(donorRegion, entry.Region) > maxDistance {
			continue
		}
		recipient, rerr := e.getRecipient(ctx, entry.RecipientID)
		if rerr != nil {
			m.logger.Warn("recipient lookup failed during emergency search",
				zap.String("recipient_id", entry.RecipientID), zap.Error(rerr))
			continue
		}
		quality := e.qualityCheck(ctx, organID, entry.RecipientID)
		score := e.scorer.Score(organ, donorRegion, recipient, entry, quality, weights)
		if !score.Compatible {
			continue
		}
		if !found || betterCandidate(entry, score, best, bestScore) {
			best, bestScore, found = entry, score, true
		}
	}

	if !found {
		m.logger.Info("emergency match found no candidate",
			zap.String("organ_id", organID), zap.String("donor_region", donorRegion))
		e.publish(ctx, events.Fact{
			Kind: events.KindEmergencyMatch, OrganID: organID, Region: donorRegion,
			Detail: map[string]any{"matched": false, "max_distance": maxDistance},
		})
		return domain.MatchProposal{}, false, nil
	}

	proposal, _, err := e.Allocate(ctx, AllocationRequest{
		OrganID:     organID,
		RecipientID: best.RecipientID,
		HospitalID:  m.hospital,
		RequestedBy: "emergency-matcher",
		Emergency:   true,
	})
	if err != nil {
		return domain.MatchProposal{}, false, err
	}
	e.publish(ctx, events.Fact{
		Kind: events.KindEmergencyMatch, OrganID: organID, RecipientID: best.RecipientID, Region: best.Region,
		Detail: map[string]any{"matched": true, "score": bestScore.Total, "max_distance": maxDistance},
	})
	return proposal, true, nil
}

// betterCandidate prefers the higher total score, then the earlier
// registration, then the smaller entry ID.
func betterCandidate(entry domain.WaitingListEntry, score domain.MatchScore, best domain.WaitingListEntry, bestScore domain.MatchScore) bool {
	if score.Total != bestScore.Total {
		return score.Total > bestScore.Total
	}
	if !entry.CreatedAt.Equal(best.CreatedAt) {
		return entry.CreatedAt.Before(best.CreatedAt)
	}
	return entry.ID < best.ID
}

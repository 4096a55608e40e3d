package match

import "organcore/pkg/domain"

// GeoScore computes the geographic score component from the donor and
// recipient regions. The default returns a flat placeholder value pending a
// real distance model.
type GeoScore func(donorRegion, recipientRegion string) int

const geoPlaceholder = 10

// Scorer computes deterministic match scores. It holds no mutable state, so
// a single instance is safe for concurrent use.
type Scorer struct {
	geo GeoScore
}

// NewScorer constructs a scorer. A nil geo hook falls back to the placeholder.
func NewScorer(geo GeoScore) *Scorer {
	if geo == nil {
		geo = func(string, string) int { return geoPlaceholder }
	}
	return &Scorer{geo: geo}
}

// Score evaluates one organ against one waiting-list candidate. Total is the
// exact sum of the five components; each component is clamped to its
// configured ceiling.
func (s *Scorer) Score(organ domain.OrganRecord, donorRegion string, recipient domain.RecipientFacts, entry domain.WaitingListEntry, quality QualityResult, weights domain.ScoringWeights) domain.MatchScore {
	score := domain.MatchScore{
		BloodCompatibility: clampComponent(domain.BloodCompatibilityPoints(organ.BloodType, recipient.BloodType), weights.Value(domain.WeightBloodCompatibility)),
		Urgency:            clampComponent(urgencyPoints(entry.Tier), weights.Value(domain.WeightUrgency)),
		WaitingTime:        clampComponent(waitingTimePoints(entry.Tier), weights.Value(domain.WeightWaitingTime)),
		Geographic:         clampComponent(s.geo(donorRegion, recipient.Region), weights.Value(domain.WeightGeographic)),
		Medical:            clampComponent(medicalPoints(quality), weights.Value(domain.WeightMedical)),
	}
	score.Total = score.BloodCompatibility + score.Urgency + score.WaitingTime + score.Geographic + score.Medical
	score.Compatible = score.BloodCompatibility > 0 && float64(score.Total) >= weights.MinimumScore()
	return score
}

// urgencyPoints maps the candidate's priority tier to the urgency component.
func urgencyPoints(tier domain.PriorityTier) int {
	switch tier {
	case domain.TierEmergency:
		return 25
	case domain.TierCritical:
		return 20
	case domain.TierHigh:
		return 15
	case domain.TierMedium:
		return 10
	case domain.TierLow:
		return 5
	default:
		return 0
	}
}

// waitingTimePoints is tier-derived rather than duration-derived; entries in
// the top tiers score higher regardless of how long they have waited.
func waitingTimePoints(tier domain.PriorityTier) int {
	switch tier {
	case domain.TierEmergency:
		return 20
	case domain.TierCritical:
		return 15
	default:
		return 10
	}
}

// medicalPoints scores the quality check outcome. An unreachable quality
// service degrades to the midpoint instead of failing the evaluation.
func medicalPoints(quality QualityResult) int {
	switch quality {
	case QualityValidated:
		return 10
	case QualityNotValidated:
		return 0
	default:
		return 5
	}
}

func clampComponent(v int, ceiling float64) int {
	if v < 0 {
		return 0
	}
	if ceiling >= 0 && float64(v) > ceiling {
		return int(ceiling)
	}
	return v
}

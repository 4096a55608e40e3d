package domain

// Canonical scoring parameter names. MinimumScore is the eligibility floor;
// the per-axis names are ceilings applied to the corresponding score component.
const (
	WeightMinimumScore       = "minimumScore"
	WeightBloodCompatibility = "bloodCompatibility"
	WeightUrgency            = "urgency"
	WeightWaitingTime        = "waitingTime"
	WeightGeographic         = "geographic"
	WeightMedical            = "medical"
)

// ScoringWeights holds the named numeric parameters consumed by the scorer.
// The set is mutable only through the administrative weight operation; readers
// always receive a copy.
type ScoringWeights map[string]float64

// DefaultScoringWeights returns the parameter set the engine starts with.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		WeightMinimumScore:       40,
		WeightBloodCompatibility: 30,
		WeightUrgency:            25,
		WeightWaitingTime:        20,
		WeightGeographic:         15,
		WeightMedical:            10,
	}
}

// Clone returns an independent copy. A nil receiver clones to the defaults.
func (w ScoringWeights) Clone() ScoringWeights {
	if w == nil {
		return DefaultScoringWeights()
	}
	out := make(ScoringWeights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Value returns the named parameter, falling back to the default set when the
// name is absent.
func (w ScoringWeights) Value(name string) float64 {
	if w != nil {
		if v, ok := w[name]; ok {
			return v
		}
	}
	return DefaultScoringWeights()[name]
}

// MinimumScore returns the eligibility floor.
func (w ScoringWeights) MinimumScore() float64 { return w.Value(WeightMinimumScore) }

package domain

import "testing"

func TestScoringWeightsDefaults(t *testing.T) {
	w := DefaultScoringWeights()
	if got := w.MinimumScore(); got != 40 {
		t.Fatalf("minimum score = %g, want 40", got)
	}
	if got := w.Value(WeightBloodCompatibility); got != 30 {
		t.Fatalf("blood weight = %g, want 30", got)
	}
}

func TestScoringWeightsCloneIsIndependent(t *testing.T) {
	w := DefaultScoringWeights()
	clone := w.Clone()
	clone[WeightMinimumScore] = 99
	if w.MinimumScore() != 40 {
		t.Fatalf("clone mutation leaked into source")
	}
	var nilSet ScoringWeights
	if nilSet.Clone().MinimumScore() != 40 {
		t.Fatalf("nil clone should carry defaults")
	}
}

func TestScoringWeightsValueFallback(t *testing.T) {
	w := ScoringWeights{WeightMinimumScore: 55}
	if got := w.MinimumScore(); got != 55 {
		t.Fatalf("minimum score = %g, want 55", got)
	}
	if got := w.Value(WeightUrgency); got != 25 {
		t.Fatalf("missing key should fall back to default, got %g", got)
	}
}

func TestTierRankOrdering(t *testing.T) {
	order := []PriorityTier{TierLow, TierMedium, TierHigh, TierCritical, TierEmergency}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("expected %s to outrank %s", order[i], order[i-1])
		}
	}
	if PriorityTier("bogus").Valid() {
		t.Fatalf("unknown tier must be invalid")
	}
}

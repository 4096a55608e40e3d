package match

import (
	"testing"

	"organcore/pkg/domain"
)

func TestScoreTotalIsSumOfComponents(t *testing.T) {
	scorer := NewScorer(nil)
	organ := domain.OrganRecord{ID: "organ-1", Type: domain.OrganHeart, BloodType: "O-", Status: domain.OrganStatusAvailable}
	recipient := domain.RecipientFacts{ID: "rcp-1", BloodType: "A+", Region: "north"}
	entry := domain.WaitingListEntry{RecipientID: "rcp-1", OrganType: domain.OrganHeart, Region: "north", UrgencyLevel: 9, Tier: domain.TierEmergency}

	score := scorer.Score(organ, "north", recipient, entry, QualityNotValidated, domain.DefaultScoringWeights())

	if score.BloodCompatibility != 25 {
		t.Fatalf("blood component = %d, want 25", score.BloodCompatibility)
	}
	if score.Urgency != 25 {
		t.Fatalf("urgency component = %d, want 25", score.Urgency)
	}
	if score.WaitingTime != 20 {
		t.Fatalf("waiting time component = %d, want 20", score.WaitingTime)
	}
	if score.Geographic != 10 {
		t.Fatalf("geographic component = %d, want 10", score.Geographic)
	}
	if score.Medical != 0 {
		t.Fatalf("medical component = %d, want 0", score.Medical)
	}
	want := score.BloodCompatibility + score.Urgency + score.WaitingTime + score.Geographic + score.Medical
	if score.Total != want || score.Total != 80 {
		t.Fatalf("total = %d, want %d (and 80)", score.Total, want)
	}
	if !score.Compatible {
		t.Fatal("expected compatible score")
	}
}

func TestScoreIncompatibleBloodNeverCompatible(t *testing.T) {
	scorer := NewScorer(nil)
	organ := domain.OrganRecord{ID: "organ-1", Type: domain.OrganLiver, BloodType: "A+"}
	recipient := domain.RecipientFacts{ID: "rcp-1", BloodType: "O-", Region: "north"}
	entry := domain.WaitingListEntry{Tier: domain.TierEmergency, UrgencyLevel: 10}

	score := scorer.Score(organ, "north", recipient, entry, QualityValidated, domain.DefaultScoringWeights())

	if score.BloodCompatibility != 0 {
		t.Fatalf("blood component = %d, want 0", score.BloodCompatibility)
	}
	// Other components still push the total past the threshold; the blood
	// gate must win regardless.
	if float64(score.Total) < domain.DefaultScoringWeights().MinimumScore() {
		t.Fatalf("test setup broken: total %d below minimum", score.Total)
	}
	if score.Compatible {
		t.Fatal("incompatible blood must never produce a compatible score")
	}
}

func TestScoreThresholdMonotonic(t *testing.T) {
	scorer := NewScorer(nil)
	organ := domain.OrganRecord{ID: "organ-1", Type: domain.OrganKidneys, BloodType: "B+"}
	recipient := domain.RecipientFacts{ID: "rcp-1", BloodType: "B+", Region: "south"}
	entry := domain.WaitingListEntry{Tier: domain.TierLow, UrgencyLevel: 2}

	weights := domain.DefaultScoringWeights()
	score := scorer.Score(organ, "south", recipient, entry, QualityUnknown, weights)
	// Exact blood 30 + low urgency 5 + waiting 10 + geo 10 + unknown medical 5.
	if score.Total != 60 {
		t.Fatalf("total = %d, want 60", score.Total)
	}
	if !score.Compatible {
		t.Fatal("expected compatible at default minimum")
	}

	weights[domain.WeightMinimumScore] = 70
	raised := scorer.Score(organ, "south", recipient, entry, QualityUnknown, weights)
	if raised.Total != score.Total {
		t.Fatalf("total changed with minimum: %d vs %d", raised.Total, score.Total)
	}
	if raised.Compatible {
		t.Fatal("raising the minimum above the total must flip compatibility")
	}
}

func TestScoreComponentsClampedToCeilings(t *testing.T) {
	scorer := NewScorer(nil)
	organ := domain.OrganRecord{ID: "organ-1", Type: domain.OrganHeart, BloodType: "A+"}
	recipient := domain.RecipientFacts{ID: "rcp-1", BloodType: "A+", Region: "east"}
	entry := domain.WaitingListEntry{Tier: domain.TierEmergency, UrgencyLevel: 10}

	weights := domain.ScoringWeights{
		domain.WeightMinimumScore:       10,
		domain.WeightBloodCompatibility: 12,
		domain.WeightUrgency:            7,
		domain.WeightWaitingTime:        4,
		domain.WeightGeographic:         3,
		domain.WeightMedical:            2,
	}
	score := scorer.Score(organ, "east", recipient, entry, QualityValidated, weights)

	if score.BloodCompatibility != 12 {
		t.Fatalf("blood clamped to %d, want 12", score.BloodCompatibility)
	}
	if score.Urgency != 7 {
		t.Fatalf("urgency clamped to %d, want 7", score.Urgency)
	}
	if score.WaitingTime != 4 {
		t.Fatalf("waiting time clamped to %d, want 4", score.WaitingTime)
	}
	if score.Geographic != 3 {
		t.Fatalf("geographic clamped to %d, want 3", score.Geographic)
	}
	if score.Medical != 2 {
		t.Fatalf("medical clamped to %d, want 2", score.Medical)
	}
	if score.Total != 28 {
		t.Fatalf("total = %d, want 28", score.Total)
	}
}

func TestScoreMedicalOutcomes(t *testing.T) {
	scorer := NewScorer(nil)
	organ := domain.OrganRecord{ID: "organ-1", Type: domain.OrganHeart, BloodType: "O+"}
	recipient := domain.RecipientFacts{ID: "rcp-1", BloodType: "O+", Region: "west"}
	entry := domain.WaitingListEntry{Tier: domain.TierMedium, UrgencyLevel: 5}
	weights := domain.DefaultScoringWeights()

	cases := []struct {
		name    string
		quality QualityResult
		want    int
	}{
		{"validated", QualityValidated, 10},
		{"not validated", QualityNotValidated, 0},
		{"unknown", QualityUnknown, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score := scorer.Score(organ, "west", recipient, entry, tc.quality, weights)
			if score.Medical != tc.want {
				t.Fatalf("medical = %d, want %d", score.Medical, tc.want)
			}
		})
	}
}

func TestScoreCustomGeoHook(t *testing.T) {
	scorer := NewScorer(func(donor, rcpt string) int {
		if donor == rcpt {
			return 15
		}
		return 0
	})
	organ := domain.OrganRecord{ID: "organ-1", Type: domain.OrganLiver, BloodType: "AB+"}
	recipient := domain.RecipientFacts{ID: "rcp-1", BloodType: "AB+", Region: "north"}
	entry := domain.WaitingListEntry{Tier: domain.TierHigh, UrgencyLevel: 6}
	weights := domain.DefaultScoringWeights()

	same := scorer.Score(organ, "north", recipient, entry, QualityValidated, weights)
	if same.Geographic != 15 {
		t.Fatalf("geo = %d, want 15", same.Geographic)
	}
	far := scorer.Score(organ, "south", recipient, entry, QualityValidated, weights)
	if far.Geographic != 0 {
		t.Fatalf("geo = %d, want 0", far.Geographic)
	}
}

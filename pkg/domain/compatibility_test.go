package domain

import "testing"

func TestBloodCompatibilityPoints(t *testing.T) {
	cases := []struct {
		donor, recipient BloodType
		want             int
	}{
		{"A+", "A+", 30},
		{"O-", "O-", 30},
		{"O-", "A+", 25},
		{"O-", "AB+", 25},
		{"B+", "AB+", 25},
		{"O+", "A+", 20},
		{"A-", "A+", 20},
		{"B-", "AB-", 20},
		{"A+", "B+", 0},
		{"AB+", "O-", 0},
		{"X?", "A+", 0},
		{"A+", "", 0},
	}
	for _, tc := range cases {
		if got := BloodCompatibilityPoints(tc.donor, tc.recipient); got != tc.want {
			t.Fatalf("points(%s->%s) = %d, want %d", tc.donor, tc.recipient, got, tc.want)
		}
	}
}

func TestBloodCompatibleMatrixShape(t *testing.T) {
	// O- donates to every group, AB+ receives from every group.
	groups := []BloodType{"O-", "O+", "A-", "A+", "B-", "B+", "AB-", "AB+"}
	for _, g := range groups {
		if !BloodCompatible("O-", g) {
			t.Fatalf("expected O- compatible with %s", g)
		}
		if !BloodCompatible(g, "AB+") {
			t.Fatalf("expected %s compatible with AB+", g)
		}
	}
	// Rh-negative recipients never accept Rh-positive donors.
	for _, donor := range []BloodType{"O+", "A+", "B+", "AB+"} {
		for _, recipient := range []BloodType{"O-", "A-", "B-", "AB-"} {
			if BloodCompatible(donor, recipient) {
				t.Fatalf("unexpected compatibility %s -> %s", donor, recipient)
			}
		}
	}
}

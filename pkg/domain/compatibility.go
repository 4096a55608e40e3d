package domain

// bloodCompatible is the canonical ABO/Rh transfusion matrix: for each donor
// group, the recipient groups that can accept it.
var bloodCompatible = map[BloodType][]BloodType{
	"O-":  {"O-", "O+", "A-", "A+", "B-", "B+", "AB-", "AB+"},
	"O+":  {"O+", "A+", "B+", "AB+"},
	"A-":  {"A-", "A+", "AB-", "AB+"},
	"A+":  {"A+", "AB+"},
	"B-":  {"B-", "B+", "AB-", "AB+"},
	"B+":  {"B+", "AB+"},
	"AB-": {"AB-", "AB+"},
	"AB+": {"AB+"},
}

// BloodCompatible reports whether a recipient of the given group can accept
// the donor group. Unknown groups are never compatible.
func BloodCompatible(donor, recipient BloodType) bool {
	for _, r := range bloodCompatible[donor] {
		if r == recipient {
			return true
		}
	}
	return false
}

// BloodCompatibilityPoints scores a donor/recipient blood pairing: 30 for an
// exact match, 25 for the universal donor (O-) or universal recipient (AB+),
// 20 for any other compatible pairing, 0 otherwise.
func BloodCompatibilityPoints(donor, recipient BloodType) int {
	if !BloodCompatible(donor, recipient) {
		return 0
	}
	switch {
	case donor == recipient:
		return 30
	case donor == "O-":
		return 25
	case recipient == "AB+":
		return 25
	default:
		return 20
	}
}

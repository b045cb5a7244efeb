package triggers

import "careline/internal/domain"

// HighFlagPoints is added once when any open flag is High or Critical.
const HighFlagPoints = 2

// SeverityPoints counts one point per risk factor present plus HighFlagPoints
// when an open High/Critical flag exists.
func SeverityPoints(profile domain.ConditionProfile, flags []domain.Flag) int {
	points := len(RiskFactors(profile))
	if anyOpenHighOrCritical(flags) {
		points += HighFlagPoints
	}
	return points
}

// SeverityForPoints maps points onto the 1-4 ordinal. It never decreases as
// points increase.
func SeverityForPoints(points int) domain.Severity {
	switch {
	case points <= 1:
		return domain.SeveritySimple
	case points <= 3:
		return domain.SeverityModerate
	case points <= 5:
		return domain.SeverityComplex
	default:
		return domain.SeveritySeverelyComplex
	}
}

func openFlags(flags []domain.Flag) []domain.Flag {
	var open []domain.Flag
	for _, f := range flags {
		if f.Open() {
			open = append(open, f)
		}
	}
	return open
}

func anyOpenHighOrCritical(flags []domain.Flag) bool {
	for _, f := range openFlags(flags) {
		if f.Severity.HighOrCritical() {
			return true
		}
	}
	return false
}

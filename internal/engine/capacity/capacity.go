// Package capacity decides whether a caseworker can take on an incoming case
// without breaching the workload ceiling.
package capacity

import (
	"fmt"
	"math"

	"careline/internal/domain"
)

// epsilon absorbs float error when a fraction lands exactly on the amber threshold.
const epsilon = 1e-9

// Upper bounds on policy values.
const (
	MaxCeiling      = 100000
	MaxSeverityCost = 1000
)

// ValidatePolicy reports the first policy value outside its domain.
func ValidatePolicy(policy domain.WorkloadPolicy) error {
	if policy.MaxPoints < 0 || policy.MaxPoints > MaxCeiling {
		return domain.Invalid("max_points", "must be in [0, %d], got %d", MaxCeiling, policy.MaxPoints)
	}
	if math.IsNaN(policy.AmberThreshold) || policy.AmberThreshold <= 0 || policy.AmberThreshold > 1 {
		return domain.Invalid("amber_threshold", "must be in (0, 1], got %v", policy.AmberThreshold)
	}
	for _, s := range []domain.Severity{
		domain.SeveritySimple, domain.SeverityModerate, domain.SeverityComplex, domain.SeveritySeverelyComplex,
	} {
		cost, ok := policy.SeverityPoints[s]
		if !ok {
			return domain.Invalid("severity_points", "missing cost for severity %d", s)
		}
		if cost < 1 || cost > MaxSeverityCost {
			return domain.Invalid("severity_points", "cost for severity %d must be in [1, %d], got %d", s, MaxSeverityCost, cost)
		}
	}
	for s := range policy.SeverityPoints {
		if !s.Valid() {
			return domain.Invalid("severity_points", "unknown severity %d", s)
		}
	}
	return nil
}

// Evaluate projects the caseworker's load after taking a case of the incoming
// severity and classifies it against the policy.
func Evaluate(currentPoints int, incoming domain.Severity, policy domain.WorkloadPolicy) (domain.CapacityDecision, error) {
	if currentPoints < 0 {
		return domain.CapacityDecision{}, domain.Invalid("current_points", "must be >= 0, got %d", currentPoints)
	}
	if !incoming.Valid() {
		return domain.CapacityDecision{}, domain.Invalid("severity", "must be 1-4, got %d", incoming)
	}
	if err := ValidatePolicy(policy); err != nil {
		return domain.CapacityDecision{}, err
	}

	cost := policy.SeverityPoints[incoming]
	if currentPoints > math.MaxInt-cost {
		return domain.CapacityDecision{}, domain.Invalid("current_points", "load of %d points cannot take %d more", currentPoints, cost)
	}
	d := domain.CapacityDecision{
		IncomingSeverity: incoming,
		CurrentPoints:    currentPoints,
		IncomingPoints:   cost,
		ProjectedPoints:  currentPoints + cost,
		MaxPoints:        policy.MaxPoints,
	}

	if policy.MaxPoints == 0 {
		d.Status = domain.CapacityAmber
		d.AllowAssignment = true
		d.RequireSupervisorReview = true
		d.RequesterMessage = fmt.Sprintf("Assignment accepted pending supervisor review: no workload ceiling is set (load will be %d points).", d.ProjectedPoints)
		d.ReviewerMessage = "No workload ceiling is configured for this caseworker. Review the assignment manually and set a ceiling."
		return d, nil
	}

	frac := Fraction(d.ProjectedPoints, policy.MaxPoints)
	d.UtilizationPercent = Percent(frac)
	d.Status = Classify(frac, policy.AmberThreshold)

	switch d.Status {
	case domain.CapacityRed:
		d.RequireDirectorOverride = true
		d.RequesterMessage = fmt.Sprintf("Assignment blocked: load would reach %d/%d points (%.1f%%). A director override is required.",
			d.ProjectedPoints, d.MaxPoints, d.UtilizationPercent)
		d.ReviewerMessage = fmt.Sprintf("Assignment would put the caseworker at %.1f%% of the %d-point ceiling. Director override required before the case can be assigned.",
			d.UtilizationPercent, d.MaxPoints)
	case domain.CapacityAmber:
		d.AllowAssignment = true
		d.RequireSupervisorReview = true
		d.RequesterMessage = fmt.Sprintf("Assignment accepted pending supervisor review: load will be %d/%d points (%.1f%%).",
			d.ProjectedPoints, d.MaxPoints, d.UtilizationPercent)
		d.ReviewerMessage = fmt.Sprintf("Caseworker load reaches %.1f%% of the %d-point ceiling (amber at %.0f%%). Review the assignment.",
			d.UtilizationPercent, d.MaxPoints, policy.AmberThreshold*100)
	default:
		d.AllowAssignment = true
		d.RequesterMessage = fmt.Sprintf("Assignment accepted: load will be %d/%d points (%.1f%%).",
			d.ProjectedPoints, d.MaxPoints, d.UtilizationPercent)
	}
	return d, nil
}

// Fraction is points over the ceiling; a zero ceiling reports 0.
func Fraction(points, maxPoints int) float64 {
	if maxPoints <= 0 {
		return 0
	}
	return float64(points) / float64(maxPoints)
}

// Percent converts a fraction to a percentage rounded to one decimal.
func Percent(frac float64) float64 {
	return math.Round(frac*1000) / 10
}

// Classify maps a utilization fraction onto Green/Amber/Red. Both boundaries
// are inclusive on the upper band.
func Classify(frac, amberThreshold float64) domain.CapacityStatus {
	switch {
	case frac >= 1-epsilon:
		return domain.CapacityRed
	case frac >= amberThreshold-epsilon:
		return domain.CapacityAmber
	default:
		return domain.CapacityGreen
	}
}

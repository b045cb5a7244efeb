package triggers

import (
	"math"

	"careline/internal/domain"
)

const (
	defaultEngagement   = 5.0
	defaultPlanProgress = 5.0

	stabilityNoOpenFlags = 7.0
	stabilityOpenFlags   = 5.0
	stabilityHighFlags   = 3.0

	minScore = 1.0
	maxScore = 10.0
)

// RedBelow and GreenFrom bound the AMBER vitality band.
const (
	RedBelow  = 4.0
	GreenFrom = 8.0
)

// Vitality averages engagement, plan progress and risk stability, each clamped
// to [1,10], and rounds to one decimal. Risk stability is inferred from flags
// when not supplied.
func Vitality(flags []domain.Flag, in *domain.VitalityInputs) float64 {
	var engagement, progress, stability *float64
	if in != nil {
		engagement, progress, stability = in.Engagement, in.PlanProgress, in.RiskStability
	}
	e := clamp(scoreOr(engagement, defaultEngagement))
	p := clamp(scoreOr(progress, defaultPlanProgress))
	s := clamp(scoreOr(stability, inferredStability(flags)))
	return round1((e + p + s) / 3.0)
}

// Status applies RED before AMBER: vitality below 4 or an open High/Critical
// flag is RED; vitality below 8 or any open flag is AMBER; otherwise GREEN.
func Status(vitality float64, flags []domain.Flag) domain.RAGStatus {
	switch {
	case vitality < RedBelow || anyOpenHighOrCritical(flags):
		return domain.RAGRed
	case vitality < GreenFrom || len(openFlags(flags)) > 0:
		return domain.RAGAmber
	default:
		return domain.RAGGreen
	}
}

func inferredStability(flags []domain.Flag) float64 {
	switch {
	case anyOpenHighOrCritical(flags):
		return stabilityHighFlags
	case len(openFlags(flags)) > 0:
		return stabilityOpenFlags
	default:
		return stabilityNoOpenFlags
	}
}

// scoreOr treats nil and non-finite values as absent.
func scoreOr(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return def
	}
	return *v
}

func clamp(v float64) float64 {
	return math.Max(minScore, math.Min(maxScore, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

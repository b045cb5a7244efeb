// Package triggers maps a 4Ps condition profile to 10-Vs dimension triggers,
// required hard-stop actions, a suggested severity and a vitality/RAG status.
//
// Every function here is pure: no clock, no randomness, no I/O. Absent or
// malformed optional observations count as "not observed" so that missing
// data under-triggers instead of failing the evaluation.
package triggers

import (
	"math"
	"strings"

	"careline/internal/domain"
)

// Source labels for TriggerRecord.Source.
const (
	SourcePhysical      = "Physical"
	SourcePsychological = "Psychological"
	SourcePsychosocial  = "Psychosocial"
	SourceProfessional  = "Professional"
	SourceClient        = "Client"
	SourceGlobal        = "Global"
)

// PainThreshold is the pain level (0-10 scale) at or above which pain triggers.
const PainThreshold = 7.0

type hit struct {
	dim    domain.Dimension
	reason string
}

// rule is one row of the 4Ps -> 10-Vs table. Rules marked factor also count
// one severity point when they match.
type rule struct {
	name   string
	source string
	factor bool
	match  func(p domain.ConditionProfile, c domain.ClientContext) bool
	hits   []hit
}

var table = []rule{
	{
		name:   "pain",
		source: SourcePhysical,
		factor: true,
		match:  func(p domain.ConditionProfile, _ domain.ClientContext) bool { return painAtOrAbove(p, PainThreshold) },
		hits: []hit{
			{domain.DimViability, "Pain ≥ 7/10 (Physical)"},
			{domain.DimVision, "Pain ≥ 7/10 (Physical)"},
			{domain.DimVigilance, "Pain ≥ 7/10 (Physical) – High risk for deterioration"},
		},
	},
	{
		name:   "uncontrolled_condition",
		source: SourcePhysical,
		factor: true,
		match: func(p domain.ConditionProfile, _ domain.ClientContext) bool {
			return yes(p.Physical.UncontrolledCondition)
		},
		hits: []hit{
			{domain.DimViability, "Uncontrolled chronic condition (Physical)"},
			{domain.DimVision, "Uncontrolled chronic condition – requires clearer trajectory"},
			{domain.DimVerification, "Uncontrolled chronic condition – verify guideline alignment & payer expectations"},
		},
	},
	{
		name:   "depression_anxiety",
		source: SourcePsychological,
		factor: true,
		match: func(p domain.ConditionProfile, _ domain.ClientContext) bool {
			return yes(p.Psychological.PositiveDepressionAnxiety)
		},
		hits: []hit{
			{domain.DimViability, "Positive depression/anxiety screen"},
			{domain.DimVision, "Positive depression/anxiety – recovery vision affected"},
			{domain.DimVeracity, "Positive depression/anxiety – requires clear documentation & advocacy"},
			{domain.DimVigilance, "Positive depression/anxiety – increased vigilance needed"},
		},
	},
	{
		name:   "high_stress",
		source: SourcePsychological,
		factor: true,
		match:  func(p domain.ConditionProfile, _ domain.ClientContext) bool { return yes(p.Psychological.HighStress) },
		hits: []hit{
			{domain.DimViability, "Reported high stress"},
			{domain.DimVision, "Reported high stress – impacts client’s ability to pursue plan"},
		},
	},
	{
		name:   "sdoh_barrier",
		source: SourcePsychosocial,
		factor: true,
		match:  func(p domain.ConditionProfile, _ domain.ClientContext) bool { return yes(p.Psychosocial.SDOHBarrier) },
		hits: []hit{
			{domain.DimViability, "SDOH barrier present (transport/food/housing/safety)"},
			{domain.DimVeracity, "SDOH barrier – advocacy & documentation required"},
			{domain.DimVision, "SDOH barrier – plan path may need adjustment"},
		},
	},
	{
		name:   "limited_support",
		source: SourcePsychosocial,
		factor: true,
		match: func(p domain.ConditionProfile, _ domain.ClientContext) bool {
			return yes(p.Psychosocial.LimitedSupport)
		},
		hits: []hit{
			{domain.DimViability, "Limited social support"},
			{domain.DimVigilance, "Limited social support – higher risk of decompensation"},
		},
	},
	{
		name:   "unable_to_work",
		source: SourceProfessional,
		factor: true,
		match:  func(p domain.ConditionProfile, _ domain.ClientContext) bool { return yes(p.Professional.UnableToWork) },
		hits: []hit{
			{domain.DimVision, "Unable to work / role disruption"},
			{domain.DimViability, "Unable to work – financial/role viability impacted"},
		},
	},
	{
		name:   "accommodations_needed",
		source: SourceProfessional,
		factor: true,
		match: func(p domain.ConditionProfile, _ domain.ClientContext) bool {
			return yes(p.Professional.AccommodationsNeeded)
		},
		hits: []hit{
			{domain.DimVision, "Workplace accommodations needed"},
			{domain.DimVeracity, "Workplace accommodations – advocacy & documentation required"},
		},
	},
	{
		name:   "voice_view",
		source: SourceClient,
		match:  func(_ domain.ConditionProfile, c domain.ClientContext) bool { return hasNarrative(c) },
		hits: []hit{
			{domain.DimVoiceView, "Client’s direct voice/view and goals present"},
		},
	},
	{
		name:   "any_high_risk",
		source: SourceGlobal,
		factor: true,
		match:  func(p domain.ConditionProfile, _ domain.ClientContext) bool { return HighRisk(p) },
		hits: []hit{
			{domain.DimVigilance, "High-risk/uncontrolled finding (overall clinical impression)"},
		},
	},
}

// Evaluate runs the trigger table, severity derivation and vitality scoring.
// It is total: every input produces a result.
func Evaluate(profile domain.ConditionProfile, flags []domain.Flag, client domain.ClientContext) domain.EvaluationResult {
	recs := Triggers(profile, client)
	points := SeverityPoints(profile, flags)
	vitality := Vitality(flags, client.Vitality)
	return domain.EvaluationResult{
		Triggers:          recs,
		RequiredActions:   RequiredActions(recs),
		SuggestedSeverity: SeverityForPoints(points),
		SeverityPoints:    points,
		VitalityScore:     vitality,
		Status:            Status(vitality, flags),
	}
}

// Triggers applies the fixed table in order and returns every matching record.
func Triggers(profile domain.ConditionProfile, client domain.ClientContext) []domain.TriggerRecord {
	recs := []domain.TriggerRecord{}
	for _, r := range table {
		if !r.match(profile, client) {
			continue
		}
		for _, h := range r.hits {
			recs = append(recs, domain.TriggerRecord{Dimension: h.dim, Reason: h.reason, Source: r.source})
		}
	}
	return recs
}

// RiskFactors names the severity factors present in the profile, in table order.
func RiskFactors(profile domain.ConditionProfile) []string {
	var out []string
	for _, r := range table {
		if r.factor && r.match(profile, domain.ClientContext{}) {
			out = append(out, r.name)
		}
	}
	return out
}

// HighRisk is the aggregate high-risk finding: the clinician's overall
// impression, or any pain at or above threshold, or an uncontrolled condition.
func HighRisk(p domain.ConditionProfile) bool {
	return yes(p.AnyHighRisk) || painAtOrAbove(p, PainThreshold) || yes(p.Physical.UncontrolledCondition)
}

func yes(b *bool) bool {
	return b != nil && *b
}

// painLevel returns the pain observation if it is a finite value on the 0-10 scale.
func painLevel(p domain.ConditionProfile) (float64, bool) {
	v := p.Physical.PainLevel
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 || *v > 10 {
		return 0, false
	}
	return *v, true
}

func painAtOrAbove(p domain.ConditionProfile, threshold float64) bool {
	v, ok := painLevel(p)
	return ok && v >= threshold
}

func hasNarrative(c domain.ClientContext) bool {
	if strings.TrimSpace(c.VoiceView) != "" {
		return true
	}
	for _, g := range c.Goals {
		if strings.TrimSpace(g) != "" {
			return true
		}
	}
	return false
}

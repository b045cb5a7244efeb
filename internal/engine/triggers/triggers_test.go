package triggers_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careline/internal/domain"
	"careline/internal/engine/triggers"
)

const factorCount = 9

// profileFromMask sets one risk factor per bit, in the order the table lists them.
func profileFromMask(mask uint16) domain.ConditionProfile {
	var p domain.ConditionProfile
	on := func(bit int) bool { return mask&(1<<bit) != 0 }
	if on(0) {
		p.Physical.PainLevel = domain.Float(8)
	}
	if on(1) {
		p.Physical.UncontrolledCondition = domain.Bool(true)
	}
	if on(2) {
		p.Psychological.PositiveDepressionAnxiety = domain.Bool(true)
	}
	if on(3) {
		p.Psychological.HighStress = domain.Bool(true)
	}
	if on(4) {
		p.Psychosocial.SDOHBarrier = domain.Bool(true)
	}
	if on(5) {
		p.Psychosocial.LimitedSupport = domain.Bool(true)
	}
	if on(6) {
		p.Professional.UnableToWork = domain.Bool(true)
	}
	if on(7) {
		p.Professional.AccommodationsNeeded = domain.Bool(true)
	}
	if on(8) {
		p.AnyHighRisk = domain.Bool(true)
	}
	return p
}

var flagSeverities = []domain.FlagSeverity{
	domain.FlagLow, domain.FlagMedium, domain.FlagHigh, domain.FlagCritical, "Bogus", "",
}

func flagsFromCodes(codes []int) []domain.Flag {
	flags := make([]domain.Flag, 0, len(codes))
	for _, c := range codes {
		status := domain.FlagOpen
		if c%2 == 1 {
			status = domain.FlagResolved
		}
		flags = append(flags, domain.Flag{
			Severity: flagSeverities[(c/2)%len(flagSeverities)],
			Status:   status,
		})
	}
	return flags
}

func dims(recs []domain.TriggerRecord) map[domain.Dimension]bool {
	out := map[domain.Dimension]bool{}
	for _, r := range recs {
		out[r.Dimension] = true
	}
	return out
}

func TestPainAloneScenario(t *testing.T) {
	profile := domain.ConditionProfile{Physical: domain.PhysicalObservations{PainLevel: domain.Float(8)}}

	res := triggers.Evaluate(profile, nil, domain.ClientContext{})

	assert.Equal(t, map[domain.Dimension]bool{
		domain.DimViability: true,
		domain.DimVision:    true,
		domain.DimVigilance: true,
	}, dims(res.Triggers))
	assert.Equal(t, domain.SeverityModerate, res.SuggestedSeverity)
	require.Len(t, res.RequiredActions, 3)
	seen := map[domain.Dimension]bool{}
	for _, a := range res.RequiredActions {
		assert.False(t, seen[a.Dimension], "duplicate action for %s", a.Dimension)
		seen[a.Dimension] = true
		assert.True(t, a.HardStop)
		assert.Equal(t, a.Dimension.ActionLabel(), a.Label)
		assert.NotEmpty(t, a.ReasonSummary)
	}
	assert.Equal(t, 5.7, res.VitalityScore)
	assert.Equal(t, domain.RAGAmber, res.Status)
}

func TestEmptyProfile(t *testing.T) {
	res := triggers.Evaluate(domain.ConditionProfile{}, nil, domain.ClientContext{})

	assert.Empty(t, res.Triggers)
	assert.NotNil(t, res.Triggers)
	assert.Empty(t, res.RequiredActions)
	assert.Equal(t, 0, res.SeverityPoints)
	assert.Equal(t, domain.SeveritySimple, res.SuggestedSeverity)
}

func TestVoiceViewTriggersWithoutPoints(t *testing.T) {
	client := domain.ClientContext{VoiceView: "I want to get back to gardening"}

	res := triggers.Evaluate(domain.ConditionProfile{}, nil, client)

	require.Len(t, res.Triggers, 1)
	assert.Equal(t, domain.DimVoiceView, res.Triggers[0].Dimension)
	assert.Equal(t, triggers.SourceClient, res.Triggers[0].Source)
	assert.Equal(t, 0, res.SeverityPoints)

	blank := triggers.Evaluate(domain.ConditionProfile{}, nil, domain.ClientContext{Goals: []string{"  "}})
	assert.Empty(t, blank.Triggers)
}

func TestRequiredActionsMergeReasons(t *testing.T) {
	profile := domain.ConditionProfile{
		Physical:      domain.PhysicalObservations{PainLevel: domain.Float(9)},
		Psychological: domain.PsychologicalObservations{HighStress: domain.Bool(true)},
	}

	res := triggers.Evaluate(profile, nil, domain.ClientContext{})

	require.NotEmpty(t, res.RequiredActions)
	first := res.RequiredActions[0]
	assert.Equal(t, domain.DimViability, first.Dimension)
	assert.Equal(t, "Pain ≥ 7/10 (Physical); Reported high stress", first.ReasonSummary)
}

func TestMalformedValuesAreAbsent(t *testing.T) {
	cases := map[string]float64{
		"nan":      math.NaN(),
		"inf":      math.Inf(1),
		"negative": -3,
		"above":    11,
	}
	for name, pain := range cases {
		t.Run(name, func(t *testing.T) {
			profile := domain.ConditionProfile{Physical: domain.PhysicalObservations{PainLevel: domain.Float(pain)}}
			res := triggers.Evaluate(profile, nil, domain.ClientContext{})
			assert.Empty(t, res.Triggers)
			assert.Equal(t, 0, res.SeverityPoints)
		})
	}

	flags := []domain.Flag{{Severity: "Extreme", Status: domain.FlagOpen}, {Severity: domain.FlagHigh, Status: "Snoozed"}}
	res := triggers.Evaluate(domain.ConditionProfile{}, flags, domain.ClientContext{})
	assert.Equal(t, domain.RAGAmber, res.Status)
	assert.Equal(t, 5.7, res.VitalityScore)

	nan := math.NaN()
	v := triggers.Vitality(nil, &domain.VitalityInputs{Engagement: &nan})
	assert.Equal(t, 5.7, v)
}

func TestSeverityBreakpoints(t *testing.T) {
	cases := []struct {
		points int
		want   domain.Severity
	}{
		{-1, domain.SeveritySimple},
		{0, domain.SeveritySimple},
		{1, domain.SeveritySimple},
		{2, domain.SeverityModerate},
		{3, domain.SeverityModerate},
		{4, domain.SeverityComplex},
		{5, domain.SeverityComplex},
		{6, domain.SeveritySeverelyComplex},
		{11, domain.SeveritySeverelyComplex},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, triggers.SeverityForPoints(tc.points), "points=%d", tc.points)
	}
}

func TestHighFlagAddsPoints(t *testing.T) {
	open := []domain.Flag{{Severity: domain.FlagCritical, Status: domain.FlagOpen}}
	resolved := []domain.Flag{{Severity: domain.FlagCritical, Status: domain.FlagResolved}}

	assert.Equal(t, triggers.HighFlagPoints, triggers.SeverityPoints(domain.ConditionProfile{}, open))
	assert.Equal(t, 0, triggers.SeverityPoints(domain.ConditionProfile{}, resolved))
}

func TestVitalityDefaultsAndClamp(t *testing.T) {
	assert.Equal(t, 5.7, triggers.Vitality(nil, nil))
	assert.Equal(t, 5.0, triggers.Vitality([]domain.Flag{{Severity: domain.FlagLow, Status: domain.FlagOpen}}, nil))
	assert.Equal(t, 4.3, triggers.Vitality([]domain.Flag{{Severity: domain.FlagHigh, Status: domain.FlagOpen}}, nil))

	v := triggers.Vitality(nil, &domain.VitalityInputs{
		Engagement:    domain.Float(25),
		PlanProgress:  domain.Float(-4),
		RiskStability: domain.Float(10),
	})
	assert.Equal(t, 7.0, v)
}

func TestStatusPrecedence(t *testing.T) {
	high := []domain.Flag{{Severity: domain.FlagHigh, Status: domain.FlagOpen}}
	low := []domain.Flag{{Severity: domain.FlagLow, Status: domain.FlagOpen}}

	assert.Equal(t, domain.RAGRed, triggers.Status(9.5, high))
	assert.Equal(t, domain.RAGRed, triggers.Status(3.9, nil))
	assert.Equal(t, domain.RAGAmber, triggers.Status(4.0, nil))
	assert.Equal(t, domain.RAGAmber, triggers.Status(9.0, low))
	assert.Equal(t, domain.RAGGreen, triggers.Status(8.0, nil))
}

func TestOpenFlagWithoutKnownSeverityIsAmber(t *testing.T) {
	nine := 9.0
	client := domain.ClientContext{Vitality: &domain.VitalityInputs{Engagement: &nine, PlanProgress: &nine, RiskStability: &nine}}
	for _, sev := range []domain.FlagSeverity{"", "Severe"} {
		flags := []domain.Flag{{Severity: sev, Status: domain.FlagOpen}}
		res := triggers.Evaluate(domain.ConditionProfile{}, flags, client)
		assert.Equal(t, domain.RAGAmber, res.Status, "severity %q", sev)
		assert.Equal(t, 0, res.SeverityPoints, "severity %q", sev)
	}
	assert.Equal(t, 5.0, triggers.Vitality([]domain.Flag{{Status: domain.FlagOpen}}, nil))
}

func TestParseIntakeFoldsFlagCase(t *testing.T) {
	in, err := triggers.ParseIntake([]byte(`{"flags": [{"severity": "high", "status": "open"}, {"status": "Open"}]}`))
	require.NoError(t, err)
	require.Len(t, in.Flags, 2)
	assert.Equal(t, domain.FlagHigh, in.Flags[0].Severity)
	assert.Equal(t, domain.FlagOpen, in.Flags[0].Status)

	res := triggers.Evaluate(in.Profile, in.Flags, in.Client)
	assert.Equal(t, domain.RAGRed, res.Status)
	assert.Equal(t, triggers.HighFlagPoints, res.SeverityPoints)
}

func TestEvaluateIsByteIdentical(t *testing.T) {
	profile := profileFromMask(0x1ff)
	flags := flagsFromCodes([]int{0, 5, 6})
	client := domain.ClientContext{VoiceView: "home by spring", Goals: []string{"walk daily"}}

	a, err := json.Marshal(triggers.Evaluate(profile, flags, client))
	require.NoError(t, err)
	b, err := json.Marshal(triggers.Evaluate(profile, flags, client))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSeverityMonotonicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	const all = 1<<factorCount - 1

	properties.Property("adding risk factors never lowers severity", prop.ForAll(
		func(base, extra uint16, codes []int) bool {
			p1 := profileFromMask(base & all)
			p2 := profileFromMask((base | extra) & all)
			flags := flagsFromCodes(codes)
			s1 := triggers.Evaluate(p1, flags, domain.ClientContext{}).SuggestedSeverity
			s2 := triggers.Evaluate(p2, flags, domain.ClientContext{}).SuggestedSeverity
			return s2 >= s1
		},
		gen.UInt16(),
		gen.UInt16(),
		gen.SliceOf(gen.IntRange(0, 11)),
	))

	properties.Property("breakpoint mapping is non-decreasing", prop.ForAll(
		func(a, b int) bool {
			if a > b {
				a, b = b, a
			}
			return triggers.SeverityForPoints(a) <= triggers.SeverityForPoints(b)
		},
		gen.IntRange(-5, 20),
		gen.IntRange(-5, 20),
	))

	properties.TestingRun(t)
}

func TestStatusOrderingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("low vitality is always RED and GREEN needs high vitality with no open flags", prop.ForAll(
		func(engagement, progress, stability float64, codes []int) bool {
			flags := flagsFromCodes(codes)
			res := triggers.Evaluate(domain.ConditionProfile{}, flags, domain.ClientContext{
				Vitality: &domain.VitalityInputs{
					Engagement:    &engagement,
					PlanProgress:  &progress,
					RiskStability: &stability,
				},
			})
			if res.VitalityScore < 1 || res.VitalityScore > 10 {
				return false
			}
			if res.VitalityScore < triggers.RedBelow && res.Status != domain.RAGRed {
				return false
			}
			if res.Status == domain.RAGGreen {
				for _, f := range flags {
					if f.Open() {
						return false
					}
				}
				return res.VitalityScore >= triggers.GreenFrom
			}
			return true
		},
		gen.Float64Range(-5, 15),
		gen.Float64Range(-5, 15),
		gen.Float64Range(-5, 15),
		gen.SliceOf(gen.IntRange(0, 11)),
	))

	properties.TestingRun(t)
}

func TestParseIntakeDropsWrongTypes(t *testing.T) {
	doc := []byte(`{
		"case_id": "case-1",
		"profile": {
			"physical": {"pain_level": "eight", "uncontrolled_condition": true},
			"psychological": {"high_stress": "yes"},
			"any_high_risk": 1
		},
		"flags": [{"severity": "High", "status": "Open"}, "junk"],
		"client": {"voice_view": "stay at home", "goals": ["walk", 3], "vitality": {"engagement": 9}}
	}`)

	in, err := triggers.ParseIntake(doc)
	require.NoError(t, err)

	assert.Equal(t, "case-1", in.CaseID)
	assert.Nil(t, in.Profile.Physical.PainLevel)
	require.NotNil(t, in.Profile.Physical.UncontrolledCondition)
	assert.True(t, *in.Profile.Physical.UncontrolledCondition)
	assert.Nil(t, in.Profile.Psychological.HighStress)
	assert.Nil(t, in.Profile.AnyHighRisk)
	require.Len(t, in.Flags, 1)
	assert.Equal(t, domain.FlagHigh, in.Flags[0].Severity)
	assert.Equal(t, []string{"walk"}, in.Client.Goals)
	require.NotNil(t, in.Client.Vitality)
	assert.Equal(t, 9.0, *in.Client.Vitality.Engagement)
}

func TestParseProfileYAML(t *testing.T) {
	p, err := triggers.ParseProfile([]byte("physical:\n  pain_level: 7\nprofessional:\n  unable_to_work: true\n"))
	require.NoError(t, err)
	require.NotNil(t, p.Physical.PainLevel)
	assert.Equal(t, 7.0, *p.Physical.PainLevel)
	assert.True(t, *p.Professional.UnableToWork)

	_, err = triggers.ParseProfile([]byte("[1, 2]"))
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

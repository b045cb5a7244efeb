package domain

// ConditionProfile is a 4Ps snapshot for one evaluation. Nil fields are absent observations.
type ConditionProfile struct {
	Physical      PhysicalObservations      `json:"physical,omitempty" yaml:"physical"`
	Psychological PsychologicalObservations `json:"psychological,omitempty" yaml:"psychological"`
	Psychosocial  PsychosocialObservations  `json:"psychosocial,omitempty" yaml:"psychosocial"`
	Professional  ProfessionalObservations  `json:"professional,omitempty" yaml:"professional"`
	AnyHighRisk   *bool                     `json:"any_high_risk,omitempty" yaml:"any_high_risk,omitempty"`
}

type PhysicalObservations struct {
	// PainLevel is read on a 0-10 scale. Values outside it are treated as absent.
	PainLevel             *float64 `json:"pain_level,omitempty" yaml:"pain_level,omitempty"`
	UncontrolledCondition *bool    `json:"uncontrolled_condition,omitempty" yaml:"uncontrolled_condition,omitempty"`
}

type PsychologicalObservations struct {
	PositiveDepressionAnxiety *bool `json:"positive_depression_anxiety,omitempty" yaml:"positive_depression_anxiety,omitempty"`
	HighStress                *bool `json:"high_stress,omitempty" yaml:"high_stress,omitempty"`
}

type PsychosocialObservations struct {
	SDOHBarrier    *bool `json:"sdoh_barrier,omitempty" yaml:"sdoh_barrier,omitempty"`
	LimitedSupport *bool `json:"limited_support,omitempty" yaml:"limited_support,omitempty"`
}

type ProfessionalObservations struct {
	UnableToWork         *bool `json:"unable_to_work,omitempty" yaml:"unable_to_work,omitempty"`
	AccommodationsNeeded *bool `json:"accommodations_needed,omitempty" yaml:"accommodations_needed,omitempty"`
}

// Flag is an active or resolved risk flag on the case.
type Flag struct {
	ID       string       `json:"id,omitempty" yaml:"id,omitempty"`
	Type     string       `json:"type,omitempty" yaml:"type,omitempty"`
	Severity FlagSeverity `json:"severity,omitempty" yaml:"severity,omitempty" enum:"Low,Medium,High,Critical"`
	Status   FlagStatus   `json:"status" yaml:"status" enum:"Open,Resolved"`
}

// Open reports whether the flag is open. Severity does not matter: an open
// flag with a missing or unknown severity still counts.
func (f Flag) Open() bool {
	return f.Status == FlagOpen
}

// ClientContext carries the narrative and optional vitality sub-scores.
type ClientContext struct {
	ClientID  string          `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	VoiceView string          `json:"voice_view,omitempty" yaml:"voice_view,omitempty"`
	Goals     []string        `json:"goals,omitempty" yaml:"goals,omitempty"`
	Vitality  *VitalityInputs `json:"vitality,omitempty" yaml:"vitality,omitempty"`
}

// VitalityInputs are optional 1-10 sub-scores; absent values fall back to defaults.
type VitalityInputs struct {
	Engagement    *float64 `json:"engagement,omitempty" yaml:"engagement,omitempty"`
	PlanProgress  *float64 `json:"plan_progress,omitempty" yaml:"plan_progress,omitempty"`
	RiskStability *float64 `json:"risk_stability,omitempty" yaml:"risk_stability,omitempty"`
}

// Task is an RN CM work item considered by the release gate.
type Task struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	Status  string `json:"status" yaml:"status" enum:"Open,Done"`
	DueDate string `json:"due_date,omitempty" yaml:"due_date,omitempty" format:"date"`
}

// Bool and Float return pointers for building profiles in code.
func Bool(v bool) *bool { return &v }

func Float(v float64) *float64 { return &v }

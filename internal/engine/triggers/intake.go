package triggers

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"careline/internal/domain"
)

// Intake is the document an assessment form hands to the engine.
type Intake struct {
	CaseID  string                  `json:"case_id,omitempty" yaml:"case_id,omitempty"`
	Profile domain.ConditionProfile `json:"profile" yaml:"profile"`
	Flags   []domain.Flag           `json:"flags,omitempty" yaml:"flags,omitempty"`
	Client  domain.ClientContext    `json:"client,omitempty" yaml:"client,omitempty"`
	Tasks   []domain.Task           `json:"tasks,omitempty" yaml:"tasks,omitempty"`
}

// ParseIntake decodes a JSON or YAML intake document. Only a document that is
// not an object fails; individual fields of the wrong type are dropped.
func ParseIntake(data []byte) (Intake, error) {
	raw, err := decode(data)
	if err != nil {
		return Intake{}, fmt.Errorf("intake document: %w", err)
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return Intake{}, domain.Invalid("intake", "document must be an object")
	}
	in := Intake{
		CaseID:  str(doc["case_id"]),
		Profile: profileFrom(obj(doc["profile"])),
		Client:  clientFrom(obj(doc["client"])),
	}
	for _, item := range list(doc["flags"]) {
		f := obj(item)
		if f == nil {
			continue
		}
		in.Flags = append(in.Flags, domain.Flag{
			ID:       str(f["id"]),
			Type:     str(f["type"]),
			Severity: domain.ParseFlagSeverity(str(f["severity"])),
			Status:   domain.ParseFlagStatus(str(f["status"])),
		})
	}
	for _, item := range list(doc["tasks"]) {
		t := obj(item)
		if t == nil {
			continue
		}
		in.Tasks = append(in.Tasks, domain.Task{
			ID:      str(t["id"]),
			Title:   str(t["title"]),
			Status:  str(t["status"]),
			DueDate: str(t["due_date"]),
		})
	}
	return in, nil
}

// ParseProfile decodes a bare profile object with the same leniency as ParseIntake.
func ParseProfile(data []byte) (domain.ConditionProfile, error) {
	raw, err := decode(data)
	if err != nil {
		return domain.ConditionProfile{}, fmt.Errorf("profile document: %w", err)
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return domain.ConditionProfile{}, domain.Invalid("profile", "document must be an object")
	}
	return profileFrom(doc), nil
}

// decode reads JSON when the bytes are valid JSON and YAML otherwise.
func decode(data []byte) (any, error) {
	var raw any
	if json.Valid(data) {
		err := json.Unmarshal(data, &raw)
		return raw, err
	}
	err := yaml.Unmarshal(data, &raw)
	return raw, err
}

func profileFrom(m map[string]any) domain.ConditionProfile {
	if m == nil {
		return domain.ConditionProfile{}
	}
	phys := obj(m["physical"])
	psych := obj(m["psychological"])
	social := obj(m["psychosocial"])
	prof := obj(m["professional"])
	return domain.ConditionProfile{
		Physical: domain.PhysicalObservations{
			PainLevel:             num(phys["pain_level"]),
			UncontrolledCondition: flag(phys["uncontrolled_condition"]),
		},
		Psychological: domain.PsychologicalObservations{
			PositiveDepressionAnxiety: flag(psych["positive_depression_anxiety"]),
			HighStress:                flag(psych["high_stress"]),
		},
		Psychosocial: domain.PsychosocialObservations{
			SDOHBarrier:    flag(social["sdoh_barrier"]),
			LimitedSupport: flag(social["limited_support"]),
		},
		Professional: domain.ProfessionalObservations{
			UnableToWork:         flag(prof["unable_to_work"]),
			AccommodationsNeeded: flag(prof["accommodations_needed"]),
		},
		AnyHighRisk: flag(m["any_high_risk"]),
	}
}

func clientFrom(m map[string]any) domain.ClientContext {
	if m == nil {
		return domain.ClientContext{}
	}
	c := domain.ClientContext{
		ClientID:  str(m["client_id"]),
		VoiceView: str(m["voice_view"]),
	}
	for _, g := range list(m["goals"]) {
		if s := str(g); s != "" {
			c.Goals = append(c.Goals, s)
		}
	}
	if v := obj(m["vitality"]); v != nil {
		c.Vitality = &domain.VitalityInputs{
			Engagement:    num(v["engagement"]),
			PlanProgress:  num(v["plan_progress"]),
			RiskStability: num(v["risk_stability"]),
		}
	}
	return c
}

// Lookups on a nil map return nil, so missing sub-records fall through cleanly.
func obj(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func flag(v any) *bool {
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

func num(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float64:
		f = n
	default:
		return nil
	}
	return &f
}

package domain

// TriggerRecord is one reason a dimension fired.
type TriggerRecord struct {
	Dimension Dimension `json:"dimension"`
	Reason    string    `json:"reason"`
	Source    string    `json:"source"`
}

// RequiredAction is the hard-stop documentation requirement for one triggered dimension.
type RequiredAction struct {
	Dimension     Dimension `json:"dimension"`
	Label         string    `json:"label"`
	ReasonSummary string    `json:"reason_summary"`
	HardStop      bool      `json:"hard_stop"`
}

type EvaluationResult struct {
	Triggers          []TriggerRecord  `json:"triggers"`
	RequiredActions   []RequiredAction `json:"required_actions"`
	SuggestedSeverity Severity         `json:"suggested_severity" minimum:"1" maximum:"4"`
	SeverityPoints    int              `json:"severity_points"`
	VitalityScore     float64          `json:"vitality_score" minimum:"1" maximum:"10"`
	Status            RAGStatus        `json:"status" enum:"RED,AMBER,GREEN"`
}

// TriggeredDimensions returns the distinct dimensions in first-seen order.
func (r EvaluationResult) TriggeredDimensions() []Dimension {
	seen := map[Dimension]bool{}
	var out []Dimension
	for _, t := range r.Triggers {
		if seen[t.Dimension] {
			continue
		}
		seen[t.Dimension] = true
		out = append(out, t.Dimension)
	}
	return out
}

// Has reports whether the dimension was triggered.
func (r EvaluationResult) Has(d Dimension) bool {
	for _, t := range r.Triggers {
		if t.Dimension == d {
			return true
		}
	}
	return false
}

// Evaluation is a stored EvaluationResult for a case.
type Evaluation struct {
	ID        string           `json:"id"`
	CaseID    string           `json:"case_id"`
	ActorID   string           `json:"actor_id"`
	Profile   ConditionProfile `json:"profile"`
	Flags     []Flag           `json:"flags"`
	Result    EvaluationResult `json:"result"`
	CreatedAt string           `json:"created_at" format:"date-time"`
}

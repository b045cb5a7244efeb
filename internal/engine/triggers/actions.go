package triggers

import (
	"strings"

	"careline/internal/domain"
)

// RequiredActions groups records by dimension in first-seen order and joins
// the distinct reasons of each group with "; ".
func RequiredActions(recs []domain.TriggerRecord) []domain.RequiredAction {
	var order []domain.Dimension
	reasons := map[domain.Dimension][]string{}
	for _, r := range recs {
		existing, seen := reasons[r.Dimension]
		if !seen {
			order = append(order, r.Dimension)
		}
		if !contains(existing, r.Reason) {
			existing = append(existing, r.Reason)
		}
		reasons[r.Dimension] = existing
	}
	actions := make([]domain.RequiredAction, 0, len(order))
	for _, d := range order {
		actions = append(actions, domain.RequiredAction{
			Dimension:     d,
			Label:         d.ActionLabel(),
			ReasonSummary: strings.Join(reasons[d], "; "),
			HardStop:      true,
		})
	}
	return actions
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}

package escalation

import "careline/internal/domain"

var transitions = map[domain.OverrideStatus][]domain.DecisionAction{
	domain.OverridePending: {
		domain.ActionApproved,
		domain.ActionDenied,
		domain.ActionMoreInfoRequested,
	},
	domain.OverrideMoreInfoRequested: {
		domain.ActionResubmitted,
		domain.ActionApproved,
		domain.ActionDenied,
	},
}

// Transitions lists the actions allowed from a status. Terminal and unknown
// statuses allow none.
func Transitions(from domain.OverrideStatus) []domain.DecisionAction {
	allowed := transitions[from]
	out := make([]domain.DecisionAction, len(allowed))
	copy(out, allowed)
	return out
}

func CanTransition(from domain.OverrideStatus, action domain.DecisionAction) bool {
	for _, a := range transitions[from] {
		if a == action {
			return true
		}
	}
	return false
}

func ensureTransition(req domain.OverrideRequest, action domain.DecisionAction) error {
	if derived := req.DerivedStatus(); derived != req.Status {
		return domain.InvalidTransitionError{
			From:   req.Status,
			Action: action,
			Reason: "status does not match decision log (log implies " + string(derived) + ")",
		}
	}
	if !CanTransition(req.Status, action) {
		reason := "not allowed"
		if req.Status.Terminal() {
			reason = "request is closed"
		}
		return domain.InvalidTransitionError{From: req.Status, Action: action, Reason: reason}
	}
	return nil
}

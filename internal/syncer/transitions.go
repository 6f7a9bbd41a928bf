package syncer

import (
	"fmt"

	apperrors "socsync/internal/errors"
	"socsync/pkg/models"
)

// Transition lists the statuses an action may start from and the status it
// produces. A nil From means any status.
type Transition struct {
	From []models.AlertStatus
	To   models.AlertStatus
}

func nonTerminal() []models.AlertStatus {
	var out []models.AlertStatus
	for _, s := range models.AlertStatuses {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

// ActionStatusTransitions is the status table for every action except
// update_status, whose target comes from the request, and delete.
var ActionStatusTransitions = map[models.Action]Transition{
	models.ActionInvestigate: {
		From: []models.AlertStatus{models.StatusNew},
		To:   models.StatusInvestigating,
	},
	models.ActionAcknowledge: {
		From: []models.AlertStatus{models.StatusNew, models.StatusInvestigating},
		To:   models.StatusAcknowledged,
	},
	models.ActionEscalate: {
		From: nonTerminal(),
		To:   models.StatusEscalated,
	},
	models.ActionConfirm: {
		From: []models.AlertStatus{models.StatusNew, models.StatusInvestigating, models.StatusAcknowledged, models.StatusEscalated},
		To:   models.StatusConfirmed,
	},
	models.ActionResolve: {
		From: nonTerminal(),
		To:   models.StatusResolved,
	},
	models.ActionFalsePositive: {
		From: nonTerminal(),
		To:   models.StatusFalsePositive,
	},
	models.ActionQuarantine: {
		To: models.StatusQuarantined,
	},
	models.ActionRelease: {
		From: []models.AlertStatus{models.StatusQuarantined},
		To:   models.StatusResolved,
	},
}

// targetStatus validates action against the current status. It returns the
// resulting status, or remove=true for delete.
func targetStatus(action models.Action, current models.AlertStatus, payload models.MutationPayload) (status models.AlertStatus, remove bool, err error) {
	op := "mutate_" + string(action)
	switch action {
	case models.ActionDelete:
		return "", true, nil
	case models.ActionUpdateStatus:
		if !payload.Status.Valid() {
			return "", false, apperrors.Validation(op, fmt.Sprintf("invalid target status %q", payload.Status))
		}
		if payload.Status == current {
			return "", false, apperrors.Validation(op, fmt.Sprintf("alert is already %s", current))
		}
		return payload.Status, false, nil
	}

	tr, ok := ActionStatusTransitions[action]
	if !ok {
		return "", false, apperrors.Validation(op, fmt.Sprintf("unknown action %q", action))
	}
	if current == tr.To {
		return "", false, apperrors.Validation(op, fmt.Sprintf("alert is already %s", current))
	}
	if tr.From == nil {
		return tr.To, false, nil
	}
	for _, from := range tr.From {
		if from == current {
			return tr.To, false, nil
		}
	}
	return "", false, &apperrors.Error{
		Kind:    apperrors.KindValidation,
		Op:      op,
		Code:    "ILLEGAL_TRANSITION",
		Message: fmt.Sprintf("cannot %s an alert in status %s", action, current),
		Err:     apperrors.ErrIllegalMove,
	}
}

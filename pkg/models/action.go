package models

// Action is a user-initiated alert mutation.
type Action string

const (
	ActionUpdateStatus  Action = "update_status"
	ActionInvestigate   Action = "investigate"
	ActionAcknowledge   Action = "acknowledge"
	ActionEscalate      Action = "escalate"
	ActionConfirm       Action = "confirm"
	ActionResolve       Action = "resolve"
	ActionFalsePositive Action = "false_positive"
	ActionQuarantine    Action = "quarantine"
	ActionRelease       Action = "release"
	ActionDelete        Action = "delete"
)

// Actions lists every mutation action.
var Actions = []Action{
	ActionUpdateStatus,
	ActionInvestigate,
	ActionAcknowledge,
	ActionEscalate,
	ActionConfirm,
	ActionResolve,
	ActionFalsePositive,
	ActionQuarantine,
	ActionRelease,
	ActionDelete,
}

// MutationPayload carries the optional arguments of a mutation request.
type MutationPayload struct {
	Status AlertStatus `json:"status,omitempty"`
	Notes  string      `json:"notes,omitempty"`
}

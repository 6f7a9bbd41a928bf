package syncer

import (
	"time"

	"socsync/internal/permissions"
	"socsync/pkg/models"
)

// MutationState is the lifecycle of one optimistic mutation:
// snapshotted -> applied -> confirmed | rolled_back | superseded.
// Denied and rejected requests never reach snapshotted.
type MutationState string

const (
	MutationDenied      MutationState = "denied"
	MutationRejected    MutationState = "rejected"
	MutationSnapshotted MutationState = "snapshotted"
	MutationApplied     MutationState = "applied"
	MutationConfirmed   MutationState = "confirmed"
	MutationRolledBack  MutationState = "rolled_back"
	MutationSuperseded  MutationState = "superseded"
)

var mutationTransitions = map[MutationState][]MutationState{
	MutationSnapshotted: {MutationApplied, MutationRolledBack, MutationSuperseded},
	MutationApplied:     {MutationConfirmed, MutationRolledBack, MutationSuperseded},
}

// Terminal reports whether no further transition is possible.
func (s MutationState) Terminal() bool {
	_, ok := mutationTransitions[s]
	return !ok
}

func (s MutationState) canMoveTo(next MutationState) bool {
	for _, allowed := range mutationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Result reports the outcome of RequestMutation.
type Result struct {
	MutationID string
	AlertID    string
	Action     models.Action
	State      MutationState
	Decision   permissions.Decision
	// Alert is the entity as stored after the outcome. Nil when deleted.
	Alert *models.Alert
}

type mutation struct {
	id      string
	user    *models.User
	alertID string
	action  models.Action
	payload models.MutationPayload
	remove  bool
	started time.Time
	state   MutationState

	// base is the last server state; rollback restores it verbatim.
	base       *models.Alert
	optimistic *models.Alert
}

func (m *mutation) advance(next MutationState) bool {
	if !m.state.canMoveTo(next) {
		return false
	}
	m.state = next
	return true
}

func (m *mutation) role() string {
	if m.user == nil {
		return ""
	}
	return string(m.user.Role)
}

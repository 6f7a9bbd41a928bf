// Package audit records security-relevant outcomes: denied permission
// checks and the final state of every mutation.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an audit event.
type Kind string

const (
	KindPermissionDenied   Kind = "permission_denied"
	KindMutationConfirmed  Kind = "mutation_confirmed"
	KindMutationRolledBack Kind = "mutation_rolled_back"
	KindMutationSuperseded Kind = "mutation_superseded"
)

// Event is one audit record.
type Event struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Kind       Kind                   `json:"kind"`
	Actor      string                 `json:"actor"`
	Role       string                 `json:"role,omitempty"`
	Action     string                 `json:"action"`
	ResourceID string                 `json:"resource_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// NewEvent stamps a new event with an id and the current time.
func NewEvent(kind Kind, actor, role, action, resourceID string, details map[string]interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Kind:       kind,
		Actor:      actor,
		Role:       role,
		Action:     action,
		ResourceID: resourceID,
		Details:    details,
	}
}

// Sink writes audit events.
type Sink interface {
	WriteEvents(events []Event) error
	Close() error
}

// Auditor accepts events without blocking.
type Auditor interface {
	Record(ev Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(Event) {}

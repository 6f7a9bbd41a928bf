package models

import "time"

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentOpen       IncidentStatus = "OPEN"
	IncidentInProgress IncidentStatus = "IN_PROGRESS"
	IncidentResolved   IncidentStatus = "RESOLVED"
	IncidentClosed     IncidentStatus = "CLOSED"
	IncidentReopened   IncidentStatus = "REOPENED"
)

// Incident groups related alerts into one investigative unit.
// RelatedAlerts are weak references: alerts keep their own lifecycle.
type Incident struct {
	ID            string         `json:"id"`
	Title         string         `json:"title,omitempty"`
	Severity      string         `json:"severity,omitempty"`
	Status        IncidentStatus `json:"status"`
	Assignee      string         `json:"assignee,omitempty"`
	RelatedAlerts []string       `json:"related_alerts,omitempty"`
	Timeline      []AuditEntry   `json:"timeline,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// EntityID returns the incident id.
func (i *Incident) EntityID() string {
	if i == nil {
		return ""
	}
	return i.ID
}

// Version returns the logical timestamp used for last-writer-wins.
func (i *Incident) Version() time.Time {
	if i == nil {
		return time.Time{}
	}
	return i.UpdatedAt
}

// Clone returns a deep copy of the incident.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	out := *i
	out.RelatedAlerts = cloneStrings(i.RelatedAlerts)
	if i.Timeline != nil {
		out.Timeline = append([]AuditEntry(nil), i.Timeline...)
	}
	return &out
}

// WithTimeline returns a copy of the incident with entry appended.
func (i *Incident) WithTimeline(entry AuditEntry) *Incident {
	out := i.Clone()
	timeline := make([]AuditEntry, len(i.Timeline), len(i.Timeline)+1)
	copy(timeline, i.Timeline)
	out.Timeline = append(timeline, entry)
	return out
}

// References reports whether the incident lists alertID.
func (i *Incident) References(alertID string) bool {
	for _, id := range i.RelatedAlerts {
		if id == alertID {
			return true
		}
	}
	return false
}

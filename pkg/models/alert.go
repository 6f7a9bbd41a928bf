package models

import (
	"strings"
	"time"
)

// RiskLevel is the triage tier of an alert.
type RiskLevel string

const (
	RiskCold RiskLevel = "COLD"
	RiskWarm RiskLevel = "WARM"
	RiskHot  RiskLevel = "HOT"
)

// AlertStatus is the investigative lifecycle state of an alert.
type AlertStatus string

const (
	StatusNew           AlertStatus = "NEW"
	StatusInvestigating AlertStatus = "INVESTIGATING"
	StatusAcknowledged  AlertStatus = "ACKNOWLEDGED"
	StatusConfirmed     AlertStatus = "CONFIRMED"
	StatusResolved      AlertStatus = "RESOLVED"
	StatusFalsePositive AlertStatus = "FALSE_POSITIVE"
	StatusEscalated     AlertStatus = "ESCALATED"
	StatusQuarantined   AlertStatus = "QUARANTINED"
)

// AlertStatuses lists every known alert status.
var AlertStatuses = []AlertStatus{
	StatusNew,
	StatusInvestigating,
	StatusAcknowledged,
	StatusConfirmed,
	StatusResolved,
	StatusFalsePositive,
	StatusEscalated,
	StatusQuarantined,
}

// Valid reports whether s is a known status.
func (s AlertStatus) Valid() bool {
	for _, known := range AlertStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the status closes the investigation.
func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusFalsePositive
}

// AuditEntry is one immutable record of the compliance trail.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Notes     string    `json:"notes,omitempty"`
}

// Attachment is an opaque reference to a message attachment.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	SHA256      string `json:"sha256,omitempty"`
}

// PendingChange marks an optimistic, not yet confirmed mutation.
type PendingChange struct {
	MutationID string      `json:"mutation_id"`
	Action     string      `json:"action"`
	Status     AlertStatus `json:"status,omitempty"`
	Since      time.Time   `json:"since"`
}

// Alert is one analyzed message under investigation.
type Alert struct {
	ID            string             `json:"id"`
	RiskLevel     RiskLevel          `json:"risk_level"`
	RiskScore     float64            `json:"risk_score"`
	RiskBreakdown map[string]float64 `json:"risk_breakdown,omitempty"`
	Status        AlertStatus        `json:"status"`
	Sender        string             `json:"sender,omitempty"`
	Recipients    []string           `json:"recipients,omitempty"`
	Subject       string             `json:"subject,omitempty"`
	BodyPreview   string             `json:"body_preview,omitempty"`
	URLs          []string           `json:"urls,omitempty"`
	Attachments   []Attachment       `json:"attachments,omitempty"`
	AuditHistory  []AuditEntry       `json:"audit_history,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Pending       *PendingChange     `json:"pending,omitempty"`
}

// EntityID returns the alert id.
func (a *Alert) EntityID() string {
	if a == nil {
		return ""
	}
	return a.ID
}

// Version returns the logical timestamp used for last-writer-wins.
func (a *Alert) Version() time.Time {
	if a == nil {
		return time.Time{}
	}
	return a.UpdatedAt
}

// Clone returns a deep copy of the alert.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	out := *a
	if a.RiskBreakdown != nil {
		out.RiskBreakdown = make(map[string]float64, len(a.RiskBreakdown))
		for k, v := range a.RiskBreakdown {
			out.RiskBreakdown[k] = v
		}
	}
	out.Recipients = cloneStrings(a.Recipients)
	out.URLs = cloneStrings(a.URLs)
	if a.Attachments != nil {
		out.Attachments = append([]Attachment(nil), a.Attachments...)
	}
	if a.AuditHistory != nil {
		out.AuditHistory = append([]AuditEntry(nil), a.AuditHistory...)
	}
	if a.Pending != nil {
		p := *a.Pending
		out.Pending = &p
	}
	return &out
}

// WithAudit returns a copy of the alert with entry appended to its history.
func (a *Alert) WithAudit(entry AuditEntry) *Alert {
	out := a.Clone()
	history := make([]AuditEntry, len(a.AuditHistory), len(a.AuditHistory)+1)
	copy(history, a.AuditHistory)
	out.AuditHistory = append(history, entry)
	return out
}

// Matches reports whether the alert content contains text, case-insensitively.
func (a *Alert) Matches(text string) bool {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return true
	}
	fields := []string{a.ID, a.Sender, a.Subject, a.BodyPreview}
	fields = append(fields, a.Recipients...)
	fields = append(fields, a.URLs...)
	for _, att := range a.Attachments {
		fields = append(fields, att.Name)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

package store

import (
	"sort"

	"socsync/internal/alerts"
	"socsync/pkg/models"
)

// Alerts is the alert collection.
type Alerts = Store[*models.Alert]

// Incidents is the incident collection.
type Incidents = Store[*models.Incident]

// NewAlerts creates an alert store that re-derives the risk tier on every write.
func NewAlerts() *Alerts {
	return New[*models.Alert](WithNormalizer(alerts.Normalize))
}

// NewIncidents creates an incident store.
func NewIncidents() *Incidents {
	return New[*models.Incident]()
}

// AlertsByStatus returns alerts in status.
func AlertsByStatus(s *Alerts, status models.AlertStatus) []*models.Alert {
	return s.Query(func(a *models.Alert) bool { return a.Status == status })
}

// AlertsByRiskLevel returns alerts in a risk tier.
func AlertsByRiskLevel(s *Alerts, level models.RiskLevel) []*models.Alert {
	return s.Query(func(a *models.Alert) bool { return a.RiskLevel == level })
}

// AlertsInQueue returns the alerts routed to q by their current tier.
func AlertsInQueue(s *Alerts, q alerts.Queue) []*models.Alert {
	return s.Query(func(a *models.Alert) bool { return alerts.QueueFor(a.RiskLevel) == q })
}

// SearchAlerts returns alerts whose content contains text.
func SearchAlerts(s *Alerts, text string) []*models.Alert {
	return s.Query(func(a *models.Alert) bool { return a.Matches(text) })
}

// AppendAudit appends entry to the alert's history, producing a new value.
func AppendAudit(s *Alerts, id string, entry models.AuditEntry) (*models.Alert, bool) {
	return s.Update(id, func(a *models.Alert) *models.Alert { return a.WithAudit(entry) })
}

// IncidentsByStatus returns incidents in status.
func IncidentsByStatus(s *Incidents, status models.IncidentStatus) []*models.Incident {
	return s.Query(func(i *models.Incident) bool { return i.Status == status })
}

// IncidentsForAlert returns incidents that reference alertID.
func IncidentsForAlert(s *Incidents, alertID string) []*models.Incident {
	return s.Query(func(i *models.Incident) bool { return i.References(alertID) })
}

// AppendTimeline appends entry to the incident timeline, producing a new value.
func AppendTimeline(s *Incidents, id string, entry models.AuditEntry) (*models.Incident, bool) {
	return s.Update(id, func(i *models.Incident) *models.Incident { return i.WithTimeline(entry) })
}

// SortField names an explicit alert ordering.
type SortField string

const (
	SortByUpdated SortField = "updated"
	SortByCreated SortField = "created"
	SortByRisk    SortField = "risk"
	SortByID      SortField = "id"
)

// SortAlerts orders alerts in place, newest or riskiest first, ties by id.
func SortAlerts(list []*models.Alert, by SortField) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch by {
		case SortByCreated:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		case SortByRisk:
			if a.RiskScore != b.RiskScore {
				return a.RiskScore > b.RiskScore
			}
		case SortByUpdated:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
		}
		return a.ID < b.ID
	})
}

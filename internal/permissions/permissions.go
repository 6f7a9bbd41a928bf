package permissions

import "socsync/pkg/models"

// Permission names a single capability.
type Permission string

const (
	ViewAlerts        Permission = "VIEW_ALERTS"
	UpdateStatus      Permission = "UPDATE_STATUS"
	AcknowledgeAlert  Permission = "ACKNOWLEDGE_ALERT"
	EscalateAlert     Permission = "ESCALATE_ALERT"
	ReleaseMessage    Permission = "RELEASE_MESSAGE"
	QuarantineMessage Permission = "QUARANTINE_MESSAGE"
	DeleteMessage     Permission = "DELETE_MESSAGE"
	ManageIncidents   Permission = "MANAGE_INCIDENTS"
	ViewAuditLog      Permission = "VIEW_AUDIT_LOG"
	ExportData        Permission = "EXPORT_DATA"
	ManageUsers       Permission = "MANAGE_USERS"
)

// All lists every permission.
var All = []Permission{
	ViewAlerts,
	UpdateStatus,
	AcknowledgeAlert,
	EscalateAlert,
	ReleaseMessage,
	QuarantineMessage,
	DeleteMessage,
	ManageIncidents,
	ViewAuditLog,
	ExportData,
	ManageUsers,
}

// Required returns the explicit permissions a mutation action needs.
// Unknown actions need a permission nobody holds.
func Required(action models.Action) []Permission {
	switch action {
	case models.ActionUpdateStatus, models.ActionInvestigate, models.ActionConfirm,
		models.ActionResolve, models.ActionFalsePositive:
		return []Permission{UpdateStatus}
	case models.ActionAcknowledge:
		return []Permission{AcknowledgeAlert}
	case models.ActionEscalate:
		return []Permission{EscalateAlert}
	case models.ActionQuarantine:
		return []Permission{QuarantineMessage}
	case models.ActionRelease:
		return []Permission{ReleaseMessage}
	case models.ActionDelete:
		return []Permission{DeleteMessage}
	}
	return []Permission{Permission("UNKNOWN_ACTION:" + string(action))}
}

// RequiredForTransition returns the permissions a status change needs on
// top of its action. Moving into QUARANTINED needs QuarantineMessage and
// moving out of it needs ReleaseMessage, whichever action carries the change.
func RequiredForTransition(from, to models.AlertStatus) []Permission {
	var out []Permission
	if to == models.StatusQuarantined && from != models.StatusQuarantined {
		out = append(out, QuarantineMessage)
	}
	if from == models.StatusQuarantined && to != models.StatusQuarantined {
		out = append(out, ReleaseMessage)
	}
	return out
}

// DefaultRoles returns the built-in role table, lowest rank first.
func DefaultRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Role:        models.RoleViewer,
			Permissions: []Permission{ViewAlerts},
		},
		{
			Role:        models.RoleAuditor,
			Permissions: []Permission{ViewAlerts, ViewAuditLog, ExportData},
		},
		{
			Role: models.RoleAnalyst,
			Permissions: []Permission{
				ViewAlerts, UpdateStatus, AcknowledgeAlert, EscalateAlert, ManageIncidents,
			},
		},
		{
			Role: models.RoleSeniorAnalyst,
			Permissions: []Permission{
				ViewAlerts, UpdateStatus, AcknowledgeAlert, EscalateAlert, ManageIncidents,
				ReleaseMessage, QuarantineMessage, ViewAuditLog, ExportData,
			},
		},
		{
			Role:        models.RoleAdmin,
			Permissions: append([]Permission(nil), All...),
		},
	}
}

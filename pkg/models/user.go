package models

// Role is one of the fixed console roles.
type Role string

const (
	RoleViewer        Role = "VIEWER"
	RoleAuditor       Role = "AUDITOR"
	RoleAnalyst       Role = "ANALYST"
	RoleSeniorAnalyst Role = "SENIOR_ANALYST"
	RoleAdmin         Role = "ADMIN"
)

// User is the authenticated console user. Role is resolved at login and
// never changed client side.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

// Actor returns the name recorded in audit trails.
func (u *User) Actor() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

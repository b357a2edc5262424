package domain

// UserRole mirrors the roles issued by the identity provider.
type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleCompany UserRole = "company"
	UserRoleControl UserRole = "control"
)

// CanControl reports whether the role may record check actions.
func (r UserRole) CanControl() bool {
	return r == UserRoleControl || r == UserRoleAdmin
}

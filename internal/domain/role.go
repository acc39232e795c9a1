package domain

import "fmt"

// Role is the coarse access tier assigned to a user. The set is closed; new
// tiers require a migration of the role CHECK constraint.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleOperator   Role = "operator"
	RoleViewer     Role = "viewer"
)

// Roles lists every legal role in privilege order.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleOperator, RoleViewer}
}

// ParseRole validates an incoming role string against the closed set.
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleSuperAdmin, RoleAdmin, RoleOperator, RoleViewer:
		return Role(value), nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, value)
	}
}

// Capability names one guarded action in the platform. Capabilities are the
// unit authorization is checked against; routes and RPCs declare the one they
// require.
type Capability string

const (
	CapabilityCreateClient  Capability = "create-client"
	CapabilityCreateReading Capability = "create-reading"
	CapabilityReadAll       Capability = "read-all"
	CapabilityManageUsers   Capability = "manage-users"
	CapabilityViewAudit     Capability = "view-audit"
)

// Capabilities lists every defined capability.
func Capabilities() []Capability {
	return []Capability{
		CapabilityCreateClient,
		CapabilityCreateReading,
		CapabilityReadAll,
		CapabilityManageUsers,
		CapabilityViewAudit,
	}
}

// Valid reports whether the capability is one of the defined set. Unknown
// capabilities never authorize, including for administrative roles.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityCreateClient, CapabilityCreateReading, CapabilityReadAll,
		CapabilityManageUsers, CapabilityViewAudit:
		return true
	default:
		return false
	}
}

// operatorCapabilities is the static grant set for the operator tier.
var operatorCapabilities = map[Capability]struct{}{
	CapabilityCreateClient:  {},
	CapabilityCreateReading: {},
	CapabilityReadAll:       {},
}

// Allows reports whether the role grants the capability. The mapping is a
// total function over role x capability; administrative tiers hold every
// defined capability.
func (r Role) Allows(capability Capability) bool {
	if !capability.Valid() {
		return false
	}
	switch r {
	case RoleSuperAdmin, RoleAdmin:
		return true
	case RoleOperator:
		_, ok := operatorCapabilities[capability]
		return ok
	case RoleViewer:
		return capability == CapabilityReadAll
	default:
		return false
	}
}

package workflow

// Role is a user's trust level in the approval hierarchy.
type Role string

const (
	RoleDeveloper  Role = "developer"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Level returns the role's trust ordinal: developer 1, admin 2, superadmin 3.
// Unknown roles are 0.
func (r Role) Level() int {
	switch r {
	case RoleDeveloper:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperadmin:
		return 3
	default:
		return 0
	}
}

// CanApprove reports whether the role may approve a stage gated at stageRole.
// Superadmins approve anything; admins cover admin and developer stages;
// developers cover only developer stages. Nobody below superadmin touches a
// superadmin stage.
func (r Role) CanApprove(stageRole Role) bool {
	switch r {
	case RoleSuperadmin:
		return true
	case RoleAdmin:
		return stageRole == RoleAdmin || stageRole == RoleDeveloper
	case RoleDeveloper:
		return stageRole == RoleDeveloper
	default:
		return false
	}
}

// ParseRole maps a role name from config or user input. The second return is
// false for unknown names, which fall back to the least-privileged role.
func ParseRole(name string) (Role, bool) {
	switch name {
	case "developer":
		return RoleDeveloper, true
	case "admin":
		return RoleAdmin, true
	case "superadmin":
		return RoleSuperadmin, true
	default:
		return RoleDeveloper, false
	}
}

// User is an entry in the engine's registry.
type User struct {
	ID          string
	Role        Role
	Permissions []string
}

// defaultPermissions derives a permission set from the role when a user is
// registered without one.
func defaultPermissions(role Role) []string {
	switch role {
	case RoleSuperadmin:
		return []string{"submit", "approve:developer", "approve:admin", "approve:superadmin", "emergency"}
	case RoleAdmin:
		return []string{"submit", "approve:developer", "approve:admin"}
	default:
		return []string{"submit", "approve:developer"}
	}
}

func cloneUser(user *User) *User {
	if user == nil {
		return nil
	}

	cp := *user
	if user.Permissions != nil {
		cp.Permissions = append([]string(nil), user.Permissions...)
	}
	return &cp
}

package rbac

type Role string
type Action string

const (
	RoleLeitor   Role = "leitor"
	RoleOperador Role = "operador"
	RoleAdmin    Role = "admin"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionManage Action = "manage"
)

// Can reports whether a role may perform an action. Ownership of pedidos is
// checked separately; roles only gate the kind of access.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleOperador:
		return action == ActionRead || action == ActionWrite
	case RoleLeitor:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleLeitor, RoleOperador, RoleAdmin:
		return Role(role)
	default:
		return RoleLeitor
	}
}

func Valid(role string) bool {
	return Normalize(role) == Role(role)
}

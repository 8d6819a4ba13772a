package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionDelete   Action = "delete"
	ActionSettings Action = "settings"
)

var allActions = []Action{ActionRead, ActionWrite, ActionDelete, ActionSettings}

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionWrite || action == ActionDelete
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Permissions lists the actions a role may perform, in a stable order.
func Permissions(role Role) []string {
	perms := make([]string, 0, len(allActions))
	for _, action := range allActions {
		if Can(role, action) {
			perms = append(perms, string(action))
		}
	}
	return perms
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

package rbac

type Role string
type Action string

const (
	RoleGuest  Role = "guest"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionPost     Action = "post"
	ActionInquire  Action = "inquire"
	ActionModerate Action = "moderate"
	ActionAdmin    Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleMember, RoleGuest:
		return action == ActionRead || action == ActionPost || action == ActionInquire
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleGuest, RoleMember, RoleAdmin:
		return Role(role)
	default:
		return RoleGuest
	}
}

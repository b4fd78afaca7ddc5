package domain

// Actor is the authenticated party making a coordination call. It is
// always passed explicitly; services never look identity up on their own.
type Actor struct {
	UserID uint
	Role   string
}

func (a Actor) IsClient() bool       { return a.Role == RoleClient }
func (a Actor) IsProfessional() bool { return a.Role == RoleProfessional }

// UserType maps the actor's role to the value stored on location rows.
func (a Actor) UserType() string {
	if a.IsProfessional() {
		return UserTypeProfessional
	}
	return UserTypeClient
}

package model

// Employee is a roster row in the Employee table.
type Employee struct {
	ID          string `db:"id"          json:"id"`
	DisplayName string `db:"displayname" json:"display_name"`
	Attends     bool   `db:"attends"     json:"attends"`
}

// Target converts the employee into an invitation for a group call.
func (e Employee) Target() InvitationTarget {
	return InvitationTarget{
		Identity: IdentitySet{
			User: &Identity{ID: e.ID, DisplayName: e.DisplayName},
		},
	}
}

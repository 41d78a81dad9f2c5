package domain

import "time"

// Directory roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the directory view of an agent (user or admin).
// Identity, passwords and profile management live in the auth service.
type User struct {
	ID        string    `json:"id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Role      string    `json:"role" db:"role"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Ref returns the participant reference of the user
func (u *User) Ref() ParticipantRef {
	kind := ParticipantUser
	if u.Role == RoleAdmin {
		kind = ParticipantAdmin
	}
	return ParticipantRef{ID: u.ID, Kind: kind}
}

// Customer is an external contact reachable through the gateway
type Customer struct {
	ID             string    `json:"id" db:"customer_id"`
	Name           string    `json:"name" db:"name"`
	Phone          string    `json:"phone" db:"phone"`
	Company        string    `json:"company" db:"company"`
	AssignedUserID string    `json:"assigned_user_id" db:"assigned_user_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the participant reference of the customer
func (c *Customer) Ref() ParticipantRef {
	return ParticipantRef{ID: c.ID, Kind: ParticipantCustomer}
}

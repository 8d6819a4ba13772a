package auth

import "time"

// User is the administrative identity held by a session.
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func ClaimsFor(user User, issuedAt time.Time) Claims {
	return Claims{
		Sub:         user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		Permissions: user.Permissions,
		Iat:         issuedAt.Unix(),
	}
}

func (c Claims) User() User {
	return User{
		ID:          c.Sub,
		Email:       c.Email,
		Name:        c.Name,
		Role:        c.Role,
		Permissions: c.Permissions,
	}
}

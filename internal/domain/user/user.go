// Package user implements account registration, credential checks and the
// admin-facing user management operations.
package user

import (
	"context"
	"time"
)

// User is a registered account. PasswordHash is a bcrypt hash and never
// leaves the service layer.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ListParams selects one page of users. Email, when set, filters by
// substring match.
type ListParams struct {
	Offset int
	Limit  int
	Email  string
}

// Update describes a partial user update. Nil fields are left untouched.
type Update struct {
	Name  *string
	Email *string
	Roles []string
}

// Repository defines persistence operations for users.
type Repository interface {
	// Create returns ErrUserExists when the email is already taken.
	Create(ctx context.Context, u *User) error

	// GetByID returns ErrNotFound when no user has the given id.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail returns ErrNotFound when no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// List returns one page of users plus the total match count.
	List(ctx context.Context, params ListParams) ([]User, int, error)

	// Update applies a partial update. Returns ErrNotFound when the user does
	// not exist and ErrUserExists when a new email collides.
	Update(ctx context.Context, id string, upd Update) (*User, error)
}

package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/avetra/ordergate/pkg/auth"
)

var (
	ErrNotFound           = fmt.Errorf("user not found")
	ErrUserExists         = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid email or password")
	ErrInvalidEmail       = fmt.Errorf("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least 6 characters")
	ErrEmptyRoles         = fmt.Errorf("at least one role is required")
)

const minPasswordLen = 6

// defaultRoles is assigned to every self-registered account.
var defaultRoles = []string{"user"}

// Service owns account lifecycle and credential verification. Tokens are
// minted here so password hashes never cross a package boundary.
type Service struct {
	users  Repository
	issuer *auth.TokenIssuer
}

func NewService(users Repository, issuer *auth.TokenIssuer) *Service {
	return &Service{users: users, issuer: issuer}
}

// Register creates a new account with the default role set.
func (s *Service) Register(ctx context.Context, email, password, name string) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Roles:        defaultRoles,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies the credentials and returns the user with a signed token.
// Unknown email and wrong password produce the same error so the endpoint
// cannot be used to probe for accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(u.ID, u.Email, u.Roles)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return u, token, nil
}

// Get returns a single user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ClampPage returns the effective page and limit the listing will use.
// Pagination metadata must be built from these values, not the raw client
// input, or the reported limit and totalPages drift from the rows served.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

// List returns one page of users, optionally filtered by email substring.
// Admin-only at the routing layer.
func (s *Service) List(ctx context.Context, page, limit int, emailFilter string) ([]User, int, error) {
	page, limit = ClampPage(page, limit)
	return s.users.List(ctx, ListParams{
		Offset: (page - 1) * limit,
		Limit:  limit,
		Email:  strings.TrimSpace(emailFilter),
	})
}

// UpdateProfile lets a user change their own name and email.
func (s *Service) UpdateProfile(ctx context.Context, id string, name, email *string) (*User, error) {
	return s.update(ctx, id, Update{Name: name, Email: email})
}

// AdminUpdate lets an admin change a user's name and role set.
func (s *Service) AdminUpdate(ctx context.Context, id string, name *string, roles []string) (*User, error) {
	return s.update(ctx, id, Update{Name: name, Roles: roles})
}

func (s *Service) update(ctx context.Context, id string, upd Update) (*User, error) {
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return nil, err
		}
		upd.Email = &email
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		upd.Name = &name
	}
	if upd.Roles != nil {
		cleaned := cleanRoles(upd.Roles)
		if len(cleaned) == 0 {
			return nil, ErrEmptyRoles
		}
		upd.Roles = cleaned
	}
	return s.users.Update(ctx, id, upd)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// cleanRoles trims, drops empties and de-duplicates while preserving order.
func cleanRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	cleaned := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		cleaned = append(cleaned, role)
	}
	return cleaned
}

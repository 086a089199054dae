package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/avetra/ordergate/internal/domain/user"
)

const (
	createUserSQL = `INSERT INTO users (id, email, name, password_hash, roles)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	getUserByIDSQL = `SELECT id, email, name, password_hash, roles, created_at, updated_at
		FROM users WHERE id = $1`

	getUserByEmailSQL = `SELECT id, email, name, password_hash, roles, created_at, updated_at
		FROM users WHERE email = $1`

	// COALESCE keeps the stored value for every nil field of the update.
	updateUserSQL = `UPDATE users
		SET name = COALESCE($2, name),
		    email = COALESCE($3, email),
		    roles = COALESCE($4, roles),
		    updated_at = now()
		WHERE id = $1
		RETURNING id, email, name, password_hash, roles, created_at, updated_at`
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create persists a new user. A duplicate email surfaces as ErrUserExists.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	err := r.pool.QueryRow(ctx, createUserSQL,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Roles,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrUserExists
		}
		return fmt.Errorf("creating user %q: %w", u.ID, err)
	}
	return nil
}

// GetByID fetches a single user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, getUserByIDSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("fetching user %q: %w", id, err)
	}
	return u, nil
}

// GetByEmail fetches a single user by the unique email column.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, getUserByEmailSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("fetching user by email: %w", err)
	}
	return u, nil
}

// List returns one page of users and the total match count. The page query
// and the count query run concurrently on separate pool connections.
func (r *UserRepository) List(ctx context.Context, params user.ListParams) ([]user.User, int, error) {
	filter := ""
	args := []any{params.Limit, params.Offset}
	countSQL := "SELECT count(*) FROM users"
	countArgs := []any{}
	if params.Email != "" {
		filter = "WHERE email ILIKE $3"
		args = append(args, "%"+params.Email+"%")
		countSQL += " WHERE email ILIKE $1"
		countArgs = append(countArgs, "%"+params.Email+"%")
	}

	listSQL := fmt.Sprintf(`SELECT id, email, name, password_hash, roles, created_at, updated_at
		FROM users %s ORDER BY created_at LIMIT $1 OFFSET $2`, filter)

	var (
		users []user.User
		total int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := r.pool.Query(ctx, listSQL, args...)
		if err != nil {
			return fmt.Errorf("listing users: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return fmt.Errorf("scanning user row: %w", err)
			}
			users = append(users, *u)
		}
		return rows.Err()
	})
	g.Go(func() error {
		if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return fmt.Errorf("counting users: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// Update applies a partial update. Nil fields keep their stored value.
func (r *UserRepository) Update(ctx context.Context, id string, upd user.Update) (*user.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, updateUserSQL, id, upd.Name, upd.Email, upd.Roles))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, user.ErrUserExists
		}
		return nil, fmt.Errorf("updating user %q: %w", id, err)
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Roles, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

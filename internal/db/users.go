package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, is_active, last_login, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.IsActive, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserCreateInput holds the fields for a new account.
type UserCreateInput struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         string
}

// ErrEmailTaken is returned when an email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// CreateUser inserts a user. Emails are stored lower-cased.
func (db *DB) CreateUser(ctx context.Context, in *UserCreateInput) (*User, error) {
	role := in.Role
	if role == "" {
		role = "user"
	}
	u, err := scanUser(db.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+userColumns,
		normalizeEmail(in.Email), in.PasswordHash, in.FirstName, in.LastName, role,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetUser retrieves a user by ID. Returns nil, nil when absent.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email (case-insensitive). Returns nil, nil when absent.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, nil
	}
	u, err := scanUser(db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email)))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// CheckEmailExists reports whether an account uses email.
func (db *DB) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, normalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// UserProfileUpdate holds optional profile fields. Nil fields are left unchanged.
type UserProfileUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
}

// UpdateUserProfile applies a partial profile update and returns the new row.
func (db *DB) UpdateUserProfile(ctx context.Context, id uuid.UUID, upd UserProfileUpdate) (*User, error) {
	var email *string
	if upd.Email != nil {
		e := normalizeEmail(*upd.Email)
		email = &e
	}
	u, err := scanUser(db.pool.QueryRow(ctx,
		`UPDATE users SET
		   first_name = COALESCE($2, first_name),
		   last_name  = COALESCE($3, last_name),
		   email      = COALESCE($4, email),
		   updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, upd.FirstName, upd.LastName, email,
	))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	return u, nil
}

// UpdatePassword replaces a user's password hash.
func (db *DB) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastLogin records a successful login.
func (db *DB) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// UserFilters narrows ListUsers.
type UserFilters struct {
	Search string
	Limit  int
	Offset int
}

// ListUsers returns one page of users, newest first, with the total match count.
func (db *DB) ListUsers(ctx context.Context, filters UserFilters) ([]User, int, error) {
	f := filter{}
	if filters.Search != "" {
		f.add("(email ILIKE $%[1]d OR first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d)", "%"+filters.Search+"%")
	}

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE 1=1`+f.where, f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1` + f.where +
		` ORDER BY created_at DESC LIMIT ` + f.next(filters.Limit) + ` OFFSET ` + f.next(filters.Offset)
	rows, err := db.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

// AdminUserUpdate holds the fields an admin may change on another account.
type AdminUserUpdate struct {
	Role     *string
	IsActive *bool
}

// AdminUpdateUser changes role and active flag. Returns nil, nil when the user does not exist.
func (db *DB) AdminUpdateUser(ctx context.Context, id uuid.UUID, upd AdminUserUpdate) (*User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`UPDATE users SET
		   role       = COALESCE($2, role),
		   is_active  = COALESCE($3, is_active),
		   updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, upd.Role, upd.IsActive,
	))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

// DeleteUser removes a user and everything they own.
func (db *DB) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

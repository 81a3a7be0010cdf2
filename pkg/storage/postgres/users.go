package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/traintrack/traintrack/pkg/storage"
)

// UserStore implements storage.UserStore on PostgreSQL.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store backed by db.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, roll_number, name, email, password_hash, branch, role, linkedin_id, git_id, leetcode_id, created_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*storage.User, error) {
	var u storage.User
	err := row.Scan(
		&u.ID, &u.RollNumber, &u.Name, &u.Email, &u.PasswordHash,
		&u.Branch, &u.Role, &u.LinkedinID, &u.GithubID, &u.LeetcodeID,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. Unique violations on roll number or email map
// to storage.ErrAlreadyExists.
func (s *UserStore) Create(ctx context.Context, user *storage.User) error {
	query := `
		INSERT INTO users (roll_number, name, email, password_hash, branch, role, linkedin_id, git_id, leetcode_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		user.RollNumber, user.Name, user.Email, user.PasswordHash,
		user.Branch, user.Role, user.LinkedinID, user.GithubID, user.LeetcodeID,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByEmail looks up a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*storage.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetByRoll looks up a user by roll number.
func (s *UserStore) GetByRoll(ctx context.Context, rollNumber string) (*storage.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(roll_number) = LOWER($1)`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, rollNumber))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get user by roll: %w", err)
	}
	return user, nil
}

// ExistsByEmailOrRoll reports whether any user holds either key.
func (s *UserStore) ExistsByEmailOrRoll(ctx context.Context, email, rollNumber string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 OR LOWER(roll_number) = LOWER($2))`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, email, rollNumber).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// ListByRollPrefix returns users of one batch+branch cohort, ordered by
// roll number.
func (s *UserStore) ListByRollPrefix(ctx context.Context, prefix string) ([]*storage.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(roll_number) LIKE LOWER($1) || '%' ORDER BY roll_number`

	rows, err := s.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by prefix: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ListByRolls returns users matching any of the given roll numbers.
func (s *UserStore) ListByRolls(ctx context.Context, rollNumbers []string) ([]*storage.User, error) {
	if len(rollNumbers) == 0 {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE roll_number = ANY($1) ORDER BY roll_number`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(rollNumbers))
	if err != nil {
		return nil, fmt.Errorf("failed to list users by rolls: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// UpdatePasswordByEmail replaces a user's password hash.
func (s *UserStore) UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE email = $2`, passwordHash, email)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRows(res)
}

// UpdateRole changes a user's role.
func (s *UserStore) UpdateRole(ctx context.Context, rollNumber string, role storage.Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = $1 WHERE LOWER(roll_number) = LOWER($2)`, role, rollNumber)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return requireRows(res)
}

func collectUsers(rows *sql.Rows) ([]*storage.User, error) {
	var users []*storage.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func requireRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

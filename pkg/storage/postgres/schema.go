package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is a single schema change applied at startup.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the full schema, oldest first.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					roll_number VARCHAR(32) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					email VARCHAR(255) NOT NULL UNIQUE,
					password_hash VARCHAR(255) NOT NULL,
					branch VARCHAR(8) NOT NULL DEFAULT '',
					role VARCHAR(16) NOT NULL,
					linkedin_id VARCHAR(255) NOT NULL DEFAULT '',
					git_id VARCHAR(255) NOT NULL DEFAULT '',
					leetcode_id VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_users_roll_prefix ON users(roll_number text_pattern_ops);
			`,
		},
		{
			Version:     2,
			Description: "Create attendance table",
			SQL: `
				CREATE TABLE IF NOT EXISTS attendance (
					id BIGSERIAL PRIMARY KEY,
					pr_roll_number VARCHAR(32) NOT NULL,
					branch VARCHAR(8) NOT NULL,
					title VARCHAR(255) NOT NULL,
					note TEXT NOT NULL DEFAULT '',
					presents TEXT[] NOT NULL DEFAULT '{}',
					absents TEXT[] NOT NULL DEFAULT '{}',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_attendance_created_at ON attendance(created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_attendance_branch ON attendance(branch);
			`,
		},
		{
			Version:     3,
			Description: "Create quizzes table",
			SQL: `
				CREATE TABLE IF NOT EXISTS quizzes (
					id BIGSERIAL PRIMARY KEY,
					quiz_id VARCHAR(255) NOT NULL UNIQUE,
					title VARCHAR(255) NOT NULL,
					date_of_quiz TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					branches TEXT[] NOT NULL,
					total_marks DOUBLE PRECISION NOT NULL,
					marks JSONB NOT NULL DEFAULT '{}',
					average_score DOUBLE PRECISION NOT NULL DEFAULT 0,
					uploaded_by VARCHAR(32) NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_quizzes_uploaded_by ON quizzes(uploaded_by);
				CREATE INDEX IF NOT EXISTS idx_quizzes_date ON quizzes(date_of_quiz);
			`,
		},
		{
			Version:     4,
			Description: "Create password_resets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS password_resets (
					email VARCHAR(255) PRIMARY KEY,
					otp VARCHAR(6) NOT NULL,
					correlation_id VARCHAR(64) NOT NULL,
					expires_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_password_resets_correlation ON password_resets(correlation_id);
				CREATE INDEX IF NOT EXISTS idx_password_resets_expires ON password_resets(expires_at);
			`,
		},
	}
}

// Migrate applies the schema. Statements are idempotent so re-running at
// every startup is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, m := range Migrations() {
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}

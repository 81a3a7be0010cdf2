package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/traintrack/traintrack/pkg/storage"
)

// AttendanceStore implements storage.AttendanceStore on PostgreSQL.
type AttendanceStore struct {
	db *sql.DB
}

// NewAttendanceStore creates an attendance store backed by db.
func NewAttendanceStore(db *sql.DB) *AttendanceStore {
	return &AttendanceStore{db: db}
}

const attendanceColumns = `id, pr_roll_number, branch, title, note, presents, absents, created_at`

func scanAttendance(row interface{ Scan(...interface{}) error }) (*storage.Attendance, error) {
	var a storage.Attendance
	err := row.Scan(
		&a.ID, &a.PRRollNumber, &a.Branch, &a.Title, &a.Note,
		pq.Array(&a.Presents), pq.Array(&a.Absents), &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new roster record.
func (s *AttendanceStore) Create(ctx context.Context, record *storage.Attendance) error {
	query := `
		INSERT INTO attendance (pr_roll_number, branch, title, note, presents, absents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		record.PRRollNumber, record.Branch, record.Title, record.Note,
		pq.Array(record.Presents), pq.Array(record.Absents),
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create attendance: %w", err)
	}
	return nil
}

// GetByBranchAndDay fetches the roster for one branch on one calendar day.
func (s *AttendanceStore) GetByBranchAndDay(ctx context.Context, branch string, day time.Time) (*storage.Attendance, error) {
	start, end := dayRange(day)
	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE branch = $1 AND created_at >= $2 AND created_at < $3`

	record, err := scanAttendance(s.db.QueryRowContext(ctx, query, branch, start, end))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get attendance: %w", err)
	}
	return record, nil
}

// ListBranchesByDay returns the distinct branches that have a record on the
// given day.
func (s *AttendanceStore) ListBranchesByDay(ctx context.Context, day time.Time) ([]string, error) {
	start, end := dayRange(day)
	query := `SELECT DISTINCT branch FROM attendance WHERE created_at >= $1 AND created_at < $2 ORDER BY branch`

	rows, err := s.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()

	var branches []string
	for rows.Next() {
		var branch string
		if err := rows.Scan(&branch); err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}
		branches = append(branches, branch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate branches: %w", err)
	}
	return branches, nil
}

// UpdateRoster replaces the presents/absents lists for (branch, day).
func (s *AttendanceStore) UpdateRoster(ctx context.Context, branch string, day time.Time, presents, absents []string) (*storage.Attendance, error) {
	start, end := dayRange(day)
	query := `
		UPDATE attendance SET presents = $1, absents = $2
		WHERE branch = $3 AND created_at >= $4 AND created_at < $5
		RETURNING ` + attendanceColumns

	record, err := scanAttendance(s.db.QueryRowContext(ctx, query,
		pq.Array(presents), pq.Array(absents), branch, start, end))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to update attendance: %w", err)
	}
	return record, nil
}

// DeleteByBranchAndDay removes the roster record for (branch, day).
func (s *AttendanceStore) DeleteByBranchAndDay(ctx context.Context, branch string, day time.Time) error {
	start, end := dayRange(day)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM attendance WHERE branch = $1 AND created_at >= $2 AND created_at < $3`,
		branch, start, end)
	if err != nil {
		return fmt.Errorf("failed to delete attendance: %w", err)
	}
	return requireRows(res)
}

// ListByUploaderPrefix returns every record uploaded by PRs of one cohort,
// newest first.
func (s *AttendanceStore) ListByUploaderPrefix(ctx context.Context, prefix string) ([]*storage.Attendance, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE LOWER(pr_roll_number) LIKE LOWER($1) || '%' ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer rows.Close()

	return collectAttendance(rows)
}

// ListByUploaderPrefixAndMonth returns one cohort's records within a month,
// oldest first.
func (s *AttendanceStore) ListByUploaderPrefixAndMonth(ctx context.Context, prefix string, year, month int) ([]*storage.Attendance, error) {
	start, end := monthRange(year, month)
	query := `
		SELECT ` + attendanceColumns + ` FROM attendance
		WHERE LOWER(pr_roll_number) LIKE LOWER($1) || '%' AND created_at >= $2 AND created_at < $3
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, prefix, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance by month: %w", err)
	}
	defer rows.Close()

	return collectAttendance(rows)
}

func collectAttendance(rows *sql.Rows) ([]*storage.Attendance, error) {
	var records []*storage.Attendance
	for rows.Next() {
		record, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance: %w", err)
	}
	return records, nil
}

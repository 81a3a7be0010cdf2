package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/traintrack/traintrack/pkg/storage"
)

// QuizStore implements storage.QuizStore on PostgreSQL.
type QuizStore struct {
	db *sql.DB
}

// NewQuizStore creates a quiz store backed by db.
func NewQuizStore(db *sql.DB) *QuizStore {
	return &QuizStore{db: db}
}

const quizColumns = `id, quiz_id, title, date_of_quiz, created_at, branches, total_marks, marks, average_score, uploaded_by`

func scanQuiz(row interface{ Scan(...interface{}) error }) (*storage.Quiz, error) {
	var q storage.Quiz
	err := row.Scan(
		&q.ID, &q.QuizID, &q.Title, &q.DateOfQuiz, &q.CreatedAt,
		pq.Array(&q.Branches), &q.TotalMarks, &q.Marks, &q.AverageScore,
		&q.UploadedBy,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Create inserts a new quiz record.
func (s *QuizStore) Create(ctx context.Context, quiz *storage.Quiz) error {
	query := `
		INSERT INTO quizzes (quiz_id, title, date_of_quiz, branches, total_marks, marks, average_score, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		quiz.QuizID, quiz.Title, quiz.DateOfQuiz, pq.Array(quiz.Branches),
		quiz.TotalMarks, quiz.Marks, quiz.AverageScore, quiz.UploadedBy,
	).Scan(&quiz.ID, &quiz.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

// GetByQuizID looks up a quiz by its business key.
func (s *QuizStore) GetByQuizID(ctx context.Context, quizID string) (*storage.Quiz, error) {
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE quiz_id = $1`

	quiz, err := scanQuiz(s.db.QueryRowContext(ctx, query, quizID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

// ListByUploaderAndDay returns the quizzes one PR uploaded for a given quiz
// date.
func (s *QuizStore) ListByUploaderAndDay(ctx context.Context, uploadedBy string, day time.Time) ([]*storage.Quiz, error) {
	start, end := dayRange(day)
	query := `
		SELECT ` + quizColumns + ` FROM quizzes
		WHERE LOWER(uploaded_by) = LOWER($1) AND date_of_quiz >= $2 AND date_of_quiz < $3
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, uploadedBy, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	defer rows.Close()

	return collectQuizzes(rows)
}

// UpdateMarks replaces a quiz's marks map and recomputed average.
func (s *QuizStore) UpdateMarks(ctx context.Context, quizID string, marks storage.MarkSet, averageScore float64) (*storage.Quiz, error) {
	query := `
		UPDATE quizzes SET marks = $1, average_score = $2
		WHERE quiz_id = $3
		RETURNING ` + quizColumns

	quiz, err := scanQuiz(s.db.QueryRowContext(ctx, query, marks, averageScore, quizID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to update quiz marks: %w", err)
	}
	return quiz, nil
}

// DeleteByQuizIDAndUploader removes a quiz only when uploadedBy matches the
// original uploader.
func (s *QuizStore) DeleteByQuizIDAndUploader(ctx context.Context, quizID, uploadedBy string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM quizzes WHERE quiz_id = $1 AND LOWER(uploaded_by) = LOWER($2)`,
		quizID, uploadedBy)
	if err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}
	return requireRows(res)
}

// ListByBranch returns every quiz that involved the given branch.
func (s *QuizStore) ListByBranch(ctx context.Context, branch string) ([]*storage.Quiz, error) {
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE $1 = ANY(branches) ORDER BY date_of_quiz`

	rows, err := s.db.QueryContext(ctx, query, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes by branch: %w", err)
	}
	defer rows.Close()

	return collectQuizzes(rows)
}

// ListByBranchAndMonth returns the branch's quizzes within a month, oldest
// first.
func (s *QuizStore) ListByBranchAndMonth(ctx context.Context, branch string, year, month int) ([]*storage.Quiz, error) {
	start, end := monthRange(year, month)
	query := `
		SELECT ` + quizColumns + ` FROM quizzes
		WHERE $1 = ANY(branches) AND date_of_quiz >= $2 AND date_of_quiz < $3
		ORDER BY date_of_quiz
	`

	rows, err := s.db.QueryContext(ctx, query, branch, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes by month: %w", err)
	}
	defer rows.Close()

	return collectQuizzes(rows)
}

func collectQuizzes(rows *sql.Rows) ([]*storage.Quiz, error) {
	var quizzes []*storage.Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quizzes: %w", err)
	}
	return quizzes, nil
}

package storage

import (
	"context"
	"time"
)

// UserStore persists identity records.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByRoll(ctx context.Context, rollNumber string) (*User, error)
	// ExistsByEmailOrRoll reports whether any user holds either key.
	ExistsByEmailOrRoll(ctx context.Context, email, rollNumber string) (bool, error)
	// ListByRollPrefix returns users whose roll number starts with the
	// batch+branch prefix, ordered by roll number.
	ListByRollPrefix(ctx context.Context, prefix string) ([]*User, error)
	// ListByRolls returns users matching any of the given roll numbers.
	ListByRolls(ctx context.Context, rollNumbers []string) ([]*User, error)
	UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error
	UpdateRole(ctx context.Context, rollNumber string, role Role) error
}

// AttendanceStore persists day-scoped branch rosters. Day arguments are
// interpreted as the [midnight, midnight+24h) window in the given time's
// location.
type AttendanceStore interface {
	Create(ctx context.Context, record *Attendance) error
	GetByBranchAndDay(ctx context.Context, branch string, day time.Time) (*Attendance, error)
	ListBranchesByDay(ctx context.Context, day time.Time) ([]string, error)
	UpdateRoster(ctx context.Context, branch string, day time.Time, presents, absents []string) (*Attendance, error)
	DeleteByBranchAndDay(ctx context.Context, branch string, day time.Time) error
	// ListByUploaderPrefix returns every record uploaded by a PR of the
	// given batch+branch prefix, newest first.
	ListByUploaderPrefix(ctx context.Context, prefix string) ([]*Attendance, error)
	ListByUploaderPrefixAndMonth(ctx context.Context, prefix string, year, month int) ([]*Attendance, error)
}

// QuizStore persists quiz marks records.
type QuizStore interface {
	Create(ctx context.Context, quiz *Quiz) error
	GetByQuizID(ctx context.Context, quizID string) (*Quiz, error)
	ListByUploaderAndDay(ctx context.Context, uploadedBy string, day time.Time) ([]*Quiz, error)
	UpdateMarks(ctx context.Context, quizID string, marks MarkSet, averageScore float64) (*Quiz, error)
	// DeleteByQuizIDAndUploader removes a quiz only when uploadedBy matches.
	DeleteByQuizIDAndUploader(ctx context.Context, quizID, uploadedBy string) error
	ListByBranch(ctx context.Context, branch string) ([]*Quiz, error)
	ListByBranchAndMonth(ctx context.Context, branch string, year, month int) ([]*Quiz, error)
}

// PasswordResetStore persists OTP tickets for the forgot-password flow.
type PasswordResetStore interface {
	// Upsert replaces any existing ticket for the same email.
	Upsert(ctx context.Context, ticket *PasswordReset) error
	GetByCorrelationAndOTP(ctx context.Context, correlationID, otp string) (*PasswordReset, error)
	// DeleteByCorrelation consumes every ticket under the correlation id.
	DeleteByCorrelation(ctx context.Context, correlationID string) error
	// DeleteExpired reaps tickets past their expiry; returns rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Package storage defines the persistent record types and store interfaces
// for the placement tracker. Implementations live in subpackages
// (pkg/storage/postgres).
package storage

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record lookup misses.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned on unique-key conflicts.
	ErrAlreadyExists = errors.New("record already exists")
)

// Role is the closed enumeration of user roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleCR      Role = "CR"
	RolePR      Role = "PR"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleCR, RolePR, RoleAdmin:
		return true
	}
	return false
}

// User is an identity record. Roll number and email are each globally
// unique; the password is stored only as a bcrypt hash.
type User struct {
	ID           int64     `json:"id"`
	RollNumber   string    `json:"roll_number"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Branch       string    `json:"branch,omitempty"`
	Role         Role      `json:"role"`
	LinkedinID   string    `json:"linkedin_id,omitempty"`
	GithubID     string    `json:"git_id,omitempty"`
	LeetcodeID   string    `json:"leetcode_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Attendance is a day-scoped roster for one branch. At most one record
// exists per (branch, day).
type Attendance struct {
	ID           int64     `json:"id"`
	PRRollNumber string    `json:"pr_roll_number"`
	Branch       string    `json:"branch"`
	Title        string    `json:"title"`
	Note         string    `json:"note"`
	Presents     []string  `json:"presents"`
	Absents      []string  `json:"absents"`
	CreatedAt    time.Time `json:"created_at"`
}

// MarkSet maps roll numbers to marks obtained. Key order is irrelevant;
// values must lie in [0, totalMarks]. It round-trips through a JSONB column.
type MarkSet map[string]float64

// Value implements driver.Valuer for JSONB storage.
func (m MarkSet) Value() (driver.Value, error) {
	if m == nil {
		m = MarkSet{}
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB storage.
func (m *MarkSet) Scan(src interface{}) error {
	if src == nil {
		*m = MarkSet{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into MarkSet", src)
	}
	return json.Unmarshal(data, m)
}

// Validate checks every mark against the quiz's total.
func (m MarkSet) Validate(totalMarks float64) error {
	for rollNumber, mark := range m {
		if mark < 0 {
			return fmt.Errorf("mark for %s is negative", rollNumber)
		}
		if mark > totalMarks {
			return fmt.Errorf("mark for %s exceeds total marks", rollNumber)
		}
	}
	return nil
}

// Average returns the cohort average normalized to 0-100.
func (m MarkSet) Average(totalMarks float64) float64 {
	if len(m) == 0 || totalMarks <= 0 {
		return 0
	}
	var obtained float64
	for _, mark := range m {
		obtained += mark
	}
	return obtained / (float64(len(m)) * totalMarks) * 100
}

// Quiz is a marks record for one or more branch cohorts.
type Quiz struct {
	ID           int64     `json:"-"`
	QuizID       string    `json:"quizId"`
	Title        string    `json:"title"`
	DateOfQuiz   time.Time `json:"dateOfQuiz"`
	CreatedAt    time.Time `json:"createdAt"`
	Branches     []string  `json:"branchesInvolved"`
	TotalMarks   float64   `json:"totalMarks"`
	Marks        MarkSet   `json:"marks"`
	AverageScore float64   `json:"averageScore"`
	UploadedBy   string    `json:"uploadedBy"`
}

// PasswordReset is a short-lived OTP ticket. At most one live ticket exists
// per email; a new request overwrites the prior one.
type PasswordReset struct {
	Email         string
	OTP           string
	CorrelationID string
	ExpiresAt     time.Time
}

// Expired reports whether the ticket is past its expiry at the given time.
func (p *PasswordReset) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

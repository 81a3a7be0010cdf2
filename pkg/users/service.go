// Package users provides user administration: admin registration, bulk
// roster import and role changes, plus the HTTP surface for the
// authentication flows.
package users

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/traintrack/traintrack/pkg/auth"
	"github.com/traintrack/traintrack/pkg/observability"
	"github.com/traintrack/traintrack/pkg/roll"
	"github.com/traintrack/traintrack/pkg/storage"
)

// emailDomain is the institutional mail domain all accounts live under.
const emailDomain = "@psgtech.ac.in"

// Service implements user administration over the user store.
type Service struct {
	users  storage.UserStore
	logger *observability.Logger
}

// NewService creates a user administration service.
func NewService(users storage.UserStore, logger *observability.Logger) *Service {
	return &Service{users: users, logger: logger}
}

var (
	// ErrBadEmailDomain is returned when a registration email is outside the
	// institutional domain.
	ErrBadEmailDomain = errors.New("email must be a psgtech.ac.in address")
	// ErrInvalidRole is returned when a role change names an unknown role.
	ErrInvalidRole = errors.New("invalid role")
)

// RegisterAdmin creates an admin account. The roll number is the email's
// local part.
func (s *Service) RegisterAdmin(ctx context.Context, name, email, password string) (*storage.User, error) {
	if !strings.HasSuffix(email, emailDomain) {
		return nil, ErrBadEmailDomain
	}
	rollNumber := strings.SplitN(email, "@", 2)[0]

	exists, err := s.users.ExistsByEmailOrRoll(ctx, email, rollNumber)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, storage.ErrAlreadyExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	admin := &storage.User{
		RollNumber:   rollNumber,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         storage.RoleAdmin,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return nil, err
	}

	s.logger.WithField("roll_number", rollNumber).Info("admin registered")
	return admin, nil
}

// ChangeRole moves a user to another role in the closed enumeration.
func (s *Service) ChangeRole(ctx context.Context, rollNumber string, newRole storage.Role) (*storage.User, error) {
	if !newRole.Valid() {
		return nil, ErrInvalidRole
	}

	user, err := s.users.GetByRoll(ctx, rollNumber)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateRole(ctx, user.RollNumber, newRole); err != nil {
		return nil, err
	}
	user.Role = newRole

	s.logger.WithFields(map[string]interface{}{
		"roll_number": user.RollNumber,
		"new_role":    newRole,
	}).Info("role changed")
	return user, nil
}

// SkippedRow records why one roster row was not imported.
type SkippedRow struct {
	RollNumber string `json:"roll_number,omitempty"`
	Reason     string `json:"reason"`
}

// ImportResult summarizes a roster import.
type ImportResult struct {
	Created []string     `json:"createdUsers"`
	Skipped []SkippedRow `json:"skippedUsers"`
}

// ImportRoster bulk-creates student accounts from CSV rows of the form
// [roll_number, name, linkedin_id, leetcode_id, git_id]. Rows that fail
// validation are skipped, never aborting the batch. The default password is
// the roll number; students are expected to reset it.
func (s *Service) ImportRoster(ctx context.Context, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	result := &ImportResult{Created: []string{}, Skipped: []SkippedRow{}}
	now := time.Now()

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read roster: %w", err)
		}

		if len(row) < 5 || anyEmpty(row[:5]) {
			result.Skipped = append(result.Skipped, SkippedRow{Reason: "Missing required fields"})
			continue
		}

		rollNumber := roll.Normalize(row[0])
		name := strings.TrimSpace(row[1])
		linkedinID := strings.TrimSpace(row[2])
		leetcodeID := strings.TrimSpace(row[3])
		gitID := strings.TrimSpace(row[4])

		if err := roll.Validate(rollNumber, now); err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{RollNumber: rollNumber, Reason: err.Error()})
			continue
		}
		branch, err := roll.BranchOf(rollNumber)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{RollNumber: rollNumber, Reason: err.Error()})
			continue
		}

		email := roll.Email(rollNumber)
		exists, err := s.users.ExistsByEmailOrRoll(ctx, email, rollNumber)
		if err != nil {
			return nil, err
		}
		if exists {
			result.Skipped = append(result.Skipped, SkippedRow{RollNumber: rollNumber, Reason: "User already exists"})
			continue
		}

		hash, err := auth.HashPassword(rollNumber)
		if err != nil {
			return nil, err
		}

		user := &storage.User{
			RollNumber:   rollNumber,
			Name:         name,
			Email:        email,
			PasswordHash: hash,
			Branch:       string(branch),
			Role:         storage.RoleStudent,
			LinkedinID:   linkedinID,
			LeetcodeID:   leetcodeID,
			GithubID:     gitID,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				result.Skipped = append(result.Skipped, SkippedRow{RollNumber: rollNumber, Reason: "User already exists"})
				continue
			}
			return nil, err
		}
		result.Created = append(result.Created, rollNumber)
	}

	s.logger.WithFields(map[string]interface{}{
		"created": len(result.Created),
		"skipped": len(result.Skipped),
	}).Info("roster imported")
	return result, nil
}

func anyEmpty(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return true
		}
	}
	return false
}

// Package attendance implements day-scoped branch attendance: roster
// capture by placement representatives, admin corrections, and the monthly
// views students consume.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/traintrack/traintrack/pkg/observability"
	"github.com/traintrack/traintrack/pkg/roll"
	"github.com/traintrack/traintrack/pkg/storage"
)

var (
	// ErrDuplicateDay is returned when a branch already has a record for the
	// day.
	ErrDuplicateDay = errors.New("attendance already recorded for this branch today")
	// ErrEmptyRoster is returned when the uploader's batch has no students.
	ErrEmptyRoster = errors.New("no students found for this branch")
)

// Service implements attendance operations over the attendance and user
// stores.
type Service struct {
	attendance storage.AttendanceStore
	users      storage.UserStore
	logger     *observability.Logger
}

// NewService creates an attendance service.
func NewService(attendance storage.AttendanceStore, users storage.UserStore, logger *observability.Logger) *Service {
	return &Service{attendance: attendance, users: users, logger: logger}
}

// BranchStudents returns the roll-number to name mapping for every student
// sharing the caller's batch and branch.
func (s *Service) BranchStudents(ctx context.Context, callerRoll string) (map[string]string, error) {
	students, err := s.users.ListByRollPrefix(ctx, roll.Prefix(callerRoll))
	if err != nil {
		return nil, err
	}

	roster := make(map[string]string, len(students))
	for _, student := range students {
		roster[student.RollNumber] = student.Name
	}
	return roster, nil
}

// Create records today's attendance for the uploader's branch. Absentees are
// derived as the batch roster minus the presents; unknown roll numbers in
// the presents list are dropped. A branch gets at most one record per day.
func (s *Service) Create(ctx context.Context, prRoll, title, note string, presents []string) (*storage.Attendance, error) {
	branch, err := roll.BranchOf(prRoll)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := s.attendance.GetByBranchAndDay(ctx, string(branch), now); err == nil {
		return nil, ErrDuplicateDay
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	roster, err := s.BranchStudents(ctx, prRoll)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, ErrEmptyRoster
	}

	presentSet := make(map[string]struct{}, len(presents))
	kept := make([]string, 0, len(presents))
	for _, r := range presents {
		normalized := roll.Normalize(r)
		if _, known := roster[normalized]; !known {
			continue
		}
		if _, dup := presentSet[normalized]; dup {
			continue
		}
		presentSet[normalized] = struct{}{}
		kept = append(kept, normalized)
	}

	absents := make([]string, 0, len(roster)-len(kept))
	for rollNumber := range roster {
		if _, present := presentSet[rollNumber]; !present {
			absents = append(absents, rollNumber)
		}
	}
	sort.Strings(kept)
	sort.Strings(absents)

	record := &storage.Attendance{
		PRRollNumber: prRoll,
		Branch:       string(branch),
		Title:        title,
		Note:         note,
		Presents:     kept,
		Absents:      absents,
	}
	if err := s.attendance.Create(ctx, record); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"branch":   record.Branch,
		"presents": len(kept),
		"absents":  len(absents),
	}).Info("attendance recorded")
	return record, nil
}

// BranchesOn lists the branches with an attendance record on the given day.
func (s *Service) BranchesOn(ctx context.Context, day time.Time) ([]string, error) {
	return s.attendance.ListBranchesByDay(ctx, day)
}

// RosterFor returns the attendance record for a branch on a day.
func (s *Service) RosterFor(ctx context.Context, branch string, day time.Time) (*storage.Attendance, error) {
	if !roll.IsValidBranch(roll.Branch(branch)) {
		return nil, fmt.Errorf("unknown branch %q", branch)
	}
	return s.attendance.GetByBranchAndDay(ctx, branch, day)
}

// UpdateRoster replaces the presents of an existing record. The day's roster
// is the union of the old presents and absents; the new absents are that
// roster minus the new presents. Roll numbers outside the roster are
// dropped.
func (s *Service) UpdateRoster(ctx context.Context, branch string, day time.Time, presents []string) (*storage.Attendance, error) {
	existing, err := s.RosterFor(ctx, branch, day)
	if err != nil {
		return nil, err
	}

	roster := make(map[string]struct{}, len(existing.Presents)+len(existing.Absents))
	for _, r := range existing.Presents {
		roster[r] = struct{}{}
	}
	for _, r := range existing.Absents {
		roster[r] = struct{}{}
	}

	presentSet := make(map[string]struct{}, len(presents))
	kept := make([]string, 0, len(presents))
	for _, r := range presents {
		normalized := roll.Normalize(r)
		if _, known := roster[normalized]; !known {
			continue
		}
		if _, dup := presentSet[normalized]; dup {
			continue
		}
		presentSet[normalized] = struct{}{}
		kept = append(kept, normalized)
	}

	absents := make([]string, 0, len(roster)-len(kept))
	for rollNumber := range roster {
		if _, present := presentSet[rollNumber]; !present {
			absents = append(absents, rollNumber)
		}
	}
	sort.Strings(kept)
	sort.Strings(absents)

	return s.attendance.UpdateRoster(ctx, branch, day, kept, absents)
}

// Delete removes the caller's branch record for the given day.
func (s *Service) Delete(ctx context.Context, prRoll string, day time.Time) error {
	branch, err := roll.BranchOf(prRoll)
	if err != nil {
		return err
	}
	return s.attendance.DeleteByBranchAndDay(ctx, string(branch), day)
}

// Month labels one month that has attendance data.
type Month struct {
	Month int    `json:"month"`
	Year  int    `json:"year"`
	Title string `json:"title"`
}

// AvailableMonths lists the distinct months with attendance for the
// caller's batch and branch, newest first.
func (s *Service) AvailableMonths(ctx context.Context, callerRoll string) ([]Month, error) {
	records, err := s.attendance.ListByUploaderPrefix(ctx, roll.Prefix(callerRoll))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	months := make([]Month, 0)
	for _, record := range records {
		year, month := record.CreatedAt.Year(), record.CreatedAt.Month()
		key := fmt.Sprintf("%d-%d", year, month)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		months = append(months, Month{
			Month: int(month),
			Year:  year,
			Title: fmt.Sprintf("%s-%d", month, year),
		})
	}

	sort.Slice(months, func(i, j int) bool {
		if months[i].Year != months[j].Year {
			return months[i].Year > months[j].Year
		}
		return months[i].Month > months[j].Month
	})
	return months, nil
}

// GraphPoint is one day of a monthly attendance graph.
type GraphPoint struct {
	Date              string `json:"date"`
	AverageAttendance int    `json:"averageAttendance"`
	UserPresent       bool   `json:"userPresent"`
	Title             string `json:"title"`
}

// MonthlyGraph summarizes one month's records for the caller's batch and
// branch: per-day attendance percentage, whether the caller was present, and
// the distinct session titles.
func (s *Service) MonthlyGraph(ctx context.Context, callerRoll string, year, month int) ([]GraphPoint, []string, error) {
	records, err := s.attendance.ListByUploaderPrefixAndMonth(ctx, roll.Prefix(callerRoll), year, month)
	if err != nil {
		return nil, nil, err
	}

	points := make([]GraphPoint, 0, len(records))
	titleSeen := make(map[string]struct{})
	titles := make([]string, 0)
	for _, record := range records {
		total := len(record.Presents) + len(record.Absents)
		average := 0
		if total > 0 {
			average = int(math.Round(float64(len(record.Presents)) / float64(total) * 100))
		}

		points = append(points, GraphPoint{
			Date:              record.CreatedAt.Format("2006-01-02"),
			AverageAttendance: average,
			UserPresent:       contains(record.Presents, callerRoll),
			Title:             record.Title,
		})

		if _, ok := titleSeen[record.Title]; !ok {
			titleSeen[record.Title] = struct{}{}
			titles = append(titles, record.Title)
		}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points, titles, nil
}

func contains(rolls []string, target string) bool {
	for _, r := range rolls {
		if r == target {
			return true
		}
	}
	return false
}

// Package quiz implements quiz-marks tracking: mark upload keyed to the
// day's attendance, corrections by the uploader, and the monthly score
// views students consume.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/traintrack/traintrack/pkg/observability"
	"github.com/traintrack/traintrack/pkg/roll"
	"github.com/traintrack/traintrack/pkg/storage"
)

var (
	// ErrInvalidBranch is returned when a quiz names an unknown branch.
	ErrInvalidBranch = errors.New("unknown branch")
	// ErrNoBranches is returned when a quiz names no branches at all.
	ErrNoBranches = errors.New("at least one branch is required")
	// ErrInvalidTotal is returned when total marks is not positive.
	ErrInvalidTotal = errors.New("total marks must be positive")
)

// Service implements quiz operations over the quiz, attendance and user
// stores.
type Service struct {
	quizzes    storage.QuizStore
	attendance storage.AttendanceStore
	users      storage.UserStore
	logger     *observability.Logger
}

// NewService creates a quiz service.
func NewService(quizzes storage.QuizStore, attendance storage.AttendanceStore, users storage.UserStore, logger *observability.Logger) *Service {
	return &Service{quizzes: quizzes, attendance: attendance, users: users, logger: logger}
}

// BranchesOn lists the branches that recorded attendance on the given day,
// which are the branches a quiz can be uploaded for.
func (s *Service) BranchesOn(ctx context.Context, day time.Time) ([]string, error) {
	return s.attendance.ListBranchesByDay(ctx, day)
}

// PresentRolls returns the roll-to-name mapping of every student marked
// present on the day across the given branches. These are the candidates
// for a mark entry.
func (s *Service) PresentRolls(ctx context.Context, day time.Time, branches []string) (map[string]string, error) {
	if len(branches) == 0 {
		return nil, ErrNoBranches
	}

	seen := make(map[string]struct{})
	rolls := make([]string, 0)
	for _, branch := range branches {
		if !roll.IsValidBranch(roll.Branch(branch)) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidBranch, branch)
		}
		record, err := s.attendance.GetByBranchAndDay(ctx, branch, day)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, r := range record.Presents {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			rolls = append(rolls, r)
		}
	}

	if len(rolls) == 0 {
		return map[string]string{}, nil
	}

	students, err := s.users.ListByRolls(ctx, rolls)
	if err != nil {
		return nil, err
	}

	present := make(map[string]string, len(students))
	for _, student := range students {
		present[student.RollNumber] = student.Name
	}
	return present, nil
}

// Create records a quiz's marks. Every mark must lie within [0, totalMarks];
// the cohort average is computed and stored with the record.
func (s *Service) Create(ctx context.Context, uploadedBy, title string, dateOfQuiz time.Time, branches []string, totalMarks float64, marks storage.MarkSet) (*storage.Quiz, error) {
	if len(branches) == 0 {
		return nil, ErrNoBranches
	}
	for _, branch := range branches {
		if !roll.IsValidBranch(roll.Branch(branch)) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidBranch, branch)
		}
	}
	if totalMarks <= 0 {
		return nil, ErrInvalidTotal
	}
	if err := marks.Validate(totalMarks); err != nil {
		return nil, err
	}

	quiz := &storage.Quiz{
		QuizID:       newQuizID(dateOfQuiz, branches),
		Title:        title,
		DateOfQuiz:   dateOfQuiz,
		Branches:     branches,
		TotalMarks:   totalMarks,
		Marks:        marks,
		AverageScore: marks.Average(totalMarks),
		UploadedBy:   uploadedBy,
	}
	if err := s.quizzes.Create(ctx, quiz); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"quiz_id":  quiz.QuizID,
		"branches": strings.Join(branches, ","),
		"entries":  len(marks),
	}).Info("quiz recorded")
	return quiz, nil
}

// QuizzesOn lists the caller's quizzes for a day.
func (s *Service) QuizzesOn(ctx context.Context, uploadedBy string, day time.Time) ([]*storage.Quiz, error) {
	return s.quizzes.ListByUploaderAndDay(ctx, uploadedBy, day)
}

// Marks returns one quiz record by its quiz id.
func (s *Service) Marks(ctx context.Context, quizID string) (*storage.Quiz, error) {
	return s.quizzes.GetByQuizID(ctx, quizID)
}

// UpdateMarks replaces a quiz's marks, revalidating against the stored
// total and recomputing the average.
func (s *Service) UpdateMarks(ctx context.Context, quizID string, marks storage.MarkSet) (*storage.Quiz, error) {
	quiz, err := s.quizzes.GetByQuizID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := marks.Validate(quiz.TotalMarks); err != nil {
		return nil, err
	}
	return s.quizzes.UpdateMarks(ctx, quizID, marks, marks.Average(quiz.TotalMarks))
}

// Delete removes a quiz. Only its uploader may delete it.
func (s *Service) Delete(ctx context.Context, quizID, uploadedBy string) error {
	return s.quizzes.DeleteByQuizIDAndUploader(ctx, quizID, uploadedBy)
}

// Month labels one month that has quiz data.
type Month struct {
	Month int    `json:"month"`
	Year  int    `json:"year"`
	Title string `json:"title"`
}

// AvailableMonths lists the distinct months with quizzes for the caller's
// branch, newest first.
func (s *Service) AvailableMonths(ctx context.Context, callerRoll string) ([]Month, error) {
	branch, err := roll.BranchOf(callerRoll)
	if err != nil {
		return nil, err
	}

	quizzes, err := s.quizzes.ListByBranch(ctx, string(branch))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	months := make([]Month, 0)
	for _, quiz := range quizzes {
		year, month := quiz.DateOfQuiz.Year(), quiz.DateOfQuiz.Month()
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

// GraphPoint is one quiz in a monthly score graph. StudentMark is the
// caller's score normalized to 0-100; HasMark distinguishes a genuine zero
// from no entry.
type GraphPoint struct {
	Date         string    `json:"date"`
	Title        string    `json:"title"`
	TotalMarks   float64   `json:"totalMarks"`
	StudentMark  float64   `json:"studentMark"`
	HasMark      bool      `json:"hasMark"`
	AverageScore float64   `json:"averageScore"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MonthlyGraph summarizes one month's quizzes for the caller's branch,
// scoring the caller against the cohort average.
func (s *Service) MonthlyGraph(ctx context.Context, callerRoll string, year, month int) ([]GraphPoint, error) {
	branch, err := roll.BranchOf(callerRoll)
	if err != nil {
		return nil, err
	}

	quizzes, err := s.quizzes.ListByBranchAndMonth(ctx, string(branch), year, month)
	if err != nil {
		return nil, err
	}

	points := make([]GraphPoint, 0, len(quizzes))
	for _, quiz := range quizzes {
		mark, hasMark := quiz.Marks[callerRoll]
		studentMark := 0.0
		if hasMark && quiz.TotalMarks > 0 {
			studentMark = mark / quiz.TotalMarks * 100
		}

		points = append(points, GraphPoint{
			Date:         quiz.DateOfQuiz.Format("2006-01-02"),
			Title:        quiz.Title,
			TotalMarks:   quiz.TotalMarks,
			StudentMark:  studentMark,
			HasMark:      hasMark,
			AverageScore: quiz.AverageScore,
			CreatedAt:    quiz.CreatedAt,
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points, nil
}

// newQuizID builds a readable unique id from the quiz date, its branches and
// a millisecond timestamp.
func newQuizID(dateOfQuiz time.Time, branches []string) string {
	return fmt.Sprintf("QUIZ_%s_%s_%d",
		dateOfQuiz.Format("2006-01-02"),
		strings.Join(branches, "-"),
		time.Now().UnixMilli(),
	)
}

package quiz

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traintrack/traintrack/pkg/observability"
	"github.com/traintrack/traintrack/pkg/storage"
)

type fakeQuizStore struct {
	quizzes []*storage.Quiz
	nextID  int64
}

func (s *fakeQuizStore) Create(_ context.Context, quiz *storage.Quiz) error {
	for _, q := range s.quizzes {
		if q.QuizID == quiz.QuizID {
			return storage.ErrAlreadyExists
		}
	}
	s.nextID++
	quiz.ID = s.nextID
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = time.Now()
	}
	s.quizzes = append(s.quizzes, quiz)
	return nil
}

func (s *fakeQuizStore) GetByQuizID(_ context.Context, quizID string) (*storage.Quiz, error) {
	for _, q := range s.quizzes {
		if q.QuizID == quizID {
			return q, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeQuizStore) ListByUploaderAndDay(_ context.Context, uploadedBy string, day time.Time) ([]*storage.Quiz, error) {
	var out []*storage.Quiz
	for _, q := range s.quizzes {
		if q.UploadedBy == uploadedBy && q.DateOfQuiz.Format("2006-01-02") == day.Format("2006-01-02") {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeQuizStore) UpdateMarks(ctx context.Context, quizID string, marks storage.MarkSet, averageScore float64) (*storage.Quiz, error) {
	quiz, err := s.GetByQuizID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	quiz.Marks = marks
	quiz.AverageScore = averageScore
	return quiz, nil
}

func (s *fakeQuizStore) DeleteByQuizIDAndUploader(_ context.Context, quizID, uploadedBy string) error {
	for i, q := range s.quizzes {
		if q.QuizID == quizID && q.UploadedBy == uploadedBy {
			s.quizzes = append(s.quizzes[:i], s.quizzes[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *fakeQuizStore) ListByBranch(_ context.Context, branch string) ([]*storage.Quiz, error) {
	var out []*storage.Quiz
	for _, q := range s.quizzes {
		for _, b := range q.Branches {
			if b == branch {
				out = append(out, q)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeQuizStore) ListByBranchAndMonth(ctx context.Context, branch string, year, month int) ([]*storage.Quiz, error) {
	all, _ := s.ListByBranch(ctx, branch)
	var out []*storage.Quiz
	for _, q := range all {
		if q.DateOfQuiz.Year() == year && int(q.DateOfQuiz.Month()) == month {
			out = append(out, q)
		}
	}
	return out, nil
}

type fakeAttendanceStore struct {
	records []*storage.Attendance
}

func (s *fakeAttendanceStore) Create(_ context.Context, record *storage.Attendance) error {
	s.records = append(s.records, record)
	return nil
}

func (s *fakeAttendanceStore) GetByBranchAndDay(_ context.Context, branch string, day time.Time) (*storage.Attendance, error) {
	for _, r := range s.records {
		if r.Branch == branch && r.CreatedAt.Format("2006-01-02") == day.Format("2006-01-02") {
			return r, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeAttendanceStore) ListBranchesByDay(_ context.Context, day time.Time) ([]string, error) {
	var branches []string
	for _, r := range s.records {
		if r.CreatedAt.Format("2006-01-02") == day.Format("2006-01-02") {
			branches = append(branches, r.Branch)
		}
	}
	return branches, nil
}

func (s *fakeAttendanceStore) UpdateRoster(_ context.Context, _ string, _ time.Time, _, _ []string) (*storage.Attendance, error) {
	return nil, storage.ErrNotFound
}

func (s *fakeAttendanceStore) DeleteByBranchAndDay(_ context.Context, _ string, _ time.Time) error {
	return storage.ErrNotFound
}

func (s *fakeAttendanceStore) ListByUploaderPrefix(_ context.Context, _ string) ([]*storage.Attendance, error) {
	return nil, nil
}

func (s *fakeAttendanceStore) ListByUploaderPrefixAndMonth(_ context.Context, _ string, _, _ int) ([]*storage.Attendance, error) {
	return nil, nil
}

type fakeUserStore struct {
	names map[string]string // roll -> name
}

func (s *fakeUserStore) Create(_ context.Context, _ *storage.User) error { return nil }

func (s *fakeUserStore) GetByEmail(_ context.Context, _ string) (*storage.User, error) {
	return nil, storage.ErrNotFound
}

func (s *fakeUserStore) GetByRoll(_ context.Context, rollNumber string) (*storage.User, error) {
	name, ok := s.names[rollNumber]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.User{RollNumber: rollNumber, Name: name}, nil
}

func (s *fakeUserStore) ExistsByEmailOrRoll(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func (s *fakeUserStore) ListByRollPrefix(_ context.Context, prefix string) ([]*storage.User, error) {
	var out []*storage.User
	for r, n := range s.names {
		if strings.HasPrefix(r, prefix) {
			out = append(out, &storage.User{RollNumber: r, Name: n})
		}
	}
	return out, nil
}

func (s *fakeUserStore) ListByRolls(_ context.Context, rollNumbers []string) ([]*storage.User, error) {
	var out []*storage.User
	for _, r := range rollNumbers {
		if n, ok := s.names[r]; ok {
			out = append(out, &storage.User{RollNumber: r, Name: n})
		}
	}
	return out, nil
}

func (s *fakeUserStore) UpdatePasswordByEmail(_ context.Context, _, _ string) error { return nil }

func (s *fakeUserStore) UpdateRole(_ context.Context, _ string, _ storage.Role) error { return nil }

func newTestService() (*Service, *fakeQuizStore, *fakeAttendanceStore, *fakeUserStore) {
	quizzes := &fakeQuizStore{}
	attendance := &fakeAttendanceStore{}
	users := &fakeUserStore{names: make(map[string]string)}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewService(quizzes, attendance, users, logger), quizzes, attendance, users
}

var quizDay = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

func TestCreateComputesAverageAndID(t *testing.T) {
	service, _, _, _ := newTestService()

	quiz, err := service.Create(context.Background(), "23pw01", "Aptitude Quiz", quizDay,
		[]string{"SS"}, 20, storage.MarkSet{"23pw09": 15, "23pw10": 5})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(quiz.QuizID, "QUIZ_2026-03-10_SS_"), quiz.QuizID)
	// (15 + 5) / (2 * 20) * 100
	assert.InDelta(t, 50.0, quiz.AverageScore, 0.001)
	assert.Equal(t, "23pw01", quiz.UploadedBy)
}

func TestCreateValidation(t *testing.T) {
	service, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := service.Create(ctx, "23pw01", "Quiz", quizDay, nil, 20, storage.MarkSet{})
	assert.ErrorIs(t, err, ErrNoBranches)

	_, err = service.Create(ctx, "23pw01", "Quiz", quizDay, []string{"EE"}, 20, storage.MarkSet{})
	assert.ErrorIs(t, err, ErrInvalidBranch)

	_, err = service.Create(ctx, "23pw01", "Quiz", quizDay, []string{"SS"}, 0, storage.MarkSet{})
	assert.ErrorIs(t, err, ErrInvalidTotal)

	_, err = service.Create(ctx, "23pw01", "Quiz", quizDay, []string{"SS"}, 20,
		storage.MarkSet{"23pw09": 25})
	assert.Error(t, err)
}

func TestPresentRollsUnion(t *testing.T) {
	service, _, attendance, users := newTestService()

	users.names["23pw09"] = "Asha"
	users.names["23pc01"] = "Bala"
	attendance.records = []*storage.Attendance{
		{Branch: "SS", Presents: []string{"23pw09"}, CreatedAt: quizDay},
		{Branch: "CS", Presents: []string{"23pc01", "23pw09"}, CreatedAt: quizDay},
	}

	present, err := service.PresentRolls(context.Background(), quizDay, []string{"SS", "CS"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"23pw09": "Asha", "23pc01": "Bala"}, present)
}

func TestPresentRollsNoAttendance(t *testing.T) {
	service, _, _, _ := newTestService()

	present, err := service.PresentRolls(context.Background(), quizDay, []string{"SS"})
	require.NoError(t, err)
	assert.Empty(t, present)
}

func TestUpdateMarksRevalidates(t *testing.T) {
	service, _, _, _ := newTestService()
	ctx := context.Background()

	quiz, err := service.Create(ctx, "23pw01", "Quiz", quizDay, []string{"SS"}, 20,
		storage.MarkSet{"23pw09": 10})
	require.NoError(t, err)

	updated, err := service.UpdateMarks(ctx, quiz.QuizID, storage.MarkSet{"23pw09": 20})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, updated.AverageScore, 0.001)

	_, err = service.UpdateMarks(ctx, quiz.QuizID, storage.MarkSet{"23pw09": 25})
	assert.Error(t, err)

	_, err = service.UpdateMarks(ctx, "missing", storage.MarkSet{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteOnlyUploader(t *testing.T) {
	service, quizzes, _, _ := newTestService()
	ctx := context.Background()

	quiz, err := service.Create(ctx, "23pw01", "Quiz", quizDay, []string{"SS"}, 20, storage.MarkSet{})
	require.NoError(t, err)

	err = service.Delete(ctx, quiz.QuizID, "23pc01")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Len(t, quizzes.quizzes, 1)

	require.NoError(t, service.Delete(ctx, quiz.QuizID, "23pw01"))
	assert.Empty(t, quizzes.quizzes)
}

func TestAvailableMonths(t *testing.T) {
	service, quizzes, _, _ := newTestService()

	quizzes.quizzes = []*storage.Quiz{
		{QuizID: "a", Branches: []string{"SS"}, DateOfQuiz: time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)},
		{QuizID: "b", Branches: []string{"SS"}, DateOfQuiz: time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)},
		{QuizID: "c", Branches: []string{"SS"}, DateOfQuiz: time.Date(2026, time.January, 9, 0, 0, 0, 0, time.UTC)},
		{QuizID: "d", Branches: []string{"CS"}, DateOfQuiz: time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)},
	}

	months, err := service.AvailableMonths(context.Background(), "23pw09")
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, Month{Month: 3, Year: 2026, Title: "March-2026"}, months[0])
	assert.Equal(t, Month{Month: 1, Year: 2026, Title: "January-2026"}, months[1])
}

func TestMonthlyGraph(t *testing.T) {
	service, quizzes, _, _ := newTestService()

	quizzes.quizzes = []*storage.Quiz{
		{
			QuizID: "a", Title: "Aptitude", Branches: []string{"SS"},
			DateOfQuiz: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
			TotalMarks: 20, AverageScore: 50,
			Marks: storage.MarkSet{"23pw09": 15},
		},
		{
			QuizID: "b", Title: "Coding", Branches: []string{"SS"},
			DateOfQuiz: time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC),
			TotalMarks: 10, AverageScore: 40,
			Marks: storage.MarkSet{"23pw10": 4},
		},
	}

	points, err := service.MonthlyGraph(context.Background(), "23pw09", 2026, 3)
	require.NoError(t, err)
	require.Len(t, points, 2)

	// Sorted by quiz date; the caller has no entry in the first quiz.
	assert.Equal(t, "2026-03-03", points[0].Date)
	assert.False(t, points[0].HasMark)
	assert.Zero(t, points[0].StudentMark)

	assert.Equal(t, "2026-03-10", points[1].Date)
	assert.True(t, points[1].HasMark)
	assert.InDelta(t, 75.0, points[1].StudentMark, 0.001)
	assert.InDelta(t, 50.0, points[1].AverageScore, 0.001)
}

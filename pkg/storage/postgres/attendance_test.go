package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traintrack/traintrack/pkg/storage"
)

func newMockAttendanceStore(t *testing.T) (sqlmock.Sqlmock, *AttendanceStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewAttendanceStore(db)
}

func attendanceRow(created time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "pr_roll_number", "branch", "title", "note", "presents", "absents", "created_at",
	}).AddRow(int64(1), "23pw01", "SS", "Aptitude", "Session 4", "{23pw01,23pw09}", "{23pw10}", created)
}

func TestAttendanceStoreCreate(t *testing.T) {
	mock, store := newMockAttendanceStore(t)

	record := &storage.Attendance{
		PRRollNumber: "23pw01",
		Branch:       "SS",
		Title:        "Aptitude",
		Note:         "Session 4",
		Presents:     []string{"23pw01", "23pw09"},
		Absents:      []string{"23pw10"},
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance")).
		WithArgs(record.PRRollNumber, record.Branch, record.Title, record.Note,
			pq.Array(record.Presents), pq.Array(record.Absents)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(int64(1), time.Now()))

	require.NoError(t, store.Create(context.Background(), record))
	assert.Equal(t, int64(1), record.ID)
}

func TestAttendanceStoreGetByBranchAndDay(t *testing.T) {
	mock, store := newMockAttendanceStore(t)

	day := time.Date(2026, time.March, 10, 14, 30, 0, 0, time.Local)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE branch = $1 AND created_at >= $2 AND created_at < $3")).
		WithArgs("SS", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(attendanceRow(day))

	record, err := store.GetByBranchAndDay(context.Background(), "SS", day)
	require.NoError(t, err)
	assert.Equal(t, []string{"23pw01", "23pw09"}, record.Presents)
	assert.Equal(t, []string{"23pw10"}, record.Absents)
}

func TestAttendanceStoreGetByBranchAndDayMiss(t *testing.T) {
	mock, store := newMockAttendanceStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE branch = $1 AND created_at >= $2 AND created_at < $3")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "pr_roll_number", "branch", "title", "note", "presents", "absents", "created_at",
		}))

	_, err := store.GetByBranchAndDay(context.Background(), "SS", time.Now())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAttendanceStoreListBranchesByDay(t *testing.T) {
	mock, store := newMockAttendanceStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT branch FROM attendance")).
		WillReturnRows(sqlmock.NewRows([]string{"branch"}).AddRow("CS").AddRow("SS"))

	branches, err := store.ListBranchesByDay(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"CS", "SS"}, branches)
}

func TestAttendanceStoreUpdateRoster(t *testing.T) {
	mock, store := newMockAttendanceStore(t)

	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.Local)
	presents := []string{"23pw01", "23pw09"}
	absents := []string{"23pw10"}

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE attendance SET presents = $1, absents = $2")).
		WithArgs(pq.Array(presents), pq.Array(absents), "SS", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(attendanceRow(day))

	record, err := store.UpdateRoster(context.Background(), "SS", day, presents, absents)
	require.NoError(t, err)
	assert.Equal(t, presents, record.Presents)
}

func TestAttendanceStoreDeleteByBranchAndDayMiss(t *testing.T) {
	mock, store := newMockAttendanceStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance WHERE branch = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteByBranchAndDay(context.Background(), "SS", time.Now())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAttendanceStoreListByUploaderPrefix(t *testing.T) {
	mock, store := newMockAttendanceStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("LIKE LOWER($1) || '%' ORDER BY created_at DESC")).
		WithArgs("23pw").
		WillReturnRows(attendanceRow(time.Now()))

	records, err := store.ListByUploaderPrefix(context.Background(), "23pw")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "23pw01", records[0].PRRollNumber)
}

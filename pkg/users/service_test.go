package users

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traintrack/traintrack/pkg/auth"
	"github.com/traintrack/traintrack/pkg/observability"
	"github.com/traintrack/traintrack/pkg/storage"
)

type fakeUserStore struct {
	users map[string]*storage.User // keyed by email
}

func newFakeUserStore(users ...*storage.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]*storage.User)}
	for _, u := range users {
		s.users[u.Email] = u
	}
	return s
}

func (s *fakeUserStore) Create(_ context.Context, user *storage.User) error {
	if _, ok := s.users[user.Email]; ok {
		return storage.ErrAlreadyExists
	}
	s.users[user.Email] = user
	return nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*storage.User, error) {
	user, ok := s.users[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

func (s *fakeUserStore) GetByRoll(_ context.Context, rollNumber string) (*storage.User, error) {
	for _, u := range s.users {
		if u.RollNumber == rollNumber {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeUserStore) ExistsByEmailOrRoll(_ context.Context, email, rollNumber string) (bool, error) {
	for _, u := range s.users {
		if u.Email == email || u.RollNumber == rollNumber {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeUserStore) ListByRollPrefix(_ context.Context, prefix string) ([]*storage.User, error) {
	var out []*storage.User
	for _, u := range s.users {
		if strings.HasPrefix(u.RollNumber, prefix) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *fakeUserStore) ListByRolls(_ context.Context, rollNumbers []string) ([]*storage.User, error) {
	var out []*storage.User
	for _, r := range rollNumbers {
		for _, u := range s.users {
			if u.RollNumber == r {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (s *fakeUserStore) UpdatePasswordByEmail(_ context.Context, email, passwordHash string) error {
	user, ok := s.users[email]
	if !ok {
		return storage.ErrNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (s *fakeUserStore) UpdateRole(_ context.Context, rollNumber string, role storage.Role) error {
	for _, u := range s.users {
		if u.RollNumber == rollNumber {
			u.Role = role
			return nil
		}
	}
	return storage.ErrNotFound
}

func newTestService(users *fakeUserStore) *Service {
	return NewService(users, observability.NewLogger(observability.ErrorLevel, io.Discard))
}

// activeRoll builds a roll number in the current admission window so batch
// validation passes regardless of when the test runs.
func activeRoll(serial int) string {
	return fmt.Sprintf("%02dpw%02d", time.Now().Year()%100, serial)
}

func TestRegisterAdmin(t *testing.T) {
	store := newFakeUserStore()
	service := newTestService(store)

	admin, err := service.RegisterAdmin(context.Background(), "Prof. Kumar", "placement@psgtech.ac.in", "Abc123!@")
	require.NoError(t, err)
	assert.Equal(t, "placement", admin.RollNumber)
	assert.Equal(t, storage.RoleAdmin, admin.Role)
	assert.True(t, auth.CheckPassword(admin.PasswordHash, "Abc123!@"))
}

func TestRegisterAdminWrongDomain(t *testing.T) {
	service := newTestService(newFakeUserStore())

	_, err := service.RegisterAdmin(context.Background(), "Mallory", "mallory@gmail.com", "Abc123!@")
	assert.ErrorIs(t, err, ErrBadEmailDomain)
}

func TestRegisterAdminDuplicate(t *testing.T) {
	store := newFakeUserStore(&storage.User{
		RollNumber: "placement",
		Email:      "placement@psgtech.ac.in",
	})
	service := newTestService(store)

	_, err := service.RegisterAdmin(context.Background(), "Prof. Kumar", "placement@psgtech.ac.in", "Abc123!@")
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestChangeRole(t *testing.T) {
	roll := activeRoll(9)
	store := newFakeUserStore(&storage.User{
		RollNumber: roll,
		Email:      roll + "@psgtech.ac.in",
		Role:       storage.RoleStudent,
	})
	service := newTestService(store)

	user, err := service.ChangeRole(context.Background(), roll, storage.RolePR)
	require.NoError(t, err)
	assert.Equal(t, storage.RolePR, user.Role)
	assert.Equal(t, storage.RolePR, store.users[roll+"@psgtech.ac.in"].Role)
}

func TestChangeRoleInvalid(t *testing.T) {
	service := newTestService(newFakeUserStore())

	_, err := service.ChangeRole(context.Background(), "23pw09", storage.Role("superuser"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestChangeRoleUnknownUser(t *testing.T) {
	service := newTestService(newFakeUserStore())

	_, err := service.ChangeRole(context.Background(), "23pw09", storage.RolePR)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestImportRoster(t *testing.T) {
	store := newFakeUserStore()
	service := newTestService(store)

	rollA := activeRoll(1)
	rollB := activeRoll(2)
	csv := strings.Join([]string{
		rollA + ",Asha,asha-in,asha-lc,asha-gh",
		rollB + ",Bala,bala-in,bala-lc,bala-gh",
	}, "\n")

	result, err := service.ImportRoster(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, []string{rollA, rollB}, result.Created)
	assert.Empty(t, result.Skipped)

	user, err := store.GetByRoll(context.Background(), rollA)
	require.NoError(t, err)
	assert.Equal(t, "Asha", user.Name)
	assert.Equal(t, rollA+"@psgtech.ac.in", user.Email)
	assert.Equal(t, "SS", user.Branch)
	assert.Equal(t, storage.RoleStudent, user.Role)
	assert.Equal(t, "asha-gh", user.GithubID)
	// The default password is the roll number.
	assert.True(t, auth.CheckPassword(user.PasswordHash, rollA))
}

func TestImportRosterSkipsBadRows(t *testing.T) {
	existing := activeRoll(1)
	store := newFakeUserStore(&storage.User{
		RollNumber: existing,
		Email:      existing + "@psgtech.ac.in",
	})
	service := newTestService(store)

	good := activeRoll(2)
	stale := fmt.Sprintf("%02dpw09", (time.Now().Year()-5)%100)
	csv := strings.Join([]string{
		existing + ",Asha,in,lc,gh", // already registered
		stale + ",Old,in,lc,gh",     // batch outside the active window
		"99xx01,Who,in,lc,gh",       // malformed roll number
		good + ",Bala,,lc,gh",       // missing linkedin id
		good + ",Bala,in,lc,gh",     // valid
	}, "\n")

	result, err := service.ImportRoster(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, []string{good}, result.Created)
	require.Len(t, result.Skipped, 4)
	assert.Equal(t, "User already exists", result.Skipped[0].Reason)
	assert.Equal(t, "Missing required fields", result.Skipped[3].Reason)
}

func TestImportRosterNormalizesCase(t *testing.T) {
	store := newFakeUserStore()
	service := newTestService(store)

	roll := activeRoll(3)
	upper := strings.ToUpper(roll)

	result, err := service.ImportRoster(context.Background(), strings.NewReader(upper+",Asha,in,lc,gh"))
	require.NoError(t, err)
	assert.Equal(t, []string{roll}, result.Created)
}

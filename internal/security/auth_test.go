package security

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tagbox/internal/db"
	"tagbox/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestProvider(t *testing.T) (*Provider, *db.DB, *fakeClock) {
	t.Helper()
	database, err := db.Init("sqlite3", filepath.Join(t.TempDir(), "auth.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	p := NewProvider(database, NewSessionStore(), Options{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost})
	p.Now = clock.Now
	return p, database, clock
}

func addUser(t *testing.T, p *Provider, username, password string, rights ...models.Right) *models.User {
	t.Helper()
	user := models.NewUser(username, rights...)
	require.NoError(t, p.SetPassword(context.Background(), user, password))
	return user
}

func TestLoginThenValidateUntilExpiry(t *testing.T) {
	p, _, clock := newTestProvider(t)
	addUser(t, p, "jen", "hunter2", models.RightUser)

	login, err := p.Login(context.Background(), "jen", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)

	assert.Equal(t, p.Now().Add(p.SessionTTL()), login.Expiry)

	got := p.Validate(login.Token)
	require.NotNil(t, got)
	assert.Equal(t, "jen", got.Username)

	clock.Advance(59 * time.Minute)
	require.NotNil(t, p.Validate(login.Token))
	assert.Equal(t, login.Expiry, p.Validate(login.Token).Expiry, "validate must not slide the expiry")

	clock.Advance(time.Minute)
	assert.Nil(t, p.Validate(login.Token), "a session is invalid at its expiry instant")
}

func TestLoginFailureDoesNotDistinguishCauses(t *testing.T) {
	p, _, _ := newTestProvider(t)
	addUser(t, p, "jen", "hunter2", models.RightUser)

	_, err := p.Login(context.Background(), "jen", "wrong")
	assert.ErrorIs(t, err, ErrLoginFailure)

	_, err = p.Login(context.Background(), "nobody", "hunter2")
	assert.ErrorIs(t, err, ErrLoginFailure)
}

func TestValidateUnknownOrLoggedOutToken(t *testing.T) {
	p, _, _ := newTestProvider(t)
	addUser(t, p, "jen", "pw", models.RightUser)

	assert.Nil(t, p.Validate("never-issued"))
	assert.Nil(t, p.Validate(""))

	login, err := p.Login(context.Background(), "jen", "pw")
	require.NoError(t, err)
	p.Logout(login.Token)
	p.Logout(login.Token)
	assert.Nil(t, p.Validate(login.Token))
}

func TestCurrentUserFallsBackToGuest(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestProvider(t)
	addUser(t, p, "jen", "pw", models.RightUser)

	user, err := p.CurrentUser(ctx, "bogus")
	require.NoError(t, err)
	assert.True(t, user.IsGuest())
	assert.True(t, user.HasRight(models.RightGuest))
	assert.False(t, user.HasRight(models.RightUser))

	login, err := p.Login(ctx, "jen", "pw")
	require.NoError(t, err)
	user, err = p.CurrentUser(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, "jen", user.Username)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	p, database, _ := newTestProvider(t)
	user := addUser(t, p, "jen", "old", models.RightUser)
	user.AddAttribute(models.AttrPasswordResetRequired)
	require.NoError(t, database.PutUser(ctx, user))

	stored, err := database.GetUser(ctx, "jen")
	require.NoError(t, err)
	before := stored.PassHash

	err = p.ChangePassword(ctx, stored, "wrong-old", "new")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	after, err := database.GetUser(ctx, "jen")
	require.NoError(t, err)
	assert.Equal(t, before, after.PassHash)
	assert.True(t, after.HasAttribute(models.AttrPasswordResetRequired))

	require.NoError(t, p.ChangePassword(ctx, after, "old", "new"))
	changed, err := database.GetUser(ctx, "jen")
	require.NoError(t, err)
	assert.False(t, changed.HasAttribute(models.AttrPasswordResetRequired))
	assert.True(t, ComparePasswords(changed.PassHash, "new"))
	assert.Equal(t, []models.Right{models.RightUser}, changed.RightList())

	cost, err := bcrypt.Cost([]byte(changed.PassHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestRequireRight(t *testing.T) {
	p, _, _ := newTestProvider(t)
	admin := models.NewUser("admin", models.RightAdmin)
	user := models.NewUser("jen", models.RightUser)

	assert.NoError(t, p.RequireRight(admin, models.RightUpload))
	assert.True(t, p.HasRight(admin, models.RightUpload))

	err := p.RequireRight(user, models.RightUpload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccessDenied)
	var denied *AccessDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, models.RightUpload, denied.Right)

	assert.Error(t, RequireRights(user, models.RightUser, models.RightAdmin))
	assert.NoError(t, RequireRights(user, models.RightUser))
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	p, database, _ := newTestProvider(t)

	password, err := p.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.Len(t, password, initialPasswordLength)

	admin, err := database.GetUser(ctx, AdminUsername)
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.True(t, admin.HasRight(models.RightAdmin))
	assert.True(t, admin.HasAttribute(models.AttrPasswordResetRequired))
	assert.True(t, ComparePasswords(admin.PassHash, password))

	again, err := p.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestProvider(t)

	_, err := p.CreateUser(ctx, "jen", "pw", models.RightUser)
	require.NoError(t, err)
	_, err = p.CreateUser(ctx, "jen", "pw", models.RightUser)
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestCreateUserRejectsReservedNames(t *testing.T) {
	ctx := context.Background()
	p, database, _ := newTestProvider(t)

	for _, name := range []string{"guest", "Guest", "", " jen"} {
		_, err := p.CreateUser(ctx, name, "pw", models.RightUser)
		assert.ErrorIs(t, err, ErrInvalidUsername, name)
	}
	users, err := database.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

// readOnlyStore serves reads from the database and fails every write.
type readOnlyStore struct {
	*db.DB
}

func (readOnlyStore) PutUser(context.Context, *models.User) error {
	return errors.New("disk full")
}

func TestChangePasswordLeavesUserUntouchedWhenWriteFails(t *testing.T) {
	ctx := context.Background()
	p, database, _ := newTestProvider(t)
	user := addUser(t, p, "jen", "old", models.RightUser)
	user.AddAttribute(models.AttrPasswordResetRequired)
	require.NoError(t, database.PutUser(ctx, user))
	hash := user.PassHash

	failing := NewProvider(readOnlyStore{database}, NewSessionStore(), Options{BcryptCost: bcrypt.MinCost})
	err := failing.ChangePassword(ctx, user, "old", "new")
	require.ErrorContains(t, err, "disk full")

	assert.Equal(t, hash, user.PassHash)
	assert.True(t, user.HasAttribute(models.AttrPasswordResetRequired))

	require.NoError(t, p.ChangePassword(ctx, user, "old", "new"))
	assert.True(t, ComparePasswords(user.PassHash, "new"))
	assert.False(t, user.HasAttribute(models.AttrPasswordResetRequired))
}

package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tagbox/internal/models"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultBcryptCost = 12

	AdminUsername = "admin"

	initialPasswordLength = 10
)

// UserStore is the persistence the provider needs. *db.DB implements it.
type UserStore interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	PutUser(ctx context.Context, user *models.User) error
}

type Options struct {
	SessionTTL time.Duration
	BcryptCost int
	Logger     *slog.Logger
}

// Provider authenticates credentials, issues and validates session tokens
// and answers rights checks.
type Provider struct {
	users    UserStore
	sessions *SessionStore
	ttl      time.Duration
	cost     int
	log      *slog.Logger

	// Now is replaceable in tests.
	Now func() time.Time
}

func NewProvider(users UserStore, sessions *SessionStore, opts Options) *Provider {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = DefaultBcryptCost
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Provider{
		users:    users,
		sessions: sessions,
		ttl:      opts.SessionTTL,
		cost:     opts.BcryptCost,
		log:      opts.Logger,
		Now:      time.Now,
	}
}

func (p *Provider) SessionTTL() time.Duration {
	return p.ttl
}

// Login checks the credentials and starts a session. Unknown users and
// wrong passwords both yield ErrLoginFailure.
func (p *Provider) Login(ctx context.Context, username, password string) (*models.Login, error) {
	user, err := p.users.GetUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || !ComparePasswords(user.PassHash, password) {
		p.log.Info("login failed", "username", username)
		return nil, ErrLoginFailure
	}

	login := &models.Login{
		Username: user.Username,
		Token:    uuid.NewString(),
		Expiry:   p.Now().Add(p.ttl),
	}
	p.sessions.Put(login)
	p.log.Info("login", "username", user.Username, "expires", login.Expiry)
	return login, nil
}

// Validate returns the live login for token, or nil. Expiry is never
// extended.
func (p *Provider) Validate(token string) *models.Login {
	if token == "" {
		return nil
	}
	login := p.sessions.Get(token)
	if login == nil {
		return nil
	}
	if !login.Valid(p.Now()) {
		p.sessions.Drop(token)
		return nil
	}
	return login
}

// CurrentUser resolves token to its user, or to Guest when there is no
// valid session or the user no longer exists.
func (p *Provider) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	login := p.Validate(token)
	if login == nil {
		return models.Guest(), nil
	}
	user, err := p.users.GetUser(ctx, login.Username)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		p.sessions.Drop(token)
		return models.Guest(), nil
	}
	return user, nil
}

// Logout ends the session. It is idempotent.
func (p *Provider) Logout(token string) {
	p.sessions.Drop(token)
}

// ChangePassword replaces the user's password after verifying old, and
// clears any forced reset. On failure neither the stored row nor user is
// changed.
func (p *Provider) ChangePassword(ctx context.Context, user *models.User, oldPassword, newPassword string) error {
	if user == nil || user.IsGuest() || !ComparePasswords(user.PassHash, oldPassword) {
		return ErrInvalidCredentials
	}
	updated := user.Clone()
	updated.RemoveAttribute(models.AttrPasswordResetRequired)
	if err := p.SetPassword(ctx, updated, newPassword); err != nil {
		return err
	}
	*user = *updated
	p.log.Info("password changed", "username", user.Username)
	return nil
}

// SetPassword hashes password with the configured cost and stores the
// whole user. user is updated only once the write succeeds.
func (p *Provider) SetPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := HashPassword(password, p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	updated := user.Clone()
	updated.PassHash = hash
	if err := p.users.PutUser(ctx, updated); err != nil {
		return err
	}
	*user = *updated
	return nil
}

// CreateUser stores a new user who must change password on first login.
// An empty password is replaced by a random one, which is returned.
func (p *Provider) CreateUser(ctx context.Context, username, password string, rights ...models.Right) (string, error) {
	if strings.TrimSpace(username) != username || username == "" || models.IsReservedUsername(username) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	existing, err := p.users.GetUser(ctx, username)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	if password == "" {
		if password, err = RandomPassword(initialPasswordLength); err != nil {
			return "", err
		}
	}
	user := models.NewUser(username, rights...)
	user.AddAttribute(models.AttrPasswordResetRequired)
	if err := p.SetPassword(ctx, user, password); err != nil {
		return "", err
	}
	p.log.Info("user created", "username", username, "rights", user.RightList())
	return password, nil
}

// EnsureAdmin creates the admin account when it is missing and returns
// its generated password. It returns "" if admin already exists.
func (p *Provider) EnsureAdmin(ctx context.Context) (string, error) {
	password, err := p.CreateUser(ctx, AdminUsername, "", models.RightAdmin)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return "", nil
		}
		return "", fmt.Errorf("create admin: %w", err)
	}
	p.log.Warn("admin user created, please change the initial password", "username", AdminUsername)
	return password, nil
}

func (p *Provider) HasRight(user *models.User, right models.Right) bool {
	return user.HasRight(right)
}

// RequireRight fails with *AccessDeniedError unless user has right.
func (p *Provider) RequireRight(user *models.User, right models.Right) error {
	return RequireRights(user, right)
}

// RequireRights checks every right in turn.
func RequireRights(user *models.User, rights ...models.Right) error {
	for _, right := range rights {
		if !user.HasRight(right) {
			return &AccessDeniedError{Right: right}
		}
	}
	return nil
}

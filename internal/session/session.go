// Package session holds the CLI's signed-in user and bearer token.
//
// The current Session is immutable and swapped atomically, so a reader never
// observes a half-applied login or logout. State is mirrored to a Storage so it
// survives between invocations.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/jonathan/blitz/internal/client"
	"github.com/jonathan/blitz/internal/types"
)

// Fallback messages when the server gives none.
const (
	LoginFailedMessage    = "Login failed"
	RegisterFailedMessage = "Registration failed"
)

// Session is a signed-in user and the tokens issued to them. Never mutate a published Session.
type Session struct {
	User         *types.User
	Token        string
	RefreshToken string
}

// Result reports the outcome of Login and Register.
type Result struct {
	Success bool
	Message string
	User    *types.User
}

// AuthAPI is the subset of the auth endpoints the store drives.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*types.LoginResponse, error)
	Register(ctx context.Context, req *types.RegisterRequest) (*types.UserResponse, error)
	Profile(ctx context.Context) (*types.UserResponse, error)
	Logout(ctx context.Context, refreshToken string) (*types.MessageResponse, error)
}

// Store is the process-wide session.
type Store struct {
	storage Storage
	api     AuthAPI
	logger  *slog.Logger

	current atomic.Pointer[Session]
	loading atomic.Bool
}

// New creates a Store and publishes whatever Storage already holds. The stored user is
// unverified until Bootstrap runs.
func New(storage Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{storage: storage, logger: logger}
	s.loading.Store(true)
	s.current.Store(s.loadStored())
	return s
}

// SetAuthAPI binds the endpoints used by Bootstrap, Login, Register and Logout.
func (s *Store) SetAuthAPI(api AuthAPI) {
	s.api = api
}

// Current returns the published session, or nil when signed out.
func (s *Store) Current() *Session {
	return s.current.Load()
}

// Token returns the bearer token, or "" when signed out.
func (s *Store) Token() string {
	if cur := s.current.Load(); cur != nil {
		return cur.Token
	}
	return ""
}

// User returns the signed-in user, or nil.
func (s *Store) User() *types.User {
	if cur := s.current.Load(); cur != nil {
		return cur.User
	}
	return nil
}

func (s *Store) IsAuthenticated() bool {
	return s.User() != nil
}

func (s *Store) IsAdmin() bool {
	return s.User().IsAdmin()
}

// LoadingInitial is true until Bootstrap has finished.
func (s *Store) LoadingInitial() bool {
	return s.loading.Load()
}

// Clear drops the session from memory and storage.
func (s *Store) Clear() {
	s.current.Store(nil)
	if err := s.storage.Delete(KeyToken, KeyRefreshToken, KeyUser); err != nil {
		s.logger.Warn("failed to clear stored session", "error", err)
	}
}

// Bootstrap verifies the stored token against the profile endpoint. On success the
// server's copy of the user replaces the cached one; on any failure the session is cleared.
func (s *Store) Bootstrap(ctx context.Context) {
	defer s.loading.Store(false)

	cur := s.current.Load()
	if cur == nil || cur.Token == "" {
		if cur != nil {
			s.clearIf(cur)
		}
		return
	}

	if s.api == nil {
		s.logger.Debug("no auth endpoints bound; dropping stored session")
		s.clearIf(cur)
		return
	}
	resp, err := s.api.Profile(ctx)
	if err != nil || resp == nil || resp.User == nil {
		s.logger.Debug("stored session rejected", "error", err)
		s.clearIf(cur)
		return
	}
	// Login or Logout may have replaced cur while the profile request was in flight.
	s.publishIf(cur, &Session{User: resp.User, Token: cur.Token, RefreshToken: cur.RefreshToken})
}

// Login signs in and persists the session. It never returns an error; failures are in Result.
func (s *Store) Login(ctx context.Context, email, password string) Result {
	if s.api == nil {
		return Result{Message: LoginFailedMessage}
	}
	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		return Result{Message: client.Message(err, LoginFailedMessage)}
	}
	if !resp.Success || resp.User == nil || resp.Tokens == nil || resp.Tokens.AccessToken == "" {
		msg := resp.Message
		if msg == "" {
			msg = LoginFailedMessage
		}
		return Result{Message: msg}
	}

	s.publish(&Session{
		User:         resp.User,
		Token:        resp.Tokens.AccessToken,
		RefreshToken: resp.Tokens.RefreshToken,
	})
	s.loading.Store(false)
	return Result{Success: true, Message: resp.Message, User: resp.User}
}

// Register creates an account without signing in.
func (s *Store) Register(ctx context.Context, req *types.RegisterRequest) Result {
	if s.api == nil {
		return Result{Message: RegisterFailedMessage}
	}
	resp, err := s.api.Register(ctx, req)
	if err != nil {
		return Result{Message: client.Message(err, RegisterFailedMessage)}
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = RegisterFailedMessage
		}
		return Result{Message: msg}
	}
	return Result{Success: true, Message: resp.Message, User: resp.User}
}

// Logout asks the server to revoke the tokens, ignoring failure, and always clears.
func (s *Store) Logout(ctx context.Context) {
	if cur := s.current.Load(); cur != nil && cur.Token != "" && s.api != nil {
		if _, err := s.api.Logout(ctx, cur.RefreshToken); err != nil {
			s.logger.Debug("logout request failed", "error", err)
		}
	}
	s.Clear()
}

// publish swaps in next and mirrors it to storage.
func (s *Store) publish(next *Session) {
	s.current.Store(next)
	s.persist(next)
}

// publishIf installs next only while cur is still the published session.
func (s *Store) publishIf(cur, next *Session) bool {
	if !s.current.CompareAndSwap(cur, next) {
		return false
	}
	s.persist(next)
	return true
}

// clearIf drops cur, leaving any session published since untouched.
func (s *Store) clearIf(cur *Session) bool {
	if !s.current.CompareAndSwap(cur, nil) {
		return false
	}
	if err := s.storage.Delete(KeyToken, KeyRefreshToken, KeyUser); err != nil {
		s.logger.Warn("failed to clear stored session", "error", err)
	}
	return true
}

func (s *Store) persist(next *Session) {
	userJSON, err := json.Marshal(next.User)
	if err != nil {
		s.logger.Warn("failed to encode user for storage", "error", err)
		return
	}
	for _, kv := range [][2]string{
		{KeyToken, next.Token},
		{KeyRefreshToken, next.RefreshToken},
		{KeyUser, string(userJSON)},
	} {
		if err := s.storage.Set(kv[0], kv[1]); err != nil {
			s.logger.Warn("failed to persist session", "key", kv[0], "error", err)
		}
	}
}

// loadStored rebuilds a Session from storage, or nil when there is no token.
func (s *Store) loadStored() *Session {
	token, ok := s.storage.Get(KeyToken)
	if !ok || token == "" {
		return nil
	}
	sess := &Session{Token: token}
	sess.RefreshToken, _ = s.storage.Get(KeyRefreshToken)

	if raw, ok := s.storage.Get(KeyUser); ok && raw != "" {
		var u types.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.logger.Warn("ignoring unreadable stored user", "error", err)
		} else {
			sess.User = &u
		}
	}
	return sess
}

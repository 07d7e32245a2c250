// Package session owns the client's authentication state: it persists the
// session with an expiry, restores it at start, sweeps expired sessions and
// follows changes written to the shared store by other processes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/visium/internal/api"
	"github.com/me/visium/internal/logging"
	"github.com/me/visium/internal/store"
	"github.com/me/visium/pkg/model"
)

const (
	// DefaultTTL is the lifetime of a new session.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultSweepInterval is how often RunExpirySweep checks the stored expiry.
	DefaultSweepInterval = time.Minute
)

var (
	// ErrNotAuthenticated is returned by Token when there is no valid session.
	ErrNotAuthenticated = api.ErrAuthRequired
	// ErrMissingField is returned when a required credential is empty.
	ErrMissingField = errors.New("required field is empty")
)

// Authenticator is the backend side of login and registration.
type Authenticator interface {
	IssueToken(ctx context.Context, username, password string) (string, error)
	Signup(ctx context.Context, username, email, password string) error
}

var _ api.TokenSource = (*Manager)(nil)

// Snapshot is the state delivered to subscribers after each transition.
type Snapshot struct {
	State     model.AuthState
	Session   *model.Session
	ExpiresAt time.Time
}

// Manager is the session service. It is safe for concurrent use; network
// calls run without holding the state lock and their outcome is applied when
// the response arrives.
type Manager struct {
	store     store.Store
	auth      Authenticator
	nav       Navigator
	notifier  logging.Notifier
	logger    *slog.Logger
	now       func() time.Time
	ttl       time.Duration
	protected []string

	mu        sync.Mutex
	state     model.AuthState
	current   *model.Session
	expiresAt time.Time
	restored  bool

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// Option configures a Manager.
type Option func(*Manager)

// WithNavigator sets the view navigator. Defaults to a Router at "/".
func WithNavigator(n Navigator) Option {
	return func(m *Manager) { m.nav = n }
}

// WithNotifier sets where user-facing notifications go.
func WithNotifier(n logging.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTTL sets the lifetime of new sessions.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithProtectedPaths sets the views that require a session.
func WithProtectedPaths(paths []string) Option {
	return func(m *Manager) { m.protected = append([]string(nil), paths...) }
}

// NewManager creates a session manager in the Loading state.
func NewManager(st store.Store, auth Authenticator, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		auth:      auth,
		notifier:  logging.NopNotifier{},
		logger:    logging.Discard(),
		now:       time.Now,
		ttl:       DefaultTTL,
		protected: DefaultProtectedPaths,
		state:     model.AuthStateLoading,
		subs:      make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.nav == nil {
		m.nav = NewRouter(PathHome)
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// --- accessors ---

// State returns the current auth state.
func (m *Manager) State() model.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Loading reports whether Restore has not completed yet.
func (m *Manager) Loading() bool {
	return m.State() == model.AuthStateLoading
}

// Authenticated reports whether a session is held.
func (m *Manager) Authenticated() bool {
	return m.State() == model.AuthStateAuthenticated
}

// Session returns a copy of the current session, or nil.
func (m *Manager) Session() *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// ExpiresAt returns the expiry of the current session, zero when absent.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

// Token returns the bearer token of a valid session.
func (m *Manager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.Token == "" {
		return "", ErrNotAuthenticated
	}
	if !m.expiresAt.IsZero() && !model.IsValidAt(m.expiresAt, m.now()) {
		return "", ErrNotAuthenticated
	}
	return m.current.Token, nil
}

// Claims decodes the current token's claims for display.
func (m *Manager) Claims() (*TokenClaims, error) {
	token, err := m.Token()
	if err != nil {
		return nil, err
	}
	return ParseTokenClaims(token)
}

// Subscribe registers fn to receive a Snapshot after every transition.
// The returned function cancels the subscription.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) publish(snap Snapshot) {
	m.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// --- state changes (callers hold m.mu) ---

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state, ExpiresAt: m.expiresAt}
	if m.current != nil {
		s := *m.current
		snap.Session = &s
	}
	return snap
}

func (m *Manager) setStateLocked(next model.AuthState) {
	if !m.state.CanTransitionTo(next) {
		m.logger.Error("rejected state change", "error", &model.InvalidTransitionError{From: m.state, To: next})
		return
	}
	m.state = next
}

// adoptLocked makes sess current and reports whether anything changed.
func (m *Manager) adoptLocked(sess *model.Session, expiresAt time.Time) bool {
	changed := m.state != model.AuthStateAuthenticated || !m.current.Equal(sess) || !m.expiresAt.Equal(expiresAt)
	m.current = sess
	m.expiresAt = expiresAt
	m.setStateLocked(model.AuthStateAuthenticated)
	return changed
}

// clearLocked drops the current session and reports whether anything changed.
func (m *Manager) clearLocked() bool {
	changed := m.state != model.AuthStateUnauthenticated
	m.current = nil
	m.expiresAt = time.Time{}
	m.setStateLocked(model.AuthStateUnauthenticated)
	return changed
}

func (m *Manager) persistLocked(ctx context.Context, sess *model.Session, expiresAt time.Time) error {
	raw, err := sess.Encode()
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, model.KeySession, raw); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if err := m.store.Set(ctx, model.KeyExpiry, model.FormatExpiry(expiresAt)); err != nil {
		return fmt.Errorf("persist expiry: %w", err)
	}
	return nil
}

func (m *Manager) purgeLocked(ctx context.Context) error {
	return errors.Join(
		m.store.Remove(ctx, model.KeySession),
		m.store.Remove(ctx, model.KeyExpiry),
	)
}

// --- operations ---

// Restore loads the persisted session and leaves the Loading state. Only the
// first call has an effect; later calls return the current state.
func (m *Manager) Restore(ctx context.Context) model.AuthState {
	m.mu.Lock()
	if m.restored {
		st := m.state
		m.mu.Unlock()
		return st
	}
	m.restoreLocked(ctx)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(snap)
	return snap.State
}

func (m *Manager) restoreLocked(ctx context.Context) {
	m.restored = true

	sess, expiresAt := m.loadLocked(ctx)
	if sess == nil {
		m.clearLocked()
		m.logger.Debug("no stored session")
		return
	}
	m.adoptLocked(sess, expiresAt)
	m.logger.Info("session restored", "username", sess.Username, "expires_at", expiresAt)
}

// ensureRestoredLocked runs Restore first for operations invoked before it.
func (m *Manager) ensureRestoredLocked(ctx context.Context) {
	if !m.restored {
		m.restoreLocked(ctx)
	}
}

// loadLocked reads and validates the stored session, purging anything stale
// or malformed. The legacy bare token is migrated to the primary format.
func (m *Manager) loadLocked(ctx context.Context) (*model.Session, time.Time) {
	rawUser, hasUser := m.get(ctx, model.KeySession)
	rawExp, hasExp := m.get(ctx, model.KeyExpiry)
	now := m.now()

	if hasUser && hasExp {
		expiresAt, err := model.ParseExpiry(rawExp)
		if err != nil || !model.IsValidAt(expiresAt, now) {
			m.logger.Info("stored session expired", "expiry", rawExp)
			m.purgeQuietLocked(ctx)
			return nil, time.Time{}
		}
		sess, err := model.ParseSession(rawUser)
		if err != nil {
			m.logger.Warn("failed to parse stored session", "error", err)
			m.purgeQuietLocked(ctx)
			return nil, time.Time{}
		}
		return sess, expiresAt
	}

	if hasUser || hasExp {
		m.logger.Warn("dropping incomplete stored session", "has_user", hasUser, "has_expiry", hasExp)
		m.purgeQuietLocked(ctx)
	}

	token, ok := m.get(ctx, model.KeyLegacyToken)
	if !ok || token == "" {
		return nil, time.Time{}
	}
	sess := &model.Session{Username: "", Token: token}
	expiresAt := now.Add(m.ttl)
	if err := m.persistLocked(ctx, sess, expiresAt); err != nil {
		m.logger.Warn("failed to persist migrated token", "error", err)
	} else if err := m.store.Remove(ctx, model.KeyLegacyToken); err != nil {
		m.logger.Warn("failed to remove legacy token", "error", err)
	}
	m.logger.Info("adopted legacy token")
	return sess, expiresAt
}

func (m *Manager) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("read state", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

func (m *Manager) purgeQuietLocked(ctx context.Context) {
	if err := m.purgeLocked(ctx); err != nil {
		m.logger.Warn("purge stored session", "error", err)
	}
}

// Login exchanges credentials for a token and establishes a session valid
// for the configured TTL. On failure the previous state is kept.
//
// Overlapping calls are not de-duplicated: each applies its result when its
// response arrives, so the last response to resolve wins.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("login: %w", ErrMissingField)
	}

	token, err := m.auth.IssueToken(ctx, username, password)
	if err != nil {
		m.logger.Warn("login failed", "username", username, "error", err)
		m.notifyLoginFailed()
		return fmt.Errorf("login: %w", err)
	}

	sess := &model.Session{Username: username, Token: token}

	m.mu.Lock()
	m.ensureRestoredLocked(ctx)
	expiresAt := m.now().Add(m.ttl)
	if err := m.persistLocked(ctx, sess, expiresAt); err != nil {
		m.mu.Unlock()
		m.logger.Error("login failed", "username", username, "error", err)
		m.notifyLoginFailed()
		return fmt.Errorf("login: %w", err)
	}
	m.adoptLocked(sess, expiresAt)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("logged in", "username", username)
	m.publish(snap)
	m.notifier.Notify(logging.Notification{
		Title:       "Login successful",
		Description: fmt.Sprintf("Welcome back, %s!", username),
	})
	m.nav.Navigate(PathGallery)
	return nil
}

func (m *Manager) notifyLoginFailed() {
	m.notifier.Notify(logging.Notification{
		Title:       "Login failed",
		Description: "Please check your credentials and try again.",
		Variant:     logging.VariantDestructive,
	})
}

// Register creates an account. It does not establish a session; on success
// the user is sent to the login view.
func (m *Manager) Register(ctx context.Context, username, email, password string) error {
	if username == "" || email == "" || password == "" {
		return fmt.Errorf("register: %w", ErrMissingField)
	}

	if err := m.auth.Signup(ctx, username, email, password); err != nil {
		m.logger.Warn("registration failed", "username", username, "error", err)
		m.notifier.Notify(logging.Notification{
			Title:       "Registration failed",
			Description: "Please try again with different credentials.",
			Variant:     logging.VariantDestructive,
		})
		return fmt.Errorf("register: %w", err)
	}

	m.logger.Info("registered", "username", username)
	m.notifier.Notify(logging.Notification{
		Title:       "Registration successful",
		Description: "Your account has been created. Please log in.",
	})
	m.nav.Navigate(PathLogin)
	return nil
}

// Logout removes the stored session, including any legacy token, clears
// state and returns to the home view.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.ensureRestoredLocked(ctx)
	err := errors.Join(m.purgeLocked(ctx), m.store.Remove(ctx, model.KeyLegacyToken))
	m.clearLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("purge stored session", "error", err)
	}
	m.logger.Info("logged out")
	m.publish(snap)
	m.notifier.Notify(logging.Notification{
		Title:       "Logged out",
		Description: "You have been successfully logged out.",
	})
	m.nav.Navigate(PathHome)
	return err
}

// CheckExpiry logs out if the session expiry has passed and reports whether it
// did. The stored expiry wins; without one the in-memory expiry of an adopted
// session is used. Without either it does nothing.
func (m *Manager) CheckExpiry(ctx context.Context) bool {
	rawExp, ok := m.get(ctx, model.KeyExpiry)
	if ok {
		expiresAt, err := model.ParseExpiry(rawExp)
		if err == nil && model.IsValidAt(expiresAt, m.now()) {
			return false
		}
	} else {
		m.mu.Lock()
		active, expiresAt := m.current != nil, m.expiresAt
		m.mu.Unlock()
		if !active || expiresAt.IsZero() || model.IsValidAt(expiresAt, m.now()) {
			return false
		}
		rawExp = model.FormatExpiry(expiresAt)
	}

	m.logger.Info("session expired", "expiry", rawExp)
	if err := m.Logout(ctx); err != nil {
		m.logger.Warn("logout after expiry", "error", err)
	}
	m.notifier.Notify(logging.Notification{
		Title:       "Session expired",
		Description: "Your session has expired. Please log in again.",
		Variant:     logging.VariantDestructive,
	})
	return true
}

// RunExpirySweep checks the expiry immediately and then every interval until
// ctx is cancelled.
func (m *Manager) RunExpirySweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	m.logger.Debug("expiry sweep started", "interval", interval)
	m.CheckExpiry(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("expiry sweep stopped")
			return
		case <-ticker.C:
			m.CheckExpiry(ctx)
		}
	}
}

// HandleStorageEvent applies a change written by another process. A new
// session value is adopted as is; a removed session clears state and, on a
// protected view, redirects to login.
func (m *Manager) HandleStorageEvent(ctx context.Context, ev store.Event) {
	switch ev.Key {
	case model.KeySession:
	case model.KeyExpiry:
		m.handleExpiryEvent(ev)
		return
	default:
		return
	}

	if ev.Removed {
		m.mu.Lock()
		m.ensureRestoredLocked(ctx)
		changed := m.clearLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()

		if changed {
			m.logger.Info("session removed by another process")
			m.publish(snap)
		}
		if path := m.nav.Path(); IsProtected(path, m.protected) {
			m.nav.Navigate(PathLogin)
		}
		return
	}

	sess, err := model.ParseSession(ev.NewValue)
	if err != nil {
		m.logger.Warn("ignoring malformed session from another process", "error", err)
		return
	}

	m.mu.Lock()
	m.ensureRestoredLocked(ctx)
	expiresAt := m.expiresAt
	if raw, ok := m.get(ctx, model.KeyExpiry); ok {
		if t, err := model.ParseExpiry(raw); err == nil {
			expiresAt = t
		}
	}
	if expiresAt.IsZero() {
		// The expiry is usually written right after the session; until then
		// the session gets a full lifetime from now.
		expiresAt = m.now().Add(m.ttl)
	}
	changed := m.adoptLocked(sess, expiresAt)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if changed {
		m.logger.Info("session adopted from another process", "username", sess.Username)
		m.publish(snap)
	}
}

func (m *Manager) handleExpiryEvent(ev store.Event) {
	if ev.Removed {
		return
	}
	expiresAt, err := model.ParseExpiry(ev.NewValue)
	if err != nil {
		return
	}

	m.mu.Lock()
	if m.current == nil || m.expiresAt.Equal(expiresAt) {
		m.mu.Unlock()
		return
	}
	m.expiresAt = expiresAt
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.publish(snap)
}

// Sync follows changes written by other processes until ctx is cancelled.
func (m *Manager) Sync(ctx context.Context) error {
	events, err := m.store.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch state: %w", err)
	}
	m.logger.Debug("storage sync started")
	for ev := range events {
		m.HandleStorageEvent(ctx, ev)
	}
	return nil
}

// Package session owns the identity of the current user. It is the only
// writer of the credential store.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-board/credential"
	"prism-board/domain"
	"prism-board/observe"
)

// State is the lifecycle position of a Manager.
type State int

const (
	Uninitialized State = iota
	Anonymous
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	}
	return "uninitialized"
}

// Session is the observable view of a Manager.
type Session struct {
	State  State
	UserID string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager derives the session from the persisted credential. It is safe for
// concurrent use.
type Manager struct {
	store   credential.Store
	decoder *Decoder
	auth    Authenticator
	logger  *log.Logger
	now     func() time.Time

	// writeMu serializes every store write together with the state change
	// it implies, so a delayed clear never wipes a newer login.
	writeMu sync.Mutex

	mu    sync.RWMutex
	state State
	cred  Credential

	subs observe.Registry[Session]
}

// NewManager creates a Manager in the Uninitialized state.
func NewManager(store credential.Store, decoder *Decoder, auth Authenticator, opts ...Option) *Manager {
	if store == nil {
		panic("session.NewManager: credential store is nil")
	}
	if decoder == nil {
		panic("session.NewManager: decoder is nil")
	}
	m := &Manager{store: store, decoder: decoder, auth: auth, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.StandardLogger()
	}
	return m
}

// Initialize restores the session from the credential store. An undecodable
// or expired credential is cleared and the session becomes Anonymous.
func (m *Manager) Initialize(ctx context.Context) (Session, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	token, ok, err := m.store.Read(ctx)
	if err != nil {
		m.setState(Anonymous, Credential{})
		return m.Current(), err
	}
	if !ok {
		m.setState(Anonymous, Credential{})
		return m.Current(), nil
	}

	cred, err := m.decoder.Decode(token)
	if err == nil && !cred.ValidAt(m.now()) {
		err = &domain.AuthError{Reason: domain.Expired}
	}
	if err != nil {
		m.logger.WithError(err).Info("session.restore.discarded")
		m.setState(Anonymous, Credential{})
		if cerr := m.store.Clear(ctx); cerr != nil {
			return m.Current(), cerr
		}
		return m.Current(), nil
	}

	m.setState(Authenticated, cred)
	m.logger.WithField("user_id", cred.Subject).Debug("session.restored")
	return m.Current(), nil
}

// Login exchanges creds for a token and persists it. Nothing is persisted
// when the token cannot be decoded or is already expired.
func (m *Manager) Login(ctx context.Context, creds Credentials) (Session, error) {
	if err := creds.Validate(); err != nil {
		return Session{}, err
	}
	if m.auth == nil {
		return Session{}, errors.New("session: no authenticator configured")
	}

	res, err := m.auth.Authenticate(ctx, creds)
	if err != nil {
		var remote *domain.RemoteError
		if errors.As(err, &remote) && (remote.StatusCode == http.StatusUnauthorized || remote.StatusCode == http.StatusForbidden) {
			return Session{}, &domain.AuthError{Reason: domain.Unauthenticated, Err: err}
		}
		return Session{}, err
	}

	cred, err := m.decoder.Decode(res.Token)
	if err != nil {
		return Session{}, err
	}
	if !cred.ValidAt(m.now()) {
		return Session{}, &domain.AuthError{Reason: domain.Expired}
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.store.Save(ctx, cred.Token); err != nil {
		return Session{}, err
	}
	m.setState(Authenticated, cred)
	m.logger.WithFields(log.Fields{"user_id": cred.Subject, "email": res.User.Email}).Info("session.login")
	return m.Current(), nil
}

// Logout clears the credential. Calling it while anonymous is a no-op apart
// from clearing the store again.
func (m *Manager) Logout(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.setState(Anonymous, Credential{})
	return m.store.Clear(ctx)
}

// CurrentToken returns the bearer token for an outgoing call. Expiry is
// checked at call time; an expired credential triggers a logout.
func (m *Manager) CurrentToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	state, cred := m.state, m.cred
	m.mu.RUnlock()

	if state != Authenticated {
		return "", &domain.AuthError{Reason: domain.Unauthenticated}
	}
	if !cred.ValidAt(m.now()) {
		if err := m.discard(ctx, cred.Token); err != nil {
			m.logger.WithError(err).Warn("session.expire.clear_failed")
		}
		return "", &domain.AuthError{Reason: domain.Expired}
	}
	return cred.Token, nil
}

// Invalidate logs out when the remote rejected token. It is ignored when the
// session has already moved on to a different token.
func (m *Manager) Invalidate(ctx context.Context, token string) error {
	return m.discard(ctx, token)
}

func (m *Manager) discard(ctx context.Context, token string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	current := m.cred.Token
	m.mu.RUnlock()
	if current != token {
		return nil
	}
	m.setState(Anonymous, Credential{})
	m.logger.Info("session.invalidated")
	return m.store.Clear(ctx)
}

// Current returns the session snapshot.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Session{State: m.state, UserID: m.cred.Subject}
}

// State returns the lifecycle state.
func (m *Manager) State() State { return m.Current().State }

// UserID returns the authenticated subject or "".
func (m *Manager) UserID() string { return m.Current().UserID }

// ExpiresAt returns the expiry of the current credential.
func (m *Manager) ExpiresAt() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred.ExpiresAt, m.state == Authenticated
}

// Subscribe registers fn for every session transition.
func (m *Manager) Subscribe(fn func(Session)) (cancel func()) {
	return m.subs.Subscribe(fn)
}

func (m *Manager) setState(state State, cred Credential) {
	m.mu.Lock()
	changed := m.state != state || m.cred.Token != cred.Token
	m.state = state
	m.cred = cred
	snap := Session{State: state, UserID: cred.Subject}
	m.mu.Unlock()
	if changed {
		m.subs.Publish(snap)
	}
}

// Package session holds the signed-in identity for the storefront and keeps it
// in step with the auth service.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/Izileth/lp-ebook/pkg/domain"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

// AttemptLimiter throttles credential submissions per email address.
type AttemptLimiter interface {
	Allow(ctx context.Context, action, email string) bool
	Reset(ctx context.Context, action, email string) error
}

// ErrTooManyAttempts is returned when the attempt limiter rejects a sign-in or sign-up.
var ErrTooManyAttempts = &remote.APIError{
	Status:  http.StatusTooManyRequests,
	Message: "too many attempts, try again later",
	Code:    "over_request_rate_limit",
}

// State is a snapshot of the store.
type State struct {
	Identity *domain.Identity
	// Loading is true during the initial session check and while a
	// sign-in, sign-up or sign-out call is in flight.
	Loading bool
}

// Store tracks at most one active identity.
type Store struct {
	auth    remote.AuthAPI
	limiter AttemptLimiter

	mu          sync.Mutex
	identity    *domain.Identity
	loading     bool
	inflight    int
	initialized bool
	checking    bool
	listeners   map[int]func(State)
	nextID      int
	unsubscribe func()
}

type Option func(*Store)

// WithAttemptLimiter enables per-email throttling of sign-in and sign-up.
func WithAttemptLimiter(l AttemptLimiter) Option {
	return func(s *Store) { s.limiter = l }
}

// New builds a store over auth. A nil auth makes every operation fail with
// remote.ErrUnavailable.
func New(auth remote.AuthAPI, opts ...Option) *Store {
	s := &Store{
		auth:      auth,
		loading:   true,
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start subscribes to session changes and performs the initial session
// check. Both paths write the same identity field; the last write wins.
func (s *Store) Start(ctx context.Context) error {
	if s.auth == nil {
		s.finishInitial(nil)
		return remote.ErrUnavailable
	}
	unsubscribe := s.auth.OnAuthStateChange(s.handleAuthEvent)
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.unsubscribe = unsubscribe
	s.checking = true
	s.loading = true
	s.mu.Unlock()

	session, err := s.auth.GetSession(ctx)
	if err != nil {
		slog.Warn("initial session check failed", "err", err)
		s.finishInitial(nil)
		return err
	}
	var identity *domain.Identity
	if session != nil {
		user := session.User
		identity = &user
	}
	s.finishInitial(identity)
	return nil
}

// Stop cancels the session-change subscription.
func (s *Store) Stop() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Identity returns the current identity or nil.
func (s *Store) Identity() *domain.Identity {
	return s.State().Identity
}

// Initialized reports whether the initial session check has completed.
func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Subscribe registers fn for every state change and returns a cancel function.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// SignInWithEmail exchanges credentials for a session. A rejected attempt
// returns an auth error and leaves the current identity untouched.
func (s *Store) SignInWithEmail(ctx context.Context, email, password string) (*domain.Identity, error) {
	if s.auth == nil {
		return nil, remote.ErrUnavailable
	}
	email = strings.TrimSpace(email)
	if s.limiter != nil && !s.limiter.Allow(ctx, "signin", email) {
		return nil, ErrTooManyAttempts
	}
	s.begin()
	session, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.end(nil, false)
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, "signin", email); err != nil {
			slog.Warn("reset sign-in attempts failed", "err", err)
		}
	}
	user := session.User
	s.end(&user, true)
	return &user, nil
}

// SignUpWithEmail registers a new account. signedIn reports whether the
// service issued a session right away; only then does the new identity
// replace the store's identity. When it is false the account awaits email
// confirmation and the current identity, if any, is kept.
func (s *Store) SignUpWithEmail(ctx context.Context, email, password, name string) (identity *domain.Identity, signedIn bool, err error) {
	if s.auth == nil {
		return nil, false, remote.ErrUnavailable
	}
	email = strings.TrimSpace(email)
	if s.limiter != nil && !s.limiter.Allow(ctx, "signup", email) {
		return nil, false, ErrTooManyAttempts
	}
	s.begin()
	res, err := s.auth.SignUp(ctx, email, password, strings.TrimSpace(name))
	if err != nil {
		s.end(nil, false)
		return nil, false, err
	}
	user := res.User
	if res.Session == nil {
		s.end(nil, false)
		return &user, false, nil
	}
	s.end(&user, true)
	return &user, true, nil
}

// SignOut always clears the local identity, even when the remote call fails.
// Calling it while signed out is a no-op.
func (s *Store) SignOut(ctx context.Context) error {
	s.begin()
	var err error
	if s.auth != nil {
		err = s.auth.SignOut(ctx)
		if err != nil {
			slog.Warn("remote sign-out failed", "err", err)
		}
	}
	s.end(nil, true)
	return err
}

func (s *Store) handleAuthEvent(event domain.AuthEvent, session *domain.Session) {
	var identity *domain.Identity
	if event != domain.EventSignedOut && session != nil {
		user := session.User
		identity = &user
	}
	s.mu.Lock()
	s.identity = identity
	s.initialized = true
	if s.inflight == 0 {
		s.loading = false
	}
	state, listeners := s.snapshotLocked()
	s.mu.Unlock()
	notify(listeners, state)
}

func (s *Store) finishInitial(identity *domain.Identity) {
	s.mu.Lock()
	s.identity = identity
	s.initialized = true
	s.checking = false
	if s.inflight == 0 {
		s.loading = false
	}
	state, listeners := s.snapshotLocked()
	s.mu.Unlock()
	notify(listeners, state)
}

func (s *Store) begin() {
	s.mu.Lock()
	s.inflight++
	s.loading = true
	state, listeners := s.snapshotLocked()
	s.mu.Unlock()
	notify(listeners, state)
}

// end settles an in-flight call, replacing the identity when set is true.
func (s *Store) end(identity *domain.Identity, set bool) {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	if set {
		s.identity = identity
		s.initialized = true
	}
	if s.inflight == 0 && !s.checking {
		s.loading = false
	}
	state, listeners := s.snapshotLocked()
	s.mu.Unlock()
	notify(listeners, state)
}

func (s *Store) stateLocked() State {
	var identity *domain.Identity
	if s.identity != nil {
		id := *s.identity
		identity = &id
	}
	return State{Identity: identity, Loading: s.loading}
}

func (s *Store) snapshotLocked() (State, []func(State)) {
	listeners := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	return s.stateLocked(), listeners
}

func notify(listeners []func(State), state State) {
	for _, fn := range listeners {
		fn(state)
	}
}

package remotetest

import (
	"context"
	"net/http"
	"sync"

	"github.com/Izileth/lp-ebook/pkg/domain"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

// Auth is an in-memory remote.AuthAPI that accepts a fixed set of accounts.
type Auth struct {
	mu        sync.Mutex
	session   *domain.Session
	accounts  map[string]string
	users     map[string]domain.Identity
	listeners map[int]remote.AuthListener
	nextID    int
}

var _ remote.AuthAPI = (*Auth)(nil)

func NewAuth() *Auth {
	return &Auth{
		accounts:  make(map[string]string),
		users:     make(map[string]domain.Identity),
		listeners: make(map[int]remote.AuthListener),
	}
}

// AddUser registers an account that can sign in with password.
func (a *Auth) AddUser(user domain.Identity, password string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[user.Email] = password
	a.users[user.Email] = user
}

// SetSession replaces the current session without emitting an event.
func (a *Auth) SetSession(s *domain.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = s
}

// Emit sets the session and notifies listeners as the auth service would.
func (a *Auth) Emit(event domain.AuthEvent, s *domain.Session) {
	a.mu.Lock()
	if event == domain.EventSignedOut {
		s = nil
	}
	a.session = s
	listeners := make([]remote.AuthListener, 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(event, s)
	}
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error) {
	a.mu.Lock()
	want, ok := a.accounts[email]
	user := a.users[email]
	a.mu.Unlock()
	if !ok || want != password {
		return domain.Session{}, &remote.APIError{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	s := domain.Session{AccessToken: "token-" + user.ID, User: user}
	a.Emit(domain.EventSignedIn, &s)
	return s, nil
}

func (a *Auth) SignUp(ctx context.Context, email, password, name string) (remote.SignUpResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.accounts[email]; exists {
		return remote.SignUpResult{}, &remote.APIError{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered"}
	}
	user := domain.Identity{ID: "user-" + email, Email: email, UserMetadata: map[string]any{"name": name}}
	a.accounts[email] = password
	a.users[email] = user
	return remote.SignUpResult{User: user}, nil
}

func (a *Auth) SignOut(ctx context.Context) error {
	a.Emit(domain.EventSignedOut, nil)
	return nil
}

func (a *Auth) GetSession(ctx context.Context) (*domain.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil, nil
	}
	s := *a.session
	return &s, nil
}

func (a *Auth) OnAuthStateChange(fn remote.AuthListener) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Izileth/lp-ebook/pkg/domain"
)

const refreshMargin = time.Minute

// AuthListener receives session-change notifications. session is nil after sign-out.
type AuthListener func(event domain.AuthEvent, session *domain.Session)

// AuthAPI is the auth surface consumed by the session store.
type AuthAPI interface {
	SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error)
	SignUp(ctx context.Context, email, password, name string) (SignUpResult, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*domain.Session, error)
	OnAuthStateChange(fn AuthListener) (unsubscribe func())
}

// SignUpResult holds the created identity. Session is nil when email
// confirmation is required before the first sign-in.
type SignUpResult struct {
	User    domain.Identity
	Session *domain.Session
}

// AuthClient talks to the auth API and owns the current session.
type AuthClient struct {
	t         *transport
	persister SessionPersister
	now       func() time.Time

	mu        sync.Mutex
	session   *domain.Session
	loaded    bool
	listeners map[int]AuthListener
	nextID    int
	changed   chan struct{}
}

func newAuthClient(t *transport, persister SessionPersister, now func() time.Time) *AuthClient {
	if persister == nil {
		persister = NewMemoryPersister()
	}
	if now == nil {
		now = time.Now
	}
	return &AuthClient{
		t:         t,
		persister: persister,
		now:       now,
		listeners: make(map[int]AuthListener),
		changed:   make(chan struct{}, 1),
	}
}

func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error) {
	payload := map[string]string{"email": strings.TrimSpace(email), "password": password}
	var resp tokenResponse
	err := a.t.doJSON(ctx, call{
		api:    "auth",
		method: http.MethodPost,
		path:   "/auth/v1/token?grant_type=password",
	}, payload, &resp)
	if err != nil {
		return domain.Session{}, err
	}
	session, err := a.sessionFrom(resp)
	if err != nil {
		return domain.Session{}, err
	}
	a.setSession(ctx, &session, domain.EventSignedIn)
	return session, nil
}

func (a *AuthClient) SignUp(ctx context.Context, email, password, name string) (SignUpResult, error) {
	payload := map[string]any{
		"email":    strings.TrimSpace(email),
		"password": password,
		"data":     map[string]string{"name": name},
	}
	var raw json.RawMessage
	err := a.t.doJSON(ctx, call{
		api:    "auth",
		method: http.MethodPost,
		path:   "/auth/v1/signup",
	}, payload, &raw)
	if err != nil {
		return SignUpResult{}, err
	}
	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return SignUpResult{}, fmt.Errorf("decode signup response: %w", err)
	}
	if resp.AccessToken == "" {
		// Confirmation pending: the body is the bare user object.
		var user domain.Identity
		if err := json.Unmarshal(raw, &user); err != nil {
			return SignUpResult{}, fmt.Errorf("decode signup user: %w", err)
		}
		return SignUpResult{User: user}, nil
	}
	session, err := a.sessionFrom(resp)
	if err != nil {
		return SignUpResult{}, err
	}
	a.setSession(ctx, &session, domain.EventSignedIn)
	return SignUpResult{User: session.User, Session: &session}, nil
}

// SignOut revokes the session remotely and always clears it locally.
func (a *AuthClient) SignOut(ctx context.Context) error {
	a.mu.Lock()
	current := a.session
	a.mu.Unlock()

	var err error
	if current != nil {
		err = a.t.doJSON(ctx, call{
			api:    "auth",
			method: http.MethodPost,
			path:   "/auth/v1/logout?scope=local",
			token:  current.AccessToken,
		}, nil, nil)
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusNotFound) {
			err = nil
		}
	}
	a.setSession(ctx, nil, domain.EventSignedOut)
	return err
}

// GetSession returns the current session, restoring it from the persister on
// first use and refreshing it when the access token has expired.
func (a *AuthClient) GetSession(ctx context.Context) (*domain.Session, error) {
	a.mu.Lock()
	if !a.loaded {
		stored, err := a.persister.Load(ctx)
		if err != nil {
			slog.Warn("session restore failed", "err", err)
		}
		a.session = stored
		a.loaded = true
	}
	current := a.session
	a.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if current.Expired(a.now().Add(refreshMargin)) {
		refreshed, err := a.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		return refreshed, nil
	}
	s := *current
	return &s, nil
}

// Refresh exchanges the refresh token for a new session. A rejected refresh
// token signs the user out.
func (a *AuthClient) Refresh(ctx context.Context) (*domain.Session, error) {
	a.mu.Lock()
	current := a.session
	a.mu.Unlock()
	if current == nil || current.RefreshToken == "" {
		return nil, ErrNoSession
	}
	var resp tokenResponse
	err := a.t.doJSON(ctx, call{
		api:    "auth",
		method: http.MethodPost,
		path:   "/auth/v1/token?grant_type=refresh_token",
	}, map[string]string{"refresh_token": current.RefreshToken}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			a.setSession(ctx, nil, domain.EventSignedOut)
		}
		return nil, err
	}
	session, err := a.sessionFrom(resp)
	if err != nil {
		return nil, err
	}
	a.setSession(ctx, &session, domain.EventTokenRefreshed)
	return &session, nil
}

// AccessToken returns the current access token or "" when signed out.
func (a *AuthClient) AccessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ""
	}
	return a.session.AccessToken
}

// CurrentUserID returns the subject of the current session.
func (a *AuthClient) CurrentUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ""
	}
	return a.session.User.ID
}

func (a *AuthClient) OnAuthStateChange(fn AuthListener) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

// StartAutoRefresh refreshes the session shortly before it expires until ctx is done.
func (a *AuthClient) StartAutoRefresh(ctx context.Context) {
	go a.autoRefresh(ctx)
}

func (a *AuthClient) autoRefresh(ctx context.Context) {
	const retryDelay = 10 * time.Second
	for {
		a.mu.Lock()
		current := a.session
		a.mu.Unlock()

		var wait <-chan time.Time
		var timer *time.Timer
		if current != nil && !current.ExpiresAt.IsZero() {
			d := current.ExpiresAt.Sub(a.now()) - refreshMargin
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			wait = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-a.changed:
			if timer != nil {
				timer.Stop()
			}
		case <-wait:
			if _, err := a.Refresh(ctx); err != nil && !errors.Is(err, ErrNoSession) {
				slog.Warn("session refresh failed", "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDelay):
				}
			}
		}
	}
}

func (a *AuthClient) setSession(ctx context.Context, session *domain.Session, event domain.AuthEvent) {
	a.mu.Lock()
	a.session = session
	a.loaded = true
	listeners := make([]AuthListener, 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	var err error
	if session == nil {
		err = a.persister.Clear(ctx)
	} else {
		err = a.persister.Save(ctx, *session)
	}
	if err != nil {
		slog.Warn("session persist failed", "err", err)
	}
	select {
	case a.changed <- struct{}{}:
	default:
	}

	userID := ""
	if session != nil {
		userID = session.User.ID
	}
	slog.Info("auth_event", "event", string(event), "user_id", userID)
	for _, fn := range listeners {
		var snapshot *domain.Session
		if session != nil {
			s := *session
			snapshot = &s
		}
		fn(event, snapshot)
	}
}

type tokenResponse struct {
	AccessToken  string           `json:"access_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int64            `json:"expires_in"`
	ExpiresAt    int64            `json:"expires_at"`
	RefreshToken string           `json:"refresh_token"`
	User         *domain.Identity `json:"user"`
}

func (a *AuthClient) sessionFrom(resp tokenResponse) (domain.Session, error) {
	if resp.AccessToken == "" {
		return domain.Session{}, errors.New("auth response missing access token")
	}
	session := domain.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
	}
	switch {
	case resp.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
	case resp.ExpiresIn > 0:
		session.ExpiresAt = a.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	default:
		session.ExpiresAt = tokenExpiry(resp.AccessToken)
	}
	if resp.User != nil {
		session.User = *resp.User
	} else {
		session.User.ID = tokenSubject(resp.AccessToken)
	}
	return session, nil
}

// The access token is only inspected, never trusted; the service verifies it.
func unverifiedClaims(token string) jwt.MapClaims {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}

func tokenExpiry(token string) time.Time {
	claims := unverifiedClaims(token)
	if claims == nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time.UTC()
}

func tokenSubject(token string) string {
	claims := unverifiedClaims(token)
	if claims == nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

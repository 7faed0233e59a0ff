// Package session keeps per-browser chat state in memory. Browsers are
// identified by an HS256-signed cookie whose subject is the session id.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName = "spi_session"
	issuer     = "spi-dashboard"
)

type Manager struct {
	secret []byte
	idle   time.Duration
	secure bool
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns a manager that evicts sessions idle for longer than
// idle. secure marks the cookie Secure.
func NewManager(secret []byte, idle time.Duration, secure bool) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is empty")
	}
	if idle <= 0 {
		return nil, fmt.Errorf("session idle timeout must be positive, got %v", idle)
	}
	return &Manager{
		secret:   secret,
		idle:     idle,
		secure:   secure,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}, nil
}

// Resolve returns the session named by the request cookie. A missing,
// invalid or unknown token starts a fresh session and sets a new cookie.
func (m *Manager) Resolve(w http.ResponseWriter, r *http.Request) (*Session, error) {
	now := m.now()
	if c, err := r.Cookie(CookieName); err == nil {
		if id, err := m.verify(c.Value); err == nil {
			// Touch under m.mu so Evict cannot drop the session between
			// lookup and use.
			m.mu.Lock()
			s, ok := m.sessions[id]
			if ok {
				s.touch(now)
			}
			m.mu.Unlock()
			if ok {
				return s, nil
			}
		} else {
			slog.Debug("session cookie rejected", "error", err)
		}
	}

	id := uuid.NewString()
	token, err := m.sign(id, now)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	s := newSession(id, now)
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Info("session created", "session", id)
	return s, nil
}

func (m *Manager) sign(id string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  id,
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return "", err
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("invalid session subject: %w", err)
	}
	return claims.Subject, nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evict drops sessions idle for longer than the idle timeout. Sessions with a
// submission in flight are kept.
func (m *Manager) Evict() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.idleSince(now) <= m.idle || !s.TryBegin() {
			continue
		}
		delete(m.sessions, id)
		s.gate.Release(1)
		n++
	}
	return n
}

// Run evicts idle sessions periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.idle / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Evict(); n > 0 {
				slog.Info("idle sessions evicted", "count", n, "remaining", m.Len())
			}
		}
	}
}

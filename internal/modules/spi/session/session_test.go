package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"spi-dashboard/internal/modules/spi/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager([]byte("test-secret"), time.Hour, false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", CookieName)
	return nil
}

func TestNewManager_invalid(t *testing.T) {
	if _, err := NewManager(nil, time.Hour, false); err == nil {
		t.Error("NewManager(nil secret) = nil error")
	}
	if _, err := NewManager([]byte("x"), 0, false); err == nil {
		t.Error("NewManager(0 idle) = nil error")
	}
}

func TestResolve_newAndReturning(t *testing.T) {
	m := newTestManager(t)

	w := httptest.NewRecorder()
	s1, err := m.Resolve(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	c := sessionCookie(t, w)
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie attributes = %+v", c)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(c)
	w2 := httptest.NewRecorder()
	s2, err := m.Resolve(w2, r)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s1 != s2 {
		t.Errorf("returning browser got session %s; want %s", s2.ID, s1.ID)
	}
	if len(w2.Result().Cookies()) != 0 {
		t.Error("cookie re-set for known session")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d; want 1", m.Len())
	}
}

func TestResolve_rejectsBadTokens(t *testing.T) {
	m := newTestManager(t)
	other, err := NewManager([]byte("other-secret"), time.Hour, false)
	if err != nil {
		t.Fatal(err)
	}
	forged, err := other.sign("8a3d5b52-79a8-4f55-9b64-1f7f2a0a2b11", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "admin", Issuer: issuer}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	unknown, err := m.sign("8a3d5b52-79a8-4f55-9b64-1f7f2a0a2b11", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		value string
	}{
		{name: "garbage", value: "not-a-jwt"},
		{name: "wrong key", value: forged},
		{name: "non uuid subject", value: badSubject},
		{name: "unknown session", value: unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.AddCookie(&http.Cookie{Name: CookieName, Value: tt.value})
			w := httptest.NewRecorder()
			s, err := m.Resolve(w, r)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if s.ID == "8a3d5b52-79a8-4f55-9b64-1f7f2a0a2b11" {
				t.Error("unverified id adopted")
			}
			sessionCookie(t, w)
		})
	}
}

func TestEvict(t *testing.T) {
	m := newTestManager(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	idle, _ := m.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	busy, _ := m.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !busy.TryBegin() {
		t.Fatal("TryBegin on fresh session = false")
	}
	defer busy.End()

	now = now.Add(30 * time.Minute)
	fresh, _ := m.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	now = now.Add(45 * time.Minute)
	if n := m.Evict(); n != 1 {
		t.Fatalf("Evict = %d; want 1", n)
	}
	m.mu.Lock()
	_, idleLeft := m.sessions[idle.ID]
	_, busyLeft := m.sessions[busy.ID]
	_, freshLeft := m.sessions[fresh.ID]
	m.mu.Unlock()
	if idleLeft || !busyLeft || !freshLeft {
		t.Errorf("after Evict idle=%v busy=%v fresh=%v; want false true true", idleLeft, busyLeft, freshLeft)
	}
}

func TestResolve_returningSessionSurvivesEvict(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		m := newTestManager(t)
		now := start
		m.now = func() time.Time { return now }

		w := httptest.NewRecorder()
		orig, err := m.Resolve(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		cookie := sessionCookie(t, w)
		// Past the idle timeout but not yet evicted. The clock stays fixed
		// while Resolve and Evict race.
		now = start.Add(2 * time.Hour)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(cookie)
		got := make(chan *Session, 1)
		go func() {
			s, _ := m.Resolve(httptest.NewRecorder(), r)
			got <- s
		}()
		m.Evict()
		s := <-got

		if s.ID != orig.ID {
			continue
		}
		m.mu.Lock()
		_, kept := m.sessions[s.ID]
		m.mu.Unlock()
		if !kept {
			t.Fatalf("iteration %d: Resolve returned session %s that Evict already dropped", i, s.ID)
		}
	}
}

func TestRun_stopsOnCancel(t *testing.T) {
	m, err := NewManager([]byte("s"), time.Second, false)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSession_gate(t *testing.T) {
	s := New("id")
	if !s.TryBegin() {
		t.Fatal("first TryBegin = false")
	}
	if s.TryBegin() {
		t.Fatal("second TryBegin = true while busy")
	}
	s.SetState(StateExecuting)
	s.End()
	if s.State() != StateIdle {
		t.Errorf("State after End = %v; want idle", s.State())
	}
	if !s.TryBegin() {
		t.Fatal("TryBegin after End = false")
	}
	s.End()
}

func TestSession_transcriptAndTable(t *testing.T) {
	s := New("id")
	if _, ok := s.ActiveTable(); ok {
		t.Error("new session has an active table")
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(types.Turn{Role: types.RoleUser, Content: "q"})
		}()
	}
	wg.Wait()
	if got := len(s.Transcript()); got != 10 {
		t.Errorf("transcript len = %d; want 10", got)
	}

	tr := s.Transcript()
	tr[0].Content = "mutated"
	if s.Transcript()[0].Content != "q" {
		t.Error("Transcript() exposes internal slice")
	}

	tbl := types.Table{Columns: []string{"SPI"}, Rows: [][]any{{1.0}}}
	s.SetActiveTable(tbl)
	got, ok := s.ActiveTable()
	if !ok {
		t.Fatal("ActiveTable ok = false after SetActiveTable")
	}
	if diff := cmp.Diff(tbl, got); diff != "" {
		t.Errorf("ActiveTable mismatch (-want +got):\n%s", diff)
	}
}

func TestMiddleware(t *testing.T) {
	m := newTestManager(t)
	var seen *Session
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := FromContext(r.Context())
		if !ok {
			t.Error("no session in context")
		}
		seen = s
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == nil {
		t.Fatal("handler not reached")
	}
	sessionCookie(t, w)

	if _, ok := FromContext(context.Background()); ok {
		t.Error("FromContext on bare context = true")
	}
}

func TestStateString(t *testing.T) {
	if StateAwaitingModelResponse.String() != "awaiting_model_response" || State(42).String() != "unknown" {
		t.Error("unexpected state names")
	}
}

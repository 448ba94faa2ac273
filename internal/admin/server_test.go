package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/replctl/internal/observability"
	"github.com/danmuck/replctl/internal/repl"
	"github.com/danmuck/replctl/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
)

type stubSource struct {
	status repl.Status
}

func (s stubSource) Status() repl.Status { return s.status }

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func TestNewRequiresSource(t *testing.T) {
	testlog.Start(t)
	if _, err := New(":0", nil, Options{}); !errors.Is(err, ErrStatusSourceRequired) {
		t.Fatalf("expected ErrStatusSourceRequired, got %v", err)
	}
}

func TestStatusRouteReportsSession(t *testing.T) {
	testlog.Start(t)
	s, err := New("127.0.0.1:0", stubSource{status: repl.Status{
		SessionID: "abc",
		Module:    "o",
		Phase:     repl.PhaseReady,
		Loaded:    true,
		Imports:   1,
		Reloads:   4,
		StartedAt: time.Unix(0, 0).UTC(),
	}}, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	rr := serve(t, s, http.MethodGet, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var st repl.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if st.SessionID != "abc" || st.Reloads != 4 || !st.Loaded || st.Phase != repl.PhaseReady {
		t.Fatalf("unexpected status body: %+v", st)
	}
	log.Debug().Msgf("admin/http: GET /status status=%d body=%s", rr.Code, rr.Body.String())
}

func TestReadyFollowsPhase(t *testing.T) {
	testlog.Start(t)
	for phase, want := range map[repl.Phase]int{
		repl.PhaseAwaitingConnection: http.StatusServiceUnavailable,
		repl.PhaseReady:              http.StatusOK,
		repl.PhaseTerminated:         http.StatusServiceUnavailable,
	} {
		s, err := New("127.0.0.1:0", stubSource{status: repl.Status{Module: "o", Phase: phase}}, Options{})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if rr := serve(t, s, http.MethodGet, "/ready"); rr.Code != want {
			t.Fatalf("phase %s: expected %d, got %d", phase, want, rr.Code)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	testlog.Start(t)
	s, err := New("127.0.0.1:0", stubSource{status: repl.Status{Module: "o"}}, Options{CorsOrigins: []string{"http://dash.local"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	observability.RecordAction("o", "import", "PRINT", time.Millisecond)

	rr := serve(t, s, http.MethodGet, "/health")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"module":"o"`) {
		t.Fatalf("unexpected health response: %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(t, s, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "replctl_session_actions_total") || !strings.Contains(body, "replctl_http_requests_total") {
		t.Fatalf("expected replctl metrics in exposition")
	}
}

func TestStatusRequiresTokenWhenConfigured(t *testing.T) {
	testlog.Start(t)
	s, err := New("127.0.0.1:0", stubSource{status: repl.Status{Module: "o"}}, Options{Token: "s3cret"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if rr := serve(t, s, http.MethodGet, "/status"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "bearer s3cret")
	rr = httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d body=%s", rr.Code, rr.Body.String())
	}
	if rr := serve(t, s, http.MethodGet, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", rr.Code)
	}
}

func TestValidateToken(t *testing.T) {
	testlog.Start(t)
	if err := validateToken("", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty expected token must reject, got %v", err)
	}
	if err := validateToken("a", "a"); err != nil {
		t.Fatalf("matching token rejected: %v", err)
	}
	if got := bearerToken("Token abc"); got != "" {
		t.Fatalf("non-bearer scheme accepted: %q", got)
	}
}

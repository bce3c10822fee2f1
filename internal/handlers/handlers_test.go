package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/heartlink/backend/internal/auth"
	"github.com/heartlink/backend/internal/pairing"
	"github.com/heartlink/backend/internal/profile"
	"github.com/heartlink/backend/internal/realtime"
	"github.com/heartlink/backend/internal/repositories"
)

type testEnv struct {
	mux    *http.ServeMux
	broker *realtime.MemoryBroker
	auth   *auth.Service
	engine *pairing.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	manager := auth.NewManager(time.Minute, time.Hour, auth.NewInMemorySessionStore())
	authService := auth.NewService(repositories.NewInMemoryUserRepository(), manager)
	profiles := profile.NewResolver(repositories.NewInMemoryProfileRepository(), nil)
	engine := pairing.NewEngine(repositories.NewInMemoryCoupleRepository(), profiles)
	broker := realtime.NewMemoryBroker()

	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Auth:       authService,
		Identities: authService,
		Profiles:   profiles,
		Pairing:    engine,
		Events:     repositories.NewInMemoryEventRepository(),
		Todos:      repositories.NewInMemoryTodoRepository(),
		Changes:    broker,
	})

	return &testEnv{mux: mux, broker: broker, auth: authService, engine: engine}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// signUp registers an account over HTTP and returns its access token.
func (e *testEnv) signUp(t *testing.T, email string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/auth/signup", "", credentialsRequest{Email: email, Password: "supersafe"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: expected 201, got %d (%s)", email, rec.Code, rec.Body.String())
	}

	var resp authResponse
	decodeInto(t, rec, &resp)
	if resp.Tokens.AccessToken == "" {
		t.Fatalf("signup %s: missing access token", email)
	}
	return resp.Tokens.AccessToken
}

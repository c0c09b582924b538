package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/station/internal/auth"
	"github.com/kiwari-pos/station/internal/middleware"
	"github.com/kiwari-pos/station/internal/model"
)

const testSecret = "test-secret"

// --- Test helpers ---

type registrar interface {
	RegisterRoutes(r chi.Router)
}

func setupRouter(h registrar) *chi.Mux {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testSecret))
		h.RegisterRoutes(r)
	})
	return r
}

type testSession struct {
	ID    uuid.UUID
	Staff model.Staff
}

func newTestSession(role string) testSession {
	return testSession{
		ID:    uuid.New(),
		Staff: model.Staff{ID: "u-" + role, Name: "Test " + role, Role: role},
	}
}

func (s testSession) token(t *testing.T) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, s.ID, s.Staff)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}, sess *testSession) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if sess != nil {
		req.Header.Set("Authorization", "Bearer "+sess.token(t))
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v; body: %s", err, rr.Body.String())
	}
	return resp
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, want, rr.Body.String())
	}
}

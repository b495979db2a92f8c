package httpapp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alphabot-ai/blogapi/internal/auth"
	"github.com/alphabot-ai/blogapi/internal/config"
	"github.com/alphabot-ai/blogapi/internal/model"
	"github.com/alphabot-ai/blogapi/internal/store/memory"
)

func newMemoryServer(t *testing.T, logs *bytes.Buffer) (*Server, *auth.Service) {
	t.Helper()
	st := memory.New()
	cfg := config.Config{
		JWTSecret:   "test-secret",
		TokenTTL:    time.Hour,
		TokenHeader: "x-auth-token",
		CORSOrigins: []string{"https://blog.example"},
	}
	log := zerolog.Nop()
	if logs != nil {
		log = zerolog.New(logs)
	}
	authSvc := auth.NewService(st, cfg.JWTSecret, cfg.TokenTTL, bcrypt.MinCost)
	return NewServer(st, authSvc, cfg, log), authSvc
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)
	return resp
}

func errorBody(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload["error"]
}

func TestHealth(t *testing.T) {
	s, _ := newMemoryServer(t, nil)
	resp := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Blog API is running", resp.Body.String())
}

func TestUnknownRouteAndMethod(t *testing.T) {
	s, _ := newMemoryServer(t, nil)

	resp := serve(s, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Not found", errorBody(t, resp))

	resp = serve(s, httptest.NewRequest(http.MethodPatch, "/api/blogposts/abc", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	assert.Equal(t, "Method not allowed", errorBody(t, resp))
}

func TestRequireAuth(t *testing.T) {
	s, authSvc := newMemoryServer(t, nil)
	body := `{"title":"T","content":"C"}`

	resp := serve(s, httptest.NewRequest(http.MethodPost, "/api/blogposts", bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "No token, authorization denied", errorBody(t, resp))

	req := httptest.NewRequest(http.MethodPost, "/api/blogposts", bytes.NewBufferString(body))
	req.Header.Set("x-auth-token", "garbage")
	resp = serve(s, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "Token is not valid", errorBody(t, resp))

	// The standard Authorization header is not consulted.
	token, err := authSvc.IssueToken(model.User{ID: "u1", Role: model.RoleReader})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/blogposts", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+token)
	resp = serve(s, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/blogposts", bytes.NewBufferString(body))
	req.Header.Set("X-Auth-Token", token)
	resp = serve(s, req)
	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newMemoryServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/blogposts", nil)
	req.Header.Set("Origin", "https://blog.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "x-auth-token, content-type")
	resp := serve(s, req)

	assert.Equal(t, "https://blog.example", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}
func TestPanicAnswersWithJSONError(t *testing.T) {
	var logs bytes.Buffer
	s, _ := newMemoryServer(t, &logs)
	s.router.Get("/api/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	resp := serve(s, httptest.NewRequest(http.MethodGet, "/api/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	assert.Equal(t, "Internal server error", errorBody(t, resp))
	assert.Contains(t, logs.String(), `"panic":"boom"`)
	assert.Contains(t, logs.String(), `"message":"handler panic"`)
}

func TestAccessLogCarriesRequestID(t *testing.T) {
	var logs bytes.Buffer
	s, _ := newMemoryServer(t, &logs)
	resp := serve(s, httptest.NewRequest(http.MethodGet, "/api/blogposts", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotEmpty(t, resp.Header().Get("X-Request-Id"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
	assert.Equal(t, "request", line["message"])
	assert.Equal(t, "/api/blogposts", line["path"])
	assert.EqualValues(t, http.StatusOK, line["status"])
	assert.Equal(t, resp.Header().Get("X-Request-Id"), line["req_id"])
}

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/utils"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(production bool) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.Nop(), production), ErrorHandler(zerolog.Nop(), production))
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRequireAuth(t *testing.T) {
	cfg := AuthConfig{Secret: testSecret, Expiry: time.Hour}
	r := newEngine(false)
	r.GET("/me", RequireAuth(cfg), func(c *gin.Context) {
		actor := GetActor(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID.String(), "role": actor.Role})
	})

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "fail", body.Status)
		assert.Equal(t, "Not authorized to access this route", body.Message)
	})

	t.Run("bad token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Invalid Access Token. Please login again", decodeError(t, w).Message)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		token, err := GenerateToken(uuid.New(), "a@example.com", model.RoleStudent, "other", time.Hour)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("cookie token", func(t *testing.T) {
		id := uuid.New()
		token, err := GenerateToken(id, "a@example.com", model.RoleInstructor, testSecret, time.Hour)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"`+id.String()+`","role":"instructor"}`, w.Body.String())
		// 新令牌不需要续期
		assert.Empty(t, w.Header().Get("Set-Cookie"))
	})
}

func TestRequireAuthRefreshesOldToken(t *testing.T) {
	id := uuid.New()
	now := time.Now()
	claims := &Claims{
		UserID: id.String(),
		Role:   model.RoleStudent,
	}
	claims.IssuedAt = jwt.NewNumericDate(now.Add(-50 * time.Minute))
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(10 * time.Minute))
	assert.True(t, shouldRefresh(claims))

	claims.IssuedAt = jwt.NewNumericDate(now.Add(-5 * time.Minute))
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(55 * time.Minute))
	assert.False(t, shouldRefresh(claims))
}

func TestRestrictTo(t *testing.T) {
	cfg := AuthConfig{Secret: testSecret, Expiry: time.Hour}
	r := newEngine(false)
	r.POST("/courses", RequireAuth(cfg), RestrictTo(model.RoleInstructor, model.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	call := func(role model.Role) int {
		token, err := GenerateToken(uuid.New(), "a@example.com", role, testSecret, time.Hour)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/courses", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusForbidden, call(model.RoleStudent))
	assert.Equal(t, http.StatusCreated, call(model.RoleInstructor))
	assert.Equal(t, http.StatusCreated, call(model.RoleAdmin))
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		err        error
		status     int
		message    string
		withStack  bool
	}{
		{"operational in production", true, apperr.NotFound("Course not found"), http.StatusNotFound, "Course not found", false},
		{"conflict maps to 400", true, apperr.Conflict("Lecture already exists"), http.StatusBadRequest, "Lecture already exists", false},
		{"unexpected in production", true, errors.New("pq: connection reset"), http.StatusInternalServerError, "Something went wrong", false},
		{"unexpected in development", false, errors.New("pq: connection reset"), http.StatusInternalServerError, "pq: connection reset", true},
		{"operational in development", false, apperr.Validation("All fields are required"), http.StatusBadRequest, "All fields are required", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(tt.production)
			r.GET("/x", func(c *gin.Context) { _ = c.Error(tt.err) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, tt.status, w.Code)
			body := decodeError(t, w)
			assert.False(t, body.Success)
			assert.Equal(t, tt.message, body.Message)
			assert.Equal(t, tt.withStack, body.Stack != "")
		})
	}
}

func TestRecovery(t *testing.T) {
	r := newEngine(true)
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "Something went wrong", body.Message)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestIDPassThrough(t *testing.T) {
	r := newEngine(false)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
}

type memoryCounter struct {
	hits map[string]int64
	err  error
}

func (m *memoryCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if m.err != nil {
		return 0, 0, m.err
	}
	m.hits[key]++
	return m.hits[key], window, nil
}

func TestRateLimit(t *testing.T) {
	counter := &memoryCounter{hits: map[string]int64{}}
	r := gin.New()
	r.Use(RateLimit(counter, 2, time.Minute, zerolog.Nop()))
	r.GET("/api/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "0", last.Header().Get("RateLimit-Remaining"))
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(&memoryCounter{err: errors.New("redis down")}, 1, time.Minute, zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	r = gin.New()
	r.Use(RateLimit(nil, 1, time.Minute, zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSAllowsClientOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://localhost:5173/"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(true))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

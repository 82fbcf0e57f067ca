package middlewares

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innerchild2401/qr-menu-sub004/utils"
)

func newTestEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"role":     c.GetString(ContextRole),
			"customer": c.GetString(ContextCustomerToken),
		})
	})
	r.GET("/ping", handlers...)
	return r
}

func serve(r *gin.Engine, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStaffAuthMiddleware(t *testing.T) {
	utils.SetJWTSecret("test-secret")
	r := newTestEngine(StaffAuthMiddleware(), RequireRoles(RoleChef))

	assert.Equal(t, http.StatusUnauthorized, serve(r, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Authorization", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Authorization", "Bearer not-a-jwt").Code)

	chef, err := utils.GenerateToken(3, RoleChef, time.Hour)
	require.NoError(t, err)
	w := serve(r, "Authorization", "Bearer "+chef)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"chef"`)

	staff, err := utils.GenerateToken(4, RoleStaff, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(r, "Authorization", "Bearer "+staff).Code)

	admin, err := utils.GenerateToken(5, RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve(r, "Authorization", "Bearer "+admin).Code)

	expired, err := utils.GenerateToken(3, RoleChef, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Authorization", "Bearer "+expired).Code)
}

func TestCustomerTokenMiddleware(t *testing.T) {
	required := newTestEngine(CustomerTokenMiddleware(true))
	assert.Equal(t, http.StatusBadRequest, serve(required, "", "").Code)

	w := serve(required, "X-Customer-Token", "device-7")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"customer":"device-7"`)

	optional := newTestEngine(CustomerTokenMiddleware(false))
	assert.Equal(t, http.StatusOK, serve(optional, "", "").Code)
}

func TestRateLimiterPerDevice(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	r := newTestEngine(limiter.RateLimit())

	assert.Equal(t, http.StatusOK, serve(r, "X-Customer-Token", "a").Code)
	assert.Equal(t, http.StatusOK, serve(r, "X-Customer-Token", "a").Code)
	w := serve(r, "X-Customer-Token", "a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(r, "X-Customer-Token", "b").Code)
}

func TestRateLimiterCapsRotatingTokensPerIP(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	r := newTestEngine(limiter.RateLimit())

	for i := 0; i < ipShare; i++ {
		require.Equal(t, http.StatusOK, serve(r, "X-Customer-Token", "device-"+strconv.Itoa(i)).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "X-Customer-Token", "device-fresh").Code)
}

func TestRateLimiterBoundsBuckets(t *testing.T) {
	limiter := NewRateLimiter(100, 10)
	limiter.maxVisitors = 3
	r := newTestEngine(limiter.RateLimit())

	long := strings.Repeat("x", 65)
	assert.Equal(t, http.StatusOK, serve(r, "X-Customer-Token", long).Code)
	limiter.mu.Lock()
	assert.Len(t, limiter.visitors, 1)
	limiter.mu.Unlock()

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, serve(r, "X-Customer-Token", "device-"+strconv.Itoa(i)).Code)
	}
	limiter.mu.Lock()
	assert.Len(t, limiter.visitors, 3)
	limiter.mu.Unlock()

	limiter.sweep(time.Now().Add(limiter.idleTTL + time.Second))
	limiter.mu.Lock()
	assert.Empty(t, limiter.visitors)
	limiter.mu.Unlock()
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := newTestEngine(RequestID())

	w := serve(r, "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = serve(r, "", "")
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SlpAus/flag-training-backend/pkg/lifecycle"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{PerSecond: 1, Burst: 2})
	l.now = fixedClock(&now)

	assert.True(t, l.Allow("1"))
	assert.True(t, l.Allow("1"))
	assert.False(t, l.Allow("1"), "burst exhausted")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("1"), "one token refilled")
	assert.False(t, l.Allow("1"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	now := time.Now()
	l := NewLimiter(Config{PerSecond: 1, Burst: 1})
	l.now = fixedClock(&now)

	assert.True(t, l.Allow("1"))
	assert.False(t, l.Allow("1"))
	assert.True(t, l.Allow("2"))
}

func TestLimiter_SweepEvictsIdleKeys(t *testing.T) {
	now := time.Now()
	l := NewLimiter(Config{PerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	l.now = fixedClock(&now)

	l.Allow("1")
	l.Allow("2")
	now = now.Add(2 * time.Minute)

	// Allow 不再顺带扫描整张表
	l.Allow("3")
	assert.Equal(t, 3, l.Tracked())

	assert.Equal(t, 2, l.Sweep())
	assert.Equal(t, 1, l.Tracked())
	assert.Zero(t, l.Sweep())
}

func TestLimiter_SweepDisabledWithoutIdleTTL(t *testing.T) {
	now := time.Now()
	l := NewLimiter(Config{PerSecond: 1, Burst: 1})
	l.now = fixedClock(&now)

	l.Allow("1")
	now = now.Add(24 * time.Hour)
	assert.Zero(t, l.Sweep())
	assert.Equal(t, 1, l.Tracked())
}

func TestStartSweeper(t *testing.T) {
	l := NewLimiter(Config{PerSecond: 1, Burst: 1, IdleTTL: 10 * time.Millisecond})
	l.Allow("1")
	l.Allow("2")

	mgr := lifecycle.NewManager()
	handle, err := mgr.NewServiceHandle("ratelimit-sweeper")
	require.NoError(t, err)
	go l.StartSweeper(handle, nil)

	assert.Eventually(t, func() bool { return l.Tracked() == 0 }, time.Second, 5*time.Millisecond)

	mgr.Shutdown()
	assert.Empty(t, mgr.WaitWithTimeout(time.Second))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l := NewLimiter(Config{PerSecond: 0.001, Burst: 1})
	router := gin.New()
	router.Use(l.Middleware(func(c *gin.Context) (string, bool) {
		key := c.GetHeader("X-Key")
		return key, key != ""
	}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(key string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if key != "" {
			req.Header.Set("X-Key", key)
		}
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, do("a"))
	assert.Equal(t, http.StatusTooManyRequests, do("a"))
	assert.Equal(t, http.StatusNoContent, do("b"))
	assert.Equal(t, http.StatusNoContent, do(""))
	assert.Equal(t, http.StatusNoContent, do(""))
}

package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func hit(r http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestRateLimitRejectsBurst(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(rdb, 2, zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	var codes []int
	for i := 0; i < 5; i++ {
		codes = append(codes, hit(r, "/ping").Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)

	var limited bool
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, rateLimitPrefix) {
			limited = true
			assert.Greater(t, mr.TTL(k), time.Duration(0))
		}
	}
	assert.True(t, limited)
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(rdb, 1, zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	assert.Equal(t, http.StatusOK, hit(r, "/ping").Code)
	assert.Equal(t, http.StatusOK, hit(r, "/ping").Code)
}

func errorsRouter(expose bool, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Errors(log, expose))
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("redis timeout"))
		c.Abort()
	})
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })
	r.GET("/handled", func(c *gin.Context) {
		_ = c.Error(errors.New("ignored"))
		c.JSON(http.StatusTeapot, gin.H{"ok": true})
	})
	return r
}

func TestErrorsExposesMessageInDevelopment(t *testing.T) {
	w := hit(errorsRouter(true, zap.NewNop()), "/fail")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"redis timeout"}`, w.Body.String())
}

func TestErrorsHidesMessageInProduction(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	w := hit(errorsRouter(false, zap.New(core)), "/fail")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"Something went wrong"}`, w.Body.String())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "unhandled request error", logs.All()[0].Message)
}

func TestErrorsRecoversPanics(t *testing.T) {
	w := hit(errorsRouter(true, zap.NewNop()), "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), genericErrorMessage)
}

func TestErrorsLeavesAnsweredRequestsAlone(t *testing.T) {
	w := hit(errorsRouter(true, zap.NewNop()), "/handled")
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestLoggerLevelsByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	hit(r, "/ok")
	hit(r, "/missing")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "/missing", entries[1].ContextMap()["path"])
}

package crontask

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgcron "github.com/swstarter/core/internal/pkg/cron"
)

func setup(t *testing.T) *gin.Engine {
	t.Helper()
	sched := pkgcron.New()
	require.NoError(t, sched.Register(pkgcron.Job{
		Name: "prune-index",
		Spec: "@every 10m",
		Fn:   func(context.Context) error { return nil },
	}))
	require.NoError(t, sched.Register(pkgcron.Job{
		Name: "broken",
		Spec: "@every 1h",
		Fn:   func(context.Context) error { return errors.New("boom") },
	}))
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(sched).RegisterRoutes(r.Group("/api"))
	return r
}

func call(r http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestListJobs(t *testing.T) {
	w, body := call(setup(t), http.MethodGet, "/api/cron-task")
	require.Equal(t, http.StatusOK, w.Code)
	items := body["data"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, "broken", items[0].(map[string]interface{})["name"])
	assert.Equal(t, "@every 10m", items[1].(map[string]interface{})["spec"])
}

func TestRunAndWait(t *testing.T) {
	r := setup(t)

	w, body := call(r, http.MethodPost, "/api/cron-task/prune-index/run?wait=true")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fulfill", body["status"])

	w, body = call(r, http.MethodPost, "/api/cron-task/broken/run?wait=true")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reject", body["status"])
	assert.Equal(t, "boom", body["message"])

	w, body = call(r, http.MethodGet, "/api/cron-task/broken")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reject", body["status"])
}

func TestRunAsync(t *testing.T) {
	w, _ := call(setup(t), http.MethodPost, "/api/cron-task/prune-index/run")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestUnknownJob(t *testing.T) {
	r := setup(t)
	w, _ := call(r, http.MethodGet, "/api/cron-task/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = call(r, http.MethodPost, "/api/cron-task/nope/run")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

package overview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swstarter/core/internal/modules/analytics"
	"github.com/swstarter/core/internal/pkg/swapi"
	"go.uber.org/zap"
)

type fakeCounter map[swapi.Category]int

func (f fakeCounter) Count(_ context.Context, cat swapi.Category) (int, error) {
	n, ok := f[cat]
	if !ok {
		return 0, errors.New("timeout")
	}
	return n, nil
}

type fakeSnapshots struct{ snap *analytics.StatsSnapshot }

func (f fakeSnapshots) GetLatestStats(context.Context) *analytics.StatsSnapshot { return f.snap }

func fetch(t *testing.T, h *Handler) map[string]interface{} {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestBuildSumsCountsAndToleratesFailures(t *testing.T) {
	counter := fakeCounter{swapi.People: 82, swapi.Films: 6, swapi.Planets: 60}
	h := NewHandler(counter, fakeSnapshots{}, zap.NewNop())

	data := h.Build(context.Background())
	assert.Equal(t, 148, data.TotalResources)
	assert.Equal(t, 0, data.CategoryCounts["starships"])
	assert.Len(t, data.CategoryCounts, 6)
	assert.Equal(t, PopulatedCategory{Category: "people", Count: 82}, data.MostPopulatedCategory)
}

func TestMostPopulatedDefaultsAndTies(t *testing.T) {
	assert.Equal(t, PopulatedCategory{Category: "unknown"}, mostPopulated(map[string]int{}))
	assert.Equal(t, PopulatedCategory{Category: "films", Count: 5},
		mostPopulated(map[string]int{"films": 5, "planets": 5}))
}

func TestStatsWithoutSnapshotServesEmptyShape(t *testing.T) {
	body := fetch(t, NewHandler(fakeCounter{}, fakeSnapshots{}, zap.NewNop()))

	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["timestamp"])
	data := body["data"].(map[string]interface{})
	qs := data["queryStats"].(map[string]interface{})
	assert.Equal(t, []interface{}{}, qs["topQueries"])
	assert.Equal(t, []interface{}{}, qs["popularHours"])
	assert.Equal(t, float64(0), qs["totalQueries"])
	assert.Equal(t, float64(0), qs["averageResponseTime"])
	assert.Contains(t, qs, "lastComputed")
	assert.Nil(t, qs["lastComputed"])
	assert.Equal(t, "unknown", data["mostPopulatedCategory"].(map[string]interface{})["category"])
}

func TestStatsServesCachedSnapshot(t *testing.T) {
	computed := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	snap := analytics.Compute([]analytics.QueryEvent{
		{Query: "luke", Timestamp: computed.Add(-time.Hour).UnixMilli(), ResponseTime: 100},
	}, computed, time.UTC)

	body := fetch(t, NewHandler(fakeCounter{swapi.People: 1}, fakeSnapshots{snap: snap}, zap.NewNop()))
	qs := body["data"].(map[string]interface{})["queryStats"].(map[string]interface{})
	assert.Equal(t, "2026-05-04T12:00:00.000Z", qs["lastComputed"])
	assert.Equal(t, float64(1), qs["totalQueries"])
	top := qs["topQueries"].([]interface{})
	require.Len(t, top, 1)
	assert.Equal(t, "luke", top[0].(map[string]interface{})["query"])
}

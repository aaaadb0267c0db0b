package counters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	hours   map[int]int64
	queries map[string]int64
	err     error
}

func (f fakeSource) HourCounters(context.Context) (map[int]int64, error) {
	return f.hours, f.err
}

func (f fakeSource) QueryCount(_ context.Context, q string) (int64, error) {
	return f.queries[q], nil
}

func get(src Source, target string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api"), src)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestCountersSortedByHour(t *testing.T) {
	w := get(fakeSource{hours: map[int]int64{14: 1, 9: 2}}, "/api/stats/counters")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"hours":[{"hour":9,"count":2},{"hour":14,"count":1}],"total":3}`, w.Body.String())
}

func TestCountersWithQuery(t *testing.T) {
	src := fakeSource{hours: map[int]int64{}, queries: map[string]int64{"Luke": 4}}
	w := get(src, "/api/stats/counters?query=%20Luke%20")
	assert.JSONEq(t, `{"hours":[],"total":0,"query":{"query":"luke","count":4}}`, w.Body.String())
}

func TestCountersFailure(t *testing.T) {
	w := get(fakeSource{err: errors.New("redis down")}, "/api/stats/counters")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

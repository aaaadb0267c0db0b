package resource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/swstarter/core/internal/pkg/swapi"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	records map[string]swapi.Record
	err     error
}

func (f fakeFetcher) GetByID(_ context.Context, cat swapi.Category, id string) (swapi.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.records[string(cat)+"/"+id]; ok {
		return r, nil
	}
	return nil, swapi.ErrNotFound
}

func serve(f Fetcher, target string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(f, zap.NewNop()).RegisterRoutes(r.Group("/api"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestGetPassesRecordThrough(t *testing.T) {
	f := fakeFetcher{records: map[string]swapi.Record{
		"people/1": swapi.Record(`{"name":"Luke Skywalker","height":"172"}`),
		"films/1":  swapi.Record(`{"title":"A New Hope"}`),
	}}

	w := serve(f, "/api/people/1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"Luke Skywalker","height":"172"}`, w.Body.String())

	w = serve(f, "/api/films/1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"title":"A New Hope"}`, w.Body.String())
}

func TestGetMapsNotFound(t *testing.T) {
	w := serve(fakeFetcher{}, "/api/people/999")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Not Found","message":"Person with ID 999 not found"}`, w.Body.String())

	w = serve(fakeFetcher{}, "/api/films/42")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Not Found","message":"Film with ID 42 not found"}`, w.Body.String())
}

func TestGetMapsOtherFailures(t *testing.T) {
	f := fakeFetcher{err: errors.New("connection reset")}

	w := serve(f, "/api/people/1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"Failed to retrieve person data"}`, w.Body.String())

	w = serve(f, "/api/films/1")
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"Failed to retrieve film data"}`, w.Body.String())
}

func TestGetRejectsBlankID(t *testing.T) {
	w := serve(fakeFetcher{}, "/api/people/%20")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func contextWithQuery(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/jobs?"+rawQuery, nil)
	return c
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query string
		want  Query
	}{
		{"", Query{Page: 1, Size: 10}},
		{"page=3&size=20", Query{Page: 3, Size: 20}},
		{"page=0&size=-5", Query{Page: 1, Size: 10}},
		{"page=abc&size=1000", Query{Page: 1, Size: MaxSize}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, FromContext(contextWithQuery(tt.query)))
		})
	}
}

func TestRangeAndMeta(t *testing.T) {
	q := Query{Page: 2, Size: 10}
	start, stop := q.Range()
	assert.Equal(t, int64(10), start)
	assert.Equal(t, int64(19), stop)

	meta := q.Meta(25)
	assert.Equal(t, 3, meta.TotalPage)
	assert.True(t, meta.HasNextPage)
	assert.False(t, Query{Page: 3, Size: 10}.Meta(25).HasNextPage)
	assert.Equal(t, 0, Query{Page: 1, Size: 10}.Meta(0).TotalPage)
}

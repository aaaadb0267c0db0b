package analytics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CategoryAll marks a cross-category search.
const CategoryAll = "all"

// QueryEvent is one search as it was served.
type QueryEvent struct {
	Query        string  `json:"query" validate:"required"`
	Category     string  `json:"category,omitempty"`
	Timestamp    int64   `json:"timestamp" validate:"gt=0"`
	ResponseTime float64 `json:"responseTime" validate:"gte=0"`
	ResultsCount int     `json:"resultsCount" validate:"gte=0"`
}

// ErrInvalidEvent marks an event that can never be stored, however often it is retried.
var ErrInvalidEvent = errors.New("invalid query event")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the invariants a stored event must satisfy.
func (e QueryEvent) Validate() error {
	if strings.TrimSpace(e.Query) == "" {
		return fmt.Errorf("%w: empty query", ErrInvalidEvent)
	}
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return nil
}

// NormalizedQuery is the grouping key for counters and top queries.
func (e QueryEvent) NormalizedQuery() string {
	return strings.ToLower(strings.TrimSpace(e.Query))
}

func (e QueryEvent) storedCategory() string {
	if e.Category == "" {
		return CategoryAll
	}
	return e.Category
}

func (e QueryEvent) toHash() map[string]interface{} {
	return map[string]interface{}{
		"query":        e.Query,
		"category":     e.storedCategory(),
		"timestamp":    strconv.FormatInt(e.Timestamp, 10),
		"responseTime": strconv.FormatFloat(e.ResponseTime, 'f', -1, 64),
		"resultsCount": strconv.Itoa(e.ResultsCount),
	}
}

func eventFromHash(h map[string]string) (QueryEvent, error) {
	ts, err := strconv.ParseInt(h["timestamp"], 10, 64)
	if err != nil {
		return QueryEvent{}, fmt.Errorf("timestamp: %w", err)
	}
	rt, err := strconv.ParseFloat(h["responseTime"], 64)
	if err != nil {
		return QueryEvent{}, fmt.Errorf("responseTime: %w", err)
	}
	rc, err := strconv.Atoi(h["resultsCount"])
	if err != nil {
		return QueryEvent{}, fmt.Errorf("resultsCount: %w", err)
	}
	return QueryEvent{
		Query:        h["query"],
		Category:     h["category"],
		Timestamp:    ts,
		ResponseTime: rt,
		ResultsCount: rc,
	}, nil
}

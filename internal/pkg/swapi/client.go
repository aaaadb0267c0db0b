package swapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/swstarter/core/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when SWAPI answers 404.
var ErrNotFound = errors.New("swapi: resource not found")

// StatusError is an unexpected non-2xx upstream answer.
type StatusError struct {
	Status int
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("swapi: %s returned %d", e.Path, e.Status)
}

// Record is one SWAPI resource, passed through verbatim.
type Record = json.RawMessage

// Results groups a cross-category search by category.
type Results struct {
	People    []Record `json:"people"`
	Films     []Record `json:"films"`
	Starships []Record `json:"starships"`
	Vehicles  []Record `json:"vehicles"`
	Species   []Record `json:"species"`
	Planets   []Record `json:"planets"`
}

// Total counts the records across all categories.
func (r Results) Total() int {
	return len(r.People) + len(r.Films) + len(r.Starships) + len(r.Vehicles) + len(r.Species) + len(r.Planets)
}

func (r *Results) set(c Category, records []Record) {
	switch c {
	case People:
		r.People = records
	case Films:
		r.Films = records
	case Starships:
		r.Starships = records
	case Vehicles:
		r.Vehicles = records
	case Species:
		r.Species = records
	case Planets:
		r.Planets = records
	}
}

type page struct {
	Count   int      `json:"count"`
	Results []Record `json:"results"`
}

// Config configures the upstream client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 = unlimited
}

const breakerName = "swapi"

// Client talks to SWAPI through a rate limiter and a circuit breaker.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if b := int(cfg.RequestsPerSecond); b > 1 {
			burst = b
		}
	}
	log := logger.Named("swapi-service")

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		logger:  log,
	}
}

// Search returns the first page of matches in one category.
func (c *Client) Search(ctx context.Context, cat Category, query string) ([]Record, error) {
	p, err := c.searchPage(ctx, cat, query)
	if err != nil {
		return nil, err
	}
	return p.Results, nil
}

// SearchAll queries every category concurrently. A failing category contributes an
// empty list and is logged; SearchAll itself never fails.
func (c *Client) SearchAll(ctx context.Context, query string) Results {
	c.logger.Info("searching SWAPI", zap.String("query", query))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results Results
	)
	for _, cat := range Categories {
		wg.Add(1)
		go func(cat Category) {
			defer wg.Done()
			records, err := c.Search(ctx, cat, query)
			if err != nil {
				c.logger.Error("category search failed", zap.String("category", string(cat)), zap.Error(err))
				records = []Record{}
			}
			mu.Lock()
			results.set(cat, records)
			mu.Unlock()
		}(cat)
	}
	wg.Wait()
	return results
}

// GetByID fetches a single resource. A missing resource yields ErrNotFound.
func (c *Client) GetByID(ctx context.Context, cat Category, id string) (Record, error) {
	path, ok := resourcePaths[cat]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrInvalidCategory, cat)
	}
	body, err := c.get(ctx, cat, path+url.PathEscape(id)+"/", nil)
	if err != nil {
		return nil, err
	}
	return Record(body), nil
}

// Count reports how many resources a category holds (SWAPI's count for an empty search).
func (c *Client) Count(ctx context.Context, cat Category) (int, error) {
	p, err := c.searchPage(ctx, cat, "")
	if err != nil {
		return 0, err
	}
	if p.Count > 0 {
		return p.Count, nil
	}
	return len(p.Results), nil
}

func (c *Client) searchPage(ctx context.Context, cat Category, query string) (*page, error) {
	path, ok := resourcePaths[cat]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrInvalidCategory, cat)
	}
	body, err := c.get(ctx, cat, path, url.Values{"search": []string{query}})
	if err != nil {
		return nil, err
	}
	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode %s search: %w", cat, err)
	}
	if p.Results == nil {
		p.Results = []Record{}
	}
	return &p, nil
}

func (c *Client) get(ctx context.Context, cat Category, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, path, params)
	})
	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues(string(cat), "success").Inc()
	case errors.Is(err, ErrNotFound):
		metrics.UpstreamRequests.WithLabelValues(string(cat), "not_found").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.UpstreamRequests.WithLabelValues(string(cat), "rejected").Inc()
	default:
		metrics.UpstreamRequests.WithLabelValues(string(cat), "failure").Inc()
	}
	return body, err
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	target := c.base + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Status: resp.StatusCode, Path: path}
	}
	return io.ReadAll(resp.Body)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

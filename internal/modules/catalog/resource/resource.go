package resource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/swstarter/core/internal/pkg/response"
	"github.com/swstarter/core/internal/pkg/swapi"
	"go.uber.org/zap"
)

// Fetcher loads a single upstream resource.
type Fetcher interface {
	GetByID(ctx context.Context, cat swapi.Category, id string) (swapi.Record, error)
}

type kind struct {
	category swapi.Category
	noun     string // "Person", "Film"
	logger   *zap.Logger
}

// Handler serves /people/:id and /films/:id.
type Handler struct {
	swapi Fetcher
	kinds map[swapi.Category]kind
}

func NewHandler(f Fetcher, logger *zap.Logger) *Handler {
	return &Handler{
		swapi: f,
		kinds: map[swapi.Category]kind{
			swapi.People: {category: swapi.People, noun: "Person", logger: logger.Named("person-controller")},
			swapi.Films:  {category: swapi.Films, noun: "Film", logger: logger.Named("film-controller")},
		},
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/people/:id", h.get(h.kinds[swapi.People]))
	rg.GET("/films/:id", h.get(h.kinds[swapi.Films]))
}

func (h *Handler) get(k kind) gin.HandlerFunc {
	lower := strings.ToLower(k.noun)
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("id"))
		if id == "" {
			response.Problem(c, http.StatusBadRequest, "", "ID parameter must be a non-empty string")
			return
		}

		k.logger.Info("processing request", zap.String("id", id))
		record, err := h.swapi.GetByID(c.Request.Context(), k.category, id)
		if err != nil {
			k.logger.Error("lookup failed", zap.String("id", id), zap.Error(err))
			if errors.Is(err, swapi.ErrNotFound) {
				response.Problem(c, http.StatusNotFound, "", fmt.Sprintf("%s with ID %s not found", k.noun, id))
				return
			}
			response.Problem(c, http.StatusInternalServerError, "", fmt.Sprintf("Failed to retrieve %s data", lower))
			return
		}

		k.logger.Info("retrieved", zap.String("id", id))
		c.Data(http.StatusOK, "application/json; charset=utf-8", record)
	}
}

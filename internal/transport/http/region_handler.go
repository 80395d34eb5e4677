package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "petakeu/internal/errors"
	"petakeu/internal/geo"
	"petakeu/internal/middleware"
	"petakeu/internal/regions"
	"petakeu/pkg/contracts/domain"
)

// ScenarioHeader selects the payment dataset when no scenario query
// parameter is given
const ScenarioHeader = "X-Scenario"

// scenarioOf reads the dataset scenario from the query or the header
func scenarioOf(r *http.Request) string {
	if s := r.URL.Query().Get("scenario"); s != "" {
		return s
	}
	return r.Header.Get(ScenarioHeader)
}

// isPublic reports whether the caller asked for the public view
func isPublic(r *http.Request) bool {
	v := r.URL.Query().Get("public")
	return v == "1" || v == "true"
}

// RegionHandler serves the region catalog and per-region summaries
type RegionHandler struct {
	aggregator   *regions.Aggregator
	query        *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewRegionHandler creates a new region handler
func NewRegionHandler(aggregator *regions.Aggregator, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *RegionHandler {
	return &RegionHandler{
		aggregator:   aggregator,
		query:        middleware.NewQueryParamValidator(logger, errorHandler),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("component", "region_handler")),
	}
}

// Routes returns the region routes
func (h *RegionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListRegions)
	r.Get("/{id}/summary", h.GetSummary)
	return r
}

// ListRegions handles GET /regions
func (h *RegionHandler) ListRegions(w http.ResponseWriter, r *http.Request) {
	level, ok := h.query.ValidateEnum(w, r, "level",
		[]string{string(domain.RegionLevelProvince), string(domain.RegionLevelRegency)}, "")
	if !ok {
		return
	}
	page, ok := h.query.ValidateInt(w, r, "page", 1, 1<<20, regions.DefaultPage)
	if !ok {
		return
	}
	pageSize, ok := h.query.ValidateInt(w, r, "pageSize", 1, regions.MaxPageSize, regions.DefaultPageSize)
	if !ok {
		return
	}

	render.JSON(w, r, h.aggregator.ListRegions(regions.ListQuery{
		Level:    domain.RegionLevel(level),
		Parent:   r.URL.Query().Get("parent"),
		Page:     page,
		PageSize: pageSize,
	}))
}

// GetSummary handles GET /regions/{id}/summary. With public=1 only the
// region identity and a notice are returned.
func (h *RegionHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regionID := chi.URLParam(r, "id")

	if isPublic(r) {
		summary, err := h.aggregator.PublicSummary(ctx, regionID)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		render.JSON(w, r, summary)
		return
	}

	summary, err := h.aggregator.Summarize(ctx, regionID, regions.PeriodFilter{
		Scenario: scenarioOf(r),
		From:     r.URL.Query().Get("from"),
		To:       r.URL.Query().Get("to"),
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

// GeoHandler serves choropleth feature collections
type GeoHandler struct {
	builder      *geo.Builder
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewGeoHandler creates a new geo handler
func NewGeoHandler(builder *geo.Builder, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *GeoHandler {
	return &GeoHandler{
		builder:      builder,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("component", "geo_handler")),
	}
}

// Routes returns the geo routes
func (h *GeoHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/choropleth", h.GetChoropleth)
	return r
}

// GetChoropleth handles GET /geo/choropleth. An absent period selects the
// latest period of the dataset.
func (h *GeoHandler) GetChoropleth(w http.ResponseWriter, r *http.Request) {
	result, err := h.builder.Build(r.Context(), scenarioOf(r), r.URL.Query().Get("period"), isPublic(r))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "petakeu/internal/errors"
	"petakeu/internal/reports"
	api "petakeu/pkg/contracts/api/v1"
)

// ReportHandler serves report export jobs
type ReportHandler struct {
	service      *reports.Service
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(service *reports.Service, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ReportHandler {
	return &ReportHandler{
		service:      service,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("component", "report_handler")),
	}
}

// Routes returns the report routes
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/export", h.Export)
	r.Get("/", h.ListJobs)
	r.Get("/{id}", h.GetJob)
	return r
}

// Export handles POST /reports/export and answers 201 with the job
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req api.ReportExportRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	job, err := h.service.Enqueue(r.Context(), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "report requested",
		slog.String("job_id", job.ID),
		slog.String("period", job.Period),
		slog.String("format", string(job.Format)),
		slog.Int("regions", len(job.RegionIDs)))
	renderData(w, r, http.StatusCreated, job)
}

// ListJobs handles GET /reports, newest first
func (h *ReportHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.List(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	renderData(w, r, http.StatusOK, jobs)
}

// GetJob handles GET /reports/{id}
func (h *ReportHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	renderData(w, r, http.StatusOK, job)
}

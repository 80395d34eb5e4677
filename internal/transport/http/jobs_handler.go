package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "petakeu/internal/errors"
	"petakeu/internal/middleware"
	"petakeu/internal/operations"
)

// jobView adds derived fields to a job for polling clients
type jobView struct {
	*operations.Job
	Duration   string `json:"duration,omitempty"`
	IsComplete bool   `json:"isComplete"`
	PollAfter  string `json:"pollAfter,omitempty"`
}

func viewOf(job *operations.Job) jobView {
	view := jobView{Job: job}
	if job.StartedAt != nil && job.CompletedAt != nil {
		view.Duration = job.CompletedAt.Sub(*job.StartedAt).String()
	}
	switch job.Status {
	case operations.JobStatusPending, operations.JobStatusRunning:
		view.PollAfter = "2s"
	default:
		view.IsComplete = true
	}
	return view
}

// JobsHandler exposes the background task bookkeeping of the job queue
type JobsHandler struct {
	queue        *operations.JobQueue
	query        *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	tracer       trace.Tracer
	logger       *slog.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(queue *operations.JobQueue, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *JobsHandler {
	return &JobsHandler{
		queue:        queue,
		query:        middleware.NewQueryParamValidator(logger, errorHandler),
		errorHandler: errorHandler,
		tracer:       otel.Tracer("petakeu.jobs"),
		logger:       logger.With(slog.String("component", "jobs_handler")),
	}
}

// Routes returns the job routes
func (h *JobsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListJobs)
	r.Get("/{id}", h.GetJob)
	return r
}

// GetJob handles GET /jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	ctx, span := h.tracer.Start(r.Context(), "jobs_handler.get_job",
		trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	job, err := h.queue.GetJob(jobID)
	if err != nil {
		span.RecordError(err)
		h.errorHandler.HandleError(w, r.WithContext(ctx), err)
		return
	}
	span.SetAttributes(attribute.String("job.status", string(job.Status)))
	renderData(w, r, http.StatusOK, viewOf(job))
}

// ListJobs handles GET /jobs?status=&kind=&subjectId=&limit=
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status, ok := h.query.ValidateEnum(w, r, "status", []string{
		string(operations.JobStatusPending),
		string(operations.JobStatusRunning),
		string(operations.JobStatusCompleted),
		string(operations.JobStatusFailed),
		string(operations.JobStatusAbandoned),
	}, "")
	if !ok {
		return
	}
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, 1000, 100)
	if !ok {
		return
	}

	filter := operations.JobFilter{
		Status:    operations.JobStatus(status),
		Kind:      r.URL.Query().Get("kind"),
		SubjectID: r.URL.Query().Get("subjectId"),
		Limit:     limit,
	}
	jobs, err := h.queue.ListJobs(filter)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	views := make([]jobView, len(jobs))
	for i, job := range jobs {
		views[i] = viewOf(job)
	}
	render.JSON(w, r, map[string]interface{}{
		"data":  views,
		"count": len(views),
		"stats": h.queue.Stats(),
	})
}

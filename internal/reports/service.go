// Package reports builds cross-region report jobs: request validation,
// summary synthesis and the queued → processing → completed|failed
// lifecycle with download links that expire.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"petakeu/internal/infrastructure"
	"petakeu/internal/operations"
	"petakeu/internal/regions"
	"petakeu/internal/websocket"
	api "petakeu/pkg/contracts/api/v1"
	"petakeu/pkg/contracts/domain"
	"petakeu/pkg/contracts/events"
)

// DefaultExpiry is how long a download link stays valid
const DefaultExpiry = 24 * time.Hour

// TaskKind labels report rendering tasks in the job queue
const TaskKind = "report_render"

// Submitter schedules background tasks
type Submitter interface {
	Submit(task operations.Task) (*operations.Completion, error)
}

// Renderer produces the document of a job. It returns nothing but an error;
// the download link is derived from the job ID and format.
type Renderer func(ctx context.Context, job domain.ReportJob) error

// Config tunes the report service
type Config struct {
	// Async renders on the job queue instead of completing on request
	Async           bool
	Expiry          time.Duration
	DownloadBaseURL string
}

// Dependencies groups the collaborators of a Service
type Dependencies struct {
	Store     Store
	Catalog   *regions.Catalog
	Queue     Submitter
	Renderer  Renderer
	Publisher websocket.Publisher
	Logger    *slog.Logger
}

// Service runs report jobs
type Service struct {
	store     Store
	catalog   *regions.Catalog
	queue     Submitter
	render    Renderer
	publisher websocket.Publisher
	validate  *validator.Validate
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	jobCounter metric.Int64Counter
}

// NewService creates a report service
func NewService(cfg Config, deps Dependencies) *Service {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.DownloadBaseURL == "" {
		cfg.DownloadBaseURL = regions.DefaultReportBaseURL
	}
	cfg.DownloadBaseURL = strings.TrimRight(cfg.DownloadBaseURL, "/")

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = websocket.NopPublisher{}
	}
	store := deps.Store
	if store == nil {
		store = NewMemoryStore()
	}
	render := deps.Renderer
	if render == nil {
		render = func(context.Context, domain.ReportJob) error { return nil }
	}

	s := &Service{
		store:     store,
		catalog:   deps.Catalog,
		queue:     deps.Queue,
		render:    render,
		publisher: publisher,
		validate:  NewValidate(),
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "reports")),
		now:       time.Now,
	}
	s.jobCounter, _ = otel.Meter("petakeu.reports").Int64Counter("petakeu.reports.jobs",
		metric.WithDescription("Report job transitions by status"))
	return s
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Enqueue validates a request and creates its job. In synchronous mode the
// returned job is already completed.
func (s *Service) Enqueue(ctx context.Context, req api.ReportExportRequest) (domain.ReportJob, error) {
	req.Period = strings.TrimSpace(req.Period)
	if err := ValidateRequest(s.validate, req); err != nil {
		return domain.ReportJob{}, err
	}

	summary, err := BuildSummary(s.catalog, req.Period, req.RegionIDs)
	if err != nil {
		return domain.ReportJob{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	now := s.now().UTC()
	job := domain.ReportJob{
		ID:          uuid.NewString(),
		Period:      req.Period,
		RegionIDs:   append([]string(nil), req.RegionIDs...),
		Format:      domain.ReportFormat(req.Format),
		Status:      domain.ReportStatusQueued,
		RequestedAt: now,
		UpdatedAt:   now,
		Summary:     summary,
	}

	if !s.cfg.Async || s.queue == nil {
		s.complete(&job, now)
	}

	if err := s.store.Create(ctx, job); err != nil {
		return domain.ReportJob{}, fmt.Errorf("failed to store report job: %w", err)
	}
	s.count(ctx, job.Status)
	s.publish(ctx, job)

	s.logger.InfoContext(ctx, "report job created",
		slog.String("job_id", job.ID),
		slog.String("period", job.Period),
		slog.Int("regions", len(job.RegionIDs)),
		slog.String("status", string(job.Status)))

	if job.Status == domain.ReportStatusQueued {
		if err := s.schedule(ctx, job.ID); err != nil {
			if failed, ferr := s.fail(ctx, job.ID, fmt.Sprintf("report could not be scheduled: %v", err)); ferr == nil {
				job = failed
			}
		}
	}
	return job, nil
}

func (s *Service) complete(job *domain.ReportJob, at time.Time) {
	url := fmt.Sprintf("%s/reports/%s.%s", s.cfg.DownloadBaseURL, job.ID, job.Format.Extension())
	expires := at.Add(s.cfg.Expiry)
	job.Status = domain.ReportStatusCompleted
	job.DownloadURL = &url
	job.ExpiresAt = &expires
	job.UpdatedAt = at
}

func (s *Service) schedule(ctx context.Context, id string) error {
	_, err := s.queue.Submit(operations.Task{
		Kind:      TaskKind,
		SubjectID: id,
		TraceID:   infrastructure.GetTraceID(ctx),
		Run: func(taskCtx context.Context) error {
			return s.process(taskCtx, id)
		},
		OnError: func(taskCtx context.Context, err error) {
			s.fail(taskCtx, id, err.Error())
		},
	})
	return err
}

// process renders one queued job
func (s *Service) process(ctx context.Context, id string) error {
	job, err := s.transition(ctx, id, func(j *domain.ReportJob) {
		j.Status = domain.ReportStatusProcessing
		j.UpdatedAt = s.now().UTC()
	})
	if err != nil {
		return err
	}

	if err := s.render(ctx, job); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err = s.transition(ctx, id, func(j *domain.ReportJob) {
		s.complete(j, s.now().UTC())
	})
	if errors.Is(err, ErrTerminalState) {
		return nil
	}
	return err
}

// fail moves a job to failed. Jobs already terminal are left untouched.
func (s *Service) fail(ctx context.Context, id, message string) (domain.ReportJob, error) {
	job, err := s.transition(ctx, id, func(j *domain.ReportJob) {
		j.Status = domain.ReportStatusFailed
		j.ErrorMessage = message
		j.DownloadURL = nil
		j.UpdatedAt = s.now().UTC()
	})
	if err != nil {
		if !errors.Is(err, ErrTerminalState) {
			s.logger.ErrorContext(ctx, "failed to mark report job failed",
				slog.String("job_id", id),
				slog.String("error", err.Error()))
		}
		return job, err
	}
	s.logger.WarnContext(ctx, "report job failed",
		slog.String("job_id", id),
		slog.String("reason", message))
	return job, nil
}

func (s *Service) transition(ctx context.Context, id string, mutate func(*domain.ReportJob)) (domain.ReportJob, error) {
	job, err := s.store.Update(ctx, id, func(j *domain.ReportJob) error {
		mutate(j)
		return nil
	})
	if err != nil {
		return job, err
	}
	s.count(ctx, job.Status)
	s.publish(ctx, job)
	return job, nil
}

// Get returns one job with lazy expiry applied
func (s *Service) Get(ctx context.Context, id string) (domain.ReportJob, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.ReportJob{}, err
	}
	return s.expire(job), nil
}

// List returns every job, newest request first, with lazy expiry applied
func (s *Service) List(ctx context.Context) ([]domain.ReportJob, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i] = s.expire(jobs[i])
	}
	return jobs, nil
}

// expire drops the download link of completed jobs past their expiry
func (s *Service) expire(job domain.ReportJob) domain.ReportJob {
	if job.Status == domain.ReportStatusCompleted && job.ExpiresAt != nil && s.now().After(*job.ExpiresAt) {
		job.DownloadURL = nil
	}
	return job
}

func (s *Service) count(ctx context.Context, status domain.ReportStatus) {
	if s.jobCounter != nil {
		s.jobCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}

func (s *Service) publish(ctx context.Context, job domain.ReportJob) {
	s.publisher.Publish(ctx, events.MessageTypeReportStatus, events.ReportStatusEvent{
		JobID:        job.ID,
		Status:       string(job.Status),
		DownloadURL:  job.DownloadURL,
		ErrorMessage: job.ErrorMessage,
		UpdatedAt:    job.UpdatedAt,
	})
}

package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"petakeu/internal/infrastructure"
)

// TracerName names the tracer used for background task spans
const TracerName = "petakeu.operations"

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusAbandoned JobStatus = "abandoned"
)

// Job is the bookkeeping record of one background task
type Job struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	SubjectID   string     `json:"subjectId"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// JobStore persists job bookkeeping records
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	ListJobs(filter JobFilter) ([]*Job, error)
}

// JobFilter for querying jobs
type JobFilter struct {
	Status    JobStatus
	Kind      string
	SubjectID string
	Since     time.Time
	Limit     int
}

// Task is a unit of background work
type Task struct {
	// Kind groups tasks for logs and metrics, e.g. "upload_validation"
	Kind string
	// SubjectID is the record the task works on
	SubjectID string
	// TraceID is propagated to the task context for log correlation
	TraceID string
	// Run performs the work. It must honour ctx cancellation.
	Run func(ctx context.Context) error
	// OnError is called once if Run returns an error, panics or exceeds the
	// queue's task timeout. ctx is not cancelled by the timeout.
	OnError func(ctx context.Context, err error)
}

// Completion resolves when a submitted task has finished or was abandoned
type Completion struct {
	JobID string
	done  chan struct{}
	err   error
}

func newCompletion(jobID string) *Completion {
	return &Completion{JobID: jobID, done: make(chan struct{})}
}

// Done is closed once the task has finished
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns the task error after Done is closed
func (c *Completion) Err() error {
	<-c.done
	return c.err
}

// Wait blocks until the task finished or ctx is done
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Completion) resolve(err error) {
	c.err = err
	close(c.done)
}

type queuedTask struct {
	job        *Job
	task       Task
	completion *Completion
}

// QueueConfig sizes a JobQueue
type QueueConfig struct {
	Workers     int
	BufferSize  int
	TaskTimeout time.Duration
}

// QueueStats is a point-in-time view of the queue
type QueueStats struct {
	Workers   int  `json:"workers"`
	Queued    int  `json:"queued"`
	Capacity  int  `json:"capacity"`
	Active    int  `json:"active"`
	Accepting bool `json:"accepting"`
}

// JobQueue runs tasks on a fixed pool of workers
type JobQueue struct {
	mu       sync.RWMutex
	tasks    chan *queuedTask
	workers  int
	timeout  time.Duration
	wg       sync.WaitGroup
	store    JobStore
	logger   *slog.Logger
	tracer   trace.Tracer
	shutdown chan struct{}
	stopped  bool
	active   map[string]struct{}
}

// NewJobQueue creates a new job queue
func NewJobQueue(cfg QueueConfig, store JobStore, logger *slog.Logger) *JobQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if store == nil {
		store = NewMemoryJobStore()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &JobQueue{
		tasks:    make(chan *queuedTask, cfg.BufferSize),
		workers:  cfg.Workers,
		timeout:  cfg.TaskTimeout,
		store:    store,
		logger:   infrastructure.WithComponent(logger, "jobqueue"),
		tracer:   otel.Tracer(TracerName),
		shutdown: make(chan struct{}),
		active:   make(map[string]struct{}),
	}
}

// Start begins processing tasks
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.Info("starting job queue",
		slog.Int("workers", q.workers),
		slog.Duration("task_timeout", q.timeout))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop lets running tasks finish and abandons tasks still queued. Abandoned
// tasks resolve with ErrQueueStopped and their subjects are left untouched.
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	close(q.shutdown)
	q.mu.Unlock()

	q.logger.Info("stopping job queue")

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
	case <-time.After(timeout):
		q.logger.Warn("job queue stop timeout exceeded")
		err = fmt.Errorf("timeout waiting for workers to finish")
	}

	q.abandonQueued()
	return err
}

// abandonQueued resolves every task that never started
func (q *JobQueue) abandonQueued() {
	for {
		select {
		case qt := <-q.tasks:
			now := time.Now()
			qt.job.Status = JobStatusAbandoned
			qt.job.CompletedAt = &now
			q.saveJob(qt.job)
			qt.completion.resolve(ErrQueueStopped)
			q.logger.Warn("queued task abandoned",
				slog.String("job_id", qt.job.ID),
				slog.String("kind", qt.job.Kind),
				slog.String("subject_id", qt.job.SubjectID))
		default:
			return
		}
	}
}

// Submit enqueues a task without blocking
func (q *JobQueue) Submit(task Task) (*Completion, error) {
	if task.Run == nil {
		return nil, errors.New("task has no Run function")
	}

	job := &Job{
		ID:        uuid.NewString(),
		Kind:      task.Kind,
		SubjectID: task.SubjectID,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}
	qt := &queuedTask{job: job, task: task, completion: newCompletion(job.ID)}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return nil, ErrQueueStopped
	}

	if err := q.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	select {
	case q.tasks <- qt:
		q.logger.Debug("task enqueued",
			slog.String("job_id", job.ID),
			slog.String("kind", job.Kind),
			slog.String("subject_id", job.SubjectID))
		return qt.completion, nil
	default:
		job.Status = JobStatusFailed
		job.Error = ErrQueueFull.Error()
		q.saveJob(job)
		return nil, ErrQueueFull
	}
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// ListJobs returns jobs matching the filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

// Stats returns queue statistics
func (q *JobQueue) Stats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return QueueStats{
		Workers:   q.workers,
		Queued:    len(q.tasks),
		Capacity:  cap(q.tasks),
		Active:    len(q.active),
		Accepting: !q.stopped,
	}
}

// worker processes tasks from the queue
func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		// Shutdown wins over pending work
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		default:
		}

		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case qt := <-q.tasks:
			q.process(ctx, qt, logger)
		}
	}
}

// process executes a single task and resolves its completion
func (q *JobQueue) process(ctx context.Context, qt *queuedTask, logger *slog.Logger) {
	job := qt.job
	logger = logger.With(
		slog.String("job_id", job.ID),
		slog.String("kind", job.Kind),
		slog.String("subject_id", job.SubjectID),
	)

	if qt.task.TraceID != "" {
		ctx = infrastructure.WithTraceID(ctx, qt.task.TraceID)
	}
	ctx = infrastructure.EnsureTraceID(ctx)
	ctx, span := q.tracer.Start(ctx, "task."+job.Kind,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.kind", job.Kind),
			attribute.String("job.subject_id", job.SubjectID),
		),
	)
	defer span.End()

	now := time.Now()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	q.saveJob(job)

	q.mu.Lock()
	q.active[job.ID] = struct{}{}
	q.mu.Unlock()

	logger.Info("task started")
	err := q.runWithTimeout(ctx, qt.task)

	completedAt := time.Now()
	job.CompletedAt = &completedAt
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("task failed", slog.String("error", err.Error()))
		if qt.task.OnError != nil {
			q.safeOnError(context.WithoutCancel(ctx), qt.task, err, logger)
		}
	} else {
		job.Status = JobStatusCompleted
		span.SetStatus(codes.Ok, "")
		logger.Info("task completed", slog.Duration("duration", completedAt.Sub(now)))
	}

	q.mu.Lock()
	delete(q.active, job.ID)
	q.mu.Unlock()

	q.saveJob(job)
	qt.completion.resolve(err)
}

// runWithTimeout runs task.Run with panic recovery. When the timeout fires
// the task goroutine is abandoned and ErrTaskTimeout is returned.
func (q *JobQueue) runWithTimeout(ctx context.Context, task Task) error {
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- &PanicError{Value: r}
			}
		}()
		result <- task.Run(ctx)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTaskTimeout, q.timeout)
		}
		return ctx.Err()
	}
}

func (q *JobQueue) safeOnError(ctx context.Context, task Task, err error, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task error handler panicked", slog.Any("panic", r))
		}
	}()
	task.OnError(ctx, err)
}

func (q *JobQueue) saveJob(job *Job) {
	if err := q.store.UpdateJob(job); err != nil {
		q.logger.Error("failed to update job", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
}

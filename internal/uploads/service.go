// Package uploads implements the spreadsheet upload lifecycle: intake with
// content-hash deduplication, background validation and ingestion of the
// valid rows into the payment source.
package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"petakeu/internal/dataprocessing"
	apierrors "petakeu/internal/errors"
	"petakeu/internal/exporter"
	"petakeu/internal/infrastructure"
	"petakeu/internal/operations"
	"petakeu/internal/regions"
	"petakeu/internal/websocket"
	"petakeu/pkg/contracts/domain"
	"petakeu/pkg/contracts/events"
)

// Accepted spreadsheet MIME types
const (
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeXLS  = "application/vnd.ms-excel"
)

// DefaultMaxSize is the largest accepted upload in bytes
const DefaultMaxSize int64 = 10 * 1024 * 1024

// TaskKind labels validation tasks in the job queue
const TaskKind = "upload_validation"

// FileColumn marks a row error that concerns the whole file
const FileColumn = "file"

var (
	// ErrUnsupportedFormat is returned for files that are not Excel workbooks
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrFileTooLarge is returned for files above the size limit
	ErrFileTooLarge = errors.New("file too large")
)

// File is an uploaded spreadsheet
type File struct {
	Filename string
	MimeType string
	Size     int64
	Data     []byte
}

// Submitter schedules background tasks
type Submitter interface {
	Submit(task operations.Task) (*operations.Completion, error)
}

// PaymentIngestor stores the valid rows of a parsed upload
type PaymentIngestor interface {
	Ingest(ctx context.Context, rows []domain.PaymentRow) (regions.IngestResult, error)
}

// Config tunes the upload service
type Config struct {
	MaxSize          int64
	ValidatorWorkers int
	// FileBaseURL prefixes the storage links of uploads and error reports
	FileBaseURL string
}

// Service runs the upload lifecycle
type Service struct {
	store     Store
	blobs     BlobStore
	queue     Submitter
	validator *dataprocessing.Validator
	reports   *exporter.CSVWriter
	ingestor  PaymentIngestor
	publisher websocket.Publisher
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	waiters map[string]chan struct{}

	intakeCounter   metric.Int64Counter
	terminalCounter metric.Int64Counter
	validationTime  metric.Float64Histogram
}

// Dependencies groups the collaborators of a Service
type Dependencies struct {
	Store     Store
	Blobs     BlobStore
	Queue     Submitter
	Reports   *exporter.CSVWriter
	Ingestor  PaymentIngestor
	Publisher websocket.Publisher
	Logger    *slog.Logger
}

// NewService creates an upload service
func NewService(cfg Config, deps Dependencies) *Service {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.ValidatorWorkers <= 0 {
		cfg.ValidatorWorkers = 4
	}
	if cfg.FileBaseURL == "" {
		cfg.FileBaseURL = regions.DefaultReportBaseURL
	}
	cfg.FileBaseURL = strings.TrimRight(cfg.FileBaseURL, "/")

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = websocket.NopPublisher{}
	}

	s := &Service{
		store:     deps.Store,
		blobs:     deps.Blobs,
		queue:     deps.Queue,
		validator: dataprocessing.NewValidator(cfg.ValidatorWorkers),
		reports:   deps.Reports,
		ingestor:  deps.Ingestor,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "uploads")),
		now:       time.Now,
		waiters:   make(map[string]chan struct{}),
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := otel.Meter("petakeu.uploads")
	s.intakeCounter, _ = meter.Int64Counter("petakeu.uploads.intake",
		metric.WithDescription("Upload intake attempts by outcome"))
	s.terminalCounter, _ = meter.Int64Counter("petakeu.uploads.terminal",
		metric.WithDescription("Uploads reaching a terminal status"))
	s.validationTime, _ = meter.Float64Histogram("petakeu.uploads.validation.duration",
		metric.WithDescription("Time spent parsing and validating uploads"),
		metric.WithUnit("s"))
}

func (s *Service) countIntake(ctx context.Context, outcome string) {
	if s.intakeCounter != nil {
		s.intakeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// MaxSize is the largest accepted upload in bytes
func (s *Service) MaxSize() int64 {
	return s.cfg.MaxSize
}

// IsAcceptedMimeType reports whether mimeType names an Excel workbook.
// Parameters such as charset are ignored.
func IsAcceptedMimeType(mimeType string) bool {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.ToLower(strings.TrimSpace(base)) {
	case MimeXLSX, MimeXLS:
		return true
	default:
		return false
	}
}

// HashContent returns the lowercase hex SHA-256 of data
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Intake accepts a spreadsheet. A file whose content was uploaded before
// returns the existing record. That record is only validated again when it is
// still queued and no validation for it is pending in this process.
func (s *Service) Intake(ctx context.Context, file File) (domain.UploadResult, error) {
	size := max(file.Size, int64(len(file.Data)))
	if !IsAcceptedMimeType(file.MimeType) {
		s.countIntake(ctx, "rejected")
		return domain.UploadResult{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, file.MimeType)
	}
	if size > s.cfg.MaxSize {
		s.countIntake(ctx, "rejected")
		return domain.UploadResult{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, s.cfg.MaxSize)
	}

	hash := HashContent(file.Data)
	key := BlobKey(hash, file.Filename)
	if err := s.blobs.Put(ctx, key, file.Data); err != nil {
		return domain.UploadResult{}, err
	}

	now := s.now().UTC()
	record := domain.UploadRecord{
		ID:        uuid.NewString(),
		Filename:  file.Filename,
		MimeType:  file.MimeType,
		Size:      size,
		Status:    domain.UploadStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Hash:      hash,
	}

	stored, created, err := s.store.Reserve(ctx, record)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("failed to reserve upload: %w", err)
	}
	if !created {
		s.countIntake(ctx, "duplicate")
		s.logger.InfoContext(ctx, "duplicate upload",
			slog.String("upload_id", stored.ID),
			slog.String("hash", hash))
		if stored.Status == domain.UploadStatusQueued && s.claim(stored.ID) {
			stored = s.reschedule(ctx, stored, key)
		}
		return resultOf(stored), nil
	}

	s.countIntake(ctx, "accepted")
	s.claim(stored.ID)

	s.logger.InfoContext(ctx, "upload accepted",
		slog.String("upload_id", stored.ID),
		slog.String("filename", stored.Filename),
		slog.Int64("size", stored.Size))
	s.publish(ctx, stored)

	return resultOf(s.scheduleOrFail(ctx, stored, key)), nil
}

// Recover resumes uploads left unfinished by a previous process. Queued
// uploads are scheduled again; uploads interrupted while processing are
// failed. It returns how many records it touched.
func (s *Service) Recover(ctx context.Context) (int, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list uploads: %w", err)
	}

	touched := 0
	for _, record := range records {
		if record.Status.IsTerminal() || !s.claim(record.ID) {
			continue
		}
		switch record.Status {
		case domain.UploadStatusQueued:
			s.scheduleOrFail(ctx, record, BlobKey(record.Hash, record.Filename))
		case domain.UploadStatusProcessing:
			s.failHard(ctx, record.ID, "Validasi terhenti sebelum selesai, unggah ulang file")
		}
		touched++
	}
	if touched > 0 {
		s.logger.InfoContext(ctx, "recovered unfinished uploads", slog.Int("count", touched))
	}
	return touched, nil
}

// claim registers a waiter for id. It reports false when validation of id is
// already pending in this process.
func (s *Service) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.waiters[id]; ok {
		return false
	}
	s.waiters[id] = make(chan struct{})
	return true
}

// reschedule validates a queued record again after claim. The record is
// re-read so that a task finishing between Reserve and claim is not repeated.
func (s *Service) reschedule(ctx context.Context, record domain.UploadRecord, key string) domain.UploadRecord {
	current, err := s.store.Get(ctx, record.ID)
	if err != nil || current.Status != domain.UploadStatusQueued {
		s.release(record.ID)
		if err != nil {
			return record
		}
		return current
	}
	s.logger.WarnContext(ctx, "rescheduling stranded upload", slog.String("upload_id", current.ID))
	return s.scheduleOrFail(ctx, current, key)
}

// release drops the waiter registered by claim
func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.waiters[id]; ok {
		close(ch)
		delete(s.waiters, id)
	}
}

// scheduleOrFail submits validation of record and fails it when the queue
// refuses the task
func (s *Service) scheduleOrFail(ctx context.Context, record domain.UploadRecord, key string) domain.UploadRecord {
	err := s.schedule(ctx, record.ID, key)
	if err == nil {
		return record
	}
	s.logger.ErrorContext(ctx, "failed to schedule validation",
		slog.String("upload_id", record.ID),
		slog.String("error", err.Error()))
	failed, ferr := s.failHard(ctx, record.ID, "Validasi tidak dapat dijadwalkan, coba lagi nanti")
	if ferr != nil {
		return record
	}
	return failed
}

func (s *Service) schedule(ctx context.Context, id, key string) error {
	_, err := s.queue.Submit(operations.Task{
		Kind:      TaskKind,
		SubjectID: id,
		TraceID:   infrastructure.GetTraceID(ctx),
		Run: func(taskCtx context.Context) error {
			return s.process(taskCtx, id, key)
		},
		OnError: func(taskCtx context.Context, err error) {
			s.logger.ErrorContext(taskCtx, "upload validation failed",
				slog.String("upload_id", id),
				slog.String("error", err.Error()))
			s.failHard(taskCtx, id, hardFailureMessage(err))
		},
	})
	return err
}

// process validates one upload. Returned errors are hard failures.
func (s *Service) process(ctx context.Context, id, key string) error {
	started := s.now()
	record, err := s.transition(ctx, id, func(r *domain.UploadRecord) {
		r.Status = domain.UploadStatusProcessing
	})
	if err != nil {
		return ignoreTerminal(err)
	}

	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		return err
	}
	rows, err := dataprocessing.ParseWorkbook(data)
	if err != nil {
		return err
	}
	result, err := s.validator.Validate(ctx, rows)
	if err != nil {
		return err
	}
	if s.validationTime != nil {
		s.validationTime.Record(ctx, s.now().Sub(started).Seconds())
	}

	summary := result.Summary
	if len(result.Errors) > 0 {
		errorPath := ""
		if s.reports != nil {
			if _, err := s.reports.WriteErrorReport(id, result.Errors); err != nil {
				s.logger.ErrorContext(ctx, "failed to write error report",
					slog.String("upload_id", id),
					slog.String("error", err.Error()))
			} else {
				errorPath = fmt.Sprintf("%s/uploads/%s-errors.csv", s.cfg.FileBaseURL, id)
			}
		}
		_, err := s.transition(ctx, id, func(r *domain.UploadRecord) {
			r.Status = domain.UploadStatusFailed
			r.Summary = &summary
			r.Errors = result.Errors
			r.ErrorCount = len(result.Errors)
			r.ErrorFilePath = errorPath
			r.FileURL = s.fileURL(id)
		})
		return ignoreTerminal(err)
	}

	// an abandoned task must not ingest after its upload was failed
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ingestor != nil && len(result.Rows) > 0 {
		if _, err := s.ingestor.Ingest(ctx, result.Rows); err != nil {
			return err
		}
	}

	_, err = s.transition(ctx, id, func(r *domain.UploadRecord) {
		r.Status = domain.UploadStatusParsed
		r.Summary = &summary
		r.Errors = nil
		r.ErrorCount = 0
		r.FileURL = s.fileURL(id)
	})
	s.logger.InfoContext(ctx, "upload processed",
		slog.String("upload_id", id),
		slog.String("filename", record.Filename),
		slog.Int("valid_rows", summary.ValidRows))
	return ignoreTerminal(err)
}

// failHard moves an upload to failed with a single file-level error. Uploads
// already in a terminal state are left untouched.
func (s *Service) failHard(ctx context.Context, id, message string) (domain.UploadRecord, error) {
	record, err := s.transition(ctx, id, func(r *domain.UploadRecord) {
		r.Status = domain.UploadStatusFailed
		r.Errors = []domain.RowError{{Row: 0, Column: FileColumn, Message: message}}
		r.ErrorCount = 1
		r.FileURL = s.fileURL(id)
	})
	if err != nil {
		if !errors.Is(err, ErrTerminalState) {
			s.logger.ErrorContext(ctx, "failed to mark upload failed",
				slog.String("upload_id", id),
				slog.String("error", err.Error()))
		}
		return record, err
	}
	s.logger.WarnContext(ctx, "upload failed",
		slog.String("upload_id", id),
		slog.String("reason", message))
	return record, nil
}

// transition updates a record, stamps UpdatedAt and announces the change
func (s *Service) transition(ctx context.Context, id string, mutate func(*domain.UploadRecord)) (domain.UploadRecord, error) {
	record, err := s.store.Update(ctx, id, func(r *domain.UploadRecord) error {
		mutate(r)
		r.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return record, err
	}

	s.publish(ctx, record)
	if record.Status.IsTerminal() {
		if s.terminalCounter != nil {
			s.terminalCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(record.Status))))
		}
		s.release(id)
	}
	return record, nil
}

func (s *Service) publish(ctx context.Context, record domain.UploadRecord) {
	s.publisher.Publish(ctx, events.MessageTypeUploadStatus, events.UploadStatusEvent{
		UploadID:   record.ID,
		Filename:   record.Filename,
		Status:     string(record.Status),
		ErrorCount: record.ErrorCount,
		UpdatedAt:  record.UpdatedAt,
	})
}

func (s *Service) fileURL(id string) string {
	return fmt.Sprintf("%s/uploads/%s.xlsx", s.cfg.FileBaseURL, id)
}

// Get returns one upload record
func (s *Service) Get(ctx context.Context, id string) (domain.UploadRecord, error) {
	return s.store.Get(ctx, id)
}

// List returns every upload, newest first
func (s *Service) List(ctx context.Context) ([]domain.UploadRecord, error) {
	return s.store.List(ctx)
}

// Wait blocks until the upload reaches a terminal status or ctx is done
func (s *Service) Wait(ctx context.Context, id string) (domain.UploadRecord, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		record, err := s.store.Get(ctx, id)
		if err != nil {
			return domain.UploadRecord{}, err
		}
		if record.Status.IsTerminal() {
			return record, nil
		}

		s.mu.Lock()
		ch := s.waiters[id]
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return record, ctx.Err()
		case <-ch:
		case <-ticker.C:
		}
	}
}

func resultOf(record domain.UploadRecord) domain.UploadResult {
	return domain.UploadResult{UploadID: record.ID, Status: record.Status, Hash: record.Hash}
}

func ignoreTerminal(err error) error {
	if errors.Is(err, ErrTerminalState) {
		return nil
	}
	return err
}

// hardFailureMessage turns a task error into the file-level error shown to
// users. Infrastructure errors get a generic message; the detail is logged.
func hardFailureMessage(err error) string {
	var missing *dataprocessing.MissingColumnsError
	var panicErr *operations.PanicError
	switch {
	case errors.As(err, &missing):
		return "Kolom wajib tidak ditemukan: " + strings.Join(missing.Columns, ", ")
	case errors.Is(err, operations.ErrTaskTimeout):
		return "Validasi melebihi batas waktu"
	case apierrors.IsType(err, apierrors.ErrTypeParsing):
		return "File tidak dapat dibaca sebagai workbook Excel"
	case errors.As(err, &panicErr):
		return "Terjadi kesalahan internal saat memvalidasi file"
	default:
		return "Terjadi kesalahan internal saat memvalidasi file"
	}
}

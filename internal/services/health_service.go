package services

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"petakeu/internal/operations"
	"petakeu/internal/websocket"
	"petakeu/pkg/contracts"
)

// Readiness states
const (
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// ReadinessChecker is a dependency the readiness endpoint checks
type ReadinessChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to ReadinessChecker
type CheckerFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

// Name identifies the check
func (c CheckerFunc) Name() string { return c.CheckName }

// Check runs the function
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// Ready reports whether every checked dependency is ready
func (s HealthStatus) Ready() bool {
	return s.Status == StatusReady
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemStats is a snapshot of the running process
type SystemStats struct {
	UptimeSeconds    float64               `json:"uptime_seconds"`
	WebSocketClients int                   `json:"websocket_clients"`
	Queue            operations.QueueStats `json:"queue"`
	Goroutines       int                   `json:"goroutines"`
	GoVersion        string                `json:"go_version"`
}

// HealthService provides health check functionality
type HealthService struct {
	dataDir   string
	queue     *operations.JobQueue
	hub       *websocket.Hub
	checkers  []ReadinessChecker
	timeout   time.Duration
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthService creates a health service. queue and hub may be nil.
func NewHealthService(dataDir string, queue *operations.JobQueue, hub *websocket.Hub, logger *slog.Logger, checkers ...ReadinessChecker) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		dataDir:   dataDir,
		queue:     queue,
		hub:       hub,
		checkers:  checkers,
		timeout:   5 * time.Second,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   contracts.Version,
	}
}

// ReadinessCheck checks the data directory, the job queue and every
// registered checker concurrently
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, hs.timeout)
	defer cancel()

	checks := append([]ReadinessChecker{
		CheckerFunc{CheckName: "data", Fn: hs.checkDataDir},
		CheckerFunc{CheckName: "jobqueue", Fn: hs.checkQueue},
	}, hs.checkers...)

	results := make([]ServiceHealth, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			if err := check.Check(ctx); err != nil {
				results[i] = ServiceHealth{Status: StatusNotReady, Message: err.Error()}
				return nil
			}
			results[i] = ServiceHealth{Status: StatusReady}
			return nil
		})
	}
	g.Wait()

	status := HealthStatus{
		Status:    StatusReady,
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services:  make(map[string]ServiceHealth, len(checks)),
	}
	for i, check := range checks {
		status.Services[check.Name()] = results[i]
		if results[i].Status != StatusReady {
			status.Status = StatusNotReady
			hs.logger.WarnContext(ctx, "readiness check failed",
				slog.String("check", check.Name()),
				slog.String("error", results[i].Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns build information
func (hs *HealthService) Version() contracts.VersionInfo {
	return contracts.GetVersionInfo()
}

// SystemStats returns process statistics
func (hs *HealthService) SystemStats() SystemStats {
	stats := SystemStats{
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
	}
	if hs.hub != nil {
		stats.WebSocketClients = hs.hub.ClientCount()
	}
	if hs.queue != nil {
		stats.Queue = hs.queue.Stats()
	}
	return stats
}

func (hs *HealthService) checkDataDir(context.Context) error {
	if hs.dataDir == "" {
		return nil
	}
	info, err := os.Stat(hs.dataDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "stat", Path: hs.dataDir, Err: os.ErrInvalid}
	}
	return nil
}

func (hs *HealthService) checkQueue(context.Context) error {
	if hs.queue == nil {
		return nil
	}
	if !hs.queue.Stats().Accepting {
		return operations.ErrQueueStopped
	}
	return nil
}

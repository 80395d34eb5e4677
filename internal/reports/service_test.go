package reports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petakeu/internal/operations"
	"petakeu/internal/regions"
	"petakeu/internal/shared/testutil"
	api "petakeu/pkg/contracts/api/v1"
	"petakeu/pkg/contracts/domain"
	"petakeu/pkg/contracts/events"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ReportStatusEvent
}

func (p *recordingPublisher) Publish(_ context.Context, msgType events.MessageType, data interface{}) {
	if msgType != events.MessageTypeReportStatus {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, data.(events.ReportStatusEvent))
}

func (p *recordingPublisher) statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Status
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var validRequest = api.ReportExportRequest{
	Period:    "2025-08",
	RegionIDs: []string{"city-jakarta", "city-bandung"},
	Format:    "pdf",
}

func TestEnqueueSync(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	publisher := &recordingPublisher{}
	clk := &clock{now: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)}
	svc := NewService(Config{}, Dependencies{
		Catalog:   regions.DefaultCatalog(),
		Publisher: publisher,
		Logger:    logger,
	}).WithClock(clk.Now)
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, validRequest)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusCompleted, job.Status)
	require.NotNil(t, job.DownloadURL)
	assert.Equal(t, "https://storage.petakeu.local/reports/"+job.ID+".pdf", *job.DownloadURL)
	require.NotNil(t, job.ExpiresAt)
	assert.Equal(t, clk.Now().Add(24*time.Hour), *job.ExpiresAt)
	assert.Equal(t, clk.Now(), job.RequestedAt)
	assert.Len(t, job.Summary.TotalsByRegion, 2)
	assert.Equal(t, []string{"completed"}, publisher.statuses())

	excel, err := svc.Enqueue(ctx, api.ReportExportRequest{Period: "2025-08", RegionIDs: []string{"x"}, Format: "excel"})
	require.NoError(t, err)
	assert.Equal(t, "https://storage.petakeu.local/reports/"+excel.ID+".xlsx", *excel.DownloadURL)

	t.Run("lazy expiry", func(t *testing.T) {
		clk.Advance(24 * time.Hour)
		got, err := svc.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.DownloadURL, "link is valid up to the expiry instant")

		clk.Advance(time.Second)
		got, err = svc.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Nil(t, got.DownloadURL)
		assert.Equal(t, domain.ReportStatusCompleted, got.Status)

		list, err := svc.List(ctx)
		require.NoError(t, err)
		for _, j := range list {
			assert.Nil(t, j.DownloadURL)
		}
	})
}

func TestEnqueueValidation(t *testing.T) {
	svc := NewService(Config{}, Dependencies{})

	tests := []struct {
		name  string
		req   api.ReportExportRequest
		field string
	}{
		{"missing period", api.ReportExportRequest{RegionIDs: []string{"a"}, Format: "pdf"}, "period"},
		{"bad period", api.ReportExportRequest{Period: "2025-13", RegionIDs: []string{"a"}, Format: "pdf"}, "period"},
		{"slash period", api.ReportExportRequest{Period: "2025/08", RegionIDs: []string{"a"}, Format: "pdf"}, "period"},
		{"no regions", api.ReportExportRequest{Period: "2025-08", RegionIDs: []string{}, Format: "pdf"}, "regionIds"},
		{"blank region", api.ReportExportRequest{Period: "2025-08", RegionIDs: []string{""}, Format: "pdf"}, "regionIds[0]"},
		{"bad format", api.ReportExportRequest{Period: "2025-08", RegionIDs: []string{"a"}, Format: "docx"}, "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Enqueue(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)

			var invalid *InvalidRequestError
			require.True(t, errors.As(err, &invalid))
			require.NotEmpty(t, invalid.Fields)
			assert.Equal(t, tt.field, invalid.Fields[0].Field)
		})
	}

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func newQueue(t *testing.T) *operations.JobQueue {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	q := operations.NewJobQueue(operations.QueueConfig{Workers: 2}, nil, logger)
	q.Start(context.Background())
	t.Cleanup(func() { q.Stop(5 * time.Second) })
	return q
}

func waitTerminal(t *testing.T, svc *Service, id string) domain.ReportJob {
	t.Helper()
	var job domain.ReportJob
	require.Eventually(t, func() bool {
		var err error
		job, err = svc.Get(context.Background(), id)
		return err == nil && job.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestEnqueueAsync(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := NewService(Config{Async: true, DownloadBaseURL: "https://files.example/"}, Dependencies{
		Queue:     newQueue(t),
		Publisher: publisher,
	})

	job, err := svc.Enqueue(context.Background(), validRequest)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusQueued, job.Status)
	assert.Nil(t, job.DownloadURL)

	done := waitTerminal(t, svc, job.ID)
	assert.Equal(t, domain.ReportStatusCompleted, done.Status)
	require.NotNil(t, done.DownloadURL)
	assert.Equal(t, "https://files.example/reports/"+job.ID+".pdf", *done.DownloadURL)
	require.NotNil(t, done.ExpiresAt)
	assert.Equal(t, done.UpdatedAt.Add(DefaultExpiry), *done.ExpiresAt)
	assert.Equal(t, []string{"queued", "processing", "completed"}, publisher.statuses())
}

func TestEnqueueAsyncRenderFailure(t *testing.T) {
	svc := NewService(Config{Async: true}, Dependencies{
		Queue: newQueue(t),
		Renderer: func(context.Context, domain.ReportJob) error {
			return errors.New("renderer unavailable")
		},
	})

	job, err := svc.Enqueue(context.Background(), validRequest)
	require.NoError(t, err)

	done := waitTerminal(t, svc, job.ID)
	assert.Equal(t, domain.ReportStatusFailed, done.Status)
	assert.Equal(t, "renderer unavailable", done.ErrorMessage)
	assert.Nil(t, done.DownloadURL)
}

type fullQueue struct{}

func (fullQueue) Submit(operations.Task) (*operations.Completion, error) {
	return nil, operations.ErrQueueFull
}

func TestEnqueueAsyncQueueFull(t *testing.T) {
	svc := NewService(Config{Async: true}, Dependencies{Queue: fullQueue{}})

	job, err := svc.Enqueue(context.Background(), validRequest)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "job queue is full")
}

func TestGetUnknown(t *testing.T) {
	svc := NewService(Config{}, Dependencies{})
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestListNewestFirst(t *testing.T) {
	clk := &clock{now: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)}
	svc := NewService(Config{}, Dependencies{}).WithClock(clk.Now)

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := svc.Enqueue(context.Background(), validRequest)
		require.NoError(t, err)
		ids = append(ids, job.ID)
		clk.Advance(time.Minute)
	}

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestStoreTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, domain.ReportJob{ID: "j", Status: domain.ReportStatusQueued}))
	assert.Error(t, store.Create(ctx, domain.ReportJob{ID: "j"}))

	set := func(status domain.ReportStatus) error {
		_, err := store.Update(ctx, "j", func(j *domain.ReportJob) error {
			j.Status = status
			return nil
		})
		return err
	}

	assert.ErrorIs(t, set(domain.ReportStatusCompleted), ErrInvalidTransition)
	require.NoError(t, set(domain.ReportStatusProcessing))
	require.NoError(t, set(domain.ReportStatusCompleted))
	assert.ErrorIs(t, set(domain.ReportStatusFailed), ErrTerminalState)

	assert.True(t, CanTransition(domain.ReportStatusQueued, domain.ReportStatusFailed))
	assert.False(t, CanTransition(domain.ReportStatusFailed, domain.ReportStatusQueued))
}

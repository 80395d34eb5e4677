package postgres

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petakeu/internal/regions"
	"petakeu/internal/shared/testutil"
	"petakeu/internal/uploads"
	"petakeu/pkg/contracts/domain"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		dsn     string
		want    string
		wantErr bool
	}{
		{dsn: "postgres://u:p@localhost:5432/petakeu?sslmode=disable", want: "pgx5://u:p@localhost:5432/petakeu?sslmode=disable"},
		{dsn: "postgresql://u@db/petakeu", want: "pgx5://u@db/petakeu"},
		{dsn: "pgx5://u@db/petakeu", want: "pgx5://u@db/petakeu"},
		{dsn: "host=localhost dbname=petakeu", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, err := MigrateURL(tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file in migrations: %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

// setupTestDB connects to PETAKEU_TEST_DATABASE_DSN and applies migrations
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("PETAKEU_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("skipping integration test: PETAKEU_TEST_DATABASE_DSN not set")
	}

	logger, _ := testutil.NewTestLogger(t)
	ctx := context.Background()

	require.NoError(t, Migrate(dsn, logger))
	pool, err := Connect(ctx, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE payments, uploads`)
	require.NoError(t, err)
	return pool
}

func TestPaymentRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewPaymentRepository(pool)

	require.NoError(t, repo.Ingest(ctx, []domain.PaymentRecord{
		{RegionID: "city-jakarta", Period: "2025-09", Amount: 100},
		{RegionID: "city-jakarta", Period: "2025-09", Amount: 50.25},
		{RegionID: "city-bandung", Period: "2025-09", Amount: 10},
	}))
	require.NoError(t, repo.Ingest(ctx, []domain.PaymentRecord{
		{RegionID: "city-bandung", Period: "2025-09", Amount: 12},
	}))

	stored, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.PaymentRecord{
		{RegionID: "city-bandung", Period: "2025-09", Amount: 12},
		{RegionID: "city-jakarta", Period: "2025-09", Amount: 150.25},
	}, stored)

	dataset, err := repo.Dataset(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, regions.ScenarioNormal, dataset.Scenario)
	assert.Equal(t, "2025-09", dataset.DefaultPeriod)
	assert.Len(t, dataset.ForPeriod("2025-09"), 2)

	assert.NoError(t, NewReadinessChecker(pool).Check(ctx))
}

func TestUploadRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUploadRepository(pool, NewTxRunner(pool))

	now := time.Now().UTC().Truncate(time.Microsecond)
	record := domain.UploadRecord{
		ID:        uuid.NewString(),
		Filename:  "setoran.xlsx",
		MimeType:  uploads.MimeXLSX,
		Size:      42,
		Status:    domain.UploadStatusQueued,
		Hash:      strings.Repeat("a", 64),
		CreatedAt: now,
		UpdatedAt: now,
	}

	stored, created, err := repo.Reserve(ctx, record)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, record.ID, stored.ID)

	dup := record
	dup.ID = uuid.NewString()
	existing, created, err := repo.Reserve(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, record.ID, existing.ID)

	_, err = repo.Update(ctx, record.ID, func(r *domain.UploadRecord) error {
		r.Status = domain.UploadStatusProcessing
		return nil
	})
	require.NoError(t, err)

	failed, err := repo.Update(ctx, record.ID, func(r *domain.UploadRecord) error {
		r.Status = domain.UploadStatusFailed
		r.Errors = []domain.RowError{{Row: 2, Column: "nominal", Message: "Nilai negatif tidak diperbolehkan"}}
		r.ErrorCount = 1
		r.Summary = &domain.ValidationSummary{TotalRows: 1}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.UploadStatusFailed, failed.Status)

	_, err = repo.Update(ctx, record.ID, func(r *domain.UploadRecord) error {
		r.Status = domain.UploadStatusParsed
		return nil
	})
	assert.ErrorIs(t, err, uploads.ErrTerminalState)

	got, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, failed.Errors, got.Errors)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 1, got.Summary.TotalRows)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, uploads.ErrUploadNotFound)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

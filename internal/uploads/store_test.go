package uploads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petakeu/pkg/contracts/domain"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)

	first := domain.UploadRecord{ID: "a", Hash: "h1", Status: domain.UploadStatusQueued, CreatedAt: base}
	second := domain.UploadRecord{ID: "b", Hash: "h2", Status: domain.UploadStatusQueued, CreatedAt: base.Add(time.Second)}

	_, created, err := store.Reserve(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = store.Reserve(ctx, second)
	require.NoError(t, err)
	assert.True(t, created)

	existing, created, err := store.Reserve(ctx, domain.UploadRecord{ID: "c", Hash: "h1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "a", existing.ID)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	t.Run("lifecycle", func(t *testing.T) {
		_, err := store.Update(ctx, "a", func(r *domain.UploadRecord) error {
			r.Status = domain.UploadStatusParsed
			return nil
		})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		_, err = store.Update(ctx, "a", func(r *domain.UploadRecord) error {
			r.Status = domain.UploadStatusProcessing
			return nil
		})
		require.NoError(t, err)

		_, err = store.Update(ctx, "a", func(r *domain.UploadRecord) error {
			r.Status = domain.UploadStatusParsed
			return nil
		})
		require.NoError(t, err)

		_, err = store.Update(ctx, "a", func(r *domain.UploadRecord) error {
			r.Status = domain.UploadStatusFailed
			return nil
		})
		assert.ErrorIs(t, err, ErrTerminalState)

		got, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, domain.UploadStatusParsed, got.Status)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		got, err := store.Get(ctx, "b")
		require.NoError(t, err)
		got.Errors = append(got.Errors, domain.RowError{Row: 1})

		again, err := store.Get(ctx, "b")
		require.NoError(t, err)
		assert.Empty(t, again.Errors)
	})

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrUploadNotFound)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.UploadStatus
		want     bool
	}{
		{domain.UploadStatusQueued, domain.UploadStatusProcessing, true},
		{domain.UploadStatusQueued, domain.UploadStatusFailed, true},
		{domain.UploadStatusQueued, domain.UploadStatusParsed, false},
		{domain.UploadStatusProcessing, domain.UploadStatusParsed, true},
		{domain.UploadStatusProcessing, domain.UploadStatusQueued, false},
		{domain.UploadStatusParsed, domain.UploadStatusFailed, false},
		{domain.UploadStatusFailed, domain.UploadStatusProcessing, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

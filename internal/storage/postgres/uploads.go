package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apierrors "petakeu/internal/errors"
	"petakeu/internal/uploads"
	"petakeu/pkg/contracts/domain"
)

const uploadColumns = `id, filename, mimetype, size, status, hash, error_count,
	file_url, error_file_path, summary, errors, created_at, updated_at`

// UploadRepository is a uploads.Store backed by the uploads table
type UploadRepository struct {
	db DBTX
	tx *TxRunner
}

// NewUploadRepository creates a repository. Updates run in transactions
// opened by tx.
func NewUploadRepository(db DBTX, tx *TxRunner) *UploadRepository {
	return &UploadRepository{db: db, tx: tx}
}

// Reserve implements uploads.Store. A unique violation on hash returns the
// record that won.
func (r *UploadRepository) Reserve(ctx context.Context, record domain.UploadRecord) (domain.UploadRecord, bool, error) {
	summary, errs, err := encodeDetails(record)
	if err != nil {
		return domain.UploadRecord{}, false, err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO uploads (`+uploadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		record.ID, record.Filename, record.MimeType, record.Size, string(record.Status), record.Hash,
		record.ErrorCount, record.FileURL, record.ErrorFilePath, summary, errs,
		record.CreatedAt, record.UpdatedAt)
	if err == nil {
		return record.Clone(), true, nil
	}
	if !isUniqueViolation(err) {
		return domain.UploadRecord{}, false, apierrors.NewStorageError("failed to insert upload", err)
	}

	existing, err := scanUpload(r.db.QueryRow(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE hash = $1`, record.Hash))
	if err != nil {
		return domain.UploadRecord{}, false, err
	}
	return existing, false, nil
}

// Get implements uploads.Store
func (r *UploadRepository) Get(ctx context.Context, id string) (domain.UploadRecord, error) {
	return scanUpload(r.db.QueryRow(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, id))
}

// List implements uploads.Store
func (r *UploadRepository) List(ctx context.Context) ([]domain.UploadRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+uploadColumns+` FROM uploads ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, apierrors.NewStorageError("failed to query uploads", err)
	}
	defer rows.Close()

	var out []domain.UploadRecord
	for rows.Next() {
		rec, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.NewStorageError("failed to read uploads", err)
	}
	return out, nil
}

// Update implements uploads.Store with a row lock held for the transition
func (r *UploadRepository) Update(ctx context.Context, id string, fn func(*domain.UploadRecord) error) (domain.UploadRecord, error) {
	var result domain.UploadRecord
	err := r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		current, err := scanUpload(tx.QueryRow(ctx,
			`SELECT `+uploadColumns+` FROM uploads WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		result = current
		if current.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", uploads.ErrTerminalState, id, current.Status)
		}

		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		if next.Status != current.Status && !uploads.CanTransition(current.Status, next.Status) {
			return fmt.Errorf("%w: %s -> %s", uploads.ErrInvalidTransition, current.Status, next.Status)
		}

		summary, errs, err := encodeDetails(next)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE uploads
			SET status = $2, error_count = $3, file_url = $4, error_file_path = $5,
				summary = $6, errors = $7, updated_at = $8
			WHERE id = $1`,
			id, string(next.Status), next.ErrorCount, next.FileURL, next.ErrorFilePath,
			summary, errs, next.UpdatedAt)
		if err != nil {
			return apierrors.NewStorageError("failed to update upload", err)
		}
		result = next
		return nil
	})
	return result, err
}

func encodeDetails(record domain.UploadRecord) (summary, errs []byte, err error) {
	if record.Summary != nil {
		if summary, err = json.Marshal(record.Summary); err != nil {
			return nil, nil, fmt.Errorf("failed to encode summary: %w", err)
		}
	}
	if record.Errors != nil {
		if errs, err = json.Marshal(record.Errors); err != nil {
			return nil, nil, fmt.Errorf("failed to encode row errors: %w", err)
		}
	}
	return summary, errs, nil
}

func scanUpload(row pgx.Row) (domain.UploadRecord, error) {
	var (
		rec     domain.UploadRecord
		status  string
		summary []byte
		errs    []byte
	)
	err := row.Scan(&rec.ID, &rec.Filename, &rec.MimeType, &rec.Size, &status, &rec.Hash,
		&rec.ErrorCount, &rec.FileURL, &rec.ErrorFilePath, &summary, &errs,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UploadRecord{}, uploads.ErrUploadNotFound
	}
	if err != nil {
		return domain.UploadRecord{}, apierrors.NewStorageError("failed to read upload", err)
	}

	rec.Status = domain.UploadStatus(status)
	if len(summary) > 0 {
		rec.Summary = &domain.ValidationSummary{}
		if err := json.Unmarshal(summary, rec.Summary); err != nil {
			return domain.UploadRecord{}, fmt.Errorf("failed to decode summary: %w", err)
		}
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &rec.Errors); err != nil {
			return domain.UploadRecord{}, fmt.Errorf("failed to decode row errors: %w", err)
		}
	}
	return rec, nil
}

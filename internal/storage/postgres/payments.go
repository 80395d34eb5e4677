package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	apierrors "petakeu/internal/errors"
	"petakeu/internal/regions"
	"petakeu/pkg/contracts/domain"
)

// PaymentRepository stores ingested payments in the payments table and
// serves them layered over the built-in scenario datasets
type PaymentRepository struct {
	db        DBTX
	scenarios map[string]regions.Dataset
}

// NewPaymentRepository creates a repository over db
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db, scenarios: regions.BuiltinScenarios()}
}

// Dataset implements regions.PaymentSource
func (r *PaymentRepository) Dataset(ctx context.Context, scenario string) (regions.Dataset, error) {
	base := r.scenarios[regions.NormalizeScenario(scenario)]

	stored, err := r.List(ctx)
	if err != nil {
		return regions.Dataset{}, err
	}
	return regions.WithIngested(base, stored), nil
}

// List returns every stored payment ordered by period then region
func (r *PaymentRepository) List(ctx context.Context) ([]domain.PaymentRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT region_id, period, amount::float8
		FROM payments
		ORDER BY period, region_id`)
	if err != nil {
		return nil, apierrors.NewStorageError("failed to query payments", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PaymentRecord, error) {
		var p domain.PaymentRecord
		err := row.Scan(&p.RegionID, &p.Period, &p.Amount)
		return p, err
	})
	if err != nil {
		return nil, apierrors.NewStorageError("failed to read payments", err)
	}
	return records, nil
}

// Ingest implements regions.PaymentSink. Amounts of the same region and
// period within one call are summed; stored amounts are replaced.
func (r *PaymentRepository) Ingest(ctx context.Context, records []domain.PaymentRecord) error {
	merged := regions.MergePayments(records)
	if len(merged) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range merged {
		batch.Queue(`
			INSERT INTO payments (region_id, period, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (region_id, period)
			DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()`,
			p.RegionID, p.Period, decimal.NewFromFloat(p.Amount).StringFixed(2))
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for range merged {
		if _, err := results.Exec(); err != nil {
			return apierrors.NewStorageError("failed to store payment", err)
		}
	}
	return results.Close()
}

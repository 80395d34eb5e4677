package regions

import (
	"context"
	"fmt"
	"log/slog"

	"petakeu/pkg/contracts/domain"
)

// IngestResult reports how many upload rows reached the payment sink
type IngestResult struct {
	Accepted     int      `json:"accepted"`
	Skipped      int      `json:"skipped"`
	UnknownCodes []string `json:"unknownCodes,omitempty"`
}

// Ingestor maps validated upload rows to catalog regions and stores them
type Ingestor struct {
	catalog    *Catalog
	sink       PaymentSink
	invalidate []func()
	logger     *slog.Logger
}

// NewIngestor creates an ingestor. Every invalidate hook runs after a
// successful ingest.
func NewIngestor(catalog *Catalog, sink PaymentSink, logger *slog.Logger, invalidate ...func()) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		catalog:    catalog,
		sink:       sink,
		invalidate: invalidate,
		logger:     logger.With(slog.String("component", "ingestor")),
	}
}

// Ingest stores rows whose kode_bps matches a catalog region. Rows with
// unknown codes are skipped.
func (i *Ingestor) Ingest(ctx context.Context, rows []domain.PaymentRow) (IngestResult, error) {
	var result IngestResult
	seenUnknown := make(map[string]struct{})
	records := make([]domain.PaymentRecord, 0, len(rows))

	for _, row := range rows {
		region, ok := i.catalog.ByCode(row.KodeBPS)
		if !ok {
			result.Skipped++
			if _, seen := seenUnknown[row.KodeBPS]; !seen {
				seenUnknown[row.KodeBPS] = struct{}{}
				result.UnknownCodes = append(result.UnknownCodes, row.KodeBPS)
			}
			continue
		}
		records = append(records, domain.PaymentRecord{
			RegionID: region.ID,
			Period:   row.Period,
			Amount:   row.Amount,
		})
	}

	if len(result.UnknownCodes) > 0 {
		i.logger.WarnContext(ctx, "skipping rows with unknown region codes",
			slog.Any("codes", result.UnknownCodes),
			slog.Int("rows", result.Skipped))
	}
	if len(records) == 0 {
		return result, nil
	}

	if err := i.sink.Ingest(ctx, records); err != nil {
		return result, fmt.Errorf("failed to ingest payments: %w", err)
	}
	result.Accepted = len(records)

	for _, fn := range i.invalidate {
		fn()
	}

	i.logger.InfoContext(ctx, "payments ingested",
		slog.Int("accepted", result.Accepted),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

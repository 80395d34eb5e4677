package regions

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"petakeu/pkg/contracts/domain"
)

// Dataset is the payment data visible under one scenario
type Dataset struct {
	Scenario      string
	Payments      []domain.PaymentRecord
	Warnings      []string
	DefaultPeriod string
}

// ForRegion returns the payments of one region in dataset order
func (d Dataset) ForRegion(regionID string) []domain.PaymentRecord {
	var out []domain.PaymentRecord
	for _, p := range d.Payments {
		if p.RegionID == regionID {
			out = append(out, p)
		}
	}
	return out
}

// ForPeriod returns the payments of one period in dataset order
func (d Dataset) ForPeriod(period string) []domain.PaymentRecord {
	var out []domain.PaymentRecord
	for _, p := range d.Payments {
		if p.Period == period {
			out = append(out, p)
		}
	}
	return out
}

// Periods returns the distinct periods of the dataset, ascending
func (d Dataset) Periods() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range d.Payments {
		if _, ok := seen[p.Period]; !ok {
			seen[p.Period] = struct{}{}
			out = append(out, p.Period)
		}
	}
	sort.Strings(out)
	return out
}

// PaymentSource supplies payment datasets
type PaymentSource interface {
	Dataset(ctx context.Context, scenario string) (Dataset, error)
}

// PaymentSink accepts payments parsed from uploads
type PaymentSink interface {
	Ingest(ctx context.Context, records []domain.PaymentRecord) error
}

// MergePayments sums records sharing a region and period. The first
// occurrence fixes the output order.
func MergePayments(records []domain.PaymentRecord) []domain.PaymentRecord {
	type key struct{ region, period string }
	index := make(map[key]int, len(records))
	sums := make([]decimal.Decimal, 0, len(records))
	out := make([]domain.PaymentRecord, 0, len(records))

	for _, r := range records {
		k := key{r.RegionID, r.Period}
		if i, ok := index[k]; ok {
			sums[i] = sums[i].Add(decimal.NewFromFloat(r.Amount))
			continue
		}
		index[k] = len(out)
		out = append(out, r)
		sums = append(sums, decimal.NewFromFloat(r.Amount))
	}
	for i := range out {
		out[i].Amount = sums[i].InexactFloat64()
	}
	return out
}

// MemorySource serves the built-in scenario datasets with ingested upload
// payments layered on top. An ingested payment replaces the scenario amount
// of the same region and period in every scenario.
type MemorySource struct {
	mu        sync.RWMutex
	scenarios map[string]Dataset
	ingested  []domain.PaymentRecord
}

// NewMemorySource creates a source seeded with the built-in scenarios
func NewMemorySource() *MemorySource {
	return &MemorySource{scenarios: BuiltinScenarios()}
}

// Dataset returns the dataset for scenario. Unknown scenarios resolve to
// ScenarioNormal.
func (s *MemorySource) Dataset(_ context.Context, scenario string) (Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	base, ok := s.scenarios[scenario]
	if !ok {
		base = s.scenarios[ScenarioNormal]
		base.Scenario = ScenarioNormal
	}

	return WithIngested(base, s.ingested), nil
}

// WithIngested layers ingested payments over a scenario dataset. The default
// period moves to the latest period once anything was ingested.
func WithIngested(base Dataset, ingested []domain.PaymentRecord) Dataset {
	out := Dataset{
		Scenario:      base.Scenario,
		Warnings:      append([]string(nil), base.Warnings...),
		DefaultPeriod: base.DefaultPeriod,
	}
	out.Payments = overlay(base.Payments, ingested)
	if len(ingested) > 0 {
		if periods := out.Periods(); len(periods) > 0 {
			out.DefaultPeriod = periods[len(periods)-1]
		}
	}
	return out
}

// Ingest records payments parsed from an upload
func (s *MemorySource) Ingest(_ context.Context, records []domain.PaymentRecord) error {
	if len(records) == 0 {
		return nil
	}
	merged := MergePayments(records)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingested = overlay(s.ingested, merged)
	return nil
}

// overlay returns base with every record of top replacing the base record
// of the same region and period. New keys are appended.
func overlay(base, top []domain.PaymentRecord) []domain.PaymentRecord {
	out := make([]domain.PaymentRecord, len(base), len(base)+len(top))
	copy(out, base)
	if len(top) == 0 {
		return out
	}

	type key struct{ region, period string }
	index := make(map[key]int, len(out))
	for i, r := range out {
		index[key{r.RegionID, r.Period}] = i
	}
	for _, r := range top {
		k := key{r.RegionID, r.Period}
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

package regions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"petakeu/internal/cache"
	"petakeu/pkg/contracts/domain"
)

// CutRate is the share withheld from every remitted amount
var CutRate = decimal.NewFromFloat(0.15)

// TrendLength is the number of trailing breakdown rows in a trend
const TrendLength = 12

// PublicMessage accompanies summaries served in public mode
const PublicMessage = "Data detail tidak tersedia untuk mode publik."

// DefaultReportBaseURL prefixes generated report links
const DefaultReportBaseURL = "https://storage.petakeu.local"

// PeriodFilter narrows a summary to an inclusive YYYY-MM range. Empty bounds
// are open. Scenario selects the dataset.
type PeriodFilter struct {
	Scenario string
	From     string
	To       string
}

// Aggregator computes region summaries from a payment source
type Aggregator struct {
	catalog       *Catalog
	source        PaymentSource
	cache         *cache.Cache[domain.RegionSummary]
	reportBaseURL string
	now           func() time.Time
	logger        *slog.Logger
}

// NewAggregator creates an aggregator over catalog and source
func NewAggregator(catalog *Catalog, source PaymentSource, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		catalog:       catalog,
		source:        source,
		reportBaseURL: DefaultReportBaseURL,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "aggregator")),
	}
}

// WithCache enables summary caching
func (a *Aggregator) WithCache(c *cache.Cache[domain.RegionSummary]) *Aggregator {
	a.cache = c
	return a
}

// WithReportBaseURL overrides the prefix of generated report links
func (a *Aggregator) WithReportBaseURL(base string) *Aggregator {
	a.reportBaseURL = strings.TrimRight(base, "/")
	return a
}

// WithClock overrides the time source
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Catalog returns the region catalog
func (a *Aggregator) Catalog() *Catalog {
	return a.catalog
}

// Invalidate drops cached summaries
func (a *Aggregator) Invalidate() {
	if a.cache != nil {
		a.cache.Purge()
	}
}

// ListRegions returns one page of the catalog
func (a *Aggregator) ListRegions(q ListQuery) domain.RegionPage {
	return a.catalog.List(q)
}

// PublicSummary returns the reduced summary served in public mode
func (a *Aggregator) PublicSummary(_ context.Context, regionID string) (domain.PublicRegionSummary, error) {
	region, ok := a.catalog.Get(regionID)
	if !ok {
		return domain.PublicRegionSummary{}, fmt.Errorf("%w: %s", ErrRegionNotFound, regionID)
	}
	return domain.PublicRegionSummary{
		Region:      region,
		LastUpdated: a.now().UTC(),
		Public:      true,
		Message:     PublicMessage,
	}, nil
}

// Summarize aggregates the payments of one region over the filter range
func (a *Aggregator) Summarize(ctx context.Context, regionID string, filter PeriodFilter) (domain.RegionSummary, error) {
	region, ok := a.catalog.Get(regionID)
	if !ok {
		return domain.RegionSummary{}, fmt.Errorf("%w: %s", ErrRegionNotFound, regionID)
	}

	if err := validateRange(filter.From, filter.To); err != nil {
		return domain.RegionSummary{}, err
	}

	scenario := NormalizeScenario(filter.Scenario)
	key := cache.Key(scenario, regionID, filter.From, filter.To)

	summary, hit := domain.RegionSummary{}, false
	var gen uint64
	if a.cache != nil {
		gen = a.cache.Generation()
		summary, hit = a.cache.Get(key)
	}
	if !hit {
		dataset, err := a.source.Dataset(ctx, scenario)
		if err != nil {
			return domain.RegionSummary{}, fmt.Errorf("failed to load payments: %w", err)
		}

		payments := dataset.ForRegion(regionID)
		if len(payments) == 0 {
			return domain.RegionSummary{}, fmt.Errorf("%w: %s", ErrNoPaymentData, regionID)
		}

		summary = BuildSummary(region, payments, filter.From, filter.To)
		if a.cache != nil {
			a.cache.SetIfGeneration(key, summary, gen)
		}
	}

	now := a.now()
	summary.LastUpdated = now.UTC()
	summary.ReportURL = fmt.Sprintf("%s/reports/%s-%d.pdf", a.reportBaseURL, regionID, now.UnixMilli())

	a.logger.DebugContext(ctx, "region summarized",
		slog.String("region_id", regionID),
		slog.String("scenario", scenario),
		slog.Bool("cache_hit", hit),
		slog.Int("months", len(summary.MonthlyBreakdown)))
	return summary, nil
}

func validateRange(from, to string) error {
	var fromTime, toTime time.Time
	var err error
	if from != "" {
		if fromTime, err = ParsePeriod(from); err != nil {
			return err
		}
	}
	if to != "" {
		if toTime, err = ParsePeriod(to); err != nil {
			return err
		}
	}
	if from != "" && to != "" && fromTime.After(toTime) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidPeriod, from, to)
	}
	return nil
}

// BuildSummary computes the breakdown, trend and totals of payments within
// [from, to]. Bounds must already be valid; empty bounds are open. Payments
// with malformed periods are skipped.
func BuildSummary(region domain.Region, payments []domain.PaymentRecord, from, to string) domain.RegionSummary {
	filtered := make([]domain.PaymentRecord, 0, len(payments))
	for _, p := range payments {
		if _, err := ParsePeriod(p.Period); err != nil {
			continue
		}
		if from != "" && p.Period < from {
			continue
		}
		if to != "" && p.Period > to {
			continue
		}
		filtered = append(filtered, p)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Period < filtered[j].Period
	})

	breakdown := make([]domain.MonthlyBreakdown, 0, len(filtered))
	total := decimal.Zero
	for _, p := range filtered {
		amount := decimal.NewFromFloat(p.Amount)
		cut := amount.Mul(CutRate)
		breakdown = append(breakdown, domain.MonthlyBreakdown{
			Period:      p.Period,
			Amount:      p.Amount,
			Cut15Amount: cut.InexactFloat64(),
			NetAmount:   amount.Sub(cut).InexactFloat64(),
		})
		total = total.Add(amount)
	}

	trendStart := max(len(breakdown)-TrendLength, 0)
	trend := make([]domain.TrendPoint, 0, len(breakdown)-trendStart)
	for _, row := range breakdown[trendStart:] {
		trend = append(trend, domain.TrendPoint{Period: row.Period, Amount: row.Amount})
	}

	totalCut := total.Mul(CutRate)
	return domain.RegionSummary{
		Region:           region,
		TotalAmount:      total.InexactFloat64(),
		Cut15Amount:      totalCut.InexactFloat64(),
		NetAmount:        total.Sub(totalCut).InexactFloat64(),
		Trend:            trend,
		MonthlyBreakdown: breakdown,
	}
}

// Package geo builds choropleth FeatureCollections: one polygon feature per
// region with payments in the requested period, classified into quantile
// legend classes.
package geo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"petakeu/internal/cache"
	"petakeu/internal/legend"
	"petakeu/internal/regions"
	"petakeu/pkg/contracts/domain"
)

// SparklineLength is the number of trailing amounts in a feature sparkline
const SparklineLength = 6

// Builder assembles choropleth payloads
type Builder struct {
	catalog *regions.Catalog
	source  regions.PaymentSource
	cache   *cache.Cache[domain.Choropleth]
	logger  *slog.Logger
}

// NewBuilder creates a choropleth builder
func NewBuilder(catalog *regions.Catalog, source regions.PaymentSource, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		catalog: catalog,
		source:  source,
		logger:  logger.With(slog.String("component", "choropleth")),
	}
}

// WithCache enables payload caching
func (b *Builder) WithCache(c *cache.Cache[domain.Choropleth]) *Builder {
	b.cache = c
	return b
}

// Invalidate drops cached payloads
func (b *Builder) Invalidate() {
	if b.cache != nil {
		b.cache.Purge()
	}
}

// Build returns the choropleth of period under scenario. An empty period
// selects the latest period of the dataset. Public payloads omit amounts.
func (b *Builder) Build(ctx context.Context, scenario, period string, public bool) (domain.Choropleth, error) {
	if period != "" {
		if _, err := regions.ParsePeriod(period); err != nil {
			return domain.Choropleth{}, err
		}
	}
	scenario = regions.NormalizeScenario(scenario)

	key := cache.Key(scenario, period, strconv.FormatBool(public))
	var gen uint64
	if b.cache != nil {
		gen = b.cache.Generation()
		if cached, ok := b.cache.Get(key); ok {
			return cached, nil
		}
	}

	dataset, err := b.source.Dataset(ctx, scenario)
	if err != nil {
		return domain.Choropleth{}, fmt.Errorf("failed to load payments: %w", err)
	}
	if period == "" {
		period = dataset.DefaultPeriod
	}

	result := b.assemble(dataset, period, public)
	if b.cache != nil {
		b.cache.SetIfGeneration(key, result, gen)
	}

	b.logger.DebugContext(ctx, "choropleth built",
		slog.String("scenario", scenario),
		slog.String("period", period),
		slog.Bool("public", public),
		slog.Int("features", len(result.Features)),
		slog.Int("warnings", len(result.Metadata.Warnings)))
	return result, nil
}

func (b *Builder) assemble(dataset regions.Dataset, period string, public bool) domain.Choropleth {
	records := dataset.ForPeriod(period)
	warnings := append([]string{}, dataset.Warnings...)

	values := make([]float64, len(records))
	for i, r := range records {
		values[i] = r.Amount
	}
	computed := len(values) > 0
	bins := legend.EmptyBins()
	if computed {
		bins = legend.ComputeBins(values)
	}

	features := []domain.Feature{}
	for _, record := range records {
		region, ok := b.catalog.Get(record.RegionID)
		if !ok {
			continue
		}
		geometry, ok := b.catalog.Geometry(record.RegionID)
		if !ok {
			warnings = appendUnique(warnings, fmt.Sprintf("%s tidak memiliki boundary, data tidak tampil di peta.", region.Name))
			continue
		}

		classIndex := legend.Classify(record.Amount, bins)
		base := domain.PublicFeatureProperties{
			RegionID:   record.RegionID,
			Name:       region.Name,
			Centroid:   Centroid(geometry),
			ClassIndex: classIndex,
			ClassLabel: bins[classIndex].Label,
		}

		var props domain.FeatureProperties = base
		if !public {
			props = domain.PrivateFeatureProperties{
				PublicFeatureProperties: base,
				Value:                   record.Amount,
				NormalizedValue:         decimal.NewFromFloat(record.Amount).Mul(regions.CutRate).InexactFloat64(),
				Sparkline:               sparkline(dataset.ForRegion(record.RegionID)),
			}
		}

		features = append(features, domain.Feature{
			Type:       "Feature",
			ID:         record.RegionID,
			Geometry:   geometry,
			Properties: props,
		})
	}

	return domain.Choropleth{
		Type:     "FeatureCollection",
		Features: features,
		Metadata: domain.ChoroplethMetadata{
			Period:   period,
			Legend:   legend.Describe(bins, computed),
			Warnings: warnings,
			Scenario: dataset.Scenario,
			Public:   public,
		},
	}
}

// Centroid is the mean of the outer ring's points, closing point included
func Centroid(g domain.Geometry) [2]float64 {
	if len(g.Coordinates) == 0 || len(g.Coordinates[0]) == 0 {
		return [2]float64{}
	}
	ring := g.Coordinates[0]
	var lng, lat float64
	for _, p := range ring {
		lng += p[0]
		lat += p[1]
	}
	n := float64(len(ring))
	return [2]float64{lng / n, lat / n}
}

// sparkline returns the last SparklineLength amounts ordered by period
func sparkline(payments []domain.PaymentRecord) []float64 {
	sorted := append([]domain.PaymentRecord(nil), payments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Period < sorted[j].Period
	})
	start := max(len(sorted)-SparklineLength, 0)
	out := make([]float64, 0, len(sorted)-start)
	for _, p := range sorted[start:] {
		out = append(out, p.Amount)
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

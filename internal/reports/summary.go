package reports

import (
	"fmt"
	"math"
	"sort"

	"petakeu/internal/regions"
	"petakeu/pkg/contracts/domain"
)

const (
	// RankingSize caps the gainers and decliners lists
	RankingSize = 10
	// TrailingMonths is the length of the LastTwelveMonths series
	TrailingMonths = 12
)

// BuildSummary synthesizes the cross-region content of a report. Totals and
// changes are placeholders derived from each region's request position.
func BuildSummary(catalog *regions.Catalog, period string, regionIDs []string) (domain.ReportSummary, error) {
	totals := make([]domain.RegionTotal, len(regionIDs))
	for i, id := range regionIDs {
		totals[i] = domain.RegionTotal{
			RegionID:         id,
			RegionName:       regionName(catalog, id, i),
			Total:            48_000_000 + float64(i)*7_500_000,
			ChangePercentage: round2(math.Sin(float64(i+1)) * 9),
		}
	}

	months, err := trailingMonths(period)
	if err != nil {
		return domain.ReportSummary{}, err
	}

	return domain.ReportSummary{
		TotalsByRegion:   totals,
		TopGainers:       rank(totals, true),
		TopDecliners:     rank(totals, false),
		LastTwelveMonths: months,
	}, nil
}

func regionName(catalog *regions.Catalog, id string, index int) string {
	if catalog != nil {
		if r, ok := catalog.Get(id); ok {
			return r.Name
		}
	}
	return fmt.Sprintf("Wilayah %d", index+1)
}

// rank orders regions by change, ties keep request order
func rank(totals []domain.RegionTotal, descending bool) []domain.RegionChange {
	sorted := append([]domain.RegionTotal(nil), totals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if descending {
			return sorted[i].ChangePercentage > sorted[j].ChangePercentage
		}
		return sorted[i].ChangePercentage < sorted[j].ChangePercentage
	})

	n := min(RankingSize, len(sorted))
	out := make([]domain.RegionChange, n)
	for i := 0; i < n; i++ {
		out[i] = domain.RegionChange{
			RegionID:         sorted[i].RegionID,
			RegionName:       sorted[i].RegionName,
			ChangePercentage: sorted[i].ChangePercentage,
		}
	}
	return out
}

// trailingMonths returns the twelve months ending at period, oldest first
func trailingMonths(period string) ([]domain.MonthlyTotal, error) {
	out := make([]domain.MonthlyTotal, TrailingMonths)
	for i := 0; i < TrailingMonths; i++ {
		p, err := regions.ShiftPeriod(period, i-(TrailingMonths-1))
		if err != nil {
			return nil, err
		}
		out[i] = domain.MonthlyTotal{Period: p, Total: 36_000_000 + float64(i)*2_250_000}
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

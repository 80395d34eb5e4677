// Package legend computes quantile legend classes for choropleth maps.
//
// Five classes are derived from the 20/40/60/80 percent quantiles of a value
// set plus its maximum. A value equal to a class boundary belongs to the lower
// class.
//
//	bins := legend.ComputeBins(amounts)
//	class := legend.Classify(amount, bins)
package legend

import (
	"fmt"
	"math"
	"sort"

	"petakeu/pkg/contracts/domain"
)

// Method is reported in legend metadata
const Method = "quantile"

// ClassCount is the number of legend classes
const ClassCount = 5

var quantiles = [...]float64{0.2, 0.4, 0.6, 0.8}

// ComputeBins returns five contiguous bins covering values. The first four
// upper bounds are interpolated quantiles rounded to whole units; the last is
// the exact maximum. Empty input yields no bins.
func ComputeBins(values []float64) []domain.QuantileBin {
	if len(values) == 0 {
		return []domain.QuantileBin{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	edges := make([]float64, 0, ClassCount)
	for _, q := range quantiles {
		edges = append(edges, math.Round(interpolate(sorted, q)))
	}
	edges = append(edges, sorted[len(sorted)-1])

	bins := make([]domain.QuantileBin, len(edges))
	for i, edge := range edges {
		lower := sorted[0]
		if i > 0 {
			lower = edges[i-1]
		}
		bins[i] = domain.QuantileBin{
			Index: i,
			Min:   lower,
			Max:   edge,
			Label: Label(i),
		}
	}
	return bins
}

// interpolate returns the linearly interpolated order statistic at fraction q
func interpolate(sorted []float64, q float64) float64 {
	position := float64(len(sorted)-1) * q
	base := int(math.Floor(position))
	rest := position - float64(base)
	if base+1 < len(sorted) {
		return sorted[base] + rest*(sorted[base+1]-sorted[base])
	}
	return sorted[base]
}

// Classify returns the index of the first bin whose upper bound is >= value.
// Values above every bound fall into the last bin; empty bins yield 0.
func Classify(value float64, bins []domain.QuantileBin) int {
	if len(bins) == 0 {
		return 0
	}
	for _, bin := range bins {
		if value <= bin.Max {
			return bin.Index
		}
	}
	return bins[len(bins)-1].Index
}

// Label returns the display label of class index i
func Label(i int) string {
	return fmt.Sprintf("Kelas %d", i+1)
}

// EmptyBins returns labelled zero-width bins for periods without data
func EmptyBins() []domain.QuantileBin {
	bins := make([]domain.QuantileBin, ClassCount)
	for i := range bins {
		bins[i] = domain.QuantileBin{Index: i, Label: Label(i)}
	}
	return bins
}

// Edges returns the upper bound of each bin
func Edges(bins []domain.QuantileBin) []float64 {
	edges := make([]float64, len(bins))
	for i, bin := range bins {
		edges[i] = bin.Max
	}
	return edges
}

// Labels returns the label of each bin
func Labels(bins []domain.QuantileBin) []string {
	labels := make([]string, len(bins))
	for i, bin := range bins {
		labels[i] = bin.Label
	}
	return labels
}

// Describe builds the legend metadata for bins. computed is false when the
// bins are placeholders, in which case no edges are reported.
func Describe(bins []domain.QuantileBin, computed bool) domain.Legend {
	ranges := make([]domain.LegendRange, len(bins))
	for i, bin := range bins {
		ranges[i] = domain.LegendRange{Label: bin.Label, Min: bin.Min, Max: bin.Max}
	}
	edges := []float64{}
	if computed {
		edges = Edges(bins)
	}
	return domain.Legend{
		Method: Method,
		Bins:   edges,
		Labels: Labels(bins),
		Ranges: ranges,
	}
}

package regions

import (
	"petakeu/pkg/contracts/domain"
)

// Scenario names
const (
	ScenarioNormal          = "normal"
	ScenarioSpike           = "spike"
	ScenarioMissingGeometry = "missing-geometry"
)

const (
	scenarioStart   = "2024-09"
	scenarioMonths  = 12
	million         = 1_000_000
	missingBoundary = "Makassar tidak memiliki boundary spasial, data diabaikan dari peta namun tetap tersedia dalam ringkasan."
)

// seriesOrder fixes the order payments appear in a dataset
var seriesOrder = []string{
	"city-jakarta",
	"city-bandung",
	"city-semarang",
	"city-surabaya",
	"city-denpasar",
	"city-makassar",
}

// baseSeries holds monthly amounts in millions starting at scenarioStart
var baseSeries = map[string][]float64{
	"city-jakarta":  {80, 82, 84, 85, 87, 88, 90, 92, 93, 95, 97, 100},
	"city-bandung":  {38, 39, 40, 41, 42, 43, 43.5, 44, 45, 45.5, 46, 47},
	"city-semarang": {32, 33, 34, 34.5, 35, 36, 37, 37.5, 38, 38.5, 39, 40},
	"city-surabaya": {58, 59, 60, 61, 62, 63, 64, 64.5, 65, 66, 67, 68},
	"city-denpasar": {18, 18.5, 19, 19.5, 20, 20.5, 21, 21.5, 22, 22.5, 23, 24},
	"city-makassar": {28, 28.5, 29, 29.5, 30, 30.5, 31, 31.5, 32, 32.5, 33, 34},
}

// ScenarioNames lists the built-in scenarios
func ScenarioNames() []string {
	return []string{ScenarioNormal, ScenarioSpike, ScenarioMissingGeometry}
}

// NormalizeScenario maps unknown or empty names to ScenarioNormal
func NormalizeScenario(name string) string {
	for _, known := range ScenarioNames() {
		if name == known {
			return name
		}
	}
	return ScenarioNormal
}

// ScenarioPeriods returns the twelve months covered by the built-in scenarios
func ScenarioPeriods() []string {
	periods := make([]string, scenarioMonths)
	for i := range periods {
		periods[i], _ = ShiftPeriod(scenarioStart, i)
	}
	return periods
}

// BuiltinScenarios builds the normal, spike and missing-geometry datasets
func BuiltinScenarios() map[string]Dataset {
	periods := ScenarioPeriods()
	last := periods[len(periods)-1]

	spike := copySeries(baseSeries)
	spike["city-surabaya"][scenarioMonths-1] = 155
	spike["city-jakarta"][scenarioMonths-1] = 180

	return map[string]Dataset{
		ScenarioNormal: {
			Scenario:      ScenarioNormal,
			Payments:      buildRecords(baseSeries, periods),
			DefaultPeriod: last,
		},
		ScenarioSpike: {
			Scenario:      ScenarioSpike,
			Payments:      buildRecords(spike, periods),
			DefaultPeriod: last,
		},
		ScenarioMissingGeometry: {
			Scenario:      ScenarioMissingGeometry,
			Payments:      buildRecords(baseSeries, periods),
			Warnings:      []string{missingBoundary},
			DefaultPeriod: last,
		},
	}
}

func copySeries(series map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(series))
	for id, values := range series {
		out[id] = append([]float64(nil), values...)
	}
	return out
}

func buildRecords(series map[string][]float64, periods []string) []domain.PaymentRecord {
	records := make([]domain.PaymentRecord, 0, len(series)*len(periods))
	for _, regionID := range seriesOrder {
		for i, amount := range series[regionID] {
			records = append(records, domain.PaymentRecord{
				RegionID: regionID,
				Period:   periods[i],
				Amount:   amount * million,
			})
		}
	}
	return records
}

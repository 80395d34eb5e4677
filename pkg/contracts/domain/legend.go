package domain

// QuantileBin is one legend class. Min and Max are inclusive.
type QuantileBin struct {
	Index int     `json:"index"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Label string  `json:"label"`
}

// LegendRange is the wire form of a bin inside legend metadata
type LegendRange struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Legend describes how map features were classified
type Legend struct {
	Method string        `json:"method"`
	Bins   []float64     `json:"bins"`
	Labels []string      `json:"labels"`
	Ranges []LegendRange `json:"ranges"`
}

package domain

// Geometry is a GeoJSON polygon
type Geometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// FeatureProperties is implemented by the public and private property sets.
// The variant is chosen when the feature is built.
type FeatureProperties interface {
	isFeatureProperties()
}

// PublicFeatureProperties exposes classification only
type PublicFeatureProperties struct {
	RegionID   string     `json:"regionId"`
	Name       string     `json:"name"`
	Centroid   [2]float64 `json:"centroid"`
	ClassIndex int        `json:"classIndex"`
	ClassLabel string     `json:"classLabel"`
}

func (PublicFeatureProperties) isFeatureProperties() {}

// PrivateFeatureProperties adds raw amounts to the public set
type PrivateFeatureProperties struct {
	PublicFeatureProperties
	Value           float64   `json:"value"`
	NormalizedValue float64   `json:"normalizedValue"`
	Sparkline       []float64 `json:"sparkline"`
}

func (PrivateFeatureProperties) isFeatureProperties() {}

// Feature is a GeoJSON feature for one region
type Feature struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Geometry   Geometry          `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// ChoroplethMetadata describes the legend and data quality of a map
type ChoroplethMetadata struct {
	Period   string   `json:"period"`
	Legend   Legend   `json:"legend"`
	Warnings []string `json:"warnings"`
	Scenario string   `json:"scenario"`
	Public   bool     `json:"public"`
}

// Choropleth is a GeoJSON FeatureCollection with legend metadata
type Choropleth struct {
	Type     string             `json:"type"`
	Features []Feature          `json:"features"`
	Metadata ChoroplethMetadata `json:"metadata"`
}

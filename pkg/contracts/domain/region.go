package domain

import (
	"time"
)

// RegionLevel is the administrative level of a region
type RegionLevel string

const (
	RegionLevelProvince RegionLevel = "province"
	RegionLevelRegency  RegionLevel = "regency"
)

// Region identifies an administrative area
type Region struct {
	ID       string      `json:"id" db:"id"`
	Code     string      `json:"code" db:"code"`
	Name     string      `json:"name" db:"name"`
	Level    RegionLevel `json:"level" db:"level"`
	ParentID string      `json:"parentId,omitempty" db:"parent_id"`
}

// PaymentRecord is the remitted amount of one region for one month
type PaymentRecord struct {
	RegionID string  `json:"regionId" db:"region_id"`
	Period   string  `json:"period" db:"period"`
	Amount   float64 `json:"amount" db:"amount"`
}

// TrendPoint is one point of a region trend series
type TrendPoint struct {
	Period string  `json:"period"`
	Amount float64 `json:"amount"`
}

// MonthlyBreakdown is one month of a region summary after the cut rule
type MonthlyBreakdown struct {
	Period      string  `json:"period"`
	Amount      float64 `json:"amount"`
	Cut15Amount float64 `json:"cut15Amount"`
	NetAmount   float64 `json:"netAmount"`
}

// RegionSummary aggregates the filtered monthly breakdown of a region.
// Totals are column sums of MonthlyBreakdown.
type RegionSummary struct {
	Region           Region             `json:"region"`
	TotalAmount      float64            `json:"totalAmount"`
	Cut15Amount      float64            `json:"cut15Amount"`
	NetAmount        float64            `json:"netAmount"`
	Trend            []TrendPoint       `json:"trend"`
	MonthlyBreakdown []MonthlyBreakdown `json:"monthlyBreakdown"`
	LastUpdated      time.Time          `json:"lastUpdated"`
	ReportURL        string             `json:"reportUrl,omitempty"`
}

// PublicRegionSummary is returned instead of RegionSummary in public mode
type PublicRegionSummary struct {
	Region      Region    `json:"region"`
	LastUpdated time.Time `json:"lastUpdated"`
	Public      bool      `json:"public"`
	Message     string    `json:"message"`
}

// PageMeta describes one page of a paginated list
type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// RegionPage is a page of regions
type RegionPage struct {
	Data []Region `json:"data"`
	Meta PageMeta `json:"meta"`
}

package domain

import (
	"time"
)

// ReportStatus represents the status of a report job
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "queued"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// IsTerminal reports whether the status can no longer change
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusCompleted || s == ReportStatusFailed
}

// ReportFormat defines the output format of a report
type ReportFormat string

const (
	ReportFormatPDF   ReportFormat = "pdf"
	ReportFormatExcel ReportFormat = "excel"
)

// Extension returns the file extension of the rendered document
func (f ReportFormat) Extension() string {
	if f == ReportFormatExcel {
		return "xlsx"
	}
	return "pdf"
}

// ReportJob is one cross-region report request and its lifecycle
type ReportJob struct {
	ID           string        `json:"jobId" db:"id"`
	Period       string        `json:"period" db:"period"`
	RegionIDs    []string      `json:"regionIds" db:"region_ids"`
	Format       ReportFormat  `json:"format" db:"format"`
	Status       ReportStatus  `json:"status" db:"status"`
	DownloadURL  *string       `json:"downloadUrl" db:"download_url"`
	RequestedAt  time.Time     `json:"requestedAt" db:"requested_at"`
	UpdatedAt    time.Time     `json:"updatedAt" db:"updated_at"`
	ExpiresAt    *time.Time    `json:"expiresAt,omitempty" db:"expires_at"`
	ErrorMessage string        `json:"errorMessage,omitempty" db:"error_message"`
	Summary      ReportSummary `json:"summary"`
}

// Clone returns a deep copy safe to hand out of a store
func (j ReportJob) Clone() ReportJob {
	out := j
	out.RegionIDs = append([]string(nil), j.RegionIDs...)
	if j.DownloadURL != nil {
		u := *j.DownloadURL
		out.DownloadURL = &u
	}
	if j.ExpiresAt != nil {
		t := *j.ExpiresAt
		out.ExpiresAt = &t
	}
	out.Summary = ReportSummary{
		TotalsByRegion:   append([]RegionTotal(nil), j.Summary.TotalsByRegion...),
		TopGainers:       append([]RegionChange(nil), j.Summary.TopGainers...),
		TopDecliners:     append([]RegionChange(nil), j.Summary.TopDecliners...),
		LastTwelveMonths: append([]MonthlyTotal(nil), j.Summary.LastTwelveMonths...),
	}
	return out
}

// RegionTotal is one per-region row of a report summary
type RegionTotal struct {
	RegionID         string  `json:"regionId"`
	RegionName       string  `json:"regionName"`
	Total            float64 `json:"total"`
	ChangePercentage float64 `json:"changePercentage"`
}

// RegionChange is a ranking entry of gainers or decliners
type RegionChange struct {
	RegionID         string  `json:"regionId"`
	RegionName       string  `json:"regionName"`
	ChangePercentage float64 `json:"changePercentage"`
}

// MonthlyTotal is one point of the trailing twelve month series
type MonthlyTotal struct {
	Period string  `json:"period"`
	Total  float64 `json:"total"`
}

// ReportSummary is the cross-region content of a report
type ReportSummary struct {
	TotalsByRegion   []RegionTotal  `json:"totalsByRegion"`
	TopGainers       []RegionChange `json:"topGainers"`
	TopDecliners     []RegionChange `json:"topDecliners"`
	LastTwelveMonths []MonthlyTotal `json:"lastTwelveMonths"`
}

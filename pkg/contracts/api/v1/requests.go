// Package api contains HTTP request contracts of the dashboard API.
// Version v1 represents the current stable API version.
package api

// PaginationRequest represents common pagination parameters
type PaginationRequest struct {
	Page     int `json:"page" query:"page" validate:"min=1"`
	PageSize int `json:"pageSize" query:"pageSize" validate:"min=1,max=500"`
}

// RegionListRequest filters the region catalog
type RegionListRequest struct {
	PaginationRequest
	Level  string `json:"level" query:"level" validate:"omitempty,oneof=province regency"`
	Parent string `json:"parent" query:"parent"`
}

// ReportExportRequest is the body of POST /reports/export
type ReportExportRequest struct {
	Period    string   `json:"period" validate:"required,period"`
	RegionIDs []string `json:"regionIds" validate:"required,min=1,dive,required"`
	Format    string   `json:"format" validate:"required,oneof=pdf excel"`
}

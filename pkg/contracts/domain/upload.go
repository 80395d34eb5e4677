package domain

import (
	"time"
)

// UploadStatus represents the lifecycle state of an uploaded spreadsheet
type UploadStatus string

const (
	UploadStatusQueued     UploadStatus = "queued"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusParsed     UploadStatus = "parsed"
	UploadStatusFailed     UploadStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s
func (s UploadStatus) IsTerminal() bool {
	return s == UploadStatusParsed || s == UploadStatusFailed
}

// UploadRecord is the persisted lifecycle state of one submitted spreadsheet
type UploadRecord struct {
	ID            string             `json:"uploadId" db:"id"`
	Filename      string             `json:"filename" db:"filename"`
	MimeType      string             `json:"mimetype" db:"mimetype"`
	Size          int64              `json:"size" db:"size"`
	Status        UploadStatus       `json:"status" db:"status"`
	CreatedAt     time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time          `json:"updatedAt" db:"updated_at"`
	Hash          string             `json:"hash" db:"hash"`
	ErrorCount    int                `json:"errorCount" db:"error_count"`
	FileURL       string             `json:"fileUrl,omitempty" db:"file_url"`
	Summary       *ValidationSummary `json:"summary,omitempty"`
	Errors        []RowError         `json:"errors,omitempty"`
	ErrorFilePath string             `json:"errorFilePath,omitempty" db:"error_file_path"`
}

// Clone returns a deep copy safe to hand out of a store
func (r UploadRecord) Clone() UploadRecord {
	out := r
	if r.Summary != nil {
		s := *r.Summary
		out.Summary = &s
	}
	if r.Errors != nil {
		out.Errors = append([]RowError(nil), r.Errors...)
	}
	return out
}

// UploadResult is returned synchronously by intake
type UploadResult struct {
	UploadID string       `json:"uploadId"`
	Status   UploadStatus `json:"status"`
	Hash     string       `json:"hash"`
}

// ValidationSummary aggregates the valid rows of a spreadsheet
type ValidationSummary struct {
	TotalRows   int         `json:"totalRows"`
	ValidRows   int         `json:"validRows"`
	TotalAmount float64     `json:"totalAmount"`
	PeriodRange PeriodRange `json:"periodRange"`
}

// PeriodRange is an inclusive YYYY-MM range; nil bounds are open
type PeriodRange struct {
	From *string `json:"from,omitempty"`
	To   *string `json:"to,omitempty"`
}

// RowError is a single validation failure. Row is 1-based and counts the header;
// row 0 with column "file" marks a structural failure of the whole file.
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

// PaymentRow is a validated spreadsheet row ready for ingestion
type PaymentRow struct {
	Row        int     `json:"row"`
	KodeBPS    string  `json:"kodeBps"`
	RegionName string  `json:"namaWilayah"`
	Period     string  `json:"periode"`
	Amount     float64 `json:"nominal"`
	Source     string  `json:"sumber"`
}

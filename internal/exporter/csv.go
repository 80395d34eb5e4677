package exporter

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"petakeu/pkg/contracts/domain"
)

// ErrorReportHeader is the header line of every error report
var ErrorReportHeader = []string{"row", "column", "message"}

// errorReportQuoted lists the error report columns that are always quoted
var errorReportQuoted = []int{2}

// CSVWriter provides CSV export functionality
type CSVWriter struct {
	baseDir string
	logger  *slog.Logger
}

// NewCSVWriter creates a CSV writer rooted at baseDir
func NewCSVWriter(baseDir string) *CSVWriter {
	return &CSVWriter{
		baseDir: baseDir,
		logger:  slog.Default().With(slog.String("component", "exporter")),
	}
}

// WithLogger replaces the writer's logger
func (w *CSVWriter) WithLogger(logger *slog.Logger) *CSVWriter {
	w.logger = logger.With(slog.String("component", "exporter"))
	return w
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	Append    bool
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
	// QuoteColumns are record columns written in double quotes even when
	// their content does not need it. Headers are never forced.
	QuoteColumns []int
}

// WriteCSV writes data to a CSV file with the given options
func (w *CSVWriter) WriteCSV(filePath string, options WriteOptions) error {
	fullPath := w.resolvePath(filePath)

	w.logger.Debug("writing CSV file",
		slog.String("full_path", fullPath),
		slog.Int("record_count", len(options.Records)))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if options.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(fullPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if options.BOMPrefix && !options.Append {
		if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	headers := options.Headers
	if options.Append {
		headers = nil
	}
	return writeRecords(file, headers, options.Records, options.QuoteColumns...)
}

// WriteErrorReport writes the row errors of an upload to
// <baseDir>/<uploadID>-errors.csv and returns the file path
func (w *CSVWriter) WriteErrorReport(uploadID string, rowErrors []domain.RowError) (string, error) {
	name := uploadID + "-errors.csv"
	if err := w.WriteCSV(name, WriteOptions{
		Headers:      ErrorReportHeader,
		Records:      ErrorReportRecords(rowErrors),
		QuoteColumns: errorReportQuoted,
	}); err != nil {
		return "", fmt.Errorf("failed to write error report for %s: %w", uploadID, err)
	}
	return w.resolvePath(name), nil
}

// WriteErrorReportTo streams an error report to out. Messages are always
// double-quoted.
func WriteErrorReportTo(out io.Writer, rowErrors []domain.RowError) error {
	return writeRecords(out, ErrorReportHeader, ErrorReportRecords(rowErrors), errorReportQuoted...)
}

// ErrorReportRecords converts row errors into CSV records
func ErrorReportRecords(rowErrors []domain.RowError) [][]string {
	records := make([][]string, 0, len(rowErrors))
	for _, e := range rowErrors {
		records = append(records, []string{strconv.Itoa(e.Row), e.Column, e.Message})
	}
	return records
}

func writeRecords(out io.Writer, headers []string, records [][]string, quoted ...int) error {
	if len(quoted) > 0 {
		return writeQuoted(out, headers, records, quoted)
	}
	writer := csv.NewWriter(out)

	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeQuoted is writeRecords for records with always-quoted columns, which
// encoding/csv cannot produce
func writeQuoted(out io.Writer, headers []string, records [][]string, quoted []int) error {
	force := make(map[int]bool, len(quoted))
	for _, col := range quoted {
		force[col] = true
	}

	bw := bufio.NewWriter(out)
	writeLine := func(fields []string, forced map[int]bool) {
		for i, field := range fields {
			if i > 0 {
				bw.WriteByte(',')
			}
			if forced[i] || fieldNeedsQuotes(field) {
				bw.WriteString(`"` + strings.ReplaceAll(field, `"`, `""`) + `"`)
			} else {
				bw.WriteString(field)
			}
		}
		bw.WriteByte('\n')
	}

	if len(headers) > 0 {
		writeLine(headers, nil)
	}
	for _, record := range records {
		writeLine(record, force)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return nil
}

// fieldNeedsQuotes follows the quoting rule of encoding/csv
func fieldNeedsQuotes(field string) bool {
	if field == "" {
		return false
	}
	if field == `\.` || strings.ContainsAny(field, `,"`+"\r\n") {
		return true
	}
	r := field[0]
	return r == ' ' || r == '\t'
}

// resolvePath resolves relative paths against the base directory
func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(w.baseDir, filePath)
}

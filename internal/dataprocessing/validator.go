package dataprocessing

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"petakeu/pkg/contracts/domain"
)

// Required spreadsheet columns, in the order errors are reported
const (
	ColumnKodeBPS     = "kode_bps"
	ColumnNamaWilayah = "nama_wilayah"
	ColumnPeriode     = "periode"
	ColumnNominal     = "nominal"
	ColumnSumber      = "sumber"
)

// RequiredColumns lists the normalized header names every upload must carry
var RequiredColumns = []string{ColumnKodeBPS, ColumnNamaWilayah, ColumnPeriode, ColumnNominal, ColumnSumber}

// rowsPerTask is the number of data rows validated by one goroutine
const rowsPerTask = 256

var (
	periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// MissingColumnsError reports required headers absent from a spreadsheet
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// Result is the outcome of validating one spreadsheet
type Result struct {
	Summary domain.ValidationSummary
	Errors  []domain.RowError
	Rows    []domain.PaymentRow
}

// Validator checks spreadsheet rows against the remittance schema
type Validator struct {
	workers int
}

// NewValidator creates a validator that checks rows on up to workers goroutines
func NewValidator(workers int) *Validator {
	if workers < 1 {
		workers = 1
	}
	return &Validator{workers: workers}
}

// Validate treats rows[0] as the header and every following row as data.
// Errors are returned in input row order regardless of scheduling.
func Validate(ctx context.Context, rows [][]string) (domain.ValidationSummary, []domain.RowError, error) {
	result, err := NewValidator(4).Validate(ctx, rows)
	if err != nil {
		return domain.ValidationSummary{}, nil, err
	}
	return result.Summary, result.Errors, nil
}

// rowOutcome holds the checks of a single data row
type rowOutcome struct {
	errors []domain.RowError
	row    domain.PaymentRow
}

// Validate checks every data row and aggregates the valid ones
func (v *Validator) Validate(ctx context.Context, rows [][]string) (*Result, error) {
	result := &Result{Errors: []domain.RowError{}, Rows: []domain.PaymentRow{}}
	if len(rows) == 0 {
		return result, nil
	}

	columns, err := mapHeader(rows[0])
	if err != nil {
		return nil, err
	}

	data := rows[1:]
	outcomes := make([]rowOutcome, len(data))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for start := 0; start < len(data); start += rowsPerTask {
		end := min(start+rowsPerTask, len(data))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				outcomes[i] = checkRow(data[i], i+2, columns)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("validation interrupted: %w", err)
	}

	total := decimal.Zero
	var from, to string
	for _, out := range outcomes {
		if len(out.errors) > 0 {
			result.Errors = append(result.Errors, out.errors...)
			continue
		}
		result.Rows = append(result.Rows, out.row)
		total = total.Add(decimal.NewFromFloat(out.row.Amount))
		if from == "" || out.row.Period < from {
			from = out.row.Period
		}
		if to == "" || out.row.Period > to {
			to = out.row.Period
		}
	}

	result.Summary = domain.ValidationSummary{
		TotalRows:   len(data),
		ValidRows:   len(result.Rows),
		TotalAmount: total.InexactFloat64(),
	}
	if from != "" {
		result.Summary.PeriodRange = domain.PeriodRange{From: &from, To: &to}
	}
	return result, nil
}

// NormalizeHeader lowercases a header cell and joins words with underscores
func NormalizeHeader(cell string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(cell)), "_")
}

// mapHeader returns the cell index of every required column
func mapHeader(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, cell := range header {
		name := NormalizeHeader(cell)
		if _, seen := positions[name]; !seen {
			positions[name] = i
		}
	}

	columns := make(map[string]int, len(RequiredColumns))
	var missing []string
	for _, col := range RequiredColumns {
		idx, ok := positions[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		columns[col] = idx
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	return columns, nil
}

// checkRow validates one data row without stopping at the first failure.
// rowNumber is the 1-based sheet row including the header.
func checkRow(cells []string, rowNumber int, columns map[string]int) rowOutcome {
	cell := func(col string) string {
		idx := columns[col]
		if idx >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[idx])
	}

	var out rowOutcome
	fail := func(col, msg string) {
		out.errors = append(out.errors, domain.RowError{Row: rowNumber, Column: col, Message: msg})
	}

	kode := cell(ColumnKodeBPS)
	if kode == "" {
		fail(ColumnKodeBPS, "kode_bps wajib diisi")
	}

	nama := cell(ColumnNamaWilayah)
	if nama == "" {
		fail(ColumnNamaWilayah, "nama_wilayah wajib diisi")
	}

	periode := cell(ColumnPeriode)
	switch {
	case periode == "":
		fail(ColumnPeriode, "periode wajib diisi")
	case !periodPattern.MatchString(periode):
		fail(ColumnPeriode, "Format periode tidak valid (YYYY-MM)")
	}

	var amount float64
	raw := cell(ColumnNominal)
	if raw == "" {
		fail(ColumnNominal, "nominal wajib diisi")
	} else if parsed, err := strconv.ParseFloat(raw, 64); err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		fail(ColumnNominal, "nominal harus berupa angka")
	} else if parsed < 0 {
		fail(ColumnNominal, "Nilai negatif tidak diperbolehkan")
	} else {
		amount = parsed
	}

	sumber := cell(ColumnSumber)
	if sumber == "" {
		fail(ColumnSumber, "sumber wajib diisi")
	}

	if len(out.errors) == 0 {
		out.row = domain.PaymentRow{
			Row:        rowNumber,
			KodeBPS:    kode,
			RegionName: nama,
			Period:     periode,
			Amount:     amount,
			Source:     sumber,
		}
	}
	return out
}

// IsValidPeriod reports whether s is a YYYY-MM month
func IsValidPeriod(s string) bool {
	return periodPattern.MatchString(s)
}

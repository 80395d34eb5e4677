package dataprocessing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petakeu/pkg/contracts/domain"
)

var header = []string{"kode_bps", "nama_wilayah", "periode", "nominal", "sumber"}

func TestValidate_InvalidMonth(t *testing.T) {
	summary, rowErrors, err := Validate(context.Background(), [][]string{
		header,
		{"33", "Jateng", "2025-13", "1000", "BPS"},
	})
	require.NoError(t, err)

	require.Len(t, rowErrors, 1)
	assert.Equal(t, domain.RowError{Row: 2, Column: "periode", Message: "Format periode tidak valid (YYYY-MM)"}, rowErrors[0])
	assert.Equal(t, 1, summary.TotalRows)
	assert.Equal(t, 0, summary.ValidRows)
	assert.Equal(t, 0.0, summary.TotalAmount)
	assert.Nil(t, summary.PeriodRange.From)
	assert.Nil(t, summary.PeriodRange.To)
}

func TestValidate_AllValid(t *testing.T) {
	summary, rowErrors, err := Validate(context.Background(), [][]string{
		header,
		{"3171", "DKI Jakarta", "2025-03", "1000000.50", "BPKAD"},
		{"3273", "Kota Bandung", "2024-11", "250000", "BPKAD"},
		{" 3374 ", " Kota Semarang ", " 2025-08 ", " 0 ", " BPKAD "},
	})
	require.NoError(t, err)

	assert.Empty(t, rowErrors)
	assert.Equal(t, 3, summary.TotalRows)
	assert.Equal(t, 3, summary.ValidRows)
	assert.InDelta(t, 1250000.50, summary.TotalAmount, 1e-9)
	require.NotNil(t, summary.PeriodRange.From)
	assert.Equal(t, "2024-11", *summary.PeriodRange.From)
	assert.Equal(t, "2025-08", *summary.PeriodRange.To)
}

func TestValidate_AccumulatesAllErrorsPerRow(t *testing.T) {
	_, rowErrors, err := Validate(context.Background(), [][]string{
		header,
		{"", " ", "2025-1", "-5", ""},
	})
	require.NoError(t, err)

	require.Len(t, rowErrors, 5)
	var columns []string
	for _, e := range rowErrors {
		assert.Equal(t, 2, e.Row)
		columns = append(columns, e.Column)
	}
	assert.Equal(t, RequiredColumns, columns)
	assert.Equal(t, "Nilai negatif tidak diperbolehkan", rowErrors[3].Message)
}

func TestValidate_FieldRules(t *testing.T) {
	tests := []struct {
		name    string
		row     []string
		wantCol string
	}{
		{"missing kode_bps", []string{"", "A", "2025-01", "1", "S"}, ColumnKodeBPS},
		{"missing nama_wilayah", []string{"1", "", "2025-01", "1", "S"}, ColumnNamaWilayah},
		{"empty periode", []string{"1", "A", "", "1", "S"}, ColumnPeriode},
		{"month zero", []string{"1", "A", "2025-00", "1", "S"}, ColumnPeriode},
		{"slash period", []string{"1", "A", "2025/01", "1", "S"}, ColumnPeriode},
		{"non numeric nominal", []string{"1", "A", "2025-01", "satu", "S"}, ColumnNominal},
		{"infinite nominal", []string{"1", "A", "2025-01", "Inf", "S"}, ColumnNominal},
		{"NaN nominal", []string{"1", "A", "2025-01", "NaN", "S"}, ColumnNominal},
		{"thousand separators", []string{"1", "A", "2025-01", "1.000.000", "S"}, ColumnNominal},
		{"missing sumber", []string{"1", "A", "2025-01", "1", ""}, ColumnSumber},
		{"short row", []string{"1", "A", "2025-01", "1"}, ColumnSumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, rowErrors, err := Validate(context.Background(), [][]string{header, tt.row})
			require.NoError(t, err)
			require.Len(t, rowErrors, 1)
			assert.Equal(t, tt.wantCol, rowErrors[0].Column)
			assert.Equal(t, 0, summary.ValidRows)
			assert.Equal(t, 0.0, summary.TotalAmount)
		})
	}
}

func TestValidate_HeaderNormalization(t *testing.T) {
	summary, rowErrors, err := Validate(context.Background(), [][]string{
		{"Sumber", "  NOMINAL ", "Periode", "Nama   Wilayah", "Kode\tBPS", "catatan"},
		{"BPS", "10", "2025-02", "Jateng", "33", "-"},
	})
	require.NoError(t, err)
	assert.Empty(t, rowErrors)
	assert.Equal(t, 1, summary.ValidRows)
	assert.Equal(t, 10.0, summary.TotalAmount)
}

func TestValidate_MissingColumnsIsFatal(t *testing.T) {
	summary, rowErrors, err := Validate(context.Background(), [][]string{
		{"kode_bps", "periode", "nominal"},
		{"33", "2025-01", "100"},
	})
	require.Error(t, err)

	var missing *MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"nama_wilayah", "sumber"}, missing.Columns)
	assert.Equal(t, "missing required columns: nama_wilayah, sumber", err.Error())
	assert.Nil(t, rowErrors)
	assert.Equal(t, domain.ValidationSummary{}, summary)
}

func TestValidate_NoDataRows(t *testing.T) {
	for _, rows := range [][][]string{nil, {header}} {
		summary, rowErrors, err := Validate(context.Background(), rows)
		require.NoError(t, err)
		assert.Empty(t, rowErrors)
		assert.Equal(t, domain.ValidationSummary{}, summary)
	}
}

func TestValidator_ErrorOrderMatchesInputAcrossWorkers(t *testing.T) {
	rows := [][]string{header}
	for i := 0; i < 2000; i++ {
		if i%3 == 0 {
			rows = append(rows, []string{"33", "Jateng", "2025-13", "1", "BPS"})
			continue
		}
		rows = append(rows, []string{"33", "Jateng", fmt.Sprintf("2024-%02d", i%12+1), "2", "BPS"})
	}

	result, err := NewValidator(8).Validate(context.Background(), rows)
	require.NoError(t, err)

	require.Len(t, result.Errors, 667)
	for i := 1; i < len(result.Errors); i++ {
		assert.Less(t, result.Errors[i-1].Row, result.Errors[i].Row)
	}
	assert.Equal(t, 2, result.Errors[0].Row)
	assert.Equal(t, 1333, result.Summary.ValidRows)
	assert.Equal(t, 2666.0, result.Summary.TotalAmount)
	assert.Len(t, result.Rows, 1333)
	assert.Equal(t, "2024-02", *result.Summary.PeriodRange.From)
	assert.Equal(t, "2024-12", *result.Summary.PeriodRange.To)
}

func TestValidator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewValidator(2).Validate(ctx, [][]string{header, {"33", "A", "2025-01", "1", "S"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidator_ReturnsValidRows(t *testing.T) {
	result, err := NewValidator(1).Validate(context.Background(), [][]string{
		header,
		{"3578", "Kota Surabaya", "2025-08", "68000000", "BPKAD"},
		{"bad", "", "2025-08", "1", "BPKAD"},
	})
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, domain.PaymentRow{
		Row: 2, KodeBPS: "3578", RegionName: "Kota Surabaya", Period: "2025-08", Amount: 68000000, Source: "BPKAD",
	}, result.Rows[0])
}

package dataprocessing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "petakeu/internal/errors"
)

// buildWorkbook writes rows to the first sheet of an in-memory workbook
func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseWorkbook(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"Kode BPS", "Nama Wilayah", "Periode", "Nominal", "Sumber"},
		{"3171", "DKI Jakarta", "2025-08", 100000000, "BPKAD"},
		{"3273", "Kota Bandung", "2025-08", 47000000.5, "BPKAD"},
	})

	rows, err := ParseWorkbook(data)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Kode BPS", rows[0][0])
	assert.Equal(t, "100000000", rows[1][3])

	summary, rowErrors, err := Validate(context.Background(), rows)
	require.NoError(t, err)
	assert.Empty(t, rowErrors)
	assert.Equal(t, 2, summary.ValidRows)
	assert.InDelta(t, 147000000.5, summary.TotalAmount, 1e-6)
}

func TestParseWorkbook_DropsTrailingBlankRows(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"kode_bps", "nama_wilayah", "periode", "nominal", "sumber"},
		{"3171", "DKI Jakarta", "2025-08", 1, "BPKAD"},
		{"", "", "", "", ""},
	})

	rows, err := ParseWorkbook(data)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestParseWorkbook_Corrupt(t *testing.T) {
	_, err := ParseWorkbook([]byte("definitely not a zip archive"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}

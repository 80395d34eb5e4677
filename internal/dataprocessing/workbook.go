package dataprocessing

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "petakeu/internal/errors"
)

// ParseWorkbook reads the rows of the first sheet of a workbook. Cells are
// returned as raw stored values, not number-formatted text, so "#,##0" cells
// keep plain digits. Trailing empty cells are dropped by excelize.
func ParseWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewParsingError("file is not a readable Excel workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewParsingError("workbook has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read sheet "+sheets[0], err)
	}

	return trimTrailingBlankRows(rows), nil
}

// trimTrailingBlankRows drops formatted but empty rows at the end of a sheet
func trimTrailingBlankRows(rows [][]string) [][]string {
	last := len(rows)
	for last > 0 && isBlankRow(rows[last-1]) {
		last--
	}
	return rows[:last]
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

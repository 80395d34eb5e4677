// Package dataprocessing turns uploaded remittance spreadsheets into validated
// rows.
//
// # Components
//
// ParseWorkbook reads the first sheet of an .xlsx/.xls payload into raw string
// rows using excelize. Validator checks those rows against the expected
// column set and produces a ValidationSummary, the row-level errors and the
// rows that passed.
//
// # Usage
//
//	rows, err := dataprocessing.ParseWorkbook(data)
//	if err != nil {
//	    return err
//	}
//	result, err := dataprocessing.NewValidator(4).Validate(ctx, rows)
//
// # Error Handling
//
// A missing required header is fatal and reported as *MissingColumnsError;
// no summary is produced. Every other problem is a domain.RowError and never
// stops validation of the remaining rows.
package dataprocessing

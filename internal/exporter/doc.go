// Package exporter writes CSV artifacts produced by the dashboard.
//
// CSVWriter: Core CSV writing with headers and an optional UTF-8
// BOM for Excel compatibility. Relative paths resolve under the writer's base
// directory.
//
// ErrorReport: The per-upload row error report served at
// /api/v1/uploads/{id}/errors.csv, one `row,column,message` line per error.
//
// Example usage:
//
//	writer := exporter.NewCSVWriter("data/uploads")
//	path, err := writer.WriteErrorReport(uploadID, rowErrors)
package exporter

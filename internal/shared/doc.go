// Package shared holds helpers used by more than one layer of the dashboard
// backend. The testutil subpackage captures slog output so tests can assert
// on what a component logged.
package shared

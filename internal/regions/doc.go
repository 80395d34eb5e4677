// Package regions owns the region catalog, the payment datasets and the
// region summary rule: every monthly amount is split into a 15% cut and the
// remaining net amount.
//
// Datasets come from a PaymentSource. MemorySource serves the built-in
// scenarios (normal, spike, missing-geometry) with ingested upload payments
// layered on top; the postgres package provides a database-backed source.
package regions

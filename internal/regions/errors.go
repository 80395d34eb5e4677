package regions

import "errors"

var (
	// ErrRegionNotFound is returned for region IDs absent from the catalog
	ErrRegionNotFound = errors.New("region not found")

	// ErrNoPaymentData is returned when a known region has no payments
	ErrNoPaymentData = errors.New("no payment data for region")

	// ErrInvalidPeriod is returned for malformed periods or an inverted range
	ErrInvalidPeriod = errors.New("invalid period")
)

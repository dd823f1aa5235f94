// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Probe result label values.
const (
	ProbeFound    = "found"
	ProbeNotFound = "not_found"
	ProbeError    = "error"
)

// Resolution outcome label values.
const (
	OutcomeCached   = "cached"
	OutcomeFetched  = "fetched"
	OutcomeFallback = "fallback"
)

// Histogram bucket parameters.
const (
	// BucketStart1ms is the first bucket for sub-second operations.
	BucketStart1ms = 0.001
	// BucketStart100B is the first bucket for payload sizes.
	BucketStart100B = 100
	BucketFactor2   = 2
	BucketFactor10  = 10
	BucketCount6    = 6
	BucketCount12   = 12
)

// ShutdownTimeout bounds graceful shutdown of servers exposing metrics.
const ShutdownTimeout = 5 * time.Second

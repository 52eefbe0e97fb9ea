package utils

import (
	"context"
	"time"
)

// Per-operation budgets for handler work that is not summarization.
// Summaries run on the request context alone and may take minutes.
const (
	QueryTimeout  = 10 * time.Second // record search and lookup
	ExportTimeout = 30 * time.Second // up to MaxExportRecords rows
	PingTimeout   = 2 * time.Second  // health checks
)

// QueryContext bounds a record query.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, QueryTimeout)
}

// ExportContext bounds a record export.
func ExportContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ExportTimeout)
}

// PingContext bounds a dependency health check.
func PingContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, PingTimeout)
}

package utils

import (
	"time"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Pagination defaults shared by list endpoints
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Provider and campaign constants
const (
	// DefaultPhoneRegion is used when a recipient number carries no country code
	DefaultPhoneRegion = "KE"

	// MaxRecordsPerBatch bounds a single AddRecords call
	MaxRecordsPerBatch = 1000

	// MaxExportRows bounds the message history spreadsheet export
	MaxExportRows = 10000

	// CampaignLockTTL is how long a send run holds its campaign lock before it must be refreshed
	CampaignLockTTL = 10 * time.Minute
)

package constants

import (
	"time"
)

// List refresh
const (
	// DefaultRefreshInterval - delay between two continuous-refresh cycles (2s)
	DefaultRefreshInterval = 2000 * time.Millisecond

	// MinRefreshInterval - lower bound applied to configured intervals (100ms)
	// Anything faster keeps the backend permanently busy
	MinRefreshInterval = 100 * time.Millisecond

	// DefaultChunkSize - chunk size for chunked lists when none is configured.
	// Zero means unlimited: everything is fetched in one pass.
	DefaultChunkSize = 0

	// NoFilterPlaceholder - body attribute shown while a filtered list has no filter
	NoFilterPlaceholder = "no filter..."

	// SelectedClass - class carried by the selected item node
	SelectedClass = "selected"
)

// Retry configuration
const (
	// MaxRetries - maximum number of retries for transient backend errors
	MaxRetries = 5

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	// Exponential backoff with jitter caps at this value
	RetryMaxDelay = 15 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// UI Updates
const (
	// ProgressRefreshRate - redraw interval for dump progress bars (300ms)
	ProgressRefreshRate = 300 * time.Millisecond

	// ProgressBarWidth - width of dump progress bars
	ProgressBarWidth = 60

	// ProgressCellWidth - width of a progress cell in the terminal table
	ProgressCellWidth = 12

	// DefaultTerminalWidth - width used when stdout is not a terminal
	DefaultTerminalWidth = 100
)

// HTTP Client Timeouts
const (
	// HTTPDialTimeout - TCP connection timeout
	HTTPDialTimeout = 30 * time.Second

	// HTTPKeepAlive - TCP keep-alive interval
	HTTPKeepAlive = 30 * time.Second

	// HTTPIdleConnTimeout - how long idle connections stay in the pool
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - TLS handshake timeout
	HTTPTLSHandshakeTimeout = 10 * time.Second

	// HTTPResponseHeaderTimeout - wait for response headers
	HTTPResponseHeaderTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - wait for 100-continue
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPMaxIdleConns - global idle connection pool size
	HTTPMaxIdleConns = 100

	// HTTPMaxIdleConnsPerHost - idle connections kept per backend host
	HTTPMaxIdleConnsPerHost = 10

	// HTTPClientTimeout - overall request timeout for backend queries
	HTTPClientTimeout = 120 * time.Second

	// ProxyWarmupTimeout - timeout for the optional proxy warmup request
	ProxyWarmupTimeout = 15 * time.Second
)

// Backend query rate limiting
const (
	// QueryRateLimit - sustained backend queries per second per process
	QueryRateLimit = 10.0

	// QueryBurstCapacity - queries allowed back-to-back before throttling
	QueryBurstCapacity = 20.0
)

package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds performance and metering counters for the gateway
type Metrics struct {
	// Request metrics
	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`
	ActiveRequests     int64 `json:"active_requests"`

	// Response time metrics
	AverageResponseTime time.Duration `json:"average_response_time"`
	MinResponseTime     time.Duration `json:"min_response_time"`
	MaxResponseTime     time.Duration `json:"max_response_time"`

	// Relay outcome metrics
	RelaysCompleted   int64 `json:"relays_completed"`
	RelaysFailed      int64 `json:"relays_failed"`
	QuotaDenials      int64 `json:"quota_denials"`
	FundsDenials      int64 `json:"funds_denials"`
	DecodedReverts    int64 `json:"decoded_reverts"`
	ChargedTotalFen   int64 `json:"charged_total_fen"`
	RefundedTotalFen  int64 `json:"refunded_total_fen"`
	AlertsEmitted     int64 `json:"alerts_emitted"`
	UnknownSubmission int64 `json:"unknown_submissions"`

	// RPC metrics
	RPCCalls       int64         `json:"rpc_calls"`
	RPCFailures    int64         `json:"rpc_failures"`
	AverageRPCTime time.Duration `json:"average_rpc_time"`

	// Gas price cache metrics
	GasPriceCacheHits   int64 `json:"gas_price_cache_hits"`
	GasPriceCacheMisses int64 `json:"gas_price_cache_misses"`

	// Internal fields for calculations
	totalResponseTime time.Duration
	totalRPCTime      time.Duration
	mutex             sync.RWMutex
}

// Collector provides thread-safe metrics collection
type Collector struct {
	metrics   *Metrics
	startTime time.Time
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		metrics: &Metrics{
			MinResponseTime: time.Duration(^uint64(0) >> 1),
		},
		startTime: time.Now(),
	}
}

// RecordRequest records a new inbound request
func (c *Collector) RecordRequest() {
	atomic.AddInt64(&c.metrics.TotalRequests, 1)
	atomic.AddInt64(&c.metrics.ActiveRequests, 1)
}

// RecordRequestComplete records request completion
func (c *Collector) RecordRequestComplete(duration time.Duration, success bool) {
	atomic.AddInt64(&c.metrics.ActiveRequests, -1)

	if success {
		atomic.AddInt64(&c.metrics.SuccessfulRequests, 1)
	} else {
		atomic.AddInt64(&c.metrics.FailedRequests, 1)
	}

	c.metrics.mutex.Lock()
	defer c.metrics.mutex.Unlock()

	c.metrics.totalResponseTime += duration

	if duration < c.metrics.MinResponseTime {
		c.metrics.MinResponseTime = duration
	}
	if duration > c.metrics.MaxResponseTime {
		c.metrics.MaxResponseTime = duration
	}

	totalRequests := atomic.LoadInt64(&c.metrics.TotalRequests)
	if totalRequests > 0 {
		c.metrics.AverageResponseTime = c.metrics.totalResponseTime / time.Duration(totalRequests)
	}
}

// RecordRelayCompleted records a successfully relayed transaction and the
// fen charged for it.
func (c *Collector) RecordRelayCompleted(chargedFen int64) {
	atomic.AddInt64(&c.metrics.RelaysCompleted, 1)
	atomic.AddInt64(&c.metrics.ChargedTotalFen, chargedFen)
}

// RecordRelayFailed records a relay attempt that ended in FAILED
func (c *Collector) RecordRelayFailed() {
	atomic.AddInt64(&c.metrics.RelaysFailed, 1)
}

// RecordQuotaDenial records a quota-engine denial
func (c *Collector) RecordQuotaDenial() {
	atomic.AddInt64(&c.metrics.QuotaDenials, 1)
}

// RecordFundsDenial records an insufficient-funds denial
func (c *Collector) RecordFundsDenial() {
	atomic.AddInt64(&c.metrics.FundsDenials, 1)
}

// RecordDecodedRevert records a simulated or submitted call that reverted
// with a decoded reason.
func (c *Collector) RecordDecodedRevert() {
	atomic.AddInt64(&c.metrics.DecodedReverts, 1)
}

// RecordRefund records a compensating credit after a failed submission
func (c *Collector) RecordRefund(fen int64) {
	atomic.AddInt64(&c.metrics.RefundedTotalFen, fen)
}

// RecordAlert records a high-cost alert emission
func (c *Collector) RecordAlert() {
	atomic.AddInt64(&c.metrics.AlertsEmitted, 1)
}

// RecordUnknownSubmission records a submission whose outcome is unknown
func (c *Collector) RecordUnknownSubmission() {
	atomic.AddInt64(&c.metrics.UnknownSubmission, 1)
}

// RecordRPCCall records a chain RPC call
func (c *Collector) RecordRPCCall(duration time.Duration, success bool) {
	atomic.AddInt64(&c.metrics.RPCCalls, 1)

	if !success {
		atomic.AddInt64(&c.metrics.RPCFailures, 1)
	}

	c.metrics.mutex.Lock()
	defer c.metrics.mutex.Unlock()

	c.metrics.totalRPCTime += duration

	totalRPCCalls := atomic.LoadInt64(&c.metrics.RPCCalls)
	if totalRPCCalls > 0 {
		c.metrics.AverageRPCTime = c.metrics.totalRPCTime / time.Duration(totalRPCCalls)
	}
}

// RecordGasPriceCacheHit records a gas price served from cache
func (c *Collector) RecordGasPriceCacheHit() {
	atomic.AddInt64(&c.metrics.GasPriceCacheHits, 1)
}

// RecordGasPriceCacheMiss records a gas price fetched from the RPC
func (c *Collector) RecordGasPriceCacheMiss() {
	atomic.AddInt64(&c.metrics.GasPriceCacheMisses, 1)
}

// GetMetrics returns a copy of current metrics
func (c *Collector) GetMetrics() *Metrics {
	c.metrics.mutex.RLock()
	defer c.metrics.mutex.RUnlock()

	return &Metrics{
		TotalRequests:       atomic.LoadInt64(&c.metrics.TotalRequests),
		SuccessfulRequests:  atomic.LoadInt64(&c.metrics.SuccessfulRequests),
		FailedRequests:      atomic.LoadInt64(&c.metrics.FailedRequests),
		ActiveRequests:      atomic.LoadInt64(&c.metrics.ActiveRequests),
		AverageResponseTime: c.metrics.AverageResponseTime,
		MinResponseTime:     c.metrics.MinResponseTime,
		MaxResponseTime:     c.metrics.MaxResponseTime,
		RelaysCompleted:     atomic.LoadInt64(&c.metrics.RelaysCompleted),
		RelaysFailed:        atomic.LoadInt64(&c.metrics.RelaysFailed),
		QuotaDenials:        atomic.LoadInt64(&c.metrics.QuotaDenials),
		FundsDenials:        atomic.LoadInt64(&c.metrics.FundsDenials),
		DecodedReverts:      atomic.LoadInt64(&c.metrics.DecodedReverts),
		ChargedTotalFen:     atomic.LoadInt64(&c.metrics.ChargedTotalFen),
		RefundedTotalFen:    atomic.LoadInt64(&c.metrics.RefundedTotalFen),
		AlertsEmitted:       atomic.LoadInt64(&c.metrics.AlertsEmitted),
		UnknownSubmission:   atomic.LoadInt64(&c.metrics.UnknownSubmission),
		RPCCalls:            atomic.LoadInt64(&c.metrics.RPCCalls),
		RPCFailures:         atomic.LoadInt64(&c.metrics.RPCFailures),
		AverageRPCTime:      c.metrics.AverageRPCTime,
		GasPriceCacheHits:   atomic.LoadInt64(&c.metrics.GasPriceCacheHits),
		GasPriceCacheMisses: atomic.LoadInt64(&c.metrics.GasPriceCacheMisses),
	}
}

// GetUptime returns the uptime since metrics collection started
func (c *Collector) GetUptime() time.Duration {
	return time.Since(c.startTime)
}

// GetSuccessRate returns the request success rate as a percentage
func (c *Collector) GetSuccessRate() float64 {
	successful := atomic.LoadInt64(&c.metrics.SuccessfulRequests)
	total := atomic.LoadInt64(&c.metrics.TotalRequests)

	if total == 0 {
		return 0.0
	}

	return float64(successful) / float64(total) * 100.0
}

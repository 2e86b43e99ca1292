package telemetry

// TransferDurationBuckets cover whole-run durations from sub-second dry
// runs to multi-hour bulk copies
var TransferDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600, 14400}

// Transfer metrics
var (
	// RecordsAttempted counts candidate records entering the engine
	RecordsAttempted Counter = NoopStat{}

	// RecordsPublished counts successful primary deliveries
	RecordsPublished Counter = NoopStat{}

	// RecordsFailed counts per-record delivery failures
	RecordsFailed Counter = NoopStat{}

	// RecordsExcluded counts records skipped by exclusion rules or dedup
	RecordsExcluded Counter = NoopStat{}

	// FanoutFailures counts secondary-destination delivery failures
	FanoutFailures Counter = NoopStat{}

	// InFlightRecords tracks records currently being delivered
	InFlightRecords Gauge = NoopStat{}

	// TransferDurationSeconds measures whole-run duration
	TransferDurationSeconds Histogram = NoopStat{}
)

func initMetrics() {
	RecordsAttempted = NewCounter(
		"records_attempted_total",
		"Candidate records entering the transfer engine",
	)
	RecordsPublished = NewCounter(
		"records_published_total",
		"Successful primary deliveries",
	)
	RecordsFailed = NewCounter(
		"records_failed_total",
		"Per-record delivery failures",
	)
	RecordsExcluded = NewCounter(
		"records_excluded_total",
		"Records skipped by exclusion rules or deduplication",
	)
	FanoutFailures = NewCounter(
		"fanout_failures_total",
		"Secondary destination delivery failures",
	)
	InFlightRecords = NewGauge(
		"inflight_records",
		"Records currently being delivered",
	)
	TransferDurationSeconds = NewHistogramWithBuckets(
		"transfer_duration_seconds",
		"Whole-run transfer duration in seconds",
		TransferDurationBuckets,
	)
}

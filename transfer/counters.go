package transfer

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Counters aggregates per-run accounting. Increment paths are safe for
// concurrent delivery workers; attempted always equals
// succeeded + failed + excluded once the run is finalized.
type Counters struct {
	attempted    *xsync.Counter
	succeeded    *xsync.Counter
	failed       *xsync.Counter
	excluded     *xsync.Counter
	duplicates   *xsync.Counter
	fanoutFailed *xsync.Counter

	mu           sync.Mutex
	failedTokens []string

	start time.Time
}

// NewCounters creates a zeroed counter set with the run clock started
func NewCounters() *Counters {
	return &Counters{
		attempted:    xsync.NewCounter(),
		succeeded:    xsync.NewCounter(),
		failed:       xsync.NewCounter(),
		excluded:     xsync.NewCounter(),
		duplicates:   xsync.NewCounter(),
		fanoutFailed: xsync.NewCounter(),
		start:        time.Now(),
	}
}

func (c *Counters) recordAttempt()  { c.attempted.Inc() }
func (c *Counters) recordSuccess()  { c.succeeded.Inc() }
func (c *Counters) recordExcluded() { c.excluded.Inc() }

// recordDuplicate counts a deduplicated record. Duplicates are a flavor of
// exclusion for accounting purposes but are tracked separately for the
// summary.
func (c *Counters) recordDuplicate() {
	c.excluded.Inc()
	c.duplicates.Inc()
}

func (c *Counters) recordFanoutFailure() { c.fanoutFailed.Inc() }

func (c *Counters) recordFailure(token string) {
	c.failed.Inc()
	c.mu.Lock()
	c.failedTokens = append(c.failedTokens, token)
	c.mu.Unlock()
}

// Summary is an immutable snapshot of a finished run
type Summary struct {
	Attempted    int64
	Succeeded    int64
	Failed       int64
	Excluded     int64
	Duplicates   int64
	FanoutFailed int64
	FailedIDs    []string
	Elapsed      time.Duration
	DryRun       bool
}

// Snapshot finalizes the counters into a Summary
func (c *Counters) Snapshot(dryRun bool) *Summary {
	c.mu.Lock()
	tokens := make([]string, len(c.failedTokens))
	copy(tokens, c.failedTokens)
	c.mu.Unlock()

	return &Summary{
		Attempted:    c.attempted.Value(),
		Succeeded:    c.succeeded.Value(),
		Failed:       c.failed.Value(),
		Excluded:     c.excluded.Value(),
		Duplicates:   c.duplicates.Value(),
		FanoutFailed: c.fanoutFailed.Value(),
		FailedIDs:    tokens,
		Elapsed:      time.Since(c.start),
		DryRun:       dryRun,
	}
}

// ExitCode is 0 only when no record failed; excluded records do not count
// as failures.
func (s *Summary) ExitCode() int {
	if s.Failed > 0 {
		return 1
	}
	return 0
}

// Results renders the summary as an audit results map
func (s *Summary) Results() map[string]any {
	results := map[string]any{
		"attempted": s.Attempted,
		"succeeded": s.Succeeded,
		"failed":    s.Failed,
		"excluded":  s.Excluded,
	}
	if s.Duplicates > 0 {
		results["duplicates"] = s.Duplicates
	}
	if s.FanoutFailed > 0 {
		results["fanoutFailed"] = s.FanoutFailed
	}
	if len(s.FailedIDs) > 0 {
		results["failedMessageIds"] = s.FailedIDs
	}
	if s.DryRun {
		results["dryRun"] = true
	}
	return results
}

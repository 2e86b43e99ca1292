package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jizhuozhi/go-future"
	"github.com/rs/zerolog/log"

	"github.com/shovelmq/shovel/exclusion"
	"github.com/shovelmq/shovel/failstore"
	"github.com/shovelmq/shovel/telemetry"
)

// Config configures one transfer run. It is passed by value into the
// engine and never read back out.
type Config struct {
	Source    Source
	Primary   Destination
	Secondary Destination // optional fan-out destination

	Exclusions       *exclusion.List
	ContentExclusion bool

	Store *failstore.Store // optional failure persistence
	Dedup *Deduper         // optional payload deduplication

	// RetryMode skips exclusion checks (records were vetted in their
	// original run) and leaves existing file pairs in place on failure.
	RetryMode bool

	// DryRun counts would-be deliveries without touching any destination
	DryRun bool

	// Workers bounds delivery concurrency. 1 (the default) processes
	// records strictly in enumeration order.
	Workers int
}

// Engine drives the shared transfer loop: enumerate candidates, filter,
// deliver, and route every outcome to the run counters and, on failure,
// to the failure store. One failing record never aborts the batch.
type Engine struct {
	cfg      Config
	counters *Counters
}

// New validates the configuration and builds an engine
func New(cfg Config) (*Engine, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.Primary == nil {
		return nil, fmt.Errorf("primary destination is required")
	}
	if cfg.Store == nil {
		cfg.Store = failstore.New("", "")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Engine{cfg: cfg}, nil
}

// Run processes the whole source. The returned Summary is always complete
// when err is nil; a non-nil error means the run aborted on a resource
// failure before or during enumeration. Cancelling the context stops the
// pickup of new records but lets in-flight deliveries finish.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	e.counters = NewCounters()

	// Surface directory problems before any record is processed
	if err := e.cfg.Store.InitFailedDir(); err != nil {
		return nil, err
	}

	var err error
	if e.cfg.Workers == 1 {
		err = e.runSequential(ctx)
	} else {
		err = e.runConcurrent(ctx)
	}
	if err != nil {
		return nil, err
	}

	summary := e.counters.Snapshot(e.cfg.DryRun)
	telemetry.TransferDurationSeconds.Observe(summary.Elapsed.Seconds())
	return summary, nil
}

func (e *Engine) runSequential(ctx context.Context) error {
	seq := 0
	for {
		select {
		case <-ctx.Done():
			log.Warn().Int("processed", seq).Msg("Transfer interrupted, not picking up further records")
			return nil
		default:
		}

		rec, err := e.cfg.Source.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("source enumeration failed: %w", err)
		}

		seq++
		if rec.Index == 0 {
			rec.Index = seq
		}
		e.process(ctx, rec)
	}
}

func (e *Engine) runConcurrent(ctx context.Context) error {
	records := make(chan *Record)
	var wg sync.WaitGroup

	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range records {
				e.process(ctx, rec)
			}
		}()
	}

	// Sequence indexes are assigned here, at enumeration time, so they
	// stay stable no matter which worker completes first.
	var enumErr error
	seq := 0
enumerate:
	for {
		select {
		case <-ctx.Done():
			log.Warn().Int("enumerated", seq).Msg("Transfer interrupted, not picking up further records")
			break enumerate
		default:
		}

		rec, err := e.cfg.Source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			enumErr = fmt.Errorf("source enumeration failed: %w", err)
			break
		}

		seq++
		if rec.Index == 0 {
			rec.Index = seq
		}
		records <- rec
	}
	close(records)
	wg.Wait()

	return enumErr
}

// process handles one candidate end to end. Delivery errors are accounted
// and optionally persisted; they never propagate.
func (e *Engine) process(ctx context.Context, rec *Record) {
	e.counters.recordAttempt()
	telemetry.RecordsAttempted.Inc()

	if !e.cfg.RetryMode && e.cfg.Exclusions != nil {
		if e.cfg.Exclusions.IsExcluded(rec.Key) {
			e.exclude(rec, "identity")
			return
		}
		if e.cfg.ContentExclusion && e.cfg.Exclusions.ContainsExcluded(string(rec.Payload)) {
			e.exclude(rec, "content")
			return
		}
	}

	if e.cfg.Dedup != nil && e.cfg.Dedup.Seen(rec.Payload) {
		e.counters.recordDuplicate()
		telemetry.RecordsExcluded.Inc()
		log.Debug().Str("key", rec.Key).Int("index", rec.Index).Msg("Duplicate payload skipped")
		return
	}

	if e.cfg.DryRun {
		e.counters.recordSuccess()
		log.Info().Str("key", rec.Key).Int("index", rec.Index).Msg("Would publish")
		return
	}

	telemetry.InFlightRecords.Inc()
	defer telemetry.InFlightRecords.Dec()

	// Fan-out delivery runs concurrently with the primary attempt; both
	// must complete before the record's outcome is finalized.
	var secondary *future.Future[error]
	if e.cfg.Secondary != nil {
		p := future.NewPromise[error]()
		go func() {
			p.Set(e.cfg.Secondary.Deliver(ctx, rec), nil)
		}()
		secondary = p.Future()
	}

	primaryErr := e.cfg.Primary.Deliver(ctx, rec)

	if secondary != nil {
		if secErr, _ := secondary.Get(); secErr != nil {
			// A fan-out failure never undoes a primary success; it is
			// reported separately.
			e.counters.recordFanoutFailure()
			telemetry.FanoutFailures.Inc()
			log.Error().
				Err(secErr).
				Str("destination", e.cfg.Secondary.Name()).
				Str("key", rec.Key).
				Int("index", rec.Index).
				Msg("Fan-out delivery failed")
		}
	}

	if primaryErr != nil {
		e.fail(rec, primaryErr)
		return
	}

	e.counters.recordSuccess()
	telemetry.RecordsPublished.Inc()

	if rec.Retry != nil {
		if err := e.cfg.Store.MarkRetrySuccess(*rec.Retry); err != nil {
			log.Warn().Err(err).Str("key", rec.Key).Msg("Delivered retry message but could not remove its files")
		}
	}
}

func (e *Engine) exclude(rec *Record, matchKind string) {
	e.counters.recordExcluded()
	telemetry.RecordsExcluded.Inc()
	log.Debug().
		Str("key", rec.Key).
		Int("index", rec.Index).
		Str("match", matchKind).
		Msg("Record excluded")
}

func (e *Engine) fail(rec *Record, cause error) {
	token := failstore.Token(rec.CorrelationID, rec.Index)
	e.counters.recordFailure(token)
	telemetry.RecordsFailed.Inc()

	log.Error().
		Err(cause).
		Str("destination", e.cfg.Primary.Name()).
		Str("key", rec.Key).
		Int("index", rec.Index).
		Msg("Delivery failed")

	// In retry mode the record's existing file pair stays in place, so
	// the retry directory curates itself: successes shrink it, failures
	// remain.
	if rec.Retry != nil {
		return
	}

	if err := e.cfg.Store.SaveFailed(rec.Payload, rec.CorrelationID, e.cfg.Primary.Name(), cause.Error(), rec.Index); err != nil {
		log.Error().Err(err).Str("key", rec.Key).Msg("Could not persist failed message")
	}
}

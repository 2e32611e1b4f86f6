package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"stocksync/internal/catalog"
	"stocksync/internal/config"
	"stocksync/internal/errors"
	"stocksync/internal/feed"
	"stocksync/internal/infrastructure"
	"stocksync/internal/runlog"
	"stocksync/internal/scheduler"
	"stocksync/internal/settings"
)

// maxReportedErrors caps the per-product error messages kept in a report
const maxReportedErrors = 10

// LicenseGate is the validity check consulted before every run
type LicenseGate interface {
	IsValid() bool
}

// Report is the outcome of one reconciliation run
type Report struct {
	Origin    string        `json:"origin"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	runlog.Stats
	ErrorMessages []string `json:"error_messages,omitempty"`
}

// Engine reconciles the product catalog against the supplier stock
// feed. A run is atomic at the product level: each product either ends
// up matching the feed or contributes one error to the report, and the
// run as a whole always leaves exactly one run log entry.
type Engine struct {
	fetcher   *feed.Fetcher
	catalog   catalog.Catalog
	settings  *settings.Store
	tracker   *HiddenTracker
	history   *runlog.Store
	lease     *scheduler.RunLease
	scheduler *scheduler.Scheduler
	gate      LicenseGate
	telemetry *infrastructure.Telemetry
	feedCfg   config.FeedConfig
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a reconciliation engine
func NewEngine(
	fetcher *feed.Fetcher,
	cat catalog.Catalog,
	settingsStore *settings.Store,
	tracker *HiddenTracker,
	history *runlog.Store,
	lease *scheduler.RunLease,
	sched *scheduler.Scheduler,
	gate LicenseGate,
	cfg *config.Config,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		fetcher:   fetcher,
		catalog:   cat,
		settings:  settingsStore,
		tracker:   tracker,
		history:   history,
		lease:     lease,
		scheduler: sched,
		gate:      gate,
		feedCfg:   cfg.Feed,
		batchSize: cfg.Sync.BatchSize,
		logger:    logger.With(slog.String("component", "reconcile_engine")),
		now:       time.Now,
	}
}

// SetTelemetry wires the metrics instruments
func (e *Engine) SetTelemetry(t *infrastructure.Telemetry) {
	e.telemetry = t
}

// Run executes one full reconciliation. origin records what initiated
// the run (manual, schedule, watchdog) in the run log.
func (e *Engine) Run(ctx context.Context, origin string) (*Report, error) {
	report := &Report{Origin: origin, StartedAt: e.now()}

	if !e.gate.IsValid() {
		e.finish(ctx, report, errors.ErrLicenseInvalid)
		return nil, errors.ErrLicenseInvalid
	}

	current, err := e.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	if current.FeedURL == "" {
		missing := errors.NewConfigMissing("feed_url")
		e.finish(ctx, report, missing)
		return nil, missing
	}

	// A busy rejection is not a run; it leaves no log entry.
	release, ok := e.lease.TryAcquire()
	if !ok {
		return nil, errors.ErrRunInProgress
	}
	defer release()

	snapshot, err := e.fetchSnapshot(ctx, current)
	if err != nil {
		e.finish(ctx, report, err)
		return nil, err
	}

	report.TotalRows = snapshot.Len()

	e.logger.InfoContext(ctx, "reconciliation started",
		slog.String("origin", origin),
		slog.Int("feed_rows", snapshot.Len()),
		slog.String("missing_sku_action", current.MissingSKUAction))

	e.applyFeed(ctx, snapshot, report)
	e.applyMissingPolicy(ctx, snapshot, current.MissingSKUAction, report)

	if err := e.settings.SetLastSyncAt(ctx, e.now()); err != nil {
		e.logger.ErrorContext(ctx, "failed to record sync completion time",
			slog.String("error", err.Error()))
	}
	if current.Enabled {
		if err := e.scheduler.ScheduleSync(ctx, current.Interval); err != nil {
			e.logger.ErrorContext(ctx, "failed to reschedule sync",
				slog.String("error", err.Error()))
		}
	}

	e.finish(ctx, report, nil)
	return report, nil
}

// fetchSnapshot downloads and parses the feed with the configured
// column bindings.
func (e *Engine) fetchSnapshot(ctx context.Context, current settings.Settings) (*feed.Snapshot, error) {
	raw, err := e.fetcher.Fetch(ctx, feed.FetchOptions{
		URL:        current.FeedURL,
		DisableSSL: current.DisableSSLVerify,
		Timeout:    e.feedCfg.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}
	return feed.Parse(raw, current.SKUColumn, current.QuantityColumn)
}

// applyFeed pushes every feed quantity into the catalog in batches.
// Products already at the feed quantity are skipped untouched.
func (e *Engine) applyFeed(ctx context.Context, snapshot *feed.Snapshot, report *Report) {
	skus := make([]string, 0, len(snapshot.Quantities))
	for sku := range snapshot.Quantities {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	report.Processed = len(skus)

	for start := 0; start < len(skus); start += e.batchSize {
		end := start + e.batchSize
		if end > len(skus) {
			end = len(skus)
		}
		batch := skus[start:end]

		ids, err := e.catalog.FindIDsBySKU(ctx, batch)
		if err != nil {
			e.logger.ErrorContext(ctx, "SKU batch lookup failed",
				slog.String("error", err.Error()))
			report.Errors += len(batch)
			report.addError(fmt.Sprintf("SKU lookup failed: %v", err))
			continue
		}

		for _, sku := range batch {
			id, found := ids[sku]
			if !found {
				report.NotFound++
				continue
			}
			e.applyOne(ctx, id, sku, snapshot.Quantities[sku], report)
		}
	}
}

// applyOne brings a single product in line with its feed quantity
func (e *Engine) applyOne(ctx context.Context, id int64, sku string, quantity int, report *Report) {
	product, err := e.catalog.Get(ctx, id)
	if err != nil {
		report.Errors++
		report.addError(fmt.Sprintf("%s: %v", sku, err))
		return
	}

	if product.ManageStock && product.StockQuantity == quantity {
		report.Skipped++
		return
	}

	if err := e.catalog.UpdateStock(ctx, id, quantity); err != nil {
		report.Errors++
		report.addError(fmt.Sprintf("%s: %v", sku, err))
		return
	}
	report.Updated++
}

// restoreReturned makes previously hidden products visible again when
// their SKU reappears in the feed. Under the private policy it always
// runs before the hide pass so a product can never be hidden and
// restored in one run.
func (e *Engine) restoreReturned(ctx context.Context, snapshot *feed.Snapshot, report *Report) {
	hidden, err := e.tracker.All(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to load hidden product tracker",
			slog.String("error", err.Error()))
		report.Errors++
		report.addError(fmt.Sprintf("hidden product tracker: %v", err))
		return
	}

	for id, sku := range hidden {
		if _, present := snapshot.Quantities[sku]; !present {
			continue
		}
		if err := e.catalog.SetVisibility(ctx, id, catalog.VisibilityVisible); err != nil {
			report.Errors++
			report.addError(fmt.Sprintf("%s: restore visibility: %v", sku, err))
			continue
		}
		if err := e.tracker.Unmark(ctx, id); err != nil {
			report.Errors++
			report.addError(fmt.Sprintf("%s: %v", sku, err))
			continue
		}
		report.Restored++
	}
}

// applyMissingPolicy handles catalog products whose SKU is absent from
// the feed. The whole pass is skipped under the ignore policy; under
// the private policy returned products are restored first.
func (e *Engine) applyMissingPolicy(ctx context.Context, snapshot *feed.Snapshot, action string, report *Report) {
	if action == config.MissingSKUIgnore {
		return
	}

	if action == config.MissingSKUPrivate {
		e.restoreReturned(ctx, snapshot, report)
	}

	known, err := e.catalog.AllSKUs(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to list catalog products",
			slog.String("error", err.Error()))
		report.Errors++
		report.addError(fmt.Sprintf("product listing: %v", err))
		return
	}

	for sku, id := range known {
		if _, present := snapshot.Quantities[sku]; present {
			continue
		}

		product, err := e.catalog.Get(ctx, id)
		if err != nil {
			report.Errors++
			report.addError(fmt.Sprintf("%s: %v", sku, err))
			continue
		}

		switch action {
		case config.MissingSKUZero:
			// Zeroing only applies to stock-managed products that are
			// not already at zero.
			if !product.ManageStock || product.StockQuantity == 0 {
				continue
			}
			if err := e.catalog.UpdateStock(ctx, id, 0); err != nil {
				report.Errors++
				report.addError(fmt.Sprintf("%s: zero stock: %v", sku, err))
				continue
			}
			report.MissingZeroed++
		case config.MissingSKUPrivate:
			if product.Visibility == catalog.VisibilityPrivate {
				continue
			}
			if err := e.catalog.SetVisibility(ctx, id, catalog.VisibilityPrivate); err != nil {
				report.Errors++
				report.addError(fmt.Sprintf("%s: hide: %v", sku, err))
				continue
			}
			if err := e.tracker.Mark(ctx, id, sku); err != nil {
				report.Errors++
				report.addError(fmt.Sprintf("%s: %v", sku, err))
				continue
			}
			report.MissingHidden++
		}
	}

	if e.telemetry != nil {
		if report.MissingZeroed > 0 {
			e.telemetry.RecordMissingAction(ctx, config.MissingSKUZero, int64(report.MissingZeroed))
		}
		if report.MissingHidden > 0 {
			e.telemetry.RecordMissingAction(ctx, config.MissingSKUPrivate, int64(report.MissingHidden))
		}
	}
}

// finish closes out a run: duration, run log entry, metrics. runErr is
// non-nil when the run aborted before reconciling anything.
func (e *Engine) finish(ctx context.Context, report *Report, runErr error) {
	report.Duration = e.now().Sub(report.StartedAt)

	status := runlog.StatusSuccess
	message := e.summarize(report)
	switch {
	case runErr != nil:
		status = runlog.StatusError
		message = runErr.Error()
	case report.Errors > 0:
		status = runlog.StatusPartial
	}

	entry := runlog.Entry{
		CreatedAt:  report.StartedAt,
		Origin:     report.Origin,
		Status:     status,
		Message:    message,
		DurationMS: report.Duration.Milliseconds(),
		Stats:      report.Stats,
	}
	if err := e.history.Append(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "failed to append run log entry",
			slog.String("error", err.Error()))
	}

	if e.telemetry != nil {
		e.telemetry.RecordSyncRun(ctx, report.Origin, status, report.Duration.Seconds())
		if report.Updated > 0 {
			e.telemetry.ProductsUpdated.Add(ctx, int64(report.Updated))
		}
	}

	e.logger.InfoContext(ctx, "reconciliation finished",
		slog.String("origin", report.Origin),
		slog.String("status", status),
		slog.Int("processed", report.Processed),
		slog.Int("updated", report.Updated),
		slog.Int("errors", report.Errors),
		slog.Duration("duration", report.Duration))
}

// summarize renders the one-line run log message
func (e *Engine) summarize(report *Report) string {
	parts := []string{
		fmt.Sprintf("%d processed", report.Processed),
		fmt.Sprintf("%d updated", report.Updated),
		fmt.Sprintf("%d skipped", report.Skipped),
		fmt.Sprintf("%d not found", report.NotFound),
	}
	if report.MissingZeroed > 0 {
		parts = append(parts, fmt.Sprintf("%d set to zero", report.MissingZeroed))
	}
	if report.MissingHidden > 0 {
		parts = append(parts, fmt.Sprintf("%d hidden", report.MissingHidden))
	}
	if report.Restored > 0 {
		parts = append(parts, fmt.Sprintf("%d restored", report.Restored))
	}
	if report.Errors > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", report.Errors))
	}
	return "Sync completed: " + strings.Join(parts, ", ") + "."
}

func (r *Report) addError(message string) {
	if len(r.ErrorMessages) < maxReportedErrors {
		r.ErrorMessages = append(r.ErrorMessages, message)
	}
}

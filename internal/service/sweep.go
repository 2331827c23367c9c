package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/observability"
	"github.com/spec-kit/deadline-engine/internal/repository"
)

// Sweep names, used in reports, metrics and lease keys.
const (
	SweepEscalation = "escalation"
	SweepExpiry     = "expiry"
	SweepAutoClose  = "auto-close"
	SweepOutbox     = "outbox"
	SweepReminder   = "approval-reminder"
)

// SweepOptions bounds how a sweep fans out over its items.
type SweepOptions struct {
	Concurrency int
	ItemTimeout time.Duration
	BatchSize   int
}

func (o SweepOptions) withDefaults() SweepOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = 30 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	return o
}

// listTicketIDs pages through every ticket matching filter in (created_at, id)
// order, batch rows at a time.
func listTicketIDs(ctx context.Context, tickets repository.TicketRepository, filter domain.TicketFilter, batch int) ([]string, error) {
	filter.Limit = batch
	filter.After = nil
	var ids []string
	for {
		page, err := tickets.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, t := range page {
			ids = append(ids, t.ID)
		}
		if len(page) < batch {
			return ids, nil
		}
		last := page[len(page)-1]
		filter.After = &domain.TicketCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
}

// ItemFailure names one item a sweep could not process.
type ItemFailure struct {
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
}

// SweepReport summarizes one sweep invocation.
type SweepReport struct {
	Sweep      string        `json:"sweep"`
	Scanned    int           `json:"scanned"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Failures   []ItemFailure `json:"failures,omitempty"`
}

// itemFunc handles one item; it reports false when there was nothing to do.
type itemFunc func(ctx context.Context, id string) (bool, error)

// safeItem runs fn and turns a panic into an item error.
func safeItem(ctx context.Context, id string, fn itemFunc) (did bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			did, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, id)
}

// runSweep processes ids with bounded concurrency. Each item gets its own
// timeout and a failure never stops the remaining items.
func runSweep(ctx context.Context, name string, ids []string, opts SweepOptions, logger *zap.Logger, metrics *observability.Metrics, fn itemFunc) SweepReport {
	opts = opts.withDefaults()
	report := SweepReport{Sweep: name, Scanned: len(ids), StartedAt: time.Now()}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(opts.Concurrency)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, opts.ItemTimeout)
			defer cancel()

			did, err := safeItem(itemCtx, id, fn)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				report.Failures = append(report.Failures, ItemFailure{ItemID: id, Error: err.Error()})
				metrics.RecordSweepItem(name, "failed")
				logger.Error("sweep item failed", zap.String("sweep", name), zap.String("item_id", id), zap.Error(err))
			case did:
				report.Processed++
				metrics.RecordSweepItem(name, "processed")
			default:
				report.Skipped++
				metrics.RecordSweepItem(name, "skipped")
			}
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now()
	metrics.RecordSweep(name, ctx.Err(), report.FinishedAt.Sub(report.StartedAt))
	logger.Info("sweep finished",
		zap.String("sweep", name),
		zap.Int("scanned", report.Scanned),
		zap.Int("processed", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report
}

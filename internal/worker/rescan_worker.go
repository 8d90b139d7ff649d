// Package worker reacts to rescan notifications from the message broker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reportviewer/internal/amqp"
	applog "reportviewer/internal/log"
	"reportviewer/internal/viewer"
)

// Reloader rebuilds the month index.
type Reloader interface {
	Reload(ctx context.Context) error
}

// RescanWorker rebuilds the month index whenever a rescan message arrives.
// Messages that arrive within minInterval of the last rescan are coalesced
// into a single trailing rescan once the interval has passed.
type RescanWorker struct {
	reloader    Reloader
	logger      *slog.Logger
	minInterval time.Duration
	now         func() time.Time
	afterFunc   func(d time.Duration, f func())

	mu         sync.Mutex
	lastRescan time.Time
	pending    bool
}

func NewRescanWorker(r Reloader, minInterval time.Duration, logger *slog.Logger) *RescanWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RescanWorker{
		reloader:    r,
		logger:      logger.With(applog.FieldComponent, applog.ComponentWorker),
		minInterval: minInterval,
		now:         time.Now,
		afterFunc:   func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// HandleRescanMessage is an amqp.RescanHandler. A scan superseded by a newer
// reload counts as handled. A throttled message is acknowledged once its
// trailing rescan is scheduled; that rescan is skipped if ctx has ended.
func (w *RescanWorker) HandleRescanMessage(ctx context.Context, msg *amqp.RescanMessage) error {
	w.logger.InfoContext(ctx, "Processing rescan message",
		"reason", msg.Reason,
		applog.FieldYear, msg.Year,
		applog.FieldMonth, msg.Month,
		"sent_at", msg.Timestamp)

	if w.minInterval > 0 {
		w.mu.Lock()
		last := w.lastRescan
		if !last.IsZero() && msg.Timestamp.Before(last) {
			w.mu.Unlock()
			w.logger.DebugContext(ctx, "Rescan message predates last scan, skipping",
				"reason", msg.Reason)
			return nil
		}
		if wait := w.minInterval - w.now().Sub(last); !last.IsZero() && wait > 0 {
			scheduled := !w.pending
			if scheduled {
				w.pending = true
				requested := w.now()
				w.afterFunc(wait, func() { w.trailingRescan(ctx, requested) })
			}
			w.mu.Unlock()
			w.logger.DebugContext(ctx, "Rescan throttled",
				"reason", msg.Reason,
				"new_trailing_rescan", scheduled,
				"wait", wait)
			return nil
		}
		w.mu.Unlock()
	}

	return w.rescan(ctx)
}

func (w *RescanWorker) rescan(ctx context.Context) error {
	start := w.now()
	err := w.reloader.Reload(ctx)
	if errors.Is(err, viewer.ErrStaleScan) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reload month index: %w", err)
	}

	w.mu.Lock()
	if start.After(w.lastRescan) {
		w.lastRescan = start
	}
	w.mu.Unlock()
	return nil
}

// trailingRescan runs the rescan deferred by throttling unless one already
// started after the deferred messages arrived.
func (w *RescanWorker) trailingRescan(ctx context.Context, requested time.Time) {
	w.mu.Lock()
	w.pending = false
	covered := !w.lastRescan.Before(requested)
	w.mu.Unlock()

	if ctx.Err() != nil || covered {
		return
	}
	if err := w.rescan(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Trailing rescan failed", applog.FieldError, err.Error())
	}
}

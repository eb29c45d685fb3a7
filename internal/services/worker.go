package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/careconnect/careconnect-api/internal/queue"
)

const (
	defaultSweepInterval = 5 * time.Minute
	receiveBackoff       = 2 * time.Second
)

// ReportWorker consumes report tasks with a fixed number of goroutines and
// periodically re-queues reports that were dropped on the way.
type ReportWorker struct {
	reports *ReportService
	queue   queue.Queue
	workers int
	sweep   time.Duration
	log     zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

func NewReportWorker(reports *ReportService, q queue.Queue, workers int, log zerolog.Logger) *ReportWorker {
	if workers < 1 {
		workers = 1
	}
	return &ReportWorker{
		reports: reports,
		queue:   q,
		workers: workers,
		sweep:   defaultSweepInterval,
		log:     log.With().Str("component", "report-worker").Logger(),
	}
}

// Run blocks until ctx is cancelled or a consumer fails for good.
func (w *ReportWorker) Run(ctx context.Context) error {
	w.log.Info().Int("workers", w.workers).Msg("starting report worker")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			w.consume(ctx, i)
			return nil
		})
	}
	g.Go(func() error {
		w.sweepLoop(ctx)
		return nil
	})
	err := g.Wait()
	w.log.Info().Msg("report worker stopped")
	return err
}

// Start runs the worker in the background until Stop is called.
func (w *ReportWorker) Start(parent context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.done = make(chan error, 1)
	go func() { w.done <- w.Run(ctx) }()
}

// Stop cancels a worker started with Start and waits for it to drain.
func (w *ReportWorker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return <-done
}

func (w *ReportWorker) consume(ctx context.Context, n int) {
	log := w.log.With().Int("consumer", n).Logger()
	for {
		deliveries, err := w.queue.Receive(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("receive report tasks")
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}
		for _, d := range deliveries {
			w.handle(ctx, log, d)
		}
	}
}

// handle processes one task and acknowledges it whatever the outcome; a
// report that could not be processed stays unfinished for the next sweep.
func (w *ReportWorker) handle(ctx context.Context, log zerolog.Logger, d queue.Delivery) {
	id, err := primitive.ObjectIDFromHex(d.Task.ReportID)
	if err != nil {
		log.Warn().Str("task", d.Task.ReportID).Msg("dropping malformed report task")
	} else if err := w.reports.Process(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("report", d.Task.ReportID).Msg("process report")
	}
	if err := w.queue.Ack(ctx, d); err != nil {
		log.Warn().Err(err).Str("report", d.Task.ReportID).Msg("ack report task")
	}
}

// sweepLoop re-queues everything unfinished once at start, then only reports
// that have not moved for a whole interval.
func (w *ReportWorker) sweepLoop(ctx context.Context) {
	w.recover(ctx, 0)
	ticker := time.NewTicker(w.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.recover(ctx, w.sweep)
		}
	}
}

func (w *ReportWorker) recover(ctx context.Context, olderThan time.Duration) {
	n, err := w.reports.Recover(ctx, olderThan)
	if err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Msg("recovery sweep incomplete")
	}
	if n > 0 {
		w.log.Info().Int("reports", n).Msg("re-queued unfinished reports")
	}
}

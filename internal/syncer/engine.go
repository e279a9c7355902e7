// Package syncer reconciles the local store with the remote store.
package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
	"github.com/Nselenduna/inventory-sales-app/internal/lease"
	"github.com/Nselenduna/inventory-sales-app/internal/network"
	"github.com/Nselenduna/inventory-sales-app/internal/remote"
	"github.com/Nselenduna/inventory-sales-app/internal/store"
)

var ErrSyncInProgress = errors.New("sync already in progress")

// Record outcomes reported to the Recorder.
const (
	OutcomeSynced         = "synced"
	OutcomeFailed         = "failed"
	OutcomeWriteBackError = "write_back_error"
	OutcomeCreated        = "created"
	OutcomeUpdated        = "updated"
	OutcomeSkipped        = "skipped"
)

// Run results reported to the Recorder.
const (
	RunCompleted   = "completed"
	RunOffline     = "offline"
	RunLeaseHeld   = "lease_held"
	RunWithFailure = "completed_with_failures"
)

// Connectivity is the part of the network monitor the engine reads.
type Connectivity interface {
	IsOnline() bool
	Subscribe(fn network.Listener) func()
}

type Lease interface {
	TryAcquire(ctx context.Context) (lease.Release, bool, error)
}

type ReportSink interface {
	SaveReport(ctx context.Context, report domain.SyncReport) error
}

type Recorder interface {
	ObserveRecord(collection domain.Collection, outcome string)
	ObserveRun(result string, elapsed time.Duration)
}

type Options struct {
	Lease   Lease
	Reports ReportSink
	Metrics Recorder
	Logger  zerolog.Logger
	Now     func() time.Time
}

type Engine struct {
	repo    store.Repository
	remote  remote.Client
	net     Connectivity
	lease   Lease
	reports ReportSink
	metrics Recorder
	log     zerolog.Logger
	now     func() time.Time

	group   singleflight.Group
	syncing atomic.Bool
	spawned sync.WaitGroup
	cycles  sync.WaitGroup
}

func New(repo store.Repository, client remote.Client, net Connectivity, opts Options) *Engine {
	e := &Engine{
		repo:    repo,
		remote:  client,
		net:     net,
		lease:   opts.Lease,
		reports: opts.Reports,
		metrics: opts.Metrics,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if e.lease == nil {
		e.lease = lease.Noop{}
	}
	if e.metrics == nil {
		e.metrics = nopRecorder{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

type cycleResult struct {
	report domain.SyncReport
	ran    bool
}

// IsSyncing reports whether a cycle is in flight in this process.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// Reconcile runs one cycle when online and reports whether it ran. Calls made
// while a cycle is in flight join it and share its report. A cycle already
// started keeps running if ctx ends; the caller then gets ran=false.
func (e *Engine) Reconcile(ctx context.Context) (domain.SyncReport, bool) {
	if !e.net.IsOnline() {
		e.metrics.ObserveRun(RunOffline, 0)
		e.log.Debug().Msg("offline, reconcile skipped")
		return domain.SyncReport{}, false
	}

	e.cycles.Add(1)
	ch := e.group.DoChan("reconcile", func() (any, error) {
		return e.run(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		e.cycles.Done()
		out := res.Val.(cycleResult)
		return out.report, out.ran
	case <-ctx.Done():
		// The cycle runs on; Wait still covers it.
		go func() {
			<-ch
			e.cycles.Done()
		}()
		return domain.SyncReport{}, false
	}
}

// ReconcileInBackground starts Reconcile on its own goroutine. Wait blocks
// until the cycle it started or joined has finished.
func (e *Engine) ReconcileInBackground(ctx context.Context) {
	e.spawned.Add(1)
	go func() {
		defer e.spawned.Done()
		e.Reconcile(ctx)
	}()
}

// TriggerManual is the user-initiated sync. Unlike Reconcile it refuses to
// join a cycle that is already running.
func (e *Engine) TriggerManual(ctx context.Context) (domain.SyncReport, bool, error) {
	if e.IsSyncing() {
		return domain.SyncReport{}, false, ErrSyncInProgress
	}
	report, ran := e.Reconcile(ctx)
	return report, ran, nil
}

// Watch starts a background Reconcile on every online signal and returns the
// unsubscribe function. Repeated signals coalesce into the running cycle.
func (e *Engine) Watch(ctx context.Context) func() {
	return e.net.Subscribe(func(online bool) {
		if !online || ctx.Err() != nil {
			return
		}
		e.ReconcileInBackground(ctx)
	})
}

// Wait blocks until every background reconcile and every cycle it joined has
// finished, including cycles whose callers gave up on a cancelled context.
// Callers stop producing new cycles before calling Wait.
func (e *Engine) Wait() {
	e.spawned.Wait()
	e.cycles.Wait()
}

func (e *Engine) run(ctx context.Context) cycleResult {
	e.syncing.Store(true)
	defer e.syncing.Store(false)

	release, ok, err := e.lease.TryAcquire(ctx)
	switch {
	case err != nil:
		e.log.Warn().Err(err).Msg("lease unavailable, reconciling without it")
	case !ok:
		e.metrics.ObserveRun(RunLeaseHeld, 0)
		e.log.Info().Msg("another process holds the reconcile lease")
		return cycleResult{}
	default:
		defer func() {
			if err := release(ctx); err != nil {
				e.log.Warn().Err(err).Msg("release reconcile lease")
			}
		}()
	}

	started := e.now()
	report := domain.SyncReport{StartedAt: started.UTC()}

	// Sales and movements reference items by remote id; they wait for this
	// cycle's item push before giving up on an item without one.
	itemsPushed := make(chan struct{})

	var g errgroup.Group
	g.Go(func() error {
		defer close(itemsPushed)
		report.Items = e.pushItems(ctx)
		return nil
	})
	g.Go(func() error {
		report.Sales = e.pushSales(ctx, itemsPushed)
		return nil
	})
	g.Go(func() error {
		report.StockMovements = e.pushStockMovements(ctx, itemsPushed)
		return nil
	})
	g.Go(func() error {
		report.Pull = e.pullItems(ctx)
		return nil
	})
	_ = g.Wait()

	report.FinishedAt = e.now().UTC()
	elapsed := report.FinishedAt.Sub(report.StartedAt)

	result := RunCompleted
	if report.Failed() > 0 || report.Pull.Failed > 0 {
		result = RunWithFailure
	}
	e.metrics.ObserveRun(result, elapsed)

	if e.reports != nil {
		if err := e.reports.SaveReport(ctx, report); err != nil {
			e.log.Warn().Err(err).Msg("save sync report")
		}
	}

	e.log.Info().
		Dur("elapsed", elapsed).
		Int("items_synced", report.Items.Synced).
		Int("sales_synced", report.Sales.Synced).
		Int("movements_synced", report.StockMovements.Synced).
		Int("pulled", report.Pull.Pulled).
		Int("failed", report.Failed()).
		Msg("reconcile finished")

	return cycleResult{report: report, ran: true}
}

type nopRecorder struct{}

func (nopRecorder) ObserveRecord(domain.Collection, string) {}
func (nopRecorder) ObserveRun(string, time.Duration)        {}

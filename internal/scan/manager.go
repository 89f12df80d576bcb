package scan

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Observer receives per-probe instrumentation callbacks. Implementations must
// be safe for concurrent use.
type Observer interface {
	ProbeStarted()
	ProbeFinished(outcome Outcome, elapsed time.Duration)
	ProbePanicked()
}

type nopObserver struct{}

func (nopObserver) ProbeStarted()                        {}
func (nopObserver) ProbeFinished(Outcome, time.Duration) {}
func (nopObserver) ProbePanicked()                       {}

// Manager fans probes out over a bounded number of goroutines and gathers
// the live hosts.
type Manager struct {
	prober      HostProber
	concurrency int
	config      Config
	logger      *zap.Logger
	observer    Observer

	statusHandler func(Progress)

	running atomic.Bool
	active  atomic.Int64
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithObserver attaches probe instrumentation.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithProgress registers a callback invoked after every completed target.
// Calls are serialised; the callback does not need its own locking.
func WithProgress(fn func(Progress)) ManagerOption {
	return func(m *Manager) {
		m.statusHandler = fn
	}
}

// NewManager creates a Manager that admits at most cfg.Concurrency probes at once.
func NewManager(cfg Config, prober HostProber, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = 1
	}
	m := &Manager{
		prober:      prober,
		concurrency: limit,
		config:      cfg,
		logger:      logger.With(zap.String("component", "manager")),
		observer:    nopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Scan enumerates the subnet and runs every address through Run.
func (m *Manager) Scan(ctx context.Context, subnet Subnet) (Snapshot, error) {
	targets, total := subnet.All(), subnet.Size()
	if m.config.ExcludeEdges {
		targets, total = subnet.Hosts(), subnet.HostCount()
	}
	snapshot, err := m.Run(ctx, targets, int(total))
	snapshot.Subnet = subnet.String()
	return snapshot, err
}

// Run probes every target exactly once and returns the live hosts in
// ascending address order. If ctx is cancelled no further targets are
// admitted and the partial snapshot is returned together with ctx.Err().
func (m *Manager) Run(ctx context.Context, targets iter.Seq[Address], total int) (Snapshot, error) {
	if !m.running.CompareAndSwap(false, true) {
		return Snapshot{}, ErrScanInProgress
	}
	defer m.running.Store(false)

	snapshot := Snapshot{
		ID:      uuid.NewString(),
		Config:  m.config,
		Started: time.Now().UTC(),
	}
	logger := m.logger.With(zap.String("scan_id", snapshot.ID))
	logger.Info("scan started", zap.Int("targets", total), zap.Int("concurrency", m.concurrency))

	sem := semaphore.NewWeighted(int64(m.concurrency))
	outcomes := make(chan Outcome, m.concurrency)

	progress := Progress{Total: total, Status: StatusRunning}
	var live []Outcome
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for outcome := range outcomes {
			progress.Completed++
			if outcome.Live() {
				live = append(live, outcome)
				progress.Live++
			}
			progress.Active = int(m.active.Load())
			m.emitStatus(progress)
		}
	}()

	var wg sync.WaitGroup
	var runErr error
	for addr := range targets {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = err
			break
		}
		m.active.Add(1)
		wg.Add(1)
		go func(addr Address) {
			defer wg.Done()
			defer sem.Release(1)
			outcome := m.probeTarget(ctx, logger, addr)
			m.active.Add(-1)
			outcomes <- outcome
		}(addr)
	}

	wg.Wait()
	close(outcomes)
	<-collected

	if runErr == nil {
		runErr = ctx.Err()
	}

	sort.Slice(live, func(i, j int) bool {
		return live[i].Address < live[j].Address
	})

	progress.Active = 0
	progress.Status = StatusCompleted
	if runErr != nil {
		progress.Status = StatusCancelled
	}
	m.emitStatus(progress)

	snapshot.Progress = progress
	snapshot.Hosts = live
	snapshot.Finished = time.Now().UTC()

	logger.Info("scan finished",
		zap.String("status", string(progress.Status)),
		zap.Int("completed", progress.Completed),
		zap.Int("live", progress.Live),
		zap.Duration("elapsed", snapshot.Finished.Sub(snapshot.Started)),
	)

	if runErr != nil {
		return snapshot, fmt.Errorf("scan interrupted: %w", runErr)
	}
	return snapshot, nil
}

// probeTarget runs the prober and turns a panic into an empty outcome so a
// single misbehaving host cannot take the scan down.
func (m *Manager) probeTarget(ctx context.Context, logger *zap.Logger, addr Address) (outcome Outcome) {
	m.observer.ProbeStarted()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("probe panicked", zap.Stringer("target", addr), zap.Any("panic", r))
			m.observer.ProbePanicked()
			outcome = Outcome{Address: addr}
		}
		m.observer.ProbeFinished(outcome, time.Since(start))
	}()
	return m.prober.Probe(ctx, addr)
}

func (m *Manager) emitStatus(progress Progress) {
	if handler := m.statusHandler; handler != nil {
		handler(progress)
	}
}

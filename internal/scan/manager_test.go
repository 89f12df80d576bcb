package scan

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeFunc func(ctx context.Context, addr Address) Outcome

func (f probeFunc) Probe(ctx context.Context, addr Address) Outcome {
	return f(ctx, addr)
}

func liveOutcome(addr Address) Outcome {
	return Outcome{Address: addr, Methods: []Method{{Protocol: ProtocolTCP, Port: 80}}}
}

type countingObserver struct {
	started  atomic.Int64
	finished atomic.Int64
	panicked atomic.Int64
}

func (o *countingObserver) ProbeStarted()                        { o.started.Add(1) }
func (o *countingObserver) ProbeFinished(Outcome, time.Duration) { o.finished.Add(1) }
func (o *countingObserver) ProbePanicked()                       { o.panicked.Add(1) }

func addresses(t *testing.T, values ...string) []Address {
	t.Helper()
	out := make([]Address, 0, len(values))
	for _, v := range values {
		out = append(out, mustAddr(t, v))
	}
	return out
}

func TestRunSortsRegardlessOfCompletionOrder(t *testing.T) {
	targets := addresses(t, "10.0.0.5", "10.0.0.2", "10.0.0.9")
	delays := map[string]time.Duration{
		"10.0.0.5": 0,
		"10.0.0.2": 60 * time.Millisecond,
		"10.0.0.9": 30 * time.Millisecond,
	}
	prober := probeFunc(func(_ context.Context, addr Address) Outcome {
		time.Sleep(delays[addr.String()])
		return liveOutcome(addr)
	})

	manager := NewManager(DefaultConfig(), prober, nil)
	snapshot, err := manager.Run(context.Background(), slices.Values(targets), len(targets))
	require.NoError(t, err)

	var got []string
	for _, host := range snapshot.Hosts {
		got = append(got, host.Address.String())
	}
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.5", "10.0.0.9"}, got)
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	const (
		limit   = 300
		targets = 1200
	)
	var inFlight, peak, probed atomic.Int64
	prober := probeFunc(func(_ context.Context, addr Address) Outcome {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Duration(1+rand.IntN(5)) * time.Millisecond)
		inFlight.Add(-1)
		probed.Add(1)
		if addr%7 == 0 {
			return liveOutcome(addr)
		}
		return Outcome{Address: addr}
	})

	cfg := DefaultConfig()
	cfg.Concurrency = limit
	manager := NewManager(cfg, prober, nil)

	subnet, err := ParseSubnet("10.20.0.0/21")
	require.NoError(t, err)
	seq := func(yield func(Address) bool) {
		i := 0
		for addr := range subnet.All() {
			if i == targets || !yield(addr) {
				return
			}
			i++
		}
	}

	snapshot, err := manager.Run(context.Background(), seq, targets)
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int64(limit))
	assert.Positive(t, peak.Load())
	assert.Equal(t, int64(targets), probed.Load())
	assert.Equal(t, targets, snapshot.Progress.Completed)
	assert.True(t, slices.IsSortedFunc(snapshot.Hosts, func(a, b Outcome) int {
		return int(a.Address) - int(b.Address)
	}))
	for _, host := range snapshot.Hosts {
		assert.Zero(t, host.Address%7)
	}
}

func TestRunProbesEveryTargetOnce(t *testing.T) {
	var mu sync.Mutex
	seen := map[Address]int{}
	prober := probeFunc(func(_ context.Context, addr Address) Outcome {
		mu.Lock()
		seen[addr]++
		mu.Unlock()
		return Outcome{Address: addr}
	})

	cfg := DefaultConfig()
	cfg.Concurrency = 16
	manager := NewManager(cfg, prober, nil)

	subnet, err := ParseSubnet("10.0.0.0/24")
	require.NoError(t, err)
	snapshot, err := manager.Scan(context.Background(), subnet)
	require.NoError(t, err)

	assert.Len(t, seen, 256)
	for addr, n := range seen {
		assert.Equal(t, 1, n, "address %s", addr)
	}
	assert.Empty(t, snapshot.Hosts)
	assert.Equal(t, StatusCompleted, snapshot.Progress.Status)
}

func TestScanExcludeEdges(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	prober := probeFunc(func(_ context.Context, addr Address) Outcome {
		mu.Lock()
		seen = append(seen, addr.String())
		mu.Unlock()
		return liveOutcome(addr)
	})

	cfg := DefaultConfig()
	cfg.ExcludeEdges = true
	manager := NewManager(cfg, prober, nil)

	subnet, err := ParseSubnet("192.168.1.0/30")
	require.NoError(t, err)
	snapshot, err := manager.Scan(context.Background(), subnet)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"192.168.1.1", "192.168.1.2"}, seen)
	assert.Equal(t, 2, snapshot.Progress.Total)
	assert.Len(t, snapshot.Hosts, 2)
}

func TestRunRecoversFromProbePanic(t *testing.T) {
	targets := addresses(t, "10.0.0.1", "10.0.0.2", "10.0.0.3")
	prober := probeFunc(func(_ context.Context, addr Address) Outcome {
		if addr.String() == "10.0.0.2" {
			panic("boom")
		}
		return liveOutcome(addr)
	})
	observer := &countingObserver{}

	manager := NewManager(DefaultConfig(), prober, nil, WithObserver(observer))
	snapshot, err := manager.Run(context.Background(), slices.Values(targets), len(targets))
	require.NoError(t, err)

	require.Len(t, snapshot.Hosts, 2)
	assert.Equal(t, "10.0.0.1", snapshot.Hosts[0].Address.String())
	assert.Equal(t, "10.0.0.3", snapshot.Hosts[1].Address.String())
	assert.Equal(t, 3, snapshot.Progress.Completed)
	assert.Equal(t, int64(3), observer.started.Load())
	assert.Equal(t, int64(3), observer.finished.Load())
	assert.Equal(t, int64(1), observer.panicked.Load())
}

func TestRunRejectsConcurrentScan(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	prober := probeFunc(func(_ context.Context, addr Address) Outcome {
		once.Do(func() { close(started) })
		<-release
		return Outcome{Address: addr}
	})

	manager := NewManager(DefaultConfig(), prober, nil)
	targets := addresses(t, "10.0.0.1")

	done := make(chan error, 1)
	go func() {
		_, err := manager.Run(context.Background(), slices.Values(targets), 1)
		done <- err
	}()
	<-started

	_, err := manager.Run(context.Background(), slices.Values(targets), 1)
	assert.ErrorIs(t, err, ErrScanInProgress)

	close(release)
	require.NoError(t, <-done)

	// The manager is reusable once the first scan finished.
	_, err = manager.Run(context.Background(), slices.Values(targets), 1)
	assert.NoError(t, err)
}

func TestRunCancellationKeepsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	prober := probeFunc(func(_ context.Context, addr Address) Outcome {
		if calls.Add(1) == 5 {
			cancel()
		}
		return liveOutcome(addr)
	})

	cfg := DefaultConfig()
	cfg.Concurrency = 1
	manager := NewManager(cfg, prober, nil)

	subnet, err := ParseSubnet("10.0.0.0/25")
	require.NoError(t, err)
	snapshot, err := manager.Scan(ctx, subnet)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, snapshot.Progress.Status)
	assert.GreaterOrEqual(t, snapshot.Progress.Completed, 5)
	assert.Less(t, snapshot.Progress.Completed, 128)
	assert.Len(t, snapshot.Hosts, snapshot.Progress.Completed)
	assert.True(t, slices.IsSortedFunc(snapshot.Hosts, func(a, b Outcome) int {
		return int(a.Address) - int(b.Address)
	}))
}

func TestRunAllUnreachable(t *testing.T) {
	prober := probeFunc(func(_ context.Context, addr Address) Outcome {
		return Outcome{Address: addr}
	})
	manager := NewManager(DefaultConfig(), prober, nil)

	subnet, err := ParseSubnet("172.16.0.0/28")
	require.NoError(t, err)
	snapshot, err := manager.Scan(context.Background(), subnet)

	require.NoError(t, err)
	assert.Empty(t, snapshot.Hosts)
	assert.Equal(t, 16, snapshot.Progress.Completed)
	assert.Equal(t, StatusCompleted, snapshot.Progress.Status)
	assert.NotEmpty(t, snapshot.ID)
	assert.False(t, snapshot.Finished.Before(snapshot.Started))
}

func TestRunReportsProgress(t *testing.T) {
	prober := probeFunc(func(_ context.Context, addr Address) Outcome {
		if addr%2 == 0 {
			return liveOutcome(addr)
		}
		return Outcome{Address: addr}
	})

	var updates []Progress
	manager := NewManager(DefaultConfig(), prober, nil, WithProgress(func(p Progress) {
		updates = append(updates, p)
	}))

	subnet, err := ParseSubnet("10.0.0.0/28")
	require.NoError(t, err)
	_, err = manager.Scan(context.Background(), subnet)
	require.NoError(t, err)

	// One update per target plus the final status.
	require.Len(t, updates, 17)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Completed, updates[i-1].Completed)
	}
	last := updates[len(updates)-1]
	assert.Equal(t, Progress{Total: 16, Completed: 16, Active: 0, Live: 8, Status: StatusCompleted}, last)
}

package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

type step struct {
	status offramp.Status
	err    error
}

// scriptedFetcher replays steps and repeats the last one forever.
type scriptedFetcher struct {
	mu       sync.Mutex
	steps    []step
	calls    int
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *scriptedFetcher) CheckOfframpStatus(ctx context.Context, _, referenceID string) (*offramp.StatusSnapshot, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	if n > f.maxSeen.Load() {
		f.maxSeen.Store(n)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	f.calls++
	s := f.steps[i]
	if s.err != nil {
		return nil, s.err
	}
	return &offramp.StatusSnapshot{Status: s.status, ReferenceID: referenceID}, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func runWithTimeout(t *testing.T, p *Poller) {
	t.Helper()
	go p.Run(context.Background())
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		p.Stop()
		t.Fatal("poller did not stop")
	}
}

func TestPoller_StopsOnSuccessful(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{status: offramp.StatusProcessing},
		{status: offramp.StatusSuccessful},
		{status: offramp.StatusProcessing},
	}}
	p := New(f, Config{ProviderUUID: "p1", ReferenceID: "ref-1", Interval: 5 * time.Millisecond})

	runWithTimeout(t, p)

	assert.Equal(t, 2, f.Calls(), "no fetch should follow a terminal status")
	snap := p.Snapshot()
	assert.Equal(t, StateFound, snap.State)
	assert.Equal(t, offramp.StatusSuccessful, snap.Status.Status)
	assert.True(t, snap.Terminal())
	assert.False(t, snap.Running)
}

func TestPoller_LoadingThenNotFound(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{err: apperrors.ErrStatusNotFound},
		{status: offramp.StatusCancelled},
	}}
	p := New(f, Config{ReferenceID: "ref-1", Interval: 20 * time.Millisecond})

	assert.Equal(t, StateLoading, p.Snapshot().State)

	go p.Run(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return f.Calls() >= 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		s := p.Snapshot()
		return s.State == StateNotFound || s.State == StateFound
	}, time.Second, time.Millisecond)

	<-p.Done()
	assert.Equal(t, offramp.StatusCancelled, p.Snapshot().Status.Status)
}

func TestPoller_TransientErrorKeepsSnapshot(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{status: offramp.StatusProcessing},
		{err: apperrors.ErrBackendUnavailable},
	}}
	p := New(f, Config{ReferenceID: "ref-1", Interval: 5 * time.Millisecond})

	go p.Run(context.Background())
	require.Eventually(t, func() bool { return f.Calls() >= 3 }, time.Second, time.Millisecond)
	p.Stop()
	<-p.Done()

	snap := p.Snapshot()
	assert.Equal(t, StateFound, snap.State)
	assert.Equal(t, offramp.StatusProcessing, snap.Status.Status)
	assert.NotEmpty(t, snap.LastError)
}

func TestPoller_ContextCancel(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: offramp.StatusPending}}}
	p := New(f, Config{ReferenceID: "ref-1", Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	require.Eventually(t, func() bool { return f.Calls() >= 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("poller ignored context cancellation")
	}
}

func TestPoller_SingleFetchInFlight(t *testing.T) {
	f := &scriptedFetcher{
		steps: []step{{status: offramp.StatusPending}},
		delay: 30 * time.Millisecond,
	}
	p := New(f, Config{ReferenceID: "ref-1", Interval: 2 * time.Millisecond})

	go p.Run(context.Background())
	time.Sleep(150 * time.Millisecond)
	p.Stop()
	<-p.Done()

	assert.Equal(t, int32(1), f.maxSeen.Load())
	assert.LessOrEqual(t, f.Calls(), 6, "ticks during a fetch should be dropped")
}

func TestPoller_OnChangeOnlyOnNewStatus(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{status: offramp.StatusPending},
		{status: offramp.StatusPending},
		{status: offramp.StatusProcessing},
		{status: offramp.StatusSuccessful},
	}}

	var mu sync.Mutex
	var seen []offramp.Status
	p := New(f, Config{
		ReferenceID: "ref-1",
		Interval:    2 * time.Millisecond,
		OnChange: func(_ context.Context, s offramp.StatusSnapshot) {
			mu.Lock()
			seen = append(seen, s.Status)
			mu.Unlock()
		},
	})

	runWithTimeout(t, p)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []offramp.Status{offramp.StatusPending, offramp.StatusProcessing, offramp.StatusSuccessful}, seen)
}

func TestRegistry_OnePollerPerKey(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: offramp.StatusPending}}}
	r := NewRegistry(f, 5*time.Millisecond)
	defer r.StopAll()

	p1, started := r.Start(context.Background(), "sess-1", Config{ReferenceID: "ref-1"})
	require.True(t, started)

	p2, started := r.Start(context.Background(), "sess-1", Config{ReferenceID: "ref-1"})
	assert.False(t, started)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, r.Len())

	r.Stop("sess-1")
	_, ok := r.Get("sess-1")
	assert.False(t, ok)
}

func TestRegistry_StopAll(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: offramp.StatusPending}}}
	r := NewRegistry(f, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	a, _ := r.Start(ctx, "a", Config{ReferenceID: "ref-a"})
	b, _ := r.Start(ctx, "b", Config{ReferenceID: "ref-b"})
	cancel()

	// pollers outlive the request context that started them
	time.Sleep(20 * time.Millisecond)
	assert.True(t, a.Snapshot().Running)

	r.StopAll()
	for _, p := range []*Poller{a, b} {
		select {
		case <-p.Done():
		default:
			t.Fatal("StopAll should wait for every poller")
		}
	}
}

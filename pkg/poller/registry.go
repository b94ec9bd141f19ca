package poller

import (
	"context"
	"sync"
	"time"
)

// Registry owns at most one poller per key, usually the session id.
type Registry struct {
	fetcher  Fetcher
	interval time.Duration

	mu      sync.Mutex
	pollers map[string]*Poller
	wg      sync.WaitGroup
}

func NewRegistry(f Fetcher, interval time.Duration) *Registry {
	return &Registry{
		fetcher:  f,
		interval: interval,
		pollers:  make(map[string]*Poller),
	}
}

// Start launches a poller for key unless one is already running or has
// already seen a terminal status, in which case that poller is returned
// with started set to false. The poller outlives ctx's cancellation but
// keeps its values for logging and tracing.
func (r *Registry) Start(ctx context.Context, key string, cfg Config) (p *Poller, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.pollers[key]; ok {
		select {
		case <-existing.Done():
			if existing.Snapshot().Terminal() {
				return existing, false
			}
		default:
			return existing, false
		}
	}

	if cfg.Interval <= 0 {
		cfg.Interval = r.interval
	}
	p = New(r.fetcher, cfg)
	r.pollers[key] = p

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		p.Run(context.WithoutCancel(ctx))
	}()
	return p, true
}

func (r *Registry) Get(key string) (*Poller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pollers[key]
	return p, ok
}

// Stop halts the poller for key and forgets it.
func (r *Registry) Stop(key string) {
	r.mu.Lock()
	p, ok := r.pollers[key]
	delete(r.pollers, key)
	r.mu.Unlock()

	if ok {
		p.Stop()
		<-p.Done()
	}
}

func (r *Registry) StopAll() {
	r.mu.Lock()
	all := make([]*Poller, 0, len(r.pollers))
	for _, p := range r.pollers {
		all = append(all, p)
	}
	r.mu.Unlock()

	for _, p := range all {
		p.Stop()
	}
	r.wg.Wait()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pollers)
}

// Package poller watches the provider status of an executed offramp until
// the payout settles.
package poller

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/metrics"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

const DefaultInterval = 10 * time.Second

type Fetcher interface {
	CheckOfframpStatus(ctx context.Context, providerUUID, referenceID string) (*offramp.StatusSnapshot, error)
}

// State separates "nothing fetched yet" from "fetched and empty".
type State string

const (
	StateLoading  State = "loading"
	StateNotFound State = "not_found"
	StateFound    State = "found"
)

type Snapshot struct {
	State       State                   `json:"state"`
	Status      *offramp.StatusSnapshot `json:"status,omitempty"`
	LastError   string                  `json:"lastError,omitempty"`
	Polls       int                     `json:"polls"`
	Running     bool                    `json:"running"`
	ReferenceID string                  `json:"referenceId"`
	UpdatedAt   time.Time               `json:"updatedAt,omitempty"`
}

// Terminal reports whether the last status read ends polling.
func (s Snapshot) Terminal() bool {
	return s.State == StateFound && s.Status != nil && s.Status.Status.IsTerminal()
}

type Config struct {
	ProviderUUID string
	ReferenceID  string
	Interval     time.Duration
	// OnChange is called from the polling goroutine whenever the status
	// value differs from the previous reading.
	OnChange func(ctx context.Context, status offramp.StatusSnapshot)
}

type Poller struct {
	fetcher Fetcher
	cfg     Config

	mu   sync.RWMutex
	snap Snapshot

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(f Fetcher, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		fetcher: f,
		cfg:     cfg,
		snap:    Snapshot{State: StateLoading, ReferenceID: cfg.ReferenceID},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run fetches immediately and then once per interval. It returns when the
// status becomes terminal, when Stop is called or when ctx is cancelled.
// Only one fetch is ever in flight; ticks that fire during a fetch are
// dropped.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	metrics.IncActivePollers()
	defer metrics.DecActivePollers()

	p.setRunning(true)
	defer p.setRunning(false)

	log := logger.WithContext(ctx)
	log.Info().Str("reference_id", p.cfg.ReferenceID).Dur("interval", p.cfg.Interval).Msg("Status polling started")

	if p.fetch(ctx) {
		log.Info().Str("reference_id", p.cfg.ReferenceID).Msg("Status polling finished")
		return
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("reference_id", p.cfg.ReferenceID).Msg("Status polling stopped")
			return
		case <-ticker.C:
			if p.fetch(ctx) {
				log.Info().Str("reference_id", p.cfg.ReferenceID).Msg("Status polling finished")
				return
			}
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// fetch performs one status read and reports whether polling should end.
func (p *Poller) fetch(ctx context.Context) bool {
	status, err := p.fetcher.CheckOfframpStatus(ctx, p.cfg.ProviderUUID, p.cfg.ReferenceID)
	if ctx.Err() != nil {
		return true
	}

	p.mu.Lock()
	p.snap.Polls++
	p.snap.UpdatedAt = time.Now().UTC()

	switch {
	case err == nil:
		metrics.RecordStatusPoll("found")
		prev := p.snap.Status
		p.snap.State = StateFound
		p.snap.Status = status
		p.snap.LastError = ""
		terminal := status.Status.IsTerminal()
		changed := prev == nil || prev.Status != status.Status
		p.mu.Unlock()

		if changed && p.cfg.OnChange != nil {
			p.cfg.OnChange(ctx, *status)
		}
		return terminal

	case apperrors.IsNotFound(err):
		metrics.RecordStatusPoll("not_found")
		p.snap.State = StateNotFound
		p.snap.Status = nil
		p.snap.LastError = ""
		p.mu.Unlock()
		return false

	default:
		metrics.RecordStatusPoll("error")
		p.snap.LastError = err.Error()
		p.mu.Unlock()
		logger.WithContext(ctx).Warn().Err(err).Str("reference_id", p.cfg.ReferenceID).Msg("Status fetch failed, keeping last snapshot")
		return false
	}
}

func (p *Poller) setRunning(running bool) {
	p.mu.Lock()
	p.snap.Running = running
	p.mu.Unlock()
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.snap
	if s.Status != nil {
		st := *s.Status
		s.Status = &st
	}
	return s
}

func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Poller) Done() <-chan struct{} {
	return p.done
}

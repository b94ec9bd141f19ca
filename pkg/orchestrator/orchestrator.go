// Package orchestrator drives one offramp session through request creation,
// wallet resolution, the on-chain transfer, execution and status polling.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rahataid/rahat-offramp/pkg/backend"
	"github.com/rahataid/rahat-offramp/pkg/chain"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/events"
	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/metrics"
	"github.com/rahataid/rahat-offramp/pkg/poller"
	"github.com/rahataid/rahat-offramp/pkg/provider"
	"github.com/rahataid/rahat-offramp/pkg/recipient"
	"github.com/rahataid/rahat-offramp/pkg/session"
	"github.com/rahataid/rahat-offramp/pkg/telemetry"
)

// Ledger keeps a durable record of every transition.
type Ledger interface {
	RecordTransition(ctx context.Context, s *session.Session, from session.State) error
}

type Config struct {
	// Chain and Token are bound from configuration, never chosen per request.
	Chain   string
	ChainID int64
	Token   string
	Tokens  chain.Tokens

	ExecuteIdempotent bool
	MaxExecuteRetries int
	PollInterval      time.Duration

	// Source names the publisher in emitted events.
	Source string
}

type Deps struct {
	Backend   backend.API
	Catalog   *provider.Catalog
	Store     session.Store
	Signer    chain.Signer
	Receipts  chain.ReceiptWaiter
	Publisher events.Publisher
	Pollers   *poller.Registry
	Ledger    Ledger
}

type Orchestrator struct {
	cfg        Config
	api        backend.API
	catalog    *provider.Catalog
	recipients *recipient.Service
	store      session.Store
	signer     chain.Signer
	receipts   chain.ReceiptWaiter
	publisher  events.Publisher
	pollers    *poller.Registry
	ledger     Ledger

	locks sync.Map
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.Tokens == nil {
		cfg.Tokens = chain.DefaultTokens()
	}
	if cfg.MaxExecuteRetries <= 0 {
		cfg.MaxExecuteRetries = 3
	}
	if cfg.Source == "" {
		cfg.Source = "offramp-orchestrator"
	}
	if deps.Catalog == nil {
		deps.Catalog = provider.NewCatalog(nil)
	}
	if deps.Store == nil {
		deps.Store = session.NewMemoryStore()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	if deps.Pollers == nil {
		deps.Pollers = poller.NewRegistry(deps.Backend, cfg.PollInterval)
	}
	if deps.Receipts == nil {
		if w, ok := deps.Signer.(chain.ReceiptWaiter); ok {
			deps.Receipts = w
		}
	}

	return &Orchestrator{
		cfg:        cfg,
		api:        deps.Backend,
		catalog:    deps.Catalog,
		recipients: recipient.NewService(deps.Backend),
		store:      deps.Store,
		signer:     deps.Signer,
		receipts:   deps.Receipts,
		publisher:  deps.Publisher,
		pollers:    deps.Pollers,
		ledger:     deps.Ledger,
	}
}

func (o *Orchestrator) Catalog() *provider.Catalog { return o.catalog }

func (o *Orchestrator) Pollers() *poller.Registry { return o.pollers }

// lock serialises every operation on one session.
func (o *Orchestrator) lock(id string) func() {
	v, _ := o.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// load fetches a session and rejects any operation once it was cancelled.
func (o *Orchestrator) load(ctx context.Context, id string) (*session.Session, error) {
	s, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.State == session.StateCancelled {
		return nil, apperrors.ErrRequestCancelled.WithDetails(id)
	}
	return s, nil
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*session.Session, error) {
	return o.store.Get(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context) ([]*session.Session, error) {
	return o.store.List(ctx)
}

func requireState(s *session.Session, allowed ...session.State) error {
	for _, a := range allowed {
		if s.State == a {
			return nil
		}
	}
	return apperrors.ErrInvalidState.WithMessagef("session is %s, expected %v", s.State, allowed)
}

// transition moves s to state to and persists it. A nil cause clears the
// last error.
func (o *Orchestrator) transition(ctx context.Context, s *session.Session, to session.State, cause error) error {
	from := s.State
	s.State = to
	if cause != nil {
		s.LastError = cause.Error()
	} else {
		s.LastError = ""
	}

	if err := o.store.Save(ctx, s); err != nil {
		s.State = from
		return err
	}

	log := logger.WithContext(logger.WithSession(ctx, s.ID))
	ev := log.Info()
	if cause != nil {
		ev = log.Warn().Err(cause)
	}
	ev.Str("from", string(from)).
		Str("to", string(to)).
		Str("request_id", s.RequestID).
		Msg("Offramp session transition")

	metrics.RecordStageTransition(string(from), string(to))
	telemetry.AddEvent(ctx, "offramp.transition",
		attribute.String("offramp.session_id", s.ID),
		attribute.String("offramp.from", string(from)),
		attribute.String("offramp.to", string(to)),
	)

	o.publish(ctx, events.TopicSessionTransition, events.EventTypeSessionTransition, s.ID, events.SessionTransitionPayload{
		SessionID:    s.ID,
		From:         string(from),
		To:           string(to),
		ProviderUUID: s.ProviderUUID,
		RequestID:    s.RequestID,
		TxHash:       s.TxHash,
		ReferenceID:  s.ReferenceID,
		Error:        s.LastError,
		At:           s.UpdatedAt,
	})

	if o.ledger != nil {
		if err := o.ledger.RecordTransition(ctx, s, from); err != nil {
			log.Error().Err(err).Msg("Failed to record transition in ledger")
		}
	}
	return nil
}

// save persists s without a state change.
func (o *Orchestrator) save(ctx context.Context, s *session.Session) error {
	return o.store.Save(ctx, s)
}

// publish never fails the flow; a lost event is logged.
func (o *Orchestrator) publish(ctx context.Context, topic, eventType, sessionID string, payload any) {
	event := events.NewEvent(eventType, o.cfg.Source, payload).WithCorrelationID(sessionID)
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		event.WithMetadata("trace_id", traceID)
	}
	if err := o.publisher.Publish(ctx, topic, event); err != nil {
		logger.WithContext(ctx).Warn().Err(err).Str("topic", topic).Msg("Failed to publish offramp event")
	}
}

// Shutdown stops every running status poller.
func (o *Orchestrator) Shutdown() {
	o.pollers.StopAll()
}

// CountActive reports the number of sessions that have not reached a
// terminal state.
func (o *Orchestrator) CountActive(ctx context.Context) (int, error) {
	list, err := o.store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range list {
		if !s.State.IsTerminal() {
			n++
		}
	}
	metrics.SetActiveSessions(n)
	return n, nil
}

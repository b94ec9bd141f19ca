package orchestrator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/events"
	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
	"github.com/rahataid/rahat-offramp/pkg/poller"
	"github.com/rahataid/rahat-offramp/pkg/session"
	"github.com/rahataid/rahat-offramp/pkg/telemetry"
)

// BuildExecutePayload assembles the execution body. It refuses anything but
// a confirmed receipt for the session's own transaction hash.
func BuildExecutePayload(s *session.Session) (offramp.ExecutePayload, error) {
	if s.Receipt == nil || s.Receipt.Status != offramp.ReceiptConfirmed {
		return offramp.ExecutePayload{}, apperrors.ErrInvalidState.WithMessage("execution requires a confirmed transfer receipt")
	}
	if s.Receipt.TxHash != s.TxHash || s.TxHash == "" {
		return offramp.ExecutePayload{}, apperrors.ErrMissingTxHash.WithMessage("receipt does not belong to the submitted transaction")
	}
	if s.Recipient == nil || s.FiatWallet == nil {
		return offramp.ExecutePayload{}, apperrors.ErrInvalidState.WithMessage("recipient and fiat wallet must be resolved before execution")
	}

	requestUUID := s.RequestUUID
	if requestUUID == "" {
		requestUUID = s.RequestID
	}

	return offramp.ExecutePayload{
		ProviderUUID: s.ProviderUUID,
		RequestUUID:  requestUUID,
		Data: offramp.ExecuteData{
			MobileMoneyReceiver: offramp.MobileMoneyReceiver{
				NetworkProvider: s.Recipient.Network,
				PhoneNumber:     s.Recipient.PhoneNumber,
				AccountName:     s.Recipient.AccountName,
			},
			Currency:        s.FiatWallet.Currency,
			Chain:           s.Chain,
			Token:           s.Token,
			CryptoAmount:    s.Amount,
			SenderAddress:   s.SenderAddress,
			WalletID:        s.FiatWallet.ID,
			RequestID:       s.RequestID,
			CustomerKey:     s.Recipient.CustomerKey,
			TransactionHash: s.Receipt.TxHash,
		},
	}, nil
}

// Execute submits the confirmed transfer for reconciliation and starts
// status polling on success.
func (o *Orchestrator) Execute(ctx context.Context, id string) (*session.Session, error) {
	unlock := o.lock(id)
	defer unlock()

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(s, session.StateTransferConfirmed); err != nil {
		return nil, err
	}
	return o.execute(ctx, s)
}

// RetryExecution resubmits after an execution failure. It is always a user
// decision; automatic resubmission inside execute depends on
// ExecuteIdempotent.
func (o *Orchestrator) RetryExecution(ctx context.Context, id string) (*session.Session, error) {
	unlock := o.lock(id)
	defer unlock()

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(s, session.StateExecutionFailed); err != nil {
		return nil, err
	}
	return o.execute(ctx, s)
}

func (o *Orchestrator) execute(ctx context.Context, s *session.Session) (*session.Session, error) {
	ctx, span := telemetry.StartSessionSpan(ctx, "execute", s.ID)
	defer span.End()

	payload, err := BuildExecutePayload(s)
	if err != nil {
		return nil, err
	}

	if err := o.transition(ctx, s, session.StateExecutionPending, nil); err != nil {
		return nil, err
	}

	var res *offramp.ExecuteResult
	submit := func() error {
		s.ExecuteAttempts++
		var err error
		res, err = o.api.ExecuteRequest(ctx, payload)
		if err != nil && !apperrors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if o.cfg.ExecuteIdempotent {
		b := backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(500*time.Millisecond),
			backoff.WithMaxInterval(5*time.Second),
		)
		err = backoff.Retry(submit, backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.cfg.MaxExecuteRetries)), ctx))
	} else {
		s.ExecuteAttempts++
		res, err = o.api.ExecuteRequest(ctx, payload)
	}

	if err != nil {
		telemetry.RecordError(ctx, err)
		if terr := o.transition(ctx, s, session.StateExecutionFailed, err); terr != nil {
			return nil, terr
		}
		return s, err
	}

	s.ReferenceID = res.ReferenceID
	s.LastStatus = res.Status
	if err := o.transition(ctx, s, session.StateExecutionComplete, nil); err != nil {
		return nil, err
	}

	o.startPoller(ctx, s)
	return s, nil
}

func (o *Orchestrator) startPoller(ctx context.Context, s *session.Session) *poller.Poller {
	id := s.ID
	providerUUID := s.ProviderUUID

	p, started := o.pollers.Start(logger.WithSession(ctx, id), id, poller.Config{
		ProviderUUID: providerUUID,
		ReferenceID:  s.ReferenceID,
		OnChange: func(ctx context.Context, st offramp.StatusSnapshot) {
			o.onStatus(ctx, id, providerUUID, st)
		},
	})
	if started {
		logger.WithContext(ctx).Info().Str("session_id", id).Str("reference_id", s.ReferenceID).Msg("Started status poller")
	}
	return p
}

func (o *Orchestrator) onStatus(ctx context.Context, id, providerUUID string, st offramp.StatusSnapshot) {
	unlock := o.lock(id)
	defer unlock()

	s, err := o.store.Get(ctx, id)
	if err != nil {
		logger.WithContext(ctx).Warn().Err(err).Str("session_id", id).Msg("Status update for unknown session")
		return
	}
	s.LastStatus = st.Status
	if err := o.save(ctx, s); err != nil {
		logger.WithContext(ctx).Error().Err(err).Str("session_id", id).Msg("Failed to save status update")
	}

	o.publish(ctx, events.TopicStatusChanged, events.EventTypeStatusChanged, id, events.StatusChangedPayload{
		SessionID:    id,
		ProviderUUID: providerUUID,
		ReferenceID:  st.ReferenceID,
		Status:       string(st.Status),
		FiatAmount:   st.FiatAmount.String(),
		CryptoAmount: st.CryptoAmount.String(),
	})
}

// Status returns the poller snapshot, restarting polling for an executed
// session whose poller is gone (for example after a restart).
func (o *Orchestrator) Status(ctx context.Context, id string) (poller.Snapshot, error) {
	s, err := o.store.Get(ctx, id)
	if err != nil {
		return poller.Snapshot{}, err
	}
	if s.ReferenceID == "" {
		return poller.Snapshot{}, apperrors.ErrInvalidState.WithMessage("session has not been executed yet")
	}

	if p, ok := o.pollers.Get(id); ok {
		return p.Snapshot(), nil
	}
	if s.State == session.StateCancelled {
		return poller.Snapshot{State: poller.StateLoading, ReferenceID: s.ReferenceID}, nil
	}
	return o.startPoller(ctx, s).Snapshot(), nil
}

// Retry resumes a failed session from its current stage. A failed transfer
// with a hash but no receipt is watched again, never resent.
func (o *Orchestrator) Retry(ctx context.Context, id, connected string) (*session.Session, error) {
	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch s.State {
	case session.StateTransferFailed:
		if transferSafeToRetry(s) {
			return o.RetryTransfer(ctx, id, connected)
		}
		return o.RewaitReceipt(ctx, id)
	case session.StateExecutionFailed:
		return o.RetryExecution(ctx, id)
	}
	return nil, apperrors.ErrInvalidState.WithMessagef("nothing to retry in state %s", s.State)
}

// Cancel stops the flow for good. Every later operation on the session
// fails with ErrRequestCancelled. An executed session cannot be called
// back, so cancelling it only stops status polling.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*session.Session, error) {
	s, err := o.cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	// the poller callback takes the session lock, so stop it only after
	// the lock is released
	o.pollers.Stop(id)
	return s, nil
}

func (o *Orchestrator) cancel(ctx context.Context, id string) (*session.Session, error) {
	unlock := o.lock(id)
	defer unlock()

	s, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.State.IsTerminal() {
		return s, nil
	}
	if err := o.transition(ctx, s, session.StateCancelled, nil); err != nil {
		return nil, err
	}
	return s, nil
}

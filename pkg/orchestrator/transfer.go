package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/rahataid/rahat-offramp/pkg/chain"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/events"
	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/metrics"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
	"github.com/rahataid/rahat-offramp/pkg/session"
	"github.com/rahataid/rahat-offramp/pkg/telemetry"
)

// checkTransfer runs every client-side guard. It performs no network call.
func (o *Orchestrator) checkTransfer(s *session.Session, connected string) (chain.Token, error) {
	if strings.TrimSpace(s.EscrowAddress) == "" {
		return chain.Token{}, apperrors.ErrMissingEscrowAddress.WithDetails(s.RequestID)
	}
	if !chain.IsHexAddress(s.EscrowAddress) {
		return chain.Token{}, apperrors.ErrMissingEscrowAddress.WithMessagef("escrow address %q is not a valid address", s.EscrowAddress)
	}
	if s.OnchainStatus == offramp.StatusCancelled {
		return chain.Token{}, apperrors.ErrRequestCancelled.WithDetails(s.RequestID)
	}
	if s.Recipient == nil || s.FiatWallet == nil {
		return chain.Token{}, apperrors.ErrInvalidState.WithMessage("recipient and fiat wallet must be resolved before transfer")
	}
	token, err := o.cfg.Tokens.Lookup(s.Token)
	if err != nil {
		return chain.Token{}, err
	}
	if connected == "" || !chain.SameAddress(connected, s.SenderAddress) {
		return chain.Token{}, apperrors.ErrSenderMismatch.WithDetails(map[string]string{
			"connected": connected,
			"sender":    s.SenderAddress,
		})
	}
	if !s.Amount.IsPositive() {
		return chain.Token{}, apperrors.ErrInvalidAmount.WithDetails(s.Amount.String())
	}
	return token, nil
}

// SubmitTransfer sends the requested amount of the bound token from the
// connected address to the escrow address. It never resubmits on its own.
func (o *Orchestrator) SubmitTransfer(ctx context.Context, id, connected string) (*session.Session, error) {
	ctx, span := telemetry.StartSessionSpan(ctx, "submit_transfer", id)
	defer span.End()

	unlock := o.lock(id)
	defer unlock()

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(s, session.StateWalletResolved); err != nil {
		return nil, err
	}
	token, err := o.checkTransfer(s, connected)
	if err != nil {
		return nil, err
	}
	if o.signer == nil {
		return nil, apperrors.ErrTransferRejected.WithMessage("no signer configured, report the transaction hash instead")
	}

	txHash, err := o.signer.Transfer(ctx, chain.TransferRequest{
		From:   s.SenderAddress,
		To:     s.EscrowAddress,
		Token:  token,
		Amount: s.Amount,
	})
	if err != nil {
		metrics.RecordChainTransfer(token.Symbol, "rejected")
		telemetry.RecordError(ctx, err)
		s.TxHash = ""
		s.Receipt = nil
		if terr := o.transition(ctx, s, session.StateTransferFailed, err); terr != nil {
			return nil, terr
		}
		return s, err
	}

	metrics.RecordChainTransfer(token.Symbol, "submitted")
	return o.markSubmitted(ctx, s, txHash, false)
}

// RecordExternalTransfer accepts the hash of a transfer signed outside the
// service, such as in a browser wallet.
func (o *Orchestrator) RecordExternalTransfer(ctx context.Context, id, txHash, from string) (*session.Session, error) {
	ctx, span := telemetry.StartSessionSpan(ctx, "record_transfer", id)
	defer span.End()

	unlock := o.lock(id)
	defer unlock()

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(s, session.StateWalletResolved); err != nil {
		return nil, err
	}
	if _, err := o.checkTransfer(s, from); err != nil {
		return nil, err
	}
	txHash = strings.TrimSpace(txHash)
	if !chain.IsTxHash(txHash) {
		return nil, apperrors.ErrMissingTxHash.WithMessagef("invalid transaction hash %q", txHash)
	}

	metrics.RecordChainTransfer(s.Token, "external")
	return o.markSubmitted(ctx, s, txHash, true)
}

func (o *Orchestrator) markSubmitted(ctx context.Context, s *session.Session, txHash string, external bool) (*session.Session, error) {
	s.TxHash = txHash
	s.Receipt = nil
	if err := o.transition(ctx, s, session.StateTransferPending, nil); err != nil {
		return nil, err
	}

	o.publish(ctx, events.TopicTransferSubmitted, events.EventTypeTransferSubmitted, s.ID, events.TransferSubmittedPayload{
		SessionID:     s.ID,
		RequestID:     s.RequestID,
		TxHash:        txHash,
		Token:         s.Token,
		Amount:        s.Amount.String(),
		SenderAddress: s.SenderAddress,
		EscrowAddress: s.EscrowAddress,
		External:      external,
	})
	return s, nil
}

// AwaitReceipt waits for the pending transfer to be mined. The session lock
// is not held while waiting so Cancel stays responsive; a session cancelled
// meanwhile keeps its cancelled state.
func (o *Orchestrator) AwaitReceipt(ctx context.Context, id string) (*session.Session, error) {
	ctx, span := telemetry.StartSessionSpan(ctx, "await_receipt", id)
	defer span.End()

	unlock := o.lock(id)
	s, err := o.load(ctx, id)
	if err == nil {
		err = requireState(s, session.StateTransferPending)
	}
	unlock()
	if err != nil {
		return nil, err
	}
	if o.receipts == nil {
		return nil, apperrors.ErrChainUnavailable.WithMessage("no receipt source configured")
	}

	receipt, waitErr := o.receipts.WaitForReceipt(ctx, s.TxHash)

	unlock = o.lock(id)
	defer unlock()

	s, err = o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(s, session.StateTransferPending); err != nil {
		return nil, err
	}

	if waitErr != nil {
		telemetry.RecordError(ctx, waitErr)
		if errors.Is(waitErr, context.Canceled) || errors.Is(waitErr, context.DeadlineExceeded) {
			return s, waitErr
		}
		if terr := o.transition(ctx, s, session.StateTransferFailed, waitErr); terr != nil {
			return nil, terr
		}
		return s, waitErr
	}

	s.Receipt = receipt
	if receipt.Status != offramp.ReceiptConfirmed {
		metrics.RecordChainTransfer(s.Token, "reverted")
		revErr := apperrors.ErrTransferReverted.WithDetails(receipt.TxHash)
		if terr := o.transition(ctx, s, session.StateTransferFailed, revErr); terr != nil {
			return nil, terr
		}
		return s, revErr
	}

	metrics.RecordChainTransfer(s.Token, "confirmed")
	logger.WithContext(logger.WithSession(ctx, s.ID)).Info().
		Str("tx_hash", receipt.TxHash).
		Uint64("block", receipt.BlockNumber).
		Msg("Transfer confirmed")
	if err := o.transition(ctx, s, session.StateTransferConfirmed, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// RetryTransfer signs a fresh transfer after a failed one. It is allowed only
// when the previous attempt provably moved no funds: either no hash was
// produced or its receipt reverted.
func (o *Orchestrator) RetryTransfer(ctx context.Context, id, connected string) (*session.Session, error) {
	unlock := o.lock(id)
	s, err := o.load(ctx, id)
	if err == nil {
		err = requireState(s, session.StateTransferFailed)
	}
	if err == nil && !transferSafeToRetry(s) {
		err = apperrors.ErrInvalidState.WithMessagef(
			"transaction %s has no receipt yet, wait for it instead of sending again", s.TxHash)
	}
	if err == nil {
		err = o.transition(ctx, s, session.StateWalletResolved, nil)
	}
	unlock()
	if err != nil {
		return nil, err
	}
	return o.SubmitTransfer(ctx, id, connected)
}

// RewaitReceipt returns a transfer whose receipt wait failed to
// transfer_pending so the same hash is watched again.
func (o *Orchestrator) RewaitReceipt(ctx context.Context, id string) (*session.Session, error) {
	unlock := o.lock(id)
	s, err := o.load(ctx, id)
	if err == nil {
		err = requireState(s, session.StateTransferFailed)
	}
	if err == nil && transferSafeToRetry(s) {
		err = apperrors.ErrInvalidState.WithMessage("no pending transaction to wait for")
	}
	if err == nil {
		err = o.transition(ctx, s, session.StateTransferPending, nil)
	}
	unlock()
	if err != nil {
		return nil, err
	}
	return o.AwaitReceipt(ctx, id)
}

func transferSafeToRetry(s *session.Session) bool {
	if s.TxHash == "" {
		return true
	}
	return s.Receipt != nil && s.Receipt.Status == offramp.ReceiptReverted
}

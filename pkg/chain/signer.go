// Package chain moves ERC-20 tokens to the escrow address and watches the
// resulting transaction until it is mined.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

type TransferRequest struct {
	From   string
	To     string
	Token  Token
	Amount decimal.Decimal
}

// Signer submits a token transfer and returns its transaction hash.
type Signer interface {
	Transfer(ctx context.Context, req TransferRequest) (string, error)
}

type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, txHash string) (*offramp.TransactionReceipt, error)
}

type sendTxArgs struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type rpcReceipt struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	BlockNumber     string `json:"blockNumber"`
}

// RPCSigner sends transactions from an account unlocked on the node, as
// development chains and custodial signers expose it.
type RPCSigner struct {
	rpc            *RPCClient
	receiptTimeout time.Duration
	pollInterval   time.Duration
}

func NewRPCSigner(rpc *RPCClient, receiptTimeout time.Duration) *RPCSigner {
	if receiptTimeout == 0 {
		receiptTimeout = 2 * time.Minute
	}
	return &RPCSigner{rpc: rpc, receiptTimeout: receiptTimeout, pollInterval: time.Second}
}

func (s *RPCSigner) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	units, err := ToBaseUnits(req.Amount, req.Token.Decimals)
	if err != nil {
		return "", err
	}
	data, err := TransferCalldata(req.To, units)
	if err != nil {
		return "", apperrors.ErrValidation.WithError(err)
	}

	var txHash string
	err = s.rpc.Call(ctx, "eth_sendTransaction", &txHash, sendTxArgs{
		From:  req.From,
		To:    req.Token.Address,
		Data:  encodeHex(data),
		Value: "0x0",
	})
	if err != nil {
		return "", err
	}
	if !IsTxHash(txHash) {
		return "", apperrors.ErrTransferRejected.WithMessagef("node returned invalid transaction hash %q", txHash)
	}

	logger.WithContext(ctx).Info().
		Str("tx_hash", txHash).
		Str("token", req.Token.Symbol).
		Str("amount", req.Amount.String()).
		Str("escrow", req.To).
		Msg("Token transfer submitted")

	return txHash, nil
}

var errReceiptPending = fmt.Errorf("receipt not yet available")

// WaitForReceipt polls eth_getTransactionReceipt with exponential backoff
// until the transaction is mined or the receipt timeout elapses.
func (s *RPCSigner) WaitForReceipt(ctx context.Context, txHash string) (*offramp.TransactionReceipt, error) {
	if !IsTxHash(txHash) {
		return nil, apperrors.ErrMissingTxHash.WithDetails(txHash)
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.pollInterval),
		backoff.WithMaxInterval(10*time.Second),
		backoff.WithMaxElapsedTime(s.receiptTimeout),
	)

	var receipt *offramp.TransactionReceipt
	err := backoff.Retry(func() error {
		var raw json.RawMessage
		if err := s.rpc.Call(ctx, "eth_getTransactionReceipt", &raw, txHash); err != nil {
			if apperrors.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(raw) == 0 || string(raw) == "null" {
			return errReceiptPending
		}

		var r rpcReceipt
		if err := json.Unmarshal(raw, &r); err != nil {
			return backoff.Permanent(apperrors.ErrChainUnavailable.WithError(err))
		}
		receipt = toReceipt(txHash, r)
		return nil
	}, backoff.WithContext(b, ctx))

	if err == errReceiptPending {
		return nil, apperrors.ErrReceiptTimeout.WithDetails(txHash)
	}
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func toReceipt(txHash string, r rpcReceipt) *offramp.TransactionReceipt {
	receipt := &offramp.TransactionReceipt{TxHash: txHash, Status: offramp.ReceiptReverted}
	if strings.EqualFold(r.Status, "0x1") {
		receipt.Status = offramp.ReceiptConfirmed
	}
	var block uint64
	if _, err := fmt.Sscanf(r.BlockNumber, "0x%x", &block); err == nil {
		receipt.BlockNumber = block
	}
	return receipt
}

// ManualSigner hands the transfer to the user, who signs it in their own
// wallet and reports the hash back through Prompt.
type ManualSigner struct {
	Prompt func(ctx context.Context, req TransferRequest) (string, error)
}

func (m ManualSigner) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	if m.Prompt == nil {
		return "", apperrors.ErrTransferRejected.WithMessage("no signer configured")
	}
	txHash, err := m.Prompt(ctx, req)
	if err != nil {
		return "", apperrors.ErrTransferRejected.WithError(err)
	}
	txHash = strings.TrimSpace(txHash)
	if !IsTxHash(txHash) {
		return "", apperrors.ErrMissingTxHash.WithMessagef("invalid transaction hash %q", txHash)
	}
	return txHash, nil
}

var (
	_ Signer        = (*RPCSigner)(nil)
	_ ReceiptWaiter = (*RPCSigner)(nil)
	_ Signer        = ManualSigner{}
)

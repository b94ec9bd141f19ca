package integration

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rahataid/rahat-offramp/pkg/chain"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

// =============================================================================
// Chain RPC Mock Integration Tests
// =============================================================================

const (
	testSender = "0x1111111111111111111111111111111111111111"
	testEscrow = "0x9f8A26F2C9F90C4E3c8b12D7C3A1dA0bE6f5A001"
)

func setupChainTest(t *testing.T) (*Harness, *chain.RPCClient) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	h := NewHarness(t)
	if err := h.WaitForChain(5 * time.Second); err != nil {
		t.Skipf("Chain RPC mock not available: %v", err)
	}
	if err := h.ResetChain(); err != nil {
		t.Fatalf("Failed to reset chain mock: %v", err)
	}

	rpc := chain.NewRPCClient(h.URLs().Chain, &http.Client{Timeout: 10 * time.Second})
	return h, rpc
}

func usdc(t *testing.T) chain.Token {
	t.Helper()
	tok, err := chain.DefaultTokens().Lookup("USDC")
	if err != nil {
		t.Fatalf("USDC not in default token table: %v", err)
	}
	return tok
}

func TestChain_ChainID(t *testing.T) {
	_, rpc := setupChainTest(t)

	id, err := rpc.ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID() error = %v", err)
	}
	if id != 84532 {
		t.Errorf("Expected chain 84532, got %d", id)
	}
}

func TestChain_TransferAndReceipt(t *testing.T) {
	_, rpc := setupChainTest(t)
	signer := chain.NewRPCSigner(rpc, 30*time.Second)
	ctx := context.Background()

	hash, err := signer.Transfer(ctx, chain.TransferRequest{
		From:   testSender,
		To:     testEscrow,
		Token:  usdc(t),
		Amount: decimal.RequireFromString("2.5"),
	})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if !chain.IsTxHash(hash) {
		t.Fatalf("Expected a transaction hash, got %q", hash)
	}

	receipt, err := signer.WaitForReceipt(ctx, hash)
	if err != nil {
		t.Fatalf("WaitForReceipt() error = %v", err)
	}
	if receipt.Status != offramp.ReceiptConfirmed {
		t.Errorf("Expected confirmed receipt, got %s", receipt.Status)
	}
	if receipt.BlockNumber == 0 {
		t.Error("Expected a block number")
	}
}

func TestChain_RevertedReceipt(t *testing.T) {
	h, rpc := setupChainTest(t)
	signer := chain.NewRPCSigner(rpc, 30*time.Second)
	hash := "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	if err := h.RevertTx(hash); err != nil {
		t.Fatalf("RevertTx() error = %v", err)
	}

	receipt, err := signer.WaitForReceipt(context.Background(), hash)
	if err != nil {
		t.Fatalf("WaitForReceipt() error = %v", err)
	}
	if receipt.Status != offramp.ReceiptReverted {
		t.Errorf("Expected reverted receipt, got %s", receipt.Status)
	}
}

func TestChain_ReceiptTimeout(t *testing.T) {
	_, rpc := setupChainTest(t)
	// shorter than the mock's mine delay
	signer := chain.NewRPCSigner(rpc, time.Second)
	hash := "0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"

	_, err := signer.WaitForReceipt(context.Background(), hash)
	if !errors.Is(err, apperrors.ErrReceiptTimeout) {
		t.Errorf("Expected ErrReceiptTimeout, got %v", err)
	}
}

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rahataid/rahat-offramp/internal/mockbackend"
	"github.com/rahataid/rahat-offramp/pkg/backend"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/fiatwallet"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
)

// =============================================================================
// Offramp Backend Mock Integration Tests
// =============================================================================

func setupBackendTest(t *testing.T) (*Harness, *backend.Client) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	h := NewHarness(t)
	if err := h.WaitForBackend(5 * time.Second); err != nil {
		t.Skipf("Offramp backend mock not available: %v", err)
	}
	if err := h.ResetBackend(); err != nil {
		t.Fatalf("Failed to reset backend mock: %v", err)
	}

	api := backend.NewClient(&backend.Config{
		BaseURL:    h.URLs().Backend + mockbackend.BasePath,
		Timeout:    10 * time.Second,
		MaxRetries: 2,
	})
	return h, api
}

func TestBackend_ListProviders(t *testing.T) {
	_, api := setupBackendTest(t)

	providers, err := api.ListProviders(context.Background())
	if err != nil {
		t.Fatalf("ListProviders() error = %v", err)
	}
	if len(providers) == 0 {
		t.Fatal("Expected seeded providers")
	}

	var kotani *offramp.Provider
	for i := range providers {
		if providers[i].Slug == "kotanipay" {
			kotani = &providers[i]
		}
	}
	if kotani == nil {
		t.Fatalf("Expected slug kotanipay among %+v", providers)
	}
	if kotani.UUID != "p1" {
		t.Errorf("Expected UUID p1, got %s", kotani.UUID)
	}
}

func TestBackend_CreateAndGetRequest(t *testing.T) {
	_, api := setupBackendTest(t)
	ctx := context.Background()

	req, err := api.CreateRequest(ctx, backend.CreateRequestInput{
		ProviderUUID:  "p1",
		Chain:         "base-sepolia",
		Token:         "USDC",
		Amount:        decimal.RequireFromString("12.5"),
		SenderAddress: "0x1111111111111111111111111111111111111111",
	})
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	if req.RequestID == "" {
		t.Fatal("Expected a request ID")
	}
	if req.EscrowAddress != mockbackend.DefaultEscrowAddress {
		t.Errorf("Expected escrow %s, got %s", mockbackend.DefaultEscrowAddress, req.EscrowAddress)
	}

	got, err := api.GetRequest(ctx, req.RequestID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if !got.Amount.Equal(req.Amount) {
		t.Errorf("Expected amount %s, got %s", req.Amount, got.Amount)
	}
}

func TestBackend_RecipientWallet(t *testing.T) {
	_, api := setupBackendTest(t)
	ctx := context.Background()
	phone := "+254700000001"

	_, err := api.GetCustomerWalletByPhone(ctx, "p1", phone)
	if !errors.Is(err, apperrors.ErrWalletNotFound) {
		t.Fatalf("Expected ErrWalletNotFound before creation, got %v", err)
	}

	created, err := api.CreateCustomerMobileWallet(ctx, "p1", backend.CreateWalletPayload{
		CountryCode: "KE",
		PhoneNumber: phone,
		Network:     "MPESA",
		AccountName: "Jane Doe",
	})
	if err != nil {
		t.Fatalf("CreateCustomerMobileWallet() error = %v", err)
	}
	if created.CustomerKey == "" {
		t.Error("Expected a customer key")
	}

	found, err := api.GetCustomerWalletByPhone(ctx, "p1", phone)
	if err != nil {
		t.Fatalf("GetCustomerWalletByPhone() error = %v", err)
	}
	if found.CustomerKey != created.CustomerKey {
		t.Errorf("Expected customer key %s, got %s", created.CustomerKey, found.CustomerKey)
	}
}

func TestBackend_FiatWalletByCurrency(t *testing.T) {
	_, api := setupBackendTest(t)

	wallets, err := api.GetFiatWallets(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetFiatWallets() error = %v", err)
	}

	w, err := fiatwallet.Match("KE", wallets)
	if err != nil {
		t.Fatalf("Match(KE) error = %v", err)
	}
	if w.ID != "fw-kes" {
		t.Errorf("Expected fw-kes, got %s", w.ID)
	}

	// the mock has no NGN wallet for p1
	if _, err := fiatwallet.Match("NG", wallets); !errors.Is(err, apperrors.ErrFiatWalletNotFound) {
		t.Errorf("Expected ErrFiatWalletNotFound for NG, got %v", err)
	}
}

func TestBackend_ExecuteAndCheckStatus(t *testing.T) {
	h, api := setupBackendTest(t)
	ctx := context.Background()

	req, err := api.CreateRequest(ctx, backend.CreateRequestInput{
		ProviderUUID:  "p1",
		Chain:         "base-sepolia",
		Token:         "USDC",
		Amount:        decimal.NewFromInt(10),
		SenderAddress: "0x1111111111111111111111111111111111111111",
	})
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}

	res, err := api.ExecuteRequest(ctx, offramp.ExecutePayload{
		ProviderUUID: "p1",
		RequestUUID:  req.UUID,
		Data: offramp.ExecuteData{
			MobileMoneyReceiver: offramp.MobileMoneyReceiver{
				NetworkProvider: "MPESA",
				PhoneNumber:     "+254700000001",
				AccountName:     "Jane Doe",
			},
			Currency:        "KES",
			Chain:           "base-sepolia",
			Token:           "USDC",
			CryptoAmount:    req.Amount,
			SenderAddress:   req.SenderAddress,
			WalletID:        "fw-kes",
			RequestID:       req.RequestID,
			CustomerKey:     "ck_test",
			TransactionHash: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		},
	})
	if err != nil {
		t.Fatalf("ExecuteRequest() error = %v", err)
	}
	if res.ReferenceID == "" {
		t.Fatal("Expected a reference ID")
	}

	if err := h.SetStatus(res.ReferenceID, "successful"); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	st, err := api.CheckOfframpStatus(ctx, "p1", res.ReferenceID)
	if err != nil {
		t.Fatalf("CheckOfframpStatus() error = %v", err)
	}
	if st.Status != offramp.StatusSuccessful {
		t.Errorf("Expected SUCCESSFUL, got %s", st.Status)
	}
}

package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
	"github.com/rahataid/rahat-offramp/internal/mockbackend"
	"github.com/rahataid/rahat-offramp/pkg/backend"
	"github.com/rahataid/rahat-offramp/pkg/chain"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
	"github.com/rahataid/rahat-offramp/pkg/orchestrator"
	"github.com/rahataid/rahat-offramp/pkg/poller"
	"github.com/rahataid/rahat-offramp/pkg/session"
)

const (
	sender  = "0x1111111111111111111111111111111111111111"
	txHash  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	kePhone = "+254712345678"
)

type stubSigner struct {
	sent int
}

func (s *stubSigner) Transfer(context.Context, chain.TransferRequest) (string, error) {
	s.sent++
	return txHash, nil
}

func (s *stubSigner) WaitForReceipt(_ context.Context, hash string) (*offramp.TransactionReceipt, error) {
	return &offramp.TransactionReceipt{TxHash: hash, Status: offramp.ReceiptConfirmed, BlockNumber: 3}, nil
}

type flowEnv struct {
	mock   *mockbackend.Server
	orch   *orchestrator.Orchestrator
	store  *session.FileStore
	signer *stubSigner
	out    *bytes.Buffer
}

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()

	mock := mockbackend.New()
	srv := mockbackend.NewHTTPServer(mock)
	t.Cleanup(srv.Close)

	api := backend.NewClient(&backend.Config{
		BaseURL:    srv.URL + mockbackend.BasePath,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
	})

	store := session.NewFileStore(t.TempDir())
	signer := &stubSigner{}
	orch := orchestrator.New(orchestrator.Config{
		Chain:        "base-sepolia",
		ChainID:      84532,
		Token:        "USDC",
		PollInterval: 10 * time.Millisecond,
	}, orchestrator.Deps{
		Backend: api,
		Store:   store,
		Signer:  signer,
		Pollers: poller.NewRegistry(api, 10*time.Millisecond),
	})
	t.Cleanup(orch.Shutdown)

	var buf bytes.Buffer
	prevOut, prevErr := output.Stdout, output.Stderr
	output.Stdout, output.Stderr = &buf, &buf
	prevInteractive := interactive
	interactive = func() bool { return false }
	t.Cleanup(func() {
		output.Stdout, output.Stderr = prevOut, prevErr
		interactive = prevInteractive
	})

	return &flowEnv{mock: mock, orch: orch, store: store, signer: signer, out: &buf}
}

func (e *flowEnv) start(t *testing.T) *session.Session {
	t.Helper()
	s, err := e.orch.Start(context.Background(), orchestrator.StartInput{
		Provider:      "kotanipay",
		Amount:        decimal.NewFromInt(25),
		SenderAddress: sender,
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s
}

func TestRunFlow_CompletesWithExistingWallet(t *testing.T) {
	e := newFlowEnv(t)
	e.mock.AddWallet(offramp.RecipientWallet{
		AccountName: "Jane Doe",
		Network:     "MPESA",
		PhoneNumber: kePhone,
		CountryCode: "KE",
		CustomerKey: "cust-1",
	})
	s := e.start(t)

	err := runFlow(context.Background(), e.orch, s.ID, flowOptions{phone: kePhone, yes: true})
	if err != nil {
		t.Fatalf("runFlow() error = %v\n%s", err, e.out.String())
	}

	saved, err := e.store.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if saved.State != session.StateExecutionComplete {
		t.Errorf("state = %s, want execution_complete", saved.State)
	}
	if saved.FiatWallet == nil || saved.FiatWallet.ID != "fw-kes" {
		t.Errorf("fiat wallet = %+v, want fw-kes", saved.FiatWallet)
	}
	if e.signer.sent != 1 {
		t.Errorf("transfers sent = %d, want 1", e.signer.sent)
	}
	if len(e.mock.Executions()) != 1 {
		t.Errorf("executions = %d, want 1", len(e.mock.Executions()))
	}
	if !strings.Contains(e.out.String(), saved.ReferenceID) {
		t.Errorf("output should mention reference %s:\n%s", saved.ReferenceID, e.out.String())
	}
}

func TestRunFlow_MissingWalletNonInteractive(t *testing.T) {
	e := newFlowEnv(t)
	s := e.start(t)

	err := runFlow(context.Background(), e.orch, s.ID, flowOptions{phone: kePhone, yes: true})
	if !errors.Is(err, apperrors.ErrWalletNotFound) {
		t.Fatalf("runFlow() error = %v, want ErrWalletNotFound", err)
	}
	if e.signer.sent != 0 {
		t.Errorf("no transfer may be sent without a recipient, sent %d", e.signer.sent)
	}
}

func TestRunFlow_ResumesConfirmedTransfer(t *testing.T) {
	e := newFlowEnv(t)
	e.mock.AddWallet(offramp.RecipientWallet{
		AccountName: "Jane Doe",
		Network:     "MPESA",
		PhoneNumber: kePhone,
		CountryCode: "KE",
		CustomerKey: "cust-1",
	})
	s := e.start(t)
	ctx := context.Background()

	if _, err := e.orch.LookupRecipient(ctx, s.ID, kePhone); err != nil {
		t.Fatal(err)
	}
	if _, err := e.orch.ResolveWallets(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.orch.SubmitTransfer(ctx, s.ID, sender); err != nil {
		t.Fatal(err)
	}

	if err := runFlow(ctx, e.orch, s.ID, flowOptions{yes: true}); err != nil {
		t.Fatalf("runFlow() error = %v", err)
	}
	if e.signer.sent != 1 {
		t.Errorf("a pending transfer must not be resent, sent %d", e.signer.sent)
	}
	got, _ := e.orch.Get(ctx, s.ID)
	if got.State != session.StateExecutionComplete {
		t.Errorf("state = %s, want execution_complete", got.State)
	}
}

func TestRunFlow_Cancelled(t *testing.T) {
	e := newFlowEnv(t)
	s := e.start(t)

	if _, err := e.orch.Cancel(context.Background(), s.ID); err != nil {
		t.Fatal(err)
	}
	err := runFlow(context.Background(), e.orch, s.ID, flowOptions{yes: true})
	if !errors.Is(err, apperrors.ErrRequestCancelled) {
		t.Errorf("runFlow() error = %v, want ErrRequestCancelled", err)
	}
}

func TestLatestUnfinished(t *testing.T) {
	e := newFlowEnv(t)
	ctx := context.Background()

	if _, err := latestUnfinished(ctx, e.orch); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Fatalf("empty store error = %v, want ErrSessionNotFound", err)
	}

	first := e.start(t)
	time.Sleep(2 * time.Millisecond)
	second := e.start(t)
	if _, err := e.orch.Cancel(ctx, second.ID); err != nil {
		t.Fatal(err)
	}

	got, err := latestUnfinished(ctx, e.orch)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != first.ID {
		t.Errorf("latestUnfinished() = %s, want %s", got.ID, first.ID)
	}
}

func TestPrompt(t *testing.T) {
	var buf bytes.Buffer
	prevOut, prevIn := output.Stdout, stdin
	output.Stdout = &buf
	stdin = bufio.NewReader(strings.NewReader("  Jane Doe \n\ny\n"))
	defer func() { output.Stdout, stdin = prevOut, prevIn }()

	ctx := context.Background()

	name, err := prompt(ctx, "Account holder name")
	if err != nil || name != "Jane Doe" {
		t.Errorf("prompt() = %q, %v", name, err)
	}
	network, err := promptDefault(ctx, "Network", "MPESA")
	if err != nil || network != "MPESA" {
		t.Errorf("promptDefault() = %q, %v", network, err)
	}
	ok, err := confirm(ctx, "Send?")
	if err != nil || !ok {
		t.Errorf("confirm() = %v, %v", ok, err)
	}
	if !strings.Contains(buf.String(), "Network [MPESA]: ") {
		t.Errorf("default not shown: %q", buf.String())
	}
}

func TestPrompt_Cancelled(t *testing.T) {
	prevOut, prevIn := output.Stdout, stdin
	output.Stdout = &bytes.Buffer{}
	// a reader that never returns
	pr, pw := io.Pipe()
	defer pw.Close()
	stdin = bufio.NewReader(pr)
	defer func() { output.Stdout, stdin = prevOut, prevIn }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := prompt(ctx, "Hash"); !errors.Is(err, context.Canceled) {
		t.Errorf("prompt() error = %v, want context.Canceled", err)
	}
}

func TestValueOrPrompt_NonInteractive(t *testing.T) {
	prev := interactive
	interactive = func() bool { return false }
	defer func() { interactive = prev }()

	if v, err := valueOrPrompt(context.Background(), "10", "Amount"); err != nil || v != "10" {
		t.Errorf("flag value = %q, %v", v, err)
	}
	if _, err := valueOrPrompt(context.Background(), "", "Amount"); err == nil {
		t.Error("missing value without a terminal should fail")
	}
}

func TestValidateSetting(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr bool
	}{
		{"backend_url", "https://api.example.com/v1/offramps", false},
		{"format", "json", false},
		{"format", "yaml", true},
		{"signer", "rpc", false},
		{"signer", "ledger", true},
		{"api_key", "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			if err := validateSetting(tt.key, tt.value); (err != nil) != tt.wantErr {
				t.Errorf("validateSetting() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDrivable(t *testing.T) {
	providers := []offramp.Provider{
		{Slug: "kotanipay", Capabilities: offramp.Capabilities{Kind: offramp.KindMobileMoney, Enabled: true}},
		{Slug: "disabled", Capabilities: offramp.Capabilities{Kind: offramp.KindMobileMoney}},
		{Slug: "bank", Capabilities: offramp.Capabilities{Kind: offramp.KindBank, Enabled: true}},
		{Slug: "unknown"},
	}

	got := drivable(providers)
	if len(got) != 1 || got[0].Slug != "kotanipay" {
		t.Errorf("drivable() = %+v", got)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "KE", "UG"); got != "KE" {
		t.Errorf("firstNonEmpty() = %q, want KE", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Errorf("firstNonEmpty() = %q, want empty", got)
	}
}

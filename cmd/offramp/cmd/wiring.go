package cmd

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
	"github.com/rahataid/rahat-offramp/pkg/backend"
	"github.com/rahataid/rahat-offramp/pkg/chain"
	"github.com/rahataid/rahat-offramp/pkg/config"
	"github.com/rahataid/rahat-offramp/pkg/orchestrator"
	"github.com/rahataid/rahat-offramp/pkg/session"
)

func newBackend() *backend.Client {
	return backend.NewClient(&backend.Config{
		BaseURL: viper.GetString("backend_url"),
		Timeout: viper.GetDuration("timeout"),
	})
}

func chainConfig() config.ChainConfig {
	cfg := config.ChainConfig{
		Name:     viper.GetString("chain"),
		ID:       viper.GetInt64("chain_id"),
		RPCURL:   viper.GetString("rpc_url"),
		Token:    viper.GetString("token"),
		Decimals: viper.GetInt32("decimals"),
		Signer:   viper.GetString("signer"),
	}
	if addr := viper.GetString("token_address"); addr != "" {
		cfg.Tokens = map[string]config.TokenConfig{
			cfg.Token: {Address: addr, Decimals: cfg.Decimals},
		}
	}
	return cfg
}

// sessionStore opens the on-disk store that lets an interrupted flow be
// resumed by a later invocation.
func sessionStore() (*session.FileStore, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	return session.NewFileStore(filepath.Join(dir, "sessions")), nil
}

// newOrchestrator wires the flow for one CLI invocation. With the external
// signer the user sends the transfer from their own wallet and pastes the
// hash; receipts are always read from rpc_url.
func newOrchestrator(api *backend.Client) (*orchestrator.Orchestrator, error) {
	store, err := sessionStore()
	if err != nil {
		return nil, err
	}

	cc := chainConfig()
	rpc := chain.NewRPCClient(cc.RPCURL, &http.Client{Timeout: viper.GetDuration("timeout")})
	receipts := chain.NewRPCSigner(rpc, 0)

	var signer chain.Signer = chain.ManualSigner{Prompt: promptTransfer}
	if cc.UsesRPCSigner() {
		signer = receipts
	}

	return orchestrator.New(orchestrator.Config{
		Chain:        cc.Name,
		ChainID:      cc.ID,
		Token:        cc.Token,
		Tokens:       cc.TokenTable(),
		PollInterval: viper.GetDuration("poll_interval"),
		Source:       "offramp-cli",
	}, orchestrator.Deps{
		Backend:  api,
		Store:    store,
		Signer:   signer,
		Receipts: receipts,
	}), nil
}

// promptTransfer shows what to send and reads the resulting hash.
func promptTransfer(ctx context.Context, req chain.TransferRequest) (string, error) {
	units, err := chain.ToBaseUnits(req.Amount, req.Token.Decimals)
	if err != nil {
		return "", err
	}

	fmt.Fprintln(output.Stdout)
	output.Header("Send the transfer from your wallet")
	output.KeyValue([][]string{
		{"From", req.From},
		{"To (escrow)", req.To},
		{"Token", fmt.Sprintf("%s (%s)", req.Token.Symbol, req.Token.Address)},
		{"Amount", output.Amount(req.Amount, req.Token.Symbol)},
		{"Base units", units.String()},
	})
	fmt.Fprintln(output.Stdout)

	hash, err := prompt(ctx, "Transaction hash")
	if err != nil {
		return "", err
	}
	if hash == "" {
		return "", fmt.Errorf("no transaction hash entered")
	}
	return hash, nil
}

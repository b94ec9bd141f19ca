package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/orchestrator"
	"github.com/rahataid/rahat-offramp/pkg/provider"
)

var (
	startAmount string
	startFrom   string
	startPhone  string
	startYes    bool
	startWatch  bool
)

var startCmd = &cobra.Command{
	Use:   "start [PROVIDER]",
	Short: "Start an offramp",
	Long: `Create an offramp request and walk through it:

  1. look up (or register) the recipient's mobile-money wallet
  2. match the provider's payout wallet for the recipient's currency
  3. send the tokens to the provider's escrow
  4. submit the transfer for payout

Values not given as flags are asked for. The session is saved after
every step; continue an interrupted one with 'offramp resume'.`,
	Example: `  offramp start kotanipay --amount 10 --from 0xAbc... --phone +254712345678
  offramp start --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVarP(&startAmount, "amount", "a", "", "token amount to offramp")
	startCmd.Flags().StringVar(&startFrom, "from", "", "sender address holding the tokens")
	startCmd.Flags().StringVarP(&startPhone, "phone", "p", "", "recipient phone number")
	startCmd.Flags().BoolVarP(&startYes, "yes", "y", false, "do not ask before sending or retrying")
	startCmd.Flags().BoolVarP(&startWatch, "watch", "w", false, "follow the payout status after submission")
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	api := newBackend()
	orch, err := newOrchestrator(api)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	var providerID string
	if len(args) == 1 {
		providerID = args[0]
	} else if providerID, err = pickProvider(ctx, orch.Catalog(), api); err != nil {
		return err
	}

	rawAmount, err := valueOrPrompt(ctx, startAmount, "Amount")
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return apperrors.ErrInvalidAmount.WithDetails(rawAmount)
	}
	from, err := valueOrPrompt(ctx, startFrom, "Sender address")
	if err != nil {
		return err
	}

	output.Info("Creating offramp request...")
	s, err := orch.Start(ctx, orchestrator.StartInput{
		Provider:      providerID,
		Amount:        amount,
		SenderAddress: from,
		Phone:         startPhone,
	})
	if err != nil {
		return err
	}

	output.Success("Request " + s.RequestID + " created")
	output.KeyValue([][]string{
		{"Session", s.ID},
		{"Provider", s.ProviderSlug},
		{"Amount", output.Amount(s.Amount, s.Token)},
		{"Escrow", s.EscrowAddress},
	})
	fmt.Fprintln(output.Stdout)

	return runFlow(ctx, orch, s.ID, flowOptions{
		phone: startPhone,
		yes:   startYes,
		watch: startWatch,
	})
}

// pickProvider lists the drivable providers and reads a choice by number
// or slug.
func pickProvider(ctx context.Context, catalog *provider.Catalog, api provider.Lister) (string, error) {
	if !interactive() {
		return "", fmt.Errorf("provider is required")
	}

	if !catalog.Loaded() {
		if err := catalog.Load(ctx, api); err != nil {
			return "", err
		}
	}
	providers, err := catalog.List()
	if err != nil {
		return "", err
	}
	providers = drivable(providers)
	if len(providers) == 0 {
		return "", apperrors.ErrProviderNotFound.WithMessage("no mobile-money providers available")
	}

	output.Header("Providers")
	for i, p := range providers {
		fmt.Fprintf(output.Stdout, "  %d) %s (%s)\n", i+1, p.Name, p.Slug)
	}

	choice, err := promptDefault(ctx, "Provider", "1")
	if err != nil {
		return "", err
	}
	if n, err := strconv.Atoi(choice); err == nil {
		if n < 1 || n > len(providers) {
			return "", apperrors.ErrValidation.WithDetails(fmt.Sprintf("choose 1-%d", len(providers)))
		}
		return providers[n-1].UUID, nil
	}
	return choice, nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
	apperrors "github.com/rahataid/rahat-offramp/pkg/errors"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
	"github.com/rahataid/rahat-offramp/pkg/poller"
)

var (
	statusReference    string
	statusProviderUUID string
	statusWatch        bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check a payout's status",
	Long: `Check the provider status of an executed offramp by its reference ID.

With --watch the status is polled until it is final.`,
	Example: `  offramp status --reference ref-123 --provider-uuid 9b1d... --watch`,
	RunE:    runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusReference, "reference", "r", "", "reference ID returned at execution")
	statusCmd.Flags().StringVar(&statusProviderUUID, "provider-uuid", "", "UUID of the provider that executed it")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "poll until the status is final")
	_ = statusCmd.MarkFlagRequired("reference")
	_ = statusCmd.MarkFlagRequired("provider-uuid")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	api := newBackend()

	if !statusWatch {
		st, err := api.CheckOfframpStatus(ctx, statusProviderUUID, statusReference)
		if err != nil {
			return err
		}
		printStatusDetail(*st)
		return nil
	}

	p := poller.New(api, poller.Config{
		ProviderUUID: statusProviderUUID,
		ReferenceID:  statusReference,
		Interval:     viper.GetDuration("poll_interval"),
		OnChange: func(_ context.Context, st offramp.StatusSnapshot) {
			printStatus(st)
		},
	})
	output.Info(fmt.Sprintf("Watching %s, Ctrl-C to stop", statusReference))
	p.Run(ctx)

	snap := p.Snapshot()
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case snap.State == poller.StateNotFound:
		return apperrors.ErrNotFound.WithMessagef("no offramp with reference %s", statusReference)
	case snap.LastError != "" && !snap.Terminal():
		return errors.New(snap.LastError)
	}
	return nil
}

func printStatusDetail(st offramp.StatusSnapshot) {
	if getFormat() == "json" {
		_ = output.JSON(st)
		return
	}

	var rate string
	if st.Rate != nil {
		rate = fmt.Sprintf("1 %s = %s %s", st.Rate.From, st.Rate.Value.String(), st.Rate.To)
	}
	var updated string
	if !st.UpdatedAt.IsZero() {
		updated = st.UpdatedAt.Local().Format("2006-01-02 15:04:05")
	}

	output.KeyValue([][]string{
		{"Reference", st.ReferenceID},
		{"Status", output.FormatStatus(string(st.Status))},
		{"On-chain", output.FormatStatus(string(st.OnchainStatus))},
		{"Crypto", st.CryptoAmount.String()},
		{"Fiat", output.Amount(st.FiatAmount, rateTarget(st.Rate))},
		{"Rate", rate},
		{"Escrow", st.EscrowAddress},
		{"Sender", st.SenderAddress},
		{"Updated", updated},
	})
}

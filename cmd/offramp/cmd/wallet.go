package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
	"github.com/rahataid/rahat-offramp/pkg/backend"
	"github.com/rahataid/rahat-offramp/pkg/currency"
	"github.com/rahataid/rahat-offramp/pkg/fiatwallet"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
	"github.com/rahataid/rahat-offramp/pkg/provider"
	"github.com/rahataid/rahat-offramp/pkg/recipient"
)

var (
	walletProvider string
	walletPhone    string
	walletName     string
	walletNetwork  string
	walletCountry  string
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Recipient wallet commands",
	Long:  "Look up and register mobile-money wallets with a provider, outside of a session.",
}

var walletLookupCmd = &cobra.Command{
	Use:     "lookup",
	Short:   "Find the wallet registered to a phone number",
	Example: `  offramp wallet lookup --provider kotanipay --phone +254712345678`,
	RunE:    runWalletLookup,
}

var walletCreateCmd = &cobra.Command{
	Use:     "create",
	Short:   "Register a mobile-money wallet",
	Example: `  offramp wallet create --provider kotanipay --phone 0712345678 --country KE --name "Jane W" --network MPESA`,
	RunE:    runWalletCreate,
}

var walletFiatCmd = &cobra.Command{
	Use:   "fiat",
	Short: "List the provider's payout wallets",
	Long:  "List the provider's fiat wallets, or with --country show the one a payout in that country's currency uses.",
	RunE:  runWalletFiat,
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletLookupCmd)
	walletCmd.AddCommand(walletCreateCmd)
	walletCmd.AddCommand(walletFiatCmd)

	walletCmd.PersistentFlags().StringVar(&walletProvider, "provider", "", "provider slug or UUID")
	walletCmd.PersistentFlags().StringVarP(&walletPhone, "phone", "p", "", "phone number")
	walletCmd.PersistentFlags().StringVar(&walletCountry, "country", "", "ISO country code, e.g. KE")
	walletCreateCmd.Flags().StringVar(&walletName, "name", "", "account holder name")
	walletCreateCmd.Flags().StringVar(&walletNetwork, "network", "", "mobile network, e.g. MPESA")
}

func resolveProvider(ctx context.Context, api *backend.Client) (offramp.Provider, error) {
	id, err := valueOrPrompt(ctx, walletProvider, "Provider")
	if err != nil {
		return offramp.Provider{}, err
	}
	catalog := provider.NewCatalog(nil)
	if err := catalog.Load(ctx, api); err != nil {
		return offramp.Provider{}, err
	}
	return catalog.Resolve(id)
}

func runWalletLookup(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	api := newBackend()
	p, err := resolveProvider(ctx, api)
	if err != nil {
		return err
	}
	phone, err := valueOrPrompt(ctx, walletPhone, "Phone number")
	if err != nil {
		return err
	}
	if walletCountry != "" {
		phone = currency.Normalize(phone, walletCountry)
	}

	res, err := recipient.NewService(api).Lookup(ctx, p.UUID, phone)
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(map[string]any{
			"found":  res.Found(),
			"wallet": res.Wallet,
			"draft":  res.Draft,
		})
	}

	if !res.Found() {
		output.Warning("No wallet registered for " + res.Draft.PhoneNumber)
		output.KeyValue([][]string{
			{"Country", res.Draft.CountryCode},
			{"Dial code", res.Draft.DialCode},
			{"Network", res.Draft.Network},
		})
		fmt.Fprintln(output.Stdout)
		output.Info("Register it with 'offramp wallet create'")
		return nil
	}
	printWallet(res.Wallet)
	return nil
}

func runWalletCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	api := newBackend()
	p, err := resolveProvider(ctx, api)
	if err != nil {
		return err
	}

	phone, err := valueOrPrompt(ctx, walletPhone, "Phone number")
	if err != nil {
		return err
	}
	if walletCountry != "" {
		phone = currency.Normalize(phone, walletCountry)
	}
	draft := recipient.NewDraft(phone)

	in := recipient.CreateInput{
		CountryCode: firstNonEmpty(walletCountry, draft.CountryCode),
		DialCode:    draft.DialCode,
		PhoneNumber: draft.PhoneNumber,
		Network:     firstNonEmpty(walletNetwork, draft.Network),
		AccountName: walletName,
	}
	if in.CountryCode == "" {
		if in.CountryCode, err = valueOrPrompt(ctx, "", "Country code"); err != nil {
			return err
		}
	}
	if in.AccountName, err = valueOrPrompt(ctx, in.AccountName, "Account holder name"); err != nil {
		return err
	}
	in.Network = strings.ToUpper(in.Network)

	w, err := recipient.NewService(api).Create(ctx, p.UUID, in)
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(w)
	}
	output.Success("Wallet registered")
	printWallet(w)
	return nil
}

func runWalletFiat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	api := newBackend()
	p, err := resolveProvider(ctx, api)
	if err != nil {
		return err
	}

	var wallets []offramp.FiatWallet
	if walletCountry != "" {
		w, err := fiatwallet.Resolve(ctx, api, p.UUID, walletCountry)
		if err != nil {
			return err
		}
		wallets = []offramp.FiatWallet{w}
	} else if wallets, err = api.GetFiatWallets(ctx, p.UUID); err != nil {
		return err
	}

	if getFormat() == "json" {
		return output.JSON(wallets)
	}
	if len(wallets) == 0 {
		output.Info("No fiat wallets")
		return nil
	}
	rows := make([][]string, 0, len(wallets))
	for _, w := range wallets {
		rows = append(rows, []string{w.ID, w.Currency, w.Name, w.Type, output.FormatStatus(strings.ToLower(w.Status))})
	}
	output.Table([]string{"ID", "Currency", "Name", "Type", "Status"}, rows)
	return nil
}

func printWallet(w *offramp.RecipientWallet) {
	output.KeyValue([][]string{
		{"Account", w.AccountName},
		{"Phone", w.PhoneNumber},
		{"Network", w.Network},
		{"Country", w.CountryCode},
		{"Customer key", w.CustomerKey},
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

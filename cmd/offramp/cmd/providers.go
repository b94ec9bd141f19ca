package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
	"github.com/rahataid/rahat-offramp/pkg/offramp"
	"github.com/rahataid/rahat-offramp/pkg/provider"
)

var showAllProviders bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List offramp providers",
	Long:  "List the providers known to the backend together with what the CLI can drive for each.",
	RunE:  runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.Flags().BoolVar(&showAllProviders, "all", false, "include providers the flow cannot drive yet")
}

func runProviders(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	catalog := provider.NewCatalog(nil)
	if err := catalog.Load(ctx, newBackend()); err != nil {
		return err
	}
	providers, err := catalog.List()
	if err != nil {
		return err
	}

	if !showAllProviders {
		providers = drivable(providers)
	}

	if getFormat() == "json" {
		return output.JSON(providers)
	}

	if len(providers) == 0 {
		output.Info("No providers available")
		return nil
	}

	rows := make([][]string, 0, len(providers))
	for _, p := range providers {
		rows = append(rows, []string{
			p.Slug,
			p.Name,
			string(p.Kind()),
			strings.Join(p.Capabilities.Tokens, ","),
			strings.Join(p.Currencies, ","),
			p.UUID,
		})
	}
	output.Table([]string{"Slug", "Name", "Kind", "Tokens", "Currencies", "UUID"}, rows)
	fmt.Fprintln(output.Stdout)
	output.Info("Start an offramp with 'offramp start <slug>'")
	return nil
}

// drivable keeps enabled mobile-money providers.
func drivable(providers []offramp.Provider) []offramp.Provider {
	out := make([]offramp.Provider, 0, len(providers))
	for _, p := range providers {
		if p.Kind() == offramp.KindMobileMoney && p.Capabilities.Enabled {
			out = append(out, p)
		}
	}
	return out
}

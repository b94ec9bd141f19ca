package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rahataid/rahat-offramp/cmd/offramp/internal/output"
)

// configKeys lists the settable keys with their help text.
var configKeys = map[string]string{
	"backend_url":   "Offramp backend API URL",
	"timeout":       "Backend and RPC request timeout, e.g. 30s",
	"chain":         "Network name sent with every request",
	"chain_id":      "Chain ID of that network",
	"token":         "Token symbol to offramp, e.g. USDC",
	"token_address": "Token contract address, overrides the built-in table",
	"decimals":      "Token decimals override, 0 uses the token table",
	"rpc_url":       "JSON-RPC endpoint used for receipts and the rpc signer",
	"signer":        "external (paste a hash) or rpc (node-unlocked account)",
	"poll_interval": "Status polling interval, e.g. 10s",
	"kafka_brokers": "Comma separated brokers for 'offramp events tail'",
	"format":        "Default output format: table, json",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
	Long:  "View and modify CLI configuration.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nAvailable keys:\n" + keyHelp(),
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

func sortedKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func keyHelp() string {
	var b strings.Builder
	for _, k := range sortedKeys() {
		fmt.Fprintf(&b, "  %-14s %s\n", k, configKeys[k])
	}
	return b.String()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	keys := sortedKeys()

	if getFormat() == "json" {
		settings := make(map[string]any, len(keys))
		for _, k := range keys {
			settings[k] = viper.Get(k)
		}
		return output.JSON(settings)
	}

	output.Header("Configuration")
	fmt.Fprintln(output.Stdout)
	pairs := make([][]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, []string{k, viper.GetString(k)})
	}
	output.KeyValue(pairs)

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintln(output.Stdout)
		output.Info("Config file: " + viper.ConfigFileUsed())
	}
	return nil
}

// validateSetting rejects values the flow would fail on later.
func validateSetting(key, value string) error {
	if _, ok := configKeys[key]; !ok {
		return fmt.Errorf("unknown config key %q, valid keys: %s", key, strings.Join(sortedKeys(), ", "))
	}
	switch key {
	case "format":
		if value != "table" && value != "json" {
			return fmt.Errorf("format must be 'table' or 'json'")
		}
	case "signer":
		if value != "external" && value != "rpc" {
			return fmt.Errorf("signer must be 'external' or 'rpc'")
		}
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if err := validateSetting(key, value); err != nil {
		return err
	}

	viper.Set(key, value)

	dir, err := configDir()
	if err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(filepath.Join(dir, "config.yaml")); err != nil {
		return fmt.Errorf("could not save config: %w", err)
	}

	output.Success(fmt.Sprintf("Set %s = %s", key, value))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	configFile := filepath.Join(dir, "config.yaml")

	if getFormat() == "json" {
		return output.JSON(map[string]string{
			"config_file":  configFile,
			"config_dir":   dir,
			"sessions_dir": filepath.Join(dir, "sessions"),
		})
	}

	fmt.Fprintln(output.Stdout, configFile)
	return nil
}

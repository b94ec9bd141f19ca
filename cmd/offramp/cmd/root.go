package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rahataid/rahat-offramp/pkg/logger"
)

var (
	cfgFile string
	format  string
	verbose bool
)

var banner = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("39")).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("39")).
	Padding(0, 2).
	Render("Rahat Offramp  ·  stablecoins to mobile money")

var rootCmd = &cobra.Command{
	Use:   "offramp",
	Short: "Cash out stablecoins to mobile money",
	Long: banner + `

Send tokens to a provider's escrow and have fiat paid out to a
mobile-money wallet.

  offramp providers          list offramp providers
  offramp start kotanipay    start an offramp
  offramp resume             continue the latest unfinished session
  offramp sessions list      show saved sessions`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logger.InitTo(os.Stderr, "offramp-cli", level, true)
		return loadConfig(viper.GetViper())
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ~/.offramp/config.yaml)")
	flags.StringVarP(&format, "format", "f", "table", "output format: table or json")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log requests and transitions to stderr")

	_ = viper.BindPFlag("format", flags.Lookup("format"))
}

// configDir returns ~/.offramp, creating it when missing.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".offramp")
	return dir, os.MkdirAll(dir, 0o700)
}

// loadConfig layers OFFRAMP_* env vars over the config file over defaults.
// A missing config file is not an error.
func loadConfig(v *viper.Viper) error {
	setDefaults(v)
	v.SetEnvPrefix("OFFRAMP")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			return fmt.Errorf("config dir: %w", err)
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", v.ConfigFileUsed(), err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend_url", "http://localhost:5500/v1/offramps")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("chain", "base-sepolia")
	v.SetDefault("chain_id", 84532)
	v.SetDefault("token", "USDC")
	v.SetDefault("rpc_url", "http://localhost:8888")
	v.SetDefault("signer", "external")
	v.SetDefault("poll_interval", 10*time.Second)
	v.SetDefault("kafka_brokers", "localhost:9092")
	v.SetDefault("format", "table")
}

func getFormat() string {
	if format != "" && format != "table" {
		return format
	}
	return viper.GetString("format")
}

// signalContext is cancelled on Ctrl-C so long waits can stop cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

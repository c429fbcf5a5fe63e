package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/23skdu/longbow-amreval/internal/logger"
	"github.com/23skdu/longbow-amreval/internal/monitoring"
)

var (
	cfgFile string
	Version = "dev"

	monitor *monitoring.HealthMonitor
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "amreval",
	Short: "Evaluate AMR parsing and AMR-to-text generation",
	Long: `Score predicted AMR graphs with smatch and generated sentences with
BLEU, or run beam-search generation against a remote generation server.

Examples:
  # Smatch between a prediction and a gold file
  amreval smatch -p pred.amr.txt -g gold.amr.txt

  # Corpus BLEU, one sentence per line
  amreval bleu --pred pred.txt --gold gold.txt

  # Generate candidates for a tokenized dataset and store them
  amreval generate --server localhost:7070 --input test.arrow --output beams.arrow --beam-size 5

  # Decode stored candidates into graphs and score them
  amreval decode --tokens beams.arrow --vocab vocab.json --refs gold.amr.txt --output pred.amr.txt --score`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file path (e.g. amreval.yaml)")
	rootCmd.PersistentFlags().
		String("log-level", "info", "set the logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().
		String("log-format", "console", "set the logging format (console, json)")
	rootCmd.PersistentFlags().
		String("metrics-addr", "", "serve /metrics and /healthz on this address while running")

	mustBindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	mustBindPFlag("metrics_addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

// bindFlags binds viper keys to flags of cmd. Several commands share keys
// such as "mode", so each binds its own flags when it runs.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", key, err)
		}
	}
	return nil
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			fmt.Fprintf(os.Stderr, "Config file not found: %s\n", cfgFile)
			os.Exit(1)
		}
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("amreval")
	}

	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("AMREVAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file [%s]: %v\n", viper.ConfigFileUsed(), err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	logger.Setup(viper.GetString("log.level"), viper.GetString("log.format"))

	if addr := viper.GetString("metrics_addr"); addr != "" {
		monitor = monitoring.NewHealthMonitor()
		monitoring.Version = Version
		if err := monitor.Start(addr); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if monitor == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return monitor.Stop(ctx)
}

// recordRun forwards a finished run to the health monitor when one is up.
func recordRun(mode string, examples int, start time.Time, err error) {
	if monitor != nil {
		monitor.RecordRun(mode, examples, time.Since(start), err)
	}
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/23skdu/longbow-amreval/internal/config"
	"github.com/23skdu/longbow-amreval/internal/logger"
	"github.com/23skdu/longbow-amreval/internal/scoring"
	"github.com/23skdu/longbow-amreval/internal/smatch"
)

var smatchCmd = &cobra.Command{
	Use:   "smatch",
	Short: "Compute smatch between predicted and gold AMR files",
	Long: `Compute micro-averaged smatch precision, recall and F-score between two
files of PENMAN graphs separated by blank lines. Both files must hold the
same number of graphs in the same order.`,
	Args: cobra.NoArgs,
	RunE: runSmatch,
}

func init() {
	rootCmd.AddCommand(smatchCmd)

	f := smatchCmd.Flags()
	f.StringP("pred", "p", "", "predicted AMR file")
	f.StringP("gold", "g", "", "gold AMR file")
	f.Bool("f_only", false, "print only the F-score")
	f.Bool("verbose", false, "log per-graph scores")
	f.Int("restarts", 5, "hill-climbing restarts per graph pair")
	f.Int64("seed", 1, "random seed for restarts")

	mustBindPFlag("smatch.restarts", f.Lookup("restarts"))
	mustBindPFlag("smatch.seed", f.Lookup("seed"))
}

func requireFile(flag, path string) error {
	if path == "" {
		return fmt.Errorf("--%s is required", flag)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s file %s: %w", flag, path, err)
	}
	return nil
}

func runSmatch(cmd *cobra.Command, args []string) error {
	pred, _ := cmd.Flags().GetString("pred")
	gold, _ := cmd.Flags().GetString("gold")
	fOnly, _ := cmd.Flags().GetBool("f_only")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if err := requireFile("pred", pred); err != nil {
		return err
	}
	if err := requireFile("gold", gold); err != nil {
		return err
	}
	if verbose {
		logger.Setup("debug", viper.GetString("log.format"))
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Smatch with longbow-amreval")
	fmt.Fprintf(out, "Gold File: %s\n", gold)
	fmt.Fprintf(out, "Pred File: %s\n", pred)

	start := time.Now()
	score, err := scoring.ComputeSmatch(gold, pred, smatch.Options{Restarts: cfg.Smatch.Restarts, Seed: cfg.Smatch.Seed})
	recordRun("smatch", 0, start, err)
	if err != nil {
		logger.Log.Error("smatch failed", "error", err)
		return err
	}

	fmt.Fprintln(out, "Score:")
	if !fOnly {
		fmt.Fprintf(out, " Precision: %.5f\n", score.Precision)
		fmt.Fprintf(out, " Recall: %.5f\n", score.Recall)
	}
	fmt.Fprintf(out, " F-Score: %.5f\n", score.F)
	return nil
}

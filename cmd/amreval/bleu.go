package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-amreval/internal/logger"
	"github.com/23skdu/longbow-amreval/internal/scoring"
)

var bleuCmd = &cobra.Command{
	Use:   "bleu",
	Short: "Compute corpus BLEU between predicted and gold sentences",
	Args:  cobra.NoArgs,
	RunE:  runBLEU,
}

func init() {
	rootCmd.AddCommand(bleuCmd)
	bleuCmd.Flags().StringP("pred", "p", "", "predicted sentences, one per line")
	bleuCmd.Flags().StringP("gold", "g", "", "reference sentences, one per line")
}

func runBLEU(cmd *cobra.Command, args []string) error {
	predPath, _ := cmd.Flags().GetString("pred")
	goldPath, _ := cmd.Flags().GetString("gold")
	if err := requireFile("pred", predPath); err != nil {
		return err
	}
	if err := requireFile("gold", goldPath); err != nil {
		return err
	}

	pred, err := scoring.ReadSentences(predPath)
	if err != nil {
		return err
	}
	gold, err := scoring.ReadSentences(goldPath)
	if err != nil {
		return err
	}

	start := time.Now()
	score, err := scoring.ComputeBLEU(gold, pred)
	recordRun("bleu", len(pred), start, err)
	if err != nil {
		logger.Log.Error("bleu failed", "error", err)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), score.String())
	return nil
}

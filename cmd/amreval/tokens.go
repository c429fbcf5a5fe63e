package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-amreval/internal/tokenstore"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens <file>",
	Short: "Summarize a stored sequence file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seqs, err := tokenstore.Load(args[0])
		if err != nil {
			return err
		}
		total, longest := 0, 0
		for _, s := range seqs.Tokens {
			total += len(s)
			longest = max(longest, len(s))
		}
		mean := 0.0
		if len(seqs.Tokens) > 0 {
			mean = float64(total) / float64(len(seqs.Tokens))
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "File: %s\n", args[0])
		fmt.Fprintf(out, " Examples: %d\n", seqs.Examples())
		fmt.Fprintf(out, " Beam size: %d\n", seqs.BeamSize)
		fmt.Fprintf(out, " Sequences: %d\n", len(seqs.Tokens))
		fmt.Fprintf(out, " Mean length: %.2f\n", mean)
		fmt.Fprintf(out, " Max length: %d\n", longest)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokensCmd)
}

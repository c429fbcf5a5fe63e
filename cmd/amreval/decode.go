package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/23skdu/longbow-amreval/internal/config"
	"github.com/23skdu/longbow-amreval/internal/evaluation"
	"github.com/23skdu/longbow-amreval/internal/logger"
	"github.com/23skdu/longbow-amreval/internal/penman"
	"github.com/23skdu/longbow-amreval/internal/scoring"
	"github.com/23skdu/longbow-amreval/internal/smatch"
	"github.com/23skdu/longbow-amreval/internal/tokenizer"
	"github.com/23skdu/longbow-amreval/internal/tokenstore"
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode stored candidates into graphs or sentences",
	Long: `Decode a sequence file written by "generate" with a byte-level BPE
vocabulary. In amr mode every example is ranked by decode status and stamped
with the metadata of its reference graph; --refs must hold the references in
dataset order with "# ::snt_org" lines. In sentence modes --refs is optional
and only used by --score.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"mode":             "mode",
			"return_all":       "return-all",
			"restore_name_ops": "restore-name-ops",
			"progress":         "progress",
		})
	},
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	f := decodeCmd.Flags()
	f.String("tokens", "", "sequence file written by generate")
	f.String("vocab", "", "vocab.json of the model tokenizer")
	f.String("refs", "", "reference AMR file (amr mode) or sentences (sentence modes)")
	f.String("output", "", "file to write predictions to")
	f.String("mode", "amr", "decode mode (amr, sentence, multilingual)")
	f.Bool("return-all", false, "write every ranked candidate instead of the best one")
	f.Bool("restore-name-ops", false, "split underscore-joined name literals into :opN roles")
	f.Bool("progress", false, "show a progress bar while decoding")
	f.Bool("score", false, "score the predictions against --refs")
}

func runDecode(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	tokensPath, _ := flags.GetString("tokens")
	vocabPath, _ := flags.GetString("vocab")
	refsPath, _ := flags.GetString("refs")
	output, _ := flags.GetString("output")
	score, _ := flags.GetBool("score")

	if err := requireFile("tokens", tokensPath); err != nil {
		return err
	}
	if err := requireFile("vocab", vocabPath); err != nil {
		return err
	}
	if output == "" {
		return fmt.Errorf("--output is required")
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.Mode == config.ModeAMR || score {
		if err := requireFile("refs", refsPath); err != nil {
			return err
		}
	}

	seqs, err := tokenstore.Load(tokensPath)
	if err != nil {
		return err
	}
	cfg = cfg.WithBeamSize(seqs.BeamSize)
	if score && cfg.ReturnAll && cfg.BeamSize > 1 {
		return fmt.Errorf("--score needs one prediction per reference; drop --return-all")
	}

	tok, err := tokenizer.Load(vocabPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	if cfg.Mode == config.ModeAMR {
		err = decodeGraphs(ctx, cmd, cfg, tok, seqs.Tokens, refsPath, output, score)
	} else {
		err = decodeSentences(ctx, cmd, cfg, tok, seqs.Tokens, refsPath, output, score)
	}
	recordRun(cfg.Mode.String(), seqs.Examples(), start, err)
	if err != nil {
		logger.Log.Error("decode failed", "error", err)
		return err
	}
	logger.Log.Info("predictions written", "path", output, "examples", seqs.Examples(),
		"mode", cfg.Mode.String(), "duration", time.Since(start))
	return nil
}

func decodeGraphs(ctx context.Context, cmd *cobra.Command, cfg config.Config, tok *tokenizer.Tokenizer,
	flat [][]int, refsPath, output string, score bool) error {
	refs, err := penman.ReadFile(refsPath)
	if err != nil {
		return err
	}
	p, err := evaluation.NewAMRPipeline(nil, tok, refs, cfg)
	if err != nil {
		return err
	}
	groups, err := p.FromTokens(ctx, flat)
	if err != nil {
		return err
	}
	if err := scoring.WritePredictions(output, evaluation.Flatten(groups), cfg.InitMarker); err != nil {
		return err
	}
	if !score {
		return nil
	}
	s, err := scoring.ComputeSmatch(refsPath, output, smatch.Options{Restarts: cfg.Smatch.Restarts, Seed: cfg.Smatch.Seed})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Score:")
	fmt.Fprintf(out, " Precision: %.5f\n", s.Precision)
	fmt.Fprintf(out, " Recall: %.5f\n", s.Recall)
	fmt.Fprintf(out, " F-Score: %.5f\n", s.F)
	return nil
}

func decodeSentences(ctx context.Context, cmd *cobra.Command, cfg config.Config, tok *tokenizer.Tokenizer,
	flat [][]int, refsPath, output string, score bool) error {
	var (
		p   *evaluation.Pipeline[string]
		err error
	)
	if cfg.Mode == config.ModeMultilingual {
		p, err = evaluation.NewMultilingualPipeline(nil, tok, cfg)
	} else {
		p, err = evaluation.NewSentencePipeline(nil, tok, cfg)
	}
	if err != nil {
		return err
	}
	groups, err := p.FromTokens(ctx, flat)
	if err != nil {
		return err
	}
	pred := evaluation.Flatten(groups)
	if err := scoring.WriteSentences(output, pred); err != nil {
		return err
	}
	if !score {
		return nil
	}
	gold, err := scoring.ReadSentences(refsPath)
	if err != nil {
		return err
	}
	s, err := scoring.ComputeBLEU(gold, pred)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.String())
	return nil
}

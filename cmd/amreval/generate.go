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
	"github.com/23skdu/longbow-amreval/internal/dataset"
	"github.com/23skdu/longbow-amreval/internal/evaluation"
	"github.com/23skdu/longbow-amreval/internal/genclient"
	"github.com/23skdu/longbow-amreval/internal/logger"
	"github.com/23skdu/longbow-amreval/internal/tokenstore"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run beam search over a tokenized dataset on a remote generator",
	Long: `Send every batch of a tokenized dataset to an Arrow Flight generation
server and store the returned beams, restored to dataset order, as an Arrow
IPC sequence file. The file can be decoded and scored later without the
model.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"gen_server":             "server",
			"mode":                   "mode",
			"beam_size":              "beam-size",
			"batch_size":             "batch-size",
			"decoder_start_token_id": "decoder-start",
		})
	},
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	f := generateCmd.Flags()
	f.String("server", "", "generation server address (host:port)")
	f.String("input", "", "tokenized dataset (Arrow IPC file with source and target columns)")
	f.String("output", "", "sequence file to write")
	f.String("mode", "amr", "generation mode (amr, sentence, multilingual)")
	f.Int("beam-size", 1, "beams returned per example")
	f.Int("batch-size", 16, "examples per generation request")
	f.Int("decoder-start", 0, "decoder start token id")
}

// generator is the generation half of a pipeline, whatever it decodes to.
type generator interface {
	Generate(ctx context.Context, loader evaluation.Loader) ([][]int, error)
}

func newGenerator(model evaluation.Model, cfg config.Config) (generator, error) {
	switch cfg.Mode {
	case config.ModeAMR:
		return evaluation.NewAMRPipeline(model, nil, nil, cfg)
	case config.ModeSentence:
		return evaluation.NewSentencePipeline(model, nil, cfg)
	case config.ModeMultilingual:
		return evaluation.NewMultilingualPipeline(model, nil, cfg)
	}
	return nil, fmt.Errorf("unsupported mode %s", cfg.Mode)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	if err := requireFile("input", input); err != nil {
		return err
	}
	if output == "" {
		return fmt.Errorf("--output is required")
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.GenServer == "" {
		return fmt.Errorf("--server is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	examples, err := dataset.ReadFile(input)
	if err != nil {
		return err
	}
	if cfg.Mode != config.ModeAMR {
		if err := dataset.RequireTargets(examples); err != nil {
			return fmt.Errorf("%s: %s mode reads graphs from the target column: %w", input, cfg.Mode, err)
		}
	}
	loader, err := dataset.NewLoader(examples, viper.GetInt("batch_size"))
	if err != nil {
		return err
	}

	client, err := genclient.Dial(cfg.GenServer)
	if err != nil {
		return err
	}
	defer client.Close()

	gen, err := newGenerator(client, cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	flat, err := gen.Generate(ctx, loader)
	recordRun(cfg.Mode.String(), len(examples), start, err)
	if err != nil {
		logger.Log.Error("generation failed", "error", err)
		return err
	}
	if err := tokenstore.Save(output, cfg.BeamSize, flat); err != nil {
		return err
	}

	logger.Log.Info("sequences written", "path", output, "examples", len(examples),
		"beam_size", cfg.BeamSize, "duration", time.Since(start))
	return nil
}

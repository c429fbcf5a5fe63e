package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"

	"github.com/23skdu/longbow-amreval/internal/amr"
	"github.com/23skdu/longbow-amreval/internal/config"
	"github.com/23skdu/longbow-amreval/internal/logger"
	"github.com/23skdu/longbow-amreval/internal/metrics"
)

// orderPreserving is the loader configuration used during evaluation:
// no shuffling, length-sorted batches whose ids are undone afterwards.
var orderPreserving = Ordering{Shuffle: false, Sort: true}

type orderingGuard struct {
	loader Loader
	saved  Ordering
}

func forceOrderPreserving(l Loader) *orderingGuard {
	g := &orderingGuard{loader: l, saved: l.Ordering()}
	l.SetOrdering(orderPreserving)
	return g
}

func (g *orderingGuard) release() {
	g.loader.SetOrdering(g.saved)
}

// Pipeline runs generation and decoding for one mode. Invocations against
// the same loader must be serialized by the caller.
type Pipeline[T any] struct {
	model    Model
	strategy Strategy[T]
	cfg      config.Config
}

func NewPipeline[T any](model Model, strategy Strategy[T], cfg config.Config) (*Pipeline[T], error) {
	if strategy == nil {
		return nil, fmt.Errorf("pipeline: nil strategy")
	}
	if cfg.Mode != strategy.Mode() {
		return nil, fmt.Errorf("pipeline: config mode %s does not match strategy mode %s", cfg.Mode, strategy.Mode())
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Pipeline[T]{model: model, strategy: strategy, cfg: cfg}, nil
}

// NewAMRPipeline builds a text-to-graph pipeline. refs are the gold graphs
// in dataset order; their metadata seeds the predicted graphs.
func NewAMRPipeline(model Model, tok Tokenizer, refs []*amr.Graph, cfg config.Config) (*Pipeline[*amr.Graph], error) {
	cfg.Mode = config.ModeAMR
	return NewPipeline[*amr.Graph](model, &AMRStrategy{
		Tokenizer:      tok,
		References:     refs,
		Reconciler:     NewReconciler(cfg.Annotator),
		RestoreNameOps: cfg.RestoreNameOps,
	}, cfg)
}

func NewSentencePipeline(model Model, tok Tokenizer, cfg config.Config) (*Pipeline[string], error) {
	cfg.Mode = config.ModeSentence
	return NewPipeline[string](model, &SentenceStrategy{
		Tokenizer:       tok,
		MaxInputLength:  cfg.MaxInputLength,
		SpecialTokenMax: cfg.SpecialTokenMax,
	}, cfg)
}

func NewMultilingualPipeline(model Model, tok Tokenizer, cfg config.Config) (*Pipeline[string], error) {
	cfg.Mode = config.ModeMultilingual
	return NewPipeline[string](model, &SentenceStrategy{
		Tokenizer:       tok,
		MaxInputLength:  cfg.MaxInputLength,
		SpecialTokenMax: cfg.SpecialTokenMax,
		Multilingual:    true,
		Reserved:        resolveReserved(tok, cfg.Reserved),
	}, cfg)
}

func (p *Pipeline[T]) Config() config.Config { return p.cfg }

func (p *Pipeline[T]) log() *logger.Logger {
	return logger.Log.With("component", "pipeline", "mode", p.cfg.Mode.String())
}

// Predict generates candidates for every example of the loader's dataset
// and decodes them. The result is in dataset order; each group holds either
// all ranked units or only the best one, per Config.ReturnAll.
func (p *Pipeline[T]) Predict(ctx context.Context, loader Loader) ([][]T, error) {
	guard := forceOrderPreserving(loader)
	defer guard.release()

	flat, err := p.generate(ctx, loader)
	if err != nil {
		return nil, err
	}
	return p.FromTokens(ctx, flat)
}

// Generate runs the model over the loader and returns the candidates
// flattened in dataset order, beam groups contiguous.
func (p *Pipeline[T]) Generate(ctx context.Context, loader Loader) ([][]int, error) {
	guard := forceOrderPreserving(loader)
	defer guard.release()
	return p.generate(ctx, loader)
}

func (p *Pipeline[T]) generate(ctx context.Context, loader Loader) ([][]int, error) {
	if p.model == nil {
		return nil, errors.New("pipeline: no model configured")
	}
	log := p.log()
	mode := p.cfg.Mode.String()
	beam := p.cfg.BeamSize
	total := loader.Len()

	ids := make([]int, 0, total)
	groups := make([][][]int, 0, total)
	batchIdx := 0
	err := loader.Iterate(ctx, func(b Batch) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		b = p.strategy.Prepare(b)
		start := time.Now()
		out, err := p.model.Generate(ctx, b.Source, p.cfg.Generation)
		if err != nil {
			return fmt.Errorf("generate batch %d: %w", batchIdx, err)
		}
		if len(out) != len(b.IDs)*beam {
			return violation("generate", "batch_size", "batch %d: %d sequences for %d examples with beam size %d",
				batchIdx, len(out), len(b.IDs), beam)
		}
		g, err := GroupBeams(out, beam)
		if err != nil {
			return err
		}
		ids = append(ids, b.IDs...)
		groups = append(groups, g...)

		metrics.RecordBatch(mode, len(out), time.Since(start))
		log.Debug("batch generated", "batch", batchIdx, "examples", len(b.IDs), "done", len(ids), "total", total)
		batchIdx++
		return nil
	})
	if err != nil {
		log.Error("generation aborted", "batch", batchIdx, "error", err)
		return nil, err
	}
	if len(ids) != total {
		return nil, violation("generate", "coverage", "loader yielded %d examples, dataset has %d", len(ids), total)
	}

	restored, err := RestoreOrder(ids, groups)
	if err != nil {
		return nil, err
	}
	log.Info("generation finished", "batches", batchIdx, "examples", total, "beam_size", beam)
	return Flatten(restored), nil
}

// FromTokens decodes precomputed candidates, flat and in dataset order,
// without running the model.
func (p *Pipeline[T]) FromTokens(ctx context.Context, flat [][]int) ([][]T, error) {
	groups, err := GroupBeams(flat, p.cfg.BeamSize)
	if err != nil {
		return nil, err
	}
	if err := p.strategy.Begin(len(groups)); err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([][]T, len(groups))
	decodeOne := func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		units, err := p.strategy.Decode(ctx, i, groups[i], p.cfg.ReturnAll)
		if err != nil {
			return err
		}
		if !p.cfg.ReturnAll && len(units) > 1 {
			units = units[:1]
		}
		results[i] = units
		return nil
	}

	if p.cfg.Progress && len(groups) > 0 {
		var decodeErr error
		err = tqdm.With(iterators.Interval(0, len(groups)), "Decoding", func(v interface{}) (brk bool) {
			if decodeErr = decodeOne(v.(int)); decodeErr != nil {
				return true
			}
			return false
		})
		if decodeErr != nil {
			err = decodeErr
		}
	} else {
		for i := range groups {
			if err = decodeOne(i); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordDecode(p.cfg.Mode.String(), len(groups), time.Since(start))
	p.log().Debug("decoded", "examples", len(groups), "return_all", p.cfg.ReturnAll)
	return results, nil
}

package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/23skdu/longbow-amreval/internal/amr"
	"github.com/23skdu/longbow-amreval/internal/config"
	"github.com/23skdu/longbow-amreval/internal/logger"
	"github.com/23skdu/longbow-amreval/internal/metrics"
)

// Strategy is the mode-specific part of a pipeline.
type Strategy[T any] interface {
	Mode() config.Mode
	// Prepare adapts a loader batch before it reaches the model.
	Prepare(b Batch) Batch
	// Begin is called once with the number of examples before decoding.
	Begin(examples int) error
	// Decode turns the beam group of one example into decoded units. all
	// is false when the caller only keeps the first unit.
	Decode(ctx context.Context, index int, candidates [][]int, all bool) ([]T, error)
}

// AMRStrategy decodes graphs, ranks them by validity and attaches the
// reconciled reference metadata.
type AMRStrategy struct {
	Tokenizer      Tokenizer
	References     []*amr.Graph
	Reconciler     *Reconciler
	RestoreNameOps bool
}

func (s *AMRStrategy) Mode() config.Mode { return config.ModeAMR }

func (s *AMRStrategy) Prepare(b Batch) Batch { return b }

func (s *AMRStrategy) Begin(examples int) error {
	if len(s.References) != examples {
		return violation("decode_amr", "references", "%d references for %d examples", len(s.References), examples)
	}
	return nil
}

func (s *AMRStrategy) Decode(ctx context.Context, index int, candidates [][]int, all bool) ([]*amr.Graph, error) {
	graphs := make([]*amr.Graph, len(candidates))
	for rank, ids := range candidates {
		d, err := s.Tokenizer.DecodeAMR(ids, s.RestoreNameOps)
		if err != nil {
			return nil, fmt.Errorf("decode example %d beam %d: %w", index, rank, err)
		}
		if d.Graph == nil {
			return nil, violation("decode_amr", "nil_graph", "example %d beam %d", index, rank)
		}
		g := d.Graph
		g.Status = d.Status
		g.Nodes = d.Nodes
		g.Backreferences = d.Backreferences
		g.Tokens = append([]int(nil), ids...)
		graphs[rank] = g
		metrics.RecordCandidateStatus(d.Status.String())
	}

	ranked := RankCandidates(graphs)
	ref := s.References[index]
	for _, g := range ranked {
		md, err := s.Reconciler.Reconcile(ref.Metadata)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", index, err)
		}
		g.Metadata = md
	}
	if len(ranked) > 0 {
		metrics.RecordSelectedStatus(ranked[0].Status.String())
	}
	return ranked, nil
}

// SentenceStrategy decodes text in the graph-to-text direction. Reserved is
// only consulted in multilingual mode.
type SentenceStrategy struct {
	Tokenizer       Tokenizer
	MaxInputLength  int
	SpecialTokenMax int
	Multilingual    bool
	Reserved        config.TokenRange
}

func (s *SentenceStrategy) Mode() config.Mode {
	if s.Multilingual {
		return config.ModeMultilingual
	}
	return config.ModeSentence
}

func (s *SentenceStrategy) Prepare(b Batch) Batch {
	b = b.Reverse()
	b.Source = b.Source.Truncate(s.MaxInputLength)
	return b
}

func (s *SentenceStrategy) Begin(int) error { return nil }

// Filter drops special and reserved ids. Applying it twice is harmless.
func (s *SentenceStrategy) Filter(ids []int) []int {
	out := make([]int, 0, len(ids))
	for _, t := range ids {
		if t <= s.SpecialTokenMax {
			continue
		}
		if s.Multilingual && s.Reserved.Contains(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *SentenceStrategy) Decode(ctx context.Context, index int, candidates [][]int, all bool) ([]string, error) {
	if !all && len(candidates) > 1 {
		candidates = candidates[:1]
	}
	out := make([]string, 0, len(candidates))
	for rank, ids := range candidates {
		text, err := s.Tokenizer.Decode(s.Filter(ids))
		if err != nil {
			return nil, fmt.Errorf("decode example %d beam %d: %w", index, rank, err)
		}
		out = append(out, strings.TrimSpace(text))
	}
	return out, nil
}

// resolveReserved turns boundary tokens into ids. Unknown tokens keep the
// numeric bounds.
func resolveReserved(tok Tokenizer, r config.TokenRange) config.TokenRange {
	if tok == nil || r.FromToken == "" || r.ToToken == "" {
		return r
	}
	lo, ok1 := tok.TokenID(r.FromToken)
	hi, ok2 := tok.TokenID(r.ToToken)
	if !ok1 || !ok2 {
		logger.Log.Warn("reserved range tokens not in vocabulary, using numeric bounds",
			"from_token", r.FromToken, "to_token", r.ToToken, "min", r.Min, "max", r.Max)
		return r
	}
	r.Min, r.Max = lo, hi
	return r
}

// Package evaluation drives batched beam-search generation over a dataset
// and turns the raw candidates into ranked, dataset-ordered predictions.
//
// The model, the tokenizer and the loader are external collaborators; they
// are consumed through the interfaces below.
package evaluation

import (
	"context"

	"github.com/23skdu/longbow-amreval/internal/amr"
	"github.com/23skdu/longbow-amreval/internal/config"
)

// Encoding is a padded batch of token id rows.
type Encoding struct {
	InputIDs      [][]int
	AttentionMask [][]int
}

// Truncate caps every row at n tokens. n <= 0 leaves the rows untouched.
func (e Encoding) Truncate(n int) Encoding {
	if n <= 0 {
		return e
	}
	return Encoding{InputIDs: truncateRows(e.InputIDs, n), AttentionMask: truncateRows(e.AttentionMask, n)}
}

func truncateRows(rows [][]int, n int) [][]int {
	if rows == nil {
		return nil
	}
	out := make([][]int, len(rows))
	for i, r := range rows {
		if len(r) > n {
			r = r[:n]
		}
		out[i] = r
	}
	return out
}

// Batch is one loader step. IDs holds the dataset index of every row.
type Batch struct {
	Source Encoding
	Target Encoding
	IDs    []int
}

// Reverse swaps the encoder and decoder sides, turning a text-to-graph batch
// into a graph-to-text one.
func (b Batch) Reverse() Batch {
	return Batch{Source: b.Target, Target: b.Source, IDs: b.IDs}
}

// Ordering is the loader's iteration order configuration.
type Ordering struct {
	Shuffle bool
	Sort    bool
}

// Loader yields batches over a dataset. Implementations are not safe for
// concurrent pipeline invocations since the pipeline flips their ordering.
type Loader interface {
	Ordering() Ordering
	SetOrdering(Ordering)
	// Len is the number of examples in the dataset.
	Len() int
	Iterate(ctx context.Context, fn func(Batch) error) error
}

// Model generates NumReturnSequences candidates per input row, flattened
// row-major: len(out) == len(in.InputIDs) * params.NumReturnSequences.
type Model interface {
	Generate(ctx context.Context, in Encoding, params config.GenerationParams) ([][]int, error)
}

// AMRDecoding is the tokenizer's graph decoding of one candidate.
type AMRDecoding struct {
	Graph          *amr.Graph
	Status         amr.Status
	Nodes          []string
	Backreferences []int
}

type Tokenizer interface {
	DecodeAMR(ids []int, restoreNameOps bool) (AMRDecoding, error)
	Decode(ids []int) (string, error)
	// TokenID resolves a vocabulary entry; ok is false for unknown tokens.
	TokenID(token string) (id int, ok bool)
}

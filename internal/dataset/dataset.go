// Package dataset is an in-memory evaluation.Loader over pre-tokenized
// examples, read from Arrow IPC files with source and target id columns.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-amreval/internal/evaluation"
	"github.com/23skdu/longbow-amreval/internal/tokenstore"
)

// Example is one tokenized pair. For text-to-graph data Source holds the
// sentence and Target the linearized graph.
type Example struct {
	Source []int
	Target []int
}

// ErrMissingTarget is returned by RequireTargets for an example without a
// target sequence.
var ErrMissingTarget = errors.New("example has no target")

// RequireTargets checks that every example has a target. Graph-to-text
// generation feeds the target side to the encoder.
func RequireTargets(examples []Example) error {
	for i, ex := range examples {
		if len(ex.Target) == 0 {
			return fmt.Errorf("example %d: %w", i, ErrMissingTarget)
		}
	}
	return nil
}

var schema = arrow.NewSchema([]arrow.Field{
	{Name: "source", Type: tokenstore.ListType},
	{Name: "target", Type: tokenstore.ListType},
}, nil)

// Loader batches examples. With Sort set, batches are formed from examples
// of similar source length, longest first.
type Loader struct {
	examples  []Example
	batchSize int
	ordering  evaluation.Ordering
	seed      int64
}

func NewLoader(examples []Example, batchSize int) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("invalid batch_size: %d (must be positive)", batchSize)
	}
	return &Loader{examples: examples, batchSize: batchSize, ordering: evaluation.Ordering{Shuffle: true}, seed: 1}, nil
}

func (l *Loader) Ordering() evaluation.Ordering      { return l.ordering }
func (l *Loader) SetOrdering(o evaluation.Ordering) { l.ordering = o }
func (l *Loader) Len() int                          { return len(l.examples) }

// SetSeed fixes the shuffle seed.
func (l *Loader) SetSeed(seed int64) { l.seed = seed }

func (l *Loader) order() []int {
	idx := make([]int, len(l.examples))
	for i := range idx {
		idx[i] = i
	}
	if l.ordering.Shuffle {
		r := rand.New(rand.NewSource(l.seed))
		r.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	if l.ordering.Sort {
		sort.SliceStable(idx, func(a, b int) bool {
			return len(l.examples[idx[a]].Source) > len(l.examples[idx[b]].Source)
		})
	}
	return idx
}

func (l *Loader) Iterate(ctx context.Context, fn func(evaluation.Batch) error) error {
	idx := l.order()
	for start := 0; start < len(idx); start += l.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+l.batchSize, len(idx))
		if err := fn(l.batch(idx[start:end])); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) batch(ids []int) evaluation.Batch {
	b := evaluation.Batch{IDs: append([]int(nil), ids...)}
	var src, tgt [][]int
	for _, id := range ids {
		src = append(src, l.examples[id].Source)
		tgt = append(tgt, l.examples[id].Target)
	}
	b.Source = pad(src)
	b.Target = pad(tgt)
	return b
}

// pad right-pads rows with padID to a common length and builds the mask.
func pad(rows [][]int) evaluation.Encoding {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	enc := evaluation.Encoding{
		InputIDs:      make([][]int, len(rows)),
		AttentionMask: make([][]int, len(rows)),
	}
	for i, r := range rows {
		ids := make([]int, width)
		mask := make([]int, width)
		for j := range ids {
			if j < len(r) {
				ids[j] = r[j]
				mask[j] = 1
			} else {
				ids[j] = PadID
			}
		}
		enc.InputIDs[i] = ids
		enc.AttentionMask[i] = mask
	}
	return enc
}

// PadID is the padding token of the BART vocabulary.
const PadID = 1

// WriteFile stores examples in the Arrow IPC file format.
func WriteFile(path string, examples []Example) error {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	src := make([][]int, len(examples))
	tgt := make([][]int, len(examples))
	for i, ex := range examples {
		src[i], tgt[i] = ex.Source, ex.Target
	}
	if err := tokenstore.AppendRows(b.Field(0).(*array.ListBuilder), src); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := tokenstore.AppendRows(b.Field(1).(*array.ListBuilder), tgt); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	rec := b.NewRecord()
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return err
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}

// ReadFile loads examples written by WriteFile. The target column is
// optional.
func ReadFile(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer r.Close()

	var out []Example
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", path, i, err)
		}
		col, err := tokenstore.Column(rec, "source")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		src, err := tokenstore.Rows(col)
		if err != nil {
			return nil, fmt.Errorf("%s: source: %w", path, err)
		}
		var tgt [][]int
		if col, err := tokenstore.Column(rec, "target"); err == nil {
			if tgt, err = tokenstore.Rows(col); err != nil {
				return nil, fmt.Errorf("%s: target: %w", path, err)
			}
		}
		for j, s := range src {
			ex := Example{Source: s}
			if tgt != nil {
				ex.Target = tgt[j]
			}
			out = append(out, ex)
		}
	}
	return out, nil
}

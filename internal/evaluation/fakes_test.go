package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/23skdu/longbow-amreval/internal/amr"
	"github.com/23skdu/longbow-amreval/internal/config"
)

// fakeLoader batches rows the way the real loader does: optionally sorted by
// source length and optionally shuffled, always reporting dataset ids.
type fakeLoader struct {
	source    [][]int
	target    [][]int
	batchSize int
	ordering  Ordering
	seed      int64

	failAt int // batch index that fails, -1 for none
	seen   []Ordering
}

var errLoaderBroken = errors.New("loader broken")

func newFakeLoader(source, target [][]int, batchSize int) *fakeLoader {
	return &fakeLoader{source: source, target: target, batchSize: batchSize, failAt: -1, seed: 7,
		ordering: Ordering{Shuffle: true, Sort: false}}
}

func (l *fakeLoader) Ordering() Ordering      { return l.ordering }
func (l *fakeLoader) SetOrdering(o Ordering) { l.ordering = o }
func (l *fakeLoader) Len() int                { return len(l.source) }

func (l *fakeLoader) Iterate(ctx context.Context, fn func(Batch) error) error {
	l.seen = append(l.seen, l.ordering)
	order := make([]int, len(l.source))
	for i := range order {
		order[i] = i
	}
	if l.ordering.Shuffle {
		r := rand.New(rand.NewSource(l.seed))
		r.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	if l.ordering.Sort {
		sort.SliceStable(order, func(a, b int) bool {
			return len(l.source[order[a]]) > len(l.source[order[b]])
		})
	}
	for b, start := 0, 0; start < len(order); b, start = b+1, start+l.batchSize {
		if b == l.failAt {
			return errLoaderBroken
		}
		end := min(start+l.batchSize, len(order))
		batch := Batch{}
		for _, id := range order[start:end] {
			batch.IDs = append(batch.IDs, id)
			batch.Source.InputIDs = append(batch.Source.InputIDs, l.source[id])
			if l.target != nil {
				batch.Target.InputIDs = append(batch.Target.InputIDs, l.target[id])
			}
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

// fakeModel emits [row[0], 10+beam, extra...] for every beam of every row.
type fakeModel struct {
	extra  []int
	drop   int // sequences to drop from every batch output
	inputs [][][]int
}

func (m *fakeModel) Generate(ctx context.Context, in Encoding, params config.GenerationParams) ([][]int, error) {
	m.inputs = append(m.inputs, in.InputIDs)
	var out [][]int
	for _, row := range in.InputIDs {
		for b := 0; b < params.NumReturnSequences; b++ {
			seq := append([]int{row[0], 10 + b}, m.extra...)
			out = append(out, seq)
		}
	}
	return out[:len(out)-m.drop], nil
}

// fakeTokenizer decodes a candidate into a one-node graph whose concept is
// the first id. status maps the second id (10+beam) to a validity status.
type fakeTokenizer struct {
	status map[int]amr.Status
	vocab  map[string]int
}

func (t *fakeTokenizer) DecodeAMR(ids []int, restoreNameOps bool) (AMRDecoding, error) {
	if len(ids) < 2 {
		return AMRDecoding{}, fmt.Errorf("short candidate %v", ids)
	}
	g := &amr.Graph{
		Top:     "x",
		Triples: []amr.Triple{{Source: "x", Role: amr.RoleInstance, Target: strconv.Itoa(ids[0])}},
	}
	return AMRDecoding{Graph: g, Status: t.status[ids[1]], Nodes: []string{strconv.Itoa(ids[0])}, Backreferences: []int{0}}, nil
}

func (t *fakeTokenizer) Decode(ids []int) (string, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "  " + strings.Join(parts, " ") + " \n", nil
}

func (t *fakeTokenizer) TokenID(token string) (int, bool) {
	id, ok := t.vocab[token]
	return id, ok
}

func references(n int) []*amr.Graph {
	refs := make([]*amr.Graph, n)
	for i := range refs {
		refs[i] = &amr.Graph{Metadata: amr.Metadata{
			"id":      fmt.Sprintf("ex.%d", i),
			"snt":     fmt.Sprintf("tokenized %d", i),
			"snt_org": fmt.Sprintf("Original %d.", i),
		}}
	}
	return refs
}

// rowsOfLength returns n rows whose first id identifies the dataset index
// and whose lengths vary so that sorting permutes them.
func rowsOfLength(n int) [][]int {
	rows := make([][]int, n)
	for i := range rows {
		row := []int{100 + i}
		for j := 0; j < (i*7)%5; j++ {
			row = append(row, 50)
		}
		rows[i] = row
	}
	return rows
}

// Package smatch computes the smatch triple-overlap score between AMR
// graphs: a hill-climbing search for the variable mapping that maximizes the
// number of matching instance, attribute and relation triples.
package smatch

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"

	"github.com/23skdu/longbow-amreval/internal/amr"
	"github.com/23skdu/longbow-amreval/internal/penman"
)

// ErrCountMismatch is returned when the two streams hold a different number
// of graphs.
var ErrCountMismatch = errors.New("smatch: number of graphs differs")

// Options controls the mapping search.
type Options struct {
	// Restarts is the number of hill-climbing runs; the first starts from
	// the concept-matching initialization, the others from random ones.
	Restarts int
	Seed     int64
}

// DefaultOptions mirrors the reference tool's defaults.
func DefaultOptions() Options {
	return Options{Restarts: 5, Seed: 1}
}

// Score is precision, recall and F-score in [0, 1].
type Score struct {
	Precision float64
	Recall    float64
	F         float64
}

// Counts are the triple counts behind a score.
type Counts struct {
	Match int
	Test  int
	Gold  int
}

func (c Counts) Add(o Counts) Counts {
	return Counts{Match: c.Match + o.Match, Test: c.Test + o.Test, Gold: c.Gold + o.Gold}
}

// Score turns counts into precision/recall/F.
func (c Counts) Score() Score {
	if c.Test == 0 || c.Gold == 0 {
		return Score{}
	}
	p := float64(c.Match) / float64(c.Test)
	r := float64(c.Match) / float64(c.Gold)
	if p+r == 0 {
		return Score{Precision: p, Recall: r}
	}
	return Score{Precision: p, Recall: r, F: 2 * p * r / (p + r)}
}

type instance struct {
	node    int
	concept string
}

type attribute struct {
	node  int
	role  string
	value string
}

type relation struct {
	src, dst int
	role     string
}

type triples struct {
	nodes      int
	instances  []instance
	attributes []attribute
	relations  []relation
}

func (t triples) total() int {
	return len(t.instances) + len(t.attributes) + len(t.relations)
}

func normValue(s string) string {
	return strings.ToLower(strings.Trim(s, `"`))
}

func extract(g *amr.Graph) triples {
	var out triples
	index := make(map[string]int)
	for _, t := range g.Instances() {
		if _, ok := index[t.Source]; ok {
			continue
		}
		index[t.Source] = len(out.instances)
		out.instances = append(out.instances, instance{node: index[t.Source], concept: normValue(t.Target)})
	}
	out.nodes = len(out.instances)
	if top, ok := index[g.Top]; ok {
		out.attributes = append(out.attributes, attribute{node: top, role: "TOP", value: "top"})
	}

	rels, attrs := g.Edges()
	for _, a := range attrs {
		if n, ok := index[a.Source]; ok {
			out.attributes = append(out.attributes, attribute{node: n, role: strings.ToLower(a.Role), value: normValue(a.Target)})
		}
	}
	for _, r := range rels {
		r = amr.Normalize(r)
		src, ok1 := index[r.Source]
		dst, ok2 := index[r.Target]
		if ok1 && ok2 {
			out.relations = append(out.relations, relation{src: src, dst: dst, role: strings.ToLower(r.Role)})
		}
	}
	return out
}

type pair struct{ a, b int }

var self = pair{-1, -1}

type pool struct {
	candidates [][]int
	weights    map[pair]map[pair]int
}

func (p *pool) add(k, v pair) {
	w, ok := p.weights[k]
	if !ok {
		w = make(map[pair]int)
		p.weights[k] = w
	}
	w[v]++
}

func buildPool(test, gold triples) *pool {
	sets := make([]map[int]bool, test.nodes)
	for i := range sets {
		sets[i] = make(map[int]bool)
	}
	p := &pool{weights: make(map[pair]map[pair]int)}

	for _, t := range test.instances {
		for _, g := range gold.instances {
			if t.concept == g.concept {
				sets[t.node][g.node] = true
				p.add(pair{t.node, g.node}, self)
			}
		}
	}
	for _, t := range test.attributes {
		for _, g := range gold.attributes {
			if t.role == g.role && t.value == g.value {
				sets[t.node][g.node] = true
				p.add(pair{t.node, g.node}, self)
			}
		}
	}
	for _, t := range test.relations {
		for _, g := range gold.relations {
			if t.role != g.role {
				continue
			}
			sets[t.src][g.src] = true
			sets[t.dst][g.dst] = true
			if t.src == t.dst && g.src == g.dst {
				p.add(pair{t.src, g.src}, self)
				continue
			}
			p.add(pair{t.src, g.src}, pair{t.dst, g.dst})
			p.add(pair{t.dst, g.dst}, pair{t.src, g.src})
		}
	}

	p.candidates = make([][]int, test.nodes)
	for i, s := range sets {
		for j := range s {
			p.candidates[i] = append(p.candidates[i], j)
		}
		sort.Ints(p.candidates[i])
	}
	return p
}

func (p *pool) matches(mapping []int) int {
	total := 0
	for i, j := range mapping {
		if j < 0 {
			continue
		}
		for k, c := range p.weights[pair{i, j}] {
			if k == self {
				total += c
				continue
			}
			if k.a > i && mapping[k.a] == k.b {
				total += c
			}
		}
	}
	return total
}

func (p *pool) smartInit(test, gold triples) []int {
	mapping := make([]int, test.nodes)
	used := make(map[int]bool)
	for i := range mapping {
		mapping[i] = -1
		for _, j := range p.candidates[i] {
			if !used[j] && test.instances[i].concept == gold.instances[j].concept {
				mapping[i] = j
				used[j] = true
				break
			}
		}
	}
	for i := range mapping {
		if mapping[i] >= 0 {
			continue
		}
		for _, j := range p.candidates[i] {
			if !used[j] {
				mapping[i] = j
				used[j] = true
				break
			}
		}
	}
	return mapping
}

func (p *pool) randomInit(rng *rand.Rand) []int {
	mapping := make([]int, len(p.candidates))
	used := make(map[int]bool)
	for i := range mapping {
		mapping[i] = -1
		cands := append([]int(nil), p.candidates[i]...)
		rng.Shuffle(len(cands), func(a, b int) { cands[a], cands[b] = cands[b], cands[a] })
		for _, j := range cands {
			if !used[j] {
				mapping[i] = j
				used[j] = true
				break
			}
		}
	}
	return mapping
}

// climb applies the best improving move or swap until none is left.
func (p *pool) climb(mapping []int, ceiling int) int {
	cur := p.matches(mapping)
	next := make([]int, len(mapping))
	for cur < ceiling {
		owner := make(map[int]int, len(mapping))
		for i, j := range mapping {
			if j >= 0 {
				owner[j] = i
			}
		}
		bestGain, bestI, bestJ := 0, -1, -1
		for i := range mapping {
			for _, j := range p.candidates[i] {
				if j == mapping[i] {
					continue
				}
				copy(next, mapping)
				if k, taken := owner[j]; taken {
					next[k] = mapping[i]
				}
				next[i] = j
				if gain := p.matches(next) - cur; gain > bestGain {
					bestGain, bestI, bestJ = gain, i, j
				}
			}
		}
		if bestGain <= 0 {
			break
		}
		if k, taken := owner[bestJ]; taken {
			mapping[k] = mapping[bestI]
		}
		mapping[bestI] = bestJ
		cur += bestGain
	}
	return cur
}

// Match finds the best mapping of test onto gold and returns the counts.
func Match(test, gold *amr.Graph, opts Options) Counts {
	if opts.Restarts < 1 {
		opts.Restarts = 1
	}
	t, g := extract(test), extract(gold)
	counts := Counts{Test: t.total(), Gold: g.total()}
	if t.nodes == 0 || g.nodes == 0 {
		return counts
	}

	ceiling := min(counts.Test, counts.Gold)
	p := buildPool(t, g)
	rng := rand.New(rand.NewSource(opts.Seed))
	for run := 0; run < opts.Restarts && counts.Match < ceiling; run++ {
		var mapping []int
		if run == 0 {
			mapping = p.smartInit(t, g)
		} else {
			mapping = p.randomInit(rng)
		}
		if m := p.climb(mapping, ceiling); m > counts.Match {
			counts.Match = m
		}
	}
	return counts
}

// PairFunc observes the counts of each scored pair.
type PairFunc func(index int, c Counts)

// ScorePairs scores aligned graph slices, micro-averaging over all pairs.
func ScorePairs(test, gold []*amr.Graph, opts Options, fn PairFunc) (Score, error) {
	if len(test) != len(gold) {
		return Score{}, fmt.Errorf("%w: %d predicted vs %d gold", ErrCountMismatch, len(test), len(gold))
	}
	var total Counts
	for i := range test {
		c := Match(test[i], gold[i], opts)
		if fn != nil {
			fn(i, c)
		}
		total = total.Add(c)
	}
	return total.Score(), nil
}

// ScoreReaders scores two PENMAN streams record by record.
func ScoreReaders(test, gold io.Reader, opts Options, fn PairFunc) (Score, error) {
	tr, gr := penman.NewReader(test), penman.NewReader(gold)
	var total Counts
	for i := 0; ; i++ {
		tg, terr := tr.Next()
		gg, gerr := gr.Next()
		if terr == io.EOF && gerr == io.EOF {
			return total.Score(), nil
		}
		if terr == io.EOF || gerr == io.EOF {
			return Score{}, fmt.Errorf("%w: streams diverge at record %d", ErrCountMismatch, i+1)
		}
		if terr != nil {
			return Score{}, fmt.Errorf("predicted: %w", terr)
		}
		if gerr != nil {
			return Score{}, fmt.Errorf("gold: %w", gerr)
		}
		c := Match(tg, gg, opts)
		if fn != nil {
			fn(i, c)
		}
		total = total.Add(c)
	}
}

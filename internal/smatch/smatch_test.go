package smatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-amreval/internal/amr"
	"github.com/23skdu/longbow-amreval/internal/penman"
)

const wantGo = `(w / want-01
   :ARG0 (b / boy)
   :ARG1 (g / go-02
            :ARG0 b))`

func decode(t *testing.T, s string) *amr.Graph {
	t.Helper()
	g, err := penman.Decode(s)
	require.NoError(t, err)
	return g
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name       string
		test, gold string
		want       Counts
	}{
		{"identical", wantGo, wantGo, Counts{Match: 7, Test: 7, Gold: 7}},
		{"renamed variables", "(x / want-01 :ARG0 (y / boy) :ARG1 (z / go-02 :ARG0 y))", wantGo, Counts{Match: 7, Test: 7, Gold: 7}},
		{"different concept", "(d / dog)", "(c / cat)", Counts{Match: 1, Test: 2, Gold: 2}},
		{"one leaf differs", "(w / want-01 :ARG0 (b / boy))", "(w / want-01 :ARG0 (g / girl))", Counts{Match: 3, Test: 4, Gold: 4}},
		{"inverse role", "(b / boy :ARG0-of (w / want-01))", "(w / want-01 :ARG0 (b / boy))", Counts{Match: 3, Test: 4, Gold: 4}},
		{"attributes", `(n / name :op1 "Obama")`, `(n / name :op1 "obama")`, Counts{Match: 3, Test: 3, Gold: 3}},
		{"polarity missing", "(g / go-02 :polarity -)", "(g / go-02)", Counts{Match: 2, Test: 3, Gold: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(decode(t, tt.test), decode(t, tt.gold), DefaultOptions())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchIsDeterministic(t *testing.T) {
	a := decode(t, "(a / and :op1 (x / thing) :op2 (y / thing) :op3 (z / thing :mod (x2 / big)))")
	b := decode(t, "(a / and :op1 (p / thing :mod (q / big)) :op2 (r / thing) :op3 (s / thing))")
	first := Match(a, b, Options{Restarts: 4, Seed: 3})
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, Match(a, b, Options{Restarts: 4, Seed: 3}))
	}
	assert.LessOrEqual(t, first.Match, min(first.Test, first.Gold))
}

func TestCountsScore(t *testing.T) {
	assert.Equal(t, Score{}, Counts{}.Score())
	assert.Equal(t, Score{}, Counts{Match: 0, Test: 3, Gold: 0}.Score())

	s := Counts{Match: 1, Test: 2, Gold: 2}.Score()
	assert.InDelta(t, 0.5, s.Precision, 1e-9)
	assert.InDelta(t, 0.5, s.Recall, 1e-9)
	assert.InDelta(t, 0.5, s.F, 1e-9)

	s = Counts{Match: 2, Test: 4, Gold: 2}.Score()
	assert.InDelta(t, 0.5, s.Precision, 1e-9)
	assert.InDelta(t, 1.0, s.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.F, 1e-9)

	assert.Equal(t, Counts{Match: 3, Test: 5, Gold: 7}, Counts{1, 2, 3}.Add(Counts{2, 3, 4}))
}

func TestScorePairsMicroAverages(t *testing.T) {
	test := []*amr.Graph{decode(t, "(d / dog)"), decode(t, wantGo)}
	gold := []*amr.Graph{decode(t, "(c / cat)"), decode(t, wantGo)}

	var seen []Counts
	s, err := ScorePairs(test, gold, DefaultOptions(), func(i int, c Counts) { seen = append(seen, c) })
	require.NoError(t, err)
	assert.InDelta(t, 8.0/9.0, s.Precision, 1e-9)
	assert.InDelta(t, 8.0/9.0, s.Recall, 1e-9)
	assert.InDelta(t, 8.0/9.0, s.F, 1e-9)
	assert.Len(t, seen, 2)

	_, err = ScorePairs(test, gold[:1], DefaultOptions(), nil)
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestScoreReaders(t *testing.T) {
	gold := "# ::id a.1\n# ::snt The boy wants to go.\n" + wantGo + "\n\n# ::id a.2\n(c / cat)\n"
	pred := wantGo + "\n\n(c / cat)\n"

	s, err := ScoreReaders(strings.NewReader(pred), strings.NewReader(gold), DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, Score{Precision: 1, Recall: 1, F: 1}, s)

	_, err = ScoreReaders(strings.NewReader(wantGo), strings.NewReader(gold), DefaultOptions(), nil)
	assert.ErrorIs(t, err, ErrCountMismatch)

	_, err = ScoreReaders(strings.NewReader("(a / b"), strings.NewReader("(a / b)"), DefaultOptions(), nil)
	assert.Error(t, err)
}

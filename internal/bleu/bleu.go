// Package bleu computes corpus-level BLEU the way sacreBLEU does by default:
// 13a tokenization, 4-gram precisions clipped against a single reference
// stream, exponential smoothing for empty n-gram orders and the brevity
// penalty.
package bleu

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// MaxOrder is the highest n-gram order counted.
const MaxOrder = 4

// ErrLengthMismatch is returned when hypotheses and references differ in
// number.
var ErrLengthMismatch = errors.New("bleu: hypothesis and reference counts differ")

// Score is a corpus BLEU result. Score and Precisions are on a 0-100 scale.
type Score struct {
	Score      float64
	Counts     [MaxOrder]int
	Totals     [MaxOrder]int
	Precisions [MaxOrder]float64
	BP         float64
	SysLen     int
	RefLen     int
}

func (s Score) String() string {
	ratio := 0.0
	if s.RefLen > 0 {
		ratio = float64(s.SysLen) / float64(s.RefLen)
	}
	return fmt.Sprintf("BLEU = %.2f %.1f/%.1f/%.1f/%.1f (BP = %.3f ratio = %.3f hyp_len = %d ref_len = %d)",
		s.Score, s.Precisions[0], s.Precisions[1], s.Precisions[2], s.Precisions[3],
		s.BP, ratio, s.SysLen, s.RefLen)
}

var tokenizer13a = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`([\{-\~\[-\x60 -\&\(-\+\:-\@\/])`), " ${1} "},
	{regexp.MustCompile(`([^0-9])([\.,])`), "${1} ${2} "},
	{regexp.MustCompile(`([\.,])([^0-9])`), " ${1} ${2}"},
	{regexp.MustCompile(`([0-9])(-)`), "${1} ${2} "},
}

var unescape = strings.NewReplacer("&quot;", `"`, "&amp;", "&", "&lt;", "<", "&gt;", ">")

// Tokenize13a applies the mteval-v13a tokenization.
func Tokenize13a(line string) []string {
	line = strings.ReplaceAll(line, "<skipped>", "")
	line = strings.ReplaceAll(line, "-\n", "")
	line = strings.ReplaceAll(line, "\n", " ")
	if strings.Contains(line, "&") {
		line = unescape.Replace(line)
	}
	line = " " + line + " "
	for _, r := range tokenizer13a {
		line = r.re.ReplaceAllString(line, r.repl)
	}
	return strings.Fields(line)
}

func ngrams(tokens []string, n int) map[string]int {
	out := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+n], " ")]++
	}
	return out
}

// Corpus scores hypotheses against references, aligned by position.
func Corpus(hypotheses, references []string) (Score, error) {
	if len(hypotheses) != len(references) {
		return Score{}, fmt.Errorf("%w: %d hypotheses vs %d references", ErrLengthMismatch, len(hypotheses), len(references))
	}
	var s Score
	for i := range hypotheses {
		hyp := Tokenize13a(hypotheses[i])
		ref := Tokenize13a(references[i])
		s.SysLen += len(hyp)
		s.RefLen += len(ref)
		for n := 1; n <= MaxOrder; n++ {
			refCounts := ngrams(ref, n)
			for gram, c := range ngrams(hyp, n) {
				s.Counts[n-1] += min(c, refCounts[gram])
			}
			if len(hyp) >= n {
				s.Totals[n-1] += len(hyp) - n + 1
			}
		}
	}
	s.compute()
	return s, nil
}

func logOrFloor(x float64) float64 {
	if x == 0 {
		return -9999999999
	}
	return math.Log(x)
}

func (s *Score) compute() {
	smooth := 1.0
	for n := 0; n < MaxOrder; n++ {
		if s.Totals[n] == 0 {
			break
		}
		if s.Counts[n] == 0 {
			smooth *= 2
			s.Precisions[n] = 100 / (smooth * float64(s.Totals[n]))
			continue
		}
		s.Precisions[n] = 100 * float64(s.Counts[n]) / float64(s.Totals[n])
	}

	s.BP = 1
	if s.SysLen < s.RefLen {
		if s.SysLen > 0 {
			s.BP = math.Exp(1 - float64(s.RefLen)/float64(s.SysLen))
		} else {
			s.BP = 0
		}
	}

	sum := 0.0
	for _, p := range s.Precisions {
		sum += logOrFloor(p)
	}
	s.Score = s.BP * math.Exp(sum/MaxOrder)
}

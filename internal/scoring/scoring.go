// Package scoring compares predictions against gold data: smatch for graphs
// and corpus BLEU for sentences. It also writes prediction files in the
// format the scorers read back.
package scoring

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/23skdu/longbow-amreval/internal/amr"
	"github.com/23skdu/longbow-amreval/internal/bleu"
	"github.com/23skdu/longbow-amreval/internal/logger"
	"github.com/23skdu/longbow-amreval/internal/metrics"
	"github.com/23skdu/longbow-amreval/internal/penman"
	"github.com/23skdu/longbow-amreval/internal/smatch"
)

// ComputeSmatch scores the predicted PENMAN file against the gold one. Both
// files must hold the same number of records, in the same order. Per-pair
// counts are logged at debug level.
func ComputeSmatch(goldPath, predPath string, opts smatch.Options) (smatch.Score, error) {
	gold, err := os.Open(goldPath)
	if err != nil {
		return smatch.Score{}, fmt.Errorf("open gold: %w", err)
	}
	defer gold.Close()
	pred, err := os.Open(predPath)
	if err != nil {
		return smatch.Score{}, fmt.Errorf("open predictions: %w", err)
	}
	defer pred.Close()

	pairs := 0
	score, err := smatch.ScoreReaders(pred, gold, opts, func(i int, c smatch.Counts) {
		pairs++
		s := c.Score()
		logger.Log.Debug("smatch pair", "index", i, "match", c.Match, "test", c.Test, "gold", c.Gold, "f", s.F)
	})
	if err != nil {
		return smatch.Score{}, fmt.Errorf("smatch %s vs %s: %w", predPath, goldPath, err)
	}

	metrics.RecordSmatch(score.Precision, score.Recall, score.F, pairs)
	logger.Log.Info("smatch computed", "pairs", pairs, "precision", score.Precision, "recall", score.Recall, "f", score.F)
	return score, nil
}

// ComputeSmatchF is ComputeSmatch reduced to the F-score.
func ComputeSmatchF(goldPath, predPath string, opts smatch.Options) (float64, error) {
	s, err := ComputeSmatch(goldPath, predPath, opts)
	if err != nil {
		return 0, err
	}
	return s.F, nil
}

// ComputeBLEU returns corpus BLEU of pred against a single reference stream.
func ComputeBLEU(gold, pred []string) (bleu.Score, error) {
	s, err := bleu.Corpus(pred, gold)
	if err != nil {
		return bleu.Score{}, err
	}
	metrics.RecordBLEU(s.Score)
	logger.Log.Info("bleu computed", "sentences", len(pred), "score", s.Score, "bp", s.BP)
	return s, nil
}

// WritePredictions encodes graphs as PENMAN records separated by a blank
// line. initMarker, the tokenizer's word-start marker, is removed from the
// text first.
func WritePredictions(path string, graphs []*amr.Graph, initMarker string) error {
	pieces := make([]string, len(graphs))
	for i, g := range graphs {
		s, err := penman.Encode(g)
		if err != nil {
			return fmt.Errorf("encode prediction %d: %w", i, err)
		}
		if initMarker != "" {
			s = strings.ReplaceAll(s, initMarker, "")
		}
		pieces[i] = s
	}
	out := strings.Join(pieces, "\n\n")
	if out != "" {
		out += "\n"
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	return nil
}

// WriteSentences writes one sentence per line.
func WriteSentences(path string, sentences []string) error {
	var b strings.Builder
	for _, s := range sentences {
		b.WriteString(strings.ReplaceAll(s, "\n", " "))
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// ReadSentences reads one sentence per line, trailing newline dropped.
func ReadSentences(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		out = append(out, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

package penman

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/23skdu/longbow-amreval/internal/amr"
)

const maxLineSize = 16 * 1024 * 1024

// Reader yields graphs from a stream of blank-line separated records.
type Reader struct {
	sc     *bufio.Scanner
	record int
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Reader{sc: sc}
}

// NextBlock returns the raw text of the next record, metadata included.
// It returns io.EOF when the stream is exhausted.
func (r *Reader) NextBlock() (string, error) {
	var lines []string
	hasGraph := false
	for r.sc.Scan() {
		line := r.sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if hasGraph {
				return strings.Join(lines, "\n"), nil
			}
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			hasGraph = true
		}
		lines = append(lines, line)
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	if hasGraph {
		return strings.Join(lines, "\n"), nil
	}
	return "", io.EOF
}

// Next decodes the next graph.
func (r *Reader) Next() (*amr.Graph, error) {
	block, err := r.NextBlock()
	if err != nil {
		return nil, err
	}
	r.record++
	g, err := Decode(block)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", r.record, err)
	}
	return g, nil
}

// ReadAll decodes every remaining graph.
func (r *Reader) ReadAll() ([]*amr.Graph, error) {
	var out []*amr.Graph
	for {
		g, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
}

// ReadFile decodes every graph in path.
func ReadFile(path string) ([]*amr.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	graphs, err := NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return graphs, nil
}

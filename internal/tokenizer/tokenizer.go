// Package tokenizer decodes token ids of a byte-level BPE vocabulary, the
// kind BART-based AMR models ship as vocab.json, into sentences and graphs.
package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/23skdu/longbow-amreval/internal/evaluation"
)

// InitMarker is the byte-level encoding of a leading space.
const InitMarker = "Ġ"

var specialTokens = []string{"<s>", "<pad>", "</s>", "<unk>", "<mask>"}

type Tokenizer struct {
	Tokens  []string
	Vocab   map[string]int
	special map[int]bool
}

var _ evaluation.Tokenizer = (*Tokenizer)(nil)

// New builds a tokenizer from the id-ordered token list. Empty entries are
// holes in the id space.
func New(tokens []string) *Tokenizer {
	t := &Tokenizer{
		Tokens:  tokens,
		Vocab:   make(map[string]int, len(tokens)),
		special: make(map[int]bool),
	}
	for i, tok := range tokens {
		if tok != "" {
			t.Vocab[tok] = i
		}
	}
	for _, s := range specialTokens {
		if id, ok := t.Vocab[s]; ok {
			t.special[id] = true
		}
	}
	return t
}

// Load reads a vocab.json mapping tokens to ids.
func Load(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vocab map[string]int
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	size := 0
	for _, id := range vocab {
		if id < 0 {
			return nil, fmt.Errorf("%s: negative token id %d", path, id)
		}
		size = max(size, id+1)
	}
	tokens := make([]string, size)
	for tok, id := range vocab {
		tokens[id] = tok
	}
	return New(tokens), nil
}

func (t *Tokenizer) TokenID(token string) (int, bool) {
	id, ok := t.Vocab[token]
	return id, ok
}

// pieces maps ids to their tokens, dropping special tokens.
func (t *Tokenizer) pieces(ids []int) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= len(t.Tokens) || t.Tokens[id] == "" {
			return nil, fmt.Errorf("token id %d not in vocabulary of %d", id, len(t.Tokens))
		}
		if t.special[id] {
			continue
		}
		out = append(out, t.Tokens[id])
	}
	return out, nil
}

// Decode returns the text of ids with special tokens removed.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	p, err := t.pieces(ids)
	if err != nil {
		return "", err
	}
	return decodeBytes(strings.Join(p, "")), nil
}

var byteDecoder = buildByteDecoder()

// buildByteDecoder inverts the byte-to-rune table of byte-level BPE, where
// printable bytes map to themselves and the rest to runes from U+0100 on.
func buildByteDecoder() map[rune]byte {
	dec := make(map[rune]byte, 256)
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	n := 0
	for b := 0; b < 256; b++ {
		if printable(b) {
			dec[rune(b)] = byte(b)
			continue
		}
		dec[rune(256+n)] = byte(b)
		n++
	}
	return dec
}

func decodeBytes(s string) string {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := byteDecoder[r]; ok {
			buf = append(buf, b)
			continue
		}
		buf = append(buf, string(r)...)
	}
	return string(buf)
}

package penman

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is returned for malformed PENMAN text.
var ErrSyntax = errors.New("penman syntax error")

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokSlash
	tokRole
	tokString
	tokSymbol
)

func (k tokenKind) String() string {
	switch k {
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokSlash:
		return "'/'"
	case tokRole:
		return "role"
	case tokString:
		return "string"
	default:
		return "symbol"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// isSpace only looks at ASCII; bytes of multi-byte runes are never
// delimiters.
func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isDelim(r byte) bool {
	return r == '(' || r == ')' || r == '/' || isSpace(r)
}

// lex splits a graph string into tokens. Alignment markers ("~e.3") are
// dropped from roles, symbols and strings.
func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case isSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '/':
			toks = append(toks, token{tokSlash, "/", i})
			i++
		case c == '"':
			start := i
			i++
			for i < len(s) && s[i] != '"' {
				if s[i] == '\\' {
					i++
				}
				i++
			}
			if i >= len(s) {
				return nil, fmt.Errorf("%w: unterminated string at %d", ErrSyntax, start)
			}
			i++
			text := s[start:i]
			for i < len(s) && !isDelim(s[i]) {
				i++
			}
			toks = append(toks, token{tokString, text, start})
		default:
			start := i
			for i < len(s) && !isDelim(s[i]) {
				i++
			}
			text := stripAlignment(s[start:i])
			kind := tokSymbol
			if c == ':' {
				kind = tokRole
			}
			toks = append(toks, token{kind, text, start})
		}
	}
	return toks, nil
}

func stripAlignment(sym string) string {
	if idx := strings.IndexByte(sym, '~'); idx > 0 {
		return sym[:idx]
	}
	return sym
}

// Package penman reads and writes AMR graphs in PENMAN notation.
package penman

import (
	"errors"
	"fmt"
	"strings"

	"github.com/23skdu/longbow-amreval/internal/amr"
)

// ErrEmptyGraph is returned when encoding a graph without a top node.
var ErrEmptyGraph = errors.New("penman: graph has no top")

type parser struct {
	toks []token
	pos  int
	g    *amr.Graph
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t, ok := p.peek()
	if !ok {
		return token{}, fmt.Errorf("%w: expected %s, got end of input", ErrSyntax, kind)
	}
	if t.kind != kind {
		return token{}, fmt.Errorf("%w: expected %s at %d, got %q", ErrSyntax, kind, t.pos, t.text)
	}
	p.pos++
	return t, nil
}

func (p *parser) node() (string, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return "", err
	}
	v, err := p.expect(tokSymbol)
	if err != nil {
		return "", err
	}
	if t, ok := p.peek(); ok && t.kind == tokSlash {
		p.pos++
		c, ok := p.peek()
		if !ok || (c.kind != tokSymbol && c.kind != tokString) {
			return "", fmt.Errorf("%w: missing concept for %q", ErrSyntax, v.text)
		}
		p.pos++
		p.g.Triples = append(p.g.Triples, amr.Triple{Source: v.text, Role: amr.RoleInstance, Target: c.text})
	}
	for {
		t, ok := p.peek()
		if !ok {
			return "", fmt.Errorf("%w: unclosed node %q", ErrSyntax, v.text)
		}
		if t.kind == tokRParen {
			p.pos++
			return v.text, nil
		}
		if t.kind != tokRole {
			return "", fmt.Errorf("%w: expected role at %d, got %q", ErrSyntax, t.pos, t.text)
		}
		p.pos++
		target, ok := p.peek()
		if !ok {
			return "", fmt.Errorf("%w: role %s has no target", ErrSyntax, t.text)
		}
		switch target.kind {
		case tokLParen:
			idx := len(p.g.Triples)
			p.g.Triples = append(p.g.Triples, amr.Triple{Source: v.text, Role: t.text})
			child, err := p.node()
			if err != nil {
				return "", err
			}
			p.g.Triples[idx].Target = child
		case tokSymbol, tokString:
			p.pos++
			p.g.Triples = append(p.g.Triples, amr.Triple{Source: v.text, Role: t.text, Target: target.text})
		default:
			return "", fmt.Errorf("%w: role %s has no target", ErrSyntax, t.text)
		}
	}
}

// Decode parses one graph. Lines starting with '#' are read as metadata.
func Decode(s string) (*amr.Graph, error) {
	var body strings.Builder
	meta := amr.Metadata{}
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			parseMetadataLine(trimmed, meta)
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}

	toks, err := lex(body.String())
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, g: &amr.Graph{Metadata: meta}}
	top, err := p.node()
	if err != nil {
		return nil, err
	}
	if t, ok := p.peek(); ok {
		return nil, fmt.Errorf("%w: trailing input at %d: %q", ErrSyntax, t.pos, t.text)
	}
	p.g.Top = top
	return p.g, nil
}

// parseMetadataLine reads "# ::key value ::key2 value2" into meta.
// Comment lines without "::" fields are ignored.
func parseMetadataLine(line string, meta amr.Metadata) {
	s := strings.TrimSpace(strings.TrimLeft(line, "#"))
	if !strings.HasPrefix(s, "::") {
		return
	}
	for _, field := range strings.Split(" "+s, " ::")[1:] {
		key, value, _ := strings.Cut(field, " ")
		if key == "" {
			continue
		}
		meta[key] = strings.TrimSpace(value)
	}
}

// Encode renders g with its metadata header. Child roles are indented three
// columns past the opening paren of their node.
func Encode(g *amr.Graph) (string, error) {
	if g == nil || g.Top == "" {
		return "", ErrEmptyGraph
	}
	var b strings.Builder
	for _, k := range g.Metadata.Keys() {
		if v := g.Metadata[k]; v != "" {
			fmt.Fprintf(&b, "# ::%s %s\n", k, v)
		} else {
			fmt.Fprintf(&b, "# ::%s\n", k)
		}
	}

	children := make(map[string][]amr.Triple)
	concepts := make(map[string]string)
	for _, t := range g.Triples {
		if t.Role == amr.RoleInstance {
			concepts[t.Source] = t.Target
			continue
		}
		children[t.Source] = append(children[t.Source], t)
	}

	printed := make(map[string]bool)
	var write func(v string, col int)
	write = func(v string, col int) {
		printed[v] = true
		b.WriteString("(")
		b.WriteString(v)
		if c, ok := concepts[v]; ok {
			b.WriteString(" / ")
			b.WriteString(c)
		}
		indent := strings.Repeat(" ", col+3)
		for _, t := range children[v] {
			b.WriteString("\n")
			b.WriteString(indent)
			b.WriteString(t.Role)
			b.WriteString(" ")
			if _, isVar := concepts[t.Target]; isVar && !printed[t.Target] {
				write(t.Target, col+3+len(t.Role)+1)
			} else {
				b.WriteString(t.Target)
			}
		}
		b.WriteString(")")
	}
	write(g.Top, 0)
	return b.String(), nil
}

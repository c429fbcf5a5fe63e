package tokenizer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/23skdu/longbow-amreval/internal/amr"
	"github.com/23skdu/longbow-amreval/internal/evaluation"
	"github.com/23skdu/longbow-amreval/internal/penman"
)

const (
	pointerPrefix = "<pointer:"
	litOpen       = "<lit>"
	litClose      = "</lit>"
)

// Backoff is the graph returned when a candidate cannot be read at all.
func Backoff() *amr.Graph {
	return &amr.Graph{
		Top: "b1",
		Triples: []amr.Triple{
			{Source: "b1", Role: amr.RoleInstance, Target: "bark-01"},
			{Source: "b1", Role: ":ARG0", Target: "d2"},
			{Source: "d2", Role: amr.RoleInstance, Target: "dog"},
		},
	}
}

// DecodeAMR reads a linearized graph. Nodes are written as
// "( <pointer:N> concept ...)" and re-entrancies as a bare "<pointer:N>".
// Unbalanced brackets are repaired and reported as StatusFixed; anything
// unreadable becomes the backoff graph with StatusBackoff.
func (t *Tokenizer) DecodeAMR(ids []int, restoreNameOps bool) (evaluation.AMRDecoding, error) {
	text, err := t.Decode(ids)
	if err != nil {
		return evaluation.AMRDecoding{}, err
	}
	nodes := symbols(text)
	backrefs := backreferences(nodes)

	src, fixed, ok := linearize(nodes)
	if !ok {
		return evaluation.AMRDecoding{Graph: Backoff(), Status: amr.StatusBackoff, Nodes: nodes, Backreferences: backrefs}, nil
	}
	g, err := penman.Decode(src)
	if err != nil {
		return evaluation.AMRDecoding{Graph: Backoff(), Status: amr.StatusBackoff, Nodes: nodes, Backreferences: backrefs}, nil
	}
	if restoreNameOps {
		splitNameOps(g)
	}
	status := amr.StatusOK
	if fixed {
		status = amr.StatusFixed
	}
	return evaluation.AMRDecoding{Graph: g, Status: status, Nodes: nodes, Backreferences: backrefs}, nil
}

// symbols splits decoded text on whitespace and around brackets. Literal
// spans keep their inner spacing as single symbols.
func symbols(text string) []string {
	var out []string
	fields := strings.Fields(strings.NewReplacer("(", " ( ", ")", " ) ").Replace(text))
	for i := 0; i < len(fields); i++ {
		if fields[i] != litOpen {
			out = append(out, fields[i])
			continue
		}
		j := i + 1
		for j < len(fields) && fields[j] != litClose {
			j++
		}
		out = append(out, strconv.Quote(strings.Join(fields[i+1:min(j, len(fields))], " ")))
		i = j
	}
	return out
}

// backreferences points every repeated pointer at its first position.
func backreferences(nodes []string) []int {
	first := make(map[string]int)
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = i
		if !strings.HasPrefix(n, pointerPrefix) {
			continue
		}
		if j, ok := first[n]; ok {
			out[i] = j
		} else {
			first[n] = i
		}
	}
	return out
}

func pointerVar(sym string) (string, bool) {
	if !strings.HasPrefix(sym, pointerPrefix) || !strings.HasSuffix(sym, ">") {
		return "", false
	}
	n := sym[len(pointerPrefix) : len(sym)-1]
	if _, err := strconv.Atoi(n); err != nil {
		return "", false
	}
	return "p" + n, true
}

// linearize rewrites pointer notation into PENMAN and balances brackets.
func linearize(nodes []string) (string, bool, bool) {
	start := -1
	for i, n := range nodes {
		if n == "(" {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false, false
	}
	fixed := start > 0

	var b strings.Builder
	depth, fresh := 0, 0
	for i := start; i < len(nodes); i++ {
		n := nodes[i]
		switch {
		case n == "(":
			v, concept := "", ""
			if i+1 < len(nodes) {
				if pv, ok := pointerVar(nodes[i+1]); ok {
					v = pv
					i++
				}
			}
			if i+1 < len(nodes) && nodes[i+1] != "(" && nodes[i+1] != ")" && !strings.HasPrefix(nodes[i+1], ":") {
				concept = nodes[i+1]
				i++
			}
			if concept == "" {
				fixed = true
				concept = "thing"
			}
			if v == "" {
				fresh++
				v = fmt.Sprintf("z%d", fresh)
			}
			fmt.Fprintf(&b, " (%s / %s", v, concept)
			depth++
		case n == ")":
			if depth == 0 {
				fixed = true
				continue
			}
			b.WriteString(")")
			depth--
			if depth == 0 && i+1 < len(nodes) {
				fixed = true
				i = len(nodes)
			}
		default:
			if depth == 0 {
				fixed = true
				continue
			}
			if pv, ok := pointerVar(n); ok {
				n = pv
			}
			b.WriteString(" ")
			b.WriteString(n)
		}
	}
	if depth > 0 {
		fixed = true
		b.WriteString(strings.Repeat(")", depth))
	}
	return strings.TrimSpace(b.String()), fixed, true
}

// splitNameOps turns :op1 "New_York" under a name node into :op1 "New"
// :op2 "York".
func splitNameOps(g *amr.Graph) {
	out := make([]amr.Triple, 0, len(g.Triples))
	for _, tr := range g.Triples {
		value := strings.Trim(tr.Target, `"`)
		if tr.Role != ":op1" || g.Concept(tr.Source) != "name" || !strings.Contains(value, "_") {
			out = append(out, tr)
			continue
		}
		for k, part := range strings.Split(value, "_") {
			out = append(out, amr.Triple{Source: tr.Source, Role: fmt.Sprintf(":op%d", k+1), Target: strconv.Quote(part)})
		}
	}
	g.Triples = out
}

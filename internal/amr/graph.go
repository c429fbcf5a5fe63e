// Package amr holds the graph model shared by the decoding pipeline, the
// PENMAN codec and the smatch scorer.
package amr

import (
	"fmt"
	"sort"
	"strings"
)

// RoleInstance is the pseudo-role of the concept triple of a variable.
const RoleInstance = ":instance"

// Status is the validity of a decoded graph. Lower is better.
type Status int

const (
	// StatusOK means the linearization decoded without edits.
	StatusOK Status = iota
	// StatusFixed means the decoder had to repair the linearization.
	StatusFixed
	// StatusBackoff means decoding failed and a fallback graph was produced.
	StatusBackoff
)

func (s Status) Value() int { return int(s) }

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFixed:
		return "fixed"
	case StatusBackoff:
		return "backoff"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "ok":
		return StatusOK, nil
	case "fixed":
		return StatusFixed, nil
	case "backoff":
		return StatusBackoff, nil
	}
	return 0, fmt.Errorf("unknown graph status %q", s)
}

// Triple is one edge of a graph. Concepts are stored as
// (variable, RoleInstance, concept). Roles keep the form they were written
// in, inverse roles included, so a graph re-encodes to the same layout.
type Triple struct {
	Source string
	Role   string
	Target string
}

// Metadata holds the "# ::key value" header of a graph.
type Metadata map[string]string

// Clone returns a shallow copy; a nil receiver yields an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var metadataOrder = []string{"id", "snt", "tok", "annotator", "date"}

// Keys returns the keys in a stable order: the well-known header fields
// first, then the rest alphabetically.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(metadataOrder))
	for _, k := range metadataOrder {
		if _, ok := m[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// Graph is a rooted AMR graph plus the decoding provenance attached by the
// pipeline.
type Graph struct {
	Top      string
	Triples  []Triple
	Metadata Metadata

	Status         Status
	Nodes          []string
	Backreferences []int
	Tokens         []int
}

// Variables returns the set of variables that carry a concept.
func (g *Graph) Variables() map[string]bool {
	vars := make(map[string]bool)
	for _, t := range g.Triples {
		if t.Role == RoleInstance {
			vars[t.Source] = true
		}
	}
	return vars
}

// Concept returns the concept of v, or "" when v has none.
func (g *Graph) Concept(v string) string {
	for _, t := range g.Triples {
		if t.Role == RoleInstance && t.Source == v {
			return t.Target
		}
	}
	return ""
}

// Instances returns the concept triples in document order.
func (g *Graph) Instances() []Triple {
	var out []Triple
	for _, t := range g.Triples {
		if t.Role == RoleInstance {
			out = append(out, t)
		}
	}
	return out
}

// Edges returns the non-concept triples split into relations (target is a
// variable) and attributes (target is a constant).
func (g *Graph) Edges() (relations, attributes []Triple) {
	vars := g.Variables()
	for _, t := range g.Triples {
		if t.Role == RoleInstance {
			continue
		}
		if vars[t.Target] {
			relations = append(relations, t)
		} else {
			attributes = append(attributes, t)
		}
	}
	return relations, attributes
}

// IsInverted reports whether role is written in its inverse form. The
// ":consist-of" role is a base role despite its suffix.
func IsInverted(role string) bool {
	return strings.HasSuffix(role, "-of") && role != ":consist-of"
}

// Normalize turns an inverse-role triple into its base orientation.
func Normalize(t Triple) Triple {
	if !IsInverted(t.Role) {
		return t
	}
	return Triple{Source: t.Target, Role: strings.TrimSuffix(t.Role, "-of"), Target: t.Source}
}

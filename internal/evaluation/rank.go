package evaluation

import (
	"cmp"
	"slices"

	"github.com/23skdu/longbow-amreval/internal/amr"
)

// RankBy orders a beam group by (status, beam rank) ascending and returns a
// new slice; group itself is not reordered.
func RankBy[T any](group []T, status func(T) int) []T {
	order := make([]int, len(group))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return cmp.Or(cmp.Compare(status(group[a]), status(group[b])), cmp.Compare(a, b))
	})
	out := make([]T, len(group))
	for k, i := range order {
		out[k] = group[i]
	}
	return out
}

// RankCandidates puts the most valid graph first, breaking ties by beam rank.
func RankCandidates(group []*amr.Graph) []*amr.Graph {
	return RankBy(group, func(g *amr.Graph) int { return g.Status.Value() })
}

// SelectBest returns the top-ranked graph, or nil for an empty group.
func SelectBest(group []*amr.Graph) *amr.Graph {
	if len(group) == 0 {
		return nil
	}
	return RankCandidates(group)[0]
}

// Best reduces every group to its first element.
func Best[T any](groups [][]T) []T {
	out := make([]T, 0, len(groups))
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g[0])
		}
	}
	return out
}

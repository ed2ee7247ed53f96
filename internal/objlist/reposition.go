package objlist

import (
	"github.com/rescale/livelist/internal/render"
)

// reposition reorders the nodes of order to match target using pairwise
// swaps. order holds the identities in current render order and is
// updated in place; target must be a permutation of it. Walking target,
// the node wanted at position p is swapped with the node currently there,
// so positions before p are final and at most len(target)-1 swaps happen.
// It returns the number of swaps.
func reposition(tree render.Tree, order []string, nodeOf func(id string) render.Node, target []string) int {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	swaps := 0
	for p, id := range target {
		cur, ok := pos[id]
		if !ok || cur == p || p >= len(order) {
			continue
		}
		other := order[p]
		tree.Swap(nodeOf(id), nodeOf(other))
		order[p], order[cur] = id, other
		pos[id], pos[other] = p, cur
		swaps++
	}
	return swaps
}

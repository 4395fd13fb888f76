package classify

import (
	"math/rand"
	"sort"
)

// NoGroup marks a label that PermuteWithin leaves in place
const NoGroup = -1

// PermuteWithin returns a copy of labels shuffled among entries sharing a group value
func PermuteWithin(labels []int, groups []int, rng *rand.Rand) []int {
	out := make([]int, len(labels))
	copy(out, labels)

	members := make(map[int][]int)
	for i, g := range groups {
		if g != NoGroup {
			members[g] = append(members[g], i)
		}
	}

	// shuffle groups in a fixed order so a seeded rng reproduces
	keys := make([]int, 0, len(members))
	for g := range members {
		keys = append(keys, g)
	}
	sort.Ints(keys)

	for _, g := range keys {
		idx := members[g]
		rng.Shuffle(len(idx), func(i, j int) {
			a, b := idx[i], idx[j]
			out[a], out[b] = out[b], out[a]
		})
	}

	return out
}

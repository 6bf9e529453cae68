package retrieval

import (
	"sort"
	"strings"
)

// SelectDiverse reduces a candidate pool to at most k chunks using greedy
// maximal marginal relevance. Plain top-K by similarity tends to return
// near-duplicate chunks from adjacent passages; trading a little top-1
// relevance for topical coverage matters when the answer spans sections.
//
// lambda weighs relevance against redundancy: score = lambda*similarity -
// (1-lambda)*overlap, where overlap is the worst word-set overlap against any
// already-selected chunk. Ties resolve to the first-seen candidate. The
// result never contains two entries with the same chunk ID.
func SelectDiverse(candidates []Candidate, k int, lambda float64) Selection {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}

	pool := make([]Candidate, len(candidates))
	copy(pool, candidates)
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Similarity > pool[j].Similarity
	})

	seen := map[string]bool{pool[0].Chunk.ID: true}
	selected := Selection{pool[0]}
	remaining := pool[1:]

	wordSets := make(map[string]map[string]struct{}, len(pool))
	for _, c := range pool {
		wordSets[c.Chunk.ID] = wordSet(c.Chunk.Text)
	}

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := 0.0

		for i, c := range remaining {
			if seen[c.Chunk.ID] {
				continue
			}

			maxOverlap := 0.0
			for _, s := range selected {
				o := overlap(wordSets[c.Chunk.ID], wordSets[s.Chunk.ID])
				if o > maxOverlap {
					maxOverlap = o
				}
			}

			score := lambda*c.Similarity - (1-lambda)*maxOverlap
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}

		if bestIdx == -1 {
			break
		}

		pick := remaining[bestIdx]
		seen[pick.Chunk.ID] = true
		selected = append(selected, pick)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// overlap is |a ∩ b| / |a|, the share of a's vocabulary already covered by b.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a))
}

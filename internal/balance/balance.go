// Package balance picks a bounded, perspective-diverse subset out of a
// recency-ordered candidate pool.
package balance

import "geopulse/internal/model"

// seedSize is the number of top candidates admitted verbatim before any
// diversity balancing kicks in. Recency and relevance always win over
// diversity for this top slice.
const seedSize = 10

// Select returns at most maxTotal articles from candidates, which the
// caller must pass ordered by recency/relevance. The first seedSize
// distinct-link candidates are taken as-is; the rest of the slots are
// filled round-robin across the perspectives present in the pool (in
// first-seen order), with each perspective contributing at most
// maxPerPerspective fill-phase articles. Seed items are exempt from the
// cap, so a perspective dominating the top slice can exceed it in the
// final set. The result never contains the same link twice and is
// deterministic for identical input order.
func Select(candidates []model.Article, maxTotal, maxPerPerspective int) []model.Article {
	if len(candidates) == 0 || maxTotal <= 0 {
		return nil
	}

	selected := make([]model.Article, 0, maxTotal)
	seen := make(map[string]bool, len(candidates))

	for _, a := range candidates {
		if len(selected) >= seedSize || len(selected) >= maxTotal {
			break
		}
		if a.Link == "" || seen[a.Link] {
			continue
		}
		seen[a.Link] = true
		selected = append(selected, a)
	}

	// Group the unseen remainder by perspective, remembering the order
	// in which perspectives first appear in the full pool.
	var order []model.Perspective
	grouped := make(map[model.Perspective][]model.Article)
	remaining := 0
	for _, a := range candidates {
		if _, known := grouped[a.Perspective]; !known {
			order = append(order, a.Perspective)
			grouped[a.Perspective] = nil
		}
		if a.Link == "" || seen[a.Link] {
			continue
		}
		grouped[a.Perspective] = append(grouped[a.Perspective], a)
		remaining++
	}

	fillCount := make(map[model.Perspective]int, len(order))
	next := make(map[model.Perspective]int, len(order))

	// Each sweep visits every perspective once; 2x the remaining count
	// bounds the loop even if no sweep makes progress.
	for sweep := 0; sweep < 2*remaining && len(selected) < maxTotal; sweep++ {
		progressed := false
		for _, p := range order {
			if len(selected) >= maxTotal {
				break
			}
			if fillCount[p] >= maxPerPerspective {
				continue
			}
			pool := grouped[p]
			for next[p] < len(pool) {
				a := pool[next[p]]
				next[p]++
				if seen[a.Link] {
					continue
				}
				seen[a.Link] = true
				selected = append(selected, a)
				fillCount[p]++
				progressed = true
				break
			}
		}
		if !progressed {
			break
		}
	}

	return selected
}

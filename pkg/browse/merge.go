package browse

import "github.com/memodeck/memodeck/pkg/api"

// mergeCards appends incoming cards that are not already present, keyed by
// id. Existing cards keep their position and content, so a re-fetched page
// is a no-op and out-of-order arrivals never produce duplicates.
func mergeCards(existing, incoming []api.Card) []api.Card {
	seen := make(map[string]struct{}, len(existing))
	for i := range existing {
		seen[existing[i].ID] = struct{}{}
	}
	out := existing
	for _, c := range incoming {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Package search filters a recipe snapshot for the explore view: fuzzy
// matching on names ranked by distance, plus ingredient prefix matches.
package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"

	"github.com/platefeed/server/pkg/model/mrecipe"
)

var fold = cases.Fold()

// Entries returns the entries matching term, best name matches first and
// ingredient prefix matches after. A blank term matches everything.
func Entries(term string, entries []mrecipe.RecipeEntry) []mrecipe.RecipeEntry {
	if strings.TrimSpace(term) == "" {
		out := make([]mrecipe.RecipeEntry, len(entries))
		copy(out, entries)
		return out
	}

	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name
	}

	ranks := fuzzy.RankFindNormalizedFold(term, names)
	sort.Stable(ranks)

	seen := make(map[int]struct{}, len(ranks))
	out := make([]mrecipe.RecipeEntry, 0, len(ranks))
	for _, rank := range ranks {
		if _, ok := seen[rank.OriginalIndex]; ok {
			continue
		}
		seen[rank.OriginalIndex] = struct{}{}
		out = append(out, entries[rank.OriginalIndex])
	}

	foldedTerm := fold.String(term)
	for i, entry := range entries {
		if _, ok := seen[i]; ok {
			continue
		}
		if hasIngredientPrefix(entry.Ingredients, foldedTerm) {
			seen[i] = struct{}{}
			out = append(out, entry)
		}
	}
	return out
}

func hasIngredientPrefix(ingredients []string, foldedTerm string) bool {
	for _, ingredient := range ingredients {
		if strings.HasPrefix(fold.String(ingredient), foldedTerm) {
			return true
		}
	}
	return false
}

package indexer

import (
	"sort"

	"github.com/hyperjump/contentindex/internal/models"
)

// Plan is the set of index writes that moves a content item from its prior state to a new one.
type Plan struct {
	// Retire lists prior document ids absent from the new state, sorted.
	Retire []string
	// Keep lists prior document ids that are rewritten in place, sorted.
	Keep []string
	// Add lists new document ids with no prior counterpart, sorted.
	Add []string
}

// Diff compares two state snapshots. Either side may be nil. Neither is modified.
func Diff(prior, next *models.TextContentState) Plan {
	before := prior.AllDocIDs()
	after := next.AllDocIDs()

	inAfter := make(map[string]struct{}, len(after))
	for _, id := range after {
		inAfter[id] = struct{}{}
	}
	inBefore := make(map[string]struct{}, len(before))

	var plan Plan
	for _, id := range before {
		inBefore[id] = struct{}{}
		if _, ok := inAfter[id]; ok {
			plan.Keep = append(plan.Keep, id)
		} else {
			plan.Retire = append(plan.Retire, id)
		}
	}
	for _, id := range after {
		if _, ok := inBefore[id]; !ok {
			plan.Add = append(plan.Add, id)
		}
	}
	sort.Strings(plan.Retire)
	sort.Strings(plan.Keep)
	sort.Strings(plan.Add)
	return plan
}

// Retire returns the prior document ids that the next state no longer references.
func Retire(prior, next *models.TextContentState) []string {
	return Diff(prior, next).Retire
}

package services

import (
	"sort"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// BuildQueue orders units for dispatch.
//
// New and changed units form the priority set and always come before any
// backlog unit. Each set is ordered by owner, then sequence descending so
// the latest page of a notebook is pushed first. The result is truncated
// to maxItems (DefaultMaxItems when maxItems <= 0); anything cut stays
// pending for the next run.
func BuildQueue(newUnits, changed, backlog []domain.SyncableUnit, maxItems int) []domain.SyncableUnit {
	if maxItems <= 0 {
		maxItems = domain.DefaultMaxItems
	}

	seen := make(map[domain.ItemKey]struct{}, len(newUnits)+len(changed)+len(backlog))

	priority := collectUnique(seen, newUnits, changed)
	rest := collectUnique(seen, backlog)

	sortUnits(priority)
	sortUnits(rest)

	queue := make([]domain.SyncableUnit, 0, min(maxItems, len(priority)+len(rest)))
	queue = append(queue, priority...)
	queue = append(queue, rest...)

	if len(queue) > maxItems {
		queue = queue[:maxItems]
	}
	return queue
}

// collectUnique appends units whose key has not been seen yet.
func collectUnique(seen map[domain.ItemKey]struct{}, sets ...[]domain.SyncableUnit) []domain.SyncableUnit {
	var out []domain.SyncableUnit
	for _, set := range sets {
		for _, u := range set {
			if _, ok := seen[u.Key()]; ok {
				continue
			}
			seen[u.Key()] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

// sortUnits orders by owner ascending, sequence descending, then item ID.
func sortUnits(units []domain.SyncableUnit) {
	sort.SliceStable(units, func(i, j int) bool {
		a, b := units[i], units[j]
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		if a.Sequence != b.Sequence {
			return a.Sequence > b.Sequence
		}
		if a.ItemType != b.ItemType {
			return a.ItemType < b.ItemType
		}
		return a.ItemID < b.ItemID
	})
}

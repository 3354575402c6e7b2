package services

import "github.com/custodia-labs/rmsync/internal/core/domain"

// FindGaps returns the local units of ownerID whose sequence the target
// does not report. It only identifies candidates; the ledger is untouched.
func FindGaps(ownerID string, known map[int]struct{}, local []domain.SyncableUnit) []domain.SyncableUnit {
	var gaps []domain.SyncableUnit
	for _, u := range local {
		if u.OwnerID != ownerID {
			continue
		}
		if _, ok := known[u.Sequence]; ok {
			continue
		}
		gaps = append(gaps, u)
	}
	return gaps
}

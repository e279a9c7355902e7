package syncer

import (
	"github.com/Nselenduna/inventory-sales-app/internal/domain"
)

// SelectForCycle returns the records one cycle pushes: every record that is
// not synced, in the order given. Failed records are retried on every cycle
// without limit.
func SelectForCycle[T any](records []T, state func(T) domain.SyncStatus) []T {
	selected := make([]T, 0, len(records))
	for _, rec := range records {
		if state(rec).NeedsSync() {
			selected = append(selected, rec)
		}
	}
	return selected
}

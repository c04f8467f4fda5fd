package floor

import (
	"sort"
	"time"
)

// LastOrderEntry is one line of the last-order worklist.
type LastOrderEntry struct {
	TableID  TableID
	Deadline time.Time
}

// LastOrderQueue lists every table holding a last-order deadline, whatever its state,
// earliest deadline first. Equal deadlines keep registry order.
func LastOrderQueue(registry *Registry, records map[TableID]TableRecord) []LastOrderEntry {
	entries := make([]LastOrderEntry, 0, len(records))
	for _, id := range registry.IDs() {
		record, ok := records[id]
		if !ok || !record.HasLastOrder() {
			continue
		}
		entries = append(entries, LastOrderEntry{TableID: id, Deadline: record.LastOrderAt})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Deadline.Before(entries[j].Deadline)
	})
	return entries
}

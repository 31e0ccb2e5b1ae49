package momotest

import "github.com/thesyncim/momo-e2e/pkg/momo"

// FindStat returns the first entry of snap matching filter, or nil.
func FindStat(snap *momo.Snapshot, filter map[string]any) momo.StatEntry {
	if snap == nil {
		return nil
	}
	e, _ := snap.Find(filter)
	return e
}

// FindStats returns every entry of snap with the given type whose other
// fields match filter.
func FindStats(snap *momo.Snapshot, typ string, filter map[string]any) []momo.StatEntry {
	if snap == nil {
		return nil
	}
	f := map[string]any{"type": typ}
	for k, v := range filter {
		f[k] = v
	}
	return snap.FindAll(f)
}

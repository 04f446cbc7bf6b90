package exchange

import "sort"

// DedupBy removes duplicate records keeping the first occurrence, using the
// provided identity key. Order of survivors is preserved.
func DedupBy[T any](items []T, key func(T) string) []T {
	if len(items) == 0 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, item := range items {
		k := key(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// MergeDesc combines newly fetched records with the existing history,
// deduplicates by identity key and sorts descending by timestamp. Fresh
// records win on key collision since they come first.
func MergeDesc[T any](fresh, existing []T, key func(T) string, ts func(T) int64) []T {
	combined := make([]T, 0, len(fresh)+len(existing))
	combined = append(combined, fresh...)
	combined = append(combined, existing...)
	combined = DedupBy(combined, key)
	sort.SliceStable(combined, func(i, j int) bool {
		return ts(combined[i]) > ts(combined[j])
	})
	return combined
}

// NewestTime returns the maximum timestamp in the history, or 0 when empty.
// Pagination resumes from this value after a restart.
func NewestTime[T any](items []T, ts func(T) int64) int64 {
	var newest int64
	for _, item := range items {
		if t := ts(item); t > newest {
			newest = t
		}
	}
	return newest
}

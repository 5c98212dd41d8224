// Package merge classifies the difference between the active entries of a
// resource file and a freshly parsed revision of it.
package merge

import (
	"github.com/minios-linux/locflow/entry"
)

// Delta is the result of comparing two entry sets.
type Delta struct {
	// New holds entries whose key was not active before.
	New []entry.Entry
	// Updated holds entries whose source text, context or plural data
	// changed. Values are the new content.
	Updated []entry.Entry
	// Moved holds unchanged entries whose order or max length differ.
	// They are refreshed without counting as updates.
	Moved []entry.Entry
	// Removed lists previously active keys absent from the new revision.
	Removed []string
	// Unchanged counts entries whose content is identical.
	Unchanged int
}

// Empty reports whether applying the delta would change no content.
func (d Delta) Empty() bool {
	return len(d.New) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Diff compares the active set against the next revision.
//   - Keys only in next are new.
//   - Keys in both are updated if entry.SameContent reports a difference.
//   - Keys only in active are removed.
//
// New, Updated and Moved follow the order of next; Removed follows active.
func Diff(active, next []entry.Entry) Delta {
	var d Delta

	// Build a map of active entries
	activeByKey := make(map[string]entry.Entry, len(active))
	for _, e := range active {
		activeByKey[e.Key] = e
	}

	// Track which active entries were matched
	matched := make(map[string]bool, len(next))

	for _, e := range entry.SortByOrder(next) {
		if matched[e.Key] {
			continue
		}
		matched[e.Key] = true

		prev, ok := activeByKey[e.Key]
		switch {
		case !ok:
			d.New = append(d.New, e)
		case !entry.SameContent(prev, e):
			d.Updated = append(d.Updated, e)
		default:
			d.Unchanged++
			if prev.Order != e.Order || prev.MaxLength != e.MaxLength {
				d.Moved = append(d.Moved, e)
			}
		}
	}

	for _, e := range entry.SortByOrder(active) {
		if !matched[e.Key] {
			d.Removed = append(d.Removed, e.Key)
			matched[e.Key] = true
		}
	}

	return d
}

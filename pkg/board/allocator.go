package board

import "strconv"

// SeedID is allocated when the board has no notes yet.
const SeedID = "0"

// NextID returns an id that no note in the map uses. Ids are compared as base-10 integers, so
// {"9", "10"} yields "11". Ids that are not integers cannot collide with the result and are skipped.
func NextID(notes NoteMap) string {
	var (
		highest int64
		found   bool
	)
	for id := range notes {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		if !found || n > highest {
			highest, found = n, true
		}
	}
	if !found {
		return SeedID
	}
	return strconv.FormatInt(highest+1, 10)
}

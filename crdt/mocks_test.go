package crdt

import (
	"github.com/google/uuid"
)

// MockSiteIDs makes NewSiteID return the given UUIDs, in order.
// Returns a function to undo the mocking.
func MockSiteIDs(ids ...string) func() {
	uuids := make([]uuid.UUID, len(ids))
	for i, id := range ids {
		uuids[i] = uuid.MustParse(id)
	}
	var next int
	oldUUIDv1 := uuidv1
	uuidv1 = func() uuid.UUID {
		if next >= len(uuids) {
			panic("MockSiteIDs: ran out of site IDs")
		}
		id := uuids[next]
		next++
		return id
	}
	return func() { uuidv1 = oldUUIDv1 }
}

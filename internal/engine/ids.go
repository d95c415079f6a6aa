package engine

import (
	"math/rand"

	"github.com/71e6fd52/bk2d-server/internal/protocol"
)

// newID mints a random 64-bit handle that is nonzero and not already taken.
// Zero is reserved so "no room" can be represented without a pointer.
// Collisions are cryptographically unlikely; the retry loop exists so a hit
// is still harmless.
func newID(taken func(protocol.ID) bool) protocol.ID {
	for {
		id := protocol.ID(rand.Uint64())
		if id == 0 || taken(id) {
			continue
		}
		return id
	}
}

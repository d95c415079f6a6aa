package engine

import (
	"math/rand"

	"github.com/71e6fd52/bk2d-server/internal/protocol"
)

// Room tracks who is in a room and, once a match starts, whose turn it is.
//
// members is the authoritative membership set; order is the rotating turn
// sequence and is always a subset of members. The lifecycle is read off the
// order: empty = lobby, length > 1 = in progress, length 1 (with more than
// one historical member) = finished. A finished room is never reused.
type Room struct {
	ID      protocol.ID
	Name    string
	members map[protocol.ID]struct{}
	order   []protocol.ID

	// peak is the largest membership the room ever had. The winner test uses
	// it instead of live membership so that a disconnect which leaves a single
	// member still produces a winner.
	peak int

	// ended latches once a winner has been announced; a finished room is
	// terminal and never hosts another match.
	ended bool
}

func newRoom(id protocol.ID, name string) *Room {
	return &Room{
		ID:      id,
		Name:    name,
		members: make(map[protocol.ID]struct{}),
	}
}

func (r *Room) addMember(id protocol.ID) {
	r.members[id] = struct{}{}
	if len(r.members) > r.peak {
		r.peak = len(r.members)
	}
}

func (r *Room) removeMember(id protocol.ID) {
	delete(r.members, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Room) hasMember(id protocol.ID) bool {
	_, ok := r.members[id]
	return ok
}

// InProgress reports whether a match is running.
func (r *Room) InProgress() bool {
	return len(r.order) > 1
}

// Winner returns the last player standing. A room that never held more than
// one member cannot be won.
func (r *Room) Winner() (protocol.ID, bool) {
	if len(r.order) == 1 && r.peak > 1 {
		return r.order[0], true
	}
	return 0, false
}

// Current returns the player at the front of the turn order. Only valid
// while the order is non-empty.
func (r *Room) Current() protocol.ID {
	return r.order[0]
}

// start captures the member set into a uniformly shuffled turn order.
func (r *Room) start() {
	r.order = make([]protocol.ID, 0, len(r.members))
	for id := range r.members {
		r.order = append(r.order, id)
	}
	rand.Shuffle(len(r.order), func(i, j int) {
		r.order[i], r.order[j] = r.order[j], r.order[i]
	})
}

// advance rotates the order left by one and returns the new current player.
func (r *Room) advance() protocol.ID {
	r.order = append(r.order[1:], r.order[0])
	return r.order[0]
}

// killPlayers removes every victim from the turn order in one batch,
// preserving the relative order of survivors. The walk starts just after the
// current player and covers one full cycle; the current player itself is
// dropped only if it is a victim and at least one other player survives, so
// the order is never emptied while someone is still standing and the front
// slot always points at a live player afterwards.
func (r *Room) killPlayers(victims map[protocol.ID]struct{}) {
	if len(r.order) == 0 || len(victims) == 0 {
		return
	}
	cur := r.order[0]
	kept := make([]protocol.ID, 0, len(r.order))
	kept = append(kept, cur)
	for _, id := range r.order[1:] {
		if _, dead := victims[id]; !dead {
			kept = append(kept, id)
		}
	}
	if _, dead := victims[cur]; dead && len(kept) > 1 {
		kept = kept[1:]
	}
	r.order = kept
}

// Order returns a copy of the current turn order.
func (r *Room) Order() []protocol.ID {
	out := make([]protocol.ID, len(r.order))
	copy(out, r.order)
	return out
}

// Members returns the membership set as a slice in unspecified order.
func (r *Room) Members() []protocol.ID {
	out := make([]protocol.ID, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

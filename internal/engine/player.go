package engine

import (
	"github.com/71e6fd52/bk2d-server/internal/protocol"
)

// InGameState exists from the moment a player declares ready until they leave
// the room. Stage tracks what the player has done this turn: 0 = fresh turn,
// 1 = moved or ran, 2 = attacked.
type InGameState struct {
	X     int
	Y     int
	Stage int
}

// Player is the per-connection record owned by the engine. Name is fixed for
// the connection's lifetime; Room is zero while not in a room. The mailbox is
// the only outbound path to this player's connection.
type Player struct {
	ID     protocol.ID
	Name   string
	Room   protocol.ID
	Ready  bool
	InGame *InGameState

	mailbox chan protocol.Response
}

// send places a response on the player's mailbox without blocking. A full
// buffer means the reader is gone or has stalled; the caller treats false as
// an eviction trigger, never as a fatal engine error. Delivery to one player
// is strictly FIFO regardless of other players' drain speed.
func (p *Player) send(res protocol.Response) bool {
	select {
	case p.mailbox <- res:
		return true
	default:
		return false
	}
}

package engine

import (
	"github.com/71e6fd52/bk2d-server/internal/protocol"
)

// PlayerSnapshot is a read-only copy of one player record. Room is zero when
// the player is not in a room.
type PlayerSnapshot struct {
	ID     protocol.ID
	Name   string
	Room   protocol.ID
	Ready  bool
	InGame *InGameState
}

// RoomSnapshot is a read-only copy of one room.
type RoomSnapshot struct {
	ID      protocol.ID
	Name    string
	Members []protocol.ID
	Order   []protocol.ID
	Ended   bool
}

// Snapshot is a consistent export of both registries, produced inside the
// command loop so it can never observe a half-applied command.
type Snapshot struct {
	Players map[protocol.ID]PlayerSnapshot
	Rooms   map[protocol.ID]RoomSnapshot
}

func (e *Engine) export() Snapshot {
	snap := Snapshot{
		Players: make(map[protocol.ID]PlayerSnapshot, len(e.players)),
		Rooms:   make(map[protocol.ID]RoomSnapshot, len(e.rooms)),
	}
	for id, p := range e.players {
		ps := PlayerSnapshot{ID: p.ID, Name: p.Name, Room: p.Room, Ready: p.Ready}
		if p.InGame != nil {
			ig := *p.InGame
			ps.InGame = &ig
		}
		snap.Players[id] = ps
	}
	for id, r := range e.rooms {
		snap.Rooms[id] = RoomSnapshot{
			ID:      r.ID,
			Name:    r.Name,
			Members: r.Members(),
			Order:   r.Order(),
			Ended:   r.ended,
		}
	}
	return snap
}

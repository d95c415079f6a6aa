// Package protocol defines the wire-level message types exchanged between
// clients and the session engine: the Action envelope (client → engine), the
// Response envelope (engine → client), and the JSON codec for both.
//
// Every envelope is a closed tagged union: a Type discriminant plus the
// fields that variant uses. Validation of unknown variants happens at decode
// time so the engine only ever sees well-formed actions.
package protocol

import (
	"fmt"
	"strconv"
)

// ID is an opaque 64-bit handle for players and rooms. It marshals as a
// decimal string so JavaScript clients never lose precision on large values.
type ID uint64

// MarshalText implements encoding.TextMarshaler. Using text (not JSON)
// marshaling means ID also works as a JSON object key in name maps.
func (id ID) MarshalText() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(id), 10), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("protocol: bad id %q: %w", b, err)
	}
	*id = ID(v)
	return nil
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ActionType discriminates the Action union.
type ActionType string

const (
	ActionCreateRoom  ActionType = "create-room"
	ActionJoinRoom    ActionType = "join-room"
	ActionReady       ActionType = "ready"
	ActionMove        ActionType = "move"
	ActionAttack      ActionType = "attack"
	ActionRun         ActionType = "run"
	ActionEndTurn     ActionType = "end-turn"
	ActionRequestData ActionType = "request-data"
)

// DataKind selects a read-only projection for request-data, and tags the
// Data payload of the matching response.
type DataKind string

const (
	DataPlayer       DataKind = "player"
	DataPlayersOrder DataKind = "players-order"
	DataPlayersName  DataKind = "players-name"
	DataRoomList     DataKind = "room-list"
)

// Action is the client → engine envelope. Which fields are meaningful
// depends on Type:
//
//	create-room   Name
//	join-room     Room
//	ready         X, Y (starting position)
//	move          X, Y
//	attack        X, Y
//	run           X, Y
//	end-turn      —
//	request-data  Data
type Action struct {
	Type ActionType `json:"type"`
	Name string     `json:"name,omitempty"`
	Room ID         `json:"room,omitempty"`
	X    int        `json:"x"`
	Y    int        `json:"y"`
	Data DataKind   `json:"data,omitempty"`
}

// ErrorKind is the closed set of domain errors returned to the acting
// player. None of them terminate the connection.
type ErrorKind string

const (
	ErrRoomNotFound         ErrorKind = "room-not-found"
	ErrNotJoinedRoom        ErrorKind = "not-joined-room"
	ErrNotInGame            ErrorKind = "not-in-game"
	ErrNotYourTurn          ErrorKind = "not-your-turn"
	ErrActionOrderIncorrect ErrorKind = "action-order-incorrect"
	ErrIllegalParameter     ErrorKind = "illegal-parameter"
	ErrOther                ErrorKind = "other"
)

// ResponseType discriminates the Response union.
type ResponseType string

const (
	RespError       ResponseType = "error"
	RespRoomCreated ResponseType = "room-created"
	RespRoomJoined  ResponseType = "room-joined"
	RespGameStarted ResponseType = "game-started"
	RespEvent       ResponseType = "event"
	RespData        ResponseType = "data"
)

// EventType discriminates in-room events.
type EventType string

const (
	EventTurnStart    EventType = "turn-start"
	EventAttack       EventType = "attack"
	EventRun          EventType = "run"
	EventPlayerJoined EventType = "player-joined"
	EventDisconnected EventType = "disconnected"
	EventDie          EventType = "die"
	EventGameEnd      EventType = "game-end"
)

// Event describes something that happened in a room. Subject is the player
// the event is about (the attacker, the runner, the deceased, the winner);
// Name carries that player's display name where clients need it without a
// lookup. Attack and run carry coordinates: the attack target, or the tile
// the runner left.
type Event struct {
	Type    EventType `json:"type"`
	Subject ID        `json:"subject,omitempty"`
	Name    string    `json:"name,omitempty"`
	X       int       `json:"x,omitempty"`
	Y       int       `json:"y,omitempty"`
}

// Data is a read-only projection payload (response to request-data, and the
// synchronization pushes sent on game start and turn rotation).
type Data struct {
	Type  DataKind      `json:"type"`
	ID    ID            `json:"id,omitempty"`
	Name  string        `json:"name,omitempty"`
	X     int           `json:"x,omitempty"`
	Y     int           `json:"y,omitempty"`
	Order []ID          `json:"order,omitempty"`
	Names map[ID]string `json:"names,omitempty"`
	Rooms map[ID]string `json:"rooms,omitempty"`
}

// Response is the engine → client envelope.
type Response struct {
	Type  ResponseType `json:"type"`
	Error ErrorKind    `json:"error,omitempty"`
	Room  ID           `json:"room,omitempty"`
	Event *Event       `json:"event,omitempty"`
	Data  *Data        `json:"data,omitempty"`
}

// Convenience constructors keep dispatch sites short.

func Errorf(kind ErrorKind) Response {
	return Response{Type: RespError, Error: kind}
}

func RoomCreated(id ID) Response {
	return Response{Type: RespRoomCreated, Room: id}
}

func RoomJoined(id ID) Response {
	return Response{Type: RespRoomJoined, Room: id}
}

func GameStarted() Response {
	return Response{Type: RespGameStarted}
}

func EventResponse(ev Event) Response {
	return Response{Type: RespEvent, Event: &ev}
}

func DataResponse(d Data) Response {
	return Response{Type: RespData, Data: &d}
}

package protocol

import (
	"encoding/json"
	"fmt"
)

// DecodeAction parses and validates one client frame. It rejects unknown or
// missing action types and unknown data kinds so the engine's dispatch only
// pattern-matches over the closed set. The caller reports failures as
// Error{other} to the sender; a bad frame never closes the connection.
func DecodeAction(b []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(b, &a); err != nil {
		return Action{}, fmt.Errorf("protocol: decode action: %w", err)
	}
	switch a.Type {
	case ActionCreateRoom, ActionJoinRoom, ActionReady,
		ActionMove, ActionAttack, ActionRun, ActionEndTurn:
	case ActionRequestData:
		switch a.Data {
		case DataPlayer, DataPlayersOrder, DataPlayersName, DataRoomList:
		default:
			return Action{}, fmt.Errorf("protocol: unknown data kind %q", a.Data)
		}
	default:
		return Action{}, fmt.Errorf("protocol: unknown action type %q", a.Type)
	}
	return a, nil
}

// EncodeResponse serializes one engine response for the wire.
func EncodeResponse(r Response) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode response: %w", err)
	}
	return b, nil
}

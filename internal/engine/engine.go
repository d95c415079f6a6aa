// Package engine implements the authoritative game-session core: a single
// goroutine that owns every player and room record and drains one command
// queue. All mutation funnels through that queue, so the registries need no
// locks — no two commands are ever interleaved against the same state.
//
// Outbound traffic goes to per-player bounded mailboxes. A send that cannot
// be placed (reader gone or stalled) evicts the player through the same
// cascade as an explicit disconnect; this send-or-evict rule is applied at
// every response site, not just the disconnect handler.
package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/71e6fd52/bk2d-server/internal/protocol"
)

// Config sizes the engine's channels.
type Config struct {
	// InboxSize is the command queue capacity. Connection goroutines block
	// on a full inbox, which is the engine's natural backpressure.
	InboxSize int
	// MailboxSize is the per-player outbound buffer. A player that lets this
	// fill up is considered unreachable and evicted.
	MailboxSize int
}

const (
	defaultInboxSize   = 1024
	defaultMailboxSize = 256
)

type command interface{ isCommand() }

type registerCmd struct {
	name  string
	reply chan<- registered
}

type registered struct {
	id      protocol.ID
	mailbox <-chan protocol.Response
}

type dispatchCmd struct {
	player protocol.ID
	action protocol.Action
}

type disconnectCmd struct {
	player protocol.ID
}

type rejectCmd struct {
	player protocol.ID
}

type snapshotCmd struct {
	reply chan<- Snapshot
}

func (registerCmd) isCommand()   {}
func (dispatchCmd) isCommand()   {}
func (disconnectCmd) isCommand() {}
func (rejectCmd) isCommand()     {}
func (snapshotCmd) isCommand()   {}

// Engine is the session actor. Construct with New, start with Run (usually
// `go eng.Run()`), and interact only through Register, Dispatch, Disconnect
// and Snapshot — every one of them goes through the command queue.
type Engine struct {
	inbox chan command
	quit  chan struct{}

	players map[protocol.ID]*Player
	rooms   map[protocol.ID]*Room

	mailboxSize int
	log         *logrus.Logger
}

func New(cfg Config, log *logrus.Logger) *Engine {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = defaultMailboxSize
	}
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		inbox:       make(chan command, cfg.InboxSize),
		quit:        make(chan struct{}),
		players:     make(map[protocol.ID]*Player),
		rooms:       make(map[protocol.ID]*Room),
		mailboxSize: cfg.MailboxSize,
		log:         log,
	}
}

// Run drains the command queue until Stop. Each command is processed to
// completion, including every outbound send it implies, before the next one
// is taken.
func (e *Engine) Run() {
	for {
		select {
		case <-e.quit:
			return
		case cmd := <-e.inbox:
			e.handle(cmd)
		}
	}
}

// Stop terminates the Run loop. Commands already queued are discarded.
func (e *Engine) Stop() {
	close(e.quit)
}

// Register allocates a player record with a fresh identifier and returns the
// id together with the mailbox the caller must drain. It never fails.
func (e *Engine) Register(name string) (protocol.ID, <-chan protocol.Response) {
	reply := make(chan registered, 1)
	e.inbox <- registerCmd{name: name, reply: reply}
	r := <-reply
	return r.id, r.mailbox
}

// Dispatch queues one action for a player. Actions for players that have
// already disconnected are silently dropped by the engine.
func (e *Engine) Dispatch(player protocol.ID, action protocol.Action) {
	e.inbox <- dispatchCmd{player: player, action: action}
}

// Disconnect queues the removal of a player and its room-membership cascade.
func (e *Engine) Disconnect(player protocol.ID) {
	e.inbox <- disconnectCmd{player: player}
}

// Reject reports a transport-level decode failure back to the player. It is
// delivered through the same mailbox as every other response so the error
// keeps its place in the per-player ordering; it never mutates shared state.
func (e *Engine) Reject(player protocol.ID) {
	e.inbox <- rejectCmd{player: player}
}

// Snapshot returns a read-only export of the registries. It is serialized
// through the command queue like any other command, so it observes a
// consistent state; it is the only sanctioned way to read engine state from
// outside (tests, diagnostics).
func (e *Engine) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	e.inbox <- snapshotCmd{reply: reply}
	return <-reply
}

func (e *Engine) handle(cmd command) {
	switch c := cmd.(type) {
	case registerCmd:
		mailbox := make(chan protocol.Response, e.mailboxSize)
		id := e.insertPlayer(c.name, mailbox)
		c.reply <- registered{id: id, mailbox: mailbox}
	case dispatchCmd:
		e.perform(c.player, c.action)
	case disconnectCmd:
		e.removePlayer(c.player)
	case rejectCmd:
		if p, ok := e.players[c.player]; ok {
			e.sendOrEvict(p, protocol.Errorf(protocol.ErrOther))
		}
	case snapshotCmd:
		c.reply <- e.export()
	}
}

func (e *Engine) insertPlayer(name string, mailbox chan protocol.Response) protocol.ID {
	id := newID(func(id protocol.ID) bool {
		_, taken := e.players[id]
		return taken
	})
	e.players[id] = &Player{ID: id, Name: name, mailbox: mailbox}
	e.log.WithFields(logrus.Fields{"player": id, "name": name}).Info("player registered")
	return id
}

// sendOrEvict delivers one response to a player, evicting them on failure.
// Returns false if the player was evicted.
func (e *Engine) sendOrEvict(p *Player, res protocol.Response) bool {
	if p.send(res) {
		return true
	}
	e.log.WithField("player", p.ID).Warn("mailbox unreachable, evicting player")
	e.removePlayer(p.ID)
	return false
}

// broadcast sends a response to every present member of a room. Failures are
// collected during iteration and evicted afterwards so membership never
// mutates mid-loop.
func (e *Engine) broadcast(room *Room, res protocol.Response) {
	var failed []protocol.ID
	for _, id := range room.Members() {
		p, ok := e.players[id]
		if !ok {
			continue
		}
		if !p.send(res) {
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		e.log.WithField("player", id).Warn("mailbox unreachable, evicting player")
		e.removePlayer(id)
	}
}

// removePlayer drops a player from the registry and cascades the departure
// into their room, if any. Safe to call for ids that are already gone.
func (e *Engine) removePlayer(id protocol.ID) {
	p, ok := e.players[id]
	if !ok {
		return
	}
	delete(e.players, id)
	e.log.WithFields(logrus.Fields{"player": id, "name": p.Name}).Info("player removed")
	e.leaveRoom(p)
}

// leaveRoom detaches p from its current room and runs the departure cascade:
// empty rooms are torn down, remaining members learn about the departure,
// the turn is re-announced if the departed player held it, and a win check
// runs because a departure can produce a winner.
func (e *Engine) leaveRoom(p *Player) {
	roomID := p.Room
	p.Room = 0
	p.Ready = false
	p.InGame = nil
	if roomID == 0 {
		return
	}
	room, ok := e.rooms[roomID]
	if !ok {
		return
	}
	wasCurrent := room.InProgress() && room.Current() == p.ID
	room.removeMember(p.ID)
	if len(room.Members()) == 0 {
		delete(e.rooms, roomID)
		e.log.WithField("room", roomID).Info("room torn down")
		return
	}
	e.broadcast(room, protocol.EventResponse(protocol.Event{
		Type: protocol.EventDisconnected, Subject: p.ID, Name: p.Name,
	}))
	// The broadcast itself can evict members and tear the room down.
	if _, ok := e.rooms[roomID]; !ok {
		return
	}
	if wasCurrent && room.InProgress() {
		e.broadcastOrder(room)
		e.announceTurn(room)
	}
	e.checkWin(room)
}

// announceTurn tells the front-of-order player their turn started.
func (e *Engine) announceTurn(room *Room) {
	cur := room.Current()
	p, ok := e.players[cur]
	if !ok {
		return
	}
	e.sendOrEvict(p, protocol.EventResponse(protocol.Event{
		Type: protocol.EventTurnStart, Subject: cur,
	}))
}

func (e *Engine) broadcastOrder(room *Room) {
	e.broadcast(room, protocol.DataResponse(protocol.Data{
		Type: protocol.DataPlayersOrder, Order: room.Order(),
	}))
}

// checkWin broadcasts game-end once when exactly one player remains in a
// turn order that previously held more than one member.
func (e *Engine) checkWin(room *Room) {
	if room.ended {
		return
	}
	winner, ok := room.Winner()
	if !ok {
		return
	}
	room.ended = true
	name := ""
	if wp, ok := e.players[winner]; ok {
		name = wp.Name
	}
	e.log.WithFields(logrus.Fields{"room": room.ID, "winner": winner}).Info("game ended")
	e.broadcast(room, protocol.EventResponse(protocol.Event{
		Type: protocol.EventGameEnd, Subject: winner, Name: name,
	}))
}

func (e *Engine) perform(playerID protocol.ID, action protocol.Action) {
	p, ok := e.players[playerID]
	if !ok {
		// Already disconnected; the action raced its own teardown.
		return
	}
	switch action.Type {
	case protocol.ActionCreateRoom:
		e.createRoom(p, action.Name)
	case protocol.ActionJoinRoom:
		e.joinRoom(p, action.Room)
	case protocol.ActionReady:
		e.ready(p, action.X, action.Y)
	case protocol.ActionMove, protocol.ActionAttack, protocol.ActionRun, protocol.ActionEndTurn:
		e.gameAction(p, action)
	case protocol.ActionRequestData:
		e.sendData(playerID, action.Data)
	}
}

func (e *Engine) createRoom(p *Player, name string) {
	e.leaveRoom(p)
	id := newID(func(id protocol.ID) bool {
		_, taken := e.rooms[id]
		return taken
	})
	room := newRoom(id, name)
	e.rooms[id] = room
	room.addMember(p.ID)
	p.Room = id
	e.log.WithFields(logrus.Fields{"room": id, "name": name, "player": p.ID}).Info("room created")
	if !e.sendOrEvict(p, protocol.RoomCreated(id)) {
		return
	}
	e.sendData(p.ID, protocol.DataPlayersName)
	e.sendData(p.ID, protocol.DataPlayersOrder)
}

func (e *Engine) joinRoom(p *Player, roomID protocol.ID) {
	room, ok := e.rooms[roomID]
	if !ok {
		e.sendOrEvict(p, protocol.Errorf(protocol.ErrRoomNotFound))
		return
	}
	if p.Room != roomID {
		e.leaveRoom(p)
	}
	room.addMember(p.ID)
	p.Room = roomID
	if !e.sendOrEvict(p, protocol.RoomJoined(roomID)) {
		return
	}
	e.broadcast(room, protocol.EventResponse(protocol.Event{
		Type: protocol.EventPlayerJoined, Subject: p.ID, Name: p.Name,
	}))
	e.sendData(p.ID, protocol.DataPlayersName)
	e.sendData(p.ID, protocol.DataPlayersOrder)
}

func (e *Engine) ready(p *Player, x, y int) {
	if p.Room == 0 {
		e.sendOrEvict(p, protocol.Errorf(protocol.ErrNotJoinedRoom))
		return
	}
	room, ok := e.rooms[p.Room]
	if !ok {
		e.sendOrEvict(p, protocol.Errorf(protocol.ErrRoomNotFound))
		return
	}
	// Readiness only means anything in the lobby; repositioning mid-match
	// through the ready action would bypass the turn rules.
	if room.InProgress() || room.ended {
		e.sendOrEvict(p, protocol.Errorf(protocol.ErrActionOrderIncorrect))
		return
	}
	p.InGame = &InGameState{X: x, Y: y}
	p.Ready = true
	e.tryStart(p.Room)
}

// tryStart begins the match if at least two members are present and every
// present member is ready. Stale ids left by departed players are pruned
// first so a dangling readiness flag can neither block nor force a start.
// Calling it while a match is running is a no-op.
func (e *Engine) tryStart(roomID protocol.ID) {
	room, ok := e.rooms[roomID]
	if !ok || room.InProgress() || room.ended {
		return
	}
	for _, id := range room.Members() {
		member, present := e.players[id]
		if !present {
			room.removeMember(id)
			continue
		}
		if !member.Ready {
			return
		}
	}
	if len(room.Members()) < 2 {
		return
	}

	e.broadcast(room, protocol.GameStarted())
	// The start announcement may have evicted members.
	room, ok = e.rooms[roomID]
	if !ok || len(room.Members()) < 2 {
		return
	}
	room.start()
	e.log.WithFields(logrus.Fields{"room": roomID, "players": len(room.Members())}).Info("game started")
	for _, id := range room.Members() {
		e.sendData(id, protocol.DataPlayer)
		e.sendData(id, protocol.DataPlayersOrder)
		e.sendData(id, protocol.DataPlayersName)
	}
	room, ok = e.rooms[roomID]
	if !ok || !room.InProgress() {
		return
	}
	e.announceTurn(room)
}

func (e *Engine) gameAction(p *Player, action protocol.Action) {
	if p.Room == 0 {
		e.sendOrEvict(p, protocol.Errorf(protocol.ErrNotJoinedRoom))
		return
	}
	room, ok := e.rooms[p.Room]
	if !ok {
		e.sendOrEvict(p, protocol.Errorf(protocol.ErrRoomNotFound))
		return
	}
	if !room.InProgress() {
		e.sendOrEvict(p, protocol.Errorf(protocol.ErrNotInGame))
		return
	}
	if room.Current() != p.ID {
		e.sendOrEvict(p, protocol.Errorf(protocol.ErrNotYourTurn))
		return
	}
	st := p.InGame
	if st == nil {
		e.sendOrEvict(p, protocol.Errorf(protocol.ErrNotInGame))
		return
	}

	switch action.Type {
	case protocol.ActionMove:
		if st.Stage > 0 {
			e.sendOrEvict(p, protocol.Errorf(protocol.ErrActionOrderIncorrect))
			return
		}
		if chebyshev(st.X, st.Y, action.X, action.Y) > 1 {
			e.sendOrEvict(p, protocol.Errorf(protocol.ErrIllegalParameter))
			return
		}
		st.X, st.Y = action.X, action.Y
		st.Stage = 1

	case protocol.ActionRun:
		if st.Stage > 0 {
			e.sendOrEvict(p, protocol.Errorf(protocol.ErrActionOrderIncorrect))
			return
		}
		if chebyshev(st.X, st.Y, action.X, action.Y) != 2 {
			e.sendOrEvict(p, protocol.Errorf(protocol.ErrIllegalParameter))
			return
		}
		oldX, oldY := st.X, st.Y
		st.X, st.Y = action.X, action.Y
		st.Stage = 1
		// The run event carries the tile the runner left, not the destination.
		e.broadcast(room, protocol.EventResponse(protocol.Event{
			Type: protocol.EventRun, Subject: p.ID, Name: p.Name, X: oldX, Y: oldY,
		}))

	case protocol.ActionAttack:
		if st.Stage > 1 {
			e.sendOrEvict(p, protocol.Errorf(protocol.ErrActionOrderIncorrect))
			return
		}
		if chebyshev(st.X, st.Y, action.X, action.Y) > 1 {
			e.sendOrEvict(p, protocol.Errorf(protocol.ErrIllegalParameter))
			return
		}
		st.Stage = 2
		e.resolveAttack(room, p.ID, p.Name, action.X, action.Y)

	case protocol.ActionEndTurn:
		st.Stage = 0
		next := room.advance()
		e.broadcastOrder(room)
		if _, stillThere := e.rooms[room.ID]; !stillThere {
			return
		}
		if np, ok := e.players[next]; ok {
			e.sendOrEvict(np, protocol.EventResponse(protocol.Event{
				Type: protocol.EventTurnStart, Subject: next,
			}))
		}
	}
}

// resolveAttack broadcasts the attack, finds every player in the turn order
// standing on the target tile (the attacker included) against a position
// snapshot taken before anything is removed, announces each death, then
// removes all victims from the order in one batch and checks for a winner.
// A kill therefore never affects whether another victim is detected in the
// same volley.
func (e *Engine) resolveAttack(room *Room, attacker protocol.ID, attackerName string, x, y int) {
	roomID := room.ID

	type position struct{ x, y int }
	order := room.Order()
	positions := make(map[protocol.ID]position, len(order))
	names := make(map[protocol.ID]string, len(order))
	for _, id := range order {
		member, ok := e.players[id]
		if !ok || member.InGame == nil {
			continue
		}
		positions[id] = position{member.InGame.X, member.InGame.Y}
		names[id] = member.Name
	}

	e.broadcast(room, protocol.EventResponse(protocol.Event{
		Type: protocol.EventAttack, Subject: attacker, Name: attackerName, X: x, Y: y,
	}))
	if _, ok := e.rooms[roomID]; !ok {
		return
	}

	// Walk one full cycle starting just after the attacker so death events
	// arrive in seating order, the attacker last.
	victims := make(map[protocol.ID]struct{})
	var volley []protocol.ID
	for i := 1; i <= len(order); i++ {
		id := order[i%len(order)]
		pos, alive := positions[id]
		if !alive || pos != (position{x, y}) {
			continue
		}
		victims[id] = struct{}{}
		volley = append(volley, id)
	}
	for _, id := range volley {
		e.broadcast(room, protocol.EventResponse(protocol.Event{
			Type: protocol.EventDie, Subject: id, Name: names[id],
		}))
		if _, ok := e.rooms[roomID]; !ok {
			return
		}
	}
	room.killPlayers(victims)
	e.checkWin(room)
}

func (e *Engine) sendData(playerID protocol.ID, kind protocol.DataKind) {
	p, ok := e.players[playerID]
	if !ok {
		return
	}
	switch kind {
	case protocol.DataPlayer:
		if p.InGame == nil {
			e.sendOrEvict(p, protocol.Errorf(protocol.ErrNotInGame))
			return
		}
		e.sendOrEvict(p, protocol.DataResponse(protocol.Data{
			Type: protocol.DataPlayer, ID: p.ID, Name: p.Name, X: p.InGame.X, Y: p.InGame.Y,
		}))

	case protocol.DataPlayersOrder:
		room, ok := e.memberRoom(p)
		if !ok {
			return
		}
		order := room.Order()
		if len(order) == 0 {
			// No match yet: fall back to unordered membership.
			order = room.Members()
		}
		e.sendOrEvict(p, protocol.DataResponse(protocol.Data{
			Type: protocol.DataPlayersOrder, Order: order,
		}))

	case protocol.DataPlayersName:
		room, ok := e.memberRoom(p)
		if !ok {
			return
		}
		names := make(map[protocol.ID]string, len(room.Members()))
		for _, id := range room.Members() {
			if member, ok := e.players[id]; ok {
				names[id] = member.Name
			}
		}
		e.sendOrEvict(p, protocol.DataResponse(protocol.Data{
			Type: protocol.DataPlayersName, Names: names,
		}))

	case protocol.DataRoomList:
		rooms := make(map[protocol.ID]string, len(e.rooms))
		for id, room := range e.rooms {
			rooms[id] = room.Name
		}
		e.sendOrEvict(p, protocol.DataResponse(protocol.Data{
			Type: protocol.DataRoomList, Rooms: rooms,
		}))
	}
}

// memberRoom resolves the requester's room, replying not-joined-room when
// they have none.
func (e *Engine) memberRoom(p *Player) (*Room, bool) {
	if p.Room == 0 {
		e.sendOrEvict(p, protocol.Errorf(protocol.ErrNotJoinedRoom))
		return nil, false
	}
	room, ok := e.rooms[p.Room]
	if !ok {
		e.sendOrEvict(p, protocol.Errorf(protocol.ErrNotJoinedRoom))
		return nil, false
	}
	return room, true
}

// chebyshev is the chessboard distance between two grid positions: one step
// covers any of the eight neighbouring tiles.
func chebyshev(x1, y1, x2, y2 int) int {
	dx := abs(x1 - x2)
	dy := abs(y1 - y2)
	if dx > dy {
		return dx
	}
	return dy
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Package server is the websocket adapter between client connections and the
// session engine. It owns no game state: each connection translates inbound
// frames into engine commands and drains its player's mailbox back onto the
// socket. One read pump and one write pump per connection.
package server

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/71e6fd52/bk2d-server/internal/engine"
	"github.com/71e6fd52/bk2d-server/internal/protocol"
)

// Server wires HTTP routes to the engine.
type Server struct {
	eng *engine.Engine
	log *logrus.Logger
}

func New(eng *engine.Engine, log *logrus.Logger) *Server {
	return &Server{eng: eng, log: log}
}

// Routes returns the HTTP handler: /ws for game connections, /healthz for
// liveness probes.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// hello is the first frame a client must send after connecting.
type hello struct {
	Name string `json:"name"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	connLog := s.log.WithField("conn", uuid.NewString())

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		connLog.WithError(err).Warn("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection torn down")

	ctx := r.Context()

	var h hello
	if err := wsjson.Read(ctx, conn, &h); err != nil {
		connLog.WithError(err).Info("peer disconnected before hello")
		return
	}
	if h.Name == "" {
		conn.Close(websocket.StatusPolicyViolation, "hello requires a name")
		return
	}

	playerID, mailbox := s.eng.Register(h.Name)
	connLog = connLog.WithField("player", playerID)
	connLog.Info("connection established")

	// Write pump: the only goroutine writing to this socket. It drains the
	// mailbox in order; a write failure surfaces as a disconnect command and
	// the engine does the rest.
	writeCtx, cancelWrite := context.WithCancel(ctx)
	defer cancelWrite()
	go func() {
		for {
			select {
			case <-writeCtx.Done():
				return
			case res := <-mailbox:
				if err := wsjson.Write(writeCtx, conn, res); err != nil {
					connLog.WithError(err).Info("write failed, disconnecting player")
					s.eng.Disconnect(playerID)
					return
				}
			}
		}
	}()

	// Read pump. Decode failures are reported back through the engine so the
	// error response keeps its place in the player's mailbox order; they
	// never close the connection.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			connLog.WithError(err).Info("read ended, disconnecting player")
			s.eng.Disconnect(playerID)
			return
		}
		action, err := protocol.DecodeAction(data)
		if err != nil {
			connLog.WithError(err).Debug("undecodable frame")
			s.eng.Reject(playerID)
			continue
		}
		s.eng.Dispatch(playerID, action)
	}
}

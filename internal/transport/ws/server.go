package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/station"
)

// Station is the slice of *station.Station the websocket surface needs.
type Station interface {
	ID() string
	Join(ctx context.Context, clientName string, out chan []byte) (station.JoinResponse, error)
	Leave(sessionID string)
	Submit(ctx context.Context, cmd station.Command) (station.CommandResult, error)
	RequestEventsAfter(ctx context.Context, sinceCursor uint64, limit int) ([]station.EventItem, uint64, error)
}

type Server struct {
	station Station
	log     *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(st Station, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		station: st,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(r.Context(), conn)
		if sessionID == "" {
			return
		}
		defer s.station.Leave(sessionID)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Single writer: STATE pushes from the loop and replies from the reader.
		replies := make(chan []byte, 16)
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-replies:
				case b = <-out:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reply := s.handleMessage(ctx, msg)
			if reply == nil {
				continue
			}
			b, err := json.Marshal(reply)
			if err != nil {
				continue
			}
			select {
			case replies <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return nil
	}
	switch base.Type {
	case protocol.TypeCmd:
		var cmd protocol.CmdMsg
		if err := json.Unmarshal(msg, &cmd); err != nil || cmd.ProtocolVersion != protocol.Version {
			return cmdResult(cmd.CmdID, station.CommandResult{Code: protocol.ErrProtoBadRequest, Message: "bad CMD"})
		}
		ctx2, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		// Operator commands are never accepted from players.
		res, err := s.station.Submit(ctx2, station.Command{Cmd: cmd.Cmd, Target: cmd.Target, Resume: cmd.Resume})
		if err != nil {
			res = station.CommandResult{Code: protocol.ErrStationBusy, Message: err.Error()}
		}
		return cmdResult(cmd.CmdID, res)

	case protocol.TypeEventBatchReq:
		var req protocol.EventBatchReqMsg
		if err := json.Unmarshal(msg, &req); err != nil || req.ProtocolVersion != protocol.Version {
			return nil
		}
		ctx2, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		items, next, err := s.station.RequestEventsAfter(ctx2, req.SinceCursor, req.Limit)
		if err != nil {
			s.log.Printf("event batch: %v", err)
			return nil
		}
		batch := protocol.EventBatchMsg{
			Type:            protocol.TypeEventBatch,
			ProtocolVersion: protocol.Version,
			ReqID:           req.ReqID,
			Events:          make([]protocol.EventBatchItem, 0, len(items)),
			NextCursor:      next,
			StationID:       s.station.ID(),
		}
		for _, it := range items {
			batch.Events = append(batch.Events, protocol.EventBatchItem{Cursor: it.Cursor, Tick: it.Tick, Event: it.Event})
		}
		return batch
	}
	return nil
}

func cmdResult(cmdID string, res station.CommandResult) protocol.CmdResultMsg {
	return protocol.CmdResultMsg{
		Type:            protocol.TypeCmdResult,
		ProtocolVersion: protocol.Version,
		CmdID:           cmdID,
		Accepted:        res.Accepted,
		Code:            res.Code,
		Message:         res.Message,
		ServerTick:      res.Tick,
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}
	name := strings.TrimSpace(hello.ClientName)
	if name == "" {
		name = "client"
	}

	out = make(chan []byte, 8)
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := s.station.Join(ctx2, name, out)
	if err != nil {
		s.log.Printf("join %s: %v", name, err)
		closeWith(conn, "station unavailable")
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.station.Leave(resp.Welcome.SessionID)
		return "", nil
	}
	if err := writeJSON(conn, resp.State); err != nil {
		s.station.Leave(resp.Welcome.SessionID)
		return "", nil
	}
	return resp.Welcome.SessionID, out
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

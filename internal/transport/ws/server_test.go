package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/catalogs"
	"stationidle.ai/internal/sim/station"
	"stationidle.ai/internal/sim/tuning"
)

func startStation(t *testing.T) *station.Station {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	st, err := station.New(station.ConfigFromTuning("ws-test", tuning.Defaults()), cats, nil)
	if err != nil {
		t.Fatalf("station: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = st.Run(ctx) }()
	return st
}

func dial(t *testing.T, st Station) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(st, nil).Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil skips pushed frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err == nil && base.Type == typ {
			return msg
		}
	}
	t.Fatalf("no %s frame", typ)
	return nil
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "tester"})
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	return welcome
}

func cmd(t *testing.T, conn *websocket.Conn, id, name, target string) protocol.CmdResultMsg {
	t.Helper()
	send(t, conn, protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, CmdID: id, Cmd: name, Target: target})
	for {
		var res protocol.CmdResultMsg
		if err := json.Unmarshal(readUntil(t, conn, protocol.TypeCmdResult), &res); err != nil {
			t.Fatalf("cmd result: %v", err)
		}
		if res.CmdID == id {
			return res
		}
	}
}

func TestHandshakeCommandsAndEventBatch(t *testing.T) {
	st := startStation(t)
	conn := dial(t, st)

	welcome := hello(t, conn)
	if welcome.StationID != "ws-test" || welcome.SessionID == "" || welcome.Catalogs.ModulesDigest == "" {
		t.Fatalf("unexpected welcome %+v", welcome)
	}
	var state protocol.StateMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeState), &state); err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(state.Operations) == 0 {
		t.Fatalf("initial state should list operations")
	}

	if res := cmd(t, conn, "c1", protocol.CmdPause, ""); !res.Accepted {
		t.Fatalf("pause: %+v", res)
	}
	if res := cmd(t, conn, "c2", protocol.CmdForceBoss, ""); res.Accepted || res.Code != protocol.ErrNoPermission {
		t.Fatalf("operator command over ws must be refused: %+v", res)
	}
	if res := cmd(t, conn, "c3", protocol.CmdSelectPOI, "asteroidField"); res.Code != protocol.ErrNotPlaying {
		t.Fatalf("expected E_NOT_PLAYING: %+v", res)
	}

	send(t, conn, protocol.EventBatchReqMsg{Type: protocol.TypeEventBatchReq, ProtocolVersion: protocol.Version, ReqID: "r1"})
	var batch protocol.EventBatchMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeEventBatch), &batch); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if batch.ReqID != "r1" || len(batch.Events) == 0 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	found := false
	for _, it := range batch.Events {
		if it.Event["type"] == station.EventStateChanged {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected STATE_CHANGED in batch: %+v", batch.Events)
	}
}

func TestBadCommandVersionIsRejected(t *testing.T) {
	st := startStation(t)
	conn := dial(t, st)
	hello(t, conn)

	send(t, conn, protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: "0.1", CmdID: "x", Cmd: protocol.CmdPause})
	var res protocol.CmdResultMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeCmdResult), &res); err != nil {
		t.Fatalf("cmd result: %v", err)
	}
	if res.Accepted || res.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("expected E_PROTO_BAD_REQUEST: %+v", res)
	}
}

func TestHandshakeRequiresHello(t *testing.T) {
	st := startStation(t)
	conn := dial(t, st)
	send(t, conn, protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: protocol.CmdPause})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy close, got %v", err)
	}
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"stationidle.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "client name")
		every = flag.Int("every", 20, "act on every Nth STATE frame")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var frames, seq int
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s station=%s tick_rate=%d boss_day=%.0f", w.SessionID, w.StationID, w.Params.TickRateHz, w.Params.BossAppearanceDay)

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			for _, e := range st.Events {
				logger.Printf("event tick=%d %v", st.Tick, e)
			}
			frames++
			if *every > 0 && frames%*every != 0 {
				continue
			}
			cmd, target, ok := chooseCommand(&st, r)
			if !ok {
				continue
			}
			seq++
			_ = conn.WriteJSON(protocol.CmdMsg{
				Type:            protocol.TypeCmd,
				ProtocolVersion: protocol.Version,
				CmdID:           fmt.Sprintf("K_%s_%d", *name, seq),
				Cmd:             cmd,
				Target:          target,
			})

		case protocol.TypeCmdResult:
			var res protocol.CmdResultMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			logger.Printf("CMD_RESULT %s accepted=%v code=%s tick=%d", res.CmdID, res.Accepted, res.Code, res.ServerTick)
		}
	}
}

// chooseCommand picks a single player move for the current state: switch on
// an idle operation, engage a visible battle or leave a finished one.
func chooseCommand(st *protocol.StateMsg, r *rand.Rand) (cmd, target string, ok bool) {
	if st.State != "PLAYING" {
		return "", "", false
	}
	var idleOps []string
	for _, op := range st.Operations {
		if !op.Active && !op.Locked {
			idleOps = append(idleOps, op.ID)
		}
	}
	visible := map[string]bool{}
	for _, id := range st.VisibleBattles {
		visible[id] = true
	}
	var idleBattles, resolved []string
	for _, b := range st.Battles {
		if !visible[b.ID] {
			continue
		}
		switch {
		case b.Resolved:
			resolved = append(resolved, b.ID)
		case !b.Active:
			idleBattles = append(idleBattles, b.ID)
		}
	}

	if len(resolved) > 0 {
		return protocol.CmdDismissResolved, "", true
	}
	switch {
	case len(idleBattles) > 0 && (len(idleOps) == 0 || r.Intn(2) == 0):
		return protocol.CmdToggleBattle, idleBattles[r.Intn(len(idleBattles))], true
	case len(idleOps) > 0:
		return protocol.CmdActivate, idleOps[r.Intn(len(idleOps))], true
	}
	return "", "", false
}

package main

import (
	"math/rand"
	"testing"

	"stationidle.ai/internal/protocol"
)

func TestChooseCommand(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	paused := &protocol.StateMsg{State: "PAUSED", Operations: []protocol.UnitObs{{ID: "courseCorrection"}}}
	if _, _, ok := chooseCommand(paused, r); ok {
		t.Fatalf("paused station should not be driven")
	}

	st := &protocol.StateMsg{
		State: "PLAYING",
		Operations: []protocol.UnitObs{
			{ID: "standbyOrbit", Active: true},
			{ID: "swarmHive", Locked: true},
			{ID: "courseCorrection"},
		},
	}
	cmd, target, ok := chooseCommand(st, r)
	if !ok || cmd != protocol.CmdActivate || target != "courseCorrection" {
		t.Fatalf("got %s %s %v", cmd, target, ok)
	}

	st.Operations[2].Active = true
	st.VisibleBattles = []string{"pirateScouts"}
	st.Battles = []protocol.UnitObs{{ID: "pirateScouts"}, {ID: "hiddenFleet"}}
	cmd, target, ok = chooseCommand(st, r)
	if !ok || cmd != protocol.CmdToggleBattle || target != "pirateScouts" {
		t.Fatalf("got %s %s %v", cmd, target, ok)
	}

	st.Battles[0].Resolved = true
	if cmd, _, _ := chooseCommand(st, r); cmd != protocol.CmdDismissResolved {
		t.Fatalf("resolved battles should be dismissed, got %s", cmd)
	}
}

package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/catalogs"
	"stationidle.ai/internal/sim/station"
	"stationidle.ai/internal/sim/tuning"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// validateValue round-trips v through JSON so the schema sees wire data.
func validateValue(t *testing.T, s *jsonschema.Schema, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(doc); err != nil {
		t.Fatalf("validate %s: %v", b, err)
	}
}

func TestSchemas_ValidateSamples(t *testing.T) {
	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"bot1"
	}`), &hello)
	if err := compile(t, "hello.schema.json").Validate(hello); err != nil {
		t.Fatalf("hello: %v", err)
	}

	validateValue(t, compile(t, "cmd.schema.json"), protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		CmdID:           "c1",
		Cmd:             protocol.CmdActivate,
		Target:          "courseCorrection",
	})
	validateValue(t, compile(t, "cmd_result.schema.json"), protocol.CmdResultMsg{
		Type:            protocol.TypeCmdResult,
		ProtocolVersion: protocol.Version,
		CmdID:           "c1",
		Code:            protocol.ErrGridCapacity,
		ServerTick:      12,
	})
}

func TestSchemas_CmdRejectsUnknownCommand(t *testing.T) {
	var doc any
	_ = json.Unmarshal([]byte(`{"type":"CMD","protocol_version":"1.0","cmd_id":"c1","cmd":"WARP"}`), &doc)
	if err := compile(t, "cmd.schema.json").Validate(doc); err == nil {
		t.Fatalf("expected unknown cmd rejected")
	}
}

func TestSchemas_ValidateStationMessages(t *testing.T) {
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	st, err := station.New(station.ConfigFromTuning("schema-test", tuning.Defaults()), cats, nil)
	if err != nil {
		t.Fatalf("station: %v", err)
	}
	st.Apply(station.Command{Cmd: protocol.CmdToggleBattle, Target: "pirateScouts"})
	for i := 0; i < 30; i++ {
		st.StepOnce()
	}

	validateValue(t, compile(t, "welcome.schema.json"), st.Welcome("session-1"))
	validateValue(t, compile(t, "state.schema.json"), st.State())
}

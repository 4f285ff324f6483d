package station

import (
	"fmt"

	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/conflicts"
	"stationidle.ai/internal/sim/scheduler"
)

// Command is one player or operator intent. Admin marks commands issued on
// the operator surface.
type Command struct {
	Cmd    string `json:"cmd"`
	Target string `json:"target,omitempty"`
	Resume bool   `json:"resume,omitempty"`
	Admin  bool   `json:"admin,omitempty"`
}

type CommandResult struct {
	Accepted bool   `json:"accepted"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Tick     uint64 `json:"tick"`
}

func fromAdmission(a scheduler.Admission) CommandResult {
	return CommandResult{Accepted: a.Accepted, Code: a.Code, Message: a.Reason}
}

func rejected(code, format string, args ...any) CommandResult {
	return CommandResult{Code: code, Message: fmt.Sprintf(format, args...)}
}

var acceptedResult = CommandResult{Accepted: true}

// Apply executes cmd immediately and records it for the next tick log entry.
// Loop goroutine only; other goroutines use Submit.
func (s *Station) Apply(cmd Command) CommandResult {
	nowTick := s.tick.Load()
	res := s.apply(nowTick, cmd)
	res.Tick = nowTick
	s.pendingCmds = append(s.pendingCmds, RecordedCommand{Command: cmd, Accepted: res.Accepted, Code: res.Code})
	s.noteState(nowTick)
	return res
}

func (s *Station) apply(nowTick uint64, cmd Command) CommandResult {
	if !protocol.IsKnownCmd(cmd.Cmd) {
		return rejected(protocol.ErrBadRequest, "unknown command %q", cmd.Cmd)
	}
	if protocol.IsAdminCmd(cmd.Cmd) && !cmd.Admin {
		return rejected(protocol.ErrNoPermission, "%s requires operator access", cmd.Cmd)
	}
	if protocol.NeedsTarget(cmd.Cmd) && cmd.Target == "" {
		return rejected(protocol.ErrBadRequest, "%s needs a target", cmd.Cmd)
	}

	switch cmd.Cmd {
	case protocol.CmdActivate:
		return fromAdmission(s.TryActivate(cmd.Target))
	case protocol.CmdDeactivate:
		if !s.Deactivate(cmd.Target) {
			if s.conflicts.IsBoss(cmd.Target) {
				return rejected(protocol.ErrResolved, "boss already defeated")
			}
			return rejected(protocol.ErrUnknownTarget, "unknown target %q", cmd.Target)
		}
		return acceptedResult
	case protocol.CmdToggleBattle:
		if !s.conflicts.Has(cmd.Target) {
			return rejected(protocol.ErrUnknownTarget, "unknown battle %q", cmd.Target)
		}
		return fromAdmission(s.conflicts.Toggle(cmd.Target))
	case protocol.CmdSelectPOI:
		return s.SelectPointOfInterest(cmd.Target)
	case protocol.CmdPause:
		s.clock.Pause()
		return acceptedResult
	case protocol.CmdUnpause:
		s.clock.Unpause()
		return acceptedResult
	case protocol.CmdTogglePause:
		s.clock.TogglePause()
		return acceptedResult
	case protocol.CmdDismissResolved:
		s.conflicts.DismissResolved()
		return acceptedResult
	case protocol.CmdRebirthOne:
		s.rebirth(nowTick, false)
		return acceptedResult
	case protocol.CmdRebirthTwo:
		s.rebirth(nowTick, true)
		return acceptedResult
	case protocol.CmdForceBoss:
		resume := cmd.Resume || s.cfg.ForceAppearResume
		if err := s.conflicts.ForceAppear(s.clock, conflicts.ForceOptions{Resume: resume}); err != nil {
			return rejected(protocol.ErrUnknownTarget, "%v", err)
		}
		return acceptedResult
	case protocol.CmdResetBattle:
		if !s.conflicts.ResetBattle(cmd.Target) {
			return rejected(protocol.ErrUnknownTarget, "unknown battle %q", cmd.Target)
		}
		return acceptedResult
	case protocol.CmdGrantSecret:
		if _, ok := s.cats.Secrets.ByName[cmd.Target]; !ok {
			return rejected(protocol.ErrUnknownTarget, "unknown secret %q", cmd.Target)
		}
		s.secrets[cmd.Target] = true
		return acceptedResult
	}
	return rejected(protocol.ErrBadRequest, "unhandled command %q", cmd.Cmd)
}

// TryActivate resolves id as an operation, a module, a battle or the boss,
// in that order.
func (s *Station) TryActivate(id string) scheduler.Admission {
	if _, ok := s.scheduler.Operation(id); ok {
		return s.scheduler.TryActivateOperation(id)
	}
	if _, ok := s.scheduler.Module(id); ok {
		return s.scheduler.TryActivateModule(id)
	}
	if s.conflicts.Has(id) {
		return s.conflicts.Activate(id)
	}
	return scheduler.Admission{Code: protocol.ErrUnknownTarget, Reason: fmt.Sprintf("unknown target %q", id)}
}

// Deactivate succeeds for any known id except a defeated boss.
func (s *Station) Deactivate(id string) bool {
	if s.scheduler.DeactivateOperation(id) {
		return true
	}
	if s.scheduler.DeactivateModule(id) {
		return true
	}
	return s.conflicts.Deactivate(id)
}

func (s *Station) SelectPointOfInterest(name string) CommandResult {
	if !s.clock.IsPlaying() {
		return rejected(protocol.ErrNotPlaying, "station is %s", s.clock.State())
	}
	p, ok := s.poiByName[name]
	if !ok {
		return rejected(protocol.ErrUnknownTarget, "unknown point of interest %q", name)
	}
	if !p.Gate.Open() {
		return rejected(protocol.ErrLocked, "point of interest %q is locked", name)
	}
	s.selectPOI(p)
	return acceptedResult
}

package protocol

// Player commands.
const (
	CmdActivate        = "ACTIVATE"
	CmdDeactivate      = "DEACTIVATE"
	CmdToggleBattle    = "TOGGLE_BATTLE"
	CmdSelectPOI       = "SELECT_POI"
	CmdPause           = "PAUSE"
	CmdUnpause         = "UNPAUSE"
	CmdTogglePause     = "TOGGLE_PAUSE"
	CmdDismissResolved = "DISMISS_RESOLVED"
	CmdRebirthOne      = "REBIRTH_ONE"
	CmdRebirthTwo      = "REBIRTH_TWO"
)

// Operator commands, refused on the player socket.
const (
	CmdForceBoss   = "FORCE_BOSS"
	CmdResetBattle = "RESET_BATTLE"
	CmdGrantSecret = "GRANT_SECRET"
)

func IsAdminCmd(cmd string) bool {
	switch cmd {
	case CmdForceBoss, CmdResetBattle, CmdGrantSecret:
		return true
	}
	return false
}

func IsKnownCmd(cmd string) bool {
	switch cmd {
	case CmdActivate, CmdDeactivate, CmdToggleBattle, CmdSelectPOI,
		CmdPause, CmdUnpause, CmdTogglePause, CmdDismissResolved,
		CmdRebirthOne, CmdRebirthTwo:
		return true
	}
	return IsAdminCmd(cmd)
}

// NeedsTarget reports whether cmd names an entity.
func NeedsTarget(cmd string) bool {
	switch cmd {
	case CmdActivate, CmdDeactivate, CmdToggleBattle, CmdSelectPOI, CmdResetBattle, CmdGrantSecret:
		return true
	}
	return false
}

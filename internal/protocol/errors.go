package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrStationBusy     = "E_STATION_BUSY"

	// Admission and command layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownTarget = "E_UNKNOWN_TARGET"
	ErrGridCapacity  = "E_GRID_CAPACITY"
	ErrLocked        = "E_LOCKED"
	ErrNotVisible    = "E_NOT_VISIBLE"
	ErrResolved      = "E_RESOLVED"
	ErrNotPlaying    = "E_NOT_PLAYING"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrStationBusy:     {},
	ErrBadRequest:      {},
	ErrUnknownTarget:   {},
	ErrGridCapacity:    {},
	ErrLocked:          {},
	ErrNotVisible:      {},
	ErrResolved:        {},
	ErrNotPlaying:      {},
	ErrNoPermission:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

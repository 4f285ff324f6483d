package protocol

// Event batch page bounds.
const (
	DefaultEventBatchLimit = 100
	MaxEventBatchLimit     = 1000
)

// ClampEventBatchLimit maps a requested page size onto
// [1, MaxEventBatchLimit]; zero or negative asks for the default.
func ClampEventBatchLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultEventBatchLimit
	case limit > MaxEventBatchLimit:
		return MaxEventBatchLimit
	default:
		return limit
	}
}

// EventBatchReqMsg asks for retained events after SinceCursor. A client that
// reconnects replays from the last cursor it saw in a STATE frame.
type EventBatchReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	SinceCursor     uint64 `json:"since_cursor"`
	Limit           int    `json:"limit,omitempty"`
}

type EventBatchItem struct {
	Cursor uint64 `json:"cursor"`
	Tick   uint64 `json:"tick"`
	Event  Event  `json:"event"`
}

// EventBatchMsg answers EVENT_BATCH_REQ. NextCursor is the cursor to send in
// the following request; it equals SinceCursor when nothing newer is retained.
type EventBatchMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	ReqID           string           `json:"req_id"`
	StationID       string           `json:"station_id,omitempty"`
	Events          []EventBatchItem `json:"events"`
	NextCursor      uint64           `json:"next_cursor"`
}

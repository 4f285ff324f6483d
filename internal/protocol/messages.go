package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ClientName      string     `json:"client_name"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	StationID       string         `json:"station_id"`
	RunID           string         `json:"run_id,omitempty"`
	Params          StationParams  `json:"params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type StationParams struct {
	TickRateHz        int     `json:"tick_rate_hz"`
	BaseGameSpeed     float64 `json:"base_game_speed"`
	LifespanDays      float64 `json:"lifespan_days"`
	BossAppearanceDay float64 `json:"boss_appearance_day"`
	MaxVisibleBattles int     `json:"max_visible_battles"`
}

type CatalogDigests struct {
	AttributesDigest   string `json:"attributes_digest"`
	ModulesDigest      string `json:"modules_digest"`
	FactionsDigest     string `json:"factions_digest"`
	BattlesDigest      string `json:"battles_digest"`
	SectorsDigest      string `json:"sectors_digest"`
	GridStrengthDigest string `json:"grid_strength_digest"`
	TuningDigest       string `json:"tuning_digest,omitempty"`
}

// STATE (server -> client), pushed every tick.
type StateMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	Tick            uint64             `json:"tick"`
	StationID       string             `json:"station_id"`
	State           string             `json:"state"`
	Days            float64            `json:"days"`
	TotalDays       float64            `json:"total_days"`
	Attributes      map[string]float64 `json:"attributes"`
	Grid            GridObs            `json:"grid"`
	Modules         []UnitObs          `json:"modules"`
	Operations      []UnitObs          `json:"operations"`
	Battles         []UnitObs          `json:"battles"`
	VisibleBattles  []string           `json:"visible_battles"`
	Boss            *UnitObs           `json:"boss,omitempty"`
	PointOfInterest string             `json:"point_of_interest,omitempty"`
	Events          []Event            `json:"events"`
	EventCursor     uint64             `json:"event_cursor,omitempty"`
}

type GridObs struct {
	Load     float64 `json:"load"`
	Strength float64 `json:"strength"`
	Level    int     `json:"level"`
	Xp       float64 `json:"xp"`
	MaxXp    float64 `json:"max_xp"`
}

type UnitObs struct {
	ID             string  `json:"id"`
	Level          int     `json:"level"`
	MaxLevel       int     `json:"max_level"`
	Xp             float64 `json:"xp"`
	MaxXp          float64 `json:"max_xp"`
	Active         bool    `json:"active"`
	Resolved       bool    `json:"resolved,omitempty"`
	Locked         bool    `json:"locked,omitempty"`
	DisplayedLevel int     `json:"displayed_level"`
}

type Event map[string]interface{}

// CMD (client -> server)
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CmdID           string `json:"cmd_id"`
	Cmd             string `json:"cmd"`
	Target          string `json:"target,omitempty"`
	Resume          bool   `json:"resume,omitempty"`
}

// CMD_RESULT (server -> client)
type CmdResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CmdID           string `json:"cmd_id"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

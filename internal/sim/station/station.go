package station

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"github.com/google/uuid"

	"stationidle.ai/internal/persistence/snapshot"
	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/attributes"
	"stationidle.ai/internal/sim/catalogs"
	"stationidle.ai/internal/sim/clock"
	"stationidle.ai/internal/sim/conflicts"
	"stationidle.ai/internal/sim/effects"
	"stationidle.ai/internal/sim/progress"
	"stationidle.ai/internal/sim/requirements"
	"stationidle.ai/internal/sim/scheduler"
)

// Station is a single-threaded authoritative progression engine.
// All state must be accessed only from the loop goroutine (or, before Run,
// from the goroutine that built it).
type Station struct {
	cfg    Config
	cats   *catalogs.Catalogs
	logger *log.Logger

	tick  atomic.Uint64
	runID string

	clock     *clock.Clock
	scheduler *scheduler.Scheduler
	conflicts *conflicts.System
	grid      *progress.Unit
	graph     *attributes.Graph
	pois      []*PointOfInterest
	poiByName map[string]*PointOfInterest
	poi       *PointOfInterest
	secrets   map[string]bool
	gates     []gateRef
	sources   []effects.Source

	// attrs is the last resolved attribute set. Gains for tick N read the
	// values resolved at the end of tick N-1.
	attrs     attributes.Values
	lastState clock.State

	rebirthOne int
	rebirthTwo int

	pendingCmds []RecordedCommand
	tickEvents  []protocol.Event
	eventLog    []EventItem
	nextCursor  uint64
	handlers    []EventHandler

	clients map[string]*clientState

	cmds      chan cmdReq
	join      chan JoinRequest
	leave     chan string
	admin     chan adminSnapshotReq
	stateReq  chan stateReq
	eventsReq chan eventsReq
	stop      chan struct{}

	// Optional loggers (may be nil). Implemented in internal/persistence/log.
	tickLogger  TickLogger
	eventLogger EventLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type EventLogger interface {
	WriteEvent(entry EventLogEntry) error
}

type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	RunID    string            `json:"run_id,omitempty"`
	State    string            `json:"state"`
	Days     float64           `json:"days"`
	Commands []RecordedCommand `json:"commands,omitempty"`
	Digest   string            `json:"digest"`
}

type RecordedCommand struct {
	Command  Command `json:"command"`
	Accepted bool    `json:"accepted"`
	Code     string  `json:"code,omitempty"`
}

type EventLogEntry struct {
	Tick   uint64         `json:"tick"`
	Cursor uint64         `json:"cursor"`
	RunID  string         `json:"run_id,omitempty"`
	Event  protocol.Event `json:"event"`
}

type clientState struct {
	Name string
	Out  chan []byte
}

type gateRef struct {
	Kind string
	Name string
	Gate *requirements.Gate
}

// PointOfInterest is the selected location. Its flat effects apply only while
// selected.
type PointOfInterest struct {
	Name     string
	Title    string
	Sector   string
	Defs     []effects.Definition
	Gate     *requirements.Gate
	Selected bool
}

func (p *PointOfInterest) Effects() []effects.Definition { return p.Defs }

func (p *PointOfInterest) EffectValue(t effects.Type) float64 {
	return effects.ValueOf(p.Defs, t, effects.ScalingFlat, 0)
}

func (p *PointOfInterest) Contributing() bool { return p.Selected }

func New(cfg Config, cats *catalogs.Catalogs, logger *log.Logger) (*Station, error) {
	if cats == nil {
		return nil, errors.New("station: nil catalogs")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Station{
		cfg:       cfg,
		cats:      cats,
		logger:    logger,
		runID:     uuid.NewString(),
		poiByName: map[string]*PointOfInterest{},
		secrets:   map[string]bool{},
		clients:   map[string]*clientState{},
		cmds:      make(chan cmdReq, 256),
		join:      make(chan JoinRequest, 16),
		leave:     make(chan string, 16),
		admin:     make(chan adminSnapshotReq, 16),
		stateReq:  make(chan stateReq, 16),
		eventsReq: make(chan eventsReq, 16),
		stop:      make(chan struct{}),
	}
	s.clock = clock.New(cfg.BaseGameSpeed, float64(cfg.TickRateHz), cfg.LifespanDays)

	gs := cats.GridStrength.Def
	s.grid = progress.NewUnit(gs.Name, gs.CurveDef.Build(), 0)

	sched, err := scheduler.New(cats.ModuleSpecs(), s.gridStrength)
	if err != nil {
		return nil, fmt.Errorf("station: %w", err)
	}
	s.scheduler = sched

	conf, err := conflicts.New(cats.BattleSpecs(), cats.BossSpec(cfg.BossAppearanceDay), conflicts.Options{
		MaxVisible: cfg.MaxVisibleBattles,
		AutoEngage: cfg.BossAutoEngage,
	})
	if err != nil {
		return nil, fmt.Errorf("station: %w", err)
	}
	s.conflicts = conf

	for _, sec := range cats.Sectors.Sectors {
		for _, p := range sec.PointsOfInterest {
			poi := &PointOfInterest{
				Name:   p.Name,
				Title:  p.Title,
				Sector: sec.Name,
				Defs:   p.Effects,
				Gate:   p.Requirements.Gate(),
			}
			s.pois = append(s.pois, poi)
			s.poiByName[poi.Name] = poi
		}
	}

	s.sources = append(s.sources, s.scheduler.Sources()...)
	s.sources = append(s.sources, s.conflicts.Sources()...)
	for _, p := range s.pois {
		s.sources = append(s.sources, p)
	}

	s.graph = attributes.New(cats.Attributes.Defs, attributes.Options{
		Sources: func() []effects.Source { return s.sources },
		Formulas: map[string]attributes.Formula{
			attributes.FormulaHeat:         attributes.Heat,
			attributes.FormulaGridLoad:     func(attributes.Values) float64 { return s.scheduler.GridLoad() },
			attributes.FormulaGridStrength: func(attributes.Values) float64 { return s.gridStrength() },
		},
		Deltas: map[string]attributes.Delta{
			attributes.AccumulatorPopulation: attributes.PopulationDelta(cfg.PopulationHeatFactor),
		},
		Logger: logger,
	})
	for _, w := range cats.Warnings {
		logger.Printf("catalogs: %s", w)
	}

	s.collectGates()
	s.attrs = s.graph.ResolveAll()
	s.evaluateGates(0, false)
	s.selectDefaultPOI()
	for _, name := range s.scheduler.EnforceCapacity() {
		logger.Printf("station: module %s starts switched off, default operations exceed grid strength", name)
	}
	s.attrs = s.graph.ResolveAll()
	s.lastState = s.clock.State()
	return s, nil
}

// StartNewSession begins a fresh run id and announces it.
func (s *Station) StartNewSession() string {
	s.runID = uuid.NewString()
	s.emit(s.tick.Load(), EventNewSessionStarted, protocol.Event{"run_id": s.runID})
	return s.runID
}

func (s *Station) SetTickLogger(l TickLogger)                    { s.tickLogger = l }
func (s *Station) SetEventLogger(l EventLogger)                  { s.eventLogger = l }
func (s *Station) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { s.snapshotSink = ch }

// Subscribe registers a synchronous event handler. Call before Run.
func (s *Station) Subscribe(h EventHandler) {
	if h != nil {
		s.handlers = append(s.handlers, h)
	}
}

func (s *Station) ID() string {
	if s == nil {
		return ""
	}
	return s.cfg.ID
}

func (s *Station) Config() Config { return s.cfg }

func (s *Station) RunID() string { return s.runID }

func (s *Station) CurrentTick() uint64 { return s.tick.Load() }

func (s *Station) Clock() *clock.Clock { return s.clock }

func (s *Station) Scheduler() *scheduler.Scheduler { return s.scheduler }

func (s *Station) Conflicts() *conflicts.System { return s.conflicts }

func (s *Station) GridUnit() *progress.Unit { return s.grid }

func (s *Station) gridStrength() float64 {
	return s.cfg.GridStrengthBase + float64(s.grid.Level)
}

func (s *Station) Attribute(name string) float64 { return s.attrs[name] }

func (s *Station) Attributes() attributes.Values {
	out := make(attributes.Values, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

func (s *Station) AttributeWarnings() []string { return s.graph.Warnings() }

func (s *Station) PointsOfInterest() []*PointOfInterest { return s.pois }

func (s *Station) SelectedPOI() string {
	if s.poi == nil {
		return ""
	}
	return s.poi.Name
}

func (s *Station) RebirthCounts() (one, two int) { return s.rebirthOne, s.rebirthTwo }

// requirements.Context

func (s *Station) OperationLevel(name string) int { return s.scheduler.OperationLevel(name) }

func (s *Station) Days() float64 { return s.clock.Days }

func (s *Station) FactionLevelsDefeated(faction string) int {
	return s.conflicts.FactionLevelsDefeated(faction)
}

func (s *Station) HasSecret(name string) bool { return s.secrets[name] }

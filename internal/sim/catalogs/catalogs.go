package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"stationidle.ai/internal/sim/attributes"
	"stationidle.ai/internal/sim/effects"
	"stationidle.ai/internal/sim/progress"
	"stationidle.ai/internal/sim/requirements"
)

// MaxEffectsPerSource is the content limit; extra effects are dropped with a
// warning.
const MaxEffectsPerSource = 2

type Catalogs struct {
	Attributes   AttributeCatalog
	Modules      ModuleCatalog
	Factions     FactionCatalog
	Battles      BattleCatalog
	Sectors      SectorCatalog
	GridStrength GridStrengthCatalog
	Secrets      SecretCatalog

	Warnings []string
}

type AttributeCatalog struct {
	Defs   []attributes.Definition
	Digest string
}

type CurveDef struct {
	Curve  progress.Kind `json:"curve,omitempty"`
	MaxXp  float64       `json:"max_xp"`
	Growth float64       `json:"xp_growth,omitempty"`
	Table  []float64     `json:"xp_table,omitempty"`
}

func (c CurveDef) Build() progress.Curve {
	growth := c.Growth
	if growth == 0 {
		growth = 1.1
	}
	return progress.NewCurve(c.Curve, c.MaxXp, growth, c.Table)
}

type RequirementSet struct {
	Scope requirements.Scope         `json:"scope,omitempty"`
	All   []requirements.Requirement `json:"all"`
}

func (r *RequirementSet) Gate() *requirements.Gate {
	if r == nil || len(r.All) == 0 {
		return nil
	}
	return requirements.NewGate(r.All, r.Scope)
}

type ModuleCatalog struct {
	Categories []CategoryDef `json:"categories"`
	Digest     string        `json:"-"`
}

type CategoryDef struct {
	Name    string      `json:"name"`
	Title   string      `json:"title"`
	Modules []ModuleDef `json:"modules"`
}

type ModuleDef struct {
	Name            string          `json:"name"`
	Title           string          `json:"title"`
	ActiveByDefault bool            `json:"active_by_default,omitempty"`
	Requirements    *RequirementSet `json:"requirements,omitempty"`
	Components      []ComponentDef  `json:"components"`
}

type ComponentDef struct {
	Name       string         `json:"name"`
	Title      string         `json:"title"`
	Operations []OperationDef `json:"operations"`
}

type OperationDef struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	CurveDef
	GridLoad     float64              `json:"grid_load"`
	Scaling      effects.Scaling      `json:"scaling,omitempty"`
	Effects      []effects.Definition `json:"effects"`
	Requirements *RequirementSet      `json:"requirements,omitempty"`
}

type FactionCatalog struct {
	Order  []FactionDef
	ByName map[string]FactionDef
	Digest string
}

type FactionDef struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	CurveDef
}

type BattleCatalog struct {
	Battles []BattleDef `json:"battles"`
	Boss    *BossDef    `json:"boss,omitempty"`
	Digest  string      `json:"-"`
}

type BattleDef struct {
	Name         string               `json:"name"`
	Title        string               `json:"title"`
	Faction      string               `json:"faction"`
	TargetLevel  int                  `json:"target_level"`
	Curve        *CurveDef            `json:"curve,omitempty"`
	Effects      []effects.Definition `json:"effects"`
	Rewards      []effects.Definition `json:"rewards"`
	Requirements *RequirementSet      `json:"requirements,omitempty"`
}

type BossDef struct {
	Name    string               `json:"name"`
	Title   string               `json:"title"`
	Faction string               `json:"faction"`
	Layers  []LayerDef           `json:"layers"`
	Rewards []effects.Definition `json:"rewards"`
}

type LayerDef struct {
	MaxXp   float64              `json:"max_xp"`
	Effects []effects.Definition `json:"effects"`
}

type SectorCatalog struct {
	Sectors []SectorDef
	Digest  string
}

type SectorDef struct {
	Name             string               `json:"name"`
	Title            string               `json:"title"`
	PointsOfInterest []PointOfInterestDef `json:"points_of_interest"`
}

type PointOfInterestDef struct {
	Name         string               `json:"name"`
	Title        string               `json:"title"`
	Effects      []effects.Definition `json:"effects"`
	Requirements *RequirementSet      `json:"requirements,omitempty"`
}

type GridStrengthCatalog struct {
	Def    GridStrengthDef
	Digest string
}

type GridStrengthDef struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	CurveDef
}

type SecretCatalog struct {
	ByName map[string]SecretDef
	Digest string
}

type SecretDef struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadAttributes(filepath.Join(configDir, "attributes.json"), &c.Attributes); err != nil {
		return nil, err
	}
	if err := c.loadModules(filepath.Join(configDir, "modules.json")); err != nil {
		return nil, err
	}
	if err := loadFactions(filepath.Join(configDir, "factions.json"), &c.Factions); err != nil {
		return nil, err
	}
	if err := c.loadBattles(filepath.Join(configDir, "battles.json")); err != nil {
		return nil, err
	}
	if err := c.loadSectors(filepath.Join(configDir, "sectors.json")); err != nil {
		return nil, err
	}
	if err := loadGridStrength(filepath.Join(configDir, "grid_strength.json"), &c.GridStrength); err != nil {
		return nil, err
	}
	if err := loadSecrets(filepath.Join(configDir, "galactic_secrets.json"), &c.Secrets); err != nil {
		return nil, err
	}
	if err := c.crossCheck(); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (c *Catalogs) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// checkEffects rejects unknown types and truncates past the per-source limit.
func (c *Catalogs) checkEffects(file, owner string, defs []effects.Definition) ([]effects.Definition, error) {
	for _, d := range defs {
		if !d.Type.Valid() {
			return nil, fmt.Errorf("%s: %s: unknown effect type %q", file, owner, d.Type)
		}
	}
	if len(defs) > MaxEffectsPerSource {
		c.warnf("%s: %s has %d effects, keeping the first %d", file, owner, len(defs), MaxEffectsPerSource)
		defs = defs[:MaxEffectsPerSource]
	}
	return defs, nil
}

func checkRequirements(file, owner string, r *RequirementSet) error {
	if r == nil {
		return nil
	}
	switch r.Scope {
	case "", requirements.ScopePermanent, requirements.ScopePlaythrough, requirements.ScopeUpdate:
	default:
		return fmt.Errorf("%s: %s: unknown requirement scope %q", file, owner, r.Scope)
	}
	for _, req := range r.All {
		if err := req.Validate(); err != nil {
			return fmt.Errorf("%s: %s: %w", file, owner, err)
		}
	}
	return nil
}

func loadAttributes(path string, out *AttributeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []attributes.Definition
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("attributes.json: %w", err)
	}
	seen := map[string]bool{}
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("attributes.json: empty name")
		}
		if seen[d.Name] {
			return fmt.Errorf("attributes.json: duplicate name %q", d.Name)
		}
		seen[d.Name] = true
		for _, t := range d.EffectTypes {
			if !t.Valid() {
				return fmt.Errorf("attributes.json: %s: unknown effect type %q", d.Name, t)
			}
		}
	}
	out.Defs = defs
	return nil
}

func (c *Catalogs) loadModules(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out := &c.Modules
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("modules.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	seen := map[string]bool{}
	for ci := range out.Categories {
		cat := &out.Categories[ci]
		for mi := range cat.Modules {
			m := &cat.Modules[mi]
			if m.Name == "" {
				return fmt.Errorf("modules.json: empty module name in %q", cat.Name)
			}
			if seen[m.Name] {
				return fmt.Errorf("modules.json: duplicate name %q", m.Name)
			}
			seen[m.Name] = true
			if err := checkRequirements("modules.json", m.Name, m.Requirements); err != nil {
				return err
			}
			for pi := range m.Components {
				comp := &m.Components[pi]
				if len(comp.Operations) == 0 {
					c.warnf("modules.json: component %s.%s has no operations", m.Name, comp.Name)
				}
				for oi := range comp.Operations {
					op := &comp.Operations[oi]
					if op.Name == "" {
						return fmt.Errorf("modules.json: empty operation name in %s.%s", m.Name, comp.Name)
					}
					if seen[op.Name] {
						return fmt.Errorf("modules.json: duplicate name %q", op.Name)
					}
					seen[op.Name] = true
					if op.MaxXp <= 0 && op.Curve != progress.KindTable {
						return fmt.Errorf("modules.json: %s: max_xp must be positive", op.Name)
					}
					if op.GridLoad < 0 {
						return fmt.Errorf("modules.json: %s: negative grid_load", op.Name)
					}
					switch op.Scaling {
					case "":
						op.Scaling = effects.ScalingLinear
					case effects.ScalingLinear, effects.ScalingLog, effects.ScalingFlat:
					default:
						return fmt.Errorf("modules.json: %s: unknown scaling %q", op.Name, op.Scaling)
					}
					defs, err := c.checkEffects("modules.json", op.Name, op.Effects)
					if err != nil {
						return err
					}
					op.Effects = defs
					if err := checkRequirements("modules.json", op.Name, op.Requirements); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func loadFactions(path string, out *FactionCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []FactionDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("factions.json: %w", err)
	}
	out.ByName = map[string]FactionDef{}
	for _, f := range defs {
		if f.Name == "" {
			return fmt.Errorf("factions.json: empty name")
		}
		if _, dup := out.ByName[f.Name]; dup {
			return fmt.Errorf("factions.json: duplicate name %q", f.Name)
		}
		if f.MaxXp <= 0 {
			return fmt.Errorf("factions.json: %s: max_xp must be positive", f.Name)
		}
		out.ByName[f.Name] = f
	}
	out.Order = defs
	return nil
}

func (c *Catalogs) loadBattles(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out := &c.Battles
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("battles.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	seen := map[string]bool{}
	for i := range out.Battles {
		b := &out.Battles[i]
		if b.Name == "" {
			return fmt.Errorf("battles.json: empty name")
		}
		if seen[b.Name] {
			return fmt.Errorf("battles.json: duplicate name %q", b.Name)
		}
		seen[b.Name] = true
		if b.TargetLevel <= 0 {
			return fmt.Errorf("battles.json: %s: target_level must be positive", b.Name)
		}
		if b.Effects, err = c.checkEffects("battles.json", b.Name, b.Effects); err != nil {
			return err
		}
		if b.Rewards, err = c.checkEffects("battles.json", b.Name+" rewards", b.Rewards); err != nil {
			return err
		}
		if err := checkRequirements("battles.json", b.Name, b.Requirements); err != nil {
			return err
		}
	}
	if boss := out.Boss; boss != nil {
		if boss.Name == "" || seen[boss.Name] {
			return fmt.Errorf("battles.json: boss needs a unique name")
		}
		if len(boss.Layers) == 0 {
			return fmt.Errorf("battles.json: boss %s has no layers", boss.Name)
		}
		for i := range boss.Layers {
			l := &boss.Layers[i]
			if l.MaxXp <= 0 {
				return fmt.Errorf("battles.json: boss %s layer %d: max_xp must be positive", boss.Name, i)
			}
			if l.Effects, err = c.checkEffects("battles.json", fmt.Sprintf("%s layer %d", boss.Name, i), l.Effects); err != nil {
				return err
			}
		}
		if boss.Rewards, err = c.checkEffects("battles.json", boss.Name+" rewards", boss.Rewards); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalogs) loadSectors(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out := &c.Sectors
	out.Digest = sha256Hex(raw)

	if err := json.Unmarshal(raw, &out.Sectors); err != nil {
		return fmt.Errorf("sectors.json: %w", err)
	}
	seen := map[string]bool{}
	for si := range out.Sectors {
		sec := &out.Sectors[si]
		for pi := range sec.PointsOfInterest {
			p := &sec.PointsOfInterest[pi]
			if p.Name == "" {
				return fmt.Errorf("sectors.json: empty point of interest name in %q", sec.Name)
			}
			if seen[p.Name] {
				return fmt.Errorf("sectors.json: duplicate name %q", p.Name)
			}
			seen[p.Name] = true
			if p.Effects, err = c.checkEffects("sectors.json", p.Name, p.Effects); err != nil {
				return err
			}
			if err := checkRequirements("sectors.json", p.Name, p.Requirements); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadGridStrength(path string, out *GridStrengthCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, &out.Def); err != nil {
		return fmt.Errorf("grid_strength.json: %w", err)
	}
	if out.Def.Name == "" {
		out.Def.Name = "gridStrength"
	}
	if out.Def.MaxXp <= 0 && out.Def.Curve != progress.KindTable {
		return fmt.Errorf("grid_strength.json: max_xp must be positive")
	}
	return nil
}

func loadSecrets(path string, out *SecretCatalog) error {
	out.ByName = map[string]SecretDef{}
	raw, err := os.ReadFile(path)
	if err != nil {
		// Secrets are optional content.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)
	var defs []SecretDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("galactic_secrets.json: %w", err)
	}
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("galactic_secrets.json: empty name")
		}
		out.ByName[d.Name] = d
	}
	return nil
}

// crossCheck resolves references between files.
func (c *Catalogs) crossCheck() error {
	for _, b := range c.Battles.Battles {
		if _, ok := c.Factions.ByName[b.Faction]; !ok {
			return fmt.Errorf("battles.json: %s: unknown faction %q", b.Name, b.Faction)
		}
	}
	if boss := c.Battles.Boss; boss != nil && boss.Faction != "" {
		if _, ok := c.Factions.ByName[boss.Faction]; !ok {
			return fmt.Errorf("battles.json: boss %s: unknown faction %q", boss.Name, boss.Faction)
		}
	}
	ops := map[string]bool{}
	for _, cat := range c.Modules.Categories {
		for _, m := range cat.Modules {
			for _, comp := range m.Components {
				for _, op := range comp.Operations {
					ops[op.Name] = true
				}
			}
		}
	}
	attrs := map[string]bool{}
	for _, d := range c.Attributes.Defs {
		attrs[d.Name] = true
	}
	check := func(owner string, r *RequirementSet) {
		if r == nil {
			return
		}
		for _, req := range r.All {
			switch req.Kind {
			case requirements.KindAttribute:
				if !attrs[req.Target] {
					c.warnf("%s: requirement on unknown attribute %q", owner, req.Target)
				}
			case requirements.KindOperationLevel:
				if !ops[req.Target] {
					c.warnf("%s: requirement on unknown operation %q", owner, req.Target)
				}
			case requirements.KindFactionLevelsDefeated:
				if _, ok := c.Factions.ByName[req.Target]; !ok {
					c.warnf("%s: requirement on unknown faction %q", owner, req.Target)
				}
			case requirements.KindGalacticSecret:
				if _, ok := c.Secrets.ByName[req.Target]; !ok {
					c.warnf("%s: requirement on unknown secret %q", owner, req.Target)
				}
			}
		}
	}
	for _, cat := range c.Modules.Categories {
		for _, m := range cat.Modules {
			check(m.Name, m.Requirements)
			for _, comp := range m.Components {
				for _, op := range comp.Operations {
					check(op.Name, op.Requirements)
				}
			}
		}
	}
	for _, b := range c.Battles.Battles {
		check(b.Name, b.Requirements)
	}
	for _, s := range c.Sectors.Sectors {
		for _, p := range s.PointsOfInterest {
			check(p.Name, p.Requirements)
		}
	}
	sort.Strings(c.Warnings)
	return nil
}

// Digests returns the per-file content hashes keyed by file stem.
func (c *Catalogs) Digests() map[string]string {
	return map[string]string{
		"attributes":       c.Attributes.Digest,
		"modules":          c.Modules.Digest,
		"factions":         c.Factions.Digest,
		"battles":          c.Battles.Digest,
		"sectors":          c.Sectors.Digest,
		"grid_strength":    c.GridStrength.Digest,
		"galactic_secrets": c.Secrets.Digest,
	}
}

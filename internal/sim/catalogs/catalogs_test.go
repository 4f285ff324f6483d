package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var configDir = filepath.Join("..", "..", "..", "configs")

func TestLoadShippedCatalogs(t *testing.T) {
	c, err := Load(configDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Warnings) != 0 {
		t.Fatalf("shipped content should load cleanly, got %v", c.Warnings)
	}
	specs := c.ModuleSpecs()
	if len(specs) == 0 || specs[0].Name != "centralCommand" || !specs[0].ActiveByDefault {
		t.Fatalf("unexpected module specs: %+v", specs)
	}
	if len(c.BattleSpecs()) != len(c.Battles.Battles) {
		t.Fatalf("battle spec count mismatch")
	}
	boss := c.BossSpec(1000)
	if boss == nil || len(boss.Layers) != 5 || boss.AppearanceDay != 1000 {
		t.Fatalf("unexpected boss spec: %+v", boss)
	}
	for name, d := range c.Digests() {
		if len(d) != 64 {
			t.Fatalf("%s digest should be sha256 hex, got %q", name, d)
		}
	}
}

func TestShippedContentMatchesSchemas(t *testing.T) {
	if errs := ValidateDir(configDir, filepath.Join("..", "..", "..", "schemas")); len(errs) != 0 {
		t.Fatalf("schema errors: %v", errs)
	}
}

func copyConfigs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	entries, err := os.ReadDir(configDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(configDir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), b, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestExtraEffectsAreTruncated(t *testing.T) {
	dir := copyConfigs(t)
	sectors := `[{"name":"s","points_of_interest":[{"name":"p","effects":[
	  {"effect_type":"Growth","base_value":1},
	  {"effect_type":"Danger","base_value":1},
	  {"effect_type":"Research","base_value":1}]}]}]`
	if err := os.WriteFile(filepath.Join(dir, "sectors.json"), []byte(sectors), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(c.Sectors.Sectors[0].PointsOfInterest[0].Effects); got != MaxEffectsPerSource {
		t.Fatalf("expected truncation to %d effects, got %d", MaxEffectsPerSource, got)
	}
	if len(c.Warnings) != 1 || !strings.Contains(c.Warnings[0], "keeping the first 2") {
		t.Fatalf("expected truncation warning, got %v", c.Warnings)
	}
	if errs := ValidateDir(dir, filepath.Join("..", "..", "..", "schemas")); len(errs) != 1 || errs[0].File != "sectors.json" {
		t.Fatalf("schema should flag the third effect, got %v", errs)
	}
}

func TestStructuralErrors(t *testing.T) {
	cases := map[string]string{
		"factions.json": `[{"name":"pirates","max_xp":0}]`,
		"battles.json":  `{"battles":[{"name":"x","faction":"nobody","target_level":1}]}`,
		"modules.json":  `{"categories":[{"name":"c","modules":[{"name":"m","components":[{"name":"k","operations":[{"name":"o","max_xp":5,"grid_load":0,"effects":[{"effect_type":"Luck","base_value":1}]}]}]}]}]}`,
	}
	for file, body := range cases {
		dir := copyConfigs(t)
		if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(dir)
		if err == nil || !strings.Contains(err.Error(), file) {
			t.Fatalf("%s: expected file-prefixed error, got %v", file, err)
		}
	}
}

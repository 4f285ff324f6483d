package catalogs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ContentFiles maps each content file to the schema that describes it.
var ContentFiles = map[string]string{
	"attributes.json":       "attributes.schema.json",
	"modules.json":          "modules.schema.json",
	"factions.json":         "factions.schema.json",
	"battles.json":          "battles.schema.json",
	"sectors.json":          "sectors.schema.json",
	"grid_strength.json":    "grid_strength.schema.json",
	"galactic_secrets.json": "galactic_secrets.schema.json",
}

type SchemaError struct {
	File string
	Err  error
}

func (e SchemaError) Error() string { return fmt.Sprintf("%s: %v", e.File, e.Err) }

func (e SchemaError) Unwrap() error { return e.Err }

// ValidateDir checks every content file in configDir against schemaDir.
// Missing optional files are skipped.
func ValidateDir(configDir, schemaDir string) []SchemaError {
	var errs []SchemaError
	for _, file := range sortedKeys(ContentFiles) {
		p := filepath.Join(configDir, file)
		raw, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) && file == "galactic_secrets.json" {
				continue
			}
			errs = append(errs, SchemaError{File: file, Err: err})
			continue
		}
		if err := ValidateBytes(filepath.Join(schemaDir, ContentFiles[file]), raw); err != nil {
			errs = append(errs, SchemaError{File: file, Err: err})
		}
	}
	return errs
}

func ValidateBytes(schemaPath string, raw []byte) error {
	s, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return fmt.Errorf("compile %s: %w", filepath.Base(schemaPath), err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/sim/gridwalk"
)

// Tuning is the run configuration file: search parameters plus the gridwalk
// domain they run over.
type Tuning struct {
	Search  scattershot.Config `yaml:"search" json:"search"`
	Terrain gridwalk.Terrain   `yaml:"terrain" json:"terrain"`

	// MaxFrames bounds movement past the start frame.
	MaxFrames int64 `yaml:"max_frames" json:"max_frames"`

	// CheckpointEveryMerges writes a checkpoint every N merges; 0 writes only
	// the final one.
	CheckpointEveryMerges int `yaml:"checkpoint_every_merges" json:"checkpoint_every_merges"`
}

func Defaults() Tuning {
	return Tuning{
		Search:                scattershot.Defaults(),
		Terrain:               gridwalk.DefaultTerrain(),
		MaxFrames:             600,
		CheckpointEveryMerges: 20,
	}
}

//go:embed config.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("config.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("config.schema.json")
	})
	return schema, schemaErr
}

func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	t, err := Parse(raw)
	if err != nil {
		return Tuning{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse validates a YAML document against the config schema, decodes it over
// Defaults and range-checks the result.
func Parse(raw []byte) (Tuning, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Tuning{}, fmt.Errorf("yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	// Round-trip through JSON so the validator sees JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return Tuning{}, fmt.Errorf("yaml: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return Tuning{}, err
	}
	s, err := compiledSchema()
	if err != nil {
		return Tuning{}, fmt.Errorf("config schema: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return Tuning{}, fmt.Errorf("schema: %w", err)
	}

	t := Defaults()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tuning{}, fmt.Errorf("yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if err := t.Search.Validate(); err != nil {
		return err
	}
	tr := t.Terrain
	switch {
	case tr.Width < 5 || tr.Height < 5:
		return fmt.Errorf("terrain must be at least 5x5")
	case tr.Width > 1000 || tr.Height > 1000:
		return fmt.Errorf("terrain must be at most 1000x1000")
	case tr.WallPermille < 0 || tr.PitPermille < 0 || tr.WallPermille+tr.PitPermille > 1000:
		return fmt.Errorf("wall_permille + pit_permille must be in [0, 1000]")
	case !inside(tr, tr.StartX, tr.StartY):
		return fmt.Errorf("start (%d,%d) is outside the terrain interior", tr.StartX, tr.StartY)
	case !inside(tr, tr.GoalX, tr.GoalY):
		return fmt.Errorf("goal (%d,%d) is outside the terrain interior", tr.GoalX, tr.GoalY)
	case t.MaxFrames <= 0:
		return fmt.Errorf("max_frames must be > 0")
	case t.CheckpointEveryMerges < 0:
		return fmt.Errorf("checkpoint_every_merges must be >= 0")
	}
	return nil
}

func inside(tr gridwalk.Terrain, x, y int32) bool {
	return x > 0 && y > 0 && x < tr.Width-1 && y < tr.Height-1
}

// Domain builds the gridwalk search domain.
func (t Tuning) Domain() gridwalk.Domain {
	return gridwalk.Domain{Terrain: t.Terrain, MaxFrames: t.MaxFrames}
}

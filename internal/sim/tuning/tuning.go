package tuning

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed config.schema.json
var schemaJSON string

type Config struct {
	World       World       `yaml:"world" json:"world"`
	Streaming   Streaming   `yaml:"streaming" json:"streaming"`
	Terrain     Terrain     `yaml:"terrain" json:"terrain"`
	Meshing     Meshing     `yaml:"meshing" json:"meshing"`
	Persistence Persistence `yaml:"persistence" json:"persistence"`
}

type World struct {
	ID         string `yaml:"id" json:"id" validate:"required,max=64"`
	ChunkSize  int    `yaml:"chunk_size" json:"chunk_size" validate:"min=4,max=64"`
	TickRateHz int    `yaml:"tick_rate_hz" json:"tick_rate_hz" validate:"min=1,max=240"`
}

type Streaming struct {
	LoadRadius            int `yaml:"load_radius" json:"load_radius" validate:"min=0,max=32"`
	VerticalRadius        int `yaml:"vertical_radius" json:"vertical_radius" validate:"min=0,max=32"`
	MaxGenerationsPerTick int `yaml:"max_generations_per_tick" json:"max_generations_per_tick" validate:"min=1"`
	MaxMeshesPerTick      int `yaml:"max_meshes_per_tick" json:"max_meshes_per_tick" validate:"min=1"`
	MaxInFlight           int `yaml:"max_in_flight" json:"max_in_flight" validate:"min=1"`
	// 0 means one worker per CPU.
	Workers int `yaml:"workers" json:"workers" validate:"min=0,max=256"`
}

type Terrain struct {
	Seed          int64   `yaml:"seed" json:"seed"`
	Frequency     float64 `yaml:"frequency" json:"frequency" validate:"gt=0"`
	Amplitude     float64 `yaml:"amplitude" json:"amplitude" validate:"gte=0"`
	Octaves       int     `yaml:"octaves" json:"octaves" validate:"min=1,max=12"`
	Persistence   float64 `yaml:"persistence" json:"persistence" validate:"gt=0,lte=1"`
	Lacunarity    float64 `yaml:"lacunarity" json:"lacunarity" validate:"gte=1"`
	BaseHeight    int     `yaml:"base_height" json:"base_height"`
	DirtDepth     int     `yaml:"dirt_depth" json:"dirt_depth" validate:"min=0"`
	SnowLine      int     `yaml:"snow_line" json:"snow_line"`
	BeachHeight   int     `yaml:"beach_height" json:"beach_height"`
	CaveFrequency float64 `yaml:"cave_frequency" json:"cave_frequency" validate:"gte=0"`
	CaveThreshold float64 `yaml:"cave_threshold" json:"cave_threshold" validate:"gte=0,lte=1"`
	OrePermille   int     `yaml:"ore_permille" json:"ore_permille" validate:"min=0,max=1000"`
}

type Meshing struct {
	Greedy bool `yaml:"greedy" json:"greedy"`
}

type Persistence struct {
	// Empty disables the edit journal; edits are then lost on eviction.
	JournalPath string `yaml:"journal_path" json:"journal_path"`
	SaveOnEvict bool   `yaml:"save_on_evict" json:"save_on_evict"`
	TickLogDir  string `yaml:"tick_log_dir" json:"tick_log_dir"`
	SnapshotDir string `yaml:"snapshot_dir" json:"snapshot_dir"`

	// LogTickWindow is how many ticks one log segment covers; 0 means an
	// hour of ticks.
	LogTickWindow uint64 `yaml:"log_tick_window" json:"log_tick_window"`
}

func Defaults() Config {
	return Config{
		World: World{ID: "world_1", ChunkSize: 16, TickRateHz: 20},
		Streaming: Streaming{
			LoadRadius:            6,
			VerticalRadius:        3,
			MaxGenerationsPerTick: 8,
			MaxMeshesPerTick:      8,
			MaxInFlight:           32,
		},
		Terrain: Terrain{
			Seed:          1337,
			Frequency:     0.008,
			Amplitude:     24,
			Octaves:       4,
			Persistence:   0.5,
			Lacunarity:    2,
			DirtDepth:     3,
			SnowLine:      18,
			BeachHeight:   -6,
			CaveFrequency: 0.045,
			CaveThreshold: 0.62,
			OrePermille:   8,
		},
		Meshing: Meshing{Greedy: true},
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("tuning: %w", err)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("config.schema.json", schemaJSON)
}

// Parse decodes a YAML document on top of Defaults. Unknown keys and
// mistyped values are rejected by the embedded schema before decoding.
func Parse(raw []byte) (Config, error) {
	t := Defaults()
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return t, fmt.Errorf("tuning yaml: %w", err)
	}
	if doc != nil {
		// The schema validator wants JSON-shaped values.
		b, err := json.Marshal(doc)
		if err != nil {
			return t, fmt.Errorf("tuning yaml: %w", err)
		}
		var jdoc any
		if err := json.Unmarshal(b, &jdoc); err != nil {
			return t, fmt.Errorf("tuning yaml: %w", err)
		}
		schema, err := compileSchema()
		if err != nil {
			return t, fmt.Errorf("tuning schema: %w", err)
		}
		if err := schema.Validate(jdoc); err != nil {
			return t, fmt.Errorf("tuning schema: %w", err)
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("tuning yaml: %w", err)
		}
	}
	return t, t.Validate()
}

// Load reads path. An empty path yields Defaults.
func Load(path string) (Config, error) {
	if path == "" {
		t := Defaults()
		return t, t.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	t, err := Parse(raw)
	if err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ApplyEnv overrides selected keys from VOXEL_* variables and revalidates.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var firstErr error
	num := func(key string, set func(int64)) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("tuning env %s: %w", key, err)
			}
			return
		}
		set(n)
	}
	str("VOXEL_WORLD_ID", &c.World.ID)
	num("VOXEL_CHUNK_SIZE", func(n int64) { c.World.ChunkSize = int(n) })
	num("VOXEL_TICK_RATE_HZ", func(n int64) { c.World.TickRateHz = int(n) })
	num("VOXEL_SEED", func(n int64) { c.Terrain.Seed = n })
	num("VOXEL_LOAD_RADIUS", func(n int64) { c.Streaming.LoadRadius = int(n) })
	num("VOXEL_WORKERS", func(n int64) { c.Streaming.Workers = int(n) })
	str("VOXEL_JOURNAL_PATH", &c.Persistence.JournalPath)
	str("VOXEL_TICK_LOG_DIR", &c.Persistence.TickLogDir)
	str("VOXEL_SNAPSHOT_DIR", &c.Persistence.SnapshotDir)
	if v, ok := lookup("VOXEL_SAVE_ON_EVICT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tuning env VOXEL_SAVE_ON_EVICT: %w", err)
		}
		if err == nil {
			c.Persistence.SaveOnEvict = b
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return c.Validate()
}

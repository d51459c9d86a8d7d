package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/armada/engine/core"
)

// FramesInFlight is the only supported number of frames in flight.
const FramesInFlight = 2

const (
	PresentModeMailbox = "mailbox"
	PresentModeFIFO    = "fifo"
)

type Config struct {
	App    AppConfig    `toml:"app"`
	Render RenderConfig `toml:"render"`
	Log    LogConfig    `toml:"log"`
	Debug  DebugConfig  `toml:"debug"`
}

type AppConfig struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RenderConfig struct {
	FramesInFlight  int        `toml:"frames_in_flight"`
	ClearColor      [4]float32 `toml:"clear_color"`
	PresentMode     string     `toml:"present_mode"`
	ShaderDir       string     `toml:"shader_dir"`
	MaxMaterialSets uint32     `toml:"max_material_sets"`
	ReservedUISets  uint32     `toml:"reserved_ui_sets"`
	MaxTextures     uint32     `toml:"max_textures"`
	Validation      bool       `toml:"validation"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type DebugConfig struct {
	CheckGenerations bool `toml:"check_generations"`
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:   "Armada",
			Width:  1280,
			Height: 720,
		},
		Render: RenderConfig{
			FramesInFlight:  FramesInFlight,
			ClearColor:      [4]float32{0.02, 0.02, 0.05, 1.0},
			PresentMode:     PresentModeMailbox,
			ShaderDir:       "target/shaders",
			MaxMaterialSets: 256,
			ReservedUISets:  16,
			MaxTextures:     512,
			Validation:      false,
		},
		Log: LogConfig{
			Level: "info",
		},
		Debug: DebugConfig{
			CheckGenerations: true,
		},
	}
}

// Load reads a TOML file over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			core.LogDebug("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := Decode(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays TOML data onto cfg; unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.App.Width == 0 || c.App.Height == 0 {
		return fmt.Errorf("app window size must be non zero, got %dx%d", c.App.Width, c.App.Height)
	}
	if c.Render.FramesInFlight != FramesInFlight {
		return fmt.Errorf("render.frames_in_flight must be %d, got %d", FramesInFlight, c.Render.FramesInFlight)
	}
	switch c.Render.PresentMode {
	case PresentModeMailbox, PresentModeFIFO:
	default:
		return fmt.Errorf("render.present_mode must be %q or %q, got %q", PresentModeMailbox, PresentModeFIFO, c.Render.PresentMode)
	}
	for i, v := range c.Render.ClearColor {
		if v < 0 || v > 1 {
			return fmt.Errorf("render.clear_color[%d] out of [0,1]: %f", i, v)
		}
	}
	if c.Render.ShaderDir == "" {
		return errors.New("render.shader_dir is empty")
	}
	if c.Render.MaxMaterialSets == 0 {
		return errors.New("render.max_material_sets must be positive")
	}
	if c.Render.MaxTextures == 0 {
		return errors.New("render.max_textures must be positive")
	}
	if _, err := core.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Reloadable is the subset of Config that can change while the engine runs.
type Reloadable struct {
	LogLevel   string
	ClearColor [4]float32
}

func (c *Config) Reloadable() Reloadable {
	return Reloadable{
		LogLevel:   c.Log.Level,
		ClearColor: c.Render.ClearColor,
	}
}

// Package mapconfig loads the fixed map viewport shown on the dashboard.
package mapconfig

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type MapState struct {
	Bearing   float64 `yaml:"bearing" json:"bearing"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Pitch     float64 `yaml:"pitch" json:"pitch"`
	Zoom      float64 `yaml:"zoom" json:"zoom"`
}

type VisState struct {
	LayerBlending string `yaml:"layerBlending" json:"layerBlending"`
}

type Settings struct {
	MapState MapState `yaml:"mapState" json:"mapState"`
	VisState VisState `yaml:"visState" json:"visState"`
}

// Config is read once at startup and never changed afterwards.
type Config struct {
	Version string   `yaml:"version" json:"version"`
	Config  Settings `yaml:"config" json:"config"`
}

var blendings = map[string]bool{"normal": true, "additive": true, "subtractive": true}

// Default returns the built-in viewport centred on Jordan.
func Default() Config {
	c, err := decode(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded map config: %v", err))
	}
	return c
}

// Load reads path, or returns Default when path is empty.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read map config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return Config{}, fmt.Errorf("map config %s: %w", path, err)
	}
	return c, nil
}

func decode(b []byte) (Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var c Config
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, errors.New("empty document")
		}
		return Config{}, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	ms := c.Config.MapState
	switch {
	case c.Version == "":
		return errors.New("version is required")
	case ms.Latitude < -90 || ms.Latitude > 90:
		return fmt.Errorf("latitude %v out of range", ms.Latitude)
	case ms.Longitude < -180 || ms.Longitude > 180:
		return fmt.Errorf("longitude %v out of range", ms.Longitude)
	case ms.Zoom < 0 || ms.Zoom > 24:
		return fmt.Errorf("zoom %v out of range 0..24", ms.Zoom)
	case ms.Pitch < 0 || ms.Pitch > 85:
		return fmt.Errorf("pitch %v out of range 0..85", ms.Pitch)
	case ms.Bearing < -360 || ms.Bearing > 360:
		return fmt.Errorf("bearing %v out of range", ms.Bearing)
	case !blendings[c.Config.VisState.LayerBlending]:
		return fmt.Errorf("unknown layerBlending %q", c.Config.VisState.LayerBlending)
	}
	return nil
}

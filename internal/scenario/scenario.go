package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario describes one benchmark world: how it is seeded and which
// systems run each tick. Listed order is registration order, which fixes
// the stage plan.
type Scenario struct {
	Name     string   `yaml:"name"`
	Seed     int64    `yaml:"seed"`
	Entities int      `yaml:"entities"`
	Bounds   Bounds   `yaml:"bounds"`
	Systems  []string `yaml:"systems"` // built-in system names
	Scripts  []string `yaml:"scripts"` // lua system file paths
}

// Bounds is the playfield the bounce system reflects entities off.
type Bounds struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Default is the built-in scenario used when no file is given.
func Default() *Scenario {
	return &Scenario{
		Name:     "orbit",
		Seed:     42,
		Entities: 4096,
		Bounds:   Bounds{Width: 1000, Height: 1000},
		Systems:  []string{"gravity", "movement", "bounds", "wear", "stats"},
	}
}

func (s *Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("missing name")
	}
	if s.Entities <= 0 {
		return fmt.Errorf("entities %d out of range", s.Entities)
	}
	if s.Bounds.Width <= 0 || s.Bounds.Height <= 0 {
		return fmt.Errorf("bounds %gx%g out of range", s.Bounds.Width, s.Bounds.Height)
	}
	if len(s.Systems) == 0 && len(s.Scripts) == 0 {
		return errors.New("no systems to run")
	}
	return nil
}

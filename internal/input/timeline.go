package input

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
)

// Step sets the horizontal input from Tick onward.
type Step struct {
	Tick       uint64  `yaml:"tick"`
	Horizontal float32 `yaml:"horizontal"`
}

type timelineFile struct {
	// Loop restarts the timeline every Loop ticks when non-zero.
	Loop  uint64 `yaml:"loop"`
	Steps []Step `yaml:"steps"`
}

// Timeline replays a scripted sequence of input steps. Each step's value holds
// until the next step; before the first step the input is zero.
type Timeline struct {
	loop  uint64
	steps []Step
}

// LoadTimeline reads a timeline from a YAML file.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns a validated Timeline or a non-nil error.
func LoadTimeline(path string) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input timeline %s: %w", path, err)
	}
	t, err := ParseTimeline(data)
	if err != nil {
		return nil, fmt.Errorf("parsing input timeline %s: %w", path, err)
	}
	return t, nil
}

// ParseTimeline decodes and validates a YAML timeline document.
//
// Postcondition: Returns a Timeline whose steps are strictly increasing by tick,
// or an error listing every invalid step.
func ParseTimeline(data []byte) (*Timeline, error) {
	var f timelineFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Steps) == 0 {
		return nil, errors.New("timeline has no steps")
	}

	var errs []error
	for i, s := range f.Steps {
		if math.IsNaN(float64(s.Horizontal)) || s.Horizontal < -1 || s.Horizontal > 1 {
			errs = append(errs, fmt.Errorf("step %d: horizontal %g outside [-1, 1]", i, s.Horizontal))
		}
		if i > 0 && s.Tick <= f.Steps[i-1].Tick {
			errs = append(errs, fmt.Errorf("step %d: tick %d not after tick %d", i, s.Tick, f.Steps[i-1].Tick))
		}
		if f.Loop > 0 && s.Tick >= f.Loop {
			errs = append(errs, fmt.Errorf("step %d: tick %d not below loop length %d", i, s.Tick, f.Loop))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Timeline{loop: f.Loop, steps: f.Steps}, nil
}

// Next returns the value of the last step at or before tick.
func (t *Timeline) Next(tick uint64, _ protocol.RoomState) protocol.InputState {
	if t.loop > 0 {
		tick %= t.loop
	}
	i, found := slices.BinarySearchFunc(t.steps, tick, func(s Step, tick uint64) int {
		switch {
		case s.Tick < tick:
			return -1
		case s.Tick > tick:
			return 1
		}
		return 0
	})
	if !found {
		if i == 0 {
			return protocol.InputState{}
		}
		i--
	}
	return protocol.InputState{Horizontal: t.steps[i].Horizontal}
}

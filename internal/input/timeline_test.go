package input_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/arrowgame/internal/input"
	"github.com/cory-johannsen/arrowgame/internal/protocol"
)

const strafeTimeline = `
steps:
  - tick: 10
    horizontal: 1
  - tick: 20
    horizontal: -1
  - tick: 30
    horizontal: 0
`

func horizontalAt(p input.Provider, tick uint64) float32 {
	return p.Next(tick, protocol.RoomPlaying).Horizontal
}

func TestParseTimeline_HoldsEachStep(t *testing.T) {
	tl, err := input.ParseTimeline([]byte(strafeTimeline))
	require.NoError(t, err)

	assert.Equal(t, float32(0), horizontalAt(tl, 0))
	assert.Equal(t, float32(0), horizontalAt(tl, 9))
	assert.Equal(t, float32(1), horizontalAt(tl, 10))
	assert.Equal(t, float32(1), horizontalAt(tl, 19))
	assert.Equal(t, float32(-1), horizontalAt(tl, 20))
	assert.Equal(t, float32(0), horizontalAt(tl, 30))
	assert.Equal(t, float32(0), horizontalAt(tl, 1000))
}

func TestParseTimeline_Loop(t *testing.T) {
	tl, err := input.ParseTimeline([]byte(`
loop: 4
steps:
  - {tick: 0, horizontal: -1}
  - {tick: 2, horizontal: 1}
`))
	require.NoError(t, err)

	var got []float32
	for tick := range uint64(8) {
		got = append(got, horizontalAt(tl, tick))
	}
	assert.Equal(t, []float32{-1, -1, 1, 1, -1, -1, 1, 1}, got)
}

func TestParseTimeline_Rejects(t *testing.T) {
	tests := map[string]string{
		"empty":         `steps: []`,
		"out of range":  `steps: [{tick: 1, horizontal: 2}]`,
		"not ascending": `steps: [{tick: 5, horizontal: 1}, {tick: 5, horizontal: 0}]`,
		"past loop":     "loop: 3\nsteps: [{tick: 3, horizontal: 1}]",
		"bad yaml":      `steps: {tick: [`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := input.ParseTimeline([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseTimeline_ReportsEveryInvalidStep(t *testing.T) {
	_, err := input.ParseTimeline([]byte(`steps: [{tick: 1, horizontal: 3}, {tick: 0, horizontal: -3}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0")
	assert.Contains(t, err.Error(), "step 1")
}

func TestLoadTimeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strafeTimeline), 0o600))

	tl, err := input.LoadTimeline(path)
	require.NoError(t, err)
	assert.Equal(t, float32(-1), horizontalAt(tl, 25))

	_, err = input.LoadTimeline(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

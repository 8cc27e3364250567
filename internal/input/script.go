package input

import (
	"errors"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
)

// ScriptEntryPoint is the global function a script must define. It is called
// as input(tick, room) with room one of "Waiting", "Playing" or "Ending", and
// must return the horizontal input as a number. Results are clamped to [-1, 1].
const ScriptEntryPoint = "input"

// Script produces input by calling a Lua function in a sandboxed state.
//
// A script that fails at run time is disabled: it logs the error once and
// yields zero input from then on. Script is not safe for concurrent use.
type Script struct {
	state    *lua.LState
	fn       *lua.LFunction
	limit    int
	logger   *zap.Logger
	disabled bool
}

// LoadScript loads a Lua input script from path.
//
// Precondition: limit >= 0; 0 uses DefaultInstructionLimit. logger must be non-nil.
// Postcondition: Returns a Script ready for Next, or an error if the file cannot
// be loaded or does not define the entry point. The caller must Close the Script.
func LoadScript(path string, limit int, logger *zap.Logger) (*Script, error) {
	return newScript(limit, logger, path, func(L *lua.LState) error { return L.DoFile(path) })
}

// NewScript loads a Lua input script from source. name labels errors.
func NewScript(name, source string, limit int, logger *zap.Logger) (*Script, error) {
	return newScript(limit, logger, name, func(L *lua.LState) error { return L.DoString(source) })
}

func newScript(limit int, logger *zap.Logger, name string, load func(*lua.LState) error) (*Script, error) {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	L := newSandboxedState()
	if err := metered(L, limit, func() error { return load(L) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("loading input script %s: %w", name, err)
	}
	fn, ok := L.GetGlobal(ScriptEntryPoint).(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("loading input script %s: global function %q not defined", name, ScriptEntryPoint)
	}
	return &Script{
		state:  L,
		fn:     fn,
		limit:  limit,
		logger: logger.With(zap.String("script", name)),
	}, nil
}

// Next calls the script's entry point for tick.
func (s *Script) Next(tick uint64, room protocol.RoomState) protocol.InputState {
	if s.disabled {
		return protocol.InputState{}
	}
	h, err := s.call(tick, room)
	if err != nil {
		s.disabled = true
		s.logger.Error("disabling input script", zap.Uint64("tick", tick), zap.Error(err))
		return protocol.InputState{}
	}
	return protocol.InputState{Horizontal: h}
}

func (s *Script) call(tick uint64, room protocol.RoomState) (float32, error) {
	var ret lua.LValue
	err := metered(s.state, s.limit, func() error {
		if err := s.state.CallByParam(lua.P{Fn: s.fn, NRet: 1, Protect: true},
			lua.LNumber(tick), lua.LString(room.String())); err != nil {
			return err
		}
		ret = s.state.Get(-1)
		s.state.Pop(1)
		return nil
	})
	if err != nil {
		return 0, err
	}
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("%s returned %s, want number", ScriptEntryPoint, ret.Type())
	}
	if math.IsNaN(float64(n)) {
		return 0, errors.New(ScriptEntryPoint + " returned NaN")
	}
	return clamp(float32(n)), nil
}

// Disabled reports whether the script has been disabled by a run-time error.
func (s *Script) Disabled() bool { return s.disabled }

// Close releases the Lua state.
func (s *Script) Close() {
	s.state.Close()
}

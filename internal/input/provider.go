// Package input supplies the local player's InputState each tick. Providers
// stand in for hardware input polling, which lives outside the network core.
package input

import "github.com/cory-johannsen/arrowgame/internal/protocol"

// Provider yields the local input for one tick.
//
// Next is called once per tick from the tick goroutine with the tick number
// (starting at 1) and the current room state.
type Provider interface {
	Next(tick uint64, room protocol.RoomState) protocol.InputState
}

// Func adapts a function to the Provider interface.
type Func func(tick uint64, room protocol.RoomState) protocol.InputState

// Next calls f.
func (f Func) Next(tick uint64, room protocol.RoomState) protocol.InputState {
	return f(tick, room)
}

// Static always yields the same state.
type Static struct {
	State protocol.InputState
}

// Next returns s.State.
func (s Static) Next(uint64, protocol.RoomState) protocol.InputState { return s.State }

// Gated yields the zero InputState unless the room is Playing, so a player
// cannot move before the match starts or after it ends.
type Gated struct {
	Provider Provider
}

// Next returns the wrapped provider's input while Playing, or the zero state.
// The wrapped provider is not consulted outside Playing.
func (g Gated) Next(tick uint64, room protocol.RoomState) protocol.InputState {
	if room != protocol.RoomPlaying {
		return protocol.InputState{}
	}
	return g.Provider.Next(tick, room)
}

func clamp(v float32) float32 {
	return min(max(v, -1), 1)
}

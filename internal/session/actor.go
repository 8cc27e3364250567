// Package session implements the client-side session: room lifecycle, local
// identity, remote player replication and dispatch of inbound packets.
//
// All session state is owned by the goroutine that calls Tick. The transport
// receive loops only push into the inbox and never touch session state.
package session

import "github.com/cory-johannsen/arrowgame/internal/protocol"

// Vec2 is a 2D position in world units.
type Vec2 struct {
	X float32
	Y float32
}

// Actor is an externally owned handle for a replicated remote player.
type Actor interface {
	// SetInput records the latest input state received for the player.
	SetInput(state protocol.InputState)
	// SetHealth updates the player's health display.
	SetHealth(hp float32)
	// Destroy releases the handle. It is called once, when the player leaves
	// or the session is torn down.
	Destroy()
}

// ActorFactory creates actor handles for players joining the room.
type ActorFactory interface {
	Spawn(id protocol.PlayerID, at Vec2) Actor
}

// LocalPlayer receives updates about the local player.
type LocalPlayer interface {
	AssignID(id protocol.PlayerID)
	SetHealth(hp float32)
}

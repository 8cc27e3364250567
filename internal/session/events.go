package session

import "github.com/cory-johannsen/arrowgame/internal/protocol"

// Event is emitted by Tick for external collaborators.
type Event interface {
	isEvent()
}

// PacketReceived is emitted for every dispatched inbound packet.
type PacketReceived struct {
	Packet protocol.Packet
}

// IdentityAssigned is emitted when the server assigns the local PlayerID.
type IdentityAssigned struct {
	PlayerID protocol.PlayerID
}

// RoomStateChanged is emitted when a room status moves the room to a new state.
type RoomStateChanged struct {
	From protocol.RoomState
	To   protocol.RoomState
}

// MatchEnded is emitted when the room enters Ending.
type MatchEnded struct {
	// Winner is protocol.Unassigned when the status named no players.
	Winner protocol.PlayerID
	Won    bool
}

// ArrowSpawned is emitted for arrow spawns received while playing.
type ArrowSpawned struct {
	X     float32
	Speed float32
}

func (PacketReceived) isEvent()   {}
func (IdentityAssigned) isEvent() {}
func (RoomStateChanged) isEvent() {}
func (MatchEnded) isEvent()       {}
func (ArrowSpawned) isEvent()     {}

// Subscriber receives every event emitted by the session, on the tick goroutine.
type Subscriber interface {
	OnEvent(e Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(e Event)

// OnEvent calls f(e).
func (f SubscriberFunc) OnEvent(e Event) { f(e) }

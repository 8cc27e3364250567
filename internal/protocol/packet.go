// Package protocol defines the closed set of packets exchanged with the arrow
// game server and their binary encoding.
package protocol

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Kind is the one-byte type tag that prefixes every packet on the wire.
type Kind byte

const (
	KindClientPing Kind = iota
	KindClientArrowHit
	KindPlayerInput
	KindServerAssignPlayerID
	KindServerRoomJoin
	KindServerRoomQuit
	KindServerRoomStatus
	KindServerArrowSpawn
	KindServerPong

	kindCount
)

var kindNames = [kindCount]string{
	KindClientPing:           "ClientPing",
	KindClientArrowHit:       "ClientArrowHit",
	KindPlayerInput:          "PlayerInput",
	KindServerAssignPlayerID: "ServerAssignPlayerId",
	KindServerRoomJoin:       "ServerRoomJoin",
	KindServerRoomQuit:       "ServerRoomQuit",
	KindServerRoomStatus:     "ServerRoomStatus",
	KindServerArrowSpawn:     "ServerArrowSpawn",
	KindServerPong:           "ServerPong",
}

// Valid reports whether k is a known packet kind.
func (k Kind) Valid() bool { return k < kindCount }

// String returns the packet kind name, or "Kind(n)" for unknown tags.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
	return kindNames[k]
}

// PlayerID is the server-assigned identity of a connected player.
type PlayerID int32

// Unassigned is the sentinel PlayerID held before the server assigns one.
const Unassigned PlayerID = -999

// ClientID is the locally generated identifier carried in every unreliable
// datagram in place of a connection identity.
type ClientID = uuid.UUID

// NewClientID returns a fresh random ClientID.
func NewClientID() ClientID { return uuid.New() }

// InputState is the local player's control input. Values compare with ==.
type InputState struct {
	Horizontal float32
}

// RoomState is the server-driven lifecycle phase of the room.
type RoomState byte

const (
	RoomWaiting RoomState = iota
	RoomPlaying
	RoomEnding
)

// Valid reports whether s is a known room state.
func (s RoomState) Valid() bool { return s <= RoomEnding }

func (s RoomState) String() string {
	switch s {
	case RoomWaiting:
		return "Waiting"
	case RoomPlaying:
		return "Playing"
	case RoomEnding:
		return "Ending"
	default:
		return fmt.Sprintf("RoomState(%d)", byte(s))
	}
}

// Packet is one of the packet types declared in this package.
// The set is closed: the unexported marker keeps other packages from adding kinds.
type Packet interface {
	Kind() Kind
	String() string
	isPacket()
}

// ClientPing announces the client to the server. On the unreliable channel the
// datagram header carries the ClientID; the payload itself is empty.
type ClientPing struct{}

// ClientArrowHit reports that the local player was hit by an arrow.
type ClientArrowHit struct {
	PlayerID PlayerID
}

// PlayerInput carries a player's input state. It travels in both directions.
type PlayerInput struct {
	PlayerID PlayerID
	State    InputState
}

// ServerAssignPlayerID tells the client which PlayerID is its own.
type ServerAssignPlayerID struct {
	PlayerID PlayerID
}

// ServerRoomJoin announces a player entering the room.
type ServerRoomJoin struct {
	PlayerID PlayerID
}

// ServerRoomQuit announces a player leaving the room.
type ServerRoomQuit struct {
	PlayerID PlayerID
}

// HealthEntry is one player→health pair of a ServerRoomStatus.
type HealthEntry struct {
	PlayerID PlayerID
	Health   float32
}

// ServerRoomStatus carries the room state and the health of every player.
// Players keeps wire order; lookups through Health and HealthMap ignore order.
//
// Invariant: no PlayerID appears twice in Players.
type ServerRoomStatus struct {
	State   RoomState
	Players []HealthEntry
}

// ServerArrowSpawn spawns a falling arrow at horizontal position X.
type ServerArrowSpawn struct {
	X     float32
	Speed float32
}

// ServerPong is the legacy identity assignment reply to ClientPing.
type ServerPong struct {
	PlayerID PlayerID
}

func (ClientPing) Kind() Kind           { return KindClientPing }
func (ClientArrowHit) Kind() Kind       { return KindClientArrowHit }
func (PlayerInput) Kind() Kind          { return KindPlayerInput }
func (ServerAssignPlayerID) Kind() Kind { return KindServerAssignPlayerID }
func (ServerRoomJoin) Kind() Kind       { return KindServerRoomJoin }
func (ServerRoomQuit) Kind() Kind       { return KindServerRoomQuit }
func (ServerRoomStatus) Kind() Kind     { return KindServerRoomStatus }
func (ServerArrowSpawn) Kind() Kind     { return KindServerArrowSpawn }
func (ServerPong) Kind() Kind           { return KindServerPong }

func (ClientPing) isPacket()           {}
func (ClientArrowHit) isPacket()       {}
func (PlayerInput) isPacket()          {}
func (ServerAssignPlayerID) isPacket() {}
func (ServerRoomJoin) isPacket()       {}
func (ServerRoomQuit) isPacket()       {}
func (ServerRoomStatus) isPacket()     {}
func (ServerArrowSpawn) isPacket()     {}
func (ServerPong) isPacket()           {}

func (ClientPing) String() string { return "ClientPing{}" }

func (p ClientArrowHit) String() string {
	return fmt.Sprintf("ClientArrowHit{player=%d}", p.PlayerID)
}

func (p PlayerInput) String() string {
	return fmt.Sprintf("PlayerInput{player=%d horizontal=%g}", p.PlayerID, p.State.Horizontal)
}

func (p ServerAssignPlayerID) String() string {
	return fmt.Sprintf("ServerAssignPlayerId{player=%d}", p.PlayerID)
}

func (p ServerRoomJoin) String() string {
	return fmt.Sprintf("ServerRoomJoin{player=%d}", p.PlayerID)
}

func (p ServerRoomQuit) String() string {
	return fmt.Sprintf("ServerRoomQuit{player=%d}", p.PlayerID)
}

func (p ServerRoomStatus) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ServerRoomStatus{state=%s hp=[", p.State)
	for i, e := range p.Players {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d:%g", e.PlayerID, e.Health)
	}
	b.WriteString("]}")
	return b.String()
}

func (p ServerArrowSpawn) String() string {
	return fmt.Sprintf("ServerArrowSpawn{x=%g speed=%g}", p.X, p.Speed)
}

func (p ServerPong) String() string {
	return fmt.Sprintf("ServerPong{player=%d}", p.PlayerID)
}

// NewRoomStatus builds a ServerRoomStatus from a player→health map.
// Entries are ordered by ascending PlayerID so the encoding is deterministic.
func NewRoomStatus(state RoomState, hp map[PlayerID]float32) ServerRoomStatus {
	status := ServerRoomStatus{State: state}
	for _, id := range slices.Sorted(maps.Keys(hp)) {
		status.Players = append(status.Players, HealthEntry{PlayerID: id, Health: hp[id]})
	}
	return status
}

// Health returns the health reported for id.
//
// Postcondition: Returns (health, true) if id is present, or (0, false) otherwise.
func (p ServerRoomStatus) Health(id PlayerID) (float32, bool) {
	for _, e := range p.Players {
		if e.PlayerID == id {
			return e.Health, true
		}
	}
	return 0, false
}

// HealthMap returns the player→health mapping.
func (p ServerRoomStatus) HealthMap() map[PlayerID]float32 {
	m := make(map[PlayerID]float32, len(p.Players))
	for _, e := range p.Players {
		m[e.PlayerID] = e.Health
	}
	return m
}

// Datagram is a packet as carried on the unreliable channel, attributed to the
// client that sent it.
type Datagram struct {
	ClientID ClientID
	Packet   Packet
}

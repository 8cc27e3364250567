package client

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
	"github.com/cory-johannsen/arrowgame/internal/session"
)

// LogActors is an ActorFactory for running without a scene: each replicated
// player is an actor that records and logs what the session tells it.
type LogActors struct {
	Logger *zap.Logger
}

// Spawn returns a LogActor for id.
func (f LogActors) Spawn(id protocol.PlayerID, at session.Vec2) session.Actor {
	logger := f.Logger.With(zap.Int32("player_id", int32(id)))
	logger.Info("spawned replicated player",
		zap.Float32("x", at.X),
		zap.Float32("y", at.Y),
	)
	return &LogActor{ID: id, logger: logger}
}

// LogActor is a replicated player without a visual representation.
type LogActor struct {
	ID protocol.PlayerID

	mu        sync.Mutex
	input     protocol.InputState
	health    float32
	destroyed bool
	logger    *zap.Logger
}

// SetInput records the player's latest input.
func (a *LogActor) SetInput(s protocol.InputState) {
	a.mu.Lock()
	a.input = s
	a.mu.Unlock()
	a.logger.Debug("replicated input", zap.Float32("horizontal", s.Horizontal))
}

// SetHealth records the player's health.
func (a *LogActor) SetHealth(hp float32) {
	a.mu.Lock()
	a.health = hp
	a.mu.Unlock()
	a.logger.Info("replicated health", zap.Float32("hp", hp))
}

// Destroy marks the actor as removed.
func (a *LogActor) Destroy() {
	a.mu.Lock()
	a.destroyed = true
	a.mu.Unlock()
	a.logger.Info("removed replicated player")
}

// State returns the last input and health applied to the actor and whether it
// has been destroyed.
func (a *LogActor) State() (protocol.InputState, float32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input, a.health, a.destroyed
}

// LogLocalPlayer is the local player when running without a scene.
type LogLocalPlayer struct {
	Logger *zap.Logger

	mu     sync.Mutex
	id     protocol.PlayerID
	health float32
}

// AssignID records the local PlayerID.
func (p *LogLocalPlayer) AssignID(id protocol.PlayerID) {
	p.mu.Lock()
	p.id = id
	p.mu.Unlock()
	p.Logger.Info("local player labelled", zap.Int32("player_id", int32(id)))
}

// SetHealth records the local player's health.
func (p *LogLocalPlayer) SetHealth(hp float32) {
	p.mu.Lock()
	p.health = hp
	p.mu.Unlock()
	p.Logger.Info("local health", zap.Float32("hp", hp))
}

// Health returns the last health reported for the local player.
func (p *LogLocalPlayer) Health() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health
}

// Announcer logs the match milestones a player would see on screen.
type Announcer struct {
	Logger *zap.Logger
}

// OnEvent implements session.Subscriber.
func (a Announcer) OnEvent(e session.Event) {
	switch e := e.(type) {
	case session.IdentityAssigned:
		a.Logger.Info("joined room", zap.Int32("player_id", int32(e.PlayerID)))
	case session.RoomStateChanged:
		if e.To == protocol.RoomPlaying {
			a.Logger.Info("match started")
		}
	case session.ArrowSpawned:
		a.Logger.Debug("arrow incoming", zap.Float32("x", e.X), zap.Float32("speed", e.Speed))
	case session.MatchEnded:
		if e.Won {
			a.Logger.Info("YOU WIN!")
		} else {
			a.Logger.Info("YOU LOSE!", zap.Int32("winner", int32(e.Winner)))
		}
	}
}

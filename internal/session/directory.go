package session

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
)

// Directory maps remote PlayerIDs to their actor handles.
//
// Invariant: the directory never holds an entry for the local PlayerID.
// Directory is not safe for concurrent use; it belongs to the tick goroutine.
type Directory struct {
	factory ActorFactory
	spawn   Vec2
	logger  *zap.Logger

	local  protocol.PlayerID
	actors map[protocol.PlayerID]Actor
}

// NewDirectory creates an empty directory that spawns actors at spawn.
//
// Precondition: factory and logger must be non-nil.
func NewDirectory(factory ActorFactory, spawn Vec2, logger *zap.Logger) *Directory {
	return &Directory{
		factory: factory,
		spawn:   spawn,
		logger:  logger,
		local:   protocol.Unassigned,
		actors:  make(map[protocol.PlayerID]Actor),
	}
}

// SetLocal records the local PlayerID. An existing entry for id, created by a
// join that overtook the identity assignment, is destroyed.
func (d *Directory) SetLocal(id protocol.PlayerID) {
	d.local = id
	if id == protocol.Unassigned {
		return
	}
	if actor, ok := d.actors[id]; ok {
		delete(d.actors, id)
		actor.Destroy()
		d.logger.Debug("removed replicated actor for local player", zap.Int32("player_id", int32(id)))
	}
}

// Join creates an actor for id.
//
// Postcondition: Returns true if a new actor was created. Joins for the local
// player and for players already present are ignored and return false.
func (d *Directory) Join(id protocol.PlayerID) bool {
	if id == d.local {
		d.logger.Debug("ignoring join for local player", zap.Int32("player_id", int32(id)))
		return false
	}
	if _, exists := d.actors[id]; exists {
		d.logger.Debug("ignoring duplicate join", zap.Int32("player_id", int32(id)))
		return false
	}
	d.actors[id] = d.factory.Spawn(id, d.spawn)
	d.logger.Info("player joined",
		zap.Int32("player_id", int32(id)),
		zap.Int("remote_players", len(d.actors)),
	)
	return true
}

// Quit destroys and removes the actor for id.
//
// Postcondition: Returns true if an actor was removed. Unknown and local ids are a no-op.
func (d *Directory) Quit(id protocol.PlayerID) bool {
	if id == d.local {
		return false
	}
	actor, ok := d.actors[id]
	if !ok {
		return false
	}
	delete(d.actors, id)
	actor.Destroy()
	d.logger.Info("player quit",
		zap.Int32("player_id", int32(id)),
		zap.Int("remote_players", len(d.actors)),
	)
	return true
}

// Get returns the actor for id.
func (d *Directory) Get(id protocol.PlayerID) (Actor, bool) {
	a, ok := d.actors[id]
	return a, ok
}

// Len returns the number of replicated players.
func (d *Directory) Len() int { return len(d.actors) }

// IDs returns the replicated PlayerIDs in ascending order.
func (d *Directory) IDs() []protocol.PlayerID {
	return slices.Sorted(maps.Keys(d.actors))
}

// Clear destroys every actor and forgets the local PlayerID.
func (d *Directory) Clear() {
	for _, id := range d.IDs() {
		d.actors[id].Destroy()
		delete(d.actors, id)
	}
	d.local = protocol.Unassigned
}

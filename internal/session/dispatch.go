package session

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
)

// dispatch applies p to the session state and returns the resulting events.
// The switch covers every packet kind; add a case here with every new kind.
func (s *Session) dispatch(p protocol.Packet) []Event {
	s.logger.Debug("dispatching", zap.Stringer("packet", p))
	events := []Event{PacketReceived{Packet: p}}

	if s.room == protocol.RoomEnding {
		if quit, ok := p.(protocol.ServerRoomQuit); ok {
			s.directory.Quit(quit.PlayerID)
			return events
		}
		s.logger.Debug("room has ended, ignoring packet", zap.Stringer("packet", p))
		return events
	}

	switch p := p.(type) {
	case protocol.ServerAssignPlayerID:
		return s.assign(p.PlayerID, events)
	case protocol.ServerPong:
		return s.assign(p.PlayerID, events)
	case protocol.ServerRoomJoin:
		s.directory.Join(p.PlayerID)
	case protocol.ServerRoomQuit:
		s.directory.Quit(p.PlayerID)
	case protocol.ServerRoomStatus:
		return s.applyStatus(p, events)
	case protocol.PlayerInput:
		s.remoteInput(p)
	case protocol.ServerArrowSpawn:
		if s.room != protocol.RoomPlaying {
			return events
		}
		return append(events, ArrowSpawned{X: p.X, Speed: p.Speed})
	case protocol.ClientPing, protocol.ClientArrowHit:
		s.logger.Warn("server sent a client-only packet", zap.Stringer("packet", p))
	default:
		s.logger.Error("unhandled packet kind", zap.Stringer("kind", p.Kind()))
	}
	return events
}

func (s *Session) assign(id protocol.PlayerID, events []Event) []Event {
	if s.localID != protocol.Unassigned {
		if id != s.localID {
			s.logger.Warn("ignoring reassignment of player id",
				zap.Int32("player_id", int32(s.localID)),
				zap.Int32("requested", int32(id)),
			)
		}
		return events
	}
	s.localID = id
	s.directory.SetLocal(id)
	s.local.AssignID(id)
	s.logger.Info("player id assigned", zap.Int32("player_id", int32(id)))
	return append(events, IdentityAssigned{PlayerID: id})
}

func (s *Session) applyStatus(p protocol.ServerRoomStatus, events []Event) []Event {
	if prev := s.room; prev != p.State {
		s.room = p.State
		s.logger.Info("room state changed",
			zap.Stringer("from", prev),
			zap.Stringer("to", p.State),
		)
		events = append(events, RoomStateChanged{From: prev, To: p.State})
	}

	if s.room == protocol.RoomEnding {
		winner := ResolveWinner(p.Players)
		won := s.localID != protocol.Unassigned && winner == s.localID
		s.logger.Info("match ended",
			zap.Int32("winner", int32(winner)),
			zap.Bool("won", won),
		)
		events = append(events, MatchEnded{Winner: winner, Won: won})
	}

	if s.localID == protocol.Unassigned {
		s.logger.Debug("skipping health update: player id unassigned")
		return events
	}
	for _, e := range p.Players {
		if e.PlayerID == s.localID {
			s.local.SetHealth(e.Health)
			s.logger.Debug("setting local player health", zap.Float32("hp", e.Health))
			continue
		}
		if actor, ok := s.directory.Get(e.PlayerID); ok {
			actor.SetHealth(e.Health)
			s.logger.Debug("setting replicated player health",
				zap.Int32("player_id", int32(e.PlayerID)),
				zap.Float32("hp", e.Health),
			)
		}
	}
	return events
}

func (s *Session) remoteInput(p protocol.PlayerInput) {
	if p.PlayerID == s.localID || s.room != protocol.RoomPlaying {
		return
	}
	actor, ok := s.directory.Get(p.PlayerID)
	if !ok {
		s.logger.Debug("dropping input for unknown player", zap.Int32("player_id", int32(p.PlayerID)))
		return
	}
	actor.SetInput(p.State)
}

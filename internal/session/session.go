package session

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
)

// ErrIdentityUnassigned is returned by operations that need the local PlayerID
// before the server has assigned one.
var ErrIdentityUnassigned = errors.New("player id not assigned yet")

// Inbox is the consumer side of the receive queue.
type Inbox interface {
	TryPop() (protocol.Packet, bool)
}

// Sender sends a packet on one transport channel. Send blocks until the packet
// is handed to the socket.
type Sender interface {
	Send(p protocol.Packet) error
}

// Deps are the collaborators a Session is built from.
type Deps struct {
	Inbox Inbox
	// Reliable carries hit reports.
	Reliable Sender
	// Unreliable carries local input, the latest value wins.
	Unreliable Sender
	Actors     ActorFactory
	Local      LocalPlayer
	Logger     *zap.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithSubscriber adds s to the fixed list of event subscribers.
func WithSubscriber(s Subscriber) Option {
	return func(sess *Session) {
		sess.subscribers = append(sess.subscribers, s)
	}
}

// Session is the client-side view of one game room.
//
// Invariant: only the goroutine calling Tick, HitByHazard and Reset touches
// session state; no locks are taken.
type Session struct {
	inbox       Inbox
	reliable    Sender
	unreliable  Sender
	local       LocalPlayer
	directory   *Directory
	subscribers []Subscriber
	logger      *zap.Logger

	localID  protocol.PlayerID
	room     protocol.RoomState
	lastSent protocol.InputState
	ticks    uint64
}

// New creates a Session in the Waiting state with no local identity.
//
// Precondition: every field of deps must be non-nil.
// Postcondition: Returns a Session ready for Tick.
func New(deps Deps, spawn Vec2, opts ...Option) *Session {
	s := &Session{
		inbox:      deps.Inbox,
		reliable:   deps.Reliable,
		unreliable: deps.Unreliable,
		local:      deps.Local,
		directory:  NewDirectory(deps.Actors, spawn, deps.Logger),
		logger:     deps.Logger,
		localID:    protocol.Unassigned,
		room:       protocol.RoomWaiting,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LocalID returns the local PlayerID, or protocol.Unassigned.
func (s *Session) LocalID() protocol.PlayerID { return s.localID }

// RoomState returns the current room state.
func (s *Session) RoomState() protocol.RoomState { return s.room }

// Directory returns the replication directory.
func (s *Session) Directory() *Directory { return s.directory }

// Ticks returns the number of completed ticks.
func (s *Session) Ticks() uint64 { return s.ticks }

// Tick advances the session by one step: it sends the local input if it
// changed since the last send, then dispatches at most one queued packet.
//
// Postcondition: Returns the events emitted during this tick, which were also
// delivered to every subscriber.
func (s *Session) Tick(input protocol.InputState) []Event {
	s.ticks++
	s.sendInput(input)

	p, ok := s.inbox.TryPop()
	if !ok {
		return nil
	}
	events := s.dispatch(p)
	for _, e := range events {
		for _, sub := range s.subscribers {
			sub.OnEvent(e)
		}
	}
	return events
}

func (s *Session) sendInput(input protocol.InputState) {
	if input == s.lastSent {
		return
	}
	if s.localID == protocol.Unassigned {
		s.logger.Debug("input not sent: player id unassigned",
			zap.Float32("horizontal", input.Horizontal),
		)
		return
	}
	if s.room != protocol.RoomPlaying {
		return
	}
	if err := s.unreliable.Send(protocol.PlayerInput{PlayerID: s.localID, State: input}); err != nil {
		s.logger.Warn("dropping input packet", zap.Error(err))
		return
	}
	s.lastSent = input
}

// HitByHazard reports that the local player was hit by an arrow.
//
// Postcondition: Sends ClientArrowHit on the reliable channel. Returns
// ErrIdentityUnassigned if no PlayerID has been assigned, or the send error.
func (s *Session) HitByHazard() error {
	if s.localID == protocol.Unassigned {
		s.logger.Error("hit report not sent", zap.Error(ErrIdentityUnassigned))
		return ErrIdentityUnassigned
	}
	if err := s.reliable.Send(protocol.ClientArrowHit{PlayerID: s.localID}); err != nil {
		s.logger.Warn("dropping hit report", zap.Error(err))
		return fmt.Errorf("sending hit report: %w", err)
	}
	return nil
}

// Reset returns the session to its initial state and destroys every actor.
// It is part of teardown.
//
// Postcondition: LocalID is Unassigned, RoomState is Waiting and the directory is empty.
func (s *Session) Reset() {
	s.directory.Clear()
	s.localID = protocol.Unassigned
	s.room = protocol.RoomWaiting
	s.lastSent = protocol.InputState{}
}

package session

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
	"github.com/cory-johannsen/arrowgame/internal/queue"
)

type fakeSender struct {
	sent []protocol.Packet
	err  error
}

func (f *fakeSender) Send(p protocol.Packet) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, p)
	return nil
}

type fakeActor struct {
	id        protocol.PlayerID
	input     protocol.InputState
	hp        float32
	destroyed int
}

func (a *fakeActor) SetInput(s protocol.InputState) { a.input = s }
func (a *fakeActor) SetHealth(hp float32)           { a.hp = hp }
func (a *fakeActor) Destroy()                       { a.destroyed++ }

type fakeFactory struct {
	spawned []*fakeActor
	at      []Vec2
}

func (f *fakeFactory) Spawn(id protocol.PlayerID, at Vec2) Actor {
	a := &fakeActor{id: id}
	f.spawned = append(f.spawned, a)
	f.at = append(f.at, at)
	return a
}

type fakeLocal struct {
	id        protocol.PlayerID
	hp        float32
	hpUpdates int
}

func (l *fakeLocal) AssignID(id protocol.PlayerID) { l.id = id }
func (l *fakeLocal) SetHealth(hp float32)          { l.hp = hp; l.hpUpdates++ }

type harness struct {
	sess       *Session
	inbox      *queue.Queue[protocol.Packet]
	reliable   *fakeSender
	unreliable *fakeSender
	factory    *fakeFactory
	local      *fakeLocal
	events     []Event
}

var errOffline = errors.New("offline")

func newHarness(t *testing.T) *harness {
	h := &harness{
		inbox:      queue.New[protocol.Packet](),
		reliable:   &fakeSender{},
		unreliable: &fakeSender{},
		factory:    &fakeFactory{},
		local:      &fakeLocal{id: protocol.Unassigned},
	}
	h.sess = New(Deps{
		Inbox:      h.inbox,
		Reliable:   h.reliable,
		Unreliable: h.unreliable,
		Actors:     h.factory,
		Local:      h.local,
		Logger:     zaptest.NewLogger(t),
	}, Vec2{X: 1, Y: -2}, WithSubscriber(SubscriberFunc(func(e Event) {
		h.events = append(h.events, e)
	})))
	return h
}

// feed queues each packet and runs one tick per packet with zero input.
func (h *harness) feed(packets ...protocol.Packet) {
	for _, p := range packets {
		h.inbox.Push(p)
		h.sess.Tick(protocol.InputState{})
	}
}

// playingAs assigns id and moves the room to Playing.
func (h *harness) playingAs(id protocol.PlayerID) {
	h.feed(
		protocol.ServerAssignPlayerID{PlayerID: id},
		protocol.ServerRoomStatus{State: protocol.RoomPlaying},
	)
}

func (h *harness) actor(id protocol.PlayerID) *fakeActor {
	a, ok := h.sess.Directory().Get(id)
	if !ok {
		return nil
	}
	return a.(*fakeActor)
}

// Package transport implements the reliable (TCP) and unreliable (UDP) channels
// to the game server. Each channel owns one background receive goroutine that
// decodes inbound packets and hands them to a Sink.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
)

var (
	// ErrNotConnected is returned by Send when the channel is not open.
	ErrNotConnected = errors.New("channel not connected")
	// ErrAlreadyConnected is returned by Dial on a channel that was already dialed.
	ErrAlreadyConnected = errors.New("channel already connected")
)

// Sink receives decoded inbound packets. Implementations must be safe for
// concurrent use; the receive queue is the production implementation.
type Sink interface {
	Push(p protocol.Packet) bool
}

// Channel is the behaviour shared by the reliable and unreliable channels.
type Channel interface {
	Dial(ctx context.Context) error
	Send(p protocol.Packet) error
	Close() error
	Health() Health
	Done() <-chan struct{}
}

// State is the lifecycle phase of a channel.
type State int32

const (
	StateIdle State = iota
	StateOpen
	StateDead
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateDead:
		return "dead"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Health is a point-in-time view of a channel, used to surface a receive loop
// that died while the session kept running.
type Health struct {
	State    State
	Received int64
	Dropped  int64
	Sent     int64
	// Err is the error that killed the receive loop, if any.
	Err error
}

// Alive reports whether the channel can still send and receive.
func (h Health) Alive() bool { return h.State == StateOpen }

// base holds the state and counters common to both channel kinds.
//
// mu serializes Dial and Send. Close never waits on mu before interrupting the
// socket, so a Send stalled on a peer that stopped reading cannot block teardown.
type base struct {
	name   string
	sink   Sink
	logger *zap.Logger

	mu      sync.Mutex
	closing atomic.Bool
	sock    atomic.Pointer[net.Conn]

	errMu sync.Mutex
	err   error

	state    atomic.Int32
	received atomic.Int64
	dropped  atomic.Int64
	sent     atomic.Int64

	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

func (b *base) init(name string, sink Sink, logger *zap.Logger) {
	b.name = name
	b.sink = sink
	b.logger = logger.With(zap.String("channel", name))
	b.done = make(chan struct{})
}

func (b *base) setState(s State) { b.state.Store(int32(s)) }

func (b *base) currentState() State { return State(b.state.Load()) }

// Health returns the channel's current health.
func (b *base) Health() Health {
	b.errMu.Lock()
	err := b.err
	b.errMu.Unlock()
	return Health{
		State:    b.currentState(),
		Received: b.received.Load(),
		Dropped:  b.dropped.Load(),
		Sent:     b.sent.Load(),
		Err:      err,
	}
}

// Done is closed once the receive goroutine has exited, or on Close if the
// channel was never dialed.
func (b *base) Done() <-chan struct{} { return b.done }

func (b *base) markDone() { b.doneOnce.Do(func() { close(b.done) }) }

func (b *base) isClosing() bool { return b.closing.Load() }

// bind publishes conn for interrupt. Called from Dial with mu held.
func (b *base) bind(conn net.Conn) { b.sock.Store(&conn) }

// interrupt sets a past deadline on the bound socket, failing any blocked
// read or write immediately without releasing the socket.
func (b *base) interrupt() {
	if p := b.sock.Load(); p != nil {
		_ = (*p).SetDeadline(time.Now())
	}
}

// beginClose marks the channel as closing and interrupts pending I/O.
//
// Postcondition: Returns false if Close was already called.
func (b *base) beginClose() bool {
	if !b.closing.CompareAndSwap(false, true) {
		return false
	}
	b.interrupt()
	return true
}

// deliver hands p to the sink.
func (b *base) deliver(p protocol.Packet) {
	b.received.Add(1)
	b.logger.Debug("[S -> C]", zap.Stringer("packet", p))
	if !b.sink.Push(p) {
		b.logger.Debug("receive queue closed, packet discarded", zap.Stringer("packet", p))
	}
}

// stop records why the receive loop ended. A loop ended by Close is a clean
// shutdown; anything else leaves the channel dead for the rest of the session.
func (b *base) stop(err error) {
	if b.isClosing() {
		b.setState(StateClosed)
		b.logger.Debug("receive loop stopped")
		return
	}
	b.errMu.Lock()
	b.err = err
	b.errMu.Unlock()

	b.setState(StateDead)
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		b.logger.Error("receive loop terminated by decode error", zap.Error(err))
		return
	}
	b.logger.Error("receive loop terminated", zap.Error(err))
}

var (
	_ Channel = (*Reliable)(nil)
	_ Channel = (*Unreliable)(nil)
)

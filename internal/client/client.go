// Package client assembles the network core of the arrow game client: the
// receive queue, both transport channels and the session, driven by a fixed
// rate tick loop.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/arrowgame/internal/config"
	"github.com/cory-johannsen/arrowgame/internal/input"
	"github.com/cory-johannsen/arrowgame/internal/protocol"
	"github.com/cory-johannsen/arrowgame/internal/queue"
	"github.com/cory-johannsen/arrowgame/internal/session"
	"github.com/cory-johannsen/arrowgame/internal/transport"
)

var (
	// ErrAlreadyConnected is returned by Connect on a client that already joined.
	ErrAlreadyConnected = errors.New("client already connected")
	// ErrNotConnected is returned by Run before Connect has succeeded.
	ErrNotConnected = errors.New("client not connected")
	// ErrClosed is returned by Connect and Run after Close.
	ErrClosed = errors.New("client closed")
	// ErrAlreadyRunning is returned by Run while another Run is driving the tick loop.
	ErrAlreadyRunning = errors.New("client already running")
)

// Deps are the external collaborators of a Client.
type Deps struct {
	Actors session.ActorFactory
	Local  session.LocalPlayer
	// Input supplies local input; it is gated so that it only moves the player
	// while the room is Playing. A nil Input keeps the player still.
	Input       input.Provider
	Subscribers []session.Subscriber
	Logger      *zap.Logger
}

// Client owns one connection to the game server.
//
// Connect, Run and Close may be called from different goroutines. Step and
// the session it drives belong to whichever goroutine runs the tick loop.
type Client struct {
	logger       *zap.Logger
	tickInterval time.Duration

	inbox      *queue.Queue[protocol.Packet]
	reliable   *transport.Reliable
	unreliable *transport.Unreliable
	session    *session.Session
	input      input.Provider

	pendingHits atomic.Int32

	mu        sync.Mutex
	connected bool
	closed    bool
	running   bool
	stop      chan struct{}
	runners   sync.WaitGroup
}

// New builds an unconnected client for the server named in cfg.
//
// Precondition: cfg must be valid; deps.Actors, deps.Local and deps.Logger must be non-nil.
// Postcondition: Returns a Client with a fresh ClientID and an empty session.
func New(cfg config.Config, deps Deps) *Client {
	inbox := queue.New[protocol.Packet]()
	clientID := protocol.NewClientID()
	logger := deps.Logger.With(zap.Stringer("client_id", clientID))

	provider := deps.Input
	if provider == nil {
		provider = input.Static{}
	}

	c := &Client{
		logger:       logger,
		tickInterval: cfg.Client.TickInterval,
		inbox:        inbox,
		reliable:     transport.NewReliable(cfg.Server.ReliableAddr(), inbox, logger),
		unreliable:   transport.NewUnreliable(cfg.Server.UnreliableAddr(), clientID, inbox, logger),
		input:        input.Gated{Provider: provider},
		stop:         make(chan struct{}),
	}

	opts := make([]session.Option, 0, len(deps.Subscribers))
	for _, s := range deps.Subscribers {
		opts = append(opts, session.WithSubscriber(s))
	}
	c.session = session.New(session.Deps{
		Inbox:      inbox,
		Reliable:   c.reliable,
		Unreliable: c.unreliable,
		Actors:     deps.Actors,
		Local:      deps.Local,
		Logger:     logger,
	}, session.Vec2{X: cfg.Client.SpawnX, Y: cfg.Client.SpawnY}, opts...)
	return c
}

// ClientID returns the identifier carried in every datagram this client sends.
func (c *Client) ClientID() protocol.ClientID { return c.unreliable.ClientID() }

// Session returns the session driven by Step.
func (c *Client) Session() *session.Session { return c.session }

// Connect opens both channels and announces the client with a ClientPing on
// each. The unreliable ping lets the server learn the client's UDP address.
//
// Postcondition: On success both receive loops are running. On failure any
// channel that was opened is closed again and the error is returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.connected {
		c.logger.Warn("can't join twice")
		return ErrAlreadyConnected
	}

	if err := c.reliable.Dial(ctx); err != nil {
		return err
	}
	if err := c.unreliable.Dial(ctx); err != nil {
		return multierr.Append(err, c.reliable.Close())
	}
	if err := c.reliable.Send(protocol.ClientPing{}); err != nil {
		return multierr.Combine(
			fmt.Errorf("announcing on reliable channel: %w", err),
			c.reliable.Close(),
			c.unreliable.Close(),
		)
	}
	if err := c.unreliable.Send(protocol.ClientPing{}); err != nil {
		c.logger.Warn("unreliable ping not sent", zap.Error(err))
	}

	c.connected = true
	c.logger.Info("connected")
	return nil
}

// Step runs one tick: queued hit reports are sent, the local input is sampled
// and sent if it changed, and at most one received packet is dispatched.
//
// Postcondition: Returns the events emitted by the session during this tick.
func (c *Client) Step() []session.Event {
	for n := c.pendingHits.Swap(0); n > 0; n-- {
		if err := c.session.HitByHazard(); err != nil {
			c.logger.Warn("hit reports dropped", zap.Int32("count", n), zap.Error(err))
			break
		}
	}
	in := c.input.Next(c.session.Ticks()+1, c.session.RoomState())
	return c.session.Tick(in)
}

// ReportHit queues a ClientArrowHit for the next tick. It is safe to call from
// any goroutine.
func (c *Client) ReportHit() {
	c.pendingHits.Add(1)
}

// Run drives Step every tick interval until ctx is cancelled or Close is
// called. A watchdog logs when either channel's receive loop dies; the session
// keeps running on whatever remains.
//
// Precondition: Connect must have succeeded and no other Run is active.
// Postcondition: Returns nil on cancellation or Close.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.connected:
		c.mu.Unlock()
		return ErrNotConnected
	case c.running:
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.runners.Add(1)
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		c.runners.Done()
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(c.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-c.stop:
				return nil
			case <-ticker.C:
				c.Step()
			}
		}
	})
	g.Go(func() error {
		c.watch(ctx)
		return nil
	})
	return g.Wait()
}

func (c *Client) watch(ctx context.Context) {
	reliable, unreliable := c.reliable.Done(), c.unreliable.Done()
	for reliable != nil || unreliable != nil {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-reliable:
			reliable = nil
			c.reportDeath("reliable", c.reliable.Health())
		case <-unreliable:
			unreliable = nil
			c.reportDeath("unreliable", c.unreliable.Health())
		}
	}
}

func (c *Client) reportDeath(name string, h transport.Health) {
	if h.State != transport.StateDead {
		return
	}
	c.logger.Error("channel receive loop died, session continues degraded",
		zap.String("channel", name),
		zap.Int64("received", h.Received),
		zap.Int64("dropped", h.Dropped),
		zap.Error(h.Err),
	)
}

// Health reports the state of both channels and the receive queue.
type Health struct {
	Reliable   transport.Health
	Unreliable transport.Health
	Queued     int
	Discarded  int64
}

// Health returns a point-in-time view of the client's channels.
func (c *Client) Health() Health {
	return Health{
		Reliable:   c.reliable.Health(),
		Unreliable: c.unreliable.Health(),
		Queued:     c.inbox.Len(),
		Discarded:  c.inbox.Discarded(),
	}
}

// Close stops the tick loop, closes both channels (joining their receive
// loops), discards queued packets and resets the session. Close is idempotent.
// The channels are closed before the tick loop is joined so that a Step
// blocked in a send is released.
//
// Postcondition: No client goroutine is running and the session is back in
// its initial state.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	c.mu.Unlock()

	err := multierr.Combine(c.reliable.Close(), c.unreliable.Close())
	c.runners.Wait()
	c.inbox.Close()
	if n := c.inbox.Drain(); n > 0 {
		c.logger.Debug("discarded undispatched packets", zap.Int("count", n))
	}
	c.session.Reset()
	c.logger.Info("disconnected")
	return err
}

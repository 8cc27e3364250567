package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
)

// MaxDatagramSize is the receive buffer size for one datagram.
const MaxDatagramSize = 1500

// Unreliable is the connectionless, loss-tolerant channel. Every datagram is
// self-contained and carries the session ClientID. A send is "the latest
// value": there is no acknowledgment, retransmission or ordering.
type Unreliable struct {
	base

	addr     string
	clientID protocol.ClientID
	conn     net.Conn
}

// NewUnreliable creates an undialed unreliable channel to addr that tags every
// outbound datagram with clientID.
//
// Precondition: addr must be a "host:port" string; sink and logger must be non-nil.
func NewUnreliable(addr string, clientID protocol.ClientID, sink Sink, logger *zap.Logger) *Unreliable {
	c := &Unreliable{addr: addr, clientID: clientID}
	c.init("unreliable", sink, logger)
	return c
}

// ClientID returns the identifier embedded in outbound datagrams.
func (c *Unreliable) ClientID() protocol.ClientID { return c.clientID }

// Dial binds the destination address and starts the receive goroutine. No
// handshake takes place.
//
// Postcondition: The channel is open, or an error is returned and the channel stays idle.
func (c *Unreliable) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() || c.currentState() != StateIdle {
		return ErrAlreadyConnected
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", c.addr)
	if err != nil {
		return fmt.Errorf("dialing unreliable channel %s: %w", c.addr, err)
	}
	c.conn = conn
	c.bind(conn)
	c.setState(StateOpen)

	c.logger.Info("unreliable channel bound",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.String("local_addr", conn.LocalAddr().String()),
		zap.Stringer("client_id", c.clientID),
	)

	c.wg.Add(1)
	go c.receive(conn)
	return nil
}

func (c *Unreliable) receive(conn net.Conn) {
	defer c.markDone()
	defer c.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			// ICMP port-unreachable surfaces as ECONNREFUSED on a connected UDP
			// socket; that is datagram loss, not a dead channel.
			if errors.Is(err, syscall.ECONNREFUSED) && !c.isClosing() {
				c.dropped.Add(1)
				c.logger.Debug("datagram refused by peer", zap.Error(err))
				continue
			}
			c.stop(err)
			return
		}

		d, err := protocol.DecodeDatagram(buf[:n])
		if err != nil {
			c.dropped.Add(1)
			c.logger.Debug("dropping malformed datagram",
				zap.Int("size", n),
				zap.Error(err),
			)
			continue
		}
		c.deliver(d.Packet)
	}
}

// Send writes p as one datagram. Loss is silent.
//
// Postcondition: Returns ErrNotConnected if the channel is not open, or the write error.
func (c *Unreliable) Send(p protocol.Packet) error {
	b, err := protocol.EncodeDatagram(protocol.Datagram{ClientID: c.clientID, Packet: p})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() || c.currentState() != StateOpen {
		return ErrNotConnected
	}
	if _, err := c.conn.Write(b); err != nil {
		return fmt.Errorf("writing %s datagram: %w", p.Kind(), err)
	}
	c.sent.Add(1)
	c.logger.Debug("[C -> S]", zap.Stringer("packet", p))
	return nil
}

// Close stops the receive goroutine, waits for it to exit, then releases the
// socket. Close is idempotent.
//
// Postcondition: The receive goroutine has exited and the socket is released.
func (c *Unreliable) Close() error {
	if !c.beginClose() {
		return nil
	}
	// Dial may still hold mu and bind the socket after beginClose; taking mu
	// orders this read after it. A stalled Send has already been interrupted.
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.setState(StateClosed)
		c.markDone()
		return nil
	}

	c.interrupt()
	c.wg.Wait()

	c.setState(StateClosed)
	if err := conn.Close(); err != nil {
		return fmt.Errorf("closing unreliable channel: %w", err)
	}
	c.logger.Info("unreliable channel closed")
	return nil
}

package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
)

// Reliable is the ordered, connection-oriented channel. Packets are written
// as tag+payload with no length prefix and flushed one at a time.
type Reliable struct {
	base

	addr string
	conn net.Conn
	w    *bufio.Writer
}

// NewReliable creates an undialed reliable channel to addr.
//
// Precondition: addr must be a "host:port" string; sink and logger must be non-nil.
func NewReliable(addr string, sink Sink, logger *zap.Logger) *Reliable {
	c := &Reliable{addr: addr}
	c.init("reliable", sink, logger)
	return c
}

// Dial connects to the server and starts the receive goroutine.
//
// Postcondition: The channel is open, or an error is returned and the channel stays idle.
func (c *Reliable) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() || c.currentState() != StateIdle {
		return ErrAlreadyConnected
	}

	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dialing reliable channel %s: %w", c.addr, err)
	}
	c.conn = conn
	c.bind(conn)
	c.w = bufio.NewWriter(conn)
	c.setState(StateOpen)

	c.logger.Info("reliable channel connected",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.Duration("elapsed", time.Since(start)),
	)

	c.wg.Add(1)
	go c.receive(bufio.NewReaderSize(conn, 4096))
	return nil
}

func (c *Reliable) receive(r *bufio.Reader) {
	defer c.markDone()
	defer c.wg.Done()

	for {
		p, err := protocol.ReadPacket(r)
		if err != nil {
			c.stop(err)
			return
		}
		c.deliver(p)
	}
}

// Send writes p to the stream and flushes it. Send blocks until the bytes are
// handed to the socket.
//
// Postcondition: Returns ErrNotConnected if the channel is not open, or the write error.
func (c *Reliable) Send(p protocol.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() || c.currentState() != StateOpen {
		return ErrNotConnected
	}
	if err := protocol.WritePacket(c.w, p); err != nil {
		return fmt.Errorf("writing %s: %w", p.Kind(), err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", p.Kind(), err)
	}
	c.sent.Add(1)
	c.logger.Debug("[C -> S]", zap.Stringer("packet", p))
	return nil
}

// Close stops the receive goroutine, waits for it to exit, then closes the
// connection. Close is idempotent.
//
// Postcondition: The receive goroutine has exited and the socket is released.
func (c *Reliable) Close() error {
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
		return fmt.Errorf("closing reliable channel: %w", err)
	}
	c.logger.Info("reliable channel closed")
	return nil
}

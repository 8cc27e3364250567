package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
	"github.com/cory-johannsen/arrowgame/internal/queue"
	"github.com/cory-johannsen/arrowgame/internal/testutil"
)

const waitFor = 2 * time.Second

func popWithin(t *testing.T, q *queue.Queue[protocol.Packet], timeout time.Duration) protocol.Packet {
	t.Helper()
	var got protocol.Packet
	require.Eventually(t, func() bool {
		p, ok := q.TryPop()
		got = p
		return ok
	}, timeout, 5*time.Millisecond)
	return got
}

func dialReliable(t *testing.T, srv *testutil.FakeServer) (*Reliable, *queue.Queue[protocol.Packet]) {
	t.Helper()
	q := queue.New[protocol.Packet]()
	c := NewReliable(srv.ReliableAddr(), q, zaptest.NewLogger(t))
	require.NoError(t, c.Dial(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	srv.AwaitReliable(waitFor)
	return c, q
}

func TestReliable_SendAndReceive(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	c, q := dialReliable(t, srv)

	require.NoError(t, c.Send(protocol.ClientPing{}))
	assert.Equal(t, protocol.ClientPing{}, srv.ExpectReliable(waitFor))

	require.NoError(t, c.Send(protocol.ClientArrowHit{PlayerID: 4}))
	assert.Equal(t, protocol.ClientArrowHit{PlayerID: 4}, srv.ExpectReliable(waitFor))

	srv.SendReliable(
		protocol.ServerAssignPlayerID{PlayerID: 4},
		protocol.ServerRoomJoin{PlayerID: 9},
	)
	assert.Equal(t, protocol.ServerAssignPlayerID{PlayerID: 4}, popWithin(t, q, waitFor))
	assert.Equal(t, protocol.ServerRoomJoin{PlayerID: 9}, popWithin(t, q, waitFor))

	h := c.Health()
	assert.True(t, h.Alive())
	assert.Equal(t, int64(2), h.Sent)
	assert.Equal(t, int64(2), h.Received)
}

func TestReliable_SendBeforeDial(t *testing.T) {
	c := NewReliable("127.0.0.1:1", queue.New[protocol.Packet](), zaptest.NewLogger(t))
	assert.ErrorIs(t, c.Send(protocol.ClientPing{}), ErrNotConnected)
	assert.Equal(t, StateIdle, c.Health().State)
}

func TestReliable_DialTwice(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	c, _ := dialReliable(t, srv)
	assert.ErrorIs(t, c.Dial(context.Background()), ErrAlreadyConnected)
}

func TestReliable_DialFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := NewReliable(addr, queue.New[protocol.Packet](), zaptest.NewLogger(t))
	err = c.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dialing reliable channel")
	assert.Equal(t, StateIdle, c.Health().State)
}

func TestReliable_DecodeErrorKillsReceiveLoop(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	c, q := dialReliable(t, srv)

	srv.SendReliableRaw([]byte{0x7f})

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("receive loop did not exit on decode error")
	}

	h := c.Health()
	assert.Equal(t, StateDead, h.State)
	assert.False(t, h.Alive())
	var de *protocol.DecodeError
	require.True(t, errors.As(h.Err, &de))
	assert.ErrorIs(t, h.Err, protocol.ErrUnknownKind)

	// Later packets are never read.
	srv.SendReliable(protocol.ServerRoomJoin{PlayerID: 1})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, q.Len())
	assert.ErrorIs(t, c.Send(protocol.ClientPing{}), ErrNotConnected)
}

func TestReliable_TruncatedPayloadKillsReceiveLoop(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	c, _ := dialReliable(t, srv)

	b, err := protocol.Encode(protocol.ServerRoomQuit{PlayerID: 3})
	require.NoError(t, err)
	srv.SendReliableRaw(b[:len(b)-1])
	srv.DropReliable()

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("receive loop did not exit")
	}
	assert.Equal(t, StateDead, c.Health().State)
	assert.ErrorIs(t, c.Health().Err, protocol.ErrTruncated)
}

func TestReliable_ServerHangupIsDead(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	c, _ := dialReliable(t, srv)

	srv.DropReliable()

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("receive loop did not exit on hangup")
	}
	assert.Equal(t, StateDead, c.Health().State)
	assert.ErrorIs(t, c.Health().Err, io.EOF)
}

func TestReliable_CloseJoinsReceiveLoop(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	c, _ := dialReliable(t, srv)

	require.NoError(t, c.Close())
	select {
	case <-c.Done():
	default:
		t.Fatal("Close returned before the receive loop exited")
	}

	h := c.Health()
	assert.Equal(t, StateClosed, h.State)
	assert.NoError(t, h.Err)
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(protocol.ClientPing{}), ErrNotConnected)
}

func TestReliable_CloseWithoutDial(t *testing.T) {
	c := NewReliable("127.0.0.1:1", queue.New[protocol.Packet](), zaptest.NewLogger(t))
	require.NoError(t, c.Close())
	<-c.Done()
	assert.Equal(t, StateClosed, c.Health().State)
	assert.ErrorIs(t, c.Dial(context.Background()), ErrAlreadyConnected)
}

// silentPeer accepts one connection and never reads from it.
func silentPeer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetReadBuffer(1024)
		}
		accepted <- conn
	}()
	t.Cleanup(func() {
		ln.Close()
		select {
		case conn := <-accepted:
			conn.Close()
		default:
		}
	})
	return ln.Addr().String()
}

func TestReliable_CloseInterruptsStalledSend(t *testing.T) {
	c := NewReliable(silentPeer(t), queue.New[protocol.Packet](), zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)))
	require.NoError(t, c.Dial(context.Background()))
	require.NoError(t, c.conn.(*net.TCPConn).SetWriteBuffer(1024))

	sendErr := make(chan error, 1)
	go func() {
		hit := protocol.ClientArrowHit{PlayerID: 1}
		for {
			if err := c.Send(hit); err != nil {
				sendErr <- err
				return
			}
		}
	}()

	// The sender is stuck in Write once the sent count stops moving.
	last := int64(-1)
	require.Eventually(t, func() bool {
		n := c.Health().Sent
		stalled := n > 0 && n == last
		last = n
		return stalled
	}, 10*time.Second, 100*time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Close blocked behind a stalled Send")
	}

	select {
	case err := <-sendErr:
		assert.Error(t, err)
	case <-time.After(waitFor):
		t.Fatal("stalled Send was not interrupted")
	}
	assert.Equal(t, StateClosed, c.Health().State)
	assert.NoError(t, c.Health().Err)
}

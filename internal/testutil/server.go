// Package testutil provides a scripted stand-in for the authoritative game
// server, used by transport and client integration tests.
package testutil

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cory-johannsen/arrowgame/internal/protocol"
)

// FakeServer listens on a loopback TCP port and a loopback UDP port, records
// what the client sends and lets the test push packets back.
type FakeServer struct {
	t   *testing.T
	tcp net.Listener
	udp net.PacketConn

	mu      sync.Mutex
	conn    net.Conn
	udpPeer net.Addr

	accepted   chan struct{}
	peerKnown  chan struct{}
	peerOnce   sync.Once
	reliableIn chan protocol.Packet
	datagrams  chan protocol.Datagram
	quit       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// NewFakeServer starts listening on random loopback ports. The server is
// closed automatically when the test ends.
//
// Postcondition: Returns a listening FakeServer or fails the test.
func NewFakeServer(t *testing.T) *FakeServer {
	t.Helper()

	tcp, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening tcp: %v", err)
	}
	udp, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		tcp.Close()
		t.Fatalf("listening udp: %v", err)
	}

	s := &FakeServer{
		t:          t,
		tcp:        tcp,
		udp:        udp,
		accepted:   make(chan struct{}),
		peerKnown:  make(chan struct{}),
		reliableIn: make(chan protocol.Packet, 64),
		datagrams:  make(chan protocol.Datagram, 64),
		quit:       make(chan struct{}),
	}
	s.wg.Add(2)
	go s.acceptOne()
	go s.readDatagrams()

	t.Cleanup(s.Close)
	return s
}

func (s *FakeServer) acceptOne() {
	defer s.wg.Done()

	conn, err := s.tcp.Accept()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	close(s.accepted)

	r := bufio.NewReader(conn)
	for {
		p, err := protocol.ReadPacket(r)
		if err != nil {
			return
		}
		select {
		case s.reliableIn <- p:
		case <-s.quit:
			return
		}
	}
}

func (s *FakeServer) readDatagrams() {
	defer s.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, addr, err := s.udp.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		s.mu.Lock()
		s.udpPeer = addr
		s.mu.Unlock()
		s.peerOnce.Do(func() { close(s.peerKnown) })

		d, err := protocol.DecodeDatagram(buf[:n])
		if err != nil {
			continue
		}
		select {
		case s.datagrams <- d:
		case <-s.quit:
			return
		}
	}
}

// Host returns the loopback host both listeners are bound to.
func (s *FakeServer) Host() string { return "127.0.0.1" }

// ReliablePort returns the TCP port.
func (s *FakeServer) ReliablePort() int { return s.tcp.Addr().(*net.TCPAddr).Port }

// UnreliablePort returns the UDP port.
func (s *FakeServer) UnreliablePort() int { return s.udp.LocalAddr().(*net.UDPAddr).Port }

// ReliableAddr returns the TCP "host:port" address.
func (s *FakeServer) ReliableAddr() string {
	return net.JoinHostPort(s.Host(), strconv.Itoa(s.ReliablePort()))
}

// UnreliableAddr returns the UDP "host:port" address.
func (s *FakeServer) UnreliableAddr() string {
	return net.JoinHostPort(s.Host(), strconv.Itoa(s.UnreliablePort()))
}

// AwaitReliable blocks until the client has connected over TCP.
func (s *FakeServer) AwaitReliable(timeout time.Duration) {
	s.t.Helper()
	select {
	case <-s.accepted:
	case <-time.After(timeout):
		s.t.Fatalf("client did not connect within %s", timeout)
	}
}

// AwaitUnreliablePeer blocks until a datagram has revealed the client's UDP address.
func (s *FakeServer) AwaitUnreliablePeer(timeout time.Duration) {
	s.t.Helper()
	select {
	case <-s.peerKnown:
	case <-time.After(timeout):
		s.t.Fatalf("no datagram from client within %s", timeout)
	}
}

// SendReliable writes packets to the client over TCP.
func (s *FakeServer) SendReliable(packets ...protocol.Packet) {
	s.t.Helper()
	for _, p := range packets {
		b, err := protocol.Encode(p)
		if err != nil {
			s.t.Fatalf("encoding %s: %v", p, err)
		}
		s.SendReliableRaw(b)
	}
}

// SendReliableRaw writes raw bytes to the client over TCP.
func (s *FakeServer) SendReliableRaw(b []byte) {
	s.t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.t.Fatal("no reliable client connected")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(b); err != nil {
		s.t.Fatalf("writing to client: %v", err)
	}
}

// SendDatagram writes p to the client as a datagram tagged with clientID.
func (s *FakeServer) SendDatagram(clientID protocol.ClientID, p protocol.Packet) {
	s.t.Helper()
	b, err := protocol.EncodeDatagram(protocol.Datagram{ClientID: clientID, Packet: p})
	if err != nil {
		s.t.Fatalf("encoding %s: %v", p, err)
	}
	s.SendDatagramRaw(b)
}

// SendDatagramRaw writes raw bytes to the client's UDP address.
func (s *FakeServer) SendDatagramRaw(b []byte) {
	s.t.Helper()
	s.mu.Lock()
	peer := s.udpPeer
	s.mu.Unlock()
	if peer == nil {
		s.t.Fatal("client UDP address unknown")
	}
	if _, err := s.udp.WriteTo(b, peer); err != nil {
		s.t.Fatalf("writing datagram: %v", err)
	}
}

// ExpectReliable returns the next packet the client sent over TCP.
func (s *FakeServer) ExpectReliable(timeout time.Duration) protocol.Packet {
	s.t.Helper()
	select {
	case p := <-s.reliableIn:
		return p
	case <-time.After(timeout):
		s.t.Fatalf("no reliable packet within %s", timeout)
		return nil
	}
}

// ExpectDatagram returns the next datagram the client sent over UDP.
func (s *FakeServer) ExpectDatagram(timeout time.Duration) protocol.Datagram {
	s.t.Helper()
	select {
	case d := <-s.datagrams:
		return d
	case <-time.After(timeout):
		s.t.Fatalf("no datagram within %s", timeout)
		return protocol.Datagram{}
	}
}

// ExpectNoDatagram fails the test if the client sends a datagram within wait.
func (s *FakeServer) ExpectNoDatagram(wait time.Duration) {
	s.t.Helper()
	select {
	case d := <-s.datagrams:
		s.t.Fatalf("unexpected datagram %s", d.Packet)
	case <-time.After(wait):
	}
}

// DropReliable closes the server side of the TCP connection.
func (s *FakeServer) DropReliable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

// Close shuts both listeners and waits for the server goroutines.
// Close is idempotent.
func (s *FakeServer) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.tcp.Close()
		s.udp.Close()
		s.DropReliable()
		s.wg.Wait()
	})
}

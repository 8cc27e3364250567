package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxStatusEntries bounds the player count accepted in a ServerRoomStatus.
const MaxStatusEntries = 1024

// ClientIDSize is the wire size of a ClientID.
const ClientIDSize = 16

var (
	// ErrUnknownKind is returned when a tag does not name a packet kind.
	ErrUnknownKind = errors.New("unknown packet kind")
	// ErrTruncated is returned when the payload ends before it is complete.
	ErrTruncated = errors.New("truncated payload")
	// ErrMalformed is returned when a payload is complete but invalid.
	ErrMalformed = errors.New("malformed payload")
)

// DecodeError reports a payload that could not be decoded. Decode errors are
// fatal for the byte source they came from.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode returns the tag followed by the payload of p.
//
// Precondition: p must be non-nil.
// Postcondition: Returns the wire bytes, or an error if p holds invalid values.
func Encode(p Packet) ([]byte, error) {
	return appendPacket(nil, p)
}

// WritePacket encodes p and writes it to w in a single Write call.
func WritePacket(w io.Writer, p Packet) error {
	b, err := Encode(p)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// EncodeDatagram returns the tag, the 16-byte ClientID and the payload of d.Packet.
func EncodeDatagram(d Datagram) ([]byte, error) {
	if d.Packet == nil {
		return nil, errors.New("encoding datagram: nil packet")
	}
	b := make([]byte, 0, 1+ClientIDSize+16)
	b = append(b, byte(d.Packet.Kind()))
	b = append(b, d.ClientID[:]...)
	return appendPayload(b, d.Packet)
}

func appendPacket(b []byte, p Packet) ([]byte, error) {
	if p == nil {
		return nil, errors.New("encoding packet: nil packet")
	}
	b = append(b, byte(p.Kind()))
	return appendPayload(b, p)
}

func appendPayload(b []byte, p Packet) ([]byte, error) {
	switch p := p.(type) {
	case ClientPing:
		return b, nil
	case ClientArrowHit:
		return appendInt32(b, int32(p.PlayerID)), nil
	case PlayerInput:
		b = appendInt32(b, int32(p.PlayerID))
		return appendFloat32(b, p.State.Horizontal), nil
	case ServerAssignPlayerID:
		return appendInt32(b, int32(p.PlayerID)), nil
	case ServerRoomJoin:
		return appendInt32(b, int32(p.PlayerID)), nil
	case ServerRoomQuit:
		return appendInt32(b, int32(p.PlayerID)), nil
	case ServerRoomStatus:
		if !p.State.Valid() {
			return nil, fmt.Errorf("encoding %s: invalid room state %d", p.Kind(), byte(p.State))
		}
		if len(p.Players) > MaxStatusEntries {
			return nil, fmt.Errorf("encoding %s: %d entries exceeds %d", p.Kind(), len(p.Players), MaxStatusEntries)
		}
		b = append(b, byte(p.State))
		b = appendInt32(b, int32(len(p.Players)))
		seen := make(map[PlayerID]struct{}, len(p.Players))
		for _, e := range p.Players {
			if _, dup := seen[e.PlayerID]; dup {
				return nil, fmt.Errorf("encoding %s: duplicate player %d", p.Kind(), e.PlayerID)
			}
			seen[e.PlayerID] = struct{}{}
			b = appendInt32(b, int32(e.PlayerID))
			b = appendFloat32(b, e.Health)
		}
		return b, nil
	case ServerArrowSpawn:
		b = appendFloat32(b, p.X)
		return appendFloat32(b, p.Speed), nil
	case ServerPong:
		return appendInt32(b, int32(p.PlayerID)), nil
	default:
		return nil, fmt.Errorf("encoding packet: unsupported type %T", p)
	}
}

func appendInt32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func appendFloat32(b []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
}

// ReadPacket reads one tagged packet from r.
//
// Postcondition: Returns the packet; io.EOF if r ended cleanly before a tag;
// a *DecodeError for an unknown tag or incomplete payload; or the read error.
func ReadPacket(r io.Reader) (Packet, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}
	return Decode(Kind(tag[0]), r)
}

// Decode reads the payload of a packet of the given kind from r, consuming
// exactly the payload bytes.
//
// Postcondition: Returns the packet, or a *DecodeError wrapping ErrUnknownKind,
// ErrTruncated or ErrMalformed. Other read errors are returned wrapped as-is.
func Decode(kind Kind, r io.Reader) (Packet, error) {
	d := decoder{r: r}
	p, err := d.payload(kind)
	if err != nil {
		if errors.Is(err, ErrUnknownKind) || errors.Is(err, ErrTruncated) || errors.Is(err, ErrMalformed) {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return nil, fmt.Errorf("decoding %s: %w", kind, err)
	}
	return p, nil
}

// DecodeDatagram decodes a complete unreliable-channel datagram.
//
// Postcondition: Returns the datagram, or a *DecodeError when the datagram is
// short, carries an unknown tag, or has bytes left over after the payload.
func DecodeDatagram(b []byte) (Datagram, error) {
	if len(b) < 1 {
		return Datagram{}, &DecodeError{Err: fmt.Errorf("%w: empty datagram", ErrTruncated)}
	}
	kind := Kind(b[0])
	if !kind.Valid() {
		return Datagram{}, &DecodeError{Kind: kind, Err: ErrUnknownKind}
	}
	if len(b) < 1+ClientIDSize {
		return Datagram{}, &DecodeError{Kind: kind, Err: ErrTruncated}
	}
	var d Datagram
	copy(d.ClientID[:], b[1:1+ClientIDSize])

	r := bytes.NewReader(b[1+ClientIDSize:])
	p, err := Decode(kind, r)
	if err != nil {
		return Datagram{}, err
	}
	if r.Len() > 0 {
		return Datagram{}, &DecodeError{Kind: kind, Err: fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Len())}
	}
	d.Packet = p
	return d, nil
}

type decoder struct {
	r   io.Reader
	buf [4]byte
}

func (d *decoder) read(n int) ([]byte, error) {
	if _, err := io.ReadFull(d.r, d.buf[:n]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	return d.buf[:n], nil
}

func (d *decoder) readInt32() (int32, error) {
	b, err := d.read(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (d *decoder) playerID() (PlayerID, error) {
	v, err := d.readInt32()
	return PlayerID(v), err
}

func (d *decoder) readFloat32() (float32, error) {
	b, err := d.read(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) payload(kind Kind) (Packet, error) {
	switch kind {
	case KindClientPing:
		return ClientPing{}, nil
	case KindClientArrowHit:
		id, err := d.playerID()
		return ClientArrowHit{PlayerID: id}, err
	case KindPlayerInput:
		id, err := d.playerID()
		if err != nil {
			return nil, err
		}
		h, err := d.readFloat32()
		return PlayerInput{PlayerID: id, State: InputState{Horizontal: h}}, err
	case KindServerAssignPlayerID:
		id, err := d.playerID()
		return ServerAssignPlayerID{PlayerID: id}, err
	case KindServerRoomJoin:
		id, err := d.playerID()
		return ServerRoomJoin{PlayerID: id}, err
	case KindServerRoomQuit:
		id, err := d.playerID()
		return ServerRoomQuit{PlayerID: id}, err
	case KindServerRoomStatus:
		return d.roomStatus()
	case KindServerArrowSpawn:
		x, err := d.readFloat32()
		if err != nil {
			return nil, err
		}
		speed, err := d.readFloat32()
		return ServerArrowSpawn{X: x, Speed: speed}, err
	case KindServerPong:
		id, err := d.playerID()
		return ServerPong{PlayerID: id}, err
	default:
		return nil, ErrUnknownKind
	}
}

func (d *decoder) roomStatus() (Packet, error) {
	s, err := d.readByte()
	if err != nil {
		return nil, err
	}
	state := RoomState(s)
	if !state.Valid() {
		return nil, fmt.Errorf("%w: room state %d", ErrMalformed, s)
	}
	count, err := d.readInt32()
	if err != nil {
		return nil, err
	}
	if count < 0 || count > MaxStatusEntries {
		return nil, fmt.Errorf("%w: player count %d", ErrMalformed, count)
	}

	status := ServerRoomStatus{State: state}
	if count == 0 {
		return status, nil
	}
	status.Players = make([]HealthEntry, 0, count)
	seen := make(map[PlayerID]struct{}, count)
	for range count {
		id, err := d.playerID()
		if err != nil {
			return nil, err
		}
		hp, err := d.readFloat32()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate player %d", ErrMalformed, id)
		}
		seen[id] = struct{}{}
		status.Players = append(status.Players, HealthEntry{PlayerID: id, Health: hp})
	}
	return status, nil
}

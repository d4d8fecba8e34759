package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"sync"
)

// maxFrameSize bounds a single uncompressed frame. Anything larger is
// treated as a protocol violation.
const maxFrameSize = 2 * 1024 * 1024

// Conn frames and decodes packets over a TCP connection. A Conn reads the
// packets of exactly one direction (the proxy's listener reads serverbound
// traffic, its backend dialer reads clientbound traffic) and writes the
// other.
type Conn struct {
	conn    net.Conn
	r       *bufio.Reader
	readDir Direction

	state   State
	version int32
	caps    Capabilities

	wmu sync.Mutex
}

// NewServerSide wraps an accepted inbound connection. It starts in the
// handshake state and reads serverbound packets.
func NewServerSide(conn net.Conn) *Conn {
	return &Conn{
		conn:    conn,
		r:       bufio.NewReader(conn),
		readDir: Serverbound,
		state:   StateHandshake,
	}
}

// NewClientSide wraps an outbound connection to a backend server. It reads
// clientbound packets; the caller drives the handshake.
func NewClientSide(conn net.Conn, version int32) *Conn {
	return &Conn{
		conn:    conn,
		r:       bufio.NewReader(conn),
		readDir: Clientbound,
		state:   StateHandshake,
		version: version,
		caps:    Lookup(version),
	}
}

func (c *Conn) SetState(s State) { c.state = s }

func (c *Conn) State() State { return c.state }

func (c *Conn) Version() int32 { return c.version }

func (c *Conn) Caps() Capabilities { return c.caps }

// SetVersion records the negotiated protocol version and resolves the
// connection's capability set. Called once, at the handshake.
func (c *Conn) SetVersion(v int32) {
	c.version = v
	c.caps = Lookup(v)
}

func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Conn) Close() error { return c.conn.Close() }

// ReadPacket blocks until the next frame arrives and decodes it if it is a
// variant the proxy understands, returning a Raw frame otherwise.
func (c *Conn) ReadPacket() (Packet, error) {
	length, err := readVarInt(c.r)
	if err != nil {
		return nil, err
	}
	if length <= 0 || length > maxFrameSize {
		return nil, fmt.Errorf("invalid frame length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, err
	}

	r := bytes.NewReader(payload)
	id, err := readVarInt(r)
	if err != nil {
		return nil, err
	}

	pkt, err := c.decode(id, r)
	if err != nil {
		return nil, fmt.Errorf("decoding packet 0x%02x in state %d: %w", id, c.state, err)
	}
	return pkt, nil
}

func (c *Conn) decode(id int32, r *bytes.Reader) (Packet, error) {
	switch c.state {
	case StateHandshake:
		if c.readDir == Serverbound && id == 0x00 {
			return decodeHandshake(r)
		}
	case StateStatus:
		if c.readDir == Serverbound {
			switch id {
			case 0x00:
				return &StatusRequest{}, nil
			case 0x01:
				payload, err := readInt64(r)
				return &Ping{Payload: payload}, err
			}
		} else {
			switch id {
			case 0x00:
				json, err := readString(r, maxFrameSize)
				return &StatusResponse{JSON: json}, err
			case 0x01:
				payload, err := readInt64(r)
				return &Pong{Payload: payload}, err
			}
		}
	case StateLogin:
		if c.readDir == Serverbound {
			if id == 0x00 {
				name, err := readString(r, 16)
				return &LoginStart{Username: name}, err
			}
		} else {
			switch id {
			case 0x00:
				reason, err := readString(r, 262144)
				return &LoginDisconnect{Reason: reason}, err
			case 0x01:
				return decodeEncryptionRequest(r)
			case 0x02:
				return c.decodeLoginSuccess(r)
			case 0x03:
				threshold, err := readVarInt(r)
				return &SetCompression{Threshold: threshold}, err
			}
		}
	case StatePlay:
		kind, ok := c.caps.playKind(c.readDir, id)
		if !ok {
			break
		}
		switch kind {
		case KindKeepAliveCB:
			keepAliveID, err := c.readKeepAliveID(r)
			return &KeepAlive{ID: keepAliveID}, err
		case KindKeepAliveSB:
			keepAliveID, err := c.readKeepAliveID(r)
			return &KeepAliveServerbound{ID: keepAliveID}, err
		case KindChat:
			return decodeChat(r, c.caps)
		case KindJoinGame:
			return decodeJoinGame(r, c.caps)
		case KindPlayerInfo:
			return decodePlayerInfo(r)
		case KindSpawnPlayer:
			return decodeSpawnPlayer(r, c.caps)
		case KindServerData:
			return decodeServerData(r)
		case KindPositionSB:
			return decodePositionServerbound(r, false)
		case KindPositionLookSB:
			return decodePositionServerbound(r, true)
		case KindDisconnect:
			reason, err := readString(r, 262144)
			return &Disconnect{Reason: reason}, err
		}
	}

	return &Raw{ID: id, Payload: remaining(r)}, nil
}

// Keepalive ids shrank from long to varint and back over protocol history;
// 1.8 used a varint, everything since 1.12.2 a long.
func (c *Conn) readKeepAliveID(r *bytes.Reader) (int64, error) {
	if c.caps.ModernBrandChannel {
		return readInt64(r)
	}
	v, err := readVarInt(r)
	return int64(v), err
}

func (c *Conn) writeKeepAliveID(w *bytes.Buffer, id int64) {
	if c.caps.ModernBrandChannel {
		writeInt64(w, id)
	} else {
		writeVarInt(w, int32(id))
	}
}

// WritePacket encodes and sends one packet. Safe for concurrent use.
func (c *Conn) WritePacket(pkt Packet) error {
	var payload bytes.Buffer

	id, err := c.encode(&payload, pkt)
	if err != nil {
		return err
	}

	var frame bytes.Buffer
	frame.Grow(payload.Len() + 2*maxVarIntBytes)
	writeVarInt(&frame, int32(varIntLen(id))+int32(payload.Len()))
	writeVarInt(&frame, id)
	frame.Write(payload.Bytes())

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.conn.Write(frame.Bytes())
	return err
}

func (c *Conn) encode(w *bytes.Buffer, pkt Packet) (int32, error) {
	switch p := pkt.(type) {
	case *Raw:
		w.Write(p.Payload)
		return p.ID, nil
	case *Handshake:
		writeVarInt(w, p.ProtocolVersion)
		writeString(w, p.ServerAddress)
		w.WriteByte(byte(p.ServerPort >> 8))
		w.WriteByte(byte(p.ServerPort))
		writeVarInt(w, p.NextState)
		return 0x00, nil
	case *StatusRequest:
		return 0x00, nil
	case *StatusResponse:
		writeString(w, p.JSON)
		return 0x00, nil
	case *Ping:
		writeInt64(w, p.Payload)
		return 0x01, nil
	case *Pong:
		writeInt64(w, p.Payload)
		return 0x01, nil
	case *LoginStart:
		writeString(w, p.Username)
		return 0x00, nil
	case *LoginDisconnect:
		writeString(w, p.Reason)
		return 0x00, nil
	case *EncryptionResponse:
		writeByteArray(w, p.SharedSecret)
		writeByteArray(w, p.VerifyToken)
		return 0x01, nil
	case *LoginSuccess:
		c.encodeLoginSuccess(w, p)
		return 0x02, nil
	}

	if c.state != StatePlay {
		return 0, fmt.Errorf("cannot send %s in state %d", pkt.Name(), c.state)
	}

	kind, ok := playKindOf(pkt)
	if !ok {
		return 0, fmt.Errorf("no play-state encoding for %s", pkt.Name())
	}
	id, ok := c.caps.playID(kind)
	if !ok {
		return 0, fmt.Errorf("packet %s does not exist at protocol %d", pkt.Name(), c.version)
	}

	switch p := pkt.(type) {
	case *KeepAlive:
		c.writeKeepAliveID(w, p.ID)
	case *KeepAliveServerbound:
		c.writeKeepAliveID(w, p.ID)
	case *Chat:
		encodeChat(w, p, c.caps)
	case *JoinGame:
		encodeJoinGame(w, p, c.caps)
	case *Respawn:
		encodeRespawn(w, p, c.caps)
	case *PlayerInfo:
		encodePlayerInfo(w, p)
	case *PositionClientbound:
		writeFloat64(w, p.X)
		writeFloat64(w, p.Y)
		writeFloat64(w, p.Z)
		writeFloat32(w, p.Yaw)
		writeFloat32(w, p.Pitch)
		w.WriteByte(p.Flags)
		if c.caps.ModernBrandChannel {
			writeVarInt(w, p.TeleportID)
		}
	case *PositionServerbound:
		encodePositionServerbound(w, p)
	case *MapChunk:
		encodeMapChunk(w, p, c.caps)
	case *UpdateTime:
		writeInt64(w, p.WorldAge)
		writeInt64(w, p.TimeOfDay)
	case *PluginMessage:
		writeString(w, p.Channel)
		w.Write(p.Data)
	case *SpawnPlayer:
		encodeSpawnPlayer(w, p, c.caps)
	case *Disconnect:
		writeString(w, p.Reason)
	case *ServerData:
		encodeServerData(w, p)
	default:
		return 0, fmt.Errorf("no encoding for %s", pkt.Name())
	}
	return id, nil
}

func playKindOf(pkt Packet) (Kind, bool) {
	switch p := pkt.(type) {
	case *KeepAlive:
		return KindKeepAliveCB, true
	case *KeepAliveServerbound:
		return KindKeepAliveSB, true
	case *Chat:
		return KindChat, true
	case *JoinGame:
		return KindJoinGame, true
	case *Respawn:
		return KindRespawn, true
	case *PlayerInfo:
		return KindPlayerInfo, true
	case *PositionClientbound:
		return KindPositionCB, true
	case *PositionServerbound:
		if p.HasLook {
			return KindPositionLookSB, true
		}
		return KindPositionSB, true
	case *MapChunk:
		return KindMapChunk, true
	case *UpdateTime:
		return KindUpdateTime, true
	case *PluginMessage:
		return KindPluginMessage, true
	case *SpawnPlayer:
		return KindSpawnPlayer, true
	case *Disconnect:
		return KindDisconnect, true
	case *ServerData:
		return KindServerData, true
	}
	return 0, false
}

func decodeEncryptionRequest(r *bytes.Reader) (Packet, error) {
	p := &EncryptionRequest{}
	var err error
	if p.ServerID, err = readString(r, 20); err != nil {
		return nil, err
	}
	if p.PublicKey, err = readByteArray(r); err != nil {
		return nil, err
	}
	if p.VerifyToken, err = readByteArray(r); err != nil {
		return nil, err
	}
	return p, nil
}

// Login success carried a dashed string UUID until 1.16 switched to the
// binary form.
func (c *Conn) decodeLoginSuccess(r *bytes.Reader) (Packet, error) {
	p := &LoginSuccess{}
	var err error
	if c.caps.WorldMetadata {
		if p.ID, err = readUUID(r); err != nil {
			return nil, err
		}
	} else {
		s, err := readString(r, 36)
		if err != nil {
			return nil, err
		}
		if p.ID, err = parseUUID(s); err != nil {
			return nil, err
		}
	}
	if p.Username, err = readString(r, 16); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Conn) encodeLoginSuccess(w *bytes.Buffer, p *LoginSuccess) {
	if c.caps.WorldMetadata {
		writeUUID(w, p.ID)
	} else {
		writeString(w, p.ID.String())
	}
	writeString(w, p.Username)
}

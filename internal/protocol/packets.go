package protocol

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// Raw is an undecoded frame. The relay forwards these verbatim.
type Raw struct {
	ID      int32
	Payload []byte
}

func (*Raw) Name() string { return "raw" }

// Handshake opens every connection and declares the next protocol state.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

func (*Handshake) Name() string { return "set_protocol" }

const (
	// NextState values carried by the handshake.
	NextStateStatus int32 = 1
	NextStateLogin  int32 = 2
)

// StatusRequest asks for the server list entry.
type StatusRequest struct{}

func (*StatusRequest) Name() string { return "status_request" }

// StatusResponse carries the server list JSON document.
type StatusResponse struct {
	JSON string
}

func (*StatusResponse) Name() string { return "server_info" }

// Ping and Pong are the server-list latency probes.
type Ping struct{ Payload int64 }

func (*Ping) Name() string { return "ping" }

type Pong struct{ Payload int64 }

func (*Pong) Name() string { return "pong" }

// LoginStart begins the login sequence with the player's claimed username.
type LoginStart struct {
	Username string
}

func (*LoginStart) Name() string { return "login_start" }

// EncryptionRequest is the backend's session challenge during an
// authenticated login.
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

func (*EncryptionRequest) Name() string { return "encryption_begin" }

// EncryptionResponse answers the session challenge.
type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

func (*EncryptionResponse) Name() string { return "encryption_response" }

// SetCompression announces a compression threshold. The codec does not
// implement compression, so receiving one is a hard error for the relay.
type SetCompression struct {
	Threshold int32
}

func (*SetCompression) Name() string { return "compress" }

// LoginSuccess completes the login state and carries the identity the server
// assigned to the connection.
type LoginSuccess struct {
	ID       uuid.UUID
	Username string
}

func (*LoginSuccess) Name() string { return "success" }

// LoginDisconnect terminates a connection still in the login state.
type LoginDisconnect struct {
	Reason string
}

func (*LoginDisconnect) Name() string { return "login_disconnect" }

// Disconnect terminates a play-state connection with a chat-component reason.
type Disconnect struct {
	Reason string
}

func (*Disconnect) Name() string { return "kick_disconnect" }

// KeepAlive is the clientbound liveness probe.
type KeepAlive struct {
	ID int64
}

func (*KeepAlive) Name() string { return "keep_alive" }

// KeepAliveServerbound answers a clientbound KeepAlive.
type KeepAliveServerbound struct {
	ID int64
}

func (*KeepAliveServerbound) Name() string { return "keep_alive" }

// Chat is a clientbound chat message. Position and Sender apply to
// versions without SystemChat; Overlay replaces them on versions with it.
type Chat struct {
	Message  string
	Position byte
	Sender   uuid.UUID
	Overlay  bool
}

func (*Chat) Name() string { return "chat" }

// JoinGame is the full login transition into a world.
type JoinGame struct {
	EntityID            int32
	Hardcore            bool
	GameMode            byte
	PreviousGameMode    int8
	WorldNames          []string
	DimensionCodec      []byte // raw NBT, WorldMetadata versions only
	Dimension           []byte // raw NBT, WorldMetadata versions only
	DimensionID         int32  // legacy versions only
	WorldName           string
	HashedSeed          int64
	Difficulty          byte // legacy versions only
	MaxPlayers          int32
	LevelType           string // legacy versions only
	ViewDistance        int32
	ReducedDebugInfo    bool
	EnableRespawnScreen bool
	IsDebug             bool
	IsFlat              bool
}

func (*JoinGame) Name() string { return "login" }

// Respawn is the world-change transition used for re-joins.
type Respawn struct {
	Dimension        []byte // raw NBT, WorldMetadata versions only
	DimensionID      int32  // legacy versions only
	WorldName        string
	HashedSeed       int64
	Difficulty       byte // legacy versions only
	GameMode         byte
	PreviousGameMode int8
	LevelType        string // legacy versions only
	IsDebug          bool
	IsFlat           bool
	CopyMetadata     bool
}

func (*Respawn) Name() string { return "respawn" }

// PlayerInfoAction values for the player list packet.
const (
	PlayerInfoAddPlayer int32 = iota
	PlayerInfoUpdateGameMode
	PlayerInfoUpdateLatency
	PlayerInfoUpdateDisplayName
	PlayerInfoRemovePlayer
)

// PlayerInfoEntry is one player list record. Which fields are meaningful
// depends on the enclosing packet's Action.
type PlayerInfoEntry struct {
	ID             uuid.UUID
	Name           string
	Properties     []Property
	GameMode       int32
	Ping           int32
	HasDisplayName bool
	DisplayName    string
}

// PlayerInfo is the tab-list update packet.
type PlayerInfo struct {
	Action  int32
	Entries []PlayerInfoEntry
}

func (*PlayerInfo) Name() string { return "player_info" }

// PositionClientbound re-asserts the player's position and look.
type PositionClientbound struct {
	X, Y, Z    float64
	Yaw, Pitch float32
	Flags      byte
	TeleportID int32 // modern versions only
}

func (*PositionClientbound) Name() string { return "position" }

// PositionServerbound is the client's own movement report.
type PositionServerbound struct {
	X, Y, Z    float64
	Yaw, Pitch float32 // only on the position+look variant
	HasLook    bool
	OnGround   bool
}

func (*PositionServerbound) Name() string { return "position" }

// MapChunk carries one fabricated limbo chunk column. The proxy only ever
// writes these; backend chunk data passes through as Raw.
type MapChunk struct {
	X, Z       int32
	FullChunk  bool
	BitMask    int32
	Heightmaps []byte // raw NBT, HeightmapChunks versions only
	Biomes     []int32
	Data       []byte
}

func (*MapChunk) Name() string { return "map_chunk" }

// UpdateTime sets the world age and time of day.
type UpdateTime struct {
	WorldAge  int64
	TimeOfDay int64
}

func (*UpdateTime) Name() string { return "update_time" }

// PluginMessage is a named-channel payload (used for the brand string).
type PluginMessage struct {
	Channel string
	Data    []byte
}

func (*PluginMessage) Name() string { return "custom_payload" }

// SpawnPlayer announces another player entity entering view.
type SpawnPlayer struct {
	EntityID   int32
	ID         uuid.UUID
	X, Y, Z    float64
	Yaw, Pitch byte
	Tail       []byte // metadata on legacy versions
}

func (*SpawnPlayer) Name() string { return "named_entity_spawn" }

// ServerData advertises server metadata (MOTD, icon) after login.
type ServerData struct {
	HasMOTD            bool
	MOTD               string
	HasIcon            bool
	Icon               string
	PreviewsChat       bool
	EnforcesSecureChat bool
}

func (*ServerData) Name() string { return "server_data" }

func decodeHandshake(r *bytes.Reader) (Packet, error) {
	p := &Handshake{}
	var err error
	if p.ProtocolVersion, err = readVarInt(r); err != nil {
		return nil, err
	}
	if p.ServerAddress, err = readString(r, 255); err != nil {
		return nil, err
	}
	if p.ServerPort, err = readUint16(r); err != nil {
		return nil, err
	}
	if p.NextState, err = readVarInt(r); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeJoinGame(r *bytes.Reader, caps Capabilities) (Packet, error) {
	p := &JoinGame{}
	var err error
	if p.EntityID, err = readInt32(r); err != nil {
		return nil, err
	}
	if caps.HardcoreFlag {
		if p.Hardcore, err = readBool(r); err != nil {
			return nil, err
		}
	}
	gm, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.GameMode = gm
	if !caps.HardcoreFlag {
		p.Hardcore = gm&0x8 != 0
		p.GameMode = gm &^ 0x8
	}

	if caps.WorldMetadata {
		prev, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		p.PreviousGameMode = int8(prev)
		count, err := readVarInt(r)
		if err != nil {
			return nil, err
		}
		for i := int32(0); i < count; i++ {
			name, err := readString(r, 255)
			if err != nil {
				return nil, err
			}
			p.WorldNames = append(p.WorldNames, name)
		}
		if p.DimensionCodec, err = captureNBT(r); err != nil {
			return nil, err
		}
		if p.Dimension, err = captureNBT(r); err != nil {
			return nil, err
		}
		if p.WorldName, err = readString(r, 255); err != nil {
			return nil, err
		}
		if p.HashedSeed, err = readInt64(r); err != nil {
			return nil, err
		}
		if p.MaxPlayers, err = readVarInt(r); err != nil {
			return nil, err
		}
		if p.ViewDistance, err = readVarInt(r); err != nil {
			return nil, err
		}
		if p.ReducedDebugInfo, err = readBool(r); err != nil {
			return nil, err
		}
		if p.EnableRespawnScreen, err = readBool(r); err != nil {
			return nil, err
		}
		if p.IsDebug, err = readBool(r); err != nil {
			return nil, err
		}
		if p.IsFlat, err = readBool(r); err != nil {
			return nil, err
		}
		return p, nil
	}

	dim, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.DimensionID = int32(int8(dim))
	if p.Difficulty, err = r.ReadByte(); err != nil {
		return nil, err
	}
	maxPlayers, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.MaxPlayers = int32(maxPlayers)
	if p.LevelType, err = readString(r, 16); err != nil {
		return nil, err
	}
	if p.ReducedDebugInfo, err = readBool(r); err != nil {
		return nil, err
	}
	return p, nil
}

func encodeJoinGame(w *bytes.Buffer, p *JoinGame, caps Capabilities) {
	writeInt32(w, p.EntityID)
	if caps.WorldMetadata {
		if caps.HardcoreFlag {
			writeBool(w, p.Hardcore)
			w.WriteByte(p.GameMode)
		} else {
			gm := p.GameMode
			if p.Hardcore {
				gm |= 0x8
			}
			w.WriteByte(gm)
		}
		w.WriteByte(byte(p.PreviousGameMode))
		writeVarInt(w, int32(len(p.WorldNames)))
		for _, name := range p.WorldNames {
			writeString(w, name)
		}
		w.Write(p.DimensionCodec)
		w.Write(p.Dimension)
		writeString(w, p.WorldName)
		writeInt64(w, p.HashedSeed)
		writeVarInt(w, p.MaxPlayers)
		writeVarInt(w, p.ViewDistance)
		writeBool(w, p.ReducedDebugInfo)
		writeBool(w, p.EnableRespawnScreen)
		writeBool(w, p.IsDebug)
		writeBool(w, p.IsFlat)
		return
	}

	gm := p.GameMode
	if p.Hardcore {
		gm |= 0x8
	}
	w.WriteByte(gm)
	w.WriteByte(byte(int8(p.DimensionID)))
	w.WriteByte(p.Difficulty)
	w.WriteByte(byte(p.MaxPlayers))
	writeString(w, p.LevelType)
	writeBool(w, p.ReducedDebugInfo)
}

func encodeRespawn(w *bytes.Buffer, p *Respawn, caps Capabilities) {
	if caps.WorldMetadata {
		w.Write(p.Dimension)
		writeString(w, p.WorldName)
		writeInt64(w, p.HashedSeed)
		w.WriteByte(p.GameMode)
		w.WriteByte(byte(p.PreviousGameMode))
		writeBool(w, p.IsDebug)
		writeBool(w, p.IsFlat)
		writeBool(w, p.CopyMetadata)
		return
	}
	writeInt32(w, p.DimensionID)
	w.WriteByte(p.Difficulty)
	w.WriteByte(p.GameMode)
	writeString(w, p.LevelType)
}

func decodePlayerInfo(r *bytes.Reader) (Packet, error) {
	p := &PlayerInfo{}
	var err error
	if p.Action, err = readVarInt(r); err != nil {
		return nil, err
	}
	count, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < count; i++ {
		var entry PlayerInfoEntry
		if entry.ID, err = readUUID(r); err != nil {
			return nil, err
		}
		switch p.Action {
		case PlayerInfoAddPlayer:
			if entry.Name, err = readString(r, 16); err != nil {
				return nil, err
			}
			propCount, err := readVarInt(r)
			if err != nil {
				return nil, err
			}
			for j := int32(0); j < propCount; j++ {
				var prop Property
				if prop.Name, err = readString(r, 64); err != nil {
					return nil, err
				}
				if prop.Value, err = readString(r, 32767); err != nil {
					return nil, err
				}
				signed, err := readBool(r)
				if err != nil {
					return nil, err
				}
				if signed {
					if prop.Signature, err = readString(r, 32767); err != nil {
						return nil, err
					}
				}
				entry.Properties = append(entry.Properties, prop)
			}
			if entry.GameMode, err = readVarInt(r); err != nil {
				return nil, err
			}
			if entry.Ping, err = readVarInt(r); err != nil {
				return nil, err
			}
			if entry.HasDisplayName, err = readBool(r); err != nil {
				return nil, err
			}
			if entry.HasDisplayName {
				if entry.DisplayName, err = readString(r, 32767); err != nil {
					return nil, err
				}
			}
		case PlayerInfoUpdateGameMode:
			if entry.GameMode, err = readVarInt(r); err != nil {
				return nil, err
			}
		case PlayerInfoUpdateLatency:
			if entry.Ping, err = readVarInt(r); err != nil {
				return nil, err
			}
		case PlayerInfoUpdateDisplayName:
			if entry.HasDisplayName, err = readBool(r); err != nil {
				return nil, err
			}
			if entry.HasDisplayName {
				if entry.DisplayName, err = readString(r, 32767); err != nil {
					return nil, err
				}
			}
		case PlayerInfoRemovePlayer:
			// UUID only.
		default:
			return nil, fmt.Errorf("unknown player_info action %d", p.Action)
		}
		p.Entries = append(p.Entries, entry)
	}
	return p, nil
}

func encodePlayerInfo(w *bytes.Buffer, p *PlayerInfo) {
	writeVarInt(w, p.Action)
	writeVarInt(w, int32(len(p.Entries)))
	for _, entry := range p.Entries {
		writeUUID(w, entry.ID)
		switch p.Action {
		case PlayerInfoAddPlayer:
			writeString(w, entry.Name)
			writeVarInt(w, int32(len(entry.Properties)))
			for _, prop := range entry.Properties {
				writeString(w, prop.Name)
				writeString(w, prop.Value)
				writeBool(w, prop.Signature != "")
				if prop.Signature != "" {
					writeString(w, prop.Signature)
				}
			}
			writeVarInt(w, entry.GameMode)
			writeVarInt(w, entry.Ping)
			writeBool(w, entry.HasDisplayName)
			if entry.HasDisplayName {
				writeString(w, entry.DisplayName)
			}
		case PlayerInfoUpdateGameMode:
			writeVarInt(w, entry.GameMode)
		case PlayerInfoUpdateLatency:
			writeVarInt(w, entry.Ping)
		case PlayerInfoUpdateDisplayName:
			writeBool(w, entry.HasDisplayName)
			if entry.HasDisplayName {
				writeString(w, entry.DisplayName)
			}
		}
	}
}

func decodeChat(r *bytes.Reader, caps Capabilities) (Packet, error) {
	p := &Chat{}
	var err error
	if p.Message, err = readString(r, 262144); err != nil {
		return nil, err
	}
	if caps.SystemChat {
		p.Overlay, err = readBool(r)
		return p, err
	}
	if p.Position, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if caps.ChatSender {
		if p.Sender, err = readUUID(r); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func encodeChat(w *bytes.Buffer, p *Chat, caps Capabilities) {
	writeString(w, p.Message)
	if caps.SystemChat {
		writeBool(w, p.Overlay)
		return
	}
	w.WriteByte(p.Position)
	if caps.ChatSender {
		writeUUID(w, p.Sender)
	}
}

func decodeSpawnPlayer(r *bytes.Reader, caps Capabilities) (Packet, error) {
	p := &SpawnPlayer{}
	var err error
	if p.EntityID, err = readVarInt(r); err != nil {
		return nil, err
	}
	if p.ID, err = readUUID(r); err != nil {
		return nil, err
	}
	if caps.WorldMetadata || caps.ModernBrandChannel {
		if p.X, err = readFloat64(r); err != nil {
			return nil, err
		}
		if p.Y, err = readFloat64(r); err != nil {
			return nil, err
		}
		if p.Z, err = readFloat64(r); err != nil {
			return nil, err
		}
	} else {
		// Fixed-point coordinates on 1.8.
		x, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		y, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		z, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		p.X, p.Y, p.Z = float64(x)/32, float64(y)/32, float64(z)/32
	}
	if p.Yaw, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if p.Pitch, err = r.ReadByte(); err != nil {
		return nil, err
	}
	p.Tail = remaining(r)
	return p, nil
}

func encodeSpawnPlayer(w *bytes.Buffer, p *SpawnPlayer, caps Capabilities) {
	writeVarInt(w, p.EntityID)
	writeUUID(w, p.ID)
	if caps.WorldMetadata || caps.ModernBrandChannel {
		writeFloat64(w, p.X)
		writeFloat64(w, p.Y)
		writeFloat64(w, p.Z)
	} else {
		writeInt32(w, int32(p.X*32))
		writeInt32(w, int32(p.Y*32))
		writeInt32(w, int32(p.Z*32))
	}
	w.WriteByte(p.Yaw)
	w.WriteByte(p.Pitch)
	w.Write(p.Tail)
}

func decodeServerData(r *bytes.Reader) (Packet, error) {
	p := &ServerData{}
	var err error
	if p.HasMOTD, err = readBool(r); err != nil {
		return nil, err
	}
	if p.HasMOTD {
		if p.MOTD, err = readString(r, 262144); err != nil {
			return nil, err
		}
	}
	if p.HasIcon, err = readBool(r); err != nil {
		return nil, err
	}
	if p.HasIcon {
		if p.Icon, err = readString(r, 262144); err != nil {
			return nil, err
		}
	}
	if r.Len() >= 2 {
		if p.PreviewsChat, err = readBool(r); err != nil {
			return nil, err
		}
		if p.EnforcesSecureChat, err = readBool(r); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func encodeServerData(w *bytes.Buffer, p *ServerData) {
	writeBool(w, p.HasMOTD)
	if p.HasMOTD {
		writeString(w, p.MOTD)
	}
	writeBool(w, p.HasIcon)
	if p.HasIcon {
		writeString(w, p.Icon)
	}
	writeBool(w, p.PreviewsChat)
	writeBool(w, p.EnforcesSecureChat)
}

func encodeMapChunk(w *bytes.Buffer, p *MapChunk, caps Capabilities) {
	writeInt32(w, p.X)
	writeInt32(w, p.Z)
	writeBool(w, p.FullChunk)
	if caps.HeightmapChunks {
		writeVarInt(w, p.BitMask)
		w.Write(p.Heightmaps)
		writeVarInt(w, int32(len(p.Biomes)))
		for _, b := range p.Biomes {
			writeVarInt(w, b)
		}
	} else {
		// Legacy bitmask is an unsigned short.
		w.WriteByte(byte(p.BitMask >> 8))
		w.WriteByte(byte(p.BitMask))
	}
	writeByteArray(w, p.Data)
	if caps.HeightmapChunks {
		writeVarInt(w, 0) // no block entities in limbo
	}
}

func decodePositionServerbound(r *bytes.Reader, hasLook bool) (Packet, error) {
	p := &PositionServerbound{HasLook: hasLook}
	var err error
	if p.X, err = readFloat64(r); err != nil {
		return nil, err
	}
	if p.Y, err = readFloat64(r); err != nil {
		return nil, err
	}
	if p.Z, err = readFloat64(r); err != nil {
		return nil, err
	}
	if hasLook {
		if p.Yaw, err = readFloat32(r); err != nil {
			return nil, err
		}
		if p.Pitch, err = readFloat32(r); err != nil {
			return nil, err
		}
	}
	if p.OnGround, err = readBool(r); err != nil {
		return nil, err
	}
	return p, nil
}

func encodePositionServerbound(w *bytes.Buffer, p *PositionServerbound) {
	writeFloat64(w, p.X)
	writeFloat64(w, p.Y)
	writeFloat64(w, p.Z)
	if p.HasLook {
		writeFloat32(w, p.Yaw)
		writeFloat32(w, p.Pitch)
	}
	writeBool(w, p.OnGround)
}

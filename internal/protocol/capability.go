package protocol

// Named protocol version numbers used by the capability table.
const (
	Version1_8    int32 = 47
	Version1_13   int32 = 393
	Version1_16   int32 = 735
	Version1_16_2 int32 = 751
	Version1_16_4 int32 = 754
	Version1_19   int32 = 759
)

type era int

const (
	eraLegacy  era = iota // < 1.16
	eraModern             // 1.16.x
	eraCurrent            // 1.19+
)

// Capabilities describes the version-dependent behavior a connection gets.
// It is resolved once per connection at handoff time; nothing downstream
// compares protocol numbers directly.
type Capabilities struct {
	// WorldMetadata marks versions whose join and respawn payloads carry the
	// world-name list and an NBT dimension codec instead of a numeric
	// dimension id.
	WorldMetadata bool
	// HardcoreFlag marks versions with a dedicated hardcore boolean rather
	// than a bit folded into the gamemode field.
	HardcoreFlag bool
	// ModernBrandChannel selects the "minecraft:brand" plugin channel over
	// the legacy "MC|Brand" name.
	ModernBrandChannel bool
	// HeightmapChunks marks chunk formats that expect a heightmap compound in
	// the fabricated limbo column.
	HeightmapChunks bool
	// ChatSender marks chat packets that carry a position byte and a
	// sender UUID.
	ChatSender bool
	// SystemChat marks versions whose clientbound chat uses the system
	// chat layout of content plus an overlay flag, replacing the
	// position byte and sender id.
	SystemChat bool
	// ServerMetadata marks versions that receive the post-login server
	// metadata packet whose MOTD field the relay overrides.
	ServerMetadata bool

	era era
}

// Lookup resolves the capability set for a protocol version.
func Lookup(version int32) Capabilities {
	caps := Capabilities{
		ModernBrandChannel: version >= Version1_13,
		WorldMetadata:      version >= Version1_16,
		HeightmapChunks:    version >= Version1_16,
		HardcoreFlag:       version >= Version1_16_2,
		ChatSender:         version >= Version1_16 && version < Version1_19,
		SystemChat:         version >= Version1_19,
		ServerMetadata:     version >= Version1_19,
	}
	switch {
	case version >= Version1_19:
		caps.era = eraCurrent
	case version >= Version1_16:
		caps.era = eraModern
	}
	return caps
}

// BrandChannel returns the plugin channel name for the server brand string.
func (c Capabilities) BrandChannel() string {
	if c.ModernBrandChannel {
		return "minecraft:brand"
	}
	return "MC|Brand"
}

// Kind identifies a play-state packet the codec knows how to decode or
// encode. Everything else travels as Raw.
type Kind int

const (
	KindKeepAliveCB Kind = iota
	KindKeepAliveSB
	KindChat
	KindJoinGame
	KindRespawn
	KindPlayerInfo
	KindPositionCB
	KindPositionSB
	KindPositionLookSB
	KindMapChunk
	KindUpdateTime
	KindPluginMessage
	KindSpawnPlayer
	KindDisconnect
	KindServerData
)

const idAbsent int32 = -1

// Play-state packet ids per era, columns [legacy, modern, current]. Legacy
// ids follow the 1.8 numbering, modern 1.16.4, current 1.19.2.
var playIDs = map[Kind][3]int32{
	KindKeepAliveCB:    {0x00, 0x1F, 0x20},
	KindKeepAliveSB:    {0x00, 0x10, 0x12},
	KindChat:           {0x02, 0x0E, 0x62},
	KindJoinGame:       {0x01, 0x24, 0x25},
	KindRespawn:        {0x07, 0x39, 0x3E},
	KindPlayerInfo:     {0x38, 0x32, 0x37},
	KindPositionCB:     {0x08, 0x34, 0x39},
	KindPositionSB:     {0x04, 0x12, 0x14},
	KindPositionLookSB: {0x06, 0x13, 0x15},
	KindMapChunk:       {0x21, 0x20, 0x21},
	KindUpdateTime:     {0x03, 0x4E, 0x5C},
	KindPluginMessage:  {0x3F, 0x17, 0x16},
	KindSpawnPlayer:    {0x0C, 0x04, 0x02},
	KindDisconnect:     {0x40, 0x19, 0x19},
	KindServerData:     {idAbsent, idAbsent, 0x42},
}

var kindDirections = map[Kind]Direction{
	KindKeepAliveCB:    Clientbound,
	KindKeepAliveSB:    Serverbound,
	KindChat:           Clientbound,
	KindJoinGame:       Clientbound,
	KindRespawn:        Clientbound,
	KindPlayerInfo:     Clientbound,
	KindPositionCB:     Clientbound,
	KindPositionSB:     Serverbound,
	KindPositionLookSB: Serverbound,
	KindMapChunk:       Clientbound,
	KindUpdateTime:     Clientbound,
	KindPluginMessage:  Clientbound,
	KindSpawnPlayer:    Clientbound,
	KindDisconnect:     Clientbound,
	KindServerData:     Clientbound,
}

func (c Capabilities) playID(k Kind) (int32, bool) {
	ids, ok := playIDs[k]
	if !ok {
		return 0, false
	}
	id := ids[c.era]
	return id, id != idAbsent
}

func (c Capabilities) playKind(dir Direction, id int32) (Kind, bool) {
	// Negative ids never appear on the wire; without this check a
	// malformed id could match an idAbsent table entry.
	if id < 0 {
		return 0, false
	}
	for k, ids := range playIDs {
		if ids[c.era] == id && kindDirections[k] == dir {
			return k, true
		}
	}
	return 0, false
}

package relay

import (
	"github.com/google/uuid"

	"github.com/queuegate/queuegate/internal/protocol"
)

// rewriteNeeded reports whether backend identities must be translated: the
// frontend verified this player's identity but the backend assigned its own
// derived one, so every packet carrying the backend's id is rewritten before
// it reaches the client.
func (b *Backend) rewriteNeeded() bool {
	return b.opts.Config.OnlineMode && !b.opts.Config.Backend.OnlineMode
}

// rewritePlayerInfo patches player list updates from an offline backend.
// Add entries get the signed properties (skin, cape) cached for that
// username at the frontend, since the backend has none to offer. The entry
// for this player also reveals the backend's derived id, which is recorded
// and substituted with the verified one here and in every later packet.
func (b *Backend) rewritePlayerInfo(p *protocol.PlayerInfo) {
	if !b.rewriteNeeded() {
		return
	}

	for i := range p.Entries {
		entry := &p.Entries[i]
		if p.Action == protocol.PlayerInfoAddPlayer {
			if entry.Name == b.opts.Profile.Name {
				b.fakeID = entry.ID
			}
			if cached, ok := b.opts.Identities.Get(entry.Name); ok {
				entry.Properties = cached.Properties
			}
		}
		b.rewriteID(&entry.ID)
	}
}

func (b *Backend) rewriteID(id *uuid.UUID) {
	if !b.rewriteNeeded() || b.fakeID == uuid.Nil {
		return
	}
	if *id == b.fakeID {
		*id = b.opts.Profile.ID
	}
}

// overrideMOTD replaces the backend's advertised status line with the
// locally configured one, so clients in the pause menu see the frontend's
// message regardless of what the backend reports.
func (b *Backend) overrideMOTD(p *protocol.ServerData) {
	if b.opts.Config.Messages.MotdOverride != "" {
		p.HasMOTD = true
		p.MOTD = protocol.TextComponent(b.opts.Config.Messages.MotdOverride)
	}
}

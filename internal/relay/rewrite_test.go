package relay

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/google/uuid"

	"github.com/queuegate/queuegate/internal/core"
	"github.com/queuegate/queuegate/internal/identity"
	"github.com/queuegate/queuegate/internal/protocol"
)

var (
	realID = uuid.MustParse("af74a02d-19cb-445b-b07f-6866a861f783")
	fakeID = protocol.OfflineUUID("steve")
)

func rewritingBackend(t *testing.T) *Backend {
	t.Helper()

	cfg := &core.Config{}
	cfg.OnlineMode = true
	cfg.Backend.OnlineMode = false

	cache := identity.NewCache()
	cache.Put(protocol.Profile{
		ID:   realID,
		Name: "steve",
		Properties: []protocol.Property{
			{Name: "textures", Value: "dGV4dHVyZQ==", Signature: "c2ln"},
		},
	})

	return &Backend{opts: Options{
		Config:     cfg,
		Identities: cache,
		Profile:    protocol.Profile{ID: realID, Name: "steve"},
	}}
}

func TestRewritePlayerInfoAdd(t *testing.T) {
	b := rewritingBackend(t)

	info := &protocol.PlayerInfo{
		Action: protocol.PlayerInfoAddPlayer,
		Entries: []protocol.PlayerInfoEntry{
			{ID: fakeID, Name: "steve"},
			{ID: protocol.OfflineUUID("stranger"), Name: "stranger"},
		},
	}
	b.rewritePlayerInfo(info)

	if b.fakeID != fakeID {
		t.Errorf("fakeID = %s, want the backend-assigned id", b.fakeID)
	}
	if info.Entries[0].ID != realID {
		t.Errorf("own entry id = %s, want the verified id", info.Entries[0].ID)
	}
	if len(info.Entries[0].Properties) != 1 {
		t.Error("own entry did not receive the cached properties")
	}
	// No cached identity for the stranger: id and properties stay as the
	// backend sent them.
	if info.Entries[1].ID != protocol.OfflineUUID("stranger") {
		t.Error("an unrelated entry id was rewritten")
	}
	if len(info.Entries[1].Properties) != 0 {
		t.Error("an unrelated entry gained properties")
	}
}

func TestRewritePlayerInfoLaterActions(t *testing.T) {
	b := rewritingBackend(t)

	// Learn the derived id from the add...
	b.rewritePlayerInfo(&protocol.PlayerInfo{
		Action:  protocol.PlayerInfoAddPlayer,
		Entries: []protocol.PlayerInfoEntry{{ID: fakeID, Name: "steve"}},
	})

	// ...and keep translating it on non-add updates.
	update := &protocol.PlayerInfo{
		Action:  protocol.PlayerInfoUpdateLatency,
		Entries: []protocol.PlayerInfoEntry{{ID: fakeID, Ping: 31}},
	}
	b.rewritePlayerInfo(update)
	if update.Entries[0].ID != realID {
		t.Errorf("latency update id = %s, want the verified id", update.Entries[0].ID)
	}
}

func TestRewriteIDInOtherPackets(t *testing.T) {
	b := rewritingBackend(t)
	b.fakeID = fakeID

	spawn := &protocol.SpawnPlayer{EntityID: 7, ID: fakeID}
	b.rewriteID(&spawn.ID)
	if spawn.ID != realID {
		t.Errorf("spawn id = %s, want the verified id", spawn.ID)
	}

	chat := &protocol.Chat{Message: `{"text":"hi"}`, Sender: fakeID}
	b.rewriteID(&chat.Sender)
	if chat.Sender != realID {
		t.Errorf("chat sender = %s, want the verified id", chat.Sender)
	}

	// A nil uuid (system sender) never matches.
	var system uuid.UUID
	b.rewriteID(&system)
	if system != uuid.Nil {
		t.Error("the nil sender was rewritten")
	}
}

func TestRewriteDisabledWhenModesMatch(t *testing.T) {
	b := rewritingBackend(t)
	b.opts.Config.Backend.OnlineMode = true

	info := &protocol.PlayerInfo{
		Action:  protocol.PlayerInfoAddPlayer,
		Entries: []protocol.PlayerInfoEntry{{ID: fakeID, Name: "steve"}},
	}
	b.rewritePlayerInfo(info)

	if info.Entries[0].ID != fakeID {
		t.Error("ids should pass through untouched when both sides verify")
	}
	if b.fakeID != uuid.Nil {
		t.Error("no derived id should be recorded when both sides verify")
	}
}

func TestOverrideMOTD(t *testing.T) {
	b := rewritingBackend(t)
	b.opts.Config.Messages.MotdOverride = "Managed by the gateway"

	data := &protocol.ServerData{HasMOTD: true, MOTD: `{"text":"backend says hi"}`}
	b.overrideMOTD(data)
	if data.MOTD != protocol.TextComponent("Managed by the gateway") {
		t.Errorf("MOTD = %q, want the override", data.MOTD)
	}

	b.opts.Config.Messages.MotdOverride = ""
	original := &protocol.ServerData{HasMOTD: true, MOTD: `{"text":"backend says hi"}`}
	b.overrideMOTD(original)
	if original.MOTD != `{"text":"backend says hi"}` {
		t.Error("an empty override should leave the backend MOTD alone")
	}
}

func TestRespawnFromJoin(t *testing.T) {
	join := &protocol.JoinGame{
		EntityID:         42,
		GameMode:         0,
		PreviousGameMode: -1,
		Dimension:        protocol.OverworldDimension(),
		DimensionID:      0,
		WorldName:        "minecraft:overworld",
		HashedSeed:       123456789,
		LevelType:        "default",
		IsFlat:           false,
	}

	want := &protocol.Respawn{
		Dimension:        protocol.OverworldDimension(),
		WorldName:        "minecraft:overworld",
		HashedSeed:       123456789,
		GameMode:         0,
		PreviousGameMode: -1,
		LevelType:        "default",
	}
	if diff := deep.Equal(want, respawnFromJoin(join)); diff != nil {
		t.Errorf("respawnFromJoin() mismatch: %v", diff)
	}
}

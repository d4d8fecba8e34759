package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/queuegate/queuegate/internal/protocol"
)

// The holding world: a single empty chunk high above the void, entered as
// a spectator. Clients sit here until a backend slot frees up.
const (
	limboY             = 240.0
	limboGameMode      = 3
	limboKeepAliveTick = 10 * time.Second
	defaultWorldTime   = 13000
)

// enterLimbo sends the packet sequence that convinces the client it joined
// a world, then starts the liveness ticker that keeps it there. The
// client's answers to those probes double as its queue status poll.
func (s *Session) enterLimbo(ctx context.Context) error {
	caps := s.conn.Caps()

	join := &protocol.JoinGame{
		EntityID:            int32(s.id),
		GameMode:            limboGameMode,
		PreviousGameMode:    1,
		WorldNames:          []string{"minecraft:overworld"},
		WorldName:           "minecraft:overworld",
		DimensionID:         0,
		MaxPlayers:          1,
		LevelType:           "default",
		ViewDistance:        1,
		EnableRespawnScreen: true,
		IsFlat:              true,
	}
	if caps.WorldMetadata {
		join.DimensionCodec = protocol.DimensionCodec()
		join.Dimension = protocol.OverworldDimension()
	}
	if err := s.conn.WritePacket(join); err != nil {
		return err
	}

	if err := s.conn.WritePacket(s.limboPosition()); err != nil {
		return err
	}
	if err := s.conn.WritePacket(s.limboChunk()); err != nil {
		return err
	}
	if err := s.conn.WritePacket(&protocol.PluginMessage{
		Channel: caps.BrandChannel(),
		Data:    brandPayload("queuegate"),
	}); err != nil {
		return err
	}
	err := s.conn.WritePacket(&protocol.PlayerInfo{
		Action: protocol.PlayerInfoAddPlayer,
		Entries: []protocol.PlayerInfoEntry{{
			ID:         s.profile.ID,
			Name:       s.profile.Name,
			Properties: s.profile.Properties,
			GameMode:   limboGameMode,
		}},
	})
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	s.mu.Lock()
	s.limboStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(limboKeepAliveTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := s.conn.WritePacket(&protocol.KeepAlive{ID: time.Now().UnixMilli()}); err != nil {
					return
				}
			}
		}
	}()
	return nil
}

func (s *Session) stopLimboLocked() {
	if s.limboStop != nil {
		close(s.limboStop)
		s.limboStop = nil
	}
}

func (s *Session) limboPosition() *protocol.PositionClientbound {
	return &protocol.PositionClientbound{X: 0.5, Y: limboY, Z: 0.5}
}

func (s *Session) limboChunk() *protocol.MapChunk {
	caps := s.conn.Caps()
	chunk := &protocol.MapChunk{FullChunk: true}
	if caps.HeightmapChunks {
		chunk.Heightmaps = protocol.EmptyHeightmaps()
	}
	if caps.WorldMetadata {
		biomes := make([]int32, 1024)
		for i := range biomes {
			biomes[i] = 1
		}
		chunk.Biomes = biomes
	} else {
		// Legacy full chunks carry an inline 16x16 biome array even with no
		// sections present.
		chunk.Data = make([]byte, 256)
	}
	return chunk
}

// reassertLimbo snaps a drifting client back onto the holding position and
// restates the world time, which some clients reset on teleport.
func (s *Session) reassertLimbo() {
	s.conn.WritePacket(s.limboPosition())

	worldTime := s.server.Config.Queue.WorldTime
	if worldTime == 0 {
		worldTime = defaultWorldTime
	}
	s.conn.WritePacket(&protocol.UpdateTime{TimeOfDay: worldTime})
}

// sendQueueStatus tells a queued client where it stands. Nothing is sent
// once the session has left the queue; the join notice covers that window.
func (s *Session) sendQueueStatus() {
	pos, length, ok := s.server.Admission.Position(s.id)
	if !ok {
		return
	}

	cfg := s.server.Config
	s.writeChat([]map[string]interface{}{
		protocol.ColoredText(cfg.Messages.QueuePosition, cfg.Messages.QueueColor, false),
		protocol.ColoredText(fmt.Sprintf("%d", pos), cfg.Messages.QueueColor, true),
		protocol.ColoredText(fmt.Sprintf("/%d", length), cfg.Messages.QueueColor, false),
	})
}

// sendJoinNotice announces the imminent handoff. Called with s.mu held.
func (s *Session) sendJoinNotice() {
	cfg := s.server.Config
	s.writeChat([]map[string]interface{}{
		protocol.ColoredText(cfg.Messages.Joining, cfg.Messages.JoiningColor, true),
	})
}

func (s *Session) writeChat(components []map[string]interface{}) {
	b, err := json.Marshal(components)
	if err != nil {
		return
	}
	s.conn.WritePacket(&protocol.Chat{Message: string(b)})
}

// brandPayload renders the string-encoded server brand for the channel.
func brandPayload(brand string) []byte {
	buf := make([]byte, 0, len(brand)+1)
	buf = append(buf, byte(len(brand)))
	return append(buf, brand...)
}

package gateway

import (
	"encoding/json"
	"math/rand"
	"strings"

	"github.com/queuegate/queuegate/internal/protocol"
)

type statusVersion struct {
	Name     string `json:"name"`
	Protocol int32  `json:"protocol"`
}

type statusPlayers struct {
	Max    int `json:"max"`
	Online int `json:"online"`
}

type statusResponse struct {
	Version     statusVersion     `json:"version"`
	Players     *statusPlayers    `json:"players,omitempty"`
	Description map[string]string `json:"description"`
}

// serveStatus answers one server-list exchange: a status request followed
// by an optional latency ping.
func (s *Session) serveStatus() {
	for {
		pkt, err := s.conn.ReadPacket()
		if err != nil {
			return
		}
		switch p := pkt.(type) {
		case *protocol.StatusRequest:
			payload, err := json.Marshal(s.server.statusFor(s.addr))
			if err != nil {
				return
			}
			if err := s.conn.WritePacket(&protocol.StatusResponse{JSON: string(payload)}); err != nil {
				return
			}
		case *protocol.Ping:
			s.conn.WritePacket(&protocol.Pong{Payload: p.Payload})
			return
		default:
			return
		}
	}
}

// statusFor builds the server list document for one remote address.
// Addresses that have logged in before can get a different description
// with the last seen username substituted in, and can have the player
// count shown to them even when it is hidden from strangers.
func (s *Server) statusFor(addr string) statusResponse {
	cfg := s.Config
	known := s.IPs.Known(addr)

	motds := cfg.Server.Motds
	if known && len(cfg.Server.KnownMotds) > 0 {
		motds = cfg.Server.KnownMotds
	}
	showCount := cfg.Server.ShowPlayerCount || (known && cfg.Server.KnownShowPlayerCount)

	motd := ""
	if len(motds) > 0 {
		motd = motds[rand.Intn(len(motds))]
	}
	if username, ok := s.IPs.LastUser(addr); ok {
		motd = strings.ReplaceAll(motd, "{username}", username)
	}

	resp := statusResponse{
		Version: statusVersion{
			Name:     cfg.Server.VersionName,
			Protocol: cfg.Server.ProtocolVersion,
		},
		Description: map[string]string{"text": motd},
	}
	if showCount {
		online := s.Admission.Occupancy()
		if cfg.Server.QueueInPlayerCount {
			online += s.Admission.QueueLength()
		}
		resp.Players = &statusPlayers{Max: cfg.Backend.MaxPlayers, Online: online}
	}
	return resp
}

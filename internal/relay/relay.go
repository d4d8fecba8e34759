// Package relay establishes one outbound backend connection per admitted
// client and performs the bidirectional packet forwarding between the two,
// including the identity and metadata rewriting the frontend's mode
// requires.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/queuegate/queuegate/internal/core"
	"github.com/queuegate/queuegate/internal/core/debug"
	"github.com/queuegate/queuegate/internal/identity"
	"github.com/queuegate/queuegate/internal/protocol"
	"github.com/queuegate/queuegate/internal/token"
)

const dialTimeout = 10 * time.Second

// Options carries everything a pairing needs from the gateway.
type Options struct {
	Config     *core.Config
	Logger     *logrus.Logger
	Identities *identity.Cache
	Tokens     *token.Authority

	// ClientConn is the inbound connection being paired.
	ClientConn *protocol.Conn
	// Profile is the client's verified identity.
	Profile protocol.Profile
}

// Backend is the outbound half of an active pairing. It is created exactly
// once per admitted client and lives until either side disconnects.
type Backend struct {
	opts Options
	conn *protocol.Conn

	// Identity the offline backend assigned to this player, learned from its
	// first player list add. Only meaningful when the frontend verifies
	// identities and the backend does not.
	fakeID uuid.UUID
}

// Connect dials the backend and completes its login sequence, authenticating
// as the client's username. When the backend verifies sessions, the session
// handshake is performed against the embedded session service using the
// process tokens, standing in for an external authentication authority.
func Connect(ctx context.Context, opts Options) (*Backend, error) {
	b := &Backend{opts: opts}

	if opts.Config.Backend.OnlineMode {
		if err := b.authenticate(ctx); err != nil {
			return nil, fmt.Errorf("session authenticate failed: %w", err)
		}
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", opts.Config.BackendAddress())
	if err != nil {
		return nil, fmt.Errorf("error connecting to backend: %w", err)
	}

	conn := protocol.NewClientSide(netConn, opts.ClientConn.Version())
	b.conn = conn

	err = conn.WritePacket(&protocol.Handshake{
		ProtocolVersion: conn.Version(),
		ServerAddress:   opts.Config.Backend.Host,
		ServerPort:      uint16(opts.Config.Backend.Port),
		NextState:       protocol.NextStateLogin,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetState(protocol.StateLogin)
	if err := conn.WritePacket(&protocol.LoginStart{Username: opts.Profile.Name}); err != nil {
		conn.Close()
		return nil, err
	}

	if err := b.completeLogin(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	opts.Logger.Debugf("backend accepted login for %s", opts.Profile.Name)
	return b, nil
}

// completeLogin drives the login state until the backend accepts the
// session.
func (b *Backend) completeLogin(ctx context.Context) error {
	for {
		pkt, err := b.conn.ReadPacket()
		if err != nil {
			return fmt.Errorf("backend closed during login: %w", err)
		}

		switch p := pkt.(type) {
		case *protocol.EncryptionRequest:
			if err := b.assertJoin(ctx, p.ServerID); err != nil {
				return fmt.Errorf("session join failed: %w", err)
			}
			err := b.conn.WritePacket(&protocol.EncryptionResponse{
				SharedSecret: []byte{},
				VerifyToken:  p.VerifyToken,
			})
			if err != nil {
				return err
			}
		case *protocol.SetCompression:
			// The codec does not implement compression; backends fronted by
			// this proxy must run with it disabled.
			return errors.New("backend requested compression")
		case *protocol.LoginDisconnect:
			return fmt.Errorf("backend rejected login: %s", p.Reason)
		case *protocol.LoginSuccess:
			b.conn.SetState(protocol.StatePlay)
			return nil
		default:
			return fmt.Errorf("unexpected %s during backend login", pkt.Name())
		}
	}
}

type sessionAuthRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientToken string `json:"clientToken"`
}

type sessionJoinRequest struct {
	AccessToken     string `json:"accessToken"`
	SelectedProfile string `json:"selectedProfile"`
	ServerID        string `json:"serverId"`
}

// authenticate presents the process access token as this player's password
// to the embedded session service, registering the pending handshake entry
// the join step will consume.
func (b *Backend) authenticate(ctx context.Context) error {
	return b.postSession(ctx, "/authenticate", sessionAuthRequest{
		Username:    b.opts.Profile.Name,
		Password:    b.opts.Tokens.AccessToken(),
		ClientToken: b.opts.Tokens.ClientToken(),
	})
}

// assertJoin asserts the session join for this player, moving the handshake
// entry into the state the backend's verification call consumes.
func (b *Backend) assertJoin(ctx context.Context, serverID string) error {
	return b.postSession(ctx, "/session/minecraft/join", sessionJoinRequest{
		AccessToken:     b.opts.Tokens.AccessToken(),
		SelectedProfile: protocol.UndashedID(b.opts.Profile.ID),
		ServerID:        serverID,
	})
}

func (b *Backend) postSession(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		b.opts.Config.SessionServiceURL()+path,
		bytes.NewReader(payload),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	return nil
}

// Run forwards backend packets to the client until the backend side ends,
// then reports the terminal error through done. The first join packet
// becomes either a full login transition or a respawn transition depending
// on whether the client already received one.
func (b *Backend) Run(firstJoin bool, done func(err error)) {
	go func() {
		done(b.forwardLoop(firstJoin))
	}()
}

func (b *Backend) forwardLoop(firstJoin bool) error {
	awaitingJoin := true

	for {
		pkt, err := b.conn.ReadPacket()
		if err != nil {
			return err
		}
		if b.opts.Config.Debugging.PacketLoggingEnabled {
			debug.PrintPacket("backend", pkt)
		}

		switch p := pkt.(type) {
		case *protocol.JoinGame:
			if awaitingJoin {
				awaitingJoin = false
				if firstJoin {
					err = b.opts.ClientConn.WritePacket(p)
				} else {
					err = b.opts.ClientConn.WritePacket(respawnFromJoin(p))
				}
				if err != nil {
					return err
				}
				continue
			}
		case *protocol.KeepAlive:
			// Answer the backend's probe ourselves; the client's own answers
			// are swallowed on the other direction.
			if err := b.conn.WritePacket(&protocol.KeepAliveServerbound{ID: p.ID}); err != nil {
				return err
			}
		case *protocol.PlayerInfo:
			b.rewritePlayerInfo(p)
		case *protocol.SpawnPlayer:
			b.rewriteID(&p.ID)
		case *protocol.Chat:
			b.rewriteID(&p.Sender)
		case *protocol.ServerData:
			b.overrideMOTD(p)
		case *protocol.Disconnect:
			// Deliver the backend's reason, then let the loop end when the
			// backend closes the socket.
		}

		if err := b.opts.ClientConn.WritePacket(pkt); err != nil {
			return err
		}
	}
}

// ForwardFromClient relays one client packet to the backend. Liveness
// probes are swallowed: the backend connection maintains its own liveness,
// and echoing the client's probes would double the keepalive traffic.
func (b *Backend) ForwardFromClient(pkt protocol.Packet) error {
	if _, ok := pkt.(*protocol.KeepAliveServerbound); ok {
		return nil
	}
	if b.opts.Config.Debugging.PacketLoggingEnabled {
		debug.PrintPacket("client", pkt)
	}
	return b.conn.WritePacket(pkt)
}

// Close tears down the backend side of the pairing.
func (b *Backend) Close() error {
	return b.conn.Close()
}

func respawnFromJoin(j *protocol.JoinGame) *protocol.Respawn {
	return &protocol.Respawn{
		Dimension:        j.Dimension,
		DimensionID:      j.DimensionID,
		WorldName:        j.WorldName,
		HashedSeed:       j.HashedSeed,
		Difficulty:       j.Difficulty,
		GameMode:         j.GameMode,
		PreviousGameMode: j.PreviousGameMode,
		LevelType:        j.LevelType,
		IsDebug:          j.IsDebug,
		IsFlat:           j.IsFlat,
		CopyMetadata:     false,
	}
}

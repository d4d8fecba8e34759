package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/queuegate/queuegate/internal/core/data"
	"github.com/queuegate/queuegate/internal/core/debug"
	"github.com/queuegate/queuegate/internal/protocol"
	"github.com/queuegate/queuegate/internal/relay"
)

type lifecycle int

const (
	stateConnecting lifecycle = iota
	stateLoggedIn
	stateQueued
	stateActive
	stateDisconnected
)

// Session is one inbound connection from handshake to teardown. The run
// goroutine owns all reads from the client; the backend pairing, the limbo
// keepalive ticker and the promotion timer only ever write.
type Session struct {
	id       int64
	server   *Server
	conn     *protocol.Conn
	addr     string
	hostname string
	logger   *logrus.Entry
	ctx      context.Context

	mu        sync.Mutex
	state     lifecycle
	profile   protocol.Profile
	rejectMsg string
	slotHeld  bool
	backend   *relay.Backend
	joinTimer *time.Timer
	limboStop chan struct{}
}

func (s *Session) run(ctx context.Context) {
	s.ctx = ctx
	defer s.teardown()

	pkt, err := s.conn.ReadPacket()
	if err != nil {
		return
	}
	hs, ok := pkt.(*protocol.Handshake)
	if !ok {
		return
	}
	s.conn.SetVersion(hs.ProtocolVersion)
	s.hostname = stripVirtualHost(hs.ServerAddress)

	switch hs.NextState {
	case protocol.NextStateStatus:
		s.conn.SetState(protocol.StateStatus)
		s.serveStatus()
	case protocol.NextStateLogin:
		s.conn.SetState(protocol.StateLogin)
		s.screenHandshake(hs)
		s.serveLogin(ctx)
	}
}

// screenHandshake applies the checks that only need the handshake itself.
// A failure is not answered here: the login state has a disconnect packet
// and the handshake state does not, so the rejection is held and delivered
// the moment the login request arrives.
func (s *Session) screenHandshake(hs *protocol.Handshake) {
	cfg := s.server.Config

	if last, ok := s.server.IPs.LastHandshake(s.addr); ok && time.Since(last) < cfg.ConnectionThrottle() {
		s.rejectMsg = cfg.Messages.Throttled
	}
	// The throttle window restarts on every attempt, rejected or not.
	s.server.IPs.TouchHandshake(s.addr)

	if s.rejectMsg == "" && cfg.Server.EnforceVersion && hs.ProtocolVersion != cfg.Server.ProtocolVersion {
		s.rejectMsg = cfg.Messages.UnsupportedVersion
	}
}

func (s *Session) serveLogin(ctx context.Context) {
	cfg := s.server.Config

	pkt, err := s.conn.ReadPacket()
	if err != nil {
		return
	}
	start, ok := pkt.(*protocol.LoginStart)
	if !ok {
		return
	}

	if s.rejectMsg != "" {
		s.kick(protocol.TextComponent(s.rejectMsg))
		return
	}

	profile := s.resolveProfile(start.Username)
	if err := s.conn.WritePacket(&protocol.LoginSuccess{ID: profile.ID, Username: profile.Name}); err != nil {
		return
	}
	s.conn.SetState(protocol.StatePlay)

	s.mu.Lock()
	s.profile = profile
	s.state = stateLoggedIn
	s.mu.Unlock()
	s.logger = s.logger.WithField("username", profile.Name)
	s.logger.Infof("logged in from %s", s.addr)

	s.server.evictConflicts(s)
	if msg := s.screenAccess(); msg != "" {
		s.kick(protocol.TextComponent(msg))
		return
	}
	s.recordIdentity(profile)

	switch {
	case s.server.Admission.TryAdmit():
		s.mu.Lock()
		s.slotHeld = true
		s.mu.Unlock()
		s.connectBackend(ctx, true)
	case !cfg.Queue.Enabled:
		s.kick(protocol.TextComponent(cfg.Messages.ServerFull))
		return
	default:
		pos := s.server.Admission.Enqueue(s.id)
		s.mu.Lock()
		s.state = stateQueued
		s.mu.Unlock()
		if err := s.enterLimbo(ctx); err != nil {
			return
		}
		s.logger.Infof("queued at position %d", pos)
	}

	s.readLoop()
}

// resolveProfile recovers the identity record for a username. A previously
// seen player keeps the id and signed properties cached at their last
// login; anyone else gets the derived offline id with no properties.
func (s *Session) resolveProfile(username string) protocol.Profile {
	if cached, ok := s.server.Identities.Get(username); ok {
		return cached
	}
	return protocol.Profile{ID: protocol.OfflineUUID(username), Name: username}
}

func (s *Session) screenAccess() string {
	cfg := s.server.Config

	if cfg.DomainWhitelist.Enabled && !domainAllowed(cfg.DomainWhitelist.Domains, s.hostname) {
		return cfg.Messages.WrongDomain
	}
	if cfg.Whitelist.Enabled && s.server.Whitelist != nil {
		allowed := s.server.Whitelist.AllowsName(s.profile.Name)
		if cfg.OnlineMode {
			allowed = s.server.Whitelist.AllowsID(s.profile.ID)
		}
		if !allowed {
			return cfg.Messages.NotWhitelisted
		}
	}
	return ""
}

func (s *Session) recordIdentity(profile protocol.Profile) {
	s.server.Identities.Put(profile)
	s.server.IPs.RecordUser(s.addr, profile.Name)
	if s.server.DB != nil {
		if err := data.UpsertProfile(s.server.DB, profile); err != nil {
			s.logger.Warnf("failed to persist profile: %v", err)
		}
	}
}

// readLoop drains the client until it disconnects. While queued the
// packets drive the limbo interactions; once active they are forwarded to
// the backend.
func (s *Session) readLoop() {
	for {
		pkt, err := s.conn.ReadPacket()
		if err != nil {
			return
		}

		s.mu.Lock()
		backend := s.backend
		active := s.state == stateActive
		s.mu.Unlock()

		if active && backend != nil {
			if err := backend.ForwardFromClient(pkt); err != nil {
				s.logger.Warnf("backend write failed: %v", err)
				return
			}
			continue
		}

		if s.server.Config.Debugging.PacketLoggingEnabled {
			debug.PrintPacket("client", pkt)
		}
		switch pkt.(type) {
		case *protocol.PositionServerbound:
			s.reassertLimbo()
		case *protocol.KeepAliveServerbound:
			s.sendQueueStatus()
		}
	}
}

// beginPromotion is called on the promotion tick with a backend slot
// already reserved for this session. The client is told it is about to
// join, and the actual handoff fires after the configured notice delay so
// the message is seen before the world changes.
func (s *Session) beginPromotion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateQueued {
		return false
	}
	s.slotHeld = true
	s.sendJoinNotice()
	s.joinTimer = time.AfterFunc(s.server.Config.JoinNoticeDelay(), s.completePromotion)
	return true
}

func (s *Session) completePromotion() {
	s.mu.Lock()
	if s.state != stateQueued {
		s.mu.Unlock()
		return
	}
	s.joinTimer = nil
	s.mu.Unlock()

	s.connectBackend(s.ctx, false)
}

// connectBackend establishes the pairing for a session that holds a
// backend slot. On failure the slot is returned and the client dropped;
// on success the session goes active and backend packets start flowing.
func (s *Session) connectBackend(ctx context.Context, firstJoin bool) {
	backend, err := relay.Connect(ctx, relay.Options{
		Config:     s.server.Config,
		Logger:     s.server.Logger,
		Identities: s.server.Identities,
		Tokens:     s.server.Tokens,
		ClientConn: s.conn,
		Profile:    s.profile,
	})

	s.mu.Lock()
	if s.state == stateDisconnected {
		// Torn down while dialing; the slot was already returned.
		s.mu.Unlock()
		if backend != nil {
			backend.Close()
		}
		return
	}
	if err != nil {
		s.slotHeld = false
		s.mu.Unlock()
		s.server.Admission.Release()
		s.logger.Errorf("backend connection failed: %v", err)
		s.kick(s.disconnectedReason())
		return
	}
	s.backend = backend
	s.state = stateActive
	s.stopLimboLocked()
	s.mu.Unlock()

	s.logger.Infof("connected to backend (first join: %t)", firstJoin)
	backend.Run(firstJoin, func(err error) {
		s.logger.Infof("backend side ended: %v", err)
		s.conn.WritePacket(&protocol.Disconnect{Reason: s.disconnectedReason()})
		s.conn.Close()
	})
}

func (s *Session) disconnectedReason() string {
	cfg := s.server.Config
	b, _ := json.Marshal(protocol.ColoredText(cfg.Messages.Disconnected, cfg.Messages.DisconnectedColor, false))
	return string(b)
}

// kick terminates the connection with a chat-component reason appropriate
// to its protocol state. Teardown happens on the session's own goroutine
// when its read fails.
func (s *Session) kick(reason string) {
	if s.conn.State() == protocol.StateLogin {
		s.conn.WritePacket(&protocol.LoginDisconnect{Reason: reason})
	} else {
		s.conn.WritePacket(&protocol.Disconnect{Reason: reason})
	}
	s.conn.Close()
}

// identity returns the session's profile and address once it has one.
func (s *Session) identity() (protocol.Profile, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateConnecting || s.state == stateDisconnected {
		return protocol.Profile{}, "", false
	}
	return s.profile, s.addr, true
}

func (s *Session) teardown() {
	s.conn.Close()

	s.mu.Lock()
	prev := s.state
	s.state = stateDisconnected
	backend := s.backend
	s.backend = nil
	timer := s.joinTimer
	s.joinTimer = nil
	slot := s.slotHeld
	s.slotHeld = false
	s.stopLimboLocked()
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if backend != nil {
		backend.Close()
	}
	if slot {
		s.server.Admission.Release()
	} else if prev == stateQueued {
		s.server.Admission.Remove(s.id)
	}
	s.server.drop(s.id)

	if prev != stateConnecting {
		s.logger.Infof("disconnected")
	}
}

// stripVirtualHost normalizes the hostname the client dialed: forge
// clients append a NUL-delimited marker, and a trailing dot is legal DNS.
func stripVirtualHost(serverAddress string) string {
	host := serverAddress
	if i := strings.IndexByte(host, 0); i >= 0 {
		host = host[:i]
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

func domainAllowed(domains []string, hostname string) bool {
	for _, d := range domains {
		if strings.EqualFold(d, hostname) {
			return true
		}
	}
	return false
}

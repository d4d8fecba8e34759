// Package gateway owns the inbound listener and the per-connection state
// machine: screening, login, queueing, and the handoff into an active
// backend pairing.
package gateway

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/queuegate/queuegate/internal/core"
	"github.com/queuegate/queuegate/internal/identity"
	"github.com/queuegate/queuegate/internal/protocol"
	"github.com/queuegate/queuegate/internal/queue"
	"github.com/queuegate/queuegate/internal/token"
	"github.com/queuegate/queuegate/internal/whitelist"
)

// Server accepts game connections and tracks every live session by its
// process-unique id. It implements queue.Promoter so that the promotion
// tick can hand queued connections back to their sessions.
type Server struct {
	Config     *core.Config
	Logger     *logrus.Logger
	Identities *identity.Cache
	IPs        *identity.IPHistory
	Whitelist  *whitelist.Whitelist
	Admission  *queue.Admission
	Tokens     *token.Authority
	DB         *gorm.DB

	mu       sync.Mutex
	sessions map[int64]*Session
	nextID   int64
}

// Start binds the game listener and accepts connections until the context
// is canceled. Each connection gets its own session goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.sessions = make(map[int64]*Session)

	listener, err := net.Listen("tcp", s.Config.ListenAddress())
	if err != nil {
		return fmt.Errorf("error binding gateway to %s: %w", s.Config.ListenAddress(), err)
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() == nil {
					s.Logger.Errorf("gateway listener exited: %v", err)
				}
				return
			}
			sess := s.register(conn)
			go sess.run(ctx)
		}
	}()

	s.Logger.Infof("[GATEWAY] waiting for players on %s", s.Config.ListenAddress())
	return nil
}

func (s *Server) register(netConn net.Conn) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sess := &Session{
		id:     s.nextID,
		server: s,
		conn:   protocol.NewServerSide(netConn),
		addr:   hostOnly(netConn.RemoteAddr()),
		logger: s.Logger.WithField("connection", s.nextID),
	}
	s.sessions[sess.id] = sess
	return sess
}

func (s *Server) drop(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// olderSessions returns every live session with a smaller id, newest first.
// The descending order matters to the per-address connection limit: the
// most recent older connections fill the allowance and anything beyond it
// is evicted.
func (s *Server) olderSessions(id int64) []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.sessions))
	for sid := range s.sessions {
		if sid < id {
			ids = append(ids, sid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	out := make([]*Session, 0, len(ids))
	for _, sid := range ids {
		out = append(out, s.sessions[sid])
	}
	return out
}

// evictConflicts terminates older sessions that conflict with a session
// that just logged in. A reused username (or verified id) always bumps the
// previous holder; extra connections from the same address beyond the
// configured allowance are bumped next.
func (s *Server) evictConflicts(sess *Session) {
	sameAddr := 1
	for _, other := range s.olderSessions(sess.id) {
		profile, addr, ok := other.identity()
		if !ok {
			continue
		}

		switch {
		case profile.Name == sess.profile.Name:
			other.kick(protocol.TextComponent(s.Config.Messages.AlreadyConnected))
		case s.Config.OnlineMode && profile.ID == sess.profile.ID:
			other.kick(protocol.TextComponent(s.Config.Messages.AlreadyConnected))
		case addr == sess.addr:
			sameAddr++
			if sameAddr > s.Config.Server.ConnectionsPerIP {
				other.kick(protocol.TextComponent(s.Config.Messages.TooManyConnections))
			}
		}
	}
}

// Promote hands a reserved backend slot to the queued session with the
// given id. It returns false when the session is gone, in which case the
// caller owns the unused slot.
func (s *Server) Promote(id int64) bool {
	s.mu.Lock()
	sess := s.sessions[id]
	s.mu.Unlock()

	if sess == nil {
		return false
	}
	return sess.beginPromotion()
}

func hostOnly(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

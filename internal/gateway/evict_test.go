package gateway

import (
	"io"
	"net"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/queuegate/queuegate/internal/core"
	"github.com/queuegate/queuegate/internal/protocol"
)

// fakeLoggedInSession builds a session that looks freshly logged in, with
// the client side of its pipe drained so kicks never block.
func fakeLoggedInSession(t *testing.T, srv *Server, id int64, username, addr string) *Session {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		serverSide.Close()
		clientSide.Close()
	})
	go io.Copy(io.Discard, clientSide)

	conn := protocol.NewServerSide(serverSide)
	conn.SetVersion(protocol.Version1_19)
	conn.SetState(protocol.StatePlay)

	sess := &Session{
		id:     id,
		server: srv,
		conn:   conn,
		addr:   addr,
		logger: srv.Logger.WithField("connection", id),
		state:  stateLoggedIn,
		profile: protocol.Profile{
			ID:   protocol.OfflineUUID(username),
			Name: username,
		},
	}
	srv.sessions[id] = sess
	return sess
}

func isClosed(sess *Session) bool {
	return sess.conn.WritePacket(&protocol.KeepAlive{ID: 1}) != nil
}

func evictionServer(cfg *core.Config) *Server {
	return &Server{
		Config:   cfg,
		Logger:   logrus.New(),
		sessions: make(map[int64]*Session),
	}
}

func TestEvictConflictsSameUsername(t *testing.T) {
	cfg := testConfig()
	cfg.Server.ConnectionsPerIP = 10
	srv := evictionServer(cfg)

	old := fakeLoggedInSession(t, srv, 1, "steve", "10.0.0.1")
	bystander := fakeLoggedInSession(t, srv, 2, "alex", "10.0.0.2")
	newcomer := fakeLoggedInSession(t, srv, 3, "steve", "10.0.0.3")

	srv.evictConflicts(newcomer)

	if !isClosed(old) {
		t.Error("the previous session for the username was not evicted")
	}
	if isClosed(bystander) {
		t.Error("an unrelated session was evicted")
	}
	if isClosed(newcomer) {
		t.Error("the incoming session was evicted")
	}
}

// The per-address allowance applies whether or not identities are
// verified; online mode only adds the id comparison to the duplicate
// check.
func TestEvictConflictsPerAddressLimitOnlineMode(t *testing.T) {
	cfg := testConfig()
	cfg.OnlineMode = true
	cfg.Server.ConnectionsPerIP = 2
	srv := evictionServer(cfg)

	oldest := fakeLoggedInSession(t, srv, 1, "a", "10.0.0.1")
	middle := fakeLoggedInSession(t, srv, 2, "b", "10.0.0.1")
	newcomer := fakeLoggedInSession(t, srv, 3, "c", "10.0.0.1")

	srv.evictConflicts(newcomer)

	if !isClosed(oldest) {
		t.Error("the oldest session over the limit was not evicted")
	}
	if isClosed(middle) {
		t.Error("a session within the limit was evicted")
	}
	if isClosed(newcomer) {
		t.Error("the incoming session was evicted")
	}
}

func TestEvictConflictsSameID(t *testing.T) {
	cfg := testConfig()
	cfg.OnlineMode = true
	cfg.Server.ConnectionsPerIP = 10
	srv := evictionServer(cfg)

	old := fakeLoggedInSession(t, srv, 1, "steve", "10.0.0.1")
	newcomer := fakeLoggedInSession(t, srv, 2, "other", "10.0.0.2")
	// Same verified identity under a different username.
	newcomer.profile.ID = old.profile.ID

	srv.evictConflicts(newcomer)

	if !isClosed(old) {
		t.Error("the previous session for the identity was not evicted")
	}
}

// Per-address limiting counts the newest older sessions toward the
// allowance; anything beyond it goes, oldest last.
func TestEvictConflictsPerAddressLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.ConnectionsPerIP = 2
	srv := evictionServer(cfg)

	oldest := fakeLoggedInSession(t, srv, 1, "a", "10.0.0.1")
	middle := fakeLoggedInSession(t, srv, 2, "b", "10.0.0.1")
	elsewhere := fakeLoggedInSession(t, srv, 3, "c", "10.0.0.9")
	newcomer := fakeLoggedInSession(t, srv, 4, "d", "10.0.0.1")

	srv.evictConflicts(newcomer)

	// The newcomer and the most recent older session fill the allowance of
	// two, which pushes the oldest one out.
	if !isClosed(oldest) {
		t.Error("the oldest session over the limit was not evicted")
	}
	if isClosed(middle) {
		t.Error("a session within the limit was evicted")
	}
	if isClosed(elsewhere) {
		t.Error("a session from another address was evicted")
	}
	if isClosed(newcomer) {
		t.Error("the incoming session was evicted")
	}
}

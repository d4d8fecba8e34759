// Package session implements the embedded authentication and session-join
// HTTP service. It reproduces the three-call handshake an external
// authentication authority would provide (authenticate, join, has-joined) so
// that an unmodified backend can verify sessions the proxy itself vouches
// for.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/queuegate/queuegate/internal/identity"
	"github.com/queuegate/queuegate/internal/protocol"
	"github.com/queuegate/queuegate/internal/token"
)

// Service handles the session endpoints. Request handling is stateless
// except for the correlation state owned by the token authority.
type Service struct {
	Logger *logrus.Logger
	Cache  *identity.Cache
	Tokens *token.Authority

	httpServer *http.Server
}

// Routes builds the endpoint router. Unknown methods on known paths get
// the method-not-allowed answer callers of the real authority expect.
func (s *Service) Routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/authenticate", s.handleAuthenticate).Methods(http.MethodPost)
	router.HandleFunc("/session/minecraft/join", s.handleJoin).Methods(http.MethodPost)
	router.HandleFunc("/session/minecraft/hasJoined", s.handleHasJoined).Methods(http.MethodGet)
	return router
}

// Start binds the HTTP listener and serves until the context is canceled.
func (s *Service) Start(ctx context.Context, port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("error binding session service to port %d: %w", port, err)
	}

	s.httpServer = &http.Server{Handler: s.Routes()}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.Logger.Errorf("session service exited: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.Logger.Infof("[SESSION] waiting for requests on :%d", port)
	return nil
}

type authenticateRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientToken string `json:"clientToken"`
}

type authenticateResponse struct {
	ClientToken       string             `json:"clientToken"`
	AccessToken       string             `json:"accessToken"`
	AvailableProfiles []protocol.Profile `json:"availableProfiles"`
	SelectedProfile   protocol.Profile   `json:"selectedProfile"`
}

// handleAuthenticate performs the first handshake step: the relay presents
// the process access token as the player's password and receives the cached
// profile back, registering a pending entry for the join step.
func (s *Service) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	profile, known := s.Cache.Get(req.Username)
	if !s.Tokens.ValidAccessToken(req.Password) || !known {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.Tokens.BeginHandshake(protocol.UndashedID(profile.ID), profile.Name)

	clientToken := req.ClientToken
	if clientToken == "" {
		clientToken = s.Tokens.ClientToken()
	}
	s.writeJSON(w, http.StatusOK, authenticateResponse{
		ClientToken:       clientToken,
		AccessToken:       s.Tokens.AccessToken(),
		AvailableProfiles: []protocol.Profile{profile},
		SelectedProfile:   profile,
	})
}

type joinRequest struct {
	AccessToken     string `json:"accessToken"`
	SelectedProfile string `json:"selectedProfile"`
	ServerID        string `json:"serverId"`
}

// handleJoin performs the second handshake step: the relay asserts that the
// authenticated profile is joining the backend.
func (s *Service) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !s.Tokens.ValidAccessToken(req.AccessToken) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if _, ok := s.Tokens.CompleteJoin(req.SelectedProfile); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHasJoined performs the final handshake step: the backend verifies
// that the username recently asserted a join, consuming the assertion.
func (s *Service) handleHasJoined(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	serverID := r.URL.Query().Get("serverId")
	if username == "" || serverID == "" || !s.Tokens.ConsumeJoin(username) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	profile, ok := s.Cache.Get(username)
	if !ok {
		// Joined entries are only created for cached usernames, so this
		// would mean the cache regressed mid-handshake.
		s.Logger.Warnf("[SESSION] no cached profile for joined user %s", username)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Logger.Warnf("[SESSION] failed to write response: %v", err)
	}
}

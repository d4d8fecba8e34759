// Package token implements the session token authority: two process-lifetime
// secrets plus the correlation state for the three-step session handshake
// (authenticate, join, has-joined).
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
)

const secretBytes = 20

// Authority issues the access and client tokens and tracks handshake
// progress per identity. The tokens only guard against accidental
// cross-process collisions; the pending/joined correlation state is the
// actual authorization gate.
type Authority struct {
	accessToken string
	clientToken string

	mu      sync.Mutex
	pending map[string]string   // profile id -> username, set by authenticate
	joined  map[string]struct{} // usernames that completed the join step
}

// NewAuthority generates fresh secrets. Tokens are never rotated for the
// life of the process.
func NewAuthority() (*Authority, error) {
	access, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}
	client, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generating client token: %w", err)
	}
	return &Authority{
		accessToken: access,
		clientToken: client,
		pending:     make(map[string]string),
		joined:      make(map[string]struct{}),
	}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (a *Authority) AccessToken() string { return a.accessToken }
func (a *Authority) ClientToken() string { return a.clientToken }

// ValidAccessToken reports whether the candidate matches the process access
// token.
func (a *Authority) ValidAccessToken(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(a.accessToken), []byte(candidate)) == 1
}

// BeginHandshake registers a pending entry for the profile, replacing any
// stale one from an abandoned login.
func (a *Authority) BeginHandshake(profileID, username string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[profileID] = username
}

// CompleteJoin atomically moves the profile's pending entry into the joined
// set. It fails if the profile never passed the authenticate step.
func (a *Authority) CompleteJoin(profileID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	username, ok := a.pending[profileID]
	if !ok {
		return "", false
	}
	delete(a.pending, profileID)
	a.joined[username] = struct{}{}
	return username, true
}

// ConsumeJoin atomically removes the username from the joined set, returning
// whether it was present. A second consume for the same login fails.
func (a *Authority) ConsumeJoin(username string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.joined[username]; !ok {
		return false
	}
	delete(a.joined, username)
	return true
}

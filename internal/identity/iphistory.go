package identity

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// IPHistory tracks, per remote address, the last successful handshake time
// (used for connection throttling) and the last username seen from that
// address (used to personalize the server list response). Append-only with
// overwrite, no expiry.
type IPHistory struct {
	handshakes *gocache.Cache
	usernames  *gocache.Cache
}

func NewIPHistory() *IPHistory {
	return &IPHistory{
		handshakes: gocache.New(gocache.NoExpiration, 10*time.Second),
		usernames:  gocache.New(gocache.NoExpiration, 10*time.Second),
	}
}

// TouchHandshake records that the address just attempted a login handshake.
func (h *IPHistory) TouchHandshake(addr string) {
	h.handshakes.Set(addr, time.Now(), gocache.NoExpiration)
}

// LastHandshake returns when the address last attempted a login handshake.
func (h *IPHistory) LastHandshake(addr string) (time.Time, bool) {
	v, ok := h.handshakes.Get(addr)
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

// RecordUser associates the address with the username that most recently
// completed a login from it.
func (h *IPHistory) RecordUser(addr, username string) {
	h.usernames.Set(addr, username, gocache.NoExpiration)
}

// LastUser returns the username that last logged in from the address.
func (h *IPHistory) LastUser(addr string) (string, bool) {
	v, ok := h.usernames.Get(addr)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Known reports whether any login has ever completed from the address.
func (h *IPHistory) Known(addr string) bool {
	_, ok := h.usernames.Get(addr)
	return ok
}

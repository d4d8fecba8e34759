// Package identity holds the process-lifetime bookkeeping about player
// identities and remote addresses: which profile a username last logged in
// with, and when and as whom an address last connected.
package identity

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/queuegate/queuegate/internal/protocol"
)

// Cache maps usernames to their last-known profile. Entries are written on
// every successful login and never evicted.
type Cache struct {
	profiles *gocache.Cache
}

func NewCache() *Cache {
	return &Cache{profiles: gocache.New(gocache.NoExpiration, 10*time.Second)}
}

// Put records the profile delivered with a login, overwriting any previous
// entry for the username.
func (c *Cache) Put(profile protocol.Profile) {
	c.profiles.Set(profile.Name, profile, gocache.NoExpiration)
}

// Get fetches the last-known profile for a username, returning whether one
// was found (semantics similar to map).
func (c *Cache) Get(username string) (protocol.Profile, bool) {
	v, ok := c.profiles.Get(username)
	if !ok {
		return protocol.Profile{}, false
	}
	return v.(protocol.Profile), true
}

// All returns a snapshot of every cached profile.
func (c *Cache) All() []protocol.Profile {
	items := c.profiles.Items()
	profiles := make([]protocol.Profile, 0, len(items))
	for _, item := range items {
		profiles = append(profiles, item.Object.(protocol.Profile))
	}
	return profiles
}

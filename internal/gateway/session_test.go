package gateway

import (
	"testing"

	"github.com/queuegate/queuegate/internal/identity"
	"github.com/queuegate/queuegate/internal/protocol"
)

func TestStripVirtualHost(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
	}{
		{name: "plain", address: "play.example.com", want: "play.example.com"},
		{name: "uppercase", address: "Play.Example.COM", want: "play.example.com"},
		{name: "trailing dot", address: "play.example.com.", want: "play.example.com"},
		{name: "forge marker", address: "play.example.com\x00FML\x00", want: "play.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripVirtualHost(tt.address); got != tt.want {
				t.Errorf("stripVirtualHost(%q) = %q, want %q", tt.address, got, tt.want)
			}
		})
	}
}

func TestDomainAllowed(t *testing.T) {
	domains := []string{"play.example.com", "mc.example.org"}

	if !domainAllowed(domains, "play.example.com") {
		t.Error("listed domain rejected")
	}
	if !domainAllowed(domains, "PLAY.example.com") {
		t.Error("domain comparison should be case insensitive")
	}
	if domainAllowed(domains, "evil.example.net") {
		t.Error("unlisted domain accepted")
	}
}

func TestResolveProfile(t *testing.T) {
	cache := identity.NewCache()
	known := protocol.Profile{
		ID:   protocol.OfflineUUID("steve"),
		Name: "steve",
		Properties: []protocol.Property{
			{Name: "textures", Value: "dGV4dHVyZQ==", Signature: "c2ln"},
		},
	}
	cache.Put(known)

	s := &Session{server: &Server{Identities: cache}}

	got := s.resolveProfile("steve")
	if len(got.Properties) != 1 {
		t.Error("resolveProfile() dropped the cached properties")
	}

	fresh := s.resolveProfile("alex")
	if fresh.ID != protocol.OfflineUUID("alex") {
		t.Errorf("resolveProfile() id = %s, want the derived offline id", fresh.ID)
	}
	if len(fresh.Properties) != 0 {
		t.Error("resolveProfile() invented properties for an unseen player")
	}
}

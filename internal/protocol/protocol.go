// Package protocol contains the typed packet model used by the gateway and
// relay along with a thin length-prefixed wire codec. Only the packets the
// proxy needs to inspect or synthesize are decoded into concrete types;
// everything else moves through as an opaque Raw frame so that relaying a
// stream never depends on understanding all of it.
package protocol

import (
	"crypto/md5"
	"encoding/json"

	"github.com/google/uuid"
)

// State is the connection protocol state negotiated by the handshake.
type State int

const (
	StateHandshake State = iota
	StateStatus
	StateLogin
	StatePlay
)

// Direction indicates which way a packet travels.
type Direction int

const (
	// Serverbound packets travel from the game client toward a server.
	Serverbound Direction = iota
	// Clientbound packets travel from a server toward the game client.
	Clientbound
)

// Packet is a decoded protocol record. Implementations are the concrete
// packet variants in packets.go plus Raw for everything undecoded.
type Packet interface {
	// Name returns the packet's protocol name, e.g. "keep_alive".
	Name() string
}

// Property is one signed profile attribute (in practice: textures).
type Property struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

// Profile is the stable identity record for a player: the (uuid, username)
// pair plus any signed properties delivered at login.
type Profile struct {
	ID         uuid.UUID
	Name       string
	Properties []Property
}

type profileJSON struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Properties []Property `json:"properties,omitempty"`
}

// MarshalJSON renders the profile in the undashed-id form the session
// handshake protocol expects.
func (p Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(profileJSON{
		ID:         UndashedID(p.ID),
		Name:       p.Name,
		Properties: p.Properties,
	})
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw profileJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := uuid.Parse(raw.ID)
	if err != nil {
		return err
	}
	p.ID = id
	p.Name = raw.Name
	p.Properties = raw.Properties
	return nil
}

// UndashedID formats a UUID the way the session endpoints represent profile
// ids (32 hex characters, no dashes).
func UndashedID(id uuid.UUID) string {
	var buf [32]byte
	src := id.String()
	n := 0
	for i := 0; i < len(src); i++ {
		if src[i] != '-' {
			buf[n] = src[i]
			n++
		}
	}
	return string(buf[:n])
}

// OfflineUUID derives the version-3 uuid vanilla servers assign to a
// username when no authority verified it.
func OfflineUUID(username string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + username))
	var id uuid.UUID
	copy(id[:], sum[:])
	id[6] = (id[6] & 0x0f) | 0x30
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// TextComponent renders a plain-text chat component.
func TextComponent(text string) string {
	b, _ := json.Marshal(map[string]string{"text": text})
	return string(b)
}

// ColoredText renders a chat component with a color and bold flag, the form
// used for queue status and promotion notices.
func ColoredText(text, color string, bold bool) map[string]interface{} {
	return map[string]interface{}{"text": text, "color": color, "bold": bold}
}

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestOfflineUUID(t *testing.T) {
	// Known derivation for the username "Notch".
	want := uuid.MustParse("b50ad385-829d-3141-a216-7e7d7539ba7f")
	if got := OfflineUUID("Notch"); got != want {
		t.Errorf("OfflineUUID(Notch) = %s, want %s", got, want)
	}

	if OfflineUUID("steve") == OfflineUUID("Steve") {
		t.Error("offline ids should be case sensitive")
	}
	if got := OfflineUUID("steve"); got.Version() != 3 {
		t.Errorf("offline id version = %d, want 3", got.Version())
	}
}

func TestUndashedID(t *testing.T) {
	id := uuid.MustParse("af74a02d-19cb-445b-b07f-6866a861f783")
	if got := UndashedID(id); got != "af74a02d19cb445bb07f6866a861f783" {
		t.Errorf("UndashedID() = %q", got)
	}
}

func TestProfileJSONRoundTrip(t *testing.T) {
	profile := Profile{
		ID:   uuid.MustParse("af74a02d-19cb-445b-b07f-6866a861f783"),
		Name: "steve",
		Properties: []Property{
			{Name: "textures", Value: "dGV4dHVyZQ==", Signature: "c2ln"},
		},
	}

	encoded, err := json.Marshal(profile)
	if err != nil {
		t.Fatalf("Marshal() returned an unexpected error: %v", err)
	}

	// The wire form uses the undashed id.
	var wire map[string]interface{}
	if err := json.Unmarshal(encoded, &wire); err != nil {
		t.Fatalf("Unmarshal() returned an unexpected error: %v", err)
	}
	if wire["id"] != "af74a02d19cb445bb07f6866a861f783" {
		t.Errorf("wire id = %v, want the undashed form", wire["id"])
	}

	var decoded Profile
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal() returned an unexpected error: %v", err)
	}
	if diff := cmp.Diff(profile, decoded); diff != "" {
		t.Errorf("profile did not survive the round trip; diff:\n%s", diff)
	}
}

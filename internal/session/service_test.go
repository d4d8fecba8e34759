package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/queuegate/queuegate/internal/identity"
	"github.com/queuegate/queuegate/internal/protocol"
	"github.com/queuegate/queuegate/internal/token"
)

var testProfile = protocol.Profile{
	ID:   uuid.MustParse("af74a02d-19cb-445b-b07f-6866a861f783"),
	Name: "steve",
	Properties: []protocol.Property{
		{Name: "textures", Value: "dGV4dHVyZQ==", Signature: "c2ln"},
	},
}

func setUpService(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()

	tokens, err := token.NewAuthority()
	if err != nil {
		t.Fatalf("error creating token authority: %v", err)
	}
	cache := identity.NewCache()
	cache.Put(testProfile)

	service := &Service{
		Logger: logrus.New(),
		Cache:  cache,
		Tokens: tokens,
	}
	server := httptest.NewServer(service.Routes())
	t.Cleanup(server.Close)
	return service, server
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("error marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("error posting to %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthenticate(t *testing.T) {
	service, server := setUpService(t)

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{
			name: "valid credentials",
			body: map[string]string{
				"username":    "steve",
				"password":    service.Tokens.AccessToken(),
				"clientToken": service.Tokens.ClientToken(),
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "wrong password",
			body: map[string]string{
				"username": "steve",
				"password": "deadbeef",
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unknown username",
			body: map[string]string{
				"username": "nobody",
				"password": service.Tokens.AccessToken(),
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed body",
			body:       nil,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.body == nil {
				var err error
				resp, err = http.Post(server.URL+"/authenticate", "application/json", bytes.NewReader([]byte("{not json")))
				if err != nil {
					t.Fatalf("error posting: %v", err)
				}
				defer resp.Body.Close()
			} else {
				resp = postJSON(t, server.URL+"/authenticate", tt.body)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestAuthenticateResponseBody(t *testing.T) {
	service, server := setUpService(t)

	resp := postJSON(t, server.URL+"/authenticate", map[string]string{
		"username":    "steve",
		"password":    service.Tokens.AccessToken(),
		"clientToken": service.Tokens.ClientToken(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		ClientToken     string           `json:"clientToken"`
		AccessToken     string           `json:"accessToken"`
		SelectedProfile protocol.Profile `json:"selectedProfile"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("error decoding response: %v", err)
	}
	if body.AccessToken != service.Tokens.AccessToken() {
		t.Error("response did not echo the access token")
	}
	if body.ClientToken != service.Tokens.ClientToken() {
		t.Error("response did not echo the client token")
	}
	if body.SelectedProfile.ID != testProfile.ID || body.SelectedProfile.Name != testProfile.Name {
		t.Errorf("selected profile = %+v, want %+v", body.SelectedProfile, testProfile)
	}
}

// The full three-call handshake a backend-bound connection performs, plus
// the replay that must fail.
func TestSessionHandshake(t *testing.T) {
	service, server := setUpService(t)

	resp := postJSON(t, server.URL+"/authenticate", map[string]string{
		"username": "steve",
		"password": service.Tokens.AccessToken(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticate status = %d, want 200", resp.StatusCode)
	}

	resp = postJSON(t, server.URL+"/session/minecraft/join", map[string]string{
		"accessToken":     service.Tokens.AccessToken(),
		"selectedProfile": protocol.UndashedID(testProfile.ID),
		"serverId":        "abc123",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("join status = %d, want 204", resp.StatusCode)
	}

	hasJoinedURL := fmt.Sprintf("%s/session/minecraft/hasJoined?username=steve&serverId=abc123", server.URL)
	resp, err := http.Get(hasJoinedURL)
	if err != nil {
		t.Fatalf("error getting hasJoined: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("hasJoined status = %d, want 200", resp.StatusCode)
	}

	var profile protocol.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatalf("error decoding profile: %v", err)
	}
	if profile.ID != testProfile.ID || profile.Name != testProfile.Name {
		t.Errorf("hasJoined profile = %+v, want %+v", profile, testProfile)
	}

	// The join assertion is single use.
	resp2, err := http.Get(hasJoinedURL)
	if err != nil {
		t.Fatalf("error getting hasJoined: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("second hasJoined status = %d, want 401", resp2.StatusCode)
	}
}

func TestJoinRejections(t *testing.T) {
	service, server := setUpService(t)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
	}{
		{
			name: "bad access token",
			body: map[string]string{
				"accessToken":     "deadbeef",
				"selectedProfile": protocol.UndashedID(testProfile.ID),
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "no pending handshake",
			body: map[string]string{
				"accessToken":     service.Tokens.AccessToken(),
				"selectedProfile": protocol.UndashedID(testProfile.ID),
			},
			wantStatus: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, server.URL+"/session/minecraft/join", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestHasJoinedRequiresParameters(t *testing.T) {
	_, server := setUpService(t)

	tests := []struct {
		name string
		url  string
	}{
		{name: "missing username", url: "/session/minecraft/hasJoined?serverId=abc"},
		{name: "missing serverId", url: "/session/minecraft/hasJoined?username=steve"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + tt.url)
			if err != nil {
				t.Fatalf("error getting %s: %v", tt.url, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, server := setUpService(t)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{name: "get authenticate", method: http.MethodGet, path: "/authenticate"},
		{name: "get join", method: http.MethodGet, path: "/session/minecraft/join"},
		{name: "post hasJoined", method: http.MethodPost, path: "/session/minecraft/hasJoined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, server.URL+tt.path, nil)
			if err != nil {
				t.Fatalf("error building request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("error calling %s %s: %v", tt.method, tt.path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusMethodNotAllowed {
				t.Errorf("status = %d, want 405", resp.StatusCode)
			}
		})
	}
}

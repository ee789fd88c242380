package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MESHCALL_CONFIG", "MESHCALL_SERVER", "MESHCALL_ROOM", "MESHCALL_USERNAME",
		"MESHCALL_VIDEO", "MESHCALL_AUDIO", "MESHCALL_RECORD_DIR", "MESHCALL_STUN",
		"MESHCALL_TURN", "MESHCALL_TURN_USER", "MESHCALL_TURN_PASS",
		"MESHCALL_NEGOTIATION_TIMEOUT", "MESHCALL_LISTEN", "MESHCALL_MAX_ROOM_PEERS",
		"MESHCALL_DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("ServerURL: got %q, want %q", cfg.ServerURL, DefaultServerURL)
	}
	if len(cfg.STUNServers) != 1 || cfg.STUNServers[0] != DefaultSTUN {
		t.Errorf("STUNServers: got %v", cfg.STUNServers)
	}
	if cfg.NegotiationTimeout != DefaultNegotiationTimeout {
		t.Errorf("NegotiationTimeout: got %v", cfg.NegotiationTimeout)
	}
	if cfg.MaxRoomPeers != DefaultMaxRoomPeers {
		t.Errorf("MaxRoomPeers: got %d", cfg.MaxRoomPeers)
	}
	if cfg.GetTURNServers() != nil {
		t.Errorf("GetTURNServers: got %v, want nil", cfg.GetTURNServers())
	}
}

// TestLoadPriority verifies flags > env > file > defaults.
func TestLoadPriority(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "meshcall.toml")
	content := `
server_url = "ws://file.example:9000"
room = "file-room"
username = "file-user"
stun = ["stun:file.example:3478"]
negotiation_timeout = "5s"

[relay]
listen = ":9999"
max_room_peers = 3
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MESHCALL_ROOM", "env-room")
	t.Setenv("MESHCALL_STUN", "stun:a.example, stun:b.example")

	cfg, err := Load(Options{ConfigFile: path, Username: "flag-user"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Username != "flag-user" {
		t.Errorf("Username: got %q, want flag value", cfg.Username)
	}
	if cfg.RoomID != "env-room" {
		t.Errorf("RoomID: got %q, want env value", cfg.RoomID)
	}
	if cfg.ServerURL != "ws://file.example:9000" {
		t.Errorf("ServerURL: got %q, want file value", cfg.ServerURL)
	}
	if len(cfg.STUNServers) != 2 || cfg.STUNServers[1] != "stun:b.example" {
		t.Errorf("STUNServers: got %v, want env list", cfg.STUNServers)
	}
	if cfg.NegotiationTimeout != 5*time.Second {
		t.Errorf("NegotiationTimeout: got %v, want 5s", cfg.NegotiationTimeout)
	}
	if cfg.ListenAddr != ":9999" || cfg.MaxRoomPeers != 3 {
		t.Errorf("relay: got %q/%d", cfg.ListenAddr, cfg.MaxRoomPeers)
	}
}

func TestLoadNegativeTimeoutDisables(t *testing.T) {
	clearEnv(t)
	t.Setenv("MESHCALL_NEGOTIATION_TIMEOUT", "-1s")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.NegotiationTimeout >= 0 {
		t.Fatalf("NegotiationTimeout: got %v, want negative", cfg.NegotiationTimeout)
	}
}

func TestLoadNegativeMaxRoomPeersIsUnlimited(t *testing.T) {
	clearEnv(t)
	t.Setenv("MESHCALL_MAX_ROOM_PEERS", "-1")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxRoomPeers != -1 {
		t.Fatalf("MaxRoomPeers: got %d, want -1", cfg.MaxRoomPeers)
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("server_url = "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(Options{ConfigFile: path}); err == nil {
		t.Fatal("Load accepted an invalid TOML file")
	}
}

func TestNormalizeServerURL(t *testing.T) {
	testCases := []struct {
		server string
		want   string
	}{
		{"localhost:8080", "ws://localhost:8080/ws"},
		{"ws://localhost:8080/", "ws://localhost:8080/ws"},
		{"https://call.example.com/room?id=1", "wss://call.example.com/ws"},
	}
	for _, tc := range testCases {
		got, err := NormalizeServerURL(tc.server)
		if err != nil {
			t.Fatalf("NormalizeServerURL(%q) failed: %v", tc.server, err)
		}
		if got != tc.want {
			t.Errorf("NormalizeServerURL(%q) = %q, want %q", tc.server, got, tc.want)
		}
	}
}

func TestTURNServers(t *testing.T) {
	testCases := []struct {
		in   string
		want []string
	}{
		{"turn.example.com", []string{"turn:turn.example.com:3478?transport=udp", "turn:turn.example.com:3478?transport=tcp"}},
		{"turn:turn.example.com", []string{"turn:turn.example.com:3478?transport=udp", "turn:turn.example.com:3478?transport=tcp"}},
		{"turn:turn.example.com:3478", []string{"turn:turn.example.com:3478?transport=udp", "turn:turn.example.com:3478?transport=tcp"}},
		{"turn:10.0.0.1:3479?transport=tcp", []string{"turn:10.0.0.1:3479?transport=tcp"}},
		{"turns:turn.example.com", []string{"turns:turn.example.com:5349?transport=tcp"}},
		{"turn:[::1]", []string{"turn:[::1]:3478?transport=udp", "turn:[::1]:3478?transport=tcp"}},
	}
	for _, tc := range testCases {
		clearEnv(t)
		cfg, err := Load(Options{TURNServer: tc.in})
		if err != nil {
			t.Fatalf("Load(TURN %q) failed: %v", tc.in, err)
		}
		got := cfg.GetTURNServers()
		if len(got) != len(tc.want) {
			t.Fatalf("GetTURNServers(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("GetTURNServers(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestLoadRejectsBadTURNServer(t *testing.T) {
	for _, in := range []string{
		"turn:turn.example.com:3478:3478",
		"turn:turn.example.com:abc",
		"https://turn.example.com",
		"turn:turn.example.com?transport=quic",
		"turn:",
	} {
		clearEnv(t)
		if _, err := Load(Options{TURNServer: in}); err == nil {
			t.Errorf("Load accepted TURN server %q", in)
		}
	}
}

func TestNormalizeServerURLRejectsScheme(t *testing.T) {
	if _, err := NormalizeServerURL("ftp://example.com"); err == nil {
		t.Fatal("NormalizeServerURL accepted ftp scheme")
	}
}

// Package config resolves the settings shared by the call client and the
// relay server.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values.
const (
	DefaultServerURL          = "ws://localhost:8080"
	DefaultSTUN               = "stun:stun.l.google.com:19302"
	DefaultListenAddr         = ":8080"
	DefaultMaxRoomPeers       = 8
	DefaultNegotiationTimeout = 30 * time.Second
)

// Config stores all parameters for one meshcall process.
type Config struct {
	// Client side.
	ServerURL string // ws(s)://host[:port], the /ws path is appended when dialing
	RoomID    string
	Username  string

	VideoFile string // IVF capture source
	AudioFile string // Ogg/Opus capture source
	RecordDir string // when set, remote tracks are written here

	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string

	NegotiationTimeout time.Duration

	// Relay side.
	ListenAddr   string
	MaxRoomPeers int

	Debug bool
}

// Options for loading config with CLI flag overrides. Zero values mean
// "not set on the command line".
type Options struct {
	ConfigFile string

	ServerURL   string
	RoomID      string
	Username    string
	VideoFile   string
	AudioFile   string
	RecordDir   string
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string

	NegotiationTimeout time.Duration

	ListenAddr   string
	MaxRoomPeers int

	Debug bool
}

// fileConfig mirrors the optional TOML file.
//
//	server_url = "wss://call.example.com"
//	stun = ["stun:stun.l.google.com:19302"]
//	negotiation_timeout = "20s"
//
//	[relay]
//	listen = ":8080"
//	max_room_peers = 8
type fileConfig struct {
	ServerURL          string   `toml:"server_url"`
	Room               string   `toml:"room"`
	Username           string   `toml:"username"`
	Video              string   `toml:"video"`
	Audio              string   `toml:"audio"`
	RecordDir          string   `toml:"record_dir"`
	STUN               []string `toml:"stun"`
	TURN               string   `toml:"turn"`
	TURNUser           string   `toml:"turn_user"`
	TURNPass           string   `toml:"turn_pass"`
	NegotiationTimeout string   `toml:"negotiation_timeout"`
	Debug              bool     `toml:"debug"`

	Relay struct {
		Listen       string `toml:"listen"`
		MaxRoomPeers int    `toml:"max_room_peers"`
	} `toml:"relay"`
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (MESHCALL_*)
// 3. TOML config file (Options.ConfigFile or MESHCALL_CONFIG)
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	path := pick(opts.ConfigFile, os.Getenv("MESHCALL_CONFIG"))

	var file fileConfig
	if path != "" {
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	fileTimeout := time.Duration(0)
	if file.NegotiationTimeout != "" {
		d, err := time.ParseDuration(file.NegotiationTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid negotiation_timeout %q: %w", file.NegotiationTimeout, err)
		}
		fileTimeout = d
	}

	envTimeout, err := envDuration("MESHCALL_NEGOTIATION_TIMEOUT")
	if err != nil {
		return nil, err
	}
	envPeers, err := envInt("MESHCALL_MAX_ROOM_PEERS")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerURL: pick(opts.ServerURL, os.Getenv("MESHCALL_SERVER"), file.ServerURL, DefaultServerURL),
		RoomID:    pick(opts.RoomID, os.Getenv("MESHCALL_ROOM"), file.Room),
		Username:  pick(opts.Username, os.Getenv("MESHCALL_USERNAME"), file.Username),
		VideoFile: pick(opts.VideoFile, os.Getenv("MESHCALL_VIDEO"), file.Video),
		AudioFile: pick(opts.AudioFile, os.Getenv("MESHCALL_AUDIO"), file.Audio),
		RecordDir: pick(opts.RecordDir, os.Getenv("MESHCALL_RECORD_DIR"), file.RecordDir),

		TURNServer: pick(opts.TURNServer, os.Getenv("MESHCALL_TURN"), file.TURN),
		TURNUser:   pick(opts.TURNUser, os.Getenv("MESHCALL_TURN_USER"), file.TURNUser),
		TURNPass:   pick(opts.TURNPass, os.Getenv("MESHCALL_TURN_PASS"), file.TURNPass),

		ListenAddr: pick(opts.ListenAddr, os.Getenv("MESHCALL_LISTEN"), file.Relay.Listen, DefaultListenAddr),

		Debug: opts.Debug || file.Debug || os.Getenv("MESHCALL_DEBUG") != "",
	}

	switch {
	case len(opts.STUNServers) > 0:
		cfg.STUNServers = opts.STUNServers
	case os.Getenv("MESHCALL_STUN") != "":
		cfg.STUNServers = splitList(os.Getenv("MESHCALL_STUN"))
	case len(file.STUN) > 0:
		cfg.STUNServers = file.STUN
	default:
		cfg.STUNServers = []string{DefaultSTUN}
	}

	if cfg.TURNServer != "" {
		if _, err := parseTURN(cfg.TURNServer); err != nil {
			return nil, err
		}
	}

	cfg.NegotiationTimeout = pickDuration(opts.NegotiationTimeout, envTimeout, fileTimeout, DefaultNegotiationTimeout)
	cfg.MaxRoomPeers = pickInt(opts.MaxRoomPeers, envPeers, file.Relay.MaxRoomPeers, DefaultMaxRoomPeers)

	return cfg, nil
}

// ---------------------------------------------------------------------------
// Derived values
// ---------------------------------------------------------------------------

// GetTURNServers returns TURN server URLs if configured. Without an explicit
// transport, turn: servers are offered over UDP and TCP, turns: over TCP.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	t, err := parseTURN(c.TURNServer)
	if err != nil {
		return nil
	}

	base := t.scheme + ":" + t.host
	switch {
	case t.transport != "":
		return []string{base + "?transport=" + t.transport}
	case t.scheme == "turns":
		return []string{base + "?transport=tcp"}
	default:
		return []string{base + "?transport=udp", base + "?transport=tcp"}
	}
}

type turnServer struct {
	scheme    string // turn or turns
	host      string // host:port
	transport string // udp, tcp or empty
}

// parseTURN accepts [turn:|turns:]host[:port][?transport=udp|tcp]. The port
// defaults to 3478 for turn: and 5349 for turns:.
func parseTURN(raw string) (turnServer, error) {
	t := turnServer{scheme: "turn"}
	rest := strings.TrimSpace(raw)

	switch lower := strings.ToLower(rest); {
	case strings.HasPrefix(lower, "turns:"):
		t.scheme, rest = "turns", rest[len("turns:"):]
	case strings.HasPrefix(lower, "turn:"):
		rest = rest[len("turn:"):]
	case strings.Contains(rest, "://"):
		return t, fmt.Errorf("invalid TURN server %q: want turn:host[:port]", raw)
	}

	hostport, query, _ := strings.Cut(rest, "?")
	if query != "" {
		values, err := url.ParseQuery(query)
		if err != nil {
			return t, fmt.Errorf("invalid TURN server %q: %w", raw, err)
		}
		switch tr := values.Get("transport"); tr {
		case "udp", "tcp":
			t.transport = tr
		default:
			return t, fmt.Errorf("invalid TURN server %q: transport must be udp or tcp", raw)
		}
	}

	defaultPort := "3478"
	if t.scheme == "turns" {
		defaultPort = "5349"
	}
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = strings.Trim(hostport, "[]"), defaultPort
	}
	bracketed := strings.HasPrefix(hostport, "[")
	if host == "" || (!bracketed && strings.ContainsAny(host, ":/ ")) {
		return t, fmt.Errorf("invalid TURN server %q: missing or malformed host", raw)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return t, fmt.Errorf("invalid TURN server %q: bad port %q", raw, port)
	}

	t.host = net.JoinHostPort(host, port)
	return t, nil
}

// NormalizeServerURL validates a raw relay address and returns its /ws
// endpoint. Bare hosts default to ws://, http(s) schemes are mapped to ws(s).
func NormalizeServerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL: %s", raw)
	}
	scheme := "ws"
	switch u.Scheme {
	case "wss", "https":
		scheme = "wss"
	case "ws", "http":
	default:
		return "", fmt.Errorf("unsupported server URL scheme: %s", u.Scheme)
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host), nil
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// pick returns the first non-empty value.
func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// pickInt returns the first non-zero value; a negative value is kept so
// callers can use it to lift a limit.
func pickInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// pickDuration returns the first non-zero value; a negative duration is kept
// so callers can use it to disable a timeout.
func pickDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func envInt(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDuration(key string) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

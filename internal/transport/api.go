package transport

import (
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshcall/internal/config"
)

// pliInterval is how often a keyframe is requested from every remote video
// track, so late joiners and recorders get a decodable picture quickly.
const pliInterval = 3 * time.Second

// API builds PeerConnections that share one media engine, interceptor chain
// and ICE configuration.
type API struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// Option customizes the underlying pion setting engine.
type Option func(*webrtc.SettingEngine)

// WithLoopback allows loopback host candidates. Used for same-host calls.
func WithLoopback() Option {
	return func(s *webrtc.SettingEngine) { s.SetIncludeLoopbackCandidate(true) }
}

// NewAPI registers the default codecs and interceptors plus an interval PLI
// generator, and derives the ICE server list from cfg.
func NewAPI(cfg *config.Config, opts ...Option) (*API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, newError("register codecs", "", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, newError("register interceptors", "", err)
	}

	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(pliInterval))
	if err != nil {
		return nil, newError("create pli interceptor", "", err)
	}
	i.Add(pli)

	s := webrtc.SettingEngine{}
	for _, opt := range opts {
		opt(&s)
	}

	return &API{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(i),
			webrtc.WithSettingEngine(s),
		),
		config: webrtc.Configuration{ICEServers: iceServers(cfg)},
	}, nil
}

// iceServers returns the STUN entry followed by TURN, if configured.
func iceServers(cfg *config.Config) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(cfg.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNServers})
	}
	if turn := cfg.GetTURNServers(); turn != nil {
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   cfg.TURNUser,
			Credential: cfg.TURNPass,
		})
	}
	return servers
}

package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/util"
)

// rtpReader is the read side of a remote track.
type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// recorder persists RTP packets into a container file.
type recorder interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// sink consumes one remote track: it counts packets for the tile and
// optionally records them.
type sink struct {
	kind    string
	mime    string
	started time.Time

	packets atomic.Uint64
	bytes   atomic.Uint64

	mu      sync.Mutex
	rec     recorder
	stopped bool
}

func newSink(kind, mime string) *sink {
	return &sink{kind: kind, mime: mime, started: time.Now()}
}

// record opens the container matching the codec under dir. Codecs without
// a container are played but not recorded.
func (s *sink) record(dir string, id protocol.ParticipantID) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	var (
		path string
		rec  recorder
		err  error
	)
	switch strings.ToLower(s.mime) {
	case strings.ToLower(webrtc.MimeTypeVP8):
		path = filepath.Join(dir, fileName(id, ".ivf"))
		rec, err = ivfwriter.New(path)
	case strings.ToLower(webrtc.MimeTypeOpus):
		path = filepath.Join(dir, fileName(id, ".ogg"))
		rec, err = oggwriter.New(path, 48000, 2)
	default:
		return "", fmt.Errorf("no container for %s", s.mime)
	}
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		rec.Close()
		return "", fmt.Errorf("track already stopped")
	}
	s.rec = rec
	return path, nil
}

// run reads until the track ends, then closes the recording.
func (s *sink) run(r rtpReader, log util.Logger) {
	defer s.stop()

	for {
		pkt, _, err := r.ReadRTP()
		if err != nil {
			log.Debug("%s track ended: %v", s.kind, err)
			return
		}

		n := pkt.MarshalSize()
		s.packets.Add(1)
		s.bytes.Add(uint64(n))
		util.Stats.AddMediaIn(n)

		s.mu.Lock()
		if s.rec != nil {
			if err := s.rec.WriteRTP(pkt); err != nil {
				log.Warning("recording %s stopped: %v", s.kind, err)
				s.rec.Close()
				s.rec = nil
			}
		}
		s.mu.Unlock()
	}
}

// stop closes the recording. Safe to call more than once.
func (s *sink) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.rec != nil {
		s.rec.Close()
		s.rec = nil
	}
}

// bitrate returns the average received bytes per second.
func (s *sink) bitrate(now time.Time) float64 {
	elapsed := now.Sub(s.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.bytes.Load()) / elapsed
}

// fileName keeps participant IDs from escaping the record directory.
func fileName(id protocol.ParticipantID, ext string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, string(id))
	if name == "" {
		name = "peer"
	}
	return name + ext
}

// Package media acquires the local capture session shared by every peer
// connection of a call.
package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshcall/internal/util"
)

// Constraints selects the capture sources. A source left empty is not
// captured; at least one must be set.
type Constraints struct {
	VideoFile string // IVF container (VP8, VP9 or AV1)
	AudioFile string // Ogg container with Opus pages
	Loop      bool   // restart sources at EOF instead of ending the track
}

// Stream is the local capture session. Its tracks are read-only after
// acquisition; every peer connection attaches its own sender to them.
type Stream struct {
	id     string
	tracks []webrtc.TrackLocal

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewStream wraps already-created tracks into a Stream with no capture pumps.
func NewStream(id string, tracks ...webrtc.TrackLocal) *Stream {
	return &Stream{id: id, tracks: tracks, cancel: func() {}}
}

// Acquire opens the requested sources, creates one sample track per source
// and starts pacing samples into them. Failures are *AcquisitionError.
func Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if c.VideoFile == "" && c.AudioFile == "" {
		return nil, &AcquisitionError{Err: ErrNoDevice}
	}

	const streamID = "meshcall-local"
	pumpCtx, cancel := context.WithCancel(ctx)
	s := &Stream{id: streamID, cancel: cancel}

	var sources []source
	if c.VideoFile != "" {
		src, err := openVideo(c.VideoFile, streamID)
		if err != nil {
			cancel()
			return nil, &AcquisitionError{Kind: "video", Source: c.VideoFile, Err: classify(err)}
		}
		sources = append(sources, src)
	}
	if c.AudioFile != "" {
		src, err := openAudio(c.AudioFile, streamID)
		if err != nil {
			cancel()
			for _, prev := range sources {
				prev.close()
			}
			return nil, &AcquisitionError{Kind: "audio", Source: c.AudioFile, Err: classify(err)}
		}
		sources = append(sources, src)
	}

	for _, src := range sources {
		s.tracks = append(s.tracks, src.track())
		util.LogInfo("Using %s source: %s (%s)", src.track().Kind(), src.label(), src.mimeType())

		s.wg.Add(1)
		go func(src source) {
			defer s.wg.Done()
			defer src.close()
			if err := src.pump(pumpCtx, c.Loop); err != nil && !errors.Is(err, context.Canceled) {
				util.LogWarning("capture source %s stopped: %v", src.label(), err)
			}
		}(src)
	}

	return s, nil
}

// ID returns the stream identifier advertised in SDP (msid).
func (s *Stream) ID() string { return s.id }

// Tracks returns the local tracks. Callers must not modify the slice.
func (s *Stream) Tracks() []webrtc.TrackLocal { return s.tracks }

// Close stops every capture pump and waits for them to exit. Safe to call
// multiple times.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// classify maps filesystem errors onto the capture error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return err
	}
}

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// Tuning constants.
const (
	oggPageDuration = 20 * time.Millisecond
	opusClockRate   = 48000
)

// source paces samples from a container file into one local track.
type source interface {
	track() *webrtc.TrackLocalStaticSample
	label() string
	mimeType() string
	pump(ctx context.Context, loop bool) error
	close()
}

// ---------------------------------------------------------------------------
// Video (IVF)
// ---------------------------------------------------------------------------

type videoSource struct {
	f      *os.File
	reader *ivfreader.IVFReader
	header *ivfreader.IVFFileHeader
	mime   string
	trk    *webrtc.TrackLocalStaticSample
}

// fourCCMime maps IVF FourCC codes onto RTP mime types.
var fourCCMime = map[string]string{
	"VP80": webrtc.MimeTypeVP8,
	"VP90": webrtc.MimeTypeVP9,
	"AV01": webrtc.MimeTypeAV1,
}

func openVideo(path, streamID string) (*videoSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read IVF header: %w", err)
	}

	if header.TimebaseNumerator == 0 {
		f.Close()
		return nil, fmt.Errorf("read IVF header: zero timebase numerator")
	}

	mime, ok := fourCCMime[header.FourCC]
	if !ok {
		f.Close()
		return nil, fmt.Errorf("%w: IVF FourCC %q", ErrUnsupportedCodec, header.FourCC)
	}

	trk, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video", streamID)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &videoSource{f: f, reader: reader, header: header, mime: mime, trk: trk}, nil
}

func (v *videoSource) track() *webrtc.TrackLocalStaticSample { return v.trk }
func (v *videoSource) label() string                          { return filepath.Base(v.f.Name()) }
func (v *videoSource) mimeType() string                       { return v.mime }
func (v *videoSource) close()                                 { v.f.Close() }

// frameDuration derives the pacing interval from the IVF timebase, which
// openVideo has checked to be non-zero.
func (v *videoSource) frameDuration() time.Duration {
	return time.Duration(float64(time.Second) * float64(v.header.TimebaseNumerator) / float64(v.header.TimebaseDenominator))
}

func (v *videoSource) pump(ctx context.Context, loop bool) error {
	interval := v.frameDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, _, err := v.reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if !loop {
				return nil
			}
			if err := v.rewind(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		if err := v.trk.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
			return err
		}
	}
}

func (v *videoSource) rewind() error {
	if _, err := v.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := ivfreader.NewWith(v.f)
	if err != nil {
		return err
	}
	v.reader = reader
	return nil
}

// ---------------------------------------------------------------------------
// Audio (Ogg/Opus)
// ---------------------------------------------------------------------------

type audioSource struct {
	f      *os.File
	reader *oggreader.OggReader
	trk    *webrtc.TrackLocalStaticSample

	lastGranule uint64
}

func openAudio(path, streamID string) (*audioSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read Ogg header: %w", err)
	}

	trk, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &audioSource{f: f, reader: reader, trk: trk}, nil
}

func (a *audioSource) track() *webrtc.TrackLocalStaticSample { return a.trk }
func (a *audioSource) label() string                          { return filepath.Base(a.f.Name()) }
func (a *audioSource) mimeType() string                       { return webrtc.MimeTypeOpus }
func (a *audioSource) close()                                 { a.f.Close() }

func (a *audioSource) pump(ctx context.Context, loop bool) error {
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		page, header, err := a.reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if !loop {
				return nil
			}
			if err := a.rewind(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		// Granule positions count 48kHz samples since the stream start.
		samples := header.GranulePosition - a.lastGranule
		a.lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples) / opusClockRate * float64(time.Second))

		if err := a.trk.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
	}
}

func (a *audioSource) rewind() error {
	if _, err := a.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := oggreader.NewWith(a.f)
	if err != nil {
		return err
	}
	a.reader = reader
	a.lastGranule = 0
	return nil
}

package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/zaf/g711"
)

// Capturer acquires the local audio stream once, before any session
// exists. A failed capture is not retried.
type Capturer interface {
	Capture(ctx context.Context) (*LocalStream, error)
}

// SourceCapturer captures from a PCM file when Path is set, otherwise from
// a synthetic tone when ToneHz is positive.
type SourceCapturer struct {
	Path   string
	ToneHz float64
	Logger *slog.Logger
}

func (c SourceCapturer) Capture(ctx context.Context) (*LocalStream, error) {
	var src Source
	switch {
	case c.Path != "":
		f, err := OpenPCMFile(c.Path)
		if err != nil {
			return nil, fmt.Errorf("open audio: %w", err)
		}
		src = f
	case c.ToneHz > 0:
		src = NewTone(c.ToneHz)
	default:
		return nil, ErrNoSource
	}
	return NewLocalStream(src, c.Logger)
}

// LocalStream paces a Source into a PCMU track. The track is shared by
// every session; pion fans it out to each bound connection.
type LocalStream struct {
	Track *webrtc.TrackLocalStaticSample

	src    Source
	logger *slog.Logger
}

// NewLocalStream wraps src in a new PCMU track.
func NewLocalStream(src Source, logger *slog.Logger) (*LocalStream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypePCMU,
		ClockRate: SampleRate,
		Channels:  1,
	}, "audio", "solfa")
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	return &LocalStream{Track: track, src: src, logger: logger}, nil
}

// Run writes one frame every FrameDuration until ctx is done or the
// source fails.
func (s *LocalStream) Run(ctx context.Context) error {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	pcm := make([]int16, FrameSamples)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := s.src.ReadSamples(pcm); err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
		if err := s.Track.WriteSample(pionmedia.Sample{
			Data:     EncodeFrame(pcm),
			Duration: FrameDuration,
		}); err != nil {
			s.logger.Debug("write audio sample", "err", err)
		}
	}
}

// Close releases the source.
func (s *LocalStream) Close() error {
	return s.src.Close()
}

// EncodeFrame converts PCM to G.711 mu-law.
func EncodeFrame(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, v := range pcm {
		out[i] = g711.EncodeUlawFrame(v)
	}
	return out
}

// DecodeFrame converts G.711 mu-law to PCM, reusing dst when it is large
// enough.
func DecodeFrame(dst []int16, ulaw []byte) []int16 {
	if cap(dst) < len(ulaw) {
		dst = make([]int16, len(ulaw))
	}
	dst = dst[:len(ulaw)]
	for i, b := range ulaw {
		dst[i] = g711.DecodeUlawFrame(b)
	}
	return dst
}

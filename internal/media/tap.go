package media

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pion/webrtc/v4"
)

var ErrUnsupportedCodec = errors.New("unsupported remote audio codec")

// Tap decodes a remote PCMU track and hands each packet's samples to sink
// until the track ends. It returns nil on a clean end of stream.
func Tap(track *webrtc.TrackRemote, sink func([]int16)) error {
	if mime := track.Codec().MimeType; !strings.EqualFold(mime, webrtc.MimeTypePCMU) {
		return fmt.Errorf("%w: %s", ErrUnsupportedCodec, mime)
	}

	var pcm []int16
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		pcm = DecodeFrame(pcm, pkt.Payload)
		sink(pcm)
	}
}

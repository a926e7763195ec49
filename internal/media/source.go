// Package media produces the local audio track every session shares and
// taps remote tracks back into PCM.
package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"time"
)

const (
	// SampleRate is the G.711 clock rate.
	SampleRate = 8000

	// FrameDuration is the packetization interval.
	FrameDuration = 20 * time.Millisecond

	// FrameSamples is the number of samples per frame.
	FrameSamples = SampleRate * int(FrameDuration/time.Millisecond) / 1000
)

// ErrNoSource means no audio source was configured.
var ErrNoSource = errors.New("no audio source configured")

// Source yields mono PCM at SampleRate.
type Source interface {
	// ReadSamples fills dst completely or returns an error.
	ReadSamples(dst []int16) error
	Close() error
}

// PCMFile reads raw 16-bit little-endian mono PCM and loops at the end.
type PCMFile struct {
	f   *os.File
	buf []byte
}

// OpenPCMFile opens path for looping playback.
func OpenPCMFile(path string) (*PCMFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() < 2 {
		f.Close()
		return nil, fmt.Errorf("%s: no samples", path)
	}
	return &PCMFile{f: f}, nil
}

func (p *PCMFile) ReadSamples(dst []int16) error {
	need := len(dst) * 2
	if cap(p.buf) < need {
		p.buf = make([]byte, need)
	}
	buf := p.buf[:need]

	for off := 0; off < need; {
		n, err := p.f.Read(buf[off:])
		off += n
		if errors.Is(err, io.EOF) {
			if _, err := p.f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return nil
}

func (p *PCMFile) Close() error {
	return p.f.Close()
}

// Tone synthesizes a voice-like test signal: a tone over a little noise,
// alternating between talking and pausing.
type Tone struct {
	Freq  float64
	Talk  time.Duration
	Pause time.Duration

	n   int
	rng *rand.Rand
}

// NewTone returns a tone source that talks for 2s and pauses for 1s.
func NewTone(freq float64) *Tone {
	return &Tone{
		Freq:  freq,
		Talk:  2 * time.Second,
		Pause: time.Second,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (t *Tone) ReadSamples(dst []int16) error {
	period := int((t.Talk + t.Pause).Seconds() * SampleRate)
	talk := int(t.Talk.Seconds() * SampleRate)
	for i := range dst {
		v := 0.0
		if period == 0 || t.n%period < talk {
			v = 0.3*math.Sin(2*math.Pi*t.Freq*float64(t.n)/SampleRate) + 0.05*(t.rng.Float64()*2-1)
		}
		dst[i] = int16(v * math.MaxInt16)
		t.n++
	}
	return nil
}

func (t *Tone) Close() error { return nil }

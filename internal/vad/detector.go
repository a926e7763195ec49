// Package vad classifies a remote audio stream as speaking or silent from
// the mean spectral power of the speech band.
package vad

import (
	"context"
	"math"
	"time"
)

// Defaults for Options.
const (
	DefaultThreshold     = -90.0
	DefaultHistory       = 5
	DefaultPowerInterval = time.Second
	DefaultTickInterval  = 16 * time.Millisecond
	SpeechLow            = 300.0
	SpeechHigh           = 3400.0
)

// Kind is the type of a detector event.
type Kind int

const (
	Active Kind = iota
	Inactive
	Power
)

func (k Kind) String() string {
	switch k {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case Power:
		return "power"
	}
	return "unknown"
}

// Event is emitted on transitions and, while active, with the current
// power.
type Event struct {
	Kind  Kind
	Power float64
}

// Spectrum is what the detector samples on every tick.
type Spectrum interface {
	FloatFrequencyData(dst []float64) []float64
	SampleRate() float64
	BinCount() int
}

type Options struct {
	Threshold     float64
	History       int
	PowerInterval time.Duration
	Now           func() time.Time
}

// Detector turns spectra into activity events. Tick is not safe for
// concurrent use; Run calls it from one goroutine.
type Detector struct {
	src  Spectrum
	emit func(Event)

	threshold     float64
	powerInterval time.Duration
	now           func() time.Time

	low, high int
	spectrum  []float64

	history []float64
	filled  int
	next    int

	active    bool
	lastPower time.Time
}

func NewDetector(src Spectrum, emit func(Event), opts Options) *Detector {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}
	if opts.PowerInterval <= 0 {
		opts.PowerInterval = DefaultPowerInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	d := &Detector{
		src:           src,
		emit:          emit,
		threshold:     opts.Threshold,
		powerInterval: opts.PowerInterval,
		now:           opts.Now,
		history:       make([]float64, opts.History),
	}
	d.low = bucket(SpeechLow, src.SampleRate(), src.BinCount())
	d.high = bucket(SpeechHigh, src.SampleRate(), src.BinCount())
	return d
}

// bucket maps a frequency to its bin: round(freq / nyquist * bins),
// clamped to the spectrum.
func bucket(freq, sampleRate float64, bins int) int {
	nyquist := sampleRate / 2
	b := int(math.Round(freq / nyquist * float64(bins)))
	return max(0, min(b, bins-1))
}

// Active reports the current classification.
func (d *Detector) Active() bool { return d.active }

// Tick samples the spectrum once.
func (d *Detector) Tick() {
	d.spectrum = d.src.FloatFrequencyData(d.spectrum)
	d.observe(bandPower(d.spectrum, d.low, d.high))
}

func bandPower(spectrum []float64, low, high int) float64 {
	if high < low || low >= len(spectrum) {
		return math.Inf(-1)
	}
	sum := 0.0
	for _, v := range spectrum[low : high+1] {
		sum += v
	}
	return sum / float64(high-low+1)
}

// observe pushes one band power sample and classifies the history mean.
func (d *Detector) observe(power float64) {
	d.history[d.next] = power
	d.next = (d.next + 1) % len(d.history)
	if d.filled < len(d.history) {
		d.filled++
	}

	sum := 0.0
	for _, v := range d.history[:d.filled] {
		sum += v
	}
	mean := sum / float64(d.filled)
	now := d.now()

	switch speaking := mean > d.threshold; {
	case speaking && !d.active:
		d.active = true
		d.lastPower = now
		d.emit(Event{Kind: Active, Power: mean})
	case !speaking && d.active:
		d.active = false
		d.emit(Event{Kind: Inactive, Power: mean})
	case speaking && now.Sub(d.lastPower) >= d.powerInterval:
		d.lastPower = now
		d.emit(Event{Kind: Power, Power: mean})
	}
}

// Run ticks every interval until ctx is done. A zero interval uses
// DefaultTickInterval.
func (d *Detector) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

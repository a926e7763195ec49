package vad

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// WindowSize is the analysis window in samples.
	WindowSize = 2048

	// Smoothing blends each spectrum with the previous one.
	Smoothing = 0.8
)

// Analyser keeps the most recent WindowSize samples of a stream and
// produces their smoothed magnitude spectrum in decibels, the way a
// browser AnalyserNode does.
type Analyser struct {
	sampleRate float64

	mu       sync.Mutex
	samples  []float64 // ring of the latest WindowSize samples
	next     int
	fft      *fourier.FFT
	frame    []float64
	coeffs   []complex128
	smoothed []float64
}

func NewAnalyser(sampleRate float64) *Analyser {
	return &Analyser{
		sampleRate: sampleRate,
		samples:    make([]float64, WindowSize),
		fft:        fourier.NewFFT(WindowSize),
		frame:      make([]float64, WindowSize),
		smoothed:   make([]float64, WindowSize/2),
	}
}

func (a *Analyser) SampleRate() float64 { return a.sampleRate }

// BinCount is the number of frequency bins, half the window.
func (a *Analyser) BinCount() int { return WindowSize / 2 }

// WritePCM16 feeds signed 16-bit samples.
func (a *Analyser) WritePCM16(samples []int16) {
	a.mu.Lock()
	for _, s := range samples {
		a.samples[a.next] = float64(s) / 32768
		a.next = (a.next + 1) % WindowSize
	}
	a.mu.Unlock()
}

// FloatFrequencyData fills dst with the current spectrum in dB, one value
// per bin, and returns it. Silent bins are -Inf.
func (a *Analyser) FloatFrequencyData(dst []float64) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Oldest sample first.
	n := copy(a.frame, a.samples[a.next:])
	copy(a.frame[n:], a.samples[:a.next])
	window.Blackman(a.frame)

	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	bins := a.BinCount()
	if cap(dst) < bins {
		dst = make([]float64, bins)
	}
	dst = dst[:bins]
	for k := 0; k < bins; k++ {
		mag := cmplx.Abs(a.coeffs[k]) / WindowSize
		a.smoothed[k] = Smoothing*a.smoothed[k] + (1-Smoothing)*mag
		dst[k] = 20 * math.Log10(a.smoothed[k])
	}
	return dst
}

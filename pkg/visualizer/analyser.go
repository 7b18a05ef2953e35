package visualizer

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Analyser defaults, matching a browser AnalyserNode with fftSize 256.
const (
	DefaultFFTSize   = 256
	DefaultSmoothing = 0.8
	DefaultMinDB     = -100.0
	DefaultMaxDB     = -30.0
)

// Analyser computes smoothed byte magnitudes of the most recent fftSize
// samples written to it.
type Analyser struct {
	fftSize   int
	smoothing float64
	minDB     float64
	maxDB     float64

	mu       sync.Mutex
	fft      *fourier.FFT
	ring     []float64
	pos      int
	frame    []float64
	coeffs   []complex128
	smoothed []float64
}

// AnalyserOption configures an Analyser.
type AnalyserOption func(*Analyser)

// WithFFTSize sets the window length. It must be a power of two.
func WithFFTSize(n int) AnalyserOption {
	return func(a *Analyser) {
		if n >= 32 && n&(n-1) == 0 {
			a.fftSize = n
		}
	}
}

// WithSmoothing sets the time constant between frames, 0 to 1.
func WithSmoothing(tau float64) AnalyserOption {
	return func(a *Analyser) { a.smoothing = math.Max(0, math.Min(1, tau)) }
}

// WithDecibelRange sets the range mapped onto 0..255.
func WithDecibelRange(minDB, maxDB float64) AnalyserOption {
	return func(a *Analyser) {
		if minDB < maxDB {
			a.minDB, a.maxDB = minDB, maxDB
		}
	}
}

// NewAnalyser creates an analyser holding silence.
func NewAnalyser(opts ...AnalyserOption) *Analyser {
	a := &Analyser{
		fftSize:   DefaultFFTSize,
		smoothing: DefaultSmoothing,
		minDB:     DefaultMinDB,
		maxDB:     DefaultMaxDB,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.fft = fourier.NewFFT(a.fftSize)
	a.ring = make([]float64, a.fftSize)
	a.frame = make([]float64, a.fftSize)
	a.coeffs = make([]complex128, a.fftSize/2+1)
	a.smoothed = make([]float64, a.fftSize/2)
	return a
}

// FrequencyBinCount returns the number of values ByteFrequencyData fills.
func (a *Analyser) FrequencyBinCount() int { return a.fftSize / 2 }

// Write appends PCM16 samples to the time-domain window.
func (a *Analyser) Write(samples []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.pos] = float64(s) / 32768
		a.pos = (a.pos + 1) % a.fftSize
	}
}

// Reset returns the analyser to silence.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.pos = 0
}

// ByteFrequencyData fills dst with the current spectrum scaled to 0..255
// and returns it. dst is grown to FrequencyBinCount if needed. Each call
// advances the smoothing by one frame.
func (a *Analyser) ByteFrequencyData(dst []byte) []byte {
	n := a.FrequencyBinCount()
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	a.mu.Lock()
	defer a.mu.Unlock()

	// Oldest sample first.
	copy(a.frame, a.ring[a.pos:])
	copy(a.frame[a.fftSize-a.pos:], a.ring[:a.pos])
	window.Blackman(a.frame)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	scale := 255 / (a.maxDB - a.minDB)
	for k := range n {
		mag := cmplx.Abs(a.coeffs[k]) / float64(a.fftSize)
		v := a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		a.smoothed[k] = v

		if v <= 0 {
			dst[k] = 0
			continue
		}
		db := 20 * math.Log10(v)
		dst[k] = byte(math.Max(0, math.Min(255, math.Floor(scale*(db-a.minDB)))))
	}
	return dst
}

package visualizer

import (
	"math"
	"testing"
)

func tone(n, bin, fftSize int, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*float64(bin)*float64(i)/float64(fftSize)))
	}
	return out
}

func TestAnalyser_Silence(t *testing.T) {
	a := NewAnalyser()
	if a.FrequencyBinCount() != 128 {
		t.Fatalf("FrequencyBinCount = %d, want 128", a.FrequencyBinCount())
	}
	a.Write(make([]int16, 512))
	data := a.ByteFrequencyData(nil)
	if len(data) != 128 {
		t.Fatalf("len = %d, want 128", len(data))
	}
	for i, v := range data {
		if v != 0 {
			t.Fatalf("bin %d = %d, want 0", i, v)
		}
	}
}

func TestAnalyser_TonePeaksAtBin(t *testing.T) {
	tests := []struct {
		name string
		bin  int
	}{
		{"low", 4},
		{"1kHz at 16kHz", 16},
		{"high", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyser()
			// Quiet enough that the main lobe does not clip at maxDB.
			a.Write(tone(DefaultFFTSize, tt.bin, DefaultFFTSize, 0.05))

			var data []byte
			for range 20 {
				data = a.ByteFrequencyData(data)
			}
			peak := 0
			for i, v := range data {
				if v > data[peak] {
					peak = i
				}
			}
			if peak != tt.bin {
				t.Errorf("peak at bin %d, want %d", peak, tt.bin)
			}
			if data[peak] <= data[peak-1] || data[peak] <= data[peak+1] {
				t.Errorf("peak %d not above neighbours %d, %d", data[peak], data[peak-1], data[peak+1])
			}
		})
	}
}

func TestAnalyser_Smoothing(t *testing.T) {
	a := NewAnalyser()
	a.Write(tone(DefaultFFTSize, 16, DefaultFFTSize, 0.5))
	first := a.ByteFrequencyData(nil)[16]

	a.Write(make([]int16, DefaultFFTSize))
	decayed := a.ByteFrequencyData(nil)[16]
	if decayed == 0 || decayed >= first+20 {
		t.Errorf("after silence bin 16 = %d (first %d), want a smoothed tail", decayed, first)
	}

	unsmoothed := NewAnalyser(WithSmoothing(0))
	unsmoothed.Write(tone(DefaultFFTSize, 16, DefaultFFTSize, 0.5))
	unsmoothed.ByteFrequencyData(nil)
	unsmoothed.Write(make([]int16, DefaultFFTSize))
	if v := unsmoothed.ByteFrequencyData(nil)[16]; v != 0 {
		t.Errorf("without smoothing bin 16 = %d, want 0", v)
	}
}

func TestAnalyser_Reset(t *testing.T) {
	a := NewAnalyser(WithFFTSize(64))
	if a.FrequencyBinCount() != 32 {
		t.Fatalf("FrequencyBinCount = %d, want 32", a.FrequencyBinCount())
	}
	a.Write(tone(64, 8, 64, 0.5))
	a.ByteFrequencyData(nil)
	a.Reset()
	for i, v := range a.ByteFrequencyData(nil) {
		if v != 0 {
			t.Fatalf("bin %d = %d after Reset", i, v)
		}
	}
}

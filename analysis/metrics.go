// Package analysis measures rendered audio: levels, decay, the dominant
// partial, and the distance between a render and a reference take.
package analysis

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/window"
	algofft "github.com/cwbudde/algo-fft"
)

// Level floor used for silent signals.
const SilenceDB = -120.0

// Metrics summarizes one mono signal.
type Metrics struct {
	SampleRate int     `json:"sample_rate"`
	Frames     int     `json:"frames"`
	PeakDBFS   float64 `json:"peak_dbfs"`
	RMSDBFS    float64 `json:"rms_dbfs"`
	DCOffset   float64 `json:"dc_offset"`
	DominantHz float64 `json:"dominant_hz"`
	// DecayDBPerS is the post-peak envelope slope, NaN when the signal
	// does not decay long enough to fit one.
	DecayDBPerS float64 `json:"decay_db_per_s"`
}

// Measure computes Metrics for x.
func Measure(x []float64, sampleRate int) Metrics {
	m := Metrics{
		SampleRate:  sampleRate,
		Frames:      len(x),
		PeakDBFS:    SilenceDB,
		RMSDBFS:     SilenceDB,
		DecayDBPerS: math.NaN(),
	}
	if len(x) == 0 {
		return m
	}
	var peak, sum float64
	for _, v := range x {
		peak = math.Max(peak, math.Abs(v))
		sum += v
	}
	m.PeakDBFS = linToDB(peak)
	m.RMSDBFS = linToDB(RMS(x))
	m.DCOffset = sum / float64(len(x))
	if sampleRate <= 0 || peak < 1e-6 {
		return m
	}
	m.DominantHz = DominantFrequency(x, sampleRate)
	m.DecayDBPerS = decaySlopeDBPerS(rmsEnvelope(x, 256, 128), 128.0/float64(sampleRate))
	return m
}

// RMS returns the root mean square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// RMS32 is RMS over interleaved float32 frames, as produced by a render.
func RMS32(interleaved []float32) float64 {
	if len(interleaved) == 0 {
		return 0
	}
	var sum float64
	for _, s := range interleaved {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(interleaved)))
}

// Mono averages interleaved frames down to one channel.
func Mono(interleaved []float32, channels int) []float64 {
	if channels < 1 {
		channels = 1
	}
	n := len(interleaved) / channels
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(interleaved[i*channels+c])
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// Spectrum returns the Hann-windowed magnitude spectrum of the first
// power-of-two frames of x, bins 0..N/2.
func Spectrum(x []float64, maxSize int) []float64 {
	n := 1
	for n*2 <= len(x) && n*2 <= maxSize {
		n *= 2
	}
	if n < 16 {
		return nil
	}
	coeffs := window.Generate(window.TypeHann, n)
	in := make([]complex128, n)
	for i := 0; i < n; i++ {
		in[i] = complex(x[i]*coeffs[i], 0)
	}
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil
	}
	out := make([]complex128, n)
	if err := plan.Forward(out, in); err != nil {
		return nil
	}
	mags := make([]float64, n/2+1)
	for k := range mags {
		mags[k] = math.Hypot(real(out[k]), imag(out[k]))
	}
	return mags
}

// DominantFrequency returns the frequency of the strongest non-DC bin,
// refined by parabolic interpolation. Zero for silence.
func DominantFrequency(x []float64, sampleRate int) float64 {
	mags := Spectrum(x, 1<<16)
	if len(mags) < 3 {
		return 0
	}
	best := 1
	for k := 2; k < len(mags)-1; k++ {
		if mags[k] > mags[best] {
			best = k
		}
	}
	if mags[best] <= 1e-9 {
		return 0
	}
	a, b, c := mags[best-1], mags[best], mags[best+1]
	delta := 0.0
	if den := a - 2*b + c; math.Abs(den) > 1e-12 {
		delta = 0.5 * (a - c) / den
	}
	size := 2 * (len(mags) - 1)
	return (float64(best) + delta) * float64(sampleRate) / float64(size)
}

func rmsEnvelope(x []float64, frame int, hop int) []float64 {
	if frame <= 0 || hop <= 0 || len(x) < frame {
		return nil
	}
	n := 1 + (len(x)-frame)/hop
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i * hop
		out[i] = RMS(x[start : start+frame])
	}
	return out
}

func decaySlopeDBPerS(env []float64, hopSec float64) float64 {
	if len(env) < 8 || hopSec <= 0 {
		return math.NaN()
	}
	peak := math.Inf(-1)
	peakIdx := 0
	for i, v := range env {
		if db := linToDB(v); db > peak {
			peak = db
			peakIdx = i
		}
	}
	start := peakIdx + 1
	if start >= len(env)-4 {
		return math.NaN()
	}

	// Fit down to 60 dB below the peak.
	end := len(env)
	for i := start; i < len(env); i++ {
		if linToDB(env[i]) < peak-60 {
			end = i
			break
		}
	}
	if end-start < 6 {
		return math.NaN()
	}

	var sx, sy, sxx, sxy float64
	n := float64(end - start)
	for i := start; i < end; i++ {
		x := float64(i-start) * hopSec
		y := linToDB(env[i])
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	if math.Abs(den) < 1e-12 {
		return math.NaN()
	}
	return (n*sxy - sx*sy) / den
}

func linToDB(x float64) float64 {
	if x < 1e-6 {
		return SilenceDB
	}
	return 20.0 * math.Log10(x)
}

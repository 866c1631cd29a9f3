package analysis

import (
	"math"
	"math/cmplx"
	"slices"

	"github.com/cwbudde/algo-dsp/dsp/core"
	algofft "github.com/cwbudde/algo-fft"
)

// Distance compares a render against a reference take.
type Distance struct {
	SampleRate    int `json:"sample_rate"`
	AlignedFrames int `json:"aligned_frames"`
	LagSamples    int `json:"lag_samples"`

	TimeRMSE       float64 `json:"time_rmse"`
	EnvelopeRMSEDB float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB float64 `json:"spectral_rmse_db"`

	// Score is a weighted combination in [0,1]; 0 means identical.
	Score float64 `json:"score"`
}

// Compare aligns candidate to reference by cross-correlation and reports
// their time, envelope and spectral distance. Both are RMS-normalized first,
// so only shape is compared, not level.
func Compare(reference []float64, candidate []float64, sampleRate int) Distance {
	d := Distance{SampleRate: sampleRate, Score: 1}
	if sampleRate <= 0 {
		return d
	}
	ref := withRMS(onset(reference), 0.1)
	cand := withRMS(onset(candidate), 0.1)
	if len(ref) < 2 || len(cand) < 2 {
		return d
	}

	maxLag := min(sampleRate/2, len(ref)-1, len(cand)-1)
	d.LagSamples = correlationLag(ref, cand, max(maxLag, 1))
	ref, cand = overlap(ref, cand, d.LagSamples)
	n := len(ref)
	if n < 256 {
		return d
	}
	d.AlignedFrames = n

	var sum float64
	for i := range ref {
		e := ref[i] - cand[i]
		sum += e * e
	}
	d.TimeRMSE = math.Sqrt(sum / float64(n))

	refEnv := rmsEnvelope(ref, 256, 128)
	candEnv := rmsEnvelope(cand, 256, 128)
	diff := make([]float64, min(len(refEnv), len(candEnv)))
	for i := range diff {
		diff[i] = linToDB(refEnv[i]) - linToDB(candEnv[i])
	}
	d.EnvelopeRMSEDB = RMS(diff)

	refSpec := Spectrum(ref, 4096)
	candSpec := Spectrum(cand, 4096)
	if len(refSpec) > 2 && len(refSpec) == len(candSpec) {
		diff = diff[:0]
		for k := 1; k < len(refSpec)-1; k++ {
			diff = append(diff, linToDB(refSpec[k])-linToDB(candSpec[k]))
		}
		d.SpectralRMSEDB = RMS(diff)
	}

	d.Score = core.Clamp(0.35*core.Clamp(d.TimeRMSE/0.25, 0, 1)+
		0.30*core.Clamp(d.EnvelopeRMSEDB/30, 0, 1)+
		0.35*core.Clamp(d.SpectralRMSEDB/30, 0, 1), 0, 1)
	return d
}

// onset drops everything before the first sample within 60 dB of the peak.
// Silence yields nil.
func onset(x []float64) []float64 {
	var peak float64
	for _, v := range x {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak < 1e-6 {
		return nil
	}
	floor := peak * 1e-3
	return x[slices.IndexFunc(x, func(v float64) bool { return math.Abs(v) > floor }):]
}

func withRMS(x []float64, target float64) []float64 {
	out := slices.Clone(x)
	if r := RMS(x); r > 1e-12 {
		g := target / r
		for i := range out {
			out[i] *= g
		}
	}
	return out
}

// correlationLag returns the lag in [-maxLag, maxLag] maximizing
// sum ref[i+lag]*cand[i], computed as one zero-padded FFT correlation.
func correlationLag(ref, cand []float64, maxLag int) int {
	n := 1
	for n < len(ref)+len(cand) {
		n *= 2
	}
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return 0
	}
	a := make([]complex128, n)
	b := make([]complex128, n)
	for i, v := range ref {
		a[i] = complex(v, 0)
	}
	for i, v := range cand {
		b[i] = complex(v, 0)
	}
	fa := make([]complex128, n)
	fb := make([]complex128, n)
	if plan.Forward(fa, a) != nil || plan.Forward(fb, b) != nil {
		return 0
	}
	for k := range fa {
		fa[k] *= cmplx.Conj(fb[k])
	}
	if plan.Inverse(a, fa) != nil {
		return 0
	}

	maxLag = min(maxLag, n/2-1)
	best, bestLag := math.Inf(-1), 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		// Negative lags wrap to the end of the circular correlation.
		if v := real(a[(lag+n)%n]); v > best {
			best, bestLag = v, lag
		}
	}
	return bestLag
}

// overlap shifts ref and cand by lag and cuts both to their common length.
func overlap(ref, cand []float64, lag int) ([]float64, []float64) {
	if lag > 0 {
		ref = ref[min(lag, len(ref)):]
	} else {
		cand = cand[min(-lag, len(cand)):]
	}
	n := min(len(ref), len(cand))
	return ref[:n], cand[:n]
}

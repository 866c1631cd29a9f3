package nodes

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Room controls the synthetic room impulse response used by fx.reverb.
type Room struct {
	DurationS  float64
	Seed       uint64
	EarlyCount int
	LateLevel  float64
	Brightness float64
	LowDecayS  float64
	HighDecayS float64
	FadeOutS   float64 // cosine fade at the end; 0 disables it

	NormalizePeak float64
}

// DefaultRoom returns a small, fairly dry room.
func DefaultRoom() Room {
	return Room{
		DurationS:     0.4,
		Seed:          1,
		EarlyCount:    24,
		LateLevel:     0.06,
		Brightness:    0.8,
		LowDecayS:     1.0,
		HighDecayS:    0.2,
		FadeOutS:      0.01,
		NormalizePeak: 0.9,
	}
}

func (r Room) Validate() error {
	if r.DurationS <= 0 {
		return fmt.Errorf("duration must be > 0")
	}
	if r.EarlyCount < 0 {
		return fmt.Errorf("early count must be >= 0")
	}
	if r.LateLevel < 0 {
		return fmt.Errorf("late level must be >= 0")
	}
	if r.Brightness <= 0 {
		return fmt.Errorf("brightness must be > 0")
	}
	if r.LowDecayS <= 0 || r.HighDecayS <= 0 {
		return fmt.Errorf("decay seconds must be > 0")
	}
	if r.NormalizePeak <= 0 {
		return fmt.Errorf("normalize peak must be > 0")
	}
	return nil
}

// IR synthesizes a mono impulse response of early reflections followed by a
// two-band diffuse tail. The same Room and rate always give the same IR.
func (r Room) IR(sampleRate float64) ([]float32, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if sampleRate < 8000 {
		return nil, fmt.Errorf("sample rate too low: %g", sampleRate)
	}
	n := max(int(math.Round(r.DurationS*sampleRate)), 1)
	buf := make([]float64, n)
	rng := rand.New(rand.NewPCG(r.Seed, r.Seed^0x9e3779b97f4a7c15))

	// Early reflections in the 1-50 ms range.
	for i := 0; i < r.EarlyCount; i++ {
		t := 0.001 + 0.049*rng.Float64()
		idx := int(t * sampleRate)
		if idx <= 0 || idx >= n {
			continue
		}
		amp := (0.10 + 0.35*rng.Float64()) * math.Exp(-t*20.0)
		amp *= math.Pow(0.5+0.5*rng.Float64(), 1.0/r.Brightness)
		buf[idx] += amp
	}

	if r.LateLevel > 0 {
		air := max(0.3*(r.Brightness-0.3), 0)
		var lp, hp float64
		for i := 0; i < n; i++ {
			t := float64(i) / sampleRate
			low := math.Exp(-t / (0.75 * r.LowDecayS))
			high := math.Exp(-t / (0.75 * r.HighDecayS))
			x := rng.NormFloat64()
			lp = 0.985*lp + 0.015*x
			hp = 0.15*x - 0.15*hp
			buf[i] += r.LateLevel * (low*lp + air*high*hp)
		}
	}

	highpassDC(buf, 0.995)
	fadeOut(buf, int(math.Round(r.FadeOutS*sampleRate)))
	return normalizePeak(buf, r.NormalizePeak), nil
}

func highpassDC(x []float64, r float64) {
	var prevIn, prevOut float64
	for i := range x {
		y := x[i] - prevIn + r*prevOut
		prevIn = x[i]
		prevOut = y
		x[i] = y
	}
}

func fadeOut(buf []float64, n int) {
	n = min(n, len(buf))
	start := len(buf) - n
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n)
		buf[start+i] *= 0.5 * (1.0 + math.Cos(t*math.Pi))
	}
}

func normalizePeak(x []float64, target float64) []float32 {
	peak := 1e-12
	for _, v := range x {
		peak = math.Max(peak, math.Abs(v))
	}
	s := target / peak
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v * s)
	}
	return out
}

package param

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-dsp/dsp/core"
)

// Kind selects the denormalization curve of a parameter.
type Kind uint8

const (
	Number Kind = iota
	HzSlow
	HzFast
	HzWide
	Db
)

// ErrInvalidValue is returned when a literal cannot be parsed as a finite number.
var ErrInvalidValue = errors.New("invalid parameter value")

type curve struct {
	name     string
	min, max float64
	log2     bool
}

// Hz kinds are stored in the log2 domain so that a normalized sweep is
// perceptually even.
var curves = [...]curve{
	Number: {name: "Number", min: 0, max: 1},
	HzSlow: {name: "HzSlow", min: math.Log2(0.001), max: math.Log2(200), log2: true},
	HzFast: {name: "HzFast", min: math.Log2(20), max: math.Log2(22000), log2: true},
	HzWide: {name: "HzWide", min: math.Log2(0.001), max: math.Log2(22000), log2: true},
	Db:     {name: "Db", min: -120, max: 12},
}

// Kinds lists every parameter kind in declaration order.
func Kinds() []Kind {
	return []Kind{Number, HzSlow, HzFast, HzWide, Db}
}

func (k Kind) curve() curve {
	if int(k) >= len(curves) {
		return curves[Number]
	}
	return curves[k]
}

func (k Kind) String() string {
	if int(k) >= len(curves) {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return curves[k].name
}

// ParseKind resolves a kind by name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return Number, fmt.Errorf("unknown parameter kind %q", s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Range returns the engineering-unit bounds of the kind.
func (k Kind) Range() (min, max float64) {
	c := k.curve()
	if c.log2 {
		return math.Exp2(c.min), math.Exp2(c.max)
	}
	return c.min, c.max
}

// Denormalize maps n in [0,1] onto the kind's engineering range.
func (k Kind) Denormalize(n float64) float64 {
	c := k.curve()
	x := core.Clamp(n, 0, 1)*(c.max-c.min) + c.min
	if c.log2 {
		return math.Exp2(x)
	}
	return x
}

// Normalize is the inverse of Denormalize.
func (k Kind) Normalize(v float64) float64 {
	c := k.curve()
	x := v
	if c.log2 {
		if v <= 0 {
			return 0
		}
		x = math.Log2(v)
	}
	return core.Clamp((x-c.min)/(c.max-c.min), 0, 1)
}

// Clamp limits an engineering value to the kind's range.
func (k Kind) Clamp(v float64) float64 {
	lo, hi := k.Range()
	return core.Clamp(v, lo, hi)
}

// Parse reads a display literal such as "440.0" or "-6.0". Literals are
// already in engineering units, so the result is only range-limited.
func (k Kind) Parse(literal string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(literal), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, literal)
	}
	return k.Clamp(v), nil
}

// Format renders an engineering value the way patch files store it.
func Format(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// ToAmp converts decibels to linear amplitude.
func ToAmp(db float64) float64 {
	return core.DBToLinear(db)
}

// ToDB converts linear amplitude to decibels, flooring silence at -120 dB.
func ToDB(amp float64) float64 {
	if amp <= 1e-6 {
		return curves[Db].min
	}
	return core.LinearToDB(amp)
}

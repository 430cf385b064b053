// Package fingerprint maps symbol sequences to bounded scalar fingerprints.
//
// A fingerprint pair is produced by two scans over the same weighted bucket
// layout: the upper value reads the slot weights front to back, the lower
// value reads them back to front.
package fingerprint

import (
	"math"
	"sync"

	"github.com/charmbracelet/log"
)

const (
	// Buckets is the number of weighted slots laid down per symbol.
	Buckets = 150

	// DefaultBaseline is the baseline scalar used when none is configured.
	DefaultBaseline = 5.5

	// DefaultDecimalPlaces is the rounding precision of stored fingerprints.
	DefaultDecimalPlaces = 10

	// Limit bounds the magnitude of an accepted fingerprint.
	Limit = 100.0
)

// Direction selects the order in which slot weights are read.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

type slot struct {
	low    float64
	high   float64
	weight float64
}

// Encode computes the fingerprint of symbols, rounded to places.
// Non-finite results format to 0.
func Encode(symbols []int, baseline float64, dir Direction, places int) float64 {
	return Format(encode(symbols, baseline, dir), places)
}

// encode returns the unrounded scan result.
func encode(symbols []int, baseline float64, dir Direction) float64 {
	n := len(symbols)
	if n < 2 {
		return baseline / 100
	}

	minV, maxV := symbols[0], symbols[0]
	for _, v := range symbols[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	totalSlots := Buckets * n

	var negRange, posRange float64
	if minV < 0 {
		negRange = float64(-minV)
	}
	if maxV > 0 {
		posRange = float64(maxV)
	}

	var negStep, posStep float64
	if totalSlots > 1 {
		negStep = negRange / float64(totalSlots-1)
		posStep = posRange / float64(totalSlots-1)
	}

	// Explicit float64 conversions keep every product rounded on its own so
	// the result does not depend on fused multiply-add.
	slots := make([]slot, totalSlots)
	c := 0
	for _, v := range symbols {
		step := posStep
		if v < 0 {
			step = negStep
		}
		for i := 0; i < Buckets; i++ {
			a := float64(minV) + float64(step*float64(c+1))
			weight := float64(float64(c+1)*baseline) / float64(totalSlots)
			slots[c] = slot{
				low:    a - float64(2*step),
				high:   a + step,
				weight: weight / float64(n-1),
			}
			c++
		}
	}

	if dir == Backward {
		for i, j := 0, len(slots)-1; i < j; i, j = i+1, j-1 {
			slots[i].weight, slots[j].weight = slots[j].weight, slots[i].weight
		}
	}

	// The first slot containing the symbol wins.
	var score float64
	for _, v := range symbols {
		fv := float64(v)
		for _, s := range slots {
			if s.low <= fv && fv <= s.high {
				score += s.weight
				break
			}
		}
	}

	if n == 2 {
		return baseline - score
	}
	return score
}

// Encoder produces fingerprint pairs and masks pathological results with
// the last accepted value.
type Encoder struct {
	places   int
	baseline float64

	mu       sync.Mutex
	lastGood float64
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithDecimalPlaces sets the rounding precision.
func WithDecimalPlaces(places int) Option {
	return func(e *Encoder) {
		if places >= 0 {
			e.places = places
		}
	}
}

// WithBaseline sets the baseline used by Pair.
func WithBaseline(baseline float64) Option {
	return func(e *Encoder) {
		e.baseline = baseline
	}
}

// NewEncoder creates an encoder with lastGood initialised to 0.
func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{
		places:   DefaultDecimalPlaces,
		baseline: DefaultBaseline,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DecimalPlaces returns the rounding precision.
func (e *Encoder) DecimalPlaces() int {
	return e.places
}

// Baseline returns the configured baseline.
func (e *Encoder) Baseline() float64 {
	return e.baseline
}

// LastGood returns the most recently accepted fingerprint.
func (e *Encoder) LastGood() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastGood
}

// Upper returns the forward fingerprint of symbols.
func (e *Encoder) Upper(symbols []int, baseline float64) float64 {
	return e.accept(encode(symbols, baseline, Forward), Forward)
}

// Lower returns the backward fingerprint of symbols.
func (e *Encoder) Lower(symbols []int, baseline float64) float64 {
	return e.accept(encode(symbols, baseline, Backward), Backward)
}

// Pair encodes text with the configured baseline and returns the
// fingerprint pair together with the symbol sequence it was derived from.
func (e *Encoder) Pair(text string) (Pair, []int) {
	symbols := Symbols(text)
	return Pair{
		Upper: e.Upper(symbols, e.baseline),
		Lower: e.Lower(symbols, e.baseline),
	}, symbols
}

// accept applies the sticky fallback: a non-finite or out-of-range value is
// replaced by the last accepted one, anything else becomes the new lastGood.
func (e *Encoder) accept(raw float64, dir Direction) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if math.IsNaN(raw) || math.IsInf(raw, 0) || math.Abs(raw) > Limit {
		log.Debug("Fingerprint rejected, using last accepted value",
			"direction", dir, "value", raw, "fallback", e.lastGood)
		return Format(e.lastGood, e.places)
	}

	v := Format(raw, e.places)
	e.lastGood = v
	return v
}

// Symbols converts text to its code point sequence.
func Symbols(text string) []int {
	runes := []rune(text)
	symbols := make([]int, len(runes))
	for i, r := range runes {
		symbols[i] = int(r)
	}
	return symbols
}

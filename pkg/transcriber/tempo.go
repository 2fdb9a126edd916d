package transcriber

import (
	"fmt"
	"math"
)

// Tempo search defaults
const (
	DefaultMinBPM      = 80
	DefaultBeatsPerBar = 4
	MaxBars            = 64
)

// TempoSearch fits a whole number of bars into a pattern length. The
// pattern is assumed to span exactly Bars bars of BeatsPerBar beats each.
type TempoSearch struct {
	MinBPM      float64
	BeatsPerBar int
	MaxBars     int

	// Trial is called with every candidate tempo, when set
	Trial func(bars int, bpm float64)
}

// NewTempoSearch returns a 4/4 search with an 80 BPM floor
func NewTempoSearch() *TempoSearch {
	return &TempoSearch{
		MinBPM:      DefaultMinBPM,
		BeatsPerBar: DefaultBeatsPerBar,
		MaxBars:     MaxBars,
	}
}

// EstimateTempo runs the default 4/4 search with the given floor
func EstimateTempo(patternLengthSec, minBPM float64) (TempoEstimate, error) {
	ts := NewTempoSearch()
	ts.MinBPM = minBPM
	return ts.Estimate(patternLengthSec)
}

// Estimate returns the smallest bar count whose tempo reaches MinBPM
func (ts *TempoSearch) Estimate(patternLengthSec float64) (TempoEstimate, error) {
	if !(patternLengthSec > 0) || math.IsInf(patternLengthSec, 0) {
		return TempoEstimate{}, fmt.Errorf("%w: got %v seconds", ErrDegenerateTempo, patternLengthSec)
	}
	beatsPerBar := ts.BeatsPerBar
	if beatsPerBar <= 0 {
		beatsPerBar = DefaultBeatsPerBar
	}
	maxBars := ts.MaxBars
	if maxBars <= 0 {
		maxBars = MaxBars
	}

	for bar := 1; bar <= maxBars; bar++ {
		bpm := tempoFor(patternLengthSec, bar, beatsPerBar)
		if ts.Trial != nil {
			ts.Trial(bar, bpm)
		}
		if bpm >= ts.MinBPM {
			return TempoEstimate{BPM: bpm, Bars: bar}, nil
		}
	}
	return TempoEstimate{}, fmt.Errorf("%w: %v seconds at %d bars", ErrTempoOutOfRange, patternLengthSec, maxBars)
}

func tempoFor(patternLengthSec float64, bars, beatsPerBar int) float64 {
	beatLengthSec := patternLengthSec / float64(bars*beatsPerBar)
	return 60 / beatLengthSec
}

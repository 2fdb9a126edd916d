// Package transcriber turns a monophonic audio take into a fixed-tempo MIDI performance
package transcriber

import (
	"errors"
	"math"
)

// Errors returned by the transcription pipeline
var (
	ErrPatternTooShort   = errors.New("not enough events in pattern")
	ErrDegenerateTempo   = errors.New("pattern length must be positive")
	ErrTempoOutOfRange   = errors.New("no bar count reaches the minimum tempo")
	ErrInvalidThresholds = errors.New("off threshold must be non-negative and below the on threshold")
	ErrEmptyInput        = errors.New("no samples to transcribe")
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	ErrInvalidSettings   = errors.New("invalid settings")
)

// NoteEvent is a detected note in the sample domain
type NoteEvent struct {
	On       int     // Sample index of the onset
	Off      int     // Sample index of the offset (exclusive of the note)
	Velocity float64 // Peak envelope value between On and Off
}

// Pattern holds the raw events found by the segmenter. The last event marks
// the end of the pattern and is not part of the performance.
type Pattern struct {
	Events         []NoteEvent
	FirstEventTime int // Onset of the first note
	LastEventTime  int // Onset of the last closed note
}

// Notes returns the events without the end-of-pattern sentinel
func (p *Pattern) Notes() []NoteEvent {
	if len(p.Events) == 0 {
		return nil
	}
	return p.Events[:len(p.Events)-1]
}

// Validate reports ErrPatternTooShort unless the pattern has at least two
// notes besides the sentinel
func (p *Pattern) Validate() error {
	if len(p.Events) <= 2 {
		return ErrPatternTooShort
	}
	return nil
}

// LengthSeconds returns the span between the first and last onsets
func (p *Pattern) LengthSeconds(sampleRate int) float64 {
	return float64(p.LastEventTime-p.FirstEventTime) / float64(sampleRate)
}

// TempoEstimate is the result of the bar search
type TempoEstimate struct {
	BPM  float64
	Bars int
}

// TickEvent is a note in the MIDI tick domain
type TickEvent struct {
	On       uint32
	Off      uint32
	Velocity float64
}

// MIDIVelocity scales a 0..1 velocity to a MIDI velocity in 1..127
func MIDIVelocity(v float64) uint8 {
	vel := math.Round(127 * v)
	if vel < 1 || math.IsNaN(vel) {
		return 1
	}
	if vel > 127 {
		return 127
	}
	return uint8(vel)
}

// SamplesToMilliseconds converts a sample offset to whole milliseconds
func SamplesToMilliseconds(samples, sampleRate int) int {
	return int(float64(samples) / float64(sampleRate) * 1000)
}

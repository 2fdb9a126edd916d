package transcriber

import "math"

// Timebase defaults
const (
	DefaultTargetBPM    = 120
	DefaultTicksPerBeat = 100
)

// Timebase maps sample positions recorded at an estimated tempo onto MIDI
// ticks at a target tempo
type Timebase struct {
	SampleRate   int
	EstimatedBPM float64
	TargetBPM    float64
	TicksPerBeat int
}

// Conversion returns the tempo ratio applied to sample offsets
func (tb Timebase) Conversion() float64 {
	return tb.EstimatedBPM / tb.TargetBPM
}

// SampleToTick returns the number of ticks per sample at the target tempo
func (tb Timebase) SampleToTick() float64 {
	ticksPerSecond := float64(tb.TicksPerBeat) * tb.TargetBPM / 60
	return ticksPerSecond / float64(tb.SampleRate)
}

// Tick converts a sample index into a tick offset from origin
func (tb Timebase) Tick(sample, origin int) uint32 {
	shifted := float64(sample-origin) * tb.Conversion()
	tick := math.Round(shifted * tb.SampleToTick())
	if tick < 0 {
		return 0
	}
	return uint32(tick)
}

// Remap converts notes into tick events with origin moved to tick zero.
// A note collapsed to zero length by rounding keeps a one tick duration, and
// a note never starts before the previous one ends.
func (tb Timebase) Remap(notes []NoteEvent, origin int) []TickEvent {
	out := make([]TickEvent, 0, len(notes))
	var prevOff uint32
	for _, n := range notes {
		ev := TickEvent{
			On:       max(tb.Tick(n.On, origin), prevOff),
			Off:      tb.Tick(n.Off, origin),
			Velocity: n.Velocity,
		}
		if ev.Off <= ev.On {
			ev.Off = ev.On + 1
		}
		prevOff = ev.Off
		out = append(out, ev)
	}
	return out
}

// RemapToTicks converts the notes of a pattern using the default target
// tempo and resolution
func RemapToTicks(p *Pattern, sampleRate int, estimatedBPM float64) []TickEvent {
	tb := Timebase{
		SampleRate:   sampleRate,
		EstimatedBPM: estimatedBPM,
		TargetBPM:    DefaultTargetBPM,
		TicksPerBeat: DefaultTicksPerBeat,
	}
	return tb.Remap(p.Notes(), p.FirstEventTime)
}

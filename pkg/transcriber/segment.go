package transcriber

import "math"

// Default hysteresis thresholds
const (
	DefaultOnThreshold  = 0.4
	DefaultOffThreshold = 0.2
)

// Segmenter splits an envelope into notes using two thresholds. A note
// starts when the envelope rises above On and ends when it falls below Off.
type Segmenter struct {
	On  float64
	Off float64

	// FlushTrailing closes a note that is still sounding when the envelope
	// ends, using the buffer length as its offset.
	FlushTrailing bool
}

// NewSegmenter returns a Segmenter with the default thresholds that flushes
// a trailing note
func NewSegmenter() *Segmenter {
	return &Segmenter{
		On:            DefaultOnThreshold,
		Off:           DefaultOffThreshold,
		FlushTrailing: true,
	}
}

// Segment runs the Segmenter with the default settings
func Segment(envelope []float64, onThreshold, offThreshold float64) (*Pattern, error) {
	s := NewSegmenter()
	s.On, s.Off = onThreshold, offThreshold
	return s.Segment(envelope)
}

// Segment scans envelope and returns the raw pattern, sentinel included
func (s *Segmenter) Segment(envelope []float64) (*Pattern, error) {
	if err := checkThresholds(s.On, s.Off); err != nil {
		return nil, err
	}

	pattern := &Pattern{}
	sounding := false
	onset := 0
	peak := 0.0

	closeNote := func(off int) {
		pattern.Events = append(pattern.Events, NoteEvent{On: onset, Off: off, Velocity: peak})
		pattern.LastEventTime = onset
		sounding = false
	}

	for i, v := range envelope {
		if sounding {
			if v > peak {
				peak = v
			}
			if v < s.Off {
				closeNote(i)
			}
			continue
		}
		if v > s.On {
			if len(pattern.Events) == 0 {
				pattern.FirstEventTime = i
			}
			sounding = true
			onset = i
			peak = v
		}
	}

	if sounding && s.FlushTrailing {
		closeNote(len(envelope))
	}
	return pattern, nil
}

// checkThresholds requires finite thresholds with 0 <= off < on
func checkThresholds(on, off float64) error {
	if math.IsInf(on, 0) || !(off >= 0 && off < on) {
		return ErrInvalidThresholds
	}
	return nil
}

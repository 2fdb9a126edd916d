package transcriber

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Performance defaults. The engine does not detect pitch, every note is
// written with the same key.
const (
	DefaultChannel = 0
	DefaultNote    = 60
)

// The set-tempo meta event stores microseconds per beat in 24 bits
const (
	MaxMicrosecondsPerBeat = 0xFFFFFF
	MinTargetBPM           = 60000000.0 / MaxMicrosecondsPerBeat
)

// BuildConfig controls how tick events are written to MIDI tracks
type BuildConfig struct {
	TicksPerBeat int
	TargetBPM    float64
	Channel      uint8
	Note         uint8
}

// DefaultBuildConfig returns 100 ticks per beat at 120 BPM, middle C on
// channel 1
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		TicksPerBeat: DefaultTicksPerBeat,
		TargetBPM:    DefaultTargetBPM,
		Channel:      DefaultChannel,
		Note:         DefaultNote,
	}
}

// MidiTrackSet is a two track performance: tempo and meter information in
// Info, notes in Performance
type MidiTrackSet struct {
	Info         smf.Track
	Performance  smf.Track
	TicksPerBeat uint16
}

type timedMessage struct {
	tick uint32
	msg  midi.Message
}

// Build assembles the info and performance tracks for events
func Build(events []TickEvent, cfg BuildConfig) *MidiTrackSet {
	ts := &MidiTrackSet{TicksPerBeat: uint16(cfg.TicksPerBeat)}

	// Time signature 4/4, 24 clocks per click, 8 32nds per quarter
	ts.Info.Add(0, smf.Message([]byte{0xFF, 0x58, 0x04, 0x04, 0x02, 0x18, 0x08}))
	ts.Info.Add(0, tempoMessage(cfg.TargetBPM))
	ts.Info.Close(0)

	timed := make([]timedMessage, 0, 2*len(events))
	for _, ev := range events {
		vel := MIDIVelocity(ev.Velocity)
		timed = append(timed,
			timedMessage{tick: ev.On, msg: midi.NoteOn(cfg.Channel, cfg.Note, vel)},
			timedMessage{tick: ev.Off, msg: midi.NoteOffVelocity(cfg.Channel, cfg.Note, vel)},
		)
	}
	sort.SliceStable(timed, func(i, j int) bool { return timed[i].tick < timed[j].tick })

	var current uint32
	for _, tm := range timed {
		ts.Performance.Add(tm.tick-current, tm.msg)
		current = tm.tick
	}
	ts.Performance.Close(0)
	return ts
}

// tempoMessage encodes bpm as a set-tempo meta event, truncating to whole
// microseconds per beat. Tempos below MinTargetBPM are written as
// MinTargetBPM.
func tempoMessage(bpm float64) smf.Message {
	usPerBeat := uint32(min(60000000/bpm, MaxMicrosecondsPerBeat))
	return smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(usPerBeat >> 16),
		byte(usPerBeat >> 8),
		byte(usPerBeat),
	})
}

// SMF returns the track set as a format 1 standard MIDI file
func (ts *MidiTrackSet) SMF() (*smf.SMF, error) {
	s := smf.NewSMF1()
	s.TimeFormat = smf.MetricTicks(ts.TicksPerBeat)
	if err := s.Add(ts.Info); err != nil {
		return nil, fmt.Errorf("failed to add info track: %w", err)
	}
	if err := s.Add(ts.Performance); err != nil {
		return nil, fmt.Errorf("failed to add performance track: %w", err)
	}
	return s, nil
}

// WriteTo serializes the track set to w
func (ts *MidiTrackSet) WriteTo(w io.Writer) (int64, error) {
	s, err := ts.SMF()
	if err != nil {
		return 0, err
	}
	n, err := s.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return n, nil
}

// Bytes returns the serialized MIDI file
func (ts *MidiTrackSet) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := ts.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the MIDI file to filename
func (ts *MidiTrackSet) WriteFile(filename string) error {
	data, err := ts.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write MIDI file: %w", err)
	}
	return nil
}

// NoteCount returns the number of note-on events in the performance track
func (ts *MidiTrackSet) NoteCount() int {
	n := 0
	for _, ev := range ts.Performance {
		var ch, key, vel uint8
		if midi.Message(ev.Message).GetNoteStart(&ch, &key, &vel) {
			n++
		}
	}
	return n
}

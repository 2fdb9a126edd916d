package transcriber

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"
)

// SummaryNote is a note read back from a MIDI file
type SummaryNote struct {
	Tick     uint32
	Duration uint32
	Channel  uint8
	Key      uint8
	Velocity uint8
}

// Summary describes the tempo and notes of a standard MIDI file
type Summary struct {
	TicksPerBeat uint16
	BPM          float64
	Tracks       int
	Notes        []SummaryNote
}

// ReadSummaryFile reads a MIDI file and summarizes it
func ReadSummaryFile(filename string) (*Summary, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return ReadSummary(bytes.NewReader(data))
}

// ReadSummary parses MIDI data. Notes are paired per channel and key and
// sorted by start tick. A note without a matching note off is dropped.
func ReadSummary(r io.Reader) (*Summary, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	sum := &Summary{Tracks: len(s.Tracks)}
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		sum.TicksPerBeat = mt.Resolution()
	}

	type pending struct {
		tick     uint32
		velocity uint8
	}

	for _, track := range s.Tracks {
		open := make(map[[2]uint8][]pending)
		var currentTick uint32
		for _, ev := range track {
			currentTick += ev.Delta
			msg := ev.Message

			// Tempo meta message (FF 51 03 ...)
			if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				microsecondsPerBeat := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if microsecondsPerBeat > 0 && sum.BPM == 0 {
					sum.BPM = 60000000.0 / float64(microsecondsPerBeat)
				}
				continue
			}
			if len(msg) < 3 {
				continue
			}

			status, key, velocity := msg[0], msg[1], msg[2]
			id := [2]uint8{status & 0x0F, key}
			switch {
			case status&0xF0 == 0x90 && velocity > 0:
				open[id] = append(open[id], pending{tick: currentTick, velocity: velocity})
			case status&0xF0 == 0x80, status&0xF0 == 0x90:
				queue := open[id]
				if len(queue) == 0 {
					continue
				}
				on := queue[0]
				open[id] = queue[1:]
				sum.Notes = append(sum.Notes, SummaryNote{
					Tick:     on.tick,
					Duration: currentTick - on.tick,
					Channel:  id[0],
					Key:      key,
					Velocity: on.velocity,
				})
			}
		}
	}

	sort.SliceStable(sum.Notes, func(i, j int) bool { return sum.Notes[i].Tick < sum.Notes[j].Tick })
	return sum, nil
}

package transcriber

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
)

func TestReadSummaryRoundTrip(t *testing.T) {
	events := []TickEvent{
		{On: 0, Off: 50, Velocity: 0.5},
		{On: 50, Off: 80, Velocity: 1},
		{On: 200, Off: 201, Velocity: 0.25},
	}
	cfg := DefaultBuildConfig()
	cfg.TargetBPM = 90
	cfg.Channel = 3
	cfg.Note = 40

	data, err := Build(events, cfg).Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	sum, err := ReadSummary(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadSummary() error = %v", err)
	}
	if sum.Tracks != 2 || sum.TicksPerBeat != DefaultTicksPerBeat {
		t.Errorf("Tracks = %d TicksPerBeat = %d, want 2 and %d", sum.Tracks, sum.TicksPerBeat, DefaultTicksPerBeat)
	}
	if math.Abs(sum.BPM-90) > 0.001 {
		t.Errorf("BPM = %v, want 90", sum.BPM)
	}

	want := []SummaryNote{
		{Tick: 0, Duration: 50, Channel: 3, Key: 40, Velocity: 64},
		{Tick: 50, Duration: 30, Channel: 3, Key: 40, Velocity: 127},
		{Tick: 200, Duration: 1, Channel: 3, Key: 40, Velocity: 32},
	}
	if len(sum.Notes) != len(want) {
		t.Fatalf("len(Notes) = %d, want %d", len(sum.Notes), len(want))
	}
	for i, w := range want {
		if sum.Notes[i] != w {
			t.Errorf("Notes[%d] = %+v, want %+v", i, sum.Notes[i], w)
		}
	}
}

func TestReadSummaryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.mid")
	if _, err := New().TranscribeToFile(tapTake(3.0, 0.5, 1.0, 1.5, 2.5), testRate, path); err != nil {
		t.Fatalf("TranscribeToFile() error = %v", err)
	}

	sum, err := ReadSummaryFile(path)
	if err != nil {
		t.Fatalf("ReadSummaryFile() error = %v", err)
	}
	if len(sum.Notes) != 3 {
		t.Errorf("len(Notes) = %d, want 3", len(sum.Notes))
	}
	if math.Abs(sum.BPM-DefaultTargetBPM) > 0.001 {
		t.Errorf("BPM = %v, want %v", sum.BPM, DefaultTargetBPM)
	}
}

func TestReadSummaryErrors(t *testing.T) {
	if _, err := ReadSummary(bytes.NewReader([]byte("not midi"))); err == nil {
		t.Error("ReadSummary() should fail on garbage")
	}
	if _, err := ReadSummaryFile(filepath.Join(t.TempDir(), "missing.mid")); err == nil {
		t.Error("ReadSummaryFile() should fail on a missing file")
	}
}

package transcriber

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testRate = 8000

// tapTake renders constant amplitude bursts starting at the given seconds
func tapTake(total float64, starts ...float64) []float64 {
	samples := make([]float64, int(total*testRate))
	for _, s := range starts {
		from := int(s * testRate)
		to := from + int(0.2*testRate)
		for i := from; i < to && i < len(samples); i++ {
			samples[i] = 0.5
		}
	}
	return samples
}

func TestTranscribe(t *testing.T) {
	samples := tapTake(3.0, 0.5, 1.0, 1.5, 2.5)

	res, err := New().Transcribe(samples, testRate)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if got := len(res.Pattern.Events); got != 4 {
		t.Fatalf("raw events = %d, want 4", got)
	}
	if res.Tempo.Bars != 1 || math.Abs(res.Tempo.BPM-120) > 0.1 {
		t.Errorf("Tempo = %+v, want about 120 BPM over 1 bar", res.Tempo)
	}
	if len(res.Events) != 3 {
		t.Fatalf("tick events = %d, want 3", len(res.Events))
	}
	for i, want := range []uint32{0, 100, 200} {
		got := res.Events[i].On
		if got+1 < want || got > want+1 {
			t.Errorf("event %d On = %d, want %d", i, got, want)
		}
		if res.Events[i].Off <= got {
			t.Errorf("event %d Off = %d, want after On", i, res.Events[i].Off)
		}
	}
	if n := res.Tracks.NoteCount(); n != 3 {
		t.Errorf("NoteCount() = %d, want 3", n)
	}
}

func TestTranscribeErrors(t *testing.T) {
	tests := []struct {
		name       string
		samples    []float64
		sampleRate int
		want       error
	}{
		{"empty", nil, testRate, ErrEmptyInput},
		{"no sample rate", tapTake(1, 0.1), 0, ErrInvalidSampleRate},
		{"silence", make([]float64, testRate), testRate, ErrPatternTooShort},
		{"one note and sentinel", tapTake(2, 0.2, 1.0), testRate, ErrPatternTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Transcribe(tt.samples, tt.sampleRate)
			if !errors.Is(err, tt.want) {
				t.Errorf("Transcribe() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTranscribeInvalidThresholds(t *testing.T) {
	_, err := New(WithThresholds(0.2, 0.4)).Transcribe(tapTake(3.0, 0.5, 1.0, 1.5), testRate)
	if !errors.Is(err, ErrInvalidThresholds) {
		t.Errorf("Transcribe() error = %v, want ErrInvalidThresholds", err)
	}
}

func TestTranscribeOptions(t *testing.T) {
	tr := New(
		WithEnvelope(0.01, 0.05),
		WithNormalizeTarget(0.9),
		WithThresholds(0.5, 0.1),
		WithTrailingFlush(false),
		WithMinBPM(60),
		WithTargetBPM(100),
		WithTicksPerBeat(480),
		WithNote(2, 48),
	)

	s := tr.Settings()
	want := Settings{
		AttackSeconds:   0.01,
		ReleaseSeconds:  0.05,
		NormalizeTarget: 0.9,
		OnThreshold:     0.5,
		OffThreshold:    0.1,
		FlushTrailing:   false,
		MinBPM:          60,
		BeatsPerBar:     DefaultBeatsPerBar,
		TargetBPM:       100,
		TicksPerBeat:    480,
		Channel:         2,
		Note:            48,
	}
	if s != want {
		t.Errorf("Settings() = %+v, want %+v", s, want)
	}

	res, err := tr.Transcribe(tapTake(3.0, 0.5, 1.0, 1.5, 2.5), testRate)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Tracks.TicksPerBeat != 480 {
		t.Errorf("TicksPerBeat = %d, want 480", res.Tracks.TicksPerBeat)
	}
	if msg := res.Tracks.Performance[0].Message; msg[0] != 0x92 || msg[1] != 48 {
		t.Errorf("first note = % X, want channel 3 key 48", []byte(msg))
	}
}

func TestTranscribeLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tr := New(WithLogger(zap.New(core)))

	if _, err := tr.Transcribe(tapTake(3.0, 0.5, 1.0, 1.5, 2.5), testRate); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if n := logs.FilterMessage("note").Len(); n != 4 {
		t.Errorf("note log entries = %d, want 4", n)
	}
	if n := logs.FilterMessage("tempo").Len(); n != 1 {
		t.Errorf("tempo log entries = %d, want 1", n)
	}
	if logs.FilterMessage("try tempo").Len() == 0 {
		t.Error("expected tempo trials to be logged")
	}
}

func TestTranscribeToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.mid")

	res, err := New().TranscribeToFile(tapTake(3.0, 0.5, 1.0, 1.5, 2.5), testRate, path)
	if err != nil {
		t.Fatalf("TranscribeToFile() error = %v", err)
	}
	if res == nil {
		t.Fatal("TranscribeToFile() returned nil result")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output file missing: %v", err)
	}

	short := filepath.Join(t.TempDir(), "short.mid")
	if _, err := New().TranscribeToFile(tapTake(1.0, 0.2), testRate, short); !errors.Is(err, ErrPatternTooShort) {
		t.Errorf("TranscribeToFile() error = %v, want ErrPatternTooShort", err)
	}
	if _, err := os.Stat(short); !os.IsNotExist(err) {
		t.Error("no file should be written for a short pattern")
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("DefaultSettings().Validate() = %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Settings)
	}{
		{"zero attack", func(s *Settings) { s.AttackSeconds = 0 }},
		{"nan release", func(s *Settings) { s.ReleaseSeconds = math.NaN() }},
		{"zero normalize", func(s *Settings) { s.NormalizeTarget = 0 }},
		{"negative min bpm", func(s *Settings) { s.MinBPM = -10 }},
		{"no beats", func(s *Settings) { s.BeatsPerBar = 0 }},
		{"zero target", func(s *Settings) { s.TargetBPM = 0 }},
		{"target below tempo field", func(s *Settings) { s.TargetBPM = 2 }},
		{"infinite target", func(s *Settings) { s.TargetBPM = math.Inf(1) }},
		{"nan target", func(s *Settings) { s.TargetBPM = math.NaN() }},
		{"infinite min bpm", func(s *Settings) { s.MinBPM = math.Inf(1) }},
		{"zero ticks", func(s *Settings) { s.TicksPerBeat = 0 }},
		{"too many ticks", func(s *Settings) { s.TicksPerBeat = 40000 }},
		{"channel 16", func(s *Settings) { s.Channel = 16 }},
		{"note 128", func(s *Settings) { s.Note = 128 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.modify(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("Validate() = %v, want ErrInvalidSettings", err)
			}
			if _, err := New(WithSettings(s)).Transcribe(tapTake(3.0, 0.5, 1.0, 1.5), testRate); !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("Transcribe() error = %v, want ErrInvalidSettings", err)
			}
		})
	}
}

func TestSettingsValidateThresholds(t *testing.T) {
	nan := math.NaN()
	for _, th := range [][2]float64{{0.2, 0.4}, {0.4, -0.1}, {nan, 0.2}, {0.4, nan}, {math.Inf(1), 0.2}} {
		s := DefaultSettings()
		s.OnThreshold, s.OffThreshold = th[0], th[1]
		if err := s.Validate(); !errors.Is(err, ErrInvalidThresholds) {
			t.Errorf("Validate(on=%v, off=%v) = %v, want ErrInvalidThresholds", th[0], th[1], err)
		}
	}

	s := DefaultSettings()
	s.TargetBPM = MinTargetBPM
	if err := s.Validate(); err != nil {
		t.Errorf("Validate(TargetBPM=%v) = %v", MinTargetBPM, err)
	}
}

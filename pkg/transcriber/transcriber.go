package transcriber

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Envelope defaults
const (
	DefaultAttackSeconds   = 0.02
	DefaultReleaseSeconds  = 0.02
	DefaultNormalizeTarget = 0.95
)

// Settings holds every tunable of the pipeline
type Settings struct {
	AttackSeconds   float64 `json:"attack_seconds"`
	ReleaseSeconds  float64 `json:"release_seconds"`
	NormalizeTarget float64 `json:"normalize_target"`
	OnThreshold     float64 `json:"on_threshold"`
	OffThreshold    float64 `json:"off_threshold"`
	FlushTrailing   bool    `json:"flush_trailing"`
	MinBPM          float64 `json:"min_bpm"`
	BeatsPerBar     int     `json:"beats_per_bar"`
	TargetBPM       float64 `json:"target_bpm"`
	TicksPerBeat    int     `json:"ticks_per_beat"`
	Channel         uint8   `json:"channel"`
	Note            uint8   `json:"note"`
}

// DefaultSettings returns the settings used when no option is given
func DefaultSettings() Settings {
	return Settings{
		AttackSeconds:   DefaultAttackSeconds,
		ReleaseSeconds:  DefaultReleaseSeconds,
		NormalizeTarget: DefaultNormalizeTarget,
		OnThreshold:     DefaultOnThreshold,
		OffThreshold:    DefaultOffThreshold,
		FlushTrailing:   true,
		MinBPM:          DefaultMinBPM,
		BeatsPerBar:     DefaultBeatsPerBar,
		TargetBPM:       DefaultTargetBPM,
		TicksPerBeat:    DefaultTicksPerBeat,
		Channel:         DefaultChannel,
		Note:            DefaultNote,
	}
}

// Validate reports ErrInvalidThresholds for thresholds outside 0 <= off < on
// and ErrInvalidSettings for any other value the pipeline cannot use
func (s Settings) Validate() error {
	if err := checkThresholds(s.OnThreshold, s.OffThreshold); err != nil {
		return fmt.Errorf("%w: on %v, off %v", err, s.OnThreshold, s.OffThreshold)
	}
	switch {
	case !(s.AttackSeconds > 0) || !(s.ReleaseSeconds > 0):
		return fmt.Errorf("%w: attack and release must be positive", ErrInvalidSettings)
	case !(s.NormalizeTarget > 0):
		return fmt.Errorf("%w: normalize target must be positive", ErrInvalidSettings)
	case !(s.MinBPM > 0) || math.IsInf(s.MinBPM, 0):
		return fmt.Errorf("%w: minimum BPM must be positive and finite", ErrInvalidSettings)
	case s.BeatsPerBar < 1:
		return fmt.Errorf("%w: beats per bar must be at least 1", ErrInvalidSettings)
	case !(s.TargetBPM >= MinTargetBPM) || math.IsInf(s.TargetBPM, 0):
		return fmt.Errorf("%w: target BPM must be finite and at least %.4f", ErrInvalidSettings, MinTargetBPM)
	case s.TicksPerBeat < 1 || s.TicksPerBeat > 0x7FFF:
		return fmt.Errorf("%w: ticks per beat must be between 1 and 32767", ErrInvalidSettings)
	case s.Channel > 15:
		return fmt.Errorf("%w: channel must be between 0 and 15", ErrInvalidSettings)
	case s.Note > 127:
		return fmt.Errorf("%w: note must be between 0 and 127", ErrInvalidSettings)
	}
	return nil
}

// Option modifies a Transcriber
type Option func(*Transcriber)

// WithLogger sets the logger used to report pipeline progress
func WithLogger(l *zap.Logger) Option {
	return func(t *Transcriber) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithSettings replaces all settings at once
func WithSettings(s Settings) Option {
	return func(t *Transcriber) {
		t.settings = s
	}
}

// WithEnvelope sets the envelope follower time constants
func WithEnvelope(attackSeconds, releaseSeconds float64) Option {
	return func(t *Transcriber) {
		t.settings.AttackSeconds = attackSeconds
		t.settings.ReleaseSeconds = releaseSeconds
	}
}

// WithNormalizeTarget sets the peak the envelope is boosted to
func WithNormalizeTarget(target float64) Option {
	return func(t *Transcriber) {
		t.settings.NormalizeTarget = target
	}
}

// WithThresholds sets the note on and off thresholds
func WithThresholds(on, off float64) Option {
	return func(t *Transcriber) {
		t.settings.OnThreshold = on
		t.settings.OffThreshold = off
	}
}

// WithTrailingFlush controls whether a note still sounding at the end of
// the take is closed
func WithTrailingFlush(flush bool) Option {
	return func(t *Transcriber) {
		t.settings.FlushTrailing = flush
	}
}

// WithMinBPM sets the tempo floor of the bar search
func WithMinBPM(bpm float64) Option {
	return func(t *Transcriber) {
		t.settings.MinBPM = bpm
	}
}

// WithTargetBPM sets the tempo of the written MIDI file
func WithTargetBPM(bpm float64) Option {
	return func(t *Transcriber) {
		t.settings.TargetBPM = bpm
	}
}

// WithTicksPerBeat sets the MIDI resolution
func WithTicksPerBeat(ticks int) Option {
	return func(t *Transcriber) {
		t.settings.TicksPerBeat = ticks
	}
}

// WithNote sets the channel and key of the written notes
func WithNote(channel, note uint8) Option {
	return func(t *Transcriber) {
		t.settings.Channel = channel
		t.settings.Note = note
	}
}

// Transcriber runs the envelope, segmentation, tempo and timebase stages
type Transcriber struct {
	settings Settings
	logger   *zap.Logger
}

// New creates a Transcriber with default settings modified by opts
func New(opts ...Option) *Transcriber {
	t := &Transcriber{
		settings: DefaultSettings(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Settings returns the active settings
func (t *Transcriber) Settings() Settings {
	return t.settings
}

// Result holds the intermediate and final products of a transcription
type Result struct {
	SampleRate int
	Pattern    *Pattern
	Tempo      TempoEstimate
	Events     []TickEvent
	Tracks     *MidiTrackSet
}

// Transcribe converts samples recorded at sampleRate into MIDI tracks
func (t *Transcriber) Transcribe(samples []float64, sampleRate int) (*Result, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}
	s := t.settings
	if err := s.Validate(); err != nil {
		return nil, err
	}
	log := t.logger

	env := DetectEnvelope(samples, sampleRate, s.AttackSeconds, s.ReleaseSeconds)
	NormalizeUp(env, s.NormalizeTarget)

	seg := &Segmenter{On: s.OnThreshold, Off: s.OffThreshold, FlushTrailing: s.FlushTrailing}
	pattern, err := seg.Segment(env)
	if err != nil {
		return nil, err
	}
	for _, ev := range pattern.Events {
		log.Debug("note",
			zap.Int("start_ms", SamplesToMilliseconds(ev.On, sampleRate)),
			zap.Int("end_ms", SamplesToMilliseconds(ev.Off, sampleRate)),
			zap.Uint8("velocity", MIDIVelocity(ev.Velocity)),
			zap.Float64("peak", ev.Velocity))
	}
	if err := pattern.Validate(); err != nil {
		return nil, fmt.Errorf("%w: found %d", err, len(pattern.Events))
	}

	lengthSec := pattern.LengthSeconds(sampleRate)
	log.Info("pattern",
		zap.Int("first_event_ms", SamplesToMilliseconds(pattern.FirstEventTime, sampleRate)),
		zap.Int("last_event_ms", SamplesToMilliseconds(pattern.LastEventTime, sampleRate)),
		zap.Int("length_ms", int(lengthSec*1000)),
		zap.Int("notes", len(pattern.Notes())))

	search := &TempoSearch{
		MinBPM:      s.MinBPM,
		BeatsPerBar: s.BeatsPerBar,
		MaxBars:     MaxBars,
		Trial: func(bars int, bpm float64) {
			log.Debug("try tempo", zap.Int("bars", bars), zap.Float64("bpm", bpm))
		},
	}
	tempo, err := search.Estimate(lengthSec)
	if err != nil {
		return nil, err
	}
	log.Info("tempo", zap.Float64("bpm", tempo.BPM), zap.Int("bars", tempo.Bars))

	tb := Timebase{
		SampleRate:   sampleRate,
		EstimatedBPM: tempo.BPM,
		TargetBPM:    s.TargetBPM,
		TicksPerBeat: s.TicksPerBeat,
	}
	log.Debug("timebase", zap.Float64("conversion", tb.Conversion()), zap.Float64("sample_to_tick", tb.SampleToTick()))
	events := tb.Remap(pattern.Notes(), pattern.FirstEventTime)
	for i, ev := range events {
		orig := pattern.Notes()[i]
		log.Debug("mapped note",
			zap.Int("orig_ms", SamplesToMilliseconds(orig.On-pattern.FirstEventTime, sampleRate)),
			zap.Uint32("on_tick", ev.On),
			zap.Uint32("off_tick", ev.Off))
	}

	tracks := Build(events, BuildConfig{
		TicksPerBeat: s.TicksPerBeat,
		TargetBPM:    s.TargetBPM,
		Channel:      s.Channel,
		Note:         s.Note,
	})

	return &Result{
		SampleRate: sampleRate,
		Pattern:    pattern,
		Tempo:      tempo,
		Events:     events,
		Tracks:     tracks,
	}, nil
}

// TranscribeToFile transcribes samples and writes the MIDI file to filename
func (t *Transcriber) TranscribeToFile(samples []float64, sampleRate int, filename string) (*Result, error) {
	res, err := t.Transcribe(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	if err := res.Tracks.WriteFile(filename); err != nil {
		t.logger.Error("error writing file", zap.String("file", filename), zap.Error(err))
		return res, err
	}
	t.logger.Info("wrote MIDI file", zap.String("file", filename))
	return res, nil
}

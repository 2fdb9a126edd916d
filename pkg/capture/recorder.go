// Package capture records mono audio from an input device into a fixed size
// buffer and hands it over once recording stops.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 512
	DefaultMaxSeconds      = 60
)

var (
	ErrBufferOverflow   = errors.New("record buffer is full")
	ErrNotRecording     = errors.New("not recording")
	ErrAlreadyRecording = errors.New("already recording")
)

// Source delivers blocks of mono samples to a callback until stopped. Stop
// must not return while the callback is still running.
type Source interface {
	Start(onBlock func([]float32)) error
	Stop() error
}

// Recording is the buffer handed over by Recorder.Stop
type Recording struct {
	Samples    []float32
	SampleRate int
	overflow   bool
}

// Err reports ErrBufferOverflow if samples were dropped because the buffer
// was full
func (r *Recording) Err() error {
	if r.overflow {
		return ErrBufferOverflow
	}
	return nil
}

// Float64 returns the samples widened for the transcriber
func (r *Recording) Float64() []float64 {
	out := make([]float64, len(r.Samples))
	for i, v := range r.Samples {
		out[i] = float64(v)
	}
	return out
}

// Duration returns the recorded length
func (r *Recording) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.Samples)) * time.Second / time.Duration(r.SampleRate)
}

// Option configures a Recorder
type Option func(*Recorder)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSampleRate sets the rate the source delivers samples at
func WithSampleRate(sampleRate int) Option {
	return func(r *Recorder) {
		r.sampleRate = sampleRate
	}
}

// WithMaxSeconds sets the buffer capacity in seconds
func WithMaxSeconds(seconds int) Option {
	return func(r *Recorder) {
		r.maxSeconds = seconds
	}
}

// Recorder appends samples from a Source while recording is on
type Recorder struct {
	src        Source
	sampleRate int
	maxSeconds int
	logger     *zap.Logger

	recording atomic.Bool

	mu       sync.Mutex
	buf      []float32
	overflow bool
	full     chan struct{}
	fullOnce *sync.Once
}

// NewRecorder creates a Recorder reading from src
func NewRecorder(src Source, opts ...Option) *Recorder {
	r := &Recorder{
		src:        src,
		sampleRate: DefaultSampleRate,
		maxSeconds: DefaultMaxSeconds,
		logger:     zap.NewNop(),
		full:       make(chan struct{}),
		fullOnce:   &sync.Once{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SampleRate returns the capture rate in Hz
func (r *Recorder) SampleRate() int {
	return r.sampleRate
}

// Capacity returns the buffer size in samples
func (r *Recorder) Capacity() int {
	return r.sampleRate * r.maxSeconds
}

// Len returns the number of samples recorded so far
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Recording reports whether the source is feeding the buffer
func (r *Recorder) Recording() bool {
	return r.recording.Load()
}

// Full is closed when the buffer reaches capacity
func (r *Recorder) Full() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.full
}

// Start allocates the buffer and starts the source
func (r *Recorder) Start() error {
	r.mu.Lock()
	if !r.recording.CompareAndSwap(false, true) {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.buf = make([]float32, 0, r.Capacity())
	r.overflow = false
	r.full = make(chan struct{})
	r.fullOnce = &sync.Once{}
	r.mu.Unlock()

	if err := r.src.Start(r.onBlock); err != nil {
		r.recording.Store(false)
		return fmt.Errorf("failed to start capture: %w", err)
	}
	r.logger.Info("recording",
		zap.Int("sample_rate", r.sampleRate),
		zap.Int("max_seconds", r.maxSeconds))
	return nil
}

func (r *Recorder) onBlock(in []float32) {
	if !r.recording.Load() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room := cap(r.buf) - len(r.buf)
	if len(in) > room {
		if !r.overflow {
			r.logger.Warn("record buffer is full", zap.Int("dropped", len(in)-room))
		}
		r.overflow = true
		in = in[:room]
	}
	r.buf = append(r.buf, in...)
	if len(r.buf) == cap(r.buf) {
		r.fullOnce.Do(func() { close(r.full) })
	}
}

// Stop halts the source and hands over the recorded buffer. The Recording
// is returned even if the source fails to stop cleanly.
func (r *Recorder) Stop() (*Recording, error) {
	if !r.recording.CompareAndSwap(true, false) {
		return nil, ErrNotRecording
	}
	stopErr := r.src.Stop()

	r.mu.Lock()
	rec := &Recording{
		Samples:    r.buf,
		SampleRate: r.sampleRate,
		overflow:   r.overflow,
	}
	r.buf = nil
	r.mu.Unlock()

	r.logger.Info("stopped recording",
		zap.Int("samples", len(rec.Samples)),
		zap.Duration("duration", rec.Duration()),
		zap.Bool("overflow", rec.overflow))

	if stopErr != nil {
		return rec, fmt.Errorf("failed to stop capture: %w", stopErr)
	}
	return rec, nil
}

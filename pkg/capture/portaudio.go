package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

// PortAudioSource reads mono float samples from the default input device
type PortAudioSource struct {
	SampleRate      int
	FramesPerBuffer int

	logger *zap.Logger
	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewPortAudioSource creates a source for the default input device
func NewPortAudioSource(sampleRate, framesPerBuffer int, logger *zap.Logger) *PortAudioSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortAudioSource{
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
		logger:          logger,
	}
}

// Start initializes PortAudio and opens a mono input stream that passes
// every block to onBlock. The block is reused after onBlock returns.
func (s *PortAudioSource) Start(onBlock func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return ErrAlreadyRecording
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("error initializing PortAudio: %w", err)
	}

	if dev, err := portaudio.DefaultInputDevice(); err == nil {
		s.logger.Info("input device",
			zap.String("name", dev.Name),
			zap.Int("max_input_channels", dev.MaxInputChannels),
			zap.Float64("default_sample_rate", dev.DefaultSampleRate),
			zap.Duration("low_input_latency", dev.DefaultLowInputLatency))
	} else {
		s.logger.Warn("no default input device", zap.Error(err))
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.SampleRate), s.FramesPerBuffer, onBlock)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("error opening stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("error starting stream: %w", err)
	}
	s.stream = stream
	return nil
}

// Stop waits for the callback to finish, closes the stream and releases
// PortAudio
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return ErrNotRecording
	}
	stream := s.stream
	s.stream = nil

	stopErr := stream.Stop()
	closeErr := stream.Close()
	termErr := portaudio.Terminate()

	switch {
	case stopErr != nil:
		return fmt.Errorf("error stopping stream: %w", stopErr)
	case closeErr != nil:
		return fmt.Errorf("error closing stream: %w", closeErr)
	case termErr != nil:
		return fmt.Errorf("error terminating PortAudio: %w", termErr)
	}
	return nil
}

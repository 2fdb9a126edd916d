// Package wavfile reads and writes RIFF/WAVE files for the transcriber
package wavfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Format tags and fixed header offsets
const (
	FormatPCM   uint16 = 0x01
	FormatFloat uint16 = 0x03

	RiffSizeOffset int64 = 4
	DataSizeOffset int64 = 40
	HeaderSize           = 44

	pcm16Scale = 32767.0

	readBlockSize      = 32 << 10
	maxPreallocSamples = 1 << 20
)

// Errors returned by Read
var (
	ErrNotRIFF             = errors.New("invalid initial chunk ID, should be 'RIFF'")
	ErrNotWAVE             = errors.New("invalid format, should be 'WAVE'")
	ErrMissingChunk        = errors.New("missing chunk")
	ErrEmptyData           = errors.New("data chunk is empty")
	ErrUnsupportedFormat   = errors.New("unsupported sample format")
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
)

// Format is the body of the "fmt " chunk. All fields are little endian.
type Format struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Sound is decoded audio with samples interleaved by channel and scaled to
// [-1, 1]
type Sound struct {
	Format  Format
	Samples []float64
}

// NumFrames returns the number of samples per channel
func (s *Sound) NumFrames() int {
	if s.Format.NumChannels == 0 {
		return 0
	}
	return len(s.Samples) / int(s.Format.NumChannels)
}

// SampleRate returns the sample rate in Hz
func (s *Sound) SampleRate() int {
	return int(s.Format.SampleRate)
}

// Mono averages the channels of every frame
func (s *Sound) Mono() []float64 {
	ch := int(s.Format.NumChannels)
	if ch <= 1 {
		return s.Samples
	}
	out := make([]float64, s.NumFrames())
	for i := range out {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += s.Samples[i*ch+c]
		}
		out[i] = sum / float64(ch)
	}
	return out
}

type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

func readChunkHeader(r io.Reader) (chunkHeader, error) {
	var h chunkHeader
	err := binary.Read(r, binary.LittleEndian, &h)
	return h, err
}

// skipChunk discards a chunk body including its pad byte
func skipChunk(r io.Reader, size uint32) error {
	n := int64(size) + int64(size&1)
	_, err := io.CopyN(io.Discard, r, n)
	return err
}

// findChunk skips chunks until one with the given id is found
func findChunk(r io.Reader, id string) (chunkHeader, error) {
	for {
		h, err := readChunkHeader(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return h, fmt.Errorf("%w: %q", ErrMissingChunk, id)
			}
			return h, err
		}
		if string(h.ID[:]) == id {
			return h, nil
		}
		if err := skipChunk(r, h.Size); err != nil {
			return h, fmt.Errorf("%w: %q", ErrMissingChunk, id)
		}
	}
}

// ReadFormat reads the RIFF header and the fmt chunk and leaves r at the
// start of the data chunk body. It returns the data size in bytes.
func ReadFormat(r io.Reader) (Format, uint32, error) {
	var f Format
	var tag [4]byte

	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return f, 0, err
	}
	if string(tag[:]) != "RIFF" {
		return f, 0, fmt.Errorf("%w: got %q", ErrNotRIFF, tag[:])
	}
	var riffSize uint32
	if err := binary.Read(r, binary.LittleEndian, &riffSize); err != nil {
		return f, 0, err
	}
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return f, 0, err
	}
	if string(tag[:]) != "WAVE" {
		return f, 0, fmt.Errorf("%w: got %q", ErrNotWAVE, tag[:])
	}

	fmtHeader, err := findChunk(r, "fmt ")
	if err != nil {
		return f, 0, err
	}
	if fmtHeader.Size < 16 {
		return f, 0, fmt.Errorf("%w: fmt chunk of %d bytes", ErrUnsupportedFormat, fmtHeader.Size)
	}
	if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
		return f, 0, err
	}
	if fmtHeader.Size > 16 {
		if err := skipChunk(r, fmtHeader.Size-16); err != nil {
			return f, 0, err
		}
	}

	dataHeader, err := findChunk(r, "data")
	if err != nil {
		return f, 0, err
	}
	return f, dataHeader.Size, nil
}

// Read decodes a 16-bit PCM WAV stream. Samples are divided by 32767.
func Read(r io.Reader) (*Sound, error) {
	f, size, err := ReadFormat(r)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, ErrEmptyData
	}
	if f.AudioFormat != FormatPCM {
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, f.AudioFormat)
	}
	if f.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedBitDepth, f.BitsPerSample)
	}
	if f.NumChannels == 0 {
		return nil, fmt.Errorf("%w: no channels", ErrUnsupportedFormat)
	}

	// The declared size is untrusted: grow with the bytes actually read.
	remaining := int64(size/2) * 2
	samples := make([]float64, 0, min(remaining/2, maxPreallocSamples))
	block := make([]byte, readBlockSize)
	for remaining > 0 {
		chunk := block[:min(remaining, int64(len(block)))]
		if _, err := io.ReadFull(r, chunk); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("failed to read samples: %w", err)
		}
		for i := 0; i < len(chunk); i += 2 {
			v := int16(binary.LittleEndian.Uint16(chunk[i:]))
			samples = append(samples, float64(v)/pcm16Scale)
		}
		remaining -= int64(len(chunk))
	}
	return &Sound{Format: f, Samples: samples}, nil
}

// ReadFile opens path and decodes it with Read
func ReadFile(path string) (*Sound, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// WriteHeader writes a 44 byte header for 32-bit IEEE float samples with
// both size fields zeroed. WriteDataSize fills them in afterwards.
func WriteHeader(w io.Writer, sampleRate, numChannels int) error {
	header := struct {
		RiffID   [4]byte
		RiffSize uint32
		Wave     [4]byte
		FmtID    [4]byte
		FmtSize  uint32
		Format
		DataID   [4]byte
		DataSize uint32
	}{
		RiffID:  [4]byte{'R', 'I', 'F', 'F'},
		Wave:    [4]byte{'W', 'A', 'V', 'E'},
		FmtID:   [4]byte{'f', 'm', 't', ' '},
		FmtSize: 16,
		Format: Format{
			AudioFormat:   FormatFloat,
			NumChannels:   uint16(numChannels),
			SampleRate:    uint32(sampleRate),
			ByteRate:      uint32(2 * sampleRate * 4),
			BlockAlign:    2 * 4,
			BitsPerSample: 32,
		},
		DataID: [4]byte{'d', 'a', 't', 'a'},
	}
	return binary.Write(w, binary.LittleEndian, &header)
}

// WriteDataSize patches the RIFF and data size fields for numBytes of
// sample data
func WriteDataSize(w io.WriteSeeker, numBytes uint32) error {
	if _, err := w.Seek(RiffSizeOffset, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, numBytes+36); err != nil {
		return err
	}
	if _, err := w.Seek(DataSizeOffset, io.SeekStart); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, numBytes)
}

// Writer streams float samples into a WAV container
type Writer struct {
	w       io.WriteSeeker
	written uint32
}

// NewWriter writes the header and returns a Writer positioned at the start
// of the sample data
func NewWriter(w io.WriteSeeker, sampleRate, numChannels int) (*Writer, error) {
	if err := WriteHeader(w, sampleRate, numChannels); err != nil {
		return nil, err
	}
	return &Writer{w: w}, nil
}

// Write appends samples as little endian float32
func (w *Writer) Write(samples []float32) error {
	if err := binary.Write(w.w, binary.LittleEndian, samples); err != nil {
		return err
	}
	w.written += uint32(4 * len(samples))
	return nil
}

// BytesWritten returns the size of the sample data so far
func (w *Writer) BytesWritten() uint32 {
	return w.written
}

// Close back-patches the header sizes and leaves the stream at its end
func (w *Writer) Close() error {
	if err := WriteDataSize(w.w, w.written); err != nil {
		return err
	}
	_, err := w.w.Seek(0, io.SeekEnd)
	return err
}

// WriteFile dumps mono float samples to path
func WriteFile(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer f.Close()

	w, err := NewWriter(f, sampleRate, 1)
	if err != nil {
		return err
	}
	if err := w.Write(samples); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}

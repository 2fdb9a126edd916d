package wavfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

// Decode reads any PCM WAV stream supported by go-audio/wav and scales the
// samples by the source bit depth
func Decode(r io.ReadSeeker) (*Sound, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrNotWAVE
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}
	if len(buf.Data) == 0 {
		return nil, ErrEmptyData
	}

	depth := int(d.BitDepth)
	if depth == 0 {
		depth = buf.SourceBitDepth
	}
	if depth < 8 || depth > 32 {
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedBitDepth, depth)
	}

	samples := make([]float64, len(buf.Data))
	if depth == 8 {
		// 8-bit WAV data is unsigned
		for i, v := range buf.Data {
			samples[i] = float64(v-128) / 128
		}
	} else {
		scale := float64(int64(1)<<(depth-1) - 1)
		for i, v := range buf.Data {
			samples[i] = float64(v) / scale
		}
	}

	numChannels := d.NumChans
	if numChannels == 0 && buf.Format != nil {
		numChannels = uint16(buf.Format.NumChannels)
	}
	sampleRate := d.SampleRate
	if sampleRate == 0 && buf.Format != nil {
		sampleRate = uint32(buf.Format.SampleRate)
	}
	blockAlign := numChannels * uint16(depth/8)

	return &Sound{
		Format: Format{
			AudioFormat:   d.WavAudioFormat,
			NumChannels:   numChannels,
			SampleRate:    sampleRate,
			ByteRate:      sampleRate * uint32(blockAlign),
			BlockAlign:    blockAlign,
			BitsPerSample: uint16(depth),
		},
		Samples: samples,
	}, nil
}

// LoadReader reads r with the 16-bit reader and falls back to Decode for
// other PCM bit depths
func LoadReader(r io.ReadSeeker) (*Sound, error) {
	s, err := Read(r)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrUnsupportedBitDepth) {
		return nil, err
	}
	if _, serr := r.Seek(0, io.SeekStart); serr != nil {
		return nil, serr
	}
	return Decode(r)
}

// Load opens path with LoadReader
func Load(path string) (*Sound, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	defer f.Close()
	return LoadReader(f)
}

// FileFormat is the kind of file detected by DetectFormat
type FileFormat string

const (
	FormatWAV     FileFormat = "wav"
	FormatMIDI    FileFormat = "midi"
	FormatUnknown FileFormat = "unknown"
)

// DetectFormat detects the format of a file based on its extension
func DetectFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mid", ".midi":
		return FormatMIDI
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects the format from the leading magic bytes
func DetectFormatFromContent(data []byte) FileFormat {
	if len(data) < 12 {
		if len(data) >= 4 && string(data[:4]) == "MThd" {
			return FormatMIDI
		}
		return FormatUnknown
	}
	switch {
	case string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case string(data[:4]) == "MThd":
		return FormatMIDI
	default:
		return FormatUnknown
	}
}

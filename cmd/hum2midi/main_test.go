package main

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/james-see/hum2midi/pkg/capture"
	"github.com/james-see/hum2midi/pkg/transcriber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testRate = 8000

type fakeSource struct {
	onBlock func([]float32)
}

func (f *fakeSource) Start(onBlock func([]float32)) error {
	f.onBlock = onBlock
	return nil
}

func (f *fakeSource) Stop() error { return nil }

func writeTake(t *testing.T, starts ...float64) string {
	t.Helper()
	data := make([]int, 3*testRate)
	for _, s := range starts {
		from := int(s * testRate)
		for i := from; i < from+testRate/5 && i < len(data); i++ {
			data[i] = 16384
		}
	}

	path := filepath.Join(t.TempDir(), "take.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, testRate, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestSettingsFromFlags(t *testing.T) {
	saved, savedNoFlush := engine, noFlush
	defer func() { engine, noFlush = saved, savedNoFlush }()

	engine = transcriber.DefaultSettings()
	noFlush = true
	s, err := settings()
	require.NoError(t, err)
	assert.False(t, s.FlushTrailing)

	engine.OnThreshold, engine.OffThreshold = 0.2, 0.3
	_, err = settings()
	assert.ErrorIs(t, err, transcriber.ErrInvalidThresholds)

	engine.OnThreshold, engine.OffThreshold = math.NaN(), 0.2
	_, err = settings()
	assert.ErrorIs(t, err, transcriber.ErrInvalidThresholds)

	engine = transcriber.DefaultSettings()
	engine.TargetBPM = 2
	_, err = settings()
	assert.ErrorIs(t, err, transcriber.ErrInvalidSettings)

	engine = transcriber.DefaultSettings()
	engine.Channel = 16
	_, err = settings()
	assert.ErrorIs(t, err, transcriber.ErrInvalidSettings)
}

func TestGetOutputPath(t *testing.T) {
	saved := outputFile
	defer func() { outputFile = saved }()

	outputFile = ""
	assert.Equal(t, "takes/hum.mid", getOutputPath("takes/hum.wav", ".mid"))
	outputFile = "custom.mid"
	assert.Equal(t, "custom.mid", getOutputPath("takes/hum.wav", ".mid"))
}

func TestConvertFile(t *testing.T) {
	input := writeTake(t, 0.5, 1.0, 1.5, 2.5)
	output := filepath.Join(t.TempDir(), "take.mid")

	var out bytes.Buffer
	res, err := convertFile(&out, input, output, transcriber.DefaultSettings(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Tempo.Bars)
	assert.Len(t, res.Events, 3)
	assert.FileExists(t, output)
	assert.Contains(t, out.String(), "Wrote "+output)
}

func TestConvertFileTooShort(t *testing.T) {
	input := writeTake(t, 0.5, 1.5)
	output := filepath.Join(t.TempDir(), "take.mid")

	var out bytes.Buffer
	res, err := convertFile(&out, input, output, transcriber.DefaultSettings(), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.NoFileExists(t, output)
	assert.Contains(t, out.String(), "Not enough notes")
}

func TestConvertFileMissing(t *testing.T) {
	_, err := convertFile(io.Discard, filepath.Join(t.TempDir(), "nope.wav"), "out.mid", transcriber.DefaultSettings(), zap.NewNop())
	assert.Error(t, err)
}

func TestConvertCommand(t *testing.T) {
	savedOut, savedEngine := outputFile, engine
	defer func() { outputFile, engine = savedOut, savedEngine }()

	input := writeTake(t, 0.5, 1.0, 1.5, 2.5)
	output := filepath.Join(t.TempDir(), "cli.mid")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"convert", input, "-o", output, "--note", "36"})
	require.NoError(t, rootCmd.Execute())
	assert.FileExists(t, output)
	assert.Contains(t, out.String(), "Tempo:")
}

func TestRecordUntilQuit(t *testing.T) {
	src := &fakeSource{}
	rec := capture.NewRecorder(src, capture.WithSampleRate(testRate), capture.WithMaxSeconds(2))
	require.NoError(t, rec.Start())
	src.onBlock(make([]float32, 512))
	src.onBlock(make([]float32, 512))

	take, err := recordUntilStopped(context.Background(), rec, strings.NewReader("hello\n QUIT \n"), io.Discard)
	require.NoError(t, err)
	assert.Len(t, take.Samples, 1024)
	assert.NoError(t, take.Err())
	assert.False(t, rec.Recording())
}

func TestRecordUntilFull(t *testing.T) {
	src := &fakeSource{}
	rec := capture.NewRecorder(src, capture.WithSampleRate(100), capture.WithMaxSeconds(1))
	require.NoError(t, rec.Start())

	pr, pw := io.Pipe()
	defer pw.Close()

	go func() {
		for i := 0; i < 3; i++ {
			src.onBlock(make([]float32, 40))
		}
	}()

	done := make(chan *capture.Recording, 1)
	go func() {
		take, err := recordUntilStopped(context.Background(), rec, pr, io.Discard)
		assert.NoError(t, err)
		done <- take
	}()

	select {
	case take := <-done:
		assert.Len(t, take.Samples, 100)
		assert.ErrorIs(t, take.Err(), capture.ErrBufferOverflow)
	case <-time.After(5 * time.Second):
		t.Fatal("recording did not stop on a full buffer")
	}
}

func TestRecordUntilCancelled(t *testing.T) {
	src := &fakeSource{}
	rec := capture.NewRecorder(src, capture.WithSampleRate(testRate), capture.WithMaxSeconds(1))
	require.NoError(t, rec.Start())

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	take, err := recordUntilStopped(ctx, rec, pr, io.Discard)
	require.NoError(t, err)
	assert.Empty(t, take.Samples)
}

func TestInspectCommand(t *testing.T) {
	input := writeTake(t, 0.5, 1.0, 1.5, 2.5)
	output := filepath.Join(t.TempDir(), "take.mid")
	_, err := convertFile(io.Discard, input, output, transcriber.DefaultSettings(), zap.NewNop())
	require.NoError(t, err)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"inspect", output})
	require.NoError(t, rootCmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "2 track(s), 100 ticks per beat, 120.00 BPM")
	assert.Contains(t, lines[1], "key  60")
}

func TestInspectRejectsNonMIDI(t *testing.T) {
	input := writeTake(t, 0.5, 1.0, 1.5, 2.5)
	_, err := inspectFile(input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a MIDI file")

	_, err = inspectFile(filepath.Join(t.TempDir(), "missing.mid"))
	assert.Error(t, err)
}

// Package main is the entry point for the hum2midi CLI
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/james-see/hum2midi/pkg/api"
	"github.com/james-see/hum2midi/pkg/capture"
	"github.com/james-see/hum2midi/pkg/logging"
	"github.com/james-see/hum2midi/pkg/transcriber"
	"github.com/james-see/hum2midi/pkg/tui"
	"github.com/james-see/hum2midi/pkg/wavfile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputFile   string
	recordOutput string
	dumpWAV      string
	maxSeconds   int
	serverPort   int
	verbose      bool
	noFlush      bool
	engine       = transcriber.DefaultSettings()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hum2midi",
	Short: "Turn a hummed or tapped take into MIDI",
	Long: `hum2midi records or loads a monophonic audio take, detects note events
from its amplitude envelope, estimates the tempo and writes the notes as a
fixed-tempo MIDI file.

Examples:
  hum2midi record -o out.mid --dump-wav take.wav
  hum2midi convert take.wav -o take.mid
  hum2midi convert take.wav --on 0.5 --off 0.1 --note 36
  hum2midi tui
  hum2midi serve --port 8080`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the default input device and transcribe",
	Long: `Records from the default input device until "q" or "quit" is entered or
the record buffer is full, then transcribes the take.`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

var convertCmd = &cobra.Command{
	Use:   "convert <input.wav>",
	Short: "Transcribe a WAV file to MIDI",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.mid>",
	Short: "Show the tempo and notes of a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Engine flags
	pf := rootCmd.PersistentFlags()
	pf.Float64Var(&engine.AttackSeconds, "attack", transcriber.DefaultAttackSeconds, "Envelope attack time in seconds")
	pf.Float64Var(&engine.ReleaseSeconds, "release", transcriber.DefaultReleaseSeconds, "Envelope release time in seconds")
	pf.Float64Var(&engine.NormalizeTarget, "normalize", transcriber.DefaultNormalizeTarget, "Peak the envelope is boosted to")
	pf.Float64Var(&engine.OnThreshold, "on", transcriber.DefaultOnThreshold, "Envelope level that starts a note")
	pf.Float64Var(&engine.OffThreshold, "off", transcriber.DefaultOffThreshold, "Envelope level that ends a note")
	pf.Float64Var(&engine.MinBPM, "min-bpm", transcriber.DefaultMinBPM, "Slowest tempo the estimator accepts")
	pf.IntVar(&engine.BeatsPerBar, "beats-per-bar", transcriber.DefaultBeatsPerBar, "Beats per bar for tempo estimation")
	pf.Float64Var(&engine.TargetBPM, "target-bpm", transcriber.DefaultTargetBPM, "Tempo of the written MIDI file")
	pf.IntVar(&engine.TicksPerBeat, "ticks-per-beat", transcriber.DefaultTicksPerBeat, "MIDI ticks per quarter note")
	pf.Uint8Var(&engine.Note, "note", transcriber.DefaultNote, "MIDI note number for every event")
	pf.Uint8Var(&engine.Channel, "channel", transcriber.DefaultChannel, "MIDI channel (0-15)")
	pf.BoolVar(&noFlush, "no-flush", false, "Drop a note still sounding at the end of the take")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log every detected and mapped note")

	// record command
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "out.mid", "Output .mid file path")
	recordCmd.Flags().StringVar(&dumpWAV, "dump-wav", "", "Also write the raw take to this WAV file")
	recordCmd.Flags().IntVar(&maxSeconds, "max-seconds", capture.DefaultMaxSeconds, "Record buffer length in seconds")

	// convert command
	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .mid file path")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")

	// Add commands
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

// settings returns the engine flags as transcriber settings
func settings() (transcriber.Settings, error) {
	s := engine
	s.FlushTrailing = !noFlush
	return s, s.Validate()
}

func getOutputPath(input, defaultExt string) string {
	if outputFile != "" {
		return outputFile
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + defaultExt
}

// transcribe runs the engine and writes output. A pattern with too few
// events is reported and no file is written.
func transcribe(w io.Writer, samples []float64, sampleRate int, output string, s transcriber.Settings, logger *zap.Logger) (*transcriber.Result, error) {
	tr := transcriber.New(transcriber.WithSettings(s), transcriber.WithLogger(logger))
	res, err := tr.TranscribeToFile(samples, sampleRate, output)
	if errors.Is(err, transcriber.ErrPatternTooShort) {
		fmt.Fprintf(w, "Not enough notes to transcribe (%v), no MIDI file written\n", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "Tempo: %.2f BPM over %d bar(s), %d note(s)\n", res.Tempo.BPM, res.Tempo.Bars, len(res.Events))
	fmt.Fprintf(w, "Wrote %s\n", output)
	return res, nil
}

// convertFile transcribes the WAV file at input into output
func convertFile(w io.Writer, input, output string, s transcriber.Settings, logger *zap.Logger) (*transcriber.Result, error) {
	if wavfile.DetectFormat(input) != wavfile.FormatWAV {
		logger.Warn("input does not have a .wav extension", zap.String("file", input))
	}
	sound, err := wavfile.Load(input)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded WAV",
		zap.String("file", input),
		zap.Int("sample_rate", sound.SampleRate()),
		zap.Uint16("channels", sound.Format.NumChannels),
		zap.Uint16("bits_per_sample", sound.Format.BitsPerSample),
		zap.Int("frames", sound.NumFrames()))

	fmt.Fprintf(w, "Transcribing %s -> %s\n", input, output)
	return transcribe(w, sound.Mono(), sound.SampleRate(), output, s, logger)
}

func runConvert(cmd *cobra.Command, args []string) error {
	s, err := settings()
	if err != nil {
		return err
	}
	logger := logging.Must(verbose)
	defer func() { _ = logger.Sync() }()

	input := args[0]
	_, err = convertFile(cmd.OutOrStdout(), input, getOutputPath(input, ".mid"), s, logger)
	return err
}

func runInspect(cmd *cobra.Command, args []string) error {
	sum, err := inspectFile(args[0])
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), args[0], sum)
	return nil
}

// inspectFile summarizes a MIDI file, rejecting anything without an MThd
// header before parsing
func inspectFile(path string) (*transcriber.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	if format := wavfile.DetectFormatFromContent(data); format != wavfile.FormatMIDI {
		return nil, fmt.Errorf("%s is not a MIDI file (detected %s)", path, format)
	}
	if wavfile.DetectFormat(path) != wavfile.FormatMIDI {
		fmt.Fprintf(os.Stderr, "warning: %s does not have a .mid extension\n", path)
	}
	return transcriber.ReadSummary(bytes.NewReader(data))
}

func printSummary(w io.Writer, name string, sum *transcriber.Summary) {
	fmt.Fprintf(w, "%s: %d track(s), %d ticks per beat, %.2f BPM\n", name, sum.Tracks, sum.TicksPerBeat, sum.BPM)
	for i, n := range sum.Notes {
		fmt.Fprintf(w, "%4d  tick %6d  len %5d  ch %2d  key %3d  vel %3d\n", i+1, n.Tick, n.Duration, n.Channel, n.Key, n.Velocity)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	s, err := settings()
	if err != nil {
		return err
	}
	// The TUI owns the terminal
	logger := zap.NewNop()
	src := capture.NewPortAudioSource(capture.DefaultSampleRate, capture.DefaultFramesPerBuffer, logger)
	return tui.Run(tui.Config{
		Settings:     s,
		Logger:       logger,
		Recorder:     capture.NewRecorder(src, capture.WithLogger(logger)),
		RecordOutput: "out.mid",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := settings()
	if err != nil {
		return err
	}
	logger := logging.Must(verbose)
	defer func() { _ = logger.Sync() }()

	fmt.Printf("Starting API server on port %d...\n", serverPort)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", serverPort)
	return api.StartServer(serverPort, s, logger)
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/james-see/hum2midi/pkg/capture"
	"github.com/james-see/hum2midi/pkg/logging"
	"github.com/james-see/hum2midi/pkg/wavfile"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"
)

const progressInterval = 100 * time.Millisecond

func runRecord(cmd *cobra.Command, args []string) error {
	s, err := settings()
	if err != nil {
		return err
	}
	if maxSeconds <= 0 {
		return fmt.Errorf("--max-seconds must be positive, got %d", maxSeconds)
	}
	logger := logging.Must(verbose)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	src := capture.NewPortAudioSource(capture.DefaultSampleRate, capture.DefaultFramesPerBuffer, logger)
	rec := capture.NewRecorder(src,
		capture.WithSampleRate(capture.DefaultSampleRate),
		capture.WithMaxSeconds(maxSeconds),
		capture.WithLogger(logger))

	out := cmd.OutOrStdout()
	if err := rec.Start(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Recording... type q or quit and press enter to stop.")

	take, err := recordUntilStopped(ctx, rec, cmd.InOrStdin(), out)
	if err != nil {
		return err
	}
	if err := take.Err(); err != nil {
		fmt.Fprintf(out, "Record buffer is full, stopped after %s\n", take.Duration().Round(time.Millisecond))
	}
	fmt.Fprintf(out, "Num samples: %d, buffer size: %d bytes\n", len(take.Samples), 4*len(take.Samples))

	if dumpWAV != "" {
		if err := wavfile.WriteFile(dumpWAV, take.Samples, take.SampleRate); err != nil {
			logger.Error("error writing WAV dump", zap.String("file", dumpWAV), zap.Error(err))
		} else {
			fmt.Fprintf(out, "Wrote raw take to %s\n", dumpWAV)
		}
	}

	_, err = transcribe(out, take.Float64(), take.SampleRate, recordOutput, s, logger)
	return err
}

// recordUntilStopped shows buffer fill on progress until a quit line is read
// from in, in reaches EOF, the buffer fills or ctx is done. It then stops rec
// and returns the take.
func recordUntilStopped(ctx context.Context, rec *capture.Recorder, in io.Reader, progress io.Writer) (*capture.Recording, error) {
	quit := make(chan struct{})
	go func() {
		defer close(quit)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
			case "q", "quit":
				return
			}
		}
	}()

	p := mpb.NewWithContext(ctx, mpb.WithOutput(progress), mpb.WithWidth(64))
	bar := p.AddBar(int64(rec.Capacity()),
		mpb.PrependDecorators(
			decor.Name("Recording: "),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ticker.C:
			bar.SetCurrent(int64(rec.Len()))
		case <-quit:
			break loop
		case <-rec.Full():
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	take, err := rec.Stop()
	if take != nil {
		bar.SetCurrent(int64(len(take.Samples)))
	}
	bar.SetTotal(-1, true)
	p.Wait()

	if take == nil {
		return nil, err
	}
	if err != nil && !errors.Is(err, capture.ErrNotRecording) {
		// the samples are still usable
		fmt.Fprintf(progress, "warning: %v\n", err)
	}
	return take, nil
}

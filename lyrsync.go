package lyrsync

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"lyrsync/pkg/align"
	"lyrsync/pkg/assemblyai"
	"lyrsync/pkg/lrc"
)

type Config struct {
	AssemblyAIKey string
	PollInterval  time.Duration
	PollTimeout   time.Duration
	Debug         bool
}

// Sync aligns a plain lyrics file against an audio URL and writes the
// result as an LRC file, without touching the catalog database.
func Sync(ctx context.Context, cfg *Config, audioURL, lyricsFile, output string) error {
	data, err := os.ReadFile(lyricsFile)
	if err != nil {
		return fmt.Errorf("couldn't read lyrics file: %w", err)
	}
	client := assemblyai.New(&assemblyai.Config{
		APIKey:       cfg.AssemblyAIKey,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
		Debug:        cfg.Debug,
	})
	transcript, err := client.Transcribe(ctx, audioURL)
	if err != nil {
		return fmt.Errorf("couldn't transcribe audio: %w", err)
	}
	if len(transcript.Words) == 0 {
		return fmt.Errorf("no words detected in transcript")
	}
	words := make([]align.Word, len(transcript.Words))
	for i, w := range transcript.Words {
		words[i] = align.Word{Text: w.Text, Start: w.Start, End: w.End, Confidence: w.Confidence}
	}
	lines := align.Lines(words, string(data), align.Options{})
	confident := 0
	for _, l := range lines {
		if l.Confidence > 0 {
			confident++
		}
	}
	log.Printf("aligned %d lines, %d with matched timings\n", len(lines), confident)

	out := lrc.Format(lines)
	if output == "" {
		fmt.Print(out)
		return nil
	}
	if err := os.WriteFile(output, []byte(out), 0644); err != nil {
		return fmt.Errorf("couldn't write output file: %w", err)
	}
	return nil
}

package regen

import (
	"context"
	"fmt"
	"log"
	"os"

	"lyrsync/pkg/cmd/run"
	"lyrsync/pkg/lrc"
)

type Config struct {
	run.Config
	SongID string
	Output string
}

// Run regenerates the timed lyrics of a single song and optionally writes
// the result as an LRC file.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.SongID == "" {
		return fmt.Errorf("regen: song id is required")
	}
	log.Println("regen: started")
	defer log.Println("regen: ended")

	runner, _, _, err := run.Wire(ctx, &cfg.Config)
	if err != nil {
		return err
	}
	v, err := runner.Regenerate(ctx, cfg.SongID)
	if err != nil {
		return err
	}
	log.Printf("regen: published version %d (%s) with %d lines\n", v.VersionNumber, v.ID, len(v.Lines))
	if cfg.Output == "" {
		return nil
	}
	if err := os.WriteFile(cfg.Output, []byte(lrc.Format(v.Lines)), 0644); err != nil {
		return fmt.Errorf("regen: couldn't write %s: %w", cfg.Output, err)
	}
	return nil
}

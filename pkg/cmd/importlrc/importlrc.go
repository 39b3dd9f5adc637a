package importlrc

import (
	"context"
	"fmt"
	"log"
	"os"

	"lyrsync/pkg/lrc"
	"lyrsync/pkg/storage"
	"lyrsync/pkg/versions"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string

	SongID string
	Input  string
	Author string
	Notes  string
	// Submit sends the imported draft straight into review.
	Submit bool
}

// Run imports an LRC file as a new draft version for a song.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.SongID == "" {
		return fmt.Errorf("importlrc: song id is required")
	}
	if cfg.Input == "" {
		return fmt.Errorf("importlrc: input file is required")
	}
	if cfg.Author == "" {
		return fmt.Errorf("importlrc: author is required")
	}
	log.Println("importlrc: started")
	defer log.Println("importlrc: ended")

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("importlrc: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("importlrc: couldn't start orm store: %w", err)
	}
	if _, err := store.GetSong(ctx, cfg.SongID); err != nil {
		return fmt.Errorf("importlrc: couldn't get song %s: %w", cfg.SongID, err)
	}

	data, err := os.ReadFile(cfg.Input)
	if err != nil {
		return fmt.Errorf("importlrc: couldn't read %s: %w", cfg.Input, err)
	}
	lines, err := lrc.Parse(string(data))
	if err != nil {
		return fmt.Errorf("importlrc: couldn't parse %s: %w", cfg.Input, err)
	}

	svc := versions.New(store)
	v, err := svc.Create(ctx, cfg.SongID, storage.SourceImportedLRC, cfg.Author, lines, cfg.Notes)
	if err != nil {
		return err
	}
	log.Printf("importlrc: created draft version %d (%s) with %d lines\n", v.VersionNumber, v.ID, len(v.Lines))
	if !cfg.Submit {
		return nil
	}
	res, err := svc.Submit(ctx, v.ID, false)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		log.Printf("importlrc: warning: %s\n", w)
	}
	log.Printf("importlrc: version %s is now %s\n", v.ID, res.Version.Status)
	return nil
}

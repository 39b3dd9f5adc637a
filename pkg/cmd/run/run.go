package run

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"lyrsync/pkg/assemblyai"
	"lyrsync/pkg/audiostore"
	"lyrsync/pkg/genius"
	"lyrsync/pkg/pipeline"
	"lyrsync/pkg/retriever"
	"lyrsync/pkg/storage"
	"lyrsync/pkg/versions"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string

	GeniusToken   string
	GeniusWait    time.Duration
	Artist        string
	Collaborators string

	AssemblyAIKey string
	PollInterval  time.Duration
	PollTimeout   time.Duration

	AudioStoreType string
	AudioStoreConn string

	Stage            string
	Force            bool
	RetrievalWorkers int
	AlignmentWorkers int
}

// Run executes a full catalog pipeline run from the command line.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("run: pipeline started")
	defer log.Println("run: pipeline ended")

	runner, _, _, err := Wire(ctx, cfg)
	if err != nil {
		return err
	}
	mode := pipeline.ModeAll
	switch cfg.Stage {
	case "", "all":
		if cfg.Force {
			mode = pipeline.ModeForce
		}
	case "retrieval":
		mode = pipeline.ModeRetrieval
	case "alignment":
		mode = pipeline.ModeAlignment
		if cfg.Force {
			mode = pipeline.ModeForce
		}
	default:
		return fmt.Errorf("run: unknown stage %q", cfg.Stage)
	}
	if err := runner.RunOnce(ctx, "cli", mode); err != nil {
		return err
	}
	status := runner.Status()
	for _, st := range status.Stages {
		if st.Skipped {
			log.Printf("run: %s skipped: %s\n", st.Stage, st.SkipReason)
			continue
		}
		log.Printf("run: %s: %d candidates, %d succeeded, %d misses, %d failed\n",
			st.Stage, st.Candidates, st.Succeeded, st.Misses, st.Failed)
	}
	return nil
}

// Wire builds the storage, clients and services a pipeline needs. It is
// shared with the serve and regen commands. Missing credentials leave the
// corresponding dependency nil, which the pipeline reports as a stage skip
// instead of failing every candidate.
func Wire(ctx context.Context, cfg *Config) (*pipeline.Runner, *storage.Store, *versions.Service, error) {
	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("run: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("run: couldn't start orm store: %w", err)
	}

	var ret pipeline.Retriever
	if cfg.GeniusToken != "" {
		client := genius.New(&genius.Config{
			Token: cfg.GeniusToken,
			Wait:  cfg.GeniusWait,
			Debug: cfg.Debug,
		})
		var collaborators []string
		for _, c := range strings.Split(cfg.Collaborators, ",") {
			if c = strings.TrimSpace(c); c != "" {
				collaborators = append(collaborators, c)
			}
		}
		ret = retriever.New(&geniusSource{client: client}, &retriever.Config{
			Artist:        cfg.Artist,
			Collaborators: collaborators,
			Debug:         cfg.Debug,
		})
	}

	var asr pipeline.Transcriber
	if cfg.AssemblyAIKey != "" {
		asr = assemblyai.New(&assemblyai.Config{
			APIKey:       cfg.AssemblyAIKey,
			PollInterval: cfg.PollInterval,
			PollTimeout:  cfg.PollTimeout,
			Debug:        cfg.Debug,
		})
	}

	var audio pipeline.AudioResolver
	if cfg.AudioStoreType != "" {
		candidate, err := audiostore.New(cfg.AudioStoreType, cfg.AudioStoreConn, cfg.Debug)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("run: %w", err)
		}
		audio = candidate
	}

	svc := versions.New(store)
	runner := pipeline.New(store, svc, ret, asr, audio, pipeline.Config{
		RetrievalWorkers: cfg.RetrievalWorkers,
		AlignmentWorkers: cfg.AlignmentWorkers,
		Debug:            cfg.Debug,
	})
	return runner, store, svc, nil
}

// geniusSource adapts the genius client to the retriever's source contract.
type geniusSource struct {
	client *genius.Client
}

func (s *geniusSource) Search(ctx context.Context, query string) ([]retriever.Hit, error) {
	hits, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]retriever.Hit, len(hits))
	for i, h := range hits {
		out[i] = retriever.Hit{Title: h.Title, Artist: h.Artist, URL: h.URL}
	}
	return out, nil
}

func (s *geniusSource) Lyrics(ctx context.Context, pageURL string) (string, error) {
	return s.client.Lyrics(ctx, pageURL)
}

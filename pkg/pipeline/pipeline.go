// Package pipeline coordinates full-catalog runs of lyric retrieval and
// timing generation. A single runner instance owns the run state: at most
// one run is active process-wide, work fans out to a bounded worker pool
// per stage, and one song's failure never halts the rest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"lyrsync/pkg/align"
	"lyrsync/pkg/assemblyai"
	"lyrsync/pkg/retriever"
	"lyrsync/pkg/storage"
	"lyrsync/pkg/versions"
)

// Stage names one phase of a run.
type Stage string

const (
	StageRetrieval Stage = "retrieval"
	StageAlignment Stage = "alignment"
)

// Mode selects which stages a run executes.
type Mode string

const (
	ModeAll       Mode = "all"
	ModeRetrieval Mode = "retrieval"
	ModeAlignment Mode = "alignment"
	// ModeForce re-times songs whose canonical version was auto generated,
	// for periodic quality re-runs. Human-curated versions are never
	// re-timed.
	ModeForce Mode = "force"
)

// Regeneration failure reasons, surfaced verbatim to callers.
var (
	ErrNoAudio       = errors.New("pipeline: song has no audio file")
	ErrNoLyrics      = errors.New("pipeline: song has insufficient lyric text")
	ErrNoWords       = errors.New("pipeline: no words detected in transcript")
	ErrLowConfidence = errors.New("pipeline: alignment confidence too low to publish")
)

// Retriever finds raw lyric text for a song title.
type Retriever interface {
	Find(ctx context.Context, title string) (*retriever.Result, error)
}

// Transcriber produces a word-level transcript for a fetchable audio URL.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (*assemblyai.Transcript, error)
}

// AudioResolver builds a fetchable URL from a catalog file path.
type AudioResolver interface {
	AudioURL(ctx context.Context, filePath string) (string, error)
}

type Config struct {
	RetrievalWorkers int
	AlignmentWorkers int
	// MinConfidentRatio is the share of lines that must carry non-zero
	// confidence before an alignment is published.
	MinConfidentRatio float64
	// MinRawLyrics is the minimum raw lyric length for alignment
	// eligibility, in characters.
	MinRawLyrics int
	// Categories overrides the default eligible categories.
	Categories []storage.Category
	// SystemAuthor attributes auto-generated versions.
	SystemAuthor string
	// ErrorSamples bounds the per-stage ring of recent error messages.
	ErrorSamples int
	Align        align.Options
	Debug        bool
}

type Runner struct {
	cfg       Config
	store     *storage.Store
	versions  *versions.Service
	retriever Retriever
	asr       Transcriber
	audio     AudioResolver

	mu     sync.Mutex
	active bool
	status *runState
}

func New(store *storage.Store, svc *versions.Service, r Retriever, t Transcriber, a AudioResolver, cfg Config) *Runner {
	if cfg.RetrievalWorkers == 0 {
		cfg.RetrievalWorkers = 8
	}
	if cfg.AlignmentWorkers == 0 {
		cfg.AlignmentWorkers = 4
	}
	if cfg.MinConfidentRatio == 0 {
		cfg.MinConfidentRatio = 0.3
	}
	if cfg.MinRawLyrics == 0 {
		cfg.MinRawLyrics = 20
	}
	if cfg.SystemAuthor == "" {
		cfg.SystemAuthor = "system"
	}
	if cfg.ErrorSamples == 0 {
		cfg.ErrorSamples = 20
	}
	return &Runner{
		cfg:       cfg,
		store:     store,
		versions:  svc,
		retriever: r,
		asr:       t,
		audio:     a,
	}
}

func (r *Runner) debug(format string, args ...interface{}) {
	if r.cfg.Debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Trigger starts a run asynchronously. It returns false and does nothing
// when a run is already active: callers treat that as "already in
// progress", not as an error.
func (r *Runner) Trigger(reason string, mode Mode) bool {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return false
	}
	r.active = true
	r.status = newStatus(reason, mode, r.cfg.ErrorSamples)
	r.mu.Unlock()

	log.Printf("pipeline: run started (reason: %s, mode: %s)\n", reason, mode)
	go func() {
		// Runs drain to completion once started; there is no mid-run
		// cancellation beyond process exit.
		err := r.run(context.Background(), mode)
		r.finish(err)
		if err != nil {
			log.Printf("pipeline: run ended with error: %v\n", err)
		} else {
			log.Println("pipeline: run ended")
		}
	}()
	return true
}

// RunOnce executes a run synchronously, for CLI usage. It still takes the
// single-flight lock, so it can't overlap a triggered run.
func (r *Runner) RunOnce(ctx context.Context, reason string, mode Mode) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return fmt.Errorf("pipeline: a run is already active")
	}
	r.active = true
	r.status = newStatus(reason, mode, r.cfg.ErrorSamples)
	r.mu.Unlock()

	err := r.run(ctx, mode)
	r.finish(err)
	return err
}

func (r *Runner) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.status.finish(err)
}

func (r *Runner) run(ctx context.Context, mode Mode) error {
	if mode == ModeAll || mode == ModeRetrieval || mode == "" {
		if err := r.runRetrieval(ctx); err != nil {
			return err
		}
	}
	if mode == ModeAll || mode == ModeAlignment || mode == ModeForce || mode == "" {
		if err := r.runAlignment(ctx, mode == ModeForce); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runRetrieval(ctx context.Context) error {
	st := r.stage(StageRetrieval)
	if r.retriever == nil {
		// A missing credential would fail every candidate the same way;
		// skip the stage with one diagnostic instead.
		log.Println("pipeline: retrieval skipped, no lyric source configured")
		st.skipStage("no lyric source configured")
		return nil
	}
	candidates, err := r.store.RetrievalCandidates(ctx, r.cfg.Categories)
	if err != nil {
		return fmt.Errorf("pipeline: couldn't list retrieval candidates: %w", err)
	}
	st.begin(len(candidates))
	r.debug("pipeline: retrieval stage, %d candidates", len(candidates))

	r.forEach(ctx, candidates, r.cfg.RetrievalWorkers, func(ctx context.Context, song *storage.Song) {
		r.retrieveOne(ctx, st, song)
	})
	return nil
}

func (r *Runner) retrieveOne(ctx context.Context, st *stageStatus, song *storage.Song) {
	res, err := r.retriever.Find(ctx, song.Name)
	if err != nil {
		st.fail(fmt.Sprintf("%s: %v", song.Name, err))
		return
	}
	if res == nil {
		// Exhausting the cascade is a valid terminal outcome.
		r.debug("pipeline: no lyrics found for %s", song.Name)
		st.miss()
		return
	}
	song.RawLyrics = res.Lyrics
	song.LyricsSource = res.SourceURL
	if err := r.store.SetSong(ctx, song); err != nil {
		st.fail(fmt.Sprintf("%s: %v", song.Name, err))
		return
	}
	st.success()
}

func (r *Runner) runAlignment(ctx context.Context, force bool) error {
	st := r.stage(StageAlignment)
	if r.asr == nil {
		log.Println("pipeline: alignment skipped, no transcription provider configured")
		st.skipStage("no transcription provider configured")
		return nil
	}
	if r.audio == nil {
		log.Println("pipeline: alignment skipped, no audio store configured")
		st.skipStage("no audio store configured")
		return nil
	}
	candidates, err := r.store.AlignmentCandidates(ctx, r.cfg.Categories, r.cfg.MinRawLyrics, force)
	if err != nil {
		return fmt.Errorf("pipeline: couldn't list alignment candidates: %w", err)
	}
	st.begin(len(candidates))
	r.debug("pipeline: alignment stage, %d candidates", len(candidates))

	r.forEach(ctx, candidates, r.cfg.AlignmentWorkers, func(ctx context.Context, song *storage.Song) {
		if _, err := r.alignOne(ctx, song); err != nil {
			if errors.Is(err, ErrNoWords) || errors.Is(err, ErrLowConfidence) {
				r.debug("pipeline: skipping %s: %v", song.Name, err)
				st.miss()
				return
			}
			st.fail(fmt.Sprintf("%s: %v", song.Name, err))
			return
		}
		st.success()
	})
	return nil
}

// alignOne runs the full per-song alignment path: resolve audio, fetch a
// transcript, align, and publish through the versioning state machine.
func (r *Runner) alignOne(ctx context.Context, song *storage.Song) (*storage.LyricsVersion, error) {
	if song.FilePath == "" {
		return nil, ErrNoAudio
	}
	if len(song.RawLyrics) < r.cfg.MinRawLyrics {
		return nil, ErrNoLyrics
	}
	audioURL, err := r.audio.AudioURL(ctx, song.FilePath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: couldn't resolve audio for %s: %w", song.ID, err)
	}
	transcript, err := r.asr.Transcribe(ctx, audioURL)
	if err != nil {
		return nil, fmt.Errorf("pipeline: couldn't transcribe %s: %w", song.ID, err)
	}
	if len(transcript.Words) == 0 {
		return nil, ErrNoWords
	}
	words := make([]align.Word, len(transcript.Words))
	for i, w := range transcript.Words {
		words[i] = align.Word{Text: w.Text, Start: w.Start, End: w.End, Confidence: w.Confidence}
	}
	lines := align.Lines(words, song.RawLyrics, r.cfg.Align)
	confident := 0
	for _, l := range lines {
		if l.Confidence > 0 {
			confident++
		}
	}
	if float64(confident) < r.cfg.MinConfidentRatio*float64(len(lines)) {
		return nil, fmt.Errorf("%w: %d of %d lines matched", ErrLowConfidence, confident, len(lines))
	}
	v, err := r.versions.Create(ctx, song.ID, storage.SourceAutoGenerated, r.cfg.SystemAuthor, lines, "")
	if err != nil {
		return nil, err
	}
	res, err := r.versions.Submit(ctx, v.ID, true)
	if err != nil {
		return nil, err
	}
	return res.Version, nil
}

// Regenerate runs the alignment path for one song on demand, bypassing the
// catalog scan. It does not take the run lock.
func (r *Runner) Regenerate(ctx context.Context, songID string) (*storage.LyricsVersion, error) {
	if r.asr == nil {
		return nil, fmt.Errorf("pipeline: no transcription provider configured")
	}
	if r.audio == nil {
		return nil, fmt.Errorf("pipeline: no audio store configured")
	}
	song, err := r.store.GetSong(ctx, songID)
	if err != nil {
		return nil, err
	}
	return r.alignOne(ctx, song)
}

// forEach fans items out to a bounded worker pool and waits for drain.
func (r *Runner) forEach(ctx context.Context, songs []*storage.Song, workers int, fn func(context.Context, *storage.Song)) {
	if workers > len(songs) {
		workers = len(songs)
	}
	if workers < 1 {
		return
	}
	jobs := make(chan *storage.Song)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for song := range jobs {
				fn(ctx, song)
			}
		}()
	}
	for _, song := range songs {
		jobs <- song
	}
	close(jobs)
	wg.Wait()
}

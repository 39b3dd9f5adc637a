package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"lyrsync/pkg/assemblyai"
	"lyrsync/pkg/retriever"
	"lyrsync/pkg/storage"
	"lyrsync/pkg/versions"
)

func testStore(t *testing.T) (*storage.Store, *versions.Service) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.New("sqlite", filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatalf("storage.New() err = %v; want nil", err)
	}
	if err := store.Start(ctx); err != nil {
		t.Fatalf("Start() err = %v; want nil", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() err = %v; want nil", err)
	}
	return store, versions.New(store)
}

func addSong(t *testing.T, store *storage.Store, song *storage.Song) *storage.Song {
	t.Helper()
	if song.ID == "" {
		song.ID = ulid.Make().String()
	}
	if song.Category == "" {
		song.Category = storage.CategoryReleased
	}
	if err := store.SetSong(context.Background(), song); err != nil {
		t.Fatalf("SetSong() err = %v; want nil", err)
	}
	return song
}

type fakeRetriever struct {
	calls int32
	gate  chan struct{}
	res   *retriever.Result
	err   error
}

func (f *fakeRetriever) Find(ctx context.Context, title string) (*retriever.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	return f.res, f.err
}

type fakeTranscriber struct {
	words []assemblyai.Word
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioURL string) (*assemblyai.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &assemblyai.Transcript{ID: "t", Status: "completed", Words: f.words}, nil
}

type fakeAudio struct{}

func (fakeAudio) AudioURL(ctx context.Context, filePath string) (string, error) {
	return "https://audio/" + filePath, nil
}

const testLyrics = "Lucid dreams\nI still see your shadows in my room"

func testWords() []assemblyai.Word {
	return []assemblyai.Word{
		{Text: "lucid", Start: 0, End: 500, Confidence: 0.9},
		{Text: "dreams", Start: 500, End: 1000, Confidence: 0.9},
		{Text: "i", Start: 1200, End: 1300, Confidence: 0.8},
		{Text: "still", Start: 1300, End: 1500, Confidence: 0.8},
		{Text: "see", Start: 1500, End: 1700, Confidence: 0.8},
		{Text: "your", Start: 1700, End: 1900, Confidence: 0.8},
		{Text: "shadows", Start: 1900, End: 2300, Confidence: 0.7},
		{Text: "in", Start: 2300, End: 2400, Confidence: 0.9},
		{Text: "my", Start: 2400, End: 2500, Confidence: 0.9},
		{Text: "room", Start: 2500, End: 2900, Confidence: 0.9},
	}
}

func waitIdle(t *testing.T, r *Runner) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !r.Status().Running {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
}

func TestTriggerSingleFlight(t *testing.T) {
	store, svc := testStore(t)
	addSong(t, store, &storage.Song{Name: "Righteous", FilePath: "righteous.mp3"})

	gate := make(chan struct{})
	fr := &fakeRetriever{gate: gate}
	r := New(store, svc, fr, nil, nil, Config{})

	if !r.Trigger("test", ModeRetrieval) {
		t.Fatal("first Trigger() = false; want true")
	}
	if r.Trigger("test", ModeRetrieval) {
		t.Fatal("second Trigger() = true; want false while a run is active")
	}
	close(gate)
	waitIdle(t, r)

	if got := atomic.LoadInt32(&fr.calls); got != 1 {
		t.Fatalf("retriever calls = %d; want 1 (no candidate processed twice)", got)
	}
	if !r.Trigger("test", ModeRetrieval) {
		t.Fatal("Trigger() after completion = false; want true")
	}
	waitIdle(t, r)
}

func TestRetrievalIdempotent(t *testing.T) {
	ctx := context.Background()
	store, svc := testStore(t)
	addSong(t, store, &storage.Song{Name: "Righteous", FilePath: "righteous.mp3"})
	addSong(t, store, &storage.Song{Name: "Bandit", FilePath: "bandit.mp3"})

	fr := &fakeRetriever{res: &retriever.Result{
		Lyrics:    "line\nline\nline\nline\nline\nline\nline\nline\nline\nline",
		SourceURL: "https://x/page",
	}}
	r := New(store, svc, fr, nil, nil, Config{})

	if err := r.RunOnce(ctx, "test", ModeRetrieval); err != nil {
		t.Fatalf("RunOnce() err = %v; want nil", err)
	}
	if got := atomic.LoadInt32(&fr.calls); got != 2 {
		t.Fatalf("retriever calls = %d; want 2", got)
	}
	status := r.Status()
	if len(status.Stages) != 1 || status.Stages[0].Succeeded != 2 {
		t.Fatalf("status = %+v; want 2 successes", status.Stages)
	}

	// A second run finds no candidates and performs no further writes.
	if err := r.RunOnce(ctx, "test", ModeRetrieval); err != nil {
		t.Fatalf("second RunOnce() err = %v; want nil", err)
	}
	if got := atomic.LoadInt32(&fr.calls); got != 2 {
		t.Fatalf("retriever calls after second run = %d; want 2", got)
	}
	status = r.Status()
	if status.Stages[0].Candidates != 0 {
		t.Fatalf("second run candidates = %d; want 0", status.Stages[0].Candidates)
	}
}

func TestRetrievalMissAndFailure(t *testing.T) {
	ctx := context.Background()
	store, svc := testStore(t)
	addSong(t, store, &storage.Song{Name: "Ghost", FilePath: "ghost.mp3"})

	t.Run("not found is not a failure", func(t *testing.T) {
		fr := &fakeRetriever{}
		r := New(store, svc, fr, nil, nil, Config{})
		if err := r.RunOnce(ctx, "test", ModeRetrieval); err != nil {
			t.Fatalf("RunOnce() err = %v; want nil", err)
		}
		st := r.Status().Stages[0]
		if st.Failed != 0 || st.Misses != 1 {
			t.Fatalf("stage = %+v; want 1 miss, 0 failures", st)
		}
	})

	t.Run("one song's error never aborts the run", func(t *testing.T) {
		fr := &fakeRetriever{err: errors.New("boom")}
		r := New(store, svc, fr, nil, nil, Config{})
		if err := r.RunOnce(ctx, "test", ModeRetrieval); err != nil {
			t.Fatalf("RunOnce() err = %v; want nil", err)
		}
		st := r.Status().Stages[0]
		if st.Failed != 1 {
			t.Fatalf("stage = %+v; want 1 failure", st)
		}
		if len(st.Errors) != 1 {
			t.Fatalf("errors = %v; want 1 sample", st.Errors)
		}
	})
}

func TestAlignmentPublishesCanonical(t *testing.T) {
	ctx := context.Background()
	store, svc := testStore(t)
	song := addSong(t, store, &storage.Song{
		Name:      "Lucid Dreams",
		FilePath:  "lucid.mp3",
		RawLyrics: testLyrics,
	})

	r := New(store, svc, nil, &fakeTranscriber{words: testWords()}, fakeAudio{}, Config{})
	if err := r.RunOnce(ctx, "test", ModeAlignment); err != nil {
		t.Fatalf("RunOnce() err = %v; want nil", err)
	}

	canonical, err := store.CanonicalVersion(ctx, song.ID)
	if err != nil {
		t.Fatalf("CanonicalVersion() err = %v; want nil", err)
	}
	if canonical.Source != storage.SourceAutoGenerated {
		t.Errorf("source = %s; want auto_generated", canonical.Source)
	}
	if canonical.Author != "system" {
		t.Errorf("author = %q; want system", canonical.Author)
	}
	if len(canonical.Lines) != 2 {
		t.Fatalf("lines = %d; want 2", len(canonical.Lines))
	}
	if canonical.Lines[0].Start != 0 || canonical.Lines[0].End != 1000 {
		t.Errorf("line 1 = [%d, %d]; want [0, 1000]", canonical.Lines[0].Start, canonical.Lines[0].End)
	}
}

func TestAlignmentLowConfidenceDiscarded(t *testing.T) {
	ctx := context.Background()
	store, svc := testStore(t)
	song := addSong(t, store, &storage.Song{
		Name:      "Mismatch",
		FilePath:  "mismatch.mp3",
		RawLyrics: "completely different words\nnothing in common here\nstill nothing at all",
	})

	words := []assemblyai.Word{
		{Text: "unrelated", Start: 0, End: 500, Confidence: 0.9},
		{Text: "transcript", Start: 500, End: 1000, Confidence: 0.9},
	}
	r := New(store, svc, nil, &fakeTranscriber{words: words}, fakeAudio{}, Config{})
	if err := r.RunOnce(ctx, "test", ModeAlignment); err != nil {
		t.Fatalf("RunOnce() err = %v; want nil", err)
	}
	st := r.Status().Stages[0]
	if st.Succeeded != 0 || st.Misses != 1 {
		t.Fatalf("stage = %+v; want a low-confidence miss", st)
	}
	if _, err := store.CanonicalVersion(ctx, song.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("CanonicalVersion() err = %v; want ErrNotFound", err)
	}
}

func TestStageSkippedWithoutCredentials(t *testing.T) {
	ctx := context.Background()
	store, svc := testStore(t)
	addSong(t, store, &storage.Song{Name: "Righteous", FilePath: "righteous.mp3"})

	r := New(store, svc, nil, nil, nil, Config{})
	if err := r.RunOnce(ctx, "test", ModeAll); err != nil {
		t.Fatalf("RunOnce() err = %v; want nil", err)
	}
	status := r.Status()
	if len(status.Stages) != 2 {
		t.Fatalf("stages = %d; want 2", len(status.Stages))
	}
	for _, st := range status.Stages {
		if !st.Skipped {
			t.Errorf("stage %s not skipped; want one diagnostic skip without per-song failures", st.Stage)
		}
		if st.Failed != 0 {
			t.Errorf("stage %s failed = %d; want 0", st.Stage, st.Failed)
		}
	}
}

func TestRegenerate(t *testing.T) {
	ctx := context.Background()
	store, svc := testStore(t)

	noAudio := addSong(t, store, &storage.Song{Name: "NoAudio", RawLyrics: testLyrics})
	noLyrics := addSong(t, store, &storage.Song{Name: "NoLyrics", FilePath: "x.mp3", RawLyrics: "short"})
	noWords := addSong(t, store, &storage.Song{Name: "NoWords", FilePath: "y.mp3", RawLyrics: testLyrics})
	good := addSong(t, store, &storage.Song{Name: "Good", FilePath: "z.mp3", RawLyrics: testLyrics})

	empty := New(store, svc, nil, &fakeTranscriber{}, fakeAudio{}, Config{})
	if _, err := empty.Regenerate(ctx, noAudio.ID); !errors.Is(err, ErrNoAudio) {
		t.Errorf("Regenerate(no audio) err = %v; want ErrNoAudio", err)
	}
	if _, err := empty.Regenerate(ctx, noLyrics.ID); !errors.Is(err, ErrNoLyrics) {
		t.Errorf("Regenerate(no lyrics) err = %v; want ErrNoLyrics", err)
	}
	if _, err := empty.Regenerate(ctx, noWords.ID); !errors.Is(err, ErrNoWords) {
		t.Errorf("Regenerate(no words) err = %v; want ErrNoWords", err)
	}

	r := New(store, svc, nil, &fakeTranscriber{words: testWords()}, fakeAudio{}, Config{})
	v, err := r.Regenerate(ctx, good.ID)
	if err != nil {
		t.Fatalf("Regenerate() err = %v; want nil", err)
	}
	if !v.IsCanonical {
		t.Fatal("regenerated version is not canonical")
	}
}

package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Righteous (prod. by X) [Leaked Version].mp3", "Righteous"},
		{"Lucid Dreams.wav", "Lucid Dreams"},
		{"Song Title feat. Someone", "Song Title"},
		{"Song Title ft Someone Else", "Song Title"},
		{"Track with Producer Man", "Track"},
		{"Demo 3", "Demo"},
		{"Demo 3 2", "Demo"},
		{"  spaced   out  ", "spaced out"},
		{"[v2] {alt} (take 1) Title", "Title"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := Normalize(tt.title); got != tt.want {
				t.Errorf("Normalize(%q) = %q; want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestVariants(t *testing.T) {
	tests := []struct {
		title string
		want  []string
	}{
		{"One Two Three Four.mp3", []string{"One Two Three Four", "One Two Three", "One"}},
		{"Lucid Dreams", []string{"Lucid Dreams", "Lucid"}},
		{"Righteous", []string{"Righteous"}},
		{"...", nil},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := Variants(tt.title)
			if len(got) != len(tt.want) {
				t.Fatalf("Variants(%q) = %v; want %v", tt.title, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Variants(%q)[%d] = %q; want %q", tt.title, i, got[i], tt.want[i])
				}
			}
		})
	}
}

type fakeSource struct {
	hits     map[string][]Hit
	pages    map[string]string
	searches []string
	fetched  []string
	err      error
}

func (f *fakeSource) Search(ctx context.Context, query string) ([]Hit, error) {
	f.searches = append(f.searches, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[query], nil
}

func (f *fakeSource) Lyrics(ctx context.Context, pageURL string) (string, error) {
	f.fetched = append(f.fetched, pageURL)
	page, ok := f.pages[pageURL]
	if !ok {
		return "", errors.New("no such page")
	}
	return page, nil
}

func lyricsBlock(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "la la la"
	}
	return strings.Join(lines, "\n")
}

func TestFind(t *testing.T) {
	cfg := &Config{
		Artist:        "Juice WRLD",
		Collaborators: []string{"999", "Nick Mira"},
	}

	t.Run("accepts allow-listed collaborator", func(t *testing.T) {
		src := &fakeSource{
			hits: map[string][]Hit{
				"Juice WRLD Righteous": {
					{Title: "Righteous", Artist: "Nick Mira", URL: "https://x/righteous"},
				},
			},
			pages: map[string]string{
				"https://x/righteous": lyricsBlock(12),
			},
		}
		r := New(src, cfg)
		got, err := r.Find(context.Background(), "Righteous (prod. by X) [Leaked Version].mp3")
		if err != nil {
			t.Fatalf("Find() err = %v; want nil", err)
		}
		if got == nil {
			t.Fatal("Find() = nil; want a result")
		}
		if got.SourceURL != "https://x/righteous" {
			t.Errorf("SourceURL = %q; want %q", got.SourceURL, "https://x/righteous")
		}
	})

	t.Run("rejects unrelated artist", func(t *testing.T) {
		src := &fakeSource{
			hits: map[string][]Hit{
				"Juice WRLD Righteous": {
					{Title: "Righteous Path", Artist: "Somebody Else", URL: "https://x/other"},
				},
			},
		}
		r := New(src, cfg)
		got, err := r.Find(context.Background(), "Righteous")
		if err != nil {
			t.Fatalf("Find() err = %v; want nil", err)
		}
		if got != nil {
			t.Fatalf("Find() = %+v; want nil", got)
		}
		for _, u := range src.fetched {
			if u == "https://x/other" {
				t.Error("fetched a page for an unrelated artist")
			}
		}
	})

	t.Run("rejects short extraction", func(t *testing.T) {
		src := &fakeSource{
			hits: map[string][]Hit{
				"Juice WRLD Righteous": {
					{Title: "Righteous", Artist: "Juice WRLD", URL: "https://x/short"},
				},
			},
			pages: map[string]string{
				"https://x/short": lyricsBlock(4),
			},
		}
		r := New(src, cfg)
		got, err := r.Find(context.Background(), "Righteous")
		if err != nil {
			t.Fatalf("Find() err = %v; want nil", err)
		}
		if got != nil {
			t.Fatalf("Find() = %+v; want nil for a page with too few lines", got)
		}
	})

	t.Run("falls through to unqualified query", func(t *testing.T) {
		src := &fakeSource{
			hits: map[string][]Hit{
				"Righteous": {
					{Title: "Righteous", Artist: "Somebody feat. Juice WRLD", URL: "https://x/feature"},
				},
			},
			pages: map[string]string{
				"https://x/feature": lyricsBlock(15),
			},
		}
		r := New(src, cfg)
		got, err := r.Find(context.Background(), "Righteous")
		if err != nil {
			t.Fatalf("Find() err = %v; want nil", err)
		}
		if got == nil {
			t.Fatal("Find() = nil; want the feature page")
		}
	})

	t.Run("search errors are swallowed", func(t *testing.T) {
		src := &fakeSource{err: errors.New("rate limited")}
		r := New(src, cfg)
		got, err := r.Find(context.Background(), "Righteous")
		if err != nil {
			t.Fatalf("Find() err = %v; want nil", err)
		}
		if got != nil {
			t.Fatalf("Find() = %+v; want nil", got)
		}
		if len(src.searches) == 0 {
			t.Error("cascade stopped before trying any query")
		}
	})
}

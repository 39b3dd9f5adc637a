package retriever

import (
	"context"
	"fmt"
	"log"
	"strings"

	"lyrsync/pkg/align"
)

// Hit is a candidate song page returned by a lyric search index.
type Hit struct {
	Title  string
	Artist string
	URL    string
}

// Source is the external search/scrape surface the retriever runs against.
type Source interface {
	Search(ctx context.Context, query string) ([]Hit, error)
	Lyrics(ctx context.Context, pageURL string) (string, error)
}

// Result is an accepted retrieval: lyric text plus its provenance.
type Result struct {
	Lyrics    string
	SourceURL string
}

type Config struct {
	// Artist is the target performer all queries are built around.
	Artist string
	// Collaborators are additional credited names accepted as valid
	// performers (features, group aliases, producer pages).
	Collaborators []string
	// MinLines rejects extractions with fewer non-empty lines, which
	// guards against scraping a non-lyrics page.
	MinLines int
	Debug    bool
}

type Retriever struct {
	source        Source
	artist        string
	collaborators []string
	minLines      int
	debug         bool
}

func New(source Source, cfg *Config) *Retriever {
	minLines := cfg.MinLines
	if minLines == 0 {
		minLines = 10
	}
	return &Retriever{
		source:        source,
		artist:        cfg.Artist,
		collaborators: cfg.Collaborators,
		minLines:      minLines,
		debug:         cfg.Debug,
	}
}

func (r *Retriever) log(format string, args ...interface{}) {
	if r.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// strategy is one pass of the cascade. Later strategies loosen the title
// similarity floor and add disambiguating keywords to the query.
type strategy struct {
	name      string
	qualified bool
	threshold float64
	keywords  string
}

var strategies = []strategy{
	{name: "qualified", qualified: true, threshold: 0.75},
	{name: "unqualified", threshold: 0.75},
	{name: "qualified-loose", qualified: true, threshold: 0.6, keywords: "unreleased"},
	{name: "unqualified-loose", threshold: 0.6, keywords: "leaked"},
}

// Find locates lyric text for a song title. It returns nil with no error
// when the whole cascade is exhausted without an acceptable hit; errors on
// individual variants or candidates are swallowed and the next option is
// tried, so the cascade itself is the retry strategy.
func (r *Retriever) Find(ctx context.Context, title string) (*Result, error) {
	variants := Variants(title)
	if len(variants) == 0 {
		return nil, nil
	}
	for _, s := range strategies {
		for _, variant := range variants {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			query := variant
			if s.qualified {
				query = fmt.Sprintf("%s %s", r.artist, variant)
			}
			if s.keywords != "" {
				query = fmt.Sprintf("%s %s", query, s.keywords)
			}
			hits, err := r.source.Search(ctx, query)
			if err != nil {
				r.log("retriever: search %q: %v", query, err)
				continue
			}
			for _, hit := range hits {
				if !r.artistMatches(hit.Artist) {
					continue
				}
				if !titleMatches(hit.Title, variant, s.threshold) {
					continue
				}
				lyrics, err := r.source.Lyrics(ctx, hit.URL)
				if err != nil {
					r.log("retriever: lyrics %s: %v", hit.URL, err)
					continue
				}
				if countLines(lyrics) < r.minLines {
					r.log("retriever: %s too short, skipping", hit.URL)
					continue
				}
				r.log("retriever: accepted %q via %s strategy", hit.Title, s.name)
				return &Result{
					Lyrics:    lyrics,
					SourceURL: hit.URL,
				}, nil
			}
		}
	}
	return nil, nil
}

func (r *Retriever) artistMatches(name string) bool {
	got := strings.ToLower(strings.TrimSpace(name))
	if got == "" {
		return false
	}
	if got == strings.ToLower(r.artist) {
		return true
	}
	for _, c := range append([]string{r.artist}, r.collaborators...) {
		if strings.Contains(got, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// titleMatches accepts exact matches, containment either way, or a
// normalized edit-distance similarity above the strategy threshold.
func titleMatches(got, want string, threshold float64) bool {
	a := strings.ToLower(strings.TrimSpace(got))
	b := strings.ToLower(strings.TrimSpace(want))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return align.Similarity(a, b) >= threshold
}

func countLines(s string) int {
	n := 0
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

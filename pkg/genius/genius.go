package genius

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Hit is a search result: a song page and its credited performer.
type Hit struct {
	Title  string
	Artist string
	URL    string
}

type searchResponse struct {
	Response struct {
		Hits []struct {
			Result struct {
				Title         string `json:"title"`
				URL           string `json:"url"`
				PrimaryArtist struct {
					Name string `json:"name"`
				} `json:"primary_artist"`
			} `json:"result"`
		} `json:"hits"`
	} `json:"response"`
}

// Search queries the genius search index and returns the candidate hits.
func (c *Client) Search(ctx context.Context, query string) ([]Hit, error) {
	u := fmt.Sprintf("https://api.genius.com/search?q=%s", url.QueryEscape(query))
	var resp searchResponse
	if _, err := c.do(ctx, http.MethodGet, u, &resp); err != nil {
		return nil, fmt.Errorf("genius: couldn't search %q: %w", query, err)
	}
	var hits []Hit
	for _, h := range resp.Response.Hits {
		hits = append(hits, Hit{
			Title:  h.Result.Title,
			Artist: h.Result.PrimaryArtist.Name,
			URL:    h.Result.URL,
		})
	}
	return hits, nil
}

// Lyrics fetches a song page and extracts its lyric text. Extraction walks
// an ordered list of structural container selectors, so markup changes only
// need a new strategy here, not changes at call sites.
func (c *Client) Lyrics(ctx context.Context, pageURL string) (string, error) {
	b, err := c.do(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("genius: couldn't fetch page %s: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("genius: couldn't parse page %s: %w", pageURL, err)
	}
	text := Extract(doc)
	if text == "" {
		return "", fmt.Errorf("genius: no lyrics container found in %s", pageURL)
	}
	return text, nil
}

type extractor interface {
	extract(doc *goquery.Document) string
}

// extractors are tried in order; the first non-empty result wins.
var extractors = []extractor{
	selectorExtractor(`div[data-lyrics-container="true"]`),
	selectorExtractor(`div.Lyrics__Container`),
	selectorExtractor(`div.lyrics`),
}

// Extract returns the lyric text of a parsed song page, or "".
func Extract(doc *goquery.Document) string {
	for _, e := range extractors {
		if text := e.extract(doc); text != "" {
			return text
		}
	}
	return ""
}

type selectorExtractor string

func (s selectorExtractor) extract(doc *goquery.Document) string {
	var blocks []string
	doc.Find(string(s)).Each(func(_ int, sel *goquery.Selection) {
		if text := selectionText(sel); text != "" {
			blocks = append(blocks, text)
		}
	})
	return strings.TrimSpace(strings.Join(blocks, "\n"))
}

// selectionText renders a container as plain text, turning <br> into line
// breaks before stripping the remaining markup.
func selectionText(sel *goquery.Selection) string {
	html, err := sel.Html()
	if err != nil {
		return ""
	}
	for _, br := range []string{"<br>", "<br/>", "<br />"} {
		html = strings.ReplaceAll(html, br, "\n")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	lines := strings.Split(doc.Text(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

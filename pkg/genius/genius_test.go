package genius

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "data attribute container",
			html: `<html><body><div data-lyrics-container="true">Lucid dreams<br>I still see your shadows in my room</div></body></html>`,
			want: "Lucid dreams\nI still see your shadows in my room",
		},
		{
			name: "legacy class container",
			html: `<html><body><div class="lyrics">First line<br/>Second line</div></body></html>`,
			want: "First line\nSecond line",
		},
		{
			name: "multiple containers joined",
			html: `<html><body><div data-lyrics-container="true">Verse one</div><div data-lyrics-container="true">Verse two</div></body></html>`,
			want: "Verse one\nVerse two",
		},
		{
			name: "nested markup stripped",
			html: `<html><body><div data-lyrics-container="true"><a href="/x"><span>Lucid</span> dreams</a><br><i>shadows</i></div></body></html>`,
			want: "Lucid dreams\nshadows",
		},
		{
			name: "no container",
			html: `<html><body><div class="about">Not a lyrics page</div></body></html>`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			if err != nil {
				t.Fatalf("couldn't parse html: %v", err)
			}
			if got := Extract(doc); got != tt.want {
				t.Errorf("Extract() = %q; want %q", got, tt.want)
			}
		})
	}
}

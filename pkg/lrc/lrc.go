// Package lrc parses and formats LRC timed-lyrics files.
package lrc

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"lyrsync/pkg/align"
)

var timestampRe = regexp.MustCompile(`\[(\d{1,2}):(\d{2})(?:[.:](\d{1,3}))?\]`)

// Parse reads LRC text into timed lines, sorted by start time. A line with
// several timestamps yields one entry per timestamp. Metadata tags such as
// [ar:] and [ti:] are ignored. Imported timings are human-authored, so every
// line carries confidence 1.
func Parse(s string) ([]align.Line, error) {
	var lines []align.Line
	for _, raw := range strings.Split(s, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		matches := timestampRe.FindAllStringSubmatchIndex(raw, -1)
		if len(matches) == 0 {
			continue
		}
		text := strings.TrimSpace(raw[matches[len(matches)-1][1]:])
		if text == "" {
			continue
		}
		for _, m := range matches {
			start, err := parseTimestamp(raw[m[0]:m[1]])
			if err != nil {
				return nil, err
			}
			lines = append(lines, align.Line{
				Start:      start,
				Text:       text,
				Confidence: 1,
			})
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("lrc: no timestamped lines found")
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Start < lines[j].Start
	})
	// End times are not part of the format; borrow the next line's start.
	for i := 0; i < len(lines)-1; i++ {
		lines[i].End = lines[i+1].Start
	}
	return lines, nil
}

func parseTimestamp(s string) (int, error) {
	m := timestampRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("lrc: invalid timestamp %q", s)
	}
	mins, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("lrc: invalid minutes in %q: %w", s, err)
	}
	secs, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, fmt.Errorf("lrc: invalid seconds in %q: %w", s, err)
	}
	ms := 0
	if m[3] != "" {
		frac := m[3]
		for len(frac) < 3 {
			frac += "0"
		}
		ms, err = strconv.Atoi(frac[:3])
		if err != nil {
			return 0, fmt.Errorf("lrc: invalid fraction in %q: %w", s, err)
		}
	}
	return mins*60000 + secs*1000 + ms, nil
}

// Format renders timed lines as LRC text with centisecond precision.
func Format(lines []align.Line) string {
	var b strings.Builder
	for _, l := range lines {
		mins := l.Start / 60000
		secs := (l.Start % 60000) / 1000
		cents := (l.Start % 1000) / 10
		fmt.Fprintf(&b, "[%02d:%02d.%02d]%s\n", mins, secs, cents, l.Text)
	}
	return b.String()
}

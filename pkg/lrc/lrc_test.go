package lrc

import (
	"testing"

	"lyrsync/pkg/align"
)

func TestParse(t *testing.T) {
	input := "[ar:Juice WRLD]\n[ti:Lucid Dreams]\n\n[00:01.50]Lucid dreams\n[00:03]I still see your shadows in my room\n"
	lines, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() err = %v; want nil", err)
	}
	if len(lines) != 2 {
		t.Fatalf("Parse() returned %d lines; want 2", len(lines))
	}
	if lines[0].Start != 1500 {
		t.Errorf("line 1 start = %d; want 1500", lines[0].Start)
	}
	if lines[0].End != 3000 {
		t.Errorf("line 1 end = %d; want 3000 (next line start)", lines[0].End)
	}
	if lines[1].Start != 3000 {
		t.Errorf("line 2 start = %d; want 3000", lines[1].Start)
	}
	if lines[0].Text != "Lucid dreams" {
		t.Errorf("line 1 text = %q; want %q", lines[0].Text, "Lucid dreams")
	}
	for i, l := range lines {
		if l.Confidence != 1 {
			t.Errorf("line %d confidence = %v; want 1", i, l.Confidence)
		}
	}
}

func TestParseRepeatedTimestamps(t *testing.T) {
	lines, err := Parse("[00:10.00][00:30.00]la la la\n[00:20.00]middle\n")
	if err != nil {
		t.Fatalf("Parse() err = %v; want nil", err)
	}
	if len(lines) != 3 {
		t.Fatalf("Parse() returned %d lines; want 3", len(lines))
	}
	wantStarts := []int{10000, 20000, 30000}
	for i, want := range wantStarts {
		if lines[i].Start != want {
			t.Errorf("line %d start = %d; want %d", i, lines[i].Start, want)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse("no timestamps here\n"); err == nil {
		t.Fatal("Parse() err = nil; want error for missing timestamps")
	}
}

func TestFormat(t *testing.T) {
	lines := []align.Line{
		{Start: 1500, Text: "Lucid dreams"},
		{Start: 63250, Text: "later line"},
	}
	want := "[00:01.50]Lucid dreams\n[01:03.25]later line\n"
	if got := Format(lines); got != want {
		t.Errorf("Format() = %q; want %q", got, want)
	}
}

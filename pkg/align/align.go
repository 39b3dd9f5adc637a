package align

import (
	"math"
	"strings"
	"unicode"
)

// Word is a single transcript word with millisecond timestamps.
type Word struct {
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Line is a lyric line with millisecond timestamps. Confidence is the mean
// transcript confidence across the matched words, or 0 when the timing was
// synthesized because no acceptable match was found.
type Line struct {
	ID         string  `json:"id,omitempty"`
	Start      int     `json:"start_ms"`
	End        int     `json:"end_ms,omitempty"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Options are the alignment policy knobs. Zero values fall back to the
// defaults below.
type Options struct {
	// Window is how many unconsumed transcript words are scanned per line.
	Window int
	// MinLineScore is the normalized score a candidate offset must reach.
	MinLineScore float64
	// MinTokenSimilarity is the edit-distance similarity for a partial
	// token match, worth 0.7 instead of 1.0.
	MinTokenSimilarity float64
	// EarlyStop ends the window scan once an offset scores above it.
	EarlyStop float64
	// Gap is the synthetic start offset after the previous line, in ms.
	Gap int
	// WordDuration is the synthetic per-word duration estimate, in ms.
	WordDuration int
}

const (
	defaultWindow             = 50
	defaultMinLineScore       = 0.3
	defaultMinTokenSimilarity = 0.7
	defaultEarlyStop          = 0.9
	defaultGap                = 500
	defaultWordDuration       = 300
)

func (o Options) withDefaults() Options {
	if o.Window == 0 {
		o.Window = defaultWindow
	}
	if o.MinLineScore == 0 {
		o.MinLineScore = defaultMinLineScore
	}
	if o.MinTokenSimilarity == 0 {
		o.MinTokenSimilarity = defaultMinTokenSimilarity
	}
	if o.EarlyStop == 0 {
		o.EarlyStop = defaultEarlyStop
	}
	if o.Gap == 0 {
		o.Gap = defaultGap
	}
	if o.WordDuration == 0 {
		o.WordDuration = defaultWordDuration
	}
	return o
}

// Lines aligns raw lyric text against transcript words and returns one Line
// per non-empty lyric line, in input order.
//
// A cursor over the transcript advances monotonically: words consumed by one
// line are never revisited by a later one, since lyric lines occur in the
// same order as their audio. Each line scans a bounded window of unconsumed
// words for the best scoring start offset. Lines that never reach the
// acceptance floor get a synthesized timestamp and confidence 0, so the
// output always has exactly one entry per input line.
func Lines(words []Word, lyrics string, opts Options) []Line {
	opts = opts.withDefaults()

	var out []Line
	wordIdx := 0
	prevEnd := 0
	first := true
	for _, raw := range strings.Split(lyrics, "\n") {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		tokens := tokenize(text)
		if len(tokens) == 0 {
			// Lines of pure punctuation can't be matched, only placed.
			out = append(out, synthesize(text, 1, first, prevEnd, opts))
			first = false
			prevEnd = out[len(out)-1].End
			continue
		}

		offset, score := bestOffset(words[wordIdx:], tokens, opts)
		if offset < 0 || score < opts.MinLineScore {
			line := synthesize(text, len(tokens), first, prevEnd, opts)
			out = append(out, line)
			first = false
			prevEnd = line.End
			continue
		}

		start := wordIdx + offset
		n := len(tokens)
		if rest := len(words) - start; n > rest {
			n = rest
		}
		matched := words[start : start+n]
		var sum float64
		for _, w := range matched {
			sum += w.Confidence
		}
		conf := math.Round(sum/float64(n)*100) / 100
		line := Line{
			Start:      matched[0].Start,
			End:        matched[n-1].End,
			Text:       text,
			Confidence: conf,
		}
		out = append(out, line)
		wordIdx = start + n
		prevEnd = line.End
		first = false
	}
	return out
}

// bestOffset scans candidate start offsets within the window and returns the
// best normalized score, or -1 when no words remain.
func bestOffset(words []Word, tokens []string, opts Options) (int, float64) {
	if len(words) == 0 {
		return -1, 0
	}
	max := opts.Window
	if max > len(words) {
		max = len(words)
	}
	bestOff := -1
	bestScore := 0.0
	for off := 0; off < max; off++ {
		var score float64
		for i, tok := range tokens {
			j := off + i
			if j >= len(words) {
				break
			}
			w := normalizeToken(words[j].Text)
			switch {
			case w == tok:
				score += 1.0
			case Similarity(w, tok) > opts.MinTokenSimilarity:
				score += 0.7
			}
		}
		norm := score / float64(len(tokens))
		if norm > bestScore {
			bestScore = norm
			bestOff = off
		}
		if norm > opts.EarlyStop {
			break
		}
	}
	return bestOff, bestScore
}

func synthesize(text string, tokens int, first bool, prevEnd int, opts Options) Line {
	start := 0
	if !first {
		start = prevEnd + opts.Gap
	}
	return Line{
		Start:      start,
		End:        start + tokens*opts.WordDuration,
		Text:       text,
		Confidence: 0,
	}
}

// tokenize splits a lyric line into lowercase alphanumeric tokens.
func tokenize(s string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

func normalizeToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

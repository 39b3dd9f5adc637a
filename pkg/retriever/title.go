package retriever

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	extensionRe   = regexp.MustCompile(`(?i)\.(mp3|wav|m4a|flac|ogg|aac|aiff)$`)
	bracketsRe    = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)
	featRe        = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?|prod\.?|with)\s+.*$`)
	trailingNumRe = regexp.MustCompile(`\s+\d+$`)
	spacesRe      = regexp.MustCompile(`\s+`)
)

// Normalize strips the noise commonly embedded in catalog titles: file
// extensions, bracketed annotations, feature/producer tags and trailing
// standalone numbers.
func Normalize(title string) string {
	s := strings.TrimSpace(title)
	s = extensionRe.ReplaceAllString(s, "")
	s = bracketsRe.ReplaceAllString(s, " ")
	s = featRe.ReplaceAllString(s, "")
	for {
		next := trailingNumRe.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Variants returns decreasingly specific search terms for a title: the full
// cleaned title, its first three words and its first word.
func Variants(title string) []string {
	cleaned := Normalize(title)
	if !hasAlnum(cleaned) {
		return nil
	}
	variants := []string{cleaned}
	words := strings.Fields(cleaned)
	if len(words) > 3 {
		variants = append(variants, strings.Join(words[:3], " "))
	}
	if len(words) > 1 {
		variants = append(variants, words[0])
	}
	return variants
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

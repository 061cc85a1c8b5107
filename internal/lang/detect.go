// Package lang guesses a language tag for free-text event content.
//
// The guess is attached to events at index time and is best-effort: a wrong
// tag costs nothing but a misfiled row in an advisory column. Detection is
// a pure function - script counting for non-Latin text, a small stopword
// table for Latin text - and has no external dependencies beyond the
// Unicode tables.
package lang

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// scriptTags maps dominant scripts to a language tag. Scripts used by
// essentially one language give a confident answer without any wordlist.
var scriptTags = []struct {
	ranges *unicode.RangeTable
	tag    language.Tag
}{
	{unicode.Hiragana, language.Japanese},
	{unicode.Katakana, language.Japanese},
	{unicode.Hangul, language.Korean},
	{unicode.Han, language.Chinese},
	{unicode.Cyrillic, language.Russian},
	{unicode.Arabic, language.Arabic},
	{unicode.Hebrew, language.Hebrew},
	{unicode.Greek, language.Greek},
	{unicode.Thai, language.Thai},
	{unicode.Devanagari, language.Hindi},
}

// stopwords holds high-frequency function words per Latin-script language.
// The text is scored against each set; most hits wins.
var stopwords = map[string][]string{
	"en": {"the", "and", "is", "to", "of", "in", "that", "it", "you", "for", "with", "not"},
	"es": {"el", "la", "los", "las", "que", "de", "y", "en", "un", "una", "es", "no", "por"},
	"fr": {"le", "la", "les", "des", "et", "est", "que", "dans", "pour", "pas", "une", "vous"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "ein", "eine", "ich", "sie", "mit", "für"},
	"pt": {"o", "os", "as", "que", "de", "e", "em", "um", "uma", "não", "para", "com"},
	"it": {"il", "lo", "gli", "che", "di", "e", "in", "un", "una", "non", "per", "con"},
}

// Detect returns a best-guess BCP-47 tag for the text, or the empty string
// when the text carries no usable signal.
func Detect(text string) string {
	text = norm.NFC.String(text)

	counts := make([]int, len(scriptTags))
	var letters int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		for i := range scriptTags {
			if unicode.Is(scriptTags[i].ranges, r) {
				counts[i]++
				break
			}
		}
	}
	if letters == 0 {
		return ""
	}

	// A script that covers at least a quarter of the letters dominates.
	// Hiragana/Katakana are checked before Han so Japanese text with kanji
	// resolves to Japanese rather than Chinese.
	best, bestCount := -1, 0
	for i, c := range counts {
		if c > bestCount {
			best, bestCount = i, c
		}
	}
	if best >= 0 && bestCount*4 >= letters {
		return scriptTags[best].tag.String()
	}

	return detectLatin(text)
}

// detectLatin scores lowercase words against the stopword table.
func detectLatin(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) == 0 {
		return ""
	}

	scores := make(map[string]int, len(stopwords))
	for _, w := range words {
		for tag, set := range stopwords {
			for _, sw := range set {
				if w == sw {
					scores[tag]++
					break
				}
			}
		}
	}

	bestTag, bestScore := "", 0
	for tag, score := range scores {
		if score > bestScore || (score == bestScore && tag < bestTag) {
			bestTag, bestScore = tag, score
		}
	}
	if bestScore == 0 {
		return ""
	}
	return language.MustParse(bestTag).String()
}

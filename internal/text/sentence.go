package text

import (
	"strings"
	"unicode"
)

// Language identifies which sentence splitter applies to a text.
type Language string

const (
	LanguageNepali  Language = "ne"
	LanguageGeneral Language = "en"
)

// detectSample bounds how much of a text the script detector looks at.
const detectSample = 500

// DetectLanguage classifies text by script. Text whose letters are mostly
// Devanagari is treated as Nepali; anything else, including text with no
// letters at all, falls back to the general splitter.
func DetectLanguage(text string) Language {
	var deva, other, seen int
	for _, r := range text {
		if seen >= detectSample {
			break
		}
		seen++
		switch {
		case unicode.Is(unicode.Devanagari, r):
			if unicode.IsLetter(r) || unicode.IsMark(r) {
				deva++
			}
		case unicode.IsLetter(r):
			other++
		}
	}
	if deva > 0 && deva >= other {
		return LanguageNepali
	}
	return LanguageGeneral
}

const (
	danda       = '।'
	doubleDanda = '॥'
)

// SplitSentences splits text into trimmed sentences using the splitter
// chosen by DetectLanguage. Terminators stay attached to their sentence, so
// joining the result with single spaces reproduces the text up to
// whitespace.
func SplitSentences(text string) []string {
	if DetectLanguage(text) == LanguageNepali {
		return split(text, isDevanagariTerminator, false)
	}
	return split(text, isGeneralTerminator, true)
}

func isDevanagariTerminator(r rune) bool {
	return r == danda || r == doubleDanda || r == '?' || r == '!' || r == '.'
}

func isGeneralTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

// closers may trail a terminator and still belong to the sentence.
func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '’', '”', '»':
		return true
	}
	return false
}

var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "vs": {}, "etc": {}, "inc": {}, "ltd": {}, "co": {}, "no": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {}, "aug": {},
	"sep": {}, "sept": {}, "oct": {}, "nov": {}, "dec": {}, "gov": {}, "gen": {},
	"e.g": {}, "i.e": {}, "u.s": {}, "rs": {},
}

func split(text string, isTerm func(rune) bool, checkAbbrev bool) []string {
	runes := []rune(text)
	var sentences []string
	start := 0

	emit := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			emit(i)
			continue
		}
		if !isTerm(r) {
			continue
		}

		end := i + 1
		for end < len(runes) && (isTerm(runes[end]) || isCloser(runes[end])) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			// decimal points, urls, initials inside a token
			i = end - 1
			continue
		}
		if checkAbbrev && r == '.' && isAbbreviation(runes[start:i]) {
			i = end - 1
			continue
		}
		if checkAbbrev && r == '.' && end < len(runes) && startsLowercase(runes[end:]) {
			i = end - 1
			continue
		}
		emit(end)
		i = end - 1
	}
	emit(len(runes))
	return sentences
}

func isAbbreviation(prefix []rune) bool {
	j := len(prefix)
	for j > 0 && !unicode.IsSpace(prefix[j-1]) {
		j--
	}
	word := strings.ToLower(strings.Trim(string(prefix[j:]), "(\"'"))
	if word == "" {
		return false
	}
	if _, ok := abbreviations[word]; ok {
		return true
	}
	// single initials such as "J." in "J. Smith"
	w := []rune(word)
	return len(w) == 1 && unicode.IsLetter(w[0])
}

func startsLowercase(rest []rune) bool {
	for _, r := range rest {
		if unicode.IsSpace(r) {
			continue
		}
		return unicode.IsLower(r)
	}
	return false
}

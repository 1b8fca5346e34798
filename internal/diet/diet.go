// Package diet detects the dietary preference a user mentions in free text.
package diet

import (
	"regexp"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// General is returned when no known diet is mentioned.
const General = "general"

// Vocabulary lists the recognised diets in priority order.
var Vocabulary = []string{
	"vegan",
	"vegetarian",
	"keto",
	"paleo",
	"gluten-free",
	"dairy-free",
	"low-carb",
	"high-protein",
	"mediterranean",
}

var patterns = compile(Vocabulary)

func compile(terms []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(terms))
	for i, term := range terms {
		out[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
	}
	return out
}

// Detect returns the first vocabulary entry found in input as a whole word,
// ignoring case, or General.
func Detect(input string) string {
	for i, re := range patterns {
		for _, loc := range re.FindAllStringIndex(input, -1) {
			if wholeWord(input, loc[0], loc[1]) {
				return Vocabulary[i]
			}
		}
	}
	return General
}

// wholeWord reports whether input[start:end] has no word rune on either
// side. RE2's \b only knows ASCII word characters.
func wholeWord(input string, start, end int) bool {
	if r, size := utf8.DecodeLastRuneInString(input[:start]); size > 0 && isWordRune(r) {
		return false
	}
	if r, size := utf8.DecodeRuneInString(input[end:]); size > 0 && isWordRune(r) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Label renders a tag for display with only its first letter upper-cased,
// e.g. "gluten-free" -> "Gluten-free".
func Label(tag string) string {
	r, size := utf8.DecodeRuneInString(tag)
	if size == 0 {
		return tag
	}
	return cases.Upper(language.English).String(string(r)) + cases.Lower(language.English).String(tag[size:])
}

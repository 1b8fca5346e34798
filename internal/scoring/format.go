package scoring

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	CriterionCustomization = "customization"
	CriterionFormatting    = "formatting"

	customizationBase    = 5
	missingDietPenalty   = 2
	scoreFloor           = 1
	longReplyRuneLimit   = 800
	structuredLineBreaks = 3
)

// RE2's \s and \d are ASCII only; these classes also cover Unicode
// whitespace (no-break, em and ideographic spaces) and decimal digits.
const (
	space    = `[\t\n\v\f\r \x{1c}-\x{1f}\x{85}\p{Z}]`
	nonSpace = `[^\t\n\v\f\r \x{1c}-\x{1f}\x{85}\p{Z}]`
	digit    = `\p{Nd}`
)

var (
	bulletRe   = regexp.MustCompile(`[-•*]` + space)
	numberedRe = regexp.MustCompile(digit + `+\.` + space)
	headingRe  = regexp.MustCompile(`##?` + space + `[A-Za-z0-9]`)
	crampedRe  = regexp.MustCompile(`[,;:\-]` + nonSpace)
)

// FormatPolicy combines a layout score with a check that the reply mentions
// the requested diet.
type FormatPolicy struct{}

func (FormatPolicy) Name() string { return PolicyFormat }

// UsesDiet reports that scores depend on the detected diet tag.
func (FormatPolicy) UsesDiet() bool { return true }

func (FormatPolicy) Score(text, dietTag string) Result {
	b := Breakdown{
		{Name: CriterionCustomization, Points: Customization(text, dietTag)},
		{Name: CriterionFormatting, Points: Formatting(text)},
	}
	return result(b, 0)
}

// Formatting rewards line breaks, lists, headings and tables, penalises
// cramped punctuation and very long replies. Never below 1.
func Formatting(text string) int {
	score := 0
	if strings.Count(text, "\n") > structuredLineBreaks {
		score += 2
	}
	if bulletRe.MatchString(text) || numberedRe.MatchString(text) {
		score += 2
	}
	if headingRe.MatchString(text) {
		score += 2
	}
	if strings.Contains(text, "|") && strings.Contains(text, "-") {
		score += 3
	}
	if crampedRe.MatchString(text) {
		score--
	}
	if utf8.RuneCountInString(text) > longReplyRuneLimit {
		score -= 2
	}
	return max(score, scoreFloor)
}

// Customization is 5, or 3 when the diet tag does not appear in the text.
func Customization(text, dietTag string) int {
	score := customizationBase
	if !strings.Contains(strings.ToLower(text), strings.ToLower(dietTag)) {
		score -= missingDietPenalty
	}
	return max(score, scoreFloor)
}

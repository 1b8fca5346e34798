package scoring

import "strings"

const (
	CriterionNutrition   = "Nutritional Accuracy"
	CriterionPersonal    = "Personalization"
	CriterionSupplements = "Supplement Integration"
	CriterionReadability = "Readability & Clarity"

	contentPoints       = 10
	contentMaxScore     = 4 * contentPoints
	readableWordMinimum = 30
)

var (
	nutritionKeywords  = []string{"protein", "carbs", "fats", "macronutrients"}
	personalKeywords   = []string{"custom", "personalized", "goal", "dietary needs"}
	supplementKeywords = []string{"creatine", "whey", "omega-3", "multivitamin"}
)

// ContentPolicy awards points for nutrition, personalization and supplement
// keywords and for replies longer than 30 words. Keywords match as plain
// substrings of the lowercased text.
type ContentPolicy struct{}

func (ContentPolicy) Name() string { return PolicyContent }

func (ContentPolicy) UsesDiet() bool { return false }

func (ContentPolicy) Score(text, _ string) Result {
	lower := strings.ToLower(text)

	b := Breakdown{
		{Name: CriterionNutrition, Points: pointsIf(containsAny(lower, nutritionKeywords))},
		{Name: CriterionPersonal, Points: pointsIf(containsAny(lower, personalKeywords))},
		{Name: CriterionSupplements, Points: pointsIf(containsAny(lower, supplementKeywords))},
		{Name: CriterionReadability, Points: pointsIf(len(strings.Fields(text)) > readableWordMinimum)},
	}
	return result(b, contentMaxScore)
}

func pointsIf(ok bool) int {
	if ok {
		return contentPoints
	}
	return 0
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

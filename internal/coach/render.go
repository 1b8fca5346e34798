package coach

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/stellarlinkco/mealmatch/internal/diet"
)

var (
	ScoreLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	BreakdownStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	WinnerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	CoachStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	ErrorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// RenderScores lists every candidate's score and the selected backend.
func RenderScores(r *Reply) string {
	var sb strings.Builder
	for _, c := range r.Candidates {
		total := fmt.Sprintf("%d", c.Result.Total)
		if c.Result.Max > 0 {
			total = fmt.Sprintf("%d / %d", c.Result.Total, c.Result.Max)
		}
		sb.WriteString(ScoreLabelStyle.Render(c.Backend + " Score:"))
		sb.WriteString(" ")
		sb.WriteString(total)
		sb.WriteString(" ")
		sb.WriteString(BreakdownStyle.Render("(" + c.Result.Breakdown.String() + ")"))
		sb.WriteString("\n")
	}
	sb.WriteString(WinnerStyle.Render("Best Model for This Query: " + r.Winner.Backend))
	return sb.String()
}

// RenderAnswer is Answer with the header styled for a terminal.
func RenderAnswer(r *Reply) string {
	header := CoachStyle.Render(fmt.Sprintf("AI Coach (Diet: %s):", diet.Label(r.Diet)))
	return header + "\n" + r.Winner.Text
}

// Welcome is shown when a session starts.
const Welcome = `Welcome to MyMealMatch! Your Personalized Path to Healthy Eating Starts Here!

We tailor meal plans and supplements to your health goals, dietary needs and lifestyle.
Tell us about your goals and food preferences and we'll craft your meal plan.`

// Farewell is printed when the user leaves the chat.
const Farewell = "Goodbye! Stay healthy!"

// Unavailable is shown instead of an answer when a turn fails.
const Unavailable = "Sorry, response unavailable. Please try again."

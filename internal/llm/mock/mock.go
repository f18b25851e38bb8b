// Package mock is an offline Tutor that grades by rubric keywords. It needs no
// network access and is used for local development and tests.
package mock

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hamiltonprep/mathcoach/internal/feedback"
	"github.com/hamiltonprep/mathcoach/internal/llm"
	"github.com/hamiltonprep/mathcoach/internal/model"
)

var hintPrefix = map[model.Persona]map[model.HintRung]string{
	model.PersonaCoach: {
		model.RungNudge:   "Take a breath and think about this: ",
		model.RungPointer: "Here is a helpful direction: ",
		model.RungKey:     "An important step to consider: ",
	},
	model.PersonaQuizMaster: {
		model.RungNudge:   "Quick question: ",
		model.RungPointer: "Consider this: ",
		model.RungKey:     "The key insight is: ",
	},
	model.PersonaRival: {
		model.RungNudge:   "Stuck already? Think about: ",
		model.RungPointer: "I would look at: ",
		model.RungKey:     "Fine, here is the crucial step: ",
	},
}

var presentationMarkers = []string{"therefore", "hence", "thus", "qed", "=", "since", "because", "proof"}

// Tutor implements llm.Tutor without a model.
type Tutor struct{}

// New returns an offline tutor.
func New() *Tutor { return &Tutor{} }

// GenerateHint returns a persona-flavoured hint built from the problem's tags and outline.
func (t *Tutor) GenerateHint(ctx context.Context, p llm.HintParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	emit(p.OnDelta, fmt.Sprintf("Choosing a %s hint for %q.", strings.ToLower(string(p.Rung)), p.Problem.Title))

	prefix := hintPrefix[p.Persona][p.Rung]
	outline := p.Problem.SolutionOutline
	switch p.Rung {
	case model.RungNudge:
		return prefix + "Have you tried restating what the problem is asking? The problem involves: " +
			strings.Join(p.Problem.TopicTags, ", ") + ".", nil
	case model.RungPointer:
		if len(outline) > 0 {
			return prefix + outline[0], nil
		}
		return prefix + "Start by carefully defining your variables and what you need to show.", nil
	case model.RungKey:
		if len(outline) > 0 {
			return prefix + outline[len(outline)/2], nil
		}
		return prefix + "Think about the core algebraic manipulation needed.", nil
	}
	return "", fmt.Errorf("unknown hint rung %q", p.Rung)
}

// GradeAttempt awards marks per rubric component by keyword coverage, then normalizes.
func (t *Tutor) GradeAttempt(ctx context.Context, p llm.GradeParams) (model.FeedbackResult, error) {
	if err := ctx.Err(); err != nil {
		return model.FeedbackResult{}, err
	}
	emit(p.OnDelta, "Checking the attempt against each rubric component.")

	text := strings.ToLower(p.AttemptText)
	scores := make([]feedback.RawScore, len(p.Problem.Rubric))
	awards := make([]float64, len(p.Problem.Rubric))
	comments := make([]string, len(p.Problem.Rubric))
	for i, c := range p.Problem.Rubric {
		awards[i], comments[i] = keywordScore(c, text)
	}

	if countMarkers(text) >= 2 {
		for i, c := range p.Problem.Rubric {
			if c.Name == "Presentation" && int(awards[i]) < c.Marks {
				awards[i] = math.Min(awards[i]+1, float64(c.Marks))
				comments[i] = "Good mathematical writing style."
			}
		}
	}
	if len(p.Claims) >= 2 && len(p.Problem.Rubric) > 0 && int(awards[0]) < p.Problem.Rubric[0].Marks {
		awards[0]++
	}

	for i, c := range p.Problem.Rubric {
		a := awards[i]
		scores[i] = feedback.RawScore{Name: c.Name, Awarded: &a, Comment: comments[i]}
	}

	raw := feedback.Raw{
		RubricBreakdown: scores,
		Tips:            weakestTips(p.Problem.Rubric, awards, comments),
	}
	return feedback.Normalize(p.Problem, raw, p.HintsUsed), nil
}

func keywordScore(c model.RubricComponent, text string) (float64, string) {
	matches := 0
	for _, kw := range c.Keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			matches++
		}
	}
	ratio := 0.0
	if len(c.Keywords) > 0 {
		ratio = float64(matches) / float64(len(c.Keywords))
	}

	switch {
	case ratio >= 0.6:
		return float64(c.Marks), "Good coverage of key ideas."
	case ratio >= 0.3:
		return math.Ceil(float64(c.Marks) * 0.6), "Partial - some key elements missing."
	case len(text) > 50:
		return math.Ceil(float64(c.Marks) * 0.3), "Attempt shown but key ideas not clearly stated."
	}
	return 0, "Not addressed."
}

func countMarkers(text string) int {
	n := 0
	for _, m := range presentationMarkers {
		if strings.Contains(text, m) {
			n++
		}
	}
	return n
}

// weakestTips suggests keywords for the three components with the lowest award ratio.
func weakestTips(rubric []model.RubricComponent, awards []float64, comments []string) []string {
	idx := make([]int, len(rubric))
	for i := range idx {
		idx[i] = i
	}
	ratio := func(i int) float64 {
		if rubric[i].Marks <= 0 {
			return 1
		}
		return awards[i] / float64(rubric[i].Marks)
	}
	sort.SliceStable(idx, func(a, b int) bool { return ratio(idx[a]) < ratio(idx[b]) })

	var tips []string
	for _, i := range idx[:min(3, len(idx))] {
		c := rubric[i]
		if int(awards[i]) >= c.Marks {
			continue
		}
		kws := c.Keywords[:min(3, len(c.Keywords))]
		tips = append(tips, fmt.Sprintf("Improve %q: %s Try including: %s.", c.Name, comments[i], strings.Join(kws, ", ")))
	}
	if len(tips) == 0 {
		tips = append(tips, "Strong attempt! Consider adding more rigour to your justifications.")
	}
	return tips
}

func emit(onDelta func(llm.Delta), thought string) {
	if onDelta == nil {
		return
	}
	onDelta(llm.Delta{ThoughtDelta: thought})
	onDelta(llm.Delta{TextDelta: " "})
}

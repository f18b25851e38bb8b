// Package feedback reconciles model-produced grading output with a problem's rubric.
package feedback

import (
	"math"
	"strings"

	"github.com/hamiltonprep/mathcoach/internal/llm/prompts"
	"github.com/hamiltonprep/mathcoach/internal/model"
)

const (
	// MaxTips caps the tip list shown to the student.
	MaxTips = 5
	// KeyHintCap is the highest estimated mark after a KEY hint.
	KeyHintCap = 8

	FallbackTip = "Add clearer justifications for each step you use."
	KeyCapTip   = "Marks are capped at 8/10 because you used a KEY hint. Try a second attempt using only NUDGE/POINTER hints to unlock full marks."
)

// RawScore is one rubric entry as the model returned it. Numbers are loose on purpose.
type RawScore struct {
	Name     string   `json:"name" validate:"required"`
	MaxMarks *float64 `json:"maxMarks"`
	Awarded  *float64 `json:"awarded"`
	Comment  string   `json:"comment"`
}

// Raw is grading output as decoded from the model, before normalization.
// EstimatedMarks is decoded but never trusted.
type Raw struct {
	EstimatedMarks    *float64   `json:"estimatedMarks"`
	RubricBreakdown   []RawScore `json:"rubricBreakdown" validate:"required,min=1,dive"`
	Tips              []string   `json:"tips"`
	RewrittenSolution string     `json:"rewrittenSolution"`
}

// Normalize aligns raw with the problem rubric. The breakdown always has one entry per
// rubric component in rubric order, awards are clamped, and the 0-10 estimate is
// recomputed from the clamped awards.
func Normalize(problem model.Problem, raw Raw, hintsUsed []model.HintRung) model.FeedbackResult {
	byName := make(map[string]RawScore, len(raw.RubricBreakdown))
	for _, s := range raw.RubricBreakdown {
		byName[strings.TrimSpace(s.Name)] = s
	}

	breakdown := make([]model.RubricScore, 0, len(problem.Rubric))
	awardedSum, maxSum := 0, 0
	for _, c := range problem.Rubric {
		maxMarks := max(c.Marks, 0)
		s, ok := byName[strings.TrimSpace(c.Name)]

		awarded := 0
		if ok && s.Awarded != nil {
			awarded = clampInt(*s.Awarded, 0, maxMarks)
		}
		comment := strings.TrimSpace(s.Comment)
		if comment == "" {
			comment = fallbackComment(awarded, maxMarks)
		}

		breakdown = append(breakdown, model.RubricScore{
			Name:     c.Name,
			MaxMarks: maxMarks,
			Awarded:  awarded,
			Comment:  comment,
		})
		awardedSum += awarded
		maxSum += maxMarks
	}

	estimated := 0
	if maxSum > 0 {
		estimated = clampInt(float64(awardedSum)/float64(maxSum)*10, 0, 10)
	}

	tips := make([]string, 0, len(raw.Tips)+1)
	for _, tip := range raw.Tips {
		if tip = strings.TrimSpace(tip); tip != "" {
			tips = append(tips, tip)
		}
	}
	if len(tips) == 0 {
		tips = append(tips, FallbackTip)
	}

	if model.ContainsRung(hintsUsed, model.RungKey) {
		estimated = min(estimated, KeyHintCap)
		tips = append([]string{KeyCapTip}, tips...)
	}
	if len(tips) > MaxTips {
		tips = tips[:MaxTips]
	}

	solution := strings.TrimSpace(raw.RewrittenSolution)
	if solution == "" {
		solution = prompts.NumberedSteps(problem.SolutionOutline)
	}

	return model.FeedbackResult{
		EstimatedMarks:    estimated,
		RubricBreakdown:   breakdown,
		Tips:              tips,
		RewrittenSolution: solution,
	}
}

func fallbackComment(awarded, maxMarks int) string {
	switch {
	case awarded == maxMarks:
		return "Fully addressed"
	case awarded > 0:
		return "Partially addressed"
	default:
		return "Not addressed"
	}
}

// clampInt rounds v and clamps it to [lo, hi]. NaN and infinities map to lo.
func clampInt(v float64, lo, hi int) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return lo
	}
	r := math.Round(v)
	if r < float64(lo) {
		return lo
	}
	if r > float64(hi) {
		return hi
	}
	return int(r)
}

package feedback

import (
	"math"
	"strings"
	"testing"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

func f(v float64) *float64 { return &v }

func twoPartProblem() model.Problem {
	return model.Problem{
		ID:    "p1",
		Title: "Two parts",
		Rubric: []model.RubricComponent{
			{Name: "A", Marks: 5},
			{Name: "B", Marks: 5},
		},
		SolutionOutline: []string{"First step", "Second step"},
	}
}

func TestNormalizeEndToEnd(t *testing.T) {
	raw := Raw{
		RubricBreakdown: []RawScore{
			{Name: "A", Awarded: f(7), Comment: "Solid setup"},
			{Name: "B", Awarded: f(-1), Comment: "Missing"},
		},
		Tips:              []string{"Check parity"},
		RewrittenSolution: "1. Do it",
	}
	got := Normalize(twoPartProblem(), raw, nil)

	if got.RubricBreakdown[0].Awarded != 5 || got.RubricBreakdown[0].Comment != "Solid setup" {
		t.Errorf("A = %+v, want awarded 5 with model comment", got.RubricBreakdown[0])
	}
	if got.RubricBreakdown[1].Awarded != 0 {
		t.Errorf("B awarded = %d, want 0", got.RubricBreakdown[1].Awarded)
	}
	if got.EstimatedMarks != 5 {
		t.Errorf("EstimatedMarks = %d, want 5", got.EstimatedMarks)
	}
	if got.RewrittenSolution != "1. Do it" {
		t.Errorf("RewrittenSolution = %q", got.RewrittenSolution)
	}
}

func TestNormalizeRubricCompleteness(t *testing.T) {
	problem := model.Problem{Rubric: []model.RubricComponent{
		{Name: "Setup", Marks: 2},
		{Name: "Core", Marks: 6},
		{Name: "Presentation", Marks: 2},
	}}

	tests := []struct {
		name string
		raw  Raw
	}{
		{"empty", Raw{}},
		{"missing components", Raw{RubricBreakdown: []RawScore{{Name: "Core", Awarded: f(3)}}}},
		{"extra components", Raw{RubricBreakdown: []RawScore{
			{Name: "Bonus", Awarded: f(9)},
			{Name: "Setup", Awarded: f(2)},
			{Name: "Style", Awarded: f(1)},
		}}},
		{"duplicates", Raw{RubricBreakdown: []RawScore{
			{Name: "Core", Awarded: f(1)},
			{Name: "Core", Awarded: f(4)},
		}}},
		{"reordered", Raw{RubricBreakdown: []RawScore{
			{Name: "Presentation", Awarded: f(2)},
			{Name: "Core", Awarded: f(6)},
			{Name: "Setup", Awarded: f(2)},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(problem, tt.raw, nil)
			if len(got.RubricBreakdown) != len(problem.Rubric) {
				t.Fatalf("breakdown has %d entries, want %d", len(got.RubricBreakdown), len(problem.Rubric))
			}
			for i, c := range problem.Rubric {
				if got.RubricBreakdown[i].Name != c.Name {
					t.Errorf("entry %d name = %q, want %q", i, got.RubricBreakdown[i].Name, c.Name)
				}
				if got.RubricBreakdown[i].MaxMarks != c.Marks {
					t.Errorf("entry %d maxMarks = %d, want %d", i, got.RubricBreakdown[i].MaxMarks, c.Marks)
				}
				if got.RubricBreakdown[i].Comment == "" {
					t.Errorf("entry %d has empty comment", i)
				}
			}
		})
	}

	t.Run("last duplicate wins", func(t *testing.T) {
		got := Normalize(problem, tests[3].raw, nil)
		if got.RubricBreakdown[1].Awarded != 4 {
			t.Errorf("Core awarded = %d, want 4", got.RubricBreakdown[1].Awarded)
		}
	})
}

func TestNormalizeTrimsNames(t *testing.T) {
	problem := model.Problem{Rubric: []model.RubricComponent{
		{Name: " Setup ", Marks: 4},
		{Name: "Proof", Marks: 6},
	}}
	raw := Raw{RubricBreakdown: []RawScore{
		{Name: "Setup", Awarded: f(3)},
		{Name: "  Proof\n", Awarded: f(6)},
	}}

	got := Normalize(problem, raw, nil)
	if got.RubricBreakdown[0].Awarded != 3 || got.RubricBreakdown[1].Awarded != 6 {
		t.Errorf("awards = %d, %d, want 3, 6", got.RubricBreakdown[0].Awarded, got.RubricBreakdown[1].Awarded)
	}
	if got.RubricBreakdown[0].Name != " Setup " {
		t.Errorf("breakdown name = %q, want the rubric's own name", got.RubricBreakdown[0].Name)
	}
	if got.EstimatedMarks != 9 {
		t.Errorf("EstimatedMarks = %d, want 9", got.EstimatedMarks)
	}
}

func TestNormalizeClamping(t *testing.T) {
	tests := []struct {
		name    string
		awarded *float64
		want    int
	}{
		{"missing", nil, 0},
		{"negative", f(-3), 0},
		{"above max", f(12), 5},
		{"fraction rounds down", f(2.4), 2},
		{"fraction rounds up", f(2.5), 3},
		{"nan", f(math.NaN()), 0},
		{"infinite", f(math.Inf(1)), 0},
		{"exact", f(4), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := Raw{RubricBreakdown: []RawScore{{Name: "A", Awarded: tt.awarded}}}
			got := Normalize(twoPartProblem(), raw, nil)
			a := got.RubricBreakdown[0].Awarded
			if a != tt.want {
				t.Errorf("awarded = %d, want %d", a, tt.want)
			}
			if a < 0 || a > 5 {
				t.Errorf("awarded %d outside [0, 5]", a)
			}
		})
	}
}

func TestNormalizeFallbackComments(t *testing.T) {
	raw := Raw{RubricBreakdown: []RawScore{
		{Name: "A", Awarded: f(5), Comment: "  "},
		{Name: "B", Awarded: f(2)},
	}}
	problem := twoPartProblem()
	problem.Rubric = append(problem.Rubric, model.RubricComponent{Name: "C", Marks: 3})

	got := Normalize(problem, raw, nil)
	want := []string{"Fully addressed", "Partially addressed", "Not addressed"}
	for i, w := range want {
		if got.RubricBreakdown[i].Comment != w {
			t.Errorf("entry %d comment = %q, want %q", i, got.RubricBreakdown[i].Comment, w)
		}
	}
}

func TestNormalizeIgnoresModelTotal(t *testing.T) {
	raw := Raw{
		EstimatedMarks: f(10),
		RubricBreakdown: []RawScore{
			{Name: "A", Awarded: f(1)},
			{Name: "B", Awarded: f(2)},
		},
	}
	got := Normalize(twoPartProblem(), raw, nil)
	if got.EstimatedMarks != 3 {
		t.Errorf("EstimatedMarks = %d, want 3 from breakdown", got.EstimatedMarks)
	}
}

func TestNormalizeScoreDerivation(t *testing.T) {
	problem := model.Problem{Rubric: []model.RubricComponent{
		{Name: "X", Marks: 3},
		{Name: "Y", Marks: 4},
	}}
	tests := []struct {
		x, y float64
		want int
	}{
		{0, 0, 0},
		{3, 4, 10},
		{1, 1, 3}, // 2/7*10 = 2.857
		{3, 0, 4}, // 3/7*10 = 4.286
		{2, 3, 7}, // 5/7*10 = 7.14
	}
	for _, tt := range tests {
		raw := Raw{RubricBreakdown: []RawScore{{Name: "X", Awarded: f(tt.x)}, {Name: "Y", Awarded: f(tt.y)}}}
		if got := Normalize(problem, raw, nil).EstimatedMarks; got != tt.want {
			t.Errorf("x=%v y=%v: EstimatedMarks = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}

	t.Run("empty rubric", func(t *testing.T) {
		got := Normalize(model.Problem{}, Raw{}, nil)
		if got.EstimatedMarks != 0 || len(got.RubricBreakdown) != 0 {
			t.Errorf("got %+v, want zero marks and empty breakdown", got)
		}
	})
}

func TestNormalizeKeyHintCap(t *testing.T) {
	full := Raw{
		RubricBreakdown: []RawScore{{Name: "A", Awarded: f(5)}, {Name: "B", Awarded: f(5)}},
		Tips:            []string{"t1", "t2", "t3", "t4", "t5", "t6"},
	}

	tests := []struct {
		name  string
		hints []model.HintRung
		cap   bool
	}{
		{"no hints", nil, false},
		{"nudge and pointer", []model.HintRung{model.RungNudge, model.RungPointer}, false},
		{"key", []model.HintRung{model.RungKey}, true},
		{"key among others", []model.HintRung{model.RungNudge, model.RungKey, model.RungPointer}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(twoPartProblem(), full, tt.hints)
			if len(got.Tips) > MaxTips {
				t.Errorf("got %d tips, want at most %d", len(got.Tips), MaxTips)
			}
			if tt.cap {
				if got.EstimatedMarks != KeyHintCap {
					t.Errorf("EstimatedMarks = %d, want %d", got.EstimatedMarks, KeyHintCap)
				}
				if got.Tips[0] != KeyCapTip {
					t.Errorf("first tip = %q, want cap explanation", got.Tips[0])
				}
				return
			}
			if got.EstimatedMarks != 10 {
				t.Errorf("EstimatedMarks = %d, want 10", got.EstimatedMarks)
			}
			if got.Tips[0] != "t1" {
				t.Errorf("first tip = %q, want t1", got.Tips[0])
			}
		})
	}

	t.Run("low score unchanged", func(t *testing.T) {
		raw := Raw{RubricBreakdown: []RawScore{{Name: "A", Awarded: f(2)}}}
		got := Normalize(twoPartProblem(), raw, []model.HintRung{model.RungKey})
		if got.EstimatedMarks != 2 {
			t.Errorf("EstimatedMarks = %d, want 2", got.EstimatedMarks)
		}
		if len(got.Tips) != 2 || got.Tips[1] != FallbackTip {
			t.Errorf("tips = %q, want cap tip then fallback", got.Tips)
		}
	})
}

func TestNormalizeTips(t *testing.T) {
	tests := []struct {
		name string
		tips []string
		want []string
	}{
		{"nil", nil, []string{FallbackTip}},
		{"all blank", []string{"", "  ", "\n"}, []string{FallbackTip}},
		{"trimmed", []string{"  a  ", "", "b"}, []string{"a", "b"}},
		{"capped", []string{"1", "2", "3", "4", "5", "6", "7"}, []string{"1", "2", "3", "4", "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(twoPartProblem(), Raw{Tips: tt.tips}, nil)
			if strings.Join(got.Tips, "|") != strings.Join(tt.want, "|") {
				t.Errorf("tips = %q, want %q", got.Tips, tt.want)
			}
		})
	}
}

func TestNormalizeRewrittenSolutionFallback(t *testing.T) {
	got := Normalize(twoPartProblem(), Raw{RewrittenSolution: "   "}, nil)
	if got.RewrittenSolution != "1. First step\n2. Second step" {
		t.Errorf("RewrittenSolution = %q", got.RewrittenSolution)
	}
}

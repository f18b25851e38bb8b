package progress

import (
	"math"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

// StudentRow is one student's line in an assignment report.
type StudentRow struct {
	StudentID    int64    `json:"studentId"`
	Username     string   `json:"username"`
	DisplayName  string   `json:"displayName"`
	Completed    int      `json:"completed"`
	Total        int      `json:"total"`
	AvgMarks     *int     `json:"avgMarks"`
	WeakestMoves []string `json:"weakestMoves"`
	Calibration  string   `json:"calibration"`
}

// ProblemRow is a problem listed on an assignment.
type ProblemRow struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Difficulty int    `json:"difficulty"`
	Statement  string `json:"statement,omitempty"`
}

// AssignmentProblems resolves an assignment's problem IDs, dropping unknown ones.
func AssignmentProblems(a model.Assignment, problems []model.Problem, withStatement bool) []ProblemRow {
	byID := make(map[string]model.Problem, len(problems))
	for _, p := range problems {
		byID[p.ID] = p
	}
	rows := []ProblemRow{}
	for _, id := range a.ProblemIDs {
		p, ok := byID[id]
		if !ok {
			continue
		}
		row := ProblemRow{ID: p.ID, Title: p.Title, Difficulty: p.Difficulty}
		if withStatement {
			row.Statement = p.Statement
		}
		rows = append(rows, row)
	}
	return rows
}

// StudentAssignmentRow reports a student's progress on an assignment. Only submitted
// attempts on the assignment's problems count.
func StudentAssignmentRow(student model.User, a model.Assignment, attempts []model.Attempt, states []model.MoveState, moves []model.Move) StudentRow {
	inAssignment := make(map[string]bool, len(a.ProblemIDs))
	for _, id := range a.ProblemIDs {
		inAssignment[id] = true
	}
	var completed []model.Attempt
	solved := map[string]bool{}
	for _, at := range submittedOnly(attempts) {
		if !inAssignment[at.ProblemID] {
			continue
		}
		completed = append(completed, at)
		solved[at.ProblemID] = true
	}

	row := StudentRow{
		StudentID:    student.ID,
		Username:     student.Username,
		DisplayName:  student.DisplayName,
		Completed:    len(solved),
		Total:        len(a.ProblemIDs),
		WeakestMoves: weakestMoves(states, moves),
		Calibration:  assignmentCalibration(completed),
	}
	if len(completed) > 0 {
		sum := 0
		for _, at := range completed {
			if at.EstimatedMarks != nil {
				sum += *at.EstimatedMarks
			}
		}
		avg := int(math.Round(float64(sum) / float64(len(completed))))
		row.AvgMarks = &avg
	}
	return row
}

func weakestMoves(states []model.MoveState, moves []model.Move) []string {
	names := make(map[string]string, len(moves))
	for _, m := range moves {
		names[m.ID] = m.Name
	}
	out := []string{}
	count := 0
	for _, ms := range states {
		if ms.Status != model.MoveNotYet {
			continue
		}
		if count == WeakestMoves {
			break
		}
		count++
		if name := names[ms.MoveID]; name != "" {
			out = append(out, name)
		}
	}
	return out
}

func assignmentCalibration(attempts []model.Attempt) string {
	avg, n := meanError(attempts)
	switch {
	case n < minAssignmentSamples:
		return "N/A"
	case avg < goodError:
		return "Good"
	case avg < okayError:
		return "Okay"
	default:
		return "Needs work"
	}
}

// Package progress aggregates submitted attempts and move states into the
// student dashboard and the per-student rows of an assignment report.
package progress

import (
	"math"
	"sort"
	"time"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

// CalibrationStatus summarizes how well a student's final confidence predicts their marks.
type CalibrationStatus string

const (
	CalibrationGood          CalibrationStatus = "GOOD"
	CalibrationOkay          CalibrationStatus = "OKAY"
	CalibrationNeedsWork     CalibrationStatus = "NEEDS_WORK"
	CalibrationNotEnoughData CalibrationStatus = "NOT_ENOUGH_DATA"
)

const (
	// RecentAttempts is how many submitted attempts the dashboard shows.
	RecentAttempts = 10
	// WeakestMoves caps the moves listed per student in an assignment report.
	WeakestMoves = 3

	minDashboardSamples  = 3
	minAssignmentSamples = 2
	goodError            = 15
	okayError            = 30
)

// Calibration is the dashboard calibration summary.
type Calibration struct {
	Status   CalibrationStatus `json:"status"`
	AvgError int               `json:"avgError"`
}

// AttemptRow is one submitted attempt on the dashboard.
type AttemptRow struct {
	ID              string    `json:"id"`
	ProblemID       string    `json:"problemId"`
	ProblemTitle    string    `json:"problemTitle"`
	Marks           *int      `json:"marks"`
	StartConfidence int       `json:"startConfidence"`
	FinalConfidence *int      `json:"finalConfidence"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

// MoveRow is a move state joined with the move's description.
type MoveRow struct {
	MoveID          string             `json:"moveId"`
	MoveName        string             `json:"moveName"`
	Category        model.MoveCategory `json:"category"`
	WhenToUse       string             `json:"whenToUse"`
	CommonTrap      string             `json:"commonTrap"`
	Status          model.MoveStatus   `json:"status"`
	Pinned          bool               `json:"pinned"`
	LastExampleText *string            `json:"lastExampleText"`
}

// Overview is a student's dashboard.
type Overview struct {
	Attempts    []AttemptRow `json:"attempts"`
	MoveStates  []MoveRow    `json:"moveStates"`
	Calibration Calibration  `json:"calibration"`
}

// BuildOverview assembles the dashboard from a student's attempts and stored move states.
// Only submitted attempts are listed, newest first. Every known move gets a row; moves
// the student never used are NOT_YET. Calibration uses the listed attempts only.
func BuildOverview(attempts []model.Attempt, states []model.MoveState, moves []model.Move, problems []model.Problem) Overview {
	titles := make(map[string]string, len(problems))
	for _, p := range problems {
		titles[p.ID] = p.Title
	}

	submitted := submittedOnly(attempts)
	sort.SliceStable(submitted, func(i, j int) bool {
		return submitted[i].SubmittedAt.After(*submitted[j].SubmittedAt)
	})
	if len(submitted) > RecentAttempts {
		submitted = submitted[:RecentAttempts]
	}

	rows := make([]AttemptRow, 0, len(submitted))
	for _, a := range submitted {
		title, ok := titles[a.ProblemID]
		if !ok {
			title = "Unknown"
		}
		rows = append(rows, AttemptRow{
			ID:              a.ID,
			ProblemID:       a.ProblemID,
			ProblemTitle:    title,
			Marks:           a.EstimatedMarks,
			StartConfidence: a.StartConfidence,
			FinalConfidence: a.FinalConfidence,
			SubmittedAt:     *a.SubmittedAt,
		})
	}

	return Overview{
		Attempts:    rows,
		MoveStates:  moveRows(states, moves),
		Calibration: dashboardCalibration(submitted),
	}
}

func moveRows(states []model.MoveState, moves []model.Move) []MoveRow {
	byID := make(map[string]model.Move, len(moves))
	for _, m := range moves {
		byID[m.ID] = m
	}
	rows := []MoveRow{}
	seen := make(map[string]bool, len(states))
	for _, ms := range states {
		m, ok := byID[ms.MoveID]
		if !ok {
			continue
		}
		seen[ms.MoveID] = true
		rows = append(rows, moveRow(m, ms))
	}
	for _, m := range moves {
		if seen[m.ID] {
			continue
		}
		rows = append(rows, moveRow(m, model.MoveState{MoveID: m.ID, Status: model.MoveNotYet}))
	}
	return rows
}

func moveRow(m model.Move, ms model.MoveState) MoveRow {
	return MoveRow{
		MoveID:          m.ID,
		MoveName:        m.Name,
		Category:        m.Category,
		WhenToUse:       m.WhenToUse,
		CommonTrap:      m.CommonTrap,
		Status:          ms.Status,
		Pinned:          ms.Pinned,
		LastExampleText: ms.LastExampleText,
	}
}

func dashboardCalibration(attempts []model.Attempt) Calibration {
	avg, n := meanError(attempts)
	if n < minDashboardSamples {
		return Calibration{Status: CalibrationNotEnoughData}
	}
	avgErr := int(math.Round(avg))
	status := CalibrationNeedsWork
	switch {
	case avgErr < goodError:
		status = CalibrationGood
	case avgErr < okayError:
		status = CalibrationOkay
	}
	return Calibration{Status: status, AvgError: avgErr}
}

// meanError returns the mean of |finalConfidence - marks*10| over attempts that carry
// both values, and how many attempts contributed.
func meanError(attempts []model.Attempt) (float64, int) {
	var sum float64
	n := 0
	for _, a := range attempts {
		if a.FinalConfidence == nil || a.EstimatedMarks == nil {
			continue
		}
		sum += math.Abs(float64(*a.FinalConfidence - *a.EstimatedMarks*10))
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func submittedOnly(attempts []model.Attempt) []model.Attempt {
	var out []model.Attempt
	for _, a := range attempts {
		if a.SubmittedAt != nil {
			out = append(out, a)
		}
	}
	return out
}

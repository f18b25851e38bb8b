package progress

import (
	"testing"
	"time"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

func intPtr(v int) *int { return &v }

func submitted(id, problemID string, at time.Time, marks, final int) model.Attempt {
	return model.Attempt{
		ID:              id,
		ProblemID:       problemID,
		StartedAt:       at.Add(-time.Minute),
		SubmittedAt:     &at,
		StartConfidence: 50,
		FinalConfidence: intPtr(final),
		EstimatedMarks:  intPtr(marks),
	}
}

var (
	testMoves = []model.Move{
		{ID: "parity", Name: "Parity", Category: model.MoveCore},
		{ID: "extremal", Name: "Extremal", Category: model.MoveSuggested},
		{ID: "invariant", Name: "Invariant", Category: model.MoveCore},
	}
	testProblems = []model.Problem{
		{ID: "p1", Title: "Odd sums", Difficulty: 1, Statement: "S1"},
		{ID: "p2", Title: "Chessboard", Difficulty: 2, Statement: "S2"},
	}
)

func TestBuildOverview(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	attempts := []model.Attempt{
		submitted("a1", "p1", base, 8, 80),
		submitted("a2", "p2", base.Add(2*time.Hour), 5, 50),
		{ID: "open", ProblemID: "p1", StartedAt: base},
		submitted("a3", "gone", base.Add(time.Hour), 3, 90),
	}
	sometimes := model.MoveState{MoveID: "extremal", Status: model.MoveSometimes}
	ov := BuildOverview(attempts, []model.MoveState{sometimes, {MoveID: "retired", Status: model.MoveReliable}}, testMoves, testProblems)

	if len(ov.Attempts) != 3 {
		t.Fatalf("expected 3 submitted attempts, got %d", len(ov.Attempts))
	}
	if ov.Attempts[0].ID != "a2" || ov.Attempts[1].ID != "a3" || ov.Attempts[2].ID != "a1" {
		t.Errorf("expected newest first [a2 a3 a1], got %s %s %s", ov.Attempts[0].ID, ov.Attempts[1].ID, ov.Attempts[2].ID)
	}
	if ov.Attempts[1].ProblemTitle != "Unknown" {
		t.Errorf("unknown problem should be titled Unknown, got %q", ov.Attempts[1].ProblemTitle)
	}

	if len(ov.MoveStates) != 3 {
		t.Fatalf("expected a row per known move, got %d", len(ov.MoveStates))
	}
	if ov.MoveStates[0].MoveID != "extremal" || ov.MoveStates[0].Status != model.MoveSometimes {
		t.Errorf("stored state should come first, got %+v", ov.MoveStates[0])
	}
	for _, row := range ov.MoveStates[1:] {
		if row.Status != model.MoveNotYet {
			t.Errorf("default status should be NOT_YET, got %+v", row)
		}
	}

	// errors: |80-80|=0, |50-50|=0, |90-30|=60 -> 20
	if ov.Calibration.Status != CalibrationOkay || ov.Calibration.AvgError != 20 {
		t.Errorf("unexpected calibration: %+v", ov.Calibration)
	}
}

func TestOverviewRecentLimit(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var attempts []model.Attempt
	for i := range RecentAttempts + 5 {
		attempts = append(attempts, submitted(string(rune('a'+i)), "p1", base.Add(time.Duration(i)*time.Minute), 5, 50))
	}
	ov := BuildOverview(attempts, nil, nil, testProblems)
	if len(ov.Attempts) != RecentAttempts {
		t.Errorf("expected %d attempts, got %d", RecentAttempts, len(ov.Attempts))
	}
	if ov.MoveStates == nil {
		t.Error("move states should be an empty list")
	}
}

func TestDashboardCalibration(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		attempts []model.Attempt
		want     Calibration
	}{
		{"no data", nil, Calibration{Status: CalibrationNotEnoughData}},
		{"two samples", []model.Attempt{submitted("a", "p1", at, 5, 50), submitted("b", "p1", at, 5, 50)},
			Calibration{Status: CalibrationNotEnoughData}},
		{"good", []model.Attempt{submitted("a", "p1", at, 5, 50), submitted("b", "p1", at, 5, 60), submitted("c", "p1", at, 5, 40)},
			Calibration{Status: CalibrationGood, AvgError: 7}},
		{"needs work", []model.Attempt{submitted("a", "p1", at, 0, 100), submitted("b", "p1", at, 10, 0), submitted("c", "p1", at, 5, 50)},
			Calibration{Status: CalibrationNeedsWork, AvgError: 67}},
		{"missing confidence skipped", []model.Attempt{
			submitted("a", "p1", at, 5, 50), submitted("b", "p1", at, 5, 50),
			{ID: "c", SubmittedAt: &at, EstimatedMarks: intPtr(5)},
		}, Calibration{Status: CalibrationNotEnoughData}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dashboardCalibration(tt.attempts); got != tt.want {
				t.Errorf("dashboardCalibration() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStudentAssignmentRow(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	student := model.User{ID: 7, Username: "alice", DisplayName: "Alice"}
	a := model.Assignment{ID: "as1", ProblemIDs: []string{"p1", "p2", "p3"}}

	attempts := []model.Attempt{
		submitted("a1", "p1", at, 8, 80),
		submitted("a2", "p1", at, 5, 60),
		submitted("a3", "other", at, 0, 100),
		{ID: "open", ProblemID: "p2", StartedAt: at},
	}
	states := []model.MoveState{
		{MoveID: "parity", Status: model.MoveNotYet},
		{MoveID: "extremal", Status: model.MoveReliable},
		{MoveID: "invariant", Status: model.MoveNotYet},
	}
	row := StudentAssignmentRow(student, a, attempts, states, testMoves)

	if row.Completed != 1 || row.Total != 3 {
		t.Errorf("expected 1/3 completed, got %d/%d", row.Completed, row.Total)
	}
	// (8+5)/2 = 6.5 rounds to 7
	if row.AvgMarks == nil || *row.AvgMarks != 7 {
		t.Errorf("expected avg marks 7, got %v", row.AvgMarks)
	}
	if len(row.WeakestMoves) != 2 || row.WeakestMoves[0] != "Parity" || row.WeakestMoves[1] != "Invariant" {
		t.Errorf("unexpected weakest moves: %v", row.WeakestMoves)
	}
	// errors 0 and 10 -> 5
	if row.Calibration != "Good" {
		t.Errorf("expected Good calibration, got %q", row.Calibration)
	}

	empty := StudentAssignmentRow(student, a, nil, nil, testMoves)
	if empty.AvgMarks != nil || empty.Calibration != "N/A" || empty.WeakestMoves == nil {
		t.Errorf("unexpected empty row: %+v", empty)
	}
}

func TestAssignmentCalibrationLabels(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		final int
		want  string
	}{
		{50, "Good"},
		{70, "Okay"},
		{90, "Needs work"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			attempts := []model.Attempt{submitted("a", "p1", at, 5, tt.final), submitted("b", "p1", at, 5, tt.final)}
			if got := assignmentCalibration(attempts); got != tt.want {
				t.Errorf("assignmentCalibration() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssignmentProblems(t *testing.T) {
	a := model.Assignment{ProblemIDs: []string{"p2", "missing", "p1"}}
	rows := AssignmentProblems(a, testProblems, false)
	if len(rows) != 2 || rows[0].ID != "p2" || rows[1].ID != "p1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Statement != "" {
		t.Error("statement should be omitted")
	}
	rows = AssignmentProblems(a, testProblems, true)
	if rows[0].Statement != "S2" {
		t.Errorf("expected statement S2, got %q", rows[0].Statement)
	}
}

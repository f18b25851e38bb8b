package model

import "time"

// ProgressExport is the top-level JSON structure for a progress export.
type ProgressExport struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Provider    string            `json:"provider"`
	Students    []StudentProgress `json:"students"`
}

// StudentProgress holds one student's attempts and move states.
type StudentProgress struct {
	UserID      int64            `json:"userId"`
	Username    string           `json:"username"`
	DisplayName string           `json:"displayName"`
	Attempts    []AttemptSummary `json:"attempts"`
	MoveStates  []MoveState      `json:"moveStates"`
}

// AttemptSummary holds per-attempt data for progress views.
type AttemptSummary struct {
	AttemptID       string     `json:"attemptId"`
	ProblemID       string     `json:"problemId"`
	ProblemTitle    string     `json:"problemTitle"`
	Persona         Persona    `json:"persona"`
	StartedAt       time.Time  `json:"startedAt"`
	SubmittedAt     *time.Time `json:"submittedAt,omitempty"`
	StartConfidence int        `json:"startConfidence"`
	FinalConfidence *int       `json:"finalConfidence,omitempty"`
	EstimatedMarks  *int       `json:"estimatedMarks,omitempty"`
	HintsUsed       []HintRung `json:"hintsUsed"`
}

// ProblemImport is used for loading problems and moves from JSON seed files.
type ProblemImport struct {
	Problems []Problem `json:"problems"`
	Moves    []Move    `json:"moves"`
}

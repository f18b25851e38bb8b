package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "STUDENT"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "TEACHER"
)

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Persona      *Persona  `json:"persona"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// HintRung is a hint specificity level. Rungs are ordered NUDGE < POINTER < KEY.
type HintRung string

const (
	RungNudge   HintRung = "NUDGE"
	RungPointer HintRung = "POINTER"
	RungKey     HintRung = "KEY"
)

// Level returns the rung's position on the ladder (1-based), or 0 for unknown rungs.
func (r HintRung) Level() int {
	switch r {
	case RungNudge:
		return 1
	case RungPointer:
		return 2
	case RungKey:
		return 3
	}
	return 0
}

// Valid reports whether r is a known rung.
func (r HintRung) Valid() bool { return r.Level() > 0 }

// ContainsRung reports whether rung appears in rungs.
func ContainsRung(rungs []HintRung, rung HintRung) bool {
	for _, r := range rungs {
		if r == rung {
			return true
		}
	}
	return false
}

// Persona selects the tutoring tone.
type Persona string

const (
	PersonaCoach      Persona = "COACH"
	PersonaQuizMaster Persona = "QUIZ_MASTER"
	PersonaRival      Persona = "RIVAL"
)

// Valid reports whether p is a known persona.
func (p Persona) Valid() bool {
	switch p {
	case PersonaCoach, PersonaQuizMaster, PersonaRival:
		return true
	}
	return false
}

// RubricComponent is one named, marked sub-criterion of a problem's grading scheme.
// Keywords are only used by the offline grader.
type RubricComponent struct {
	Name        string   `json:"name"`
	Marks       int      `json:"marks"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Problem is an olympiad problem with its rubric and reference solution.
type Problem struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Statement       string            `json:"statement"`
	TopicTags       []string          `json:"topicTags"`
	Difficulty      int               `json:"difficulty"`
	MovesSuggested  []string          `json:"movesSuggested"`
	Rubric          []RubricComponent `json:"rubricJson"`
	SolutionOutline []string          `json:"solutionOutline"`
}

// MaxMarks returns the sum of the rubric's marks.
func (p Problem) MaxMarks() int {
	total := 0
	for _, r := range p.Rubric {
		total += r.Marks
	}
	return total
}

// MoveCategory groups problem-solving moves.
type MoveCategory string

const (
	MoveCore      MoveCategory = "CORE"
	MoveSuggested MoveCategory = "SUGGESTED"
)

// Move is a reusable problem-solving technique.
type Move struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Category   MoveCategory `json:"category"`
	WhenToUse  string       `json:"whenToUse"`
	Steps      []string     `json:"steps"`
	CommonTrap string       `json:"commonTrap"`
}

// MoveStatus tracks how reliably a student uses a move. Statuses are ordered.
type MoveStatus string

const (
	MoveNotYet    MoveStatus = "NOT_YET"
	MoveSometimes MoveStatus = "SOMETIMES"
	MoveReliable  MoveStatus = "RELIABLE"
)

var moveStatusOrder = []MoveStatus{MoveNotYet, MoveSometimes, MoveReliable}

// Next returns the following status, or s itself when s is the last or unknown.
func (s MoveStatus) Next() MoveStatus {
	for i, st := range moveStatusOrder {
		if st == s && i < len(moveStatusOrder)-1 {
			return moveStatusOrder[i+1]
		}
	}
	return s
}

// MoveState is a user's progress on one move.
type MoveState struct {
	MoveID          string     `json:"moveId"`
	Status          MoveStatus `json:"status"`
	Pinned          bool       `json:"pinned"`
	LastExampleText *string    `json:"lastExampleText"`
}

// Attempt is one student's session on one problem.
type Attempt struct {
	ID              string          `json:"id"`
	UserID          int64           `json:"userId"`
	ProblemID       string          `json:"problemId"`
	Persona         Persona         `json:"persona"`
	StartedAt       time.Time       `json:"startedAt"`
	SubmittedAt     *time.Time      `json:"submittedAt"`
	StartConfidence int             `json:"startConfidence"`
	FinalConfidence *int            `json:"finalConfidence"`
	AttemptText     *string         `json:"attemptText"`
	EstimatedMarks  *int            `json:"estimatedMarks"`
	Feedback        *FeedbackResult `json:"feedbackJson"`
	MoveClicks      []string        `json:"moveClicks"`
}

// Text returns the attempt text, or "" when none has been saved.
func (a Attempt) Text() string {
	if a.AttemptText == nil {
		return ""
	}
	return *a.AttemptText
}

// Claim is a structured assertion submitted alongside a proof attempt.
type Claim struct {
	ID         string `json:"id"`
	AttemptID  string `json:"attemptId"`
	ClaimText  string `json:"claimText"`
	ReasonText string `json:"reasonText"`
	LinkText   string `json:"linkText"`
	Confidence int    `json:"confidence"`
}

// Hint is a hint delivered during an attempt.
type Hint struct {
	ID        string    `json:"id"`
	AttemptID string    `json:"attemptId"`
	Rung      HintRung  `json:"rung"`
	HintText  string    `json:"hintText"`
	CreatedAt time.Time `json:"createdAt"`
}

// RubricScore is the graded result for one rubric component.
type RubricScore struct {
	Name     string `json:"name"`
	MaxMarks int    `json:"maxMarks"`
	Awarded  int    `json:"awarded"`
	Comment  string `json:"comment"`
}

// FeedbackResult is the reconciled grading outcome for an attempt.
type FeedbackResult struct {
	EstimatedMarks    int           `json:"estimatedMarks"`
	RubricBreakdown   []RubricScore `json:"rubricBreakdown"`
	Tips              []string      `json:"tips"`
	RewrittenSolution string        `json:"rewrittenSolution"`
}

// Assignment is a teacher-curated problem set.
type Assignment struct {
	ID         string    `json:"id"`
	TeacherID  int64     `json:"teacherId"`
	Title      string    `json:"title"`
	DueAt      string    `json:"dueAt"`
	ProblemIDs []string  `json:"problemIds"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AttemptView bundles an attempt with its hints and claims.
type AttemptView struct {
	Attempt Attempt `json:"attempt"`
	Problem Problem `json:"problem"`
	Hints   []Hint  `json:"hints"`
	Claims  []Claim `json:"claims"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	Provider      string // openai, gemini or mock
	BodyLimit     int64  // max request body in bytes
	AllowSignUp   bool
	SecureCookies bool
}

package store

import (
	"fmt"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

// ExportProgress builds per-student progress records: every attempt with its marks
// and hint rungs, plus the student's stored move states.
func (s *Store) ExportProgress() ([]model.StudentProgress, error) {
	students, err := s.ListUsers(model.UserRoleStudent)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	problems, err := s.ListProblems()
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	titles := make(map[string]string, len(problems))
	for _, p := range problems {
		titles[p.ID] = p.Title
	}

	results := []model.StudentProgress{}
	for _, u := range students {
		attempts, err := s.ListAttemptsByUser(u.ID)
		if err != nil {
			return nil, fmt.Errorf("list attempts of user %d: %w", u.ID, err)
		}
		summaries := []model.AttemptSummary{}
		for _, a := range attempts {
			rungs, err := s.HintRungs(a.ID)
			if err != nil {
				return nil, fmt.Errorf("hints of attempt %s: %w", a.ID, err)
			}
			summaries = append(summaries, model.AttemptSummary{
				AttemptID:       a.ID,
				ProblemID:       a.ProblemID,
				ProblemTitle:    titles[a.ProblemID],
				Persona:         a.Persona,
				StartedAt:       a.StartedAt,
				SubmittedAt:     a.SubmittedAt,
				StartConfidence: a.StartConfidence,
				FinalConfidence: a.FinalConfidence,
				EstimatedMarks:  a.EstimatedMarks,
				HintsUsed:       rungs,
			})
		}
		states, err := s.ListMoveStates(u.ID)
		if err != nil {
			return nil, fmt.Errorf("move states of user %d: %w", u.ID, err)
		}
		if states == nil {
			states = []model.MoveState{}
		}
		results = append(results, model.StudentProgress{
			UserID:      u.ID,
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Attempts:    summaries,
			MoveStates:  states,
		})
	}
	return results, nil
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

// ErrAlreadySubmitted is returned when an attempt has already been graded.
var ErrAlreadySubmitted = errors.New("attempt already submitted")

const attemptColumns = `id, user_id, problem_id, persona, started_at, submitted_at, start_confidence,
	final_confidence, attempt_text, estimated_marks, feedback_json, move_clicks`

// CreateAttempt inserts a new, unsubmitted attempt.
func (s *Store) CreateAttempt(a model.Attempt) error {
	_, err := s.db.Exec(
		`INSERT INTO attempts (id, user_id, problem_id, persona, started_at, start_confidence, move_clicks)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.ProblemID, a.Persona, a.StartedAt, a.StartConfidence, stringList(a.MoveClicks),
	)
	return err
}

func scanAttempt(row rowScanner) (model.Attempt, error) {
	var a model.Attempt
	var feedback sql.NullString
	var clicks string
	err := row.Scan(&a.ID, &a.UserID, &a.ProblemID, &a.Persona, &a.StartedAt, &a.SubmittedAt, &a.StartConfidence,
		&a.FinalConfidence, &a.AttemptText, &a.EstimatedMarks, &feedback, &clicks)
	if err != nil {
		return a, err
	}
	if feedback.Valid && feedback.String != "" && feedback.String != "null" {
		var fr model.FeedbackResult
		if err := fromJSON(feedback.String, &fr); err != nil {
			return a, fmt.Errorf("decode feedback of %s: %w", a.ID, err)
		}
		a.Feedback = &fr
	}
	if err := fromJSON(clicks, &a.MoveClicks); err != nil {
		return a, fmt.Errorf("decode move clicks of %s: %w", a.ID, err)
	}
	if a.MoveClicks == nil {
		a.MoveClicks = []string{}
	}
	return a, nil
}

// GetAttempt returns an attempt by ID, or ErrNotFound.
func (s *Store) GetAttempt(id string) (model.Attempt, error) {
	a, err := scanAttempt(s.db.QueryRow(`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id))
	return a, notFound(err)
}

// ListAttemptsByUser returns a user's attempts, newest first.
func (s *Store) ListAttemptsByUser(userID int64) ([]model.Attempt, error) {
	rows, err := s.db.Query(`SELECT `+attemptColumns+` FROM attempts WHERE user_id = ? ORDER BY started_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// AddMoveClick records that the student opened a move during the attempt. Repeated
// clicks on the same move are recorded once.
func (s *Store) AddMoveClick(attemptID, moveID string) ([]string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var clicks string
	if err := tx.QueryRow(`SELECT move_clicks FROM attempts WHERE id = ?`, attemptID).Scan(&clicks); err != nil {
		return nil, notFound(err)
	}
	var ids []string
	if err := fromJSON(clicks, &ids); err != nil {
		return nil, fmt.Errorf("decode move clicks of %s: %w", attemptID, err)
	}
	for _, id := range ids {
		if id == moveID {
			return ids, nil
		}
	}
	ids = append(ids, moveID)
	if _, err := tx.Exec(`UPDATE attempts SET move_clicks = ? WHERE id = ?`, stringList(ids), attemptID); err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}

// submitAttempt stores the graded result. It fails with ErrAlreadySubmitted if another
// request submitted the attempt first.
func submitAttempt(db execer, a model.Attempt) error {
	feedback, err := toJSON(a.Feedback)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	submittedAt := time.Now()
	if a.SubmittedAt != nil {
		submittedAt = *a.SubmittedAt
	}
	res, err := db.Exec(
		`UPDATE attempts SET attempt_text = ?, final_confidence = ?, submitted_at = ?, estimated_marks = ?, feedback_json = ?
		 WHERE id = ? AND submitted_at IS NULL`,
		a.AttemptText, a.FinalConfidence, submittedAt, a.EstimatedMarks, feedback, a.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadySubmitted
	}
	return nil
}

// AddHint stores a delivered hint.
func (s *Store) AddHint(h model.Hint) error {
	_, err := s.db.Exec(
		`INSERT INTO hints (id, attempt_id, rung, hint_text, created_at) VALUES (?, ?, ?, ?, ?)`,
		h.ID, h.AttemptID, h.Rung, h.HintText, h.CreatedAt,
	)
	return err
}

// ListHints returns the hints of an attempt in delivery order.
func (s *Store) ListHints(attemptID string) ([]model.Hint, error) {
	rows, err := s.db.Query(
		`SELECT id, attempt_id, rung, hint_text, created_at FROM hints WHERE attempt_id = ? ORDER BY created_at, id`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	hints := []model.Hint{}
	for rows.Next() {
		var h model.Hint
		if err := rows.Scan(&h.ID, &h.AttemptID, &h.Rung, &h.HintText, &h.CreatedAt); err != nil {
			return nil, err
		}
		hints = append(hints, h)
	}
	return hints, rows.Err()
}

// HintRungs returns the rungs of all hints used in an attempt.
func (s *Store) HintRungs(attemptID string) ([]model.HintRung, error) {
	hints, err := s.ListHints(attemptID)
	if err != nil {
		return nil, err
	}
	rungs := make([]model.HintRung, len(hints))
	for i, h := range hints {
		rungs[i] = h.Rung
	}
	return rungs, nil
}

// ListClaims returns the claims of an attempt in submission order.
func (s *Store) ListClaims(attemptID string) ([]model.Claim, error) {
	rows, err := s.db.Query(
		`SELECT id, attempt_id, claim_text, reason_text, link_text, confidence FROM claims WHERE attempt_id = ? ORDER BY position`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	claims := []model.Claim{}
	for rows.Next() {
		var c model.Claim
		if err := rows.Scan(&c.ID, &c.AttemptID, &c.ClaimText, &c.ReasonText, &c.LinkText, &c.Confidence); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func replaceClaims(db execer, attemptID string, claims []model.Claim) error {
	if _, err := db.Exec(`DELETE FROM claims WHERE attempt_id = ?`, attemptID); err != nil {
		return err
	}
	for i, c := range claims {
		_, err := db.Exec(
			`INSERT INTO claims (id, attempt_id, position, claim_text, reason_text, link_text, confidence)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, attemptID, i, c.ClaimText, c.ReasonText, c.LinkText, c.Confidence,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetAttemptView returns an attempt together with its problem, hints and claims.
func (s *Store) GetAttemptView(id string) (*model.AttemptView, error) {
	a, err := s.GetAttempt(id)
	if err != nil {
		return nil, err
	}
	p, err := s.GetProblem(a.ProblemID)
	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", a.ProblemID, err)
	}
	hints, err := s.ListHints(id)
	if err != nil {
		return nil, err
	}
	claims, err := s.ListClaims(id)
	if err != nil {
		return nil, err
	}
	return &model.AttemptView{Attempt: a, Problem: p, Hints: hints, Claims: claims}, nil
}

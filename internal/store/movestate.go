package store

import (
	"database/sql"
	"errors"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

// GetMoveState returns a user's state for one move. A move the user has never
// touched is reported as NOT_YET.
func (s *Store) GetMoveState(userID int64, moveID string) (model.MoveState, error) {
	ms := model.MoveState{MoveID: moveID}
	err := s.db.QueryRow(
		`SELECT status, pinned, last_example_text FROM move_states WHERE user_id = ? AND move_id = ?`, userID, moveID,
	).Scan(&ms.Status, &ms.Pinned, &ms.LastExampleText)
	if errors.Is(err, sql.ErrNoRows) {
		ms.Status = model.MoveNotYet
		return ms, nil
	}
	return ms, err
}

// ListMoveStates returns the stored move states of a user ordered by move ID.
func (s *Store) ListMoveStates(userID int64) ([]model.MoveState, error) {
	rows, err := s.db.Query(
		`SELECT move_id, status, pinned, last_example_text FROM move_states WHERE user_id = ? ORDER BY move_id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var states []model.MoveState
	for rows.Next() {
		var ms model.MoveState
		if err := rows.Scan(&ms.MoveID, &ms.Status, &ms.Pinned, &ms.LastExampleText); err != nil {
			return nil, err
		}
		states = append(states, ms)
	}
	return states, rows.Err()
}

func putMoveState(db execer, userID int64, ms model.MoveState) error {
	_, err := db.Exec(
		`INSERT INTO move_states (user_id, move_id, status, pinned, last_example_text) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, move_id) DO UPDATE SET status = excluded.status, pinned = excluded.pinned,
		 last_example_text = excluded.last_example_text`,
		userID, ms.MoveID, ms.Status, ms.Pinned, ms.LastExampleText,
	)
	return err
}

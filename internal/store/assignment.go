package store

import (
	"fmt"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

const assignmentColumns = `id, teacher_id, title, due_at, problem_ids, created_at`

// CreateAssignment inserts a new assignment.
func (s *Store) CreateAssignment(a model.Assignment) error {
	_, err := s.db.Exec(
		`INSERT INTO assignments (`+assignmentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.TeacherID, a.Title, a.DueAt, stringList(a.ProblemIDs), a.CreatedAt,
	)
	return err
}

func scanAssignment(row rowScanner) (model.Assignment, error) {
	var a model.Assignment
	var ids string
	if err := row.Scan(&a.ID, &a.TeacherID, &a.Title, &a.DueAt, &ids, &a.CreatedAt); err != nil {
		return a, err
	}
	if err := fromJSON(ids, &a.ProblemIDs); err != nil {
		return a, fmt.Errorf("decode problem ids of %s: %w", a.ID, err)
	}
	if a.ProblemIDs == nil {
		a.ProblemIDs = []string{}
	}
	return a, nil
}

// GetAssignment returns an assignment by ID, or ErrNotFound.
func (s *Store) GetAssignment(id string) (model.Assignment, error) {
	a, err := scanAssignment(s.db.QueryRow(`SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id))
	return a, notFound(err)
}

// ListAssignmentsByTeacher returns the assignments created by one teacher, newest first.
func (s *Store) ListAssignmentsByTeacher(teacherID int64) ([]model.Assignment, error) {
	return s.listAssignments(`SELECT `+assignmentColumns+` FROM assignments WHERE teacher_id = ? ORDER BY created_at DESC, id`, teacherID)
}

// ListAssignments returns all assignments, newest first.
func (s *Store) ListAssignments() ([]model.Assignment, error) {
	return s.listAssignments(`SELECT ` + assignmentColumns + ` FROM assignments ORDER BY created_at DESC, id`)
}

func (s *Store) listAssignments(query string, args ...any) ([]model.Assignment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	assignments := []model.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// AddAssignmentProblems appends problem IDs that are not yet part of the assignment,
// keeping the existing order.
func (s *Store) AddAssignmentProblems(id string, problemIDs []string) ([]string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRow(`SELECT problem_ids FROM assignments WHERE id = ?`, id).Scan(&raw); err != nil {
		return nil, notFound(err)
	}
	var existing []string
	if err := fromJSON(raw, &existing); err != nil {
		return nil, fmt.Errorf("decode problem ids of %s: %w", id, err)
	}
	seen := make(map[string]bool, len(existing))
	for _, pid := range existing {
		seen[pid] = true
	}
	added := false
	for _, pid := range problemIDs {
		if seen[pid] {
			continue
		}
		seen[pid] = true
		existing = append(existing, pid)
		added = true
	}
	if !added {
		return existing, nil
	}
	if _, err := tx.Exec(`UPDATE assignments SET problem_ids = ? WHERE id = ?`, stringList(existing), id); err != nil {
		return nil, err
	}
	return existing, tx.Commit()
}

// DeleteAssignment removes an assignment. Deleting a missing assignment returns ErrNotFound.
func (s *Store) DeleteAssignment(id string) error {
	res, err := s.db.Exec(`DELETE FROM assignments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

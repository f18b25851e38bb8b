package store

import (
	"errors"
	"fmt"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

const problemColumns = `id, title, statement, topic_tags, difficulty, moves_suggested, rubric, solution_outline`

// UpsertProblem inserts a problem or replaces the one with the same ID.
func (s *Store) UpsertProblem(p model.Problem) error {
	return upsertProblem(s.db, p)
}

func upsertProblem(db execer, p model.Problem) error {
	rubric, err := toJSON(p.Rubric)
	if err != nil {
		return fmt.Errorf("encode rubric: %w", err)
	}
	if p.Rubric == nil {
		rubric = "[]"
	}
	_, err = db.Exec(
		`INSERT INTO problems (`+problemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, statement = excluded.statement,
		 topic_tags = excluded.topic_tags, difficulty = excluded.difficulty,
		 moves_suggested = excluded.moves_suggested, rubric = excluded.rubric,
		 solution_outline = excluded.solution_outline`,
		p.ID, p.Title, p.Statement, stringList(p.TopicTags), p.Difficulty,
		stringList(p.MovesSuggested), rubric, stringList(p.SolutionOutline),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProblem(row rowScanner) (model.Problem, error) {
	var p model.Problem
	var tags, moves, rubric, outline string
	if err := row.Scan(&p.ID, &p.Title, &p.Statement, &tags, &p.Difficulty, &moves, &rubric, &outline); err != nil {
		return p, err
	}
	if err := fromJSON(tags, &p.TopicTags); err != nil {
		return p, fmt.Errorf("decode topic tags of %s: %w", p.ID, err)
	}
	if err := fromJSON(moves, &p.MovesSuggested); err != nil {
		return p, fmt.Errorf("decode moves of %s: %w", p.ID, err)
	}
	if err := fromJSON(rubric, &p.Rubric); err != nil {
		return p, fmt.Errorf("decode rubric of %s: %w", p.ID, err)
	}
	if err := fromJSON(outline, &p.SolutionOutline); err != nil {
		return p, fmt.Errorf("decode outline of %s: %w", p.ID, err)
	}
	return p, nil
}

// GetProblem returns a problem by ID, or ErrNotFound.
func (s *Store) GetProblem(id string) (model.Problem, error) {
	p, err := scanProblem(s.db.QueryRow(`SELECT `+problemColumns+` FROM problems WHERE id = ?`, id))
	return p, notFound(err)
}

// ListProblems returns all problems ordered by difficulty then ID.
func (s *Store) ListProblems() ([]model.Problem, error) {
	rows, err := s.db.Query(`SELECT ` + problemColumns + ` FROM problems ORDER BY difficulty, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var problems []model.Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

// ProblemCount returns the number of problems in the database.
func (s *Store) ProblemCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM problems`).Scan(&count)
	return count, err
}

// UpsertMove inserts a move or replaces the one with the same ID.
func (s *Store) UpsertMove(m model.Move) error {
	return upsertMove(s.db, m)
}

func upsertMove(db execer, m model.Move) error {
	_, err := db.Exec(
		`INSERT INTO moves (id, name, category, when_to_use, steps, common_trap) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, category = excluded.category,
		 when_to_use = excluded.when_to_use, steps = excluded.steps, common_trap = excluded.common_trap`,
		m.ID, m.Name, m.Category, m.WhenToUse, stringList(m.Steps), m.CommonTrap,
	)
	return err
}

func scanMove(row rowScanner) (model.Move, error) {
	var m model.Move
	var steps string
	if err := row.Scan(&m.ID, &m.Name, &m.Category, &m.WhenToUse, &steps, &m.CommonTrap); err != nil {
		return m, err
	}
	if err := fromJSON(steps, &m.Steps); err != nil {
		return m, fmt.Errorf("decode steps of %s: %w", m.ID, err)
	}
	return m, nil
}

// ListMoves returns all moves ordered by ID.
func (s *Store) ListMoves() ([]model.Move, error) {
	rows, err := s.db.Query(`SELECT id, name, category, when_to_use, steps, common_trap FROM moves ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var moves []model.Move
	for rows.Next() {
		m, err := scanMove(rows)
		if err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// GetMove returns a move by ID, or ErrNotFound.
func (s *Store) GetMove(id string) (model.Move, error) {
	m, err := scanMove(s.db.QueryRow(`SELECT id, name, category, when_to_use, steps, common_trap FROM moves WHERE id = ?`, id))
	return m, notFound(err)
}

// MovesByID returns the moves with the given IDs in the given order, skipping unknown IDs.
func (s *Store) MovesByID(ids []string) ([]model.Move, error) {
	var moves []model.Move
	for _, id := range ids {
		m, err := s.GetMove(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return moves, nil
}

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

// ImportResult reports what ImportSeed did.
type ImportResult struct {
	Imported bool
	Problems int
	Moves    int
}

// ImportSeed loads problems and moves from a seed file's contents. The file's sha256
// is recorded under name; an unchanged file is skipped and reported as not imported.
// Problems and moves are upserted by ID, so a changed file updates rows in place.
func (s *Store) ImportSeed(name string, data []byte) (ImportResult, error) {
	hash := sha256sum(data)
	stored, err := s.GetImportedFileHash(name)
	if err != nil {
		return ImportResult{}, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == hash {
		slog.Info("seed file unchanged, skipping", "name", name)
		return ImportResult{}, nil
	}
	if stored != "" {
		slog.Warn("seed file changed since last import, updating problems and moves", "name", name)
	}

	var seed model.ProblemImport
	if err := json.Unmarshal(data, &seed); err != nil {
		return ImportResult{}, fmt.Errorf("parse %s: %w", name, err)
	}
	if err := checkSeed(seed); err != nil {
		return ImportResult{}, fmt.Errorf("%s: %w", name, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ImportResult{}, err
	}
	defer tx.Rollback()

	for _, m := range seed.Moves {
		if err := upsertMove(tx, m); err != nil {
			return ImportResult{}, fmt.Errorf("insert move %s: %w", m.ID, err)
		}
	}
	for _, p := range seed.Problems {
		if err := upsertProblem(tx, p); err != nil {
			return ImportResult{}, fmt.Errorf("insert problem %s: %w", p.ID, err)
		}
	}
	if err := setImportedFileHash(tx, name, hash); err != nil {
		return ImportResult{}, fmt.Errorf("record import for %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return ImportResult{}, err
	}
	slog.Info("imported seed file", "name", name, "problems", len(seed.Problems), "moves", len(seed.Moves))
	return ImportResult{Imported: true, Problems: len(seed.Problems), Moves: len(seed.Moves)}, nil
}

var seedValidate = validator.New()

func checkSeed(seed model.ProblemImport) error {
	for i, m := range seed.Moves {
		if m.ID == "" || m.Name == "" {
			return fmt.Errorf("move %d: id and name are required", i+1)
		}
	}
	for i, p := range seed.Problems {
		if p.ID == "" || p.Title == "" {
			return fmt.Errorf("problem %d: id and title are required", i+1)
		}
		if len(p.Rubric) == 0 {
			return fmt.Errorf("problem %s: rubric is empty", p.ID)
		}
		for _, r := range p.Rubric {
			if r.Name == "" || r.Name != strings.TrimSpace(r.Name) || r.Marks < 0 {
				return fmt.Errorf("problem %s: invalid rubric component %q", p.ID, r.Name)
			}
		}
		// Graded output is matched to components by name.
		if err := seedValidate.Var(p.Rubric, "unique=Name"); err != nil {
			return fmt.Errorf("problem %s: rubric component names must be unique", p.ID)
		}
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

package store

import (
	"database/sql"
	"errors"
)

const importedFilePrefix = "imported_file:"

// SetMetadata upserts a key-value pair.
func (s *Store) SetMetadata(key, value string) error {
	return setMetadata(s.db, key, value)
}

func setMetadata(db execer, key, value string) error {
	_, err := db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a key, or "" if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// GetImportedFileHash returns the sha256 recorded for a seed file, or "" if it was never imported.
func (s *Store) GetImportedFileHash(name string) (string, error) {
	return s.GetMetadata(importedFilePrefix + name)
}

// SetImportedFileHash records the sha256 of an imported seed file.
func (s *Store) SetImportedFileHash(name, hash string) error {
	return s.SetMetadata(importedFilePrefix+name, hash)
}

func setImportedFileHash(db execer, name, hash string) error {
	return setMetadata(db, importedFilePrefix+name, hash)
}

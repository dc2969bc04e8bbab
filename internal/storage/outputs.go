package storage

// outputs.go contains SQLiteStore methods for output CRUD operations.
// Outputs are paired display devices used for authentication.

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
)

// Output represents a paired display output for the auth package.
type Output struct {
	ID         string
	Name       string
	ClientType string
	TokenHash  string
	CreatedAt  time.Time
	LastSeen   time.Time
}

// SaveOutput persists an output to the database.
// Uses INSERT OR REPLACE to handle both new outputs and updates.
func (s *SQLiteStore) SaveOutput(output *Output) error {
	if output == nil {
		return errors.New("output cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: saving output %s (%s)", output.ID, output.Name)

	const query = `
		INSERT OR REPLACE INTO outputs
			(id, name, client_type, token_hash, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		output.ID,
		output.Name,
		output.ClientType,
		output.TokenHash,
		output.CreatedAt.Format(time.RFC3339Nano),
		output.LastSeen.Format(time.RFC3339Nano),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "save output", err)
	}

	return nil
}

// GetOutput retrieves an output by ID.
// Returns nil, nil if the output does not exist.
func (s *SQLiteStore) GetOutput(id string) (*Output, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, name, client_type, token_hash, created_at, last_seen
		FROM outputs
		WHERE id = ?
	`

	output, err := scanOutput(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get output: %w", err)
	}

	return output, nil
}

// ListOutputs returns all paired outputs.
func (s *SQLiteStore) ListOutputs() ([]*Output, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, name, client_type, token_hash, created_at, last_seen
		FROM outputs
		ORDER BY created_at ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query outputs: %w", err)
	}
	defer rows.Close()

	var outputs []*Output
	for rows.Next() {
		output, err := scanOutputRows(rows)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, output)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate output rows: %w", err)
	}

	return outputs, nil
}

// DeleteOutput removes an output from storage.
// Returns nil if the output does not exist (idempotent delete).
func (s *SQLiteStore) DeleteOutput(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: deleting output %s", id)

	_, err := s.db.Exec("DELETE FROM outputs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete output: %w", err)
	}

	return nil
}

// UpdateLastSeen updates the last_seen timestamp for an output.
// Returns ErrOutputNotFound if the output does not exist.
func (s *SQLiteStore) UpdateLastSeen(id string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `UPDATE outputs SET last_seen = ? WHERE id = ?`

	result, err := s.db.Exec(query, t.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrOutputNotFound
	}

	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutput(row rowScanner) (*Output, error) {
	var (
		output    Output
		createdAt string
		lastSeen  string
	)

	err := row.Scan(
		&output.ID,
		&output.Name,
		&output.ClientType,
		&output.TokenHash,
		&createdAt,
		&lastSeen,
	)
	if err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	output.CreatedAt = t

	t, err = time.Parse(time.RFC3339Nano, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}
	output.LastSeen = t

	return &output, nil
}

func scanOutputRows(rows *sql.Rows) (*Output, error) {
	return scanOutput(rows)
}

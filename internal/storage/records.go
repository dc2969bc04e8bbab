package storage

// records.go contains SQLiteStore methods for persisted credential
// records used by the vault's encrypted backend. The iv and data
// columns hold base64 strings; interpretation is up to the caller.

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
)

// VaultRecord is a persisted credential ciphertext record.
// ID is keyed as "<clientType>::<deviceId>".
type VaultRecord struct {
	ID        string
	DeviceID  string
	IV        string
	Data      string
	UpdatedAt time.Time
}

// PutRecord inserts or replaces a vault record.
func (s *SQLiteStore) PutRecord(rec *VaultRecord) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT OR REPLACE INTO vault_records
			(id, device_id, iv, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		rec.ID,
		rec.DeviceID,
		rec.IV,
		rec.Data,
		rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "put record", err)
	}

	return nil
}

// GetRecord retrieves a vault record by ID.
// Returns nil, nil if no record exists.
func (s *SQLiteStore) GetRecord(id string) (*VaultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, device_id, iv, data, updated_at
		FROM vault_records
		WHERE id = ?
	`

	var (
		rec       VaultRecord
		updatedAt string
	)

	err := s.db.QueryRow(query, id).Scan(
		&rec.ID,
		&rec.DeviceID,
		&rec.IV,
		&rec.Data,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	rec.UpdatedAt = t

	return &rec, nil
}

// DeleteRecord removes a vault record. Deleting a record that does
// not exist is not an error.
func (s *SQLiteStore) DeleteRecord(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM vault_records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	return nil
}

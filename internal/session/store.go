// Package session keeps the brokerage session alive and guards every
// operation that needs session, account or transaction PIN state.
package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"flatex_bot/internal/broker"
	"flatex_bot/internal/broker/flatex"
	"flatex_bot/internal/database"
)

// Key names a persisted session value.
type Key string

const (
	KeySessionID        Key = "session-id"
	KeyTransactionPin   Key = "transaction-pin"
	KeyAccountCash      Key = "account-cash"
	KeyAccountPortfolio Key = "account-portfolio"
	KeyMatrixSyncToken  Key = "matrix-sync-token"
)

// Store persists session values across restarts. An empty value is never
// stored: setting one clears the key.
type Store struct {
	db  *database.DB
	enc *broker.Encryptor
}

// NewStore creates a Store. enc may be nil, in which case values are stored in clear.
func NewStore(db *database.DB, enc *broker.Encryptor) *Store {
	return &Store{db: db, enc: enc}
}

// Get returns the value for key and whether it is present.
func (s *Store) Get(key Key) (string, bool, error) {
	var (
		raw       []byte
		encrypted bool
	)
	err := s.db.QueryRow(`SELECT value, encrypted FROM session_values WHERE key = ?`, string(key)).
		Scan(&raw, &encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}

	if !encrypted {
		return string(raw), true, nil
	}
	if s.enc == nil {
		return "", false, fmt.Errorf("reading %s: value is encrypted but no secret is configured", key)
	}
	value, err := s.enc.Open(raw, string(key))
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key. Setting "" is the same as Clear.
func (s *Store) Set(key Key, value string) error {
	if value == "" {
		return s.Clear(key)
	}

	raw := []byte(value)
	encrypted := false
	if s.enc != nil {
		sealed, err := s.enc.Seal(value, string(key))
		if err != nil {
			return fmt.Errorf("sealing %s: %w", key, err)
		}
		raw, encrypted = sealed, true
	}

	_, err := s.db.Exec(`
		INSERT INTO session_values (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, encrypted = excluded.encrypted, updated_at = excluded.updated_at
	`, string(key), raw, encrypted)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Clear removes key. Clearing a missing key is not an error.
func (s *Store) Clear(key Key) error {
	if _, err := s.db.Exec(`DELETE FROM session_values WHERE key = ?`, string(key)); err != nil {
		return fmt.Errorf("clearing %s: %w", key, err)
	}
	return nil
}

// Has reports whether key holds a value. Read errors count as absent.
func (s *Store) Has(key Key) bool {
	_, ok, err := s.Get(key)
	return err == nil && ok
}

// Account decodes the account stored under key, or nil.
func (s *Store) Account(key Key) (*flatex.Account, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return nil, err
	}
	var acc flatex.Account
	if err := json.Unmarshal([]byte(raw), &acc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &acc, nil
}

// SetAccount stores acc under key; nil clears it.
func (s *Store) SetAccount(key Key, acc *flatex.Account) error {
	if acc == nil {
		return s.Clear(key)
	}
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Set(key, string(data))
}

// LoadSyncToken returns the stored chat sync cursor, or "".
func (s *Store) LoadSyncToken() (string, error) {
	v, _, err := s.Get(KeyMatrixSyncToken)
	return v, err
}

// SaveSyncToken stores the chat sync cursor.
func (s *Store) SaveSyncToken(token string) error {
	return s.Set(KeyMatrixSyncToken, token)
}

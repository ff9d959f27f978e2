// Package services provides the audit log of brokerage operations.
package services

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"flatex_bot/internal/broker/flatex"
	"flatex_bot/internal/database"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditAuthorize   AuditAction = "session.authorize"
	AuditPlaceOrder  AuditAction = "order.place"
	AuditCancelOrder AuditAction = "order.cancel"
)

// Outcome of an audited action.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEntry represents an order audit entry.
type AuditEntry struct {
	ID        int64       `json:"id"`
	Action    AuditAction `json:"action"`
	Actor     string      `json:"actor"` // chat sender or "webhook"
	OrderID   string      `json:"order_id,omitempty"`
	ISIN      string      `json:"isin,omitempty"`
	Details   string      `json:"details,omitempty"` // JSON
	Outcome   string      `json:"outcome"`
	ErrorCode string      `json:"error_code,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// AuditService records authorize, place and cancel outcomes.
type AuditService struct {
	db     *database.DB
	logger *zap.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(db *database.DB, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{db: db, logger: logger.Named("audit")}
}

// Log records an audit entry.
func (s *AuditService) Log(entry *AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(`
		INSERT INTO order_audit (action, actor, order_id, isin, details, outcome, error_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Action, entry.Actor, entry.OrderID, entry.ISIN, entry.Details,
		entry.Outcome, entry.ErrorCode, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	entry.ID, _ = result.LastInsertId()
	return nil
}

// Record is a convenience method deriving the outcome from opErr and
// serializing details to JSON. Failures to write are logged, not returned.
func (s *AuditService) Record(action AuditAction, actor, orderID, isin string, details any, opErr error) {
	entry := &AuditEntry{
		Action:  action,
		Actor:   actor,
		OrderID: orderID,
		ISIN:    isin,
		Outcome: OutcomeSuccess,
	}
	if opErr != nil {
		entry.Outcome = OutcomeFailure
		entry.ErrorCode = flatex.Code(opErr)
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = string(data)
		}
	}

	if err := s.Log(entry); err != nil {
		s.logger.Error("audit log failed", zap.String("action", string(action)), zap.Error(err))
	}
}

// GetRecent retrieves the most recent audit entries, newest first.
func (s *AuditService) GetRecent(limit int) ([]*AuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, action, actor, order_id, isin, details, outcome, error_code, created_at
		FROM order_audit
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &e.OrderID, &e.ISIN,
			&e.Details, &e.Outcome, &e.ErrorCode, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetByOrderID retrieves the audit trail of one order, oldest first.
func (s *AuditService) GetByOrderID(orderID string) ([]*AuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, action, actor, order_id, isin, details, outcome, error_code, created_at
		FROM order_audit
		WHERE order_id = ?
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &e.OrderID, &e.ISIN,
			&e.Details, &e.Outcome, &e.ErrorCode, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes audit entries older than the given duration.
func (s *AuditService) DeleteOlderThan(d time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-d)
	result, err := s.db.Exec(`DELETE FROM order_audit WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// FormatEntry returns a human-readable description of an audit entry.
func FormatEntry(e *AuditEntry) string {
	s := fmt.Sprintf("[%s] %s %s: %s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Actor, e.Action, e.Outcome)
	if e.OrderID != "" {
		s += " (order " + e.OrderID + ")"
	}
	if e.ErrorCode != "" {
		s += " code " + e.ErrorCode
	}
	return s
}

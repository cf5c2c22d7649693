package postgres

import (
	"context"
	"fmt"
	"time"
)

// AuditRepository appends free-text actions to audit_log.
type AuditRepository struct {
	conn *Connection
}

// NewAuditRepository creates an audit repository.
func NewAuditRepository(conn *Connection) *AuditRepository {
	return &AuditRepository{conn: conn}
}

// Record inserts one action.
func (r *AuditRepository) Record(ctx context.Context, action string) error {
	_, err := r.conn.Pool().Exec(ctx,
		"INSERT INTO audit_log (action, created_at) VALUES ($1, $2)",
		action, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: record audit: %w", err)
	}
	return nil
}

package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry represents a record stored in audit_logs.
type AuditEntry struct {
	OperatorID   int64
	OperatorName string
	Action       string
	ResourceType string
	ResourceID   string
	Detail       string
	Channel      string
	OriginIP     string
	At           time.Time
}

// AuditLogger appends entries into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, entry AuditEntry) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if entry.Action == "" || entry.ResourceType == "" {
		return errors.New("audit entry requires action/resource_type")
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO audit_logs (operator_id, operator_name, action, resource_type, resource_id, detail, channel, origin_ip, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.OperatorID, entry.OperatorName, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Detail, entry.Channel, entry.OriginIP, at)
	return err
}

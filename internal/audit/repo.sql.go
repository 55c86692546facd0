package audit

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineQuery = `
SELECT occurred_at, operator_id, operator_name, action, resource_type, resource_id, detail, channel, origin_ip
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2 + interval '1 day')
  AND ($3::text IS NULL OR operator_name ILIKE '%' || $3 || '%')
  AND ($4::text IS NULL OR resource_type = $4)
  AND ($5::text IS NULL OR action = $5)
ORDER BY occurred_at DESC, operator_id`

// TimelineWindow fetches one page of the audit timeline, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]LogRow, error) {
	rows, err := r.pool.Query(ctx, timelineQuery+` LIMIT $6 OFFSET $7`,
		toPgTime(filters.From), toPgTime(filters.To),
		optionalText(filters.Operator), optionalText(filters.Resource), optionalText(filters.Action),
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogRows(rows)
}

// TimelineAll fetches the full filtered timeline, for exports.
func (r *PGRepository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]LogRow, error) {
	rows, err := r.pool.Query(ctx, timelineQuery,
		toPgTime(filters.From), toPgTime(filters.To),
		optionalText(filters.Operator), optionalText(filters.Resource), optionalText(filters.Action))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogRows(rows)
}

func scanLogRows(rows pgx.Rows) ([]LogRow, error) {
	var out []LogRow
	for rows.Next() {
		var row LogRow
		var resourceID, detail, channel, originIP pgtype.Text
		if err := rows.Scan(&row.At, &row.OperatorID, &row.OperatorName, &row.Action,
			&row.ResourceType, &resourceID, &detail, &channel, &originIP); err != nil {
			return nil, err
		}
		row.ResourceID = resourceID.String
		row.Detail = detail.String
		row.Channel = channel.String
		row.OriginIP = originIP.String
		out = append(out, row)
	}
	return out, rows.Err()
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

var _ Repository = (*PGRepository)(nil)

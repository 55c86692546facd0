package audit

import "context"

// Repository defines read access to the audit log.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]LogRow, error)
	TimelineAll(ctx context.Context, filters TimelineFilters) ([]LogRow, error)
}

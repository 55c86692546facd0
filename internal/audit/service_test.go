package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/meridian-his/meridian/testing"
)

type mockRepo struct {
	rows       []LogRow
	lastLimit  int
	lastOffset int
}

func (m *mockRepo) TimelineWindow(_ context.Context, _ TimelineFilters, limit, offset int) ([]LogRow, error) {
	m.lastLimit = limit
	m.lastOffset = offset
	if offset >= len(m.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.rows) {
		end = len(m.rows)
	}
	return m.rows[offset:end], nil
}

func (m *mockRepo) TimelineAll(context.Context, TimelineFilters) ([]LogRow, error) {
	return m.rows, nil
}

func fixtureRows(n int) []LogRow {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := make([]LogRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, LogRow{
			At:           base.Add(time.Duration(i) * time.Minute),
			OperatorID:   int64(i + 1),
			OperatorName: "drchen",
			Action:       "auth.login",
			ResourceType: "credentials",
		})
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &mockRepo{rows: fixtureRows(25)}
	svc := NewService(repo)
	ctx := context.Background()

	result, err := svc.Timeline(ctx, TimelineFilters{})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 20)
	assert.Equal(t, PagingInfo{Page: 1, PageSize: 20, HasNext: true}, result.Paging)
	// One extra row is requested to detect the next page.
	assert.Equal(t, 21, repo.lastLimit)
	assert.Equal(t, 0, repo.lastOffset)

	result, err = svc.Timeline(ctx, TimelineFilters{Page: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 5)
	assert.Equal(t, PagingInfo{Page: 2, PageSize: 20, HasNext: false}, result.Paging)
	assert.Equal(t, 20, repo.lastOffset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &mockRepo{rows: fixtureRows(60)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, result.Paging.PageSize)
	assert.Len(t, result.Rows, 50)
	assert.True(t, result.Paging.HasNext)
}

func TestWriteCSV(t *testing.T) {
	rows := []LogRow{
		{
			At:           time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
			OperatorID:   7,
			OperatorName: "drchen",
			Action:       "auth.login",
			ResourceType: "credentials",
			ResourceID:   "7",
			Channel:      "web",
			OriginIP:     "10.0.0.1",
		},
	}
	out, err := WriteCSV(rows)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "occurred_at,operator_id,operator_name,action,resource_type,resource_id,detail,channel,origin_ip", lines[0])
	assert.Equal(t, "2025-03-01T09:00:00Z,7,drchen,auth.login,credentials,7,,web,10.0.0.1", lines[1])
}

func newGetRequest(t *testing.T, target string) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, target, nil)
}

func TestParseFiltersDefaultsAndBounds(t *testing.T) {
	h := NewHandler(nil, NewService(&mockRepo{}))
	h.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }

	req := newGetRequest(t, "/audit/logs")
	filters, err := h.parseFilters(req)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", filters.To.Format("2006-01-02"))
	assert.Equal(t, "2025-03-03", filters.From.Format("2006-01-02"))

	_, err = h.parseFilters(newGetRequest(t, "/audit/logs?from=2025-03-05&to=2025-03-01"))
	assert.Error(t, err)

	_, err = h.parseFilters(newGetRequest(t, "/audit/logs?from=2024-01-01&to=2025-03-01"))
	assert.Error(t, err)

	_, err = h.parseFilters(newGetRequest(t, "/audit/logs?page=zero"))
	assert.Error(t, err)
}

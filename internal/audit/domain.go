package audit

import "time"

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Operator string
	Resource string
	Action   string
	Page     int
	PageSize int
}

// LogRow is one row of the audit timeline.
type LogRow struct {
	At           time.Time `json:"at"`
	OperatorID   int64     `json:"operator_id"`
	OperatorName string    `json:"operator_name"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	OriginIP     string    `json:"origin_ip,omitempty"`
}

// PagingInfo carries pagination metadata alongside a timeline page.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// Result bundles a timeline page with its paging info.
type Result struct {
	Rows   []LogRow
	Paging PagingInfo
}

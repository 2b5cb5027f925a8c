package models

import "time"

// AuditEntry is one logged generation request.
type AuditEntry struct {
	RequestID  string    `json:"request_id"`
	Engine     string    `json:"engine"`
	StatusCode int       `json:"status_code"`
	Prompt     string    `json:"prompt,omitempty"`
	Response   string    `json:"response,omitempty"`
	Error      string    `json:"error,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditQueryOpts filters audit log queries.
type AuditQueryOpts struct {
	RequestID string
	Engine    string
	Since     time.Time
	Limit     int
}

// AuditStat is an aggregate row grouped by engine and day.
type AuditStat struct {
	Engine string `json:"engine"`
	Day    string `json:"day"`
	Count  int64  `json:"count"`
}

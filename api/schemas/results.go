package schemas

import "time"

// TimestampLayout is the layout used for timestamps in persisted rows.
const TimestampLayout = "2006-01-02 15:04:05"

// RoleResult is the outcome of checking one username on one server.
// Roles keep first-seen order with duplicates collapsed; Found is true when at least one role was read.
type RoleResult struct {
	Username  string    `json:"username"`
	ServerURL string    `json:"server_url"`
	Roles     []string  `json:"roles"`
	Found     bool      `json:"found"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Record is one persisted result row.
type Record struct {
	Username     string    `json:"username"`
	SerialNumber string    `json:"serial_number"`
	ServerURL    string    `json:"server_url"`
	Found        bool      `json:"found"`
	Roles        string    `json:"roles"`
	CheckedAt    time.Time `json:"checked_at"`
	Error        string    `json:"error,omitempty"`
}

// Row renders the record in sheet column order:
// username, checker serial number, found, roles, timestamp, error.
func (r Record) Row() []any {
	return []any{
		r.Username,
		r.SerialNumber,
		r.Found,
		r.Roles,
		r.CheckedAt.Format(TimestampLayout),
		r.Error,
	}
}

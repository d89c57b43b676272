package model

import "time"

// SourceState holds the single row of resumable cursors and last-run
// statistics for one source. All cursor fields are monotonically
// non-decreasing across successful runs.
type SourceState struct {
	SourceID         int64      `json:"source_id"`
	LastMaxTimestamp *string    `json:"last_max_timestamp,omitempty"`
	LastMaxRecordID  *int64     `json:"last_max_record_id,omitempty"`
	LastIssueDate    *string    `json:"last_issue_date,omitempty"`
	ETag             *string    `json:"etag,omitempty"`
	Checksum         *string    `json:"checksum,omitempty"`
	RowsFetched      int        `json:"rows_fetched"`
	RowsUpserted     int        `json:"rows_upserted"`
	Errors           int        `json:"errors"`
	FreshnessSeconds *int       `json:"freshness_seconds,omitempty"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	IsRunning        bool       `json:"is_running"`
	StatusMessage    string     `json:"status_message"`
	CurrentPage      int        `json:"current_page"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// StatePatch is a partial update to a SourceState row. Nil fields are left
// untouched by UpsertSourceState; set fields are patch-merged in.
type StatePatch struct {
	SourceID         int64      `json:"source_id"`
	LastMaxTimestamp *string    `json:"last_max_timestamp,omitempty"`
	LastMaxRecordID  *int64     `json:"last_max_record_id,omitempty"`
	LastIssueDate    *string    `json:"last_issue_date,omitempty"`
	ETag             *string    `json:"etag,omitempty"`
	Checksum         *string    `json:"checksum,omitempty"`
	RowsFetched      *int       `json:"rows_fetched,omitempty"`
	RowsUpserted     *int       `json:"rows_upserted,omitempty"`
	Errors           *int       `json:"errors,omitempty"`
	FreshnessSeconds *int       `json:"freshness_seconds,omitempty"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	IsRunning        *bool      `json:"is_running,omitempty"`
	StatusMessage    *string    `json:"status_message,omitempty"`
	CurrentPage      *int       `json:"current_page,omitempty"`
}

// Apply merges the set fields of the patch into s.
func (p StatePatch) Apply(s *SourceState) {
	if p.LastMaxTimestamp != nil {
		s.LastMaxTimestamp = p.LastMaxTimestamp
	}
	if p.LastMaxRecordID != nil {
		s.LastMaxRecordID = p.LastMaxRecordID
	}
	if p.LastIssueDate != nil {
		s.LastIssueDate = p.LastIssueDate
	}
	if p.ETag != nil {
		s.ETag = p.ETag
	}
	if p.Checksum != nil {
		s.Checksum = p.Checksum
	}
	if p.RowsFetched != nil {
		s.RowsFetched = *p.RowsFetched
	}
	if p.RowsUpserted != nil {
		s.RowsUpserted = *p.RowsUpserted
	}
	if p.Errors != nil {
		s.Errors = *p.Errors
	}
	if p.FreshnessSeconds != nil {
		s.FreshnessSeconds = p.FreshnessSeconds
	}
	if p.LastSyncAt != nil {
		s.LastSyncAt = p.LastSyncAt
	}
	if p.IsRunning != nil {
		s.IsRunning = *p.IsRunning
	}
	if p.StatusMessage != nil {
		s.StatusMessage = *p.StatusMessage
	}
	if p.CurrentPage != nil {
		s.CurrentPage = *p.CurrentPage
	}
}

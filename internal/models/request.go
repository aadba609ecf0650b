package models

import "time"

// RequestType is the closed set of subject-rights request kinds (Art. 15-20).
type RequestType string

const (
	RequestTypeDataExport           RequestType = "DATA_EXPORT"
	RequestTypeDataErasure          RequestType = "DATA_ERASURE"
	RequestTypeDataAccess           RequestType = "DATA_ACCESS"
	RequestTypeDataRectification    RequestType = "DATA_RECTIFICATION"
	RequestTypeProcessingRestriction RequestType = "PROCESSING_RESTRICTION"
	RequestTypeDataPortability      RequestType = "DATA_PORTABILITY"
)

func (t RequestType) Valid() bool {
	switch t {
	case RequestTypeDataExport, RequestTypeDataErasure, RequestTypeDataAccess,
		RequestTypeDataRectification, RequestTypeProcessingRestriction, RequestTypeDataPortability:
		return true
	}
	return false
}

// RequestStatus is the request lifecycle state machine position (§4.7).
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "PENDING"
	RequestStatusInProgress RequestStatus = "IN_PROGRESS"
	RequestStatusCompleted  RequestStatus = "COMPLETED"
	RequestStatusRejected   RequestStatus = "REJECTED"
	RequestStatusCancelled  RequestStatus = "CANCELLED"
)

// IsTerminal reports whether a request in this status can still transition.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusCompleted, RequestStatusRejected, RequestStatusCancelled:
		return true
	}
	return false
}

// Request is the Request entity in spec.md §3.
type Request struct {
	ID              string        `json:"id" db:"id"`
	SubjectEmail    string        `json:"subject_email" db:"subject_email"`
	Type            RequestType   `json:"type" db:"type"`
	Status          RequestStatus `json:"status" db:"status"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	DeadlineAt      time.Time     `json:"deadline_at" db:"deadline_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	ProcessedBy     string        `json:"processed_by,omitempty" db:"processed_by"`
	RejectionReason string        `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ResultFileURL   string        `json:"result_file_url,omitempty" db:"result_file_url"`
	ResultFileSize  int64         `json:"result_file_size,omitempty" db:"result_file_size"`
}

// IsOverdue implements §4.7's "is_overdue = status ∈ {PENDING, IN_PROGRESS} ∧
// deadline_at < now".
func (r *Request) IsOverdue(now time.Time) bool {
	if r.Status != RequestStatusPending && r.Status != RequestStatusInProgress {
		return false
	}
	return r.DeadlineAt.Before(now)
}

// DaysRemaining implements §4.7's "max(0, floor((deadline_at - now).days))".
func (r *Request) DaysRemaining(now time.Time) int {
	remaining := r.DeadlineAt.Sub(now)
	days := int(remaining.Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

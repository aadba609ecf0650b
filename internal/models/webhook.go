package models

import "time"

// WebhookEvent is the stable wire-string event taxonomy of spec.md §4.8.
type WebhookEvent string

const (
	EventConsentGranted          WebhookEvent = "consent.granted"
	EventConsentWithdrawn        WebhookEvent = "consent.withdrawn"
	EventConsentExpired          WebhookEvent = "consent.expired"
	EventRequestCreated          WebhookEvent = "request.created"
	EventRequestProcessing       WebhookEvent = "request.processing"
	EventRequestCompleted        WebhookEvent = "request.completed"
	EventRequestRejected         WebhookEvent = "request.rejected"
	EventDataExported            WebhookEvent = "data.exported"
	EventDataErased              WebhookEvent = "data.erased"
	EventDataRectified           WebhookEvent = "data.rectified"
	EventDataRestricted          WebhookEvent = "data.restricted"
	EventComplianceOverdueAlert  WebhookEvent = "compliance.overdue_alert"
	EventComplianceRetentionRun  WebhookEvent = "compliance.retention_cleanup"
)

const WildcardEvent = "*"

// WebhookSubscription is the entity in spec.md §3.
type WebhookSubscription struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	URL             string     `json:"url" db:"url"`
	Secret          string     `json:"-" db:"secret"`
	Events          []string   `json:"events" db:"events"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	Headers         map[string]string `json:"headers,omitempty" db:"headers"`
	RetryCount      int        `json:"retry_count" db:"retry_count"`
	TimeoutSeconds  int        `json:"timeout_seconds" db:"timeout_seconds"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	LastStatusCode  *int       `json:"last_status_code,omitempty" db:"last_status_code"`
	FailureCount    int        `json:"failure_count" db:"failure_count"`
}

// Matches reports whether this subscription should receive event.
func (s *WebhookSubscription) Matches(event WebhookEvent) bool {
	for _, e := range s.Events {
		if e == WildcardEvent || e == string(event) {
			return true
		}
	}
	return false
}

// WebhookLog is the append-only delivery-attempt record, trimmed after 90
// days per spec.md §3/§4.8.
type WebhookLog struct {
	ID             string    `json:"id" db:"id"`
	SubscriptionID string    `json:"subscription_id" db:"subscription_id"`
	EventType      string    `json:"event_type" db:"event_type"`
	Payload        string    `json:"payload" db:"payload"`
	AttemptNumber  int       `json:"attempt_number" db:"attempt_number"`
	ResponseStatus *int      `json:"response_status,omitempty" db:"response_status"`
	ResponseBody   string    `json:"response_body,omitempty" db:"response_body"`
	Success        bool      `json:"success" db:"success"`
	ErrorMessage   string    `json:"error_message,omitempty" db:"error_message"`
	DurationMS     int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

const WebhookLogBodyTruncateBytes = 1024

// Package notify is C9, the Notification Service: a thin layer over an
// EmailSender capability that renders three message families — subject-
// facing request lifecycle mail, a DPO overdue-request digest, and a
// consent expiry pre-notice sent as one email per expiring consent
// (spec.md §4.9).
//
// Grounded on original_source/compliance/gdpr/gdpr_notifications.py for the
// message families and their HTML shape (simplified to Go's html/template,
// the idiomatic equivalent the teacher corpus would reach for were
// templated output needed anywhere in it), and on
// internal/logger/logger.go for the structured-logging idiom used to
// report individual send failures without aborting the batch.
package notify

import (
	"bytes"
	"context"
	"html/template"

	"gdprengine/internal/logger"
	"gdprengine/internal/models"
)

// EmailSender is the single-method capability the original's _send_email
// abstracts over SMTP for; this engine's SMTP implementation lives in
// smtp.go so this package stays testable against a fake.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Service is C9.
type Service struct {
	sender      EmailSender
	dpoEmail    string
	companyName string
	supportEmail string
}

func NewService(sender EmailSender, dpoEmail, companyName, supportEmail string) *Service {
	if companyName == "" {
		companyName = "Privacy Office"
	}
	if supportEmail == "" {
		supportEmail = dpoEmail
	}
	return &Service{sender: sender, dpoEmail: dpoEmail, companyName: companyName, supportEmail: supportEmail}
}

// Result is the {count_found, count_sent} shape every C9 operation returns.
type Result struct {
	CountFound int `json:"count_found"`
	CountSent  int `json:"count_sent"`
}

func (s *Service) send(ctx context.Context, to, subject string, tmpl *template.Template, data interface{}) bool {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		logger.GetLogger().WithError(err).WithField("to", to).Error("failed to render notification template")
		return false
	}
	if err := s.sender.Send(ctx, to, subject, buf.String()); err != nil {
		logger.GetLogger().WithError(err).WithField("to", to).WithField("subject", subject).Warn("notification send failed")
		return false
	}
	return true
}

// NotifyRequestCreated implements the request-creation confirmation.
func (s *Service) NotifyRequestCreated(ctx context.Context, req *models.Request) bool {
	subject := "[GDPR] Your " + titleRequestType(req.Type) + " Request - #" + req.ID
	return s.send(ctx, req.SubjectEmail, subject, requestCreatedTmpl, requestCreatedData{
		Request: req, CompanyName: s.companyName, SupportEmail: s.supportEmail,
	})
}

// NotifyRequestCompleted implements the completion notice, with an optional
// download link for export/portability requests.
func (s *Service) NotifyRequestCompleted(ctx context.Context, req *models.Request, downloadURL string) bool {
	subject := "[GDPR] Your " + titleRequestType(req.Type) + " Request Completed - #" + req.ID
	return s.send(ctx, req.SubjectEmail, subject, requestCompletedTmpl, requestCompletedData{
		Request: req, CompanyName: s.companyName, SupportEmail: s.supportEmail, DownloadURL: downloadURL,
	})
}

// NotifyRequestRejected implements the rejection notice.
func (s *Service) NotifyRequestRejected(ctx context.Context, req *models.Request, reason string) bool {
	subject := "[GDPR] Update on Your Request - #" + req.ID
	return s.send(ctx, req.SubjectEmail, subject, requestRejectedTmpl, requestRejectedData{
		Request: req, Reason: reason, CompanyName: s.companyName, SupportEmail: s.supportEmail,
	})
}

// NotifyOverdue implements spec.md §4.9's DPO overdue digest: a single
// email listing every overdue request. No-ops (returns a zero-sent result)
// when there is nothing overdue, per the original's early return.
func (s *Service) NotifyOverdue(ctx context.Context, overdue []models.Request) Result {
	if len(overdue) == 0 {
		return Result{}
	}
	sent := s.send(ctx, s.dpoEmail, overdueSubject(len(overdue)), overdueDigestTmpl, overdueDigestData{
		Requests: overdue, Count: len(overdue),
	})
	result := Result{CountFound: len(overdue)}
	if sent {
		result.CountSent = 1
	}
	return result
}

// NotifyConsentExpiringSoon implements spec.md §4.9's per-consent pre-
// notice: one email per matching consent row, failures logged but not
// aborting the batch.
func (s *Service) NotifyConsentExpiringSoon(ctx context.Context, expiring []models.Consent, daysBefore int) Result {
	result := Result{CountFound: len(expiring)}
	for _, c := range expiring {
		subject := "[GDPR] Your Consent is Expiring Soon - " + titleConsentType(c.Type)
		if s.send(ctx, c.SubjectEmail, subject, consentExpiringTmpl, consentExpiringData{
			Consent: c, DaysBefore: daysBefore, CompanyName: s.companyName, SupportEmail: s.supportEmail,
		}) {
			result.CountSent++
		}
	}
	return result
}

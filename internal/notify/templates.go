package notify

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"gdprengine/internal/models"
)

func titleRequestType(t models.RequestType) string {
	return strings.Title(strings.ToLower(strings.ReplaceAll(string(t), "_", " ")))
}

func titleConsentType(t models.ConsentType) string {
	return strings.Title(strings.ToLower(strings.ReplaceAll(string(t), "_", " ")))
}

func overdueSubject(count int) string {
	return fmt.Sprintf("[GDPR ALERT] %d Overdue Request(s) Require Attention", count)
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

const baseStyle = `
	body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
	.container { max-width: 600px; margin: 0 auto; padding: 20px; }
	.header { color: white; padding: 20px; text-align: center; }
	.content { padding: 20px; background: #f9fafb; }
	.info-box { background: white; border: 1px solid #e5e7eb; padding: 15px; margin: 10px 0; border-radius: 5px; }
	.footer { padding: 20px; text-align: center; font-size: 12px; color: #6b7280; }
`

func fmtTimeV(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 MST")
}

var funcMap = template.FuncMap{
	"titleRequestType": titleRequestType,
	"titleConsentType": titleConsentType,
	"fmtTime":          fmtTime,
	"fmtTimeV":         fmtTimeV,
}

type requestCreatedData struct {
	Request      *models.Request
	CompanyName  string
	SupportEmail string
}

var requestCreatedTmpl = template.Must(template.New("request_created").Funcs(funcMap).Parse(`
<!DOCTYPE html>
<html><head><style>` + baseStyle + `.header { background: #2563eb; }</style></head>
<body><div class="container">
  <div class="header"><h1>GDPR Request Confirmation</h1></div>
  <div class="content">
    <p>Dear Data Subject,</p>
    <p>We have received your GDPR request. Below are the details:</p>
    <div class="info-box">
      <p><strong>Request ID:</strong> #{{.Request.ID}}</p>
      <p><strong>Request Type:</strong> {{titleRequestType .Request.Type}}</p>
      <p><strong>Email:</strong> {{.Request.SubjectEmail}}</p>
      <p><strong>Submitted:</strong> {{fmtTimeV .Request.CreatedAt}}</p>
      <p><strong>Deadline:</strong> {{fmtTimeV .Request.DeadlineAt}}</p>
    </div>
    <p>Under GDPR Article 12, we are required to respond to your request within <strong>30 days</strong>.</p>
    <p>We will notify you once your request has been processed.</p>
    <p>Questions? Contact us at <a href="mailto:{{.SupportEmail}}">{{.SupportEmail}}</a>.</p>
  </div>
  <div class="footer"><p>&copy; {{.CompanyName}}. This email concerns your GDPR request.</p></div>
</div></body></html>
`))

type requestCompletedData struct {
	Request      *models.Request
	CompanyName  string
	SupportEmail string
	DownloadURL  string
}

var requestCompletedTmpl = template.Must(template.New("request_completed").Funcs(funcMap).Parse(`
<!DOCTYPE html>
<html><head><style>` + baseStyle + `.header { background: #10b981; }</style></head>
<body><div class="container">
  <div class="header"><h1>Request Completed</h1></div>
  <div class="content">
    <p>Dear Data Subject,</p>
    <p>Your GDPR request has been <strong>successfully completed</strong>.</p>
    <div class="info-box">
      <p><strong>Request ID:</strong> #{{.Request.ID}}</p>
      <p><strong>Request Type:</strong> {{titleRequestType .Request.Type}}</p>
      <p><strong>Processed By:</strong> {{if .Request.ProcessedBy}}{{.Request.ProcessedBy}}{{else}}System{{end}}</p>
    </div>
    {{if .DownloadURL}}
    <div class="info-box" style="background: #ecfdf5; border-color: #10b981;">
      <p><strong>Download Your Data:</strong></p>
      <p><a href="{{.DownloadURL}}">Click here to download your data</a></p>
      <p><small>This link will expire in 7 days.</small></p>
    </div>
    {{end}}
    <p>Questions? Contact us at <a href="mailto:{{.SupportEmail}}">{{.SupportEmail}}</a>.</p>
  </div>
  <div class="footer"><p>&copy; {{.CompanyName}}.</p></div>
</div></body></html>
`))

type requestRejectedData struct {
	Request      *models.Request
	Reason       string
	CompanyName  string
	SupportEmail string
}

var requestRejectedTmpl = template.Must(template.New("request_rejected").Funcs(funcMap).Parse(`
<!DOCTYPE html>
<html><head><style>` + baseStyle + `.header { background: #ef4444; } .reason-box { background: #fef2f2; border: 1px solid #fecaca; padding: 15px; margin: 10px 0; border-radius: 5px; }</style></head>
<body><div class="container">
  <div class="header"><h1>Request Update</h1></div>
  <div class="content">
    <p>Dear Data Subject,</p>
    <p>We regret to inform you that we were unable to fulfill your GDPR request.</p>
    <div class="info-box">
      <p><strong>Request ID:</strong> #{{.Request.ID}}</p>
      <p><strong>Request Type:</strong> {{titleRequestType .Request.Type}}</p>
    </div>
    <div class="reason-box"><p><strong>Reason:</strong></p><p>{{.Reason}}</p></div>
    <p>You have the right to lodge a complaint with your local supervisory authority.</p>
    <p>Questions? Contact us at <a href="mailto:{{.SupportEmail}}">{{.SupportEmail}}</a>.</p>
  </div>
  <div class="footer"><p>&copy; {{.CompanyName}}.</p></div>
</div></body></html>
`))

type overdueDigestData struct {
	Requests []models.Request
	Count    int
}

var overdueDigestTmpl = template.Must(template.New("overdue_digest").Funcs(funcMap).Parse(`
<!DOCTYPE html>
<html><head><style>` + baseStyle + `
	.header { background: #ef4444; }
	.alert-box { background: #fef2f2; border: 2px solid #ef4444; padding: 15px; margin: 10px 0; border-radius: 5px; }
	table { width: 100%; border-collapse: collapse; margin: 15px 0; }
	th, td { padding: 10px; border: 1px solid #e5e7eb; text-align: left; }
	th { background: #f3f4f6; }
</style></head>
<body><div class="container">
  <div class="header"><h1>GDPR Compliance Alert</h1></div>
  <div class="content">
    <div class="alert-box"><p><strong>URGENT:</strong> {{.Count}} request(s) are past their 30-day deadline.</p></div>
    <table>
      <thead><tr><th>Request ID</th><th>Email</th><th>Type</th><th>Status</th></tr></thead>
      <tbody>
      {{range .Requests}}
        <tr><td>#{{.ID}}</td><td>{{.SubjectEmail}}</td><td>{{titleRequestType .Type}}</td><td>{{.Status}}</td></tr>
      {{end}}
      </tbody>
    </table>
    <p><strong>Action Required:</strong> Please process these requests immediately.</p>
  </div>
  <div class="footer"><p>Automated alert from the GDPR compliance engine.</p></div>
</div></body></html>
`))

type consentExpiringData struct {
	Consent      models.Consent
	DaysBefore   int
	CompanyName  string
	SupportEmail string
}

var consentExpiringTmpl = template.Must(template.New("consent_expiring").Funcs(funcMap).Parse(`
<!DOCTYPE html>
<html><head><style>` + baseStyle + `.header { background: #f59e0b; }</style></head>
<body><div class="container">
  <div class="header"><h1>Consent Expiring Soon</h1></div>
  <div class="content">
    <p>Dear {{.Consent.SubjectEmail}},</p>
    <p>Your consent for <strong>{{titleConsentType .Consent.Type}}</strong> will expire soon.</p>
    <div class="info-box">
      <p><strong>Consent Type:</strong> {{titleConsentType .Consent.Type}}</p>
      <p><strong>Expires:</strong> {{fmtTime .Consent.ExpiresAt}}</p>
    </div>
    <p>If you wish to continue, please renew your consent before it expires.</p>
    <p>If you do not wish to renew, no action is needed; your consent will automatically expire.</p>
    <p>Questions? Contact us at <a href="mailto:{{.SupportEmail}}">{{.SupportEmail}}</a>.</p>
  </div>
  <div class="footer"><p>&copy; {{.CompanyName}}.</p></div>
</div></body></html>
`))

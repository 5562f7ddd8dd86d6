package ingest

import (
	"encoding/json"
	"strings"
	"time"
)

// SNS envelope message types.
const (
	snsSubscriptionConfirmation = "SubscriptionConfirmation"
	snsNotification             = "Notification"
	snsUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
	Timestamp    string `json:"Timestamp"`
}

// sesEvent is an SES event-publishing record. Legacy notifications carry
// notificationType instead of eventType.
type sesEvent struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`

	Mail sesMail `json:"mail"`

	Bounce           *sesBounce           `json:"bounce,omitempty"`
	Complaint        *sesComplaint        `json:"complaint,omitempty"`
	Delivery         *sesDelivery         `json:"delivery,omitempty"`
	DeliveryDelay    *sesDeliveryDelay    `json:"deliveryDelay,omitempty"`
	Reject           *sesReject           `json:"reject,omitempty"`
	Open             *sesOpen             `json:"open,omitempty"`
	Click            *sesClick            `json:"click,omitempty"`
	RenderingFailure *sesRenderingFailure `json:"renderingFailure,omitempty"`
	Failure          *sesRenderingFailure `json:"failure,omitempty"`
}

type sesMail struct {
	Timestamp     string   `json:"timestamp"`
	MessageID     string   `json:"messageId"`
	Source        string   `json:"source"`
	Destination   []string `json:"destination"`
	CommonHeaders struct {
		Subject string `json:"subject"`
	} `json:"commonHeaders"`
}

type sesBounce struct {
	BounceType        string `json:"bounceType"`
	BounceSubType     string `json:"bounceSubType"`
	Timestamp         string `json:"timestamp"`
	ReportingMTA      string `json:"reportingMTA"`
	FeedbackID        string `json:"feedbackId"`
	BouncedRecipients []struct {
		EmailAddress   string `json:"emailAddress"`
		DiagnosticCode string `json:"diagnosticCode"`
	} `json:"bouncedRecipients"`
}

type sesComplaint struct {
	ComplaintFeedbackType string `json:"complaintFeedbackType"`
	FeedbackID            string `json:"feedbackId"`
	Timestamp             string `json:"timestamp"`
	UserAgent             string `json:"userAgent"`
}

type sesDelivery struct {
	Timestamp            string      `json:"timestamp"`
	ProcessingTimeMillis json.Number `json:"processingTimeMillis"`
	SMTPResponse         string      `json:"smtpResponse"`
	RemoteMtaIP          string      `json:"remoteMtaIp"`
	ReportingMTA         string      `json:"reportingMTA"`
}

type sesDeliveryDelay struct {
	Timestamp     string      `json:"timestamp"`
	DelayType     string      `json:"delayType"`
	DelayDuration json.Number `json:"delayDuration"`
	ReportingMTA  string      `json:"reportingMTA"`
}

type sesReject struct {
	Reason string `json:"reason"`
}

type sesOpen struct {
	Timestamp string `json:"timestamp"`
	UserAgent string `json:"userAgent"`
	IPAddress string `json:"ipAddress"`
}

type sesClick struct {
	Timestamp string `json:"timestamp"`
	UserAgent string `json:"userAgent"`
	IPAddress string `json:"ipAddress"`
	Link      string `json:"link"`
}

type sesRenderingFailure struct {
	ErrorMessage string `json:"errorMessage"`
	TemplateName string `json:"templateName"`
}

func (e *sesEvent) kind() string {
	if t := strings.TrimSpace(e.EventType); t != "" {
		return t
	}
	return strings.TrimSpace(e.NotificationType)
}

func (e *sesEvent) recipient() string {
	parts := make([]string, 0, len(e.Mail.Destination))
	for _, d := range e.Mail.Destination {
		if d = strings.TrimSpace(d); d != "" {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, ", ")
}

// providerTimestamp returns the type-specific event time, falling back to the
// send time of the mail.
func (e *sesEvent) providerTimestamp() *int64 {
	var ts string
	switch {
	case e.Delivery != nil:
		ts = e.Delivery.Timestamp
	case e.Bounce != nil:
		ts = e.Bounce.Timestamp
	case e.Complaint != nil:
		ts = e.Complaint.Timestamp
	case e.DeliveryDelay != nil:
		ts = e.DeliveryDelay.Timestamp
	case e.Open != nil:
		ts = e.Open.Timestamp
	case e.Click != nil:
		ts = e.Click.Timestamp
	}
	if t, ok := parseTimestamp(ts); ok {
		return &t
	}
	if t, ok := parseTimestamp(e.Mail.Timestamp); ok {
		return &t
	}
	return nil
}

func parseTimestamp(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, false
	}
	return t.Unix(), true
}

// details flattens the type-specific fields worth keeping for the audit row.
func (e *sesEvent) details() map[string]interface{} {
	d := map[string]interface{}{}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			d[k] = v
		}
	}

	if b := e.Bounce; b != nil {
		set("bounceType", b.BounceType)
		set("bounceSubType", b.BounceSubType)
		set("reportingMTA", b.ReportingMTA)
		set("feedbackId", b.FeedbackID)
		for _, r := range b.BouncedRecipients {
			if r.DiagnosticCode != "" {
				set("diagnosticCode", r.DiagnosticCode)
				break
			}
		}
	}
	if c := e.Complaint; c != nil {
		set("complaintFeedbackType", c.ComplaintFeedbackType)
		set("feedbackId", c.FeedbackID)
		set("userAgent", c.UserAgent)
	}
	if dl := e.Delivery; dl != nil {
		set("processingTimeMillis", dl.ProcessingTimeMillis.String())
		set("smtpResponse", dl.SMTPResponse)
		set("remoteMtaIp", dl.RemoteMtaIP)
		set("reportingMTA", dl.ReportingMTA)
	}
	if dd := e.DeliveryDelay; dd != nil {
		set("delayType", dd.DelayType)
		set("delayDuration", dd.DelayDuration.String())
		set("reportingMTA", dd.ReportingMTA)
	}
	if r := e.Reject; r != nil {
		set("reason", r.Reason)
	}
	if o := e.Open; o != nil {
		set("userAgent", o.UserAgent)
		set("ipAddress", o.IPAddress)
	}
	if c := e.Click; c != nil {
		set("userAgent", c.UserAgent)
		set("ipAddress", c.IPAddress)
		set("link", c.Link)
	}
	rf := e.RenderingFailure
	if rf == nil {
		rf = e.Failure
	}
	if rf != nil {
		set("errorMessage", rf.ErrorMessage)
		set("templateName", rf.TemplateName)
	}
	return d
}

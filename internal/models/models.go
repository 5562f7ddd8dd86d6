package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider event statuses recorded in email_events.status.
const (
	StatusSend             = "Send"
	StatusDelivery         = "Delivery"
	StatusDeliveryDelay    = "DeliveryDelay"
	StatusBounce           = "Bounce"
	StatusOpen             = "Open"
	StatusClick            = "Click"
	StatusComplaint        = "Complaint"
	StatusReject           = "Reject"
	StatusRenderingFailure = "RenderingFailure"
)

// KnownStatuses lists every status the provider is documented to emit, in
// lifecycle order.
var KnownStatuses = []string{
	StatusSend,
	StatusDelivery,
	StatusDeliveryDelay,
	StatusBounce,
	StatusOpen,
	StatusClick,
	StatusComplaint,
	StatusReject,
	StatusRenderingFailure,
}

// IsKnownStatus reports whether status is one of KnownStatuses.
func IsKnownStatus(status string) bool {
	for _, s := range KnownStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// EmailEvent is one observed lifecycle event of a sent email.
type EmailEvent struct {
	ID         int64
	MessageID  string
	Recipient  string
	Subject    string
	Status     string
	EventType  string
	OccurredAt int64
}

// OccurredTime returns OccurredAt as a time in loc.
func (e EmailEvent) OccurredTime(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(e.OccurredAt, 0).In(loc)
}

type EmailEventCreateParams struct {
	MessageID  string
	Recipient  string
	Subject    string
	Status     string
	EventType  string
	OccurredAt int64
}

// RawEvent is the audit copy of an ingested provider event.
type RawEvent struct {
	ID                int64
	PublicID          uuid.UUID
	EmailEventID      int64
	MessageID         string
	EventType         string
	ProviderTimestamp *int64
	Source            string
	Destination       string
	Subject           string
	Details           []byte
	BlobKey           string
	ReceivedAt        int64
}

type RawEventCreateParams struct {
	PublicID          uuid.UUID
	MessageID         string
	EventType         string
	ProviderTimestamp *int64
	Source            string
	Destination       string
	Subject           string
	Details           []byte
	BlobKey           string
	ReceivedAt        int64
}

// TimeRange is a half-open [From, To) range of epoch seconds.
type TimeRange struct {
	From int64
	To   int64
}

// Contains reports whether ts falls inside the range.
func (r TimeRange) Contains(ts int64) bool {
	return ts >= r.From && ts < r.To
}

// EventFilter selects rows for the report listing and its count. Nil bounds
// and empty strings mean "no filter".
type EventFilter struct {
	Status string
	From   *int64
	To     *int64
	Search string
}

// StatusCount is one row of a GROUP BY status aggregation.
type StatusCount struct {
	Status string
	Count  int64
}

// SlotCount is one row of a GROUP BY (slot, status) aggregation. SlotStart is
// the epoch second the slot begins at.
type SlotCount struct {
	SlotStart int64
	Status    string
	Count     int64
}

// CleanupCounts holds per-table row counts older than a retention cutoff.
type CleanupCounts struct {
	Cutoff      int64
	EmailEvents int64
	RawEvents   int64
}

// ByTable returns the counts keyed by table name.
func (c CleanupCounts) ByTable() map[string]int64 {
	return map[string]int64{
		"email_events": c.EmailEvents,
		"raw_events":   c.RawEvents,
	}
}

// DomainStatusCount is one row of a GROUP BY (recipient domain, status)
// aggregation. Domain is lower-cased.
type DomainStatusCount struct {
	Domain string
	Status string
	Count  int64
}

// LabelCount is a count keyed by a free-form label such as a bounce type.
type LabelCount struct {
	Label string
	Count int64
}

// MessageRecords lists the statuses recorded for one provider message id,
// oldest first.
type MessageRecords struct {
	MessageID string
	Count     int64
	Statuses  []string
}

// RecipientStatuses lists the distinct statuses seen for one recipient.
type RecipientStatuses struct {
	Recipient string
	Records   int64
	Statuses  []string
}

// DistinctCounts are row and distinct-key counts over a range.
type DistinctCounts struct {
	Records    int64
	Recipients int64
	MessageIDs int64
}

package store

import (
	"context"

	"github.com/znz-systems/sesdash/internal/models"
)

// EventStore persists email events and answers the aggregation queries.
type EventStore interface {
	// RecordEvent inserts the event row and its raw audit row atomically.
	RecordEvent(ctx context.Context, event models.EmailEventCreateParams, raw models.RawEventCreateParams) (*models.EmailEvent, error)
	GetEvent(ctx context.Context, id int64) (*models.EmailEvent, error)
	GetRawEventsByEventID(ctx context.Context, eventID int64) ([]models.RawEvent, error)

	CountEvents(ctx context.Context, filter models.EventFilter) (int64, error)
	ListEvents(ctx context.Context, filter models.EventFilter, offset, limit int) ([]models.EmailEvent, error)

	CountByStatus(ctx context.Context, r models.TimeRange) ([]models.StatusCount, error)
	CountByStatusSlot(ctx context.Context, r models.TimeRange, slotSeconds int64) ([]models.SlotCount, error)
}

// AnalyticsStore answers the breakdowns of the analytics page. Every method
// is restricted to events whose occurred_at lies in r.
type AnalyticsStore interface {
	// CountByDomainStatus groups by recipient domain and status. A non-empty
	// domain keeps recipients containing "@"+domain.
	CountByDomainStatus(ctx context.Context, r models.TimeRange, domain string) ([]models.DomainStatusCount, error)
	// CountBounceTypes groups bounces by the bounceType of their audit row.
	CountBounceTypes(ctx context.Context, r models.TimeRange) ([]models.LabelCount, error)
	// RepeatedMessageIDs returns up to limit message ids with more than one
	// row, most rows first.
	RepeatedMessageIDs(ctx context.Context, r models.TimeRange, limit int) ([]models.MessageRecords, error)
	// RecipientsWithManyStatuses returns up to limit recipients seen with
	// more than one distinct status.
	RecipientsWithManyStatuses(ctx context.Context, r models.TimeRange, limit int) ([]models.RecipientStatuses, error)
	CountDistinct(ctx context.Context, r models.TimeRange) (models.DistinctCounts, error)
}

// RetentionStore removes rows older than a cutoff.
type RetentionStore interface {
	CountOlderThan(ctx context.Context, cutoff int64) (models.CleanupCounts, error)
	// DeleteOlderThan deletes from every table in one transaction and returns
	// the deleted row counts plus the blob keys of deleted raw events.
	DeleteOlderThan(ctx context.Context, cutoff int64) (models.CleanupCounts, []string, error)
}

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

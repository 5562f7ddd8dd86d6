package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/internal/pkg/query"
)

const emailEventColumns = "id, message_id, recipient, subject, status, event_type, occurred_at"

// RecordEvent inserts the email event and its audit row in one transaction.
func (s *Store) RecordEvent(ctx context.Context, event models.EmailEventCreateParams, raw models.RawEventCreateParams) (*models.EmailEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	e := &models.EmailEvent{
		MessageID:  event.MessageID,
		Recipient:  event.Recipient,
		Subject:    event.Subject,
		Status:     event.Status,
		EventType:  event.EventType,
		OccurredAt: event.OccurredAt,
	}

	err = tx.QueryRowContext(ctx, s.rebind(
		`INSERT INTO email_events (message_id, recipient, subject, status, event_type, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		e.MessageID, e.Recipient, e.Subject, e.Status, e.EventType, e.OccurredAt,
	).Scan(&e.ID)
	if err != nil {
		return nil, fmt.Errorf("insert email event: %w", err)
	}

	details := string(raw.Details)
	if details == "" {
		details = "{}"
	}
	var providerTS interface{}
	if raw.ProviderTimestamp != nil {
		providerTS = *raw.ProviderTimestamp
	}

	_, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO raw_events
		 (public_id, email_event_id, message_id, event_type, provider_timestamp, source, destination, subject, details, blob_key, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		raw.PublicID.String(), e.ID, raw.MessageID, raw.EventType, providerTS,
		raw.Source, raw.Destination, raw.Subject, details, raw.BlobKey, raw.ReceivedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert raw event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return e, nil
}

// GetEvent returns sql.ErrNoRows when no row has the given id.
func (s *Store) GetEvent(ctx context.Context, id int64) (*models.EmailEvent, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+emailEventColumns+` FROM email_events WHERE id = ?`), id)
	return scanEmailEvent(row)
}

func (s *Store) GetRawEventsByEventID(ctx context.Context, eventID int64) ([]models.RawEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, public_id, email_event_id, message_id, event_type, provider_timestamp,
		        source, destination, subject, details, blob_key, received_at
		 FROM raw_events
		 WHERE email_event_id = ?
		 ORDER BY id ASC`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RawEvent
	for rows.Next() {
		var (
			r       models.RawEvent
			ts      sql.NullInt64
			details []byte
		)
		if err := rows.Scan(&r.ID, &r.PublicID, &r.EmailEventID, &r.MessageID, &r.EventType, &ts,
			&r.Source, &r.Destination, &r.Subject, &details, &r.BlobKey, &r.ReceivedAt); err != nil {
			return nil, err
		}
		if ts.Valid {
			v := ts.Int64
			r.ProviderTimestamp = &v
		}
		r.Details = details
		out = append(out, r)
	}
	return out, rows.Err()
}

// filtered is the shared base of the listing and its count.
func filtered(f models.EventFilter) *query.Builder {
	b := query.From("email_events")
	if f.Status != "" {
		b = b.Where(query.Eq("status", f.Status))
	}
	if f.From != nil {
		b = b.Where(query.Gte("occurred_at", *f.From))
	}
	if f.To != nil {
		b = b.Where(query.Lt("occurred_at", *f.To))
	}
	if f.Search != "" {
		b = b.Where(query.ContainsFold(f.Search, "recipient", "subject", "message_id"))
	}
	return b
}

func (s *Store) CountEvents(ctx context.Context, f models.EventFilter) (int64, error) {
	stmt := filtered(f).Count().Build(s.ph)

	var n int64
	if err := s.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListEvents returns rows newest first. A limit of zero returns every row past
// offset.
func (s *Store) ListEvents(ctx context.Context, f models.EventFilter, offset, limit int) ([]models.EmailEvent, error) {
	if offset < 0 {
		offset = 0
	}
	lim := int64(limit)
	if lim < 0 {
		lim = 0
	}
	if lim == 0 && offset > 0 {
		// SQLite only accepts OFFSET after a LIMIT.
		lim = math.MaxInt64
	}

	stmt := filtered(f).
		Select(emailEventColumns).
		OrderBy("occurred_at", query.Desc).
		OrderBy("id", query.Desc).
		Limit(lim).
		Offset(int64(offset)).
		Build(s.ph)

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.EmailEvent, 0, 32)
	for rows.Next() {
		e, err := scanEmailEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanEmailEvent(row rowScanner) (*models.EmailEvent, error) {
	var e models.EmailEvent
	if err := row.Scan(&e.ID, &e.MessageID, &e.Recipient, &e.Subject, &e.Status, &e.EventType, &e.OccurredAt); err != nil {
		return nil, err
	}
	return &e, nil
}

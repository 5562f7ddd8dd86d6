package sqlstore

import (
	"context"

	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/internal/pkg/query"
)

func (s *Store) CountByDomainStatus(ctx context.Context, r models.TimeRange, domain string) ([]models.DomainStatusCount, error) {
	b := inRange(r)
	if domain != "" {
		b = b.Where(query.ContainsFold("@"+domain, "recipient"))
	}
	stmt := b.
		Select(s.dialect.domainExpr()+" AS rcpt_domain", "status", "COUNT(*)").
		GroupBy("rcpt_domain", "status").
		OrderBy("rcpt_domain", query.Asc).
		OrderBy("status", query.Asc).
		Build(s.ph)

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DomainStatusCount
	for rows.Next() {
		var c models.DomainStatusCount
		if err := rows.Scan(&c.Domain, &c.Status, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountBounceTypes labels bounces without a recorded bounceType as
// "Undetermined", the provider's own fallback.
func (s *Store) CountBounceTypes(ctx context.Context, r models.TimeRange) ([]models.LabelCount, error) {
	label := "COALESCE(NULLIF(" + s.dialect.jsonField("rw.details", "bounceType") + ", ''), 'Undetermined')"
	stmt := query.From("email_events e JOIN raw_events rw ON rw.email_event_id = e.id").
		Select(label+" AS bounce_type", "COUNT(*)").
		Where(query.Eq("e.status", models.StatusBounce)).
		Where(query.Gte("e.occurred_at", r.From)).
		Where(query.Lt("e.occurred_at", r.To)).
		GroupBy("bounce_type").
		OrderBy("COUNT(*)", query.Desc).
		OrderBy("bounce_type", query.Asc).
		Build(s.ph)

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LabelCount
	for rows.Next() {
		var c models.LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RepeatedMessageIDs ranks message ids in SQL and attaches their statuses
// from a second query. Rows must be closed before the second query runs on a
// single-connection sqlite pool.
func (s *Store) RepeatedMessageIDs(ctx context.Context, r models.TimeRange, limit int) ([]models.MessageRecords, error) {
	stmt := inRange(r).
		Select("message_id", "COUNT(*)").
		GroupBy("message_id").
		Having("COUNT(*) > 1").
		OrderBy("COUNT(*)", query.Desc).
		OrderBy("message_id", query.Asc).
		Limit(int64(limit)).
		Build(s.ph)

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out   []models.MessageRecords
		ids   []interface{}
		index = map[string]int{}
	)
	for rows.Next() {
		var m models.MessageRecords
		if err := rows.Scan(&m.MessageID, &m.Count); err != nil {
			return nil, err
		}
		index[m.MessageID] = len(out)
		ids = append(ids, m.MessageID)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return nil, nil
	}

	stmt = inRange(r).
		Select("message_id", "status").
		Where(query.In("message_id", ids...)).
		OrderBy("occurred_at", query.Asc).
		OrderBy("id", query.Asc).
		Build(s.ph)

	statusRows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer statusRows.Close()

	for statusRows.Next() {
		var id, status string
		if err := statusRows.Scan(&id, &status); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			out[i].Statuses = append(out[i].Statuses, status)
		}
	}
	return out, statusRows.Err()
}

func (s *Store) RecipientsWithManyStatuses(ctx context.Context, r models.TimeRange, limit int) ([]models.RecipientStatuses, error) {
	stmt := inRange(r).
		Select("recipient", "COUNT(*)").
		GroupBy("recipient").
		Having("COUNT(DISTINCT status) > 1").
		OrderBy("COUNT(DISTINCT status)", query.Desc).
		OrderBy("COUNT(*)", query.Desc).
		OrderBy("recipient", query.Asc).
		Limit(int64(limit)).
		Build(s.ph)

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out        []models.RecipientStatuses
		recipients []interface{}
		index      = map[string]int{}
	)
	for rows.Next() {
		var rs models.RecipientStatuses
		if err := rows.Scan(&rs.Recipient, &rs.Records); err != nil {
			return nil, err
		}
		index[rs.Recipient] = len(out)
		recipients = append(recipients, rs.Recipient)
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return nil, nil
	}

	stmt = inRange(r).
		Select("DISTINCT recipient", "status").
		Where(query.In("recipient", recipients...)).
		OrderBy("recipient", query.Asc).
		OrderBy("status", query.Asc).
		Build(s.ph)

	statusRows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer statusRows.Close()

	for statusRows.Next() {
		var recipient, status string
		if err := statusRows.Scan(&recipient, &status); err != nil {
			return nil, err
		}
		if i, ok := index[recipient]; ok {
			out[i].Statuses = append(out[i].Statuses, status)
		}
	}
	return out, statusRows.Err()
}

func (s *Store) CountDistinct(ctx context.Context, r models.TimeRange) (models.DistinctCounts, error) {
	stmt := inRange(r).
		Select("COUNT(*)", "COUNT(DISTINCT recipient)", "COUNT(DISTINCT message_id)").
		Build(s.ph)

	var c models.DistinctCounts
	err := s.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&c.Records, &c.Recipients, &c.MessageIDs)
	return c, err
}

package sqlstore

import (
	"context"
	"fmt"

	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/internal/pkg/query"
)

func inRange(r models.TimeRange) *query.Builder {
	return query.From("email_events").
		Where(query.Gte("occurred_at", r.From)).
		Where(query.Lt("occurred_at", r.To))
}

// CountByStatus returns one row per status with at least one event in r.
func (s *Store) CountByStatus(ctx context.Context, r models.TimeRange) ([]models.StatusCount, error) {
	stmt := inRange(r).
		Select("status", "COUNT(*)").
		GroupBy("status").
		OrderBy("status", query.Asc).
		Build(s.ph)

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StatusCount
	for rows.Next() {
		var sc models.StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// CountByStatusSlot groups the events in r by status and fixed-width slot.
// The slot width is inlined so the bind order matches the WHERE clause for
// both placeholder styles.
func (s *Store) CountByStatusSlot(ctx context.Context, r models.TimeRange, slotSeconds int64) ([]models.SlotCount, error) {
	if slotSeconds <= 0 {
		return nil, fmt.Errorf("slot width must be positive, got %d", slotSeconds)
	}
	slot := fmt.Sprintf("occurred_at - (occurred_at %% %d)", slotSeconds)

	stmt := inRange(r).
		Select(slot+" AS slot", "status", "COUNT(*)").
		GroupBy("slot", "status").
		OrderBy("slot", query.Asc).
		Build(s.ph)

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SlotCount
	for rows.Next() {
		var sc models.SlotCount
		if err := rows.Scan(&sc.SlotStart, &sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

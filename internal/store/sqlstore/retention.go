package sqlstore

import (
	"context"
	"fmt"

	"github.com/znz-systems/sesdash/internal/models"
)

// CountOlderThan reports how many rows DeleteOlderThan would remove.
func (s *Store) CountOlderThan(ctx context.Context, cutoff int64) (models.CleanupCounts, error) {
	counts := models.CleanupCounts{Cutoff: cutoff}

	if err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM email_events WHERE occurred_at < ?`), cutoff,
	).Scan(&counts.EmailEvents); err != nil {
		return models.CleanupCounts{Cutoff: cutoff}, fmt.Errorf("count email events: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM raw_events WHERE received_at < ?`), cutoff,
	).Scan(&counts.RawEvents); err != nil {
		return models.CleanupCounts{Cutoff: cutoff}, fmt.Errorf("count raw events: %w", err)
	}
	return counts, nil
}

// DeleteOlderThan removes aged rows from both tables in one transaction. On
// error nothing is deleted and the returned counts are zero.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff int64) (models.CleanupCounts, []string, error) {
	zero := models.CleanupCounts{Cutoff: cutoff}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return zero, nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM email_events WHERE occurred_at < ?`), cutoff)
	if err != nil {
		return zero, nil, fmt.Errorf("delete email events: %w", err)
	}
	emailEvents, err := res.RowsAffected()
	if err != nil {
		return zero, nil, err
	}

	rows, err := tx.QueryContext(ctx, s.rebind(
		`DELETE FROM raw_events WHERE received_at < ? RETURNING blob_key`), cutoff)
	if err != nil {
		return zero, nil, fmt.Errorf("delete raw events: %w", err)
	}
	var (
		rawEvents int64
		blobKeys  []string
	)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return zero, nil, err
		}
		rawEvents++
		if key != "" {
			blobKeys = append(blobKeys, key)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return zero, nil, err
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return zero, nil, err
	}
	return models.CleanupCounts{Cutoff: cutoff, EmailEvents: emailEvents, RawEvents: rawEvents}, blobKeys, nil
}

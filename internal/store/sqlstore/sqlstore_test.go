package sqlstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/znz-systems/sesdash/internal/database"
	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")

	require.NoError(t, database.RunMigrations(migrations.FS, database.DriverSQLite, path))
	db, err := database.NewDB(database.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db, SQLite)
}

func record(t *testing.T, s *Store, messageID, recipient, subject, status string, at int64, blobKey string) *models.EmailEvent {
	t.Helper()
	e, err := s.RecordEvent(context.Background(),
		models.EmailEventCreateParams{
			MessageID:  messageID,
			Recipient:  recipient,
			Subject:    subject,
			Status:     status,
			EventType:  status,
			OccurredAt: at,
		},
		models.RawEventCreateParams{
			PublicID:    uuid.New(),
			MessageID:   messageID,
			EventType:   status,
			Destination: recipient,
			Subject:     subject,
			Details:     []byte(`{"k":"v"}`),
			BlobKey:     blobKey,
			ReceivedAt:  at,
		},
	)
	require.NoError(t, err)
	return e
}

func ptr(v int64) *int64 { return &v }

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("pgx")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	d, err = DialectFor("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	_, err = DialectFor("mysql")
	assert.Error(t, err)
}

func TestRecordEventAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := record(t, s, "m1", "a@example.com", "Hello", models.StatusSend, 1000, "raw/x.json")
	assert.NotZero(t, e.ID)

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, *e, *got)

	raws, err := s.GetRawEventsByEventID(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, e.ID, raws[0].EmailEventID)
	assert.Equal(t, "raw/x.json", raws[0].BlobKey)
	assert.JSONEq(t, `{"k":"v"}`, string(raws[0].Details))
	assert.Nil(t, raws[0].ProviderTimestamp)
	assert.NotEqual(t, uuid.Nil, raws[0].PublicID)

	_, err = s.GetEvent(ctx, e.ID+100)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCountAndListAgree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record(t, s, "m1", "ann@example.com", "Welcome", models.StatusSend, 100, "")
	record(t, s, "m1", "ann@example.com", "Welcome", models.StatusDelivery, 110, "")
	record(t, s, "m2", "bob@example.com", "50% off_today", models.StatusSend, 120, "")
	record(t, s, "m3", "carl@example.com", "Invoice", models.StatusBounce, 130, "")
	record(t, s, "ANN-ID", "dora@example.com", "Receipt", models.StatusOpen, 140, "")

	filters := []models.EventFilter{
		{},
		{Status: models.StatusSend},
		{Search: "ann"},
		{Search: "ANN"},
		{Search: "50%"},
		{Search: "%"},
		{Search: "f_t"},
		{From: ptr(110), To: ptr(130)},
		{Status: models.StatusSend, Search: "welcome", From: ptr(100)},
		{Status: "Nope"},
	}
	for _, f := range filters {
		n, err := s.CountEvents(ctx, f)
		require.NoError(t, err)
		rows, err := s.ListEvents(ctx, f, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int(n), len(rows), "filter %+v", f)
	}

	n, err := s.CountEvents(ctx, models.EventFilter{Search: "ann"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = s.CountEvents(ctx, models.EventFilter{Search: "50%"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// "_" and "%" are literals, not wildcards.
	n, err = s.CountEvents(ctx, models.EventFilter{Search: "f_t"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = s.CountEvents(ctx, models.EventFilter{From: ptr(110), To: ptr(130)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestSearchFoldsNonASCII(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record(t, s, "m1", "jörg@example.de", "ÜBER Angebot", models.StatusSend, 100, "")
	record(t, s, "m2", "ÅSA@example.se", "Kvitto", models.StatusDelivery, 110, "")
	record(t, s, "m3", "bob@example.com", "Invoice", models.StatusSend, 120, "")

	for _, search := range []string{"über", "ÜBER", "Über angebot", "åsa@", "JÖRG"} {
		n, err := s.CountEvents(ctx, models.EventFilter{Search: search})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n, "search %q", search)

		rows, err := s.ListEvents(ctx, models.EventFilter{Search: search}, 0, 0)
		require.NoError(t, err)
		assert.Len(t, rows, 1, "search %q", search)
	}
}

func TestListEventsPaginationIsComplete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := map[int64]bool{}
	for i := 0; i < 10; i++ {
		// Pairs share a timestamp so the id tie-break matters.
		e := record(t, s, "m", "r@example.com", "s", models.StatusSend, int64(100+i/2), "")
		want[e.ID] = true
	}

	seen := map[int64]bool{}
	var prev *models.EmailEvent
	for offset := 0; offset < 12; offset += 3 {
		page, err := s.ListEvents(ctx, models.EventFilter{}, offset, 3)
		require.NoError(t, err)
		for i := range page {
			e := page[i]
			assert.False(t, seen[e.ID], "id %d listed twice", e.ID)
			seen[e.ID] = true
			if prev != nil {
				assert.True(t, e.OccurredAt < prev.OccurredAt ||
					(e.OccurredAt == prev.OccurredAt && e.ID < prev.ID), "ordering broken at id %d", e.ID)
			}
			prev = &e
		}
	}
	assert.Equal(t, want, seen)

	rest, err := s.ListEvents(ctx, models.EventFilter{}, 8, 0)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestCountByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record(t, s, "m1", "r", "s", models.StatusSend, 99, "")
	record(t, s, "m1", "r", "s", models.StatusSend, 100, "")
	record(t, s, "m1", "r", "s", models.StatusDelivery, 150, "")
	record(t, s, "m1", "r", "s", models.StatusOpen, 199, "")
	record(t, s, "m1", "r", "s", models.StatusOpen, 200, "")

	got, err := s.CountByStatus(ctx, models.TimeRange{From: 100, To: 200})
	require.NoError(t, err)
	assert.Equal(t, []models.StatusCount{
		{Status: models.StatusDelivery, Count: 1},
		{Status: models.StatusOpen, Count: 1},
		{Status: models.StatusSend, Count: 1},
	}, got)
}

func TestCountByStatusSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record(t, s, "m1", "r", "s", models.StatusSend, 900, "")
	record(t, s, "m1", "r", "s", models.StatusSend, 1799, "")
	record(t, s, "m1", "r", "s", models.StatusDelivery, 1800, "")
	record(t, s, "m1", "r", "s", models.StatusSend, 5000, "")

	got, err := s.CountByStatusSlot(ctx, models.TimeRange{From: 900, To: 2700}, 900)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.SlotCount{
		{SlotStart: 900, Status: models.StatusSend, Count: 2},
		{SlotStart: 1800, Status: models.StatusDelivery, Count: 1},
	}, got)

	_, err = s.CountByStatusSlot(ctx, models.TimeRange{From: 0, To: 1}, 0)
	assert.Error(t, err)
}

func TestDeleteOlderThanIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record(t, s, "old", "r", "s", models.StatusSend, 100, "raw/old.json")
	record(t, s, "old", "r", "s", models.StatusDelivery, 150, "")
	kept := record(t, s, "new", "r", "s", models.StatusSend, 500, "raw/new.json")

	preview, err := s.CountOlderThan(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, models.CleanupCounts{Cutoff: 200, EmailEvents: 2, RawEvents: 2}, preview)

	deleted, keys, err := s.DeleteOlderThan(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, preview, deleted)
	assert.Equal(t, []string{"raw/old.json"}, keys)

	again, keys, err := s.DeleteOlderThan(ctx, 200)
	require.NoError(t, err)
	assert.Zero(t, again.EmailEvents)
	assert.Zero(t, again.RawEvents)
	assert.Empty(t, keys)

	_, err = s.GetEvent(ctx, kept.ID)
	assert.NoError(t, err)
}

func TestDeleteOlderThanRollsBackOnCancelledContext(t *testing.T) {
	s := newTestStore(t)
	record(t, s, "old", "r", "s", models.StatusSend, 100, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	counts, keys, err := s.DeleteOlderThan(ctx, 200)
	assert.Error(t, err)
	assert.Zero(t, counts.EmailEvents)
	assert.Zero(t, counts.RawEvents)
	assert.Nil(t, keys)

	n, err := s.CountEvents(context.Background(), models.EventFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

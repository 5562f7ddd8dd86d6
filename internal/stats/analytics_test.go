package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/znz-systems/sesdash/internal/models"
)

func TestDomainStats(t *testing.T) {
	rows := []models.DomainStatusCount{
		{Domain: "a.com", Status: models.StatusSend, Count: 4},
		{Domain: "a.com", Status: models.StatusDelivery, Count: 3},
		{Domain: "a.com", Status: models.StatusBounce, Count: 1},
		{Domain: "b.com", Status: models.StatusDelivery, Count: 2},
		{Domain: "c.com", Status: models.StatusSend, Count: 1},
		{Domain: "c.com", Status: models.StatusOpen, Count: 1},
	}

	got := domainStats(rows, 20)
	assert.Equal(t, []DomainStats{
		{Domain: "a.com", Total: 8, Delivered: 3, Bounced: 1, DeliveryRate: 37.5, BounceRate: 12.5},
		{Domain: "b.com", Total: 2, Delivered: 2, DeliveryRate: 100},
		{Domain: "c.com", Total: 2, Opened: 1},
	}, got)

	assert.Len(t, domainStats(rows, 1), 1)
	assert.Empty(t, domainStats(nil, 20))
}

func TestEngagement(t *testing.T) {
	e := engagement(map[string]int64{
		models.StatusSend:     3,
		models.StatusDelivery: 3,
		models.StatusOpen:     2,
		models.StatusClick:    1,
	})
	assert.Equal(t, Engagement{
		Sent: 3, Delivered: 3, Opened: 2, Clicked: 1,
		DeliveryRate: 100, OpenRate: 66.67, ClickRate: 50,
	}, e)

	assert.Equal(t, Engagement{}, engagement(map[string]int64{}))
}

func TestDistributionsUseLocalTime(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kathmandu")
	require.NoError(t, err)
	// Saturday 2024-06-01.
	w := ResolveWindow(7, time.Date(2024, 6, 1, 12, 0, 0, 0, loc), loc)

	slots := []models.SlotCount{
		{SlotStart: time.Date(2024, 6, 1, 0, 0, 0, 0, loc).Unix(), Status: models.StatusSend, Count: 2},
		{SlotStart: time.Date(2024, 6, 1, 0, 15, 0, 0, loc).Unix(), Status: models.StatusDelivery, Count: 1},
		{SlotStart: time.Date(2024, 5, 27, 23, 45, 0, 0, loc).Unix(), Status: models.StatusDelivery, Count: 5},
	}
	hours, weekdays := distributions(w, slots)

	require.Len(t, hours, 24)
	assert.Equal(t, Distribution{Label: "00:00", Total: 3, Delivered: 1}, hours[0])
	assert.Equal(t, Distribution{Label: "23:00", Total: 5, Delivered: 5}, hours[23])

	require.Len(t, weekdays, 7)
	assert.Equal(t, Distribution{Label: "Monday", Total: 5, Delivered: 5}, weekdays[0])
	assert.Equal(t, Distribution{Label: "Saturday", Total: 3, Delivered: 1}, weekdays[5])
}

func TestAnalyticsUnavailableWithoutAnalyticsStore(t *testing.T) {
	svc := newTestService(&memStore{}, time.Unix(1000, 0), time.UTC)

	_, err := svc.Analytics(context.Background(), 7, "")
	assert.ErrorIs(t, err, ErrAnalyticsUnavailable)
	_, err = svc.DataQuality(context.Background(), 7)
	assert.ErrorIs(t, err, ErrAnalyticsUnavailable)
}

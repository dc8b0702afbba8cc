package services

import (
	"context"
	"testing"
	"time"

	"setlist-survivor/logger"
	"setlist-survivor/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceShowStatus(t *testing.T) {
	tests := []struct {
		current, target, want models.ShowStatus
	}{
		{models.ShowStatusUpcoming, models.ShowStatusPicksLocked, models.ShowStatusPicksLocked},
		{models.ShowStatusUpcoming, models.ShowStatusPlayed, models.ShowStatusPlayed},
		{models.ShowStatusPicksLocked, models.ShowStatusPlayed, models.ShowStatusPlayed},
		{models.ShowStatusPlayed, models.ShowStatusPicksLocked, models.ShowStatusPlayed},
		{models.ShowStatusPicksLocked, models.ShowStatusUpcoming, models.ShowStatusPicksLocked},
		{"", models.ShowStatusUpcoming, models.ShowStatusUpcoming},
	}
	for _, tt := range tests {
		t.Run(string(tt.current)+"->"+string(tt.target), func(t *testing.T) {
			assert.Equal(t, tt.want, AdvanceShowStatus(tt.current, tt.target))
		})
	}
}

func TestEffectiveShowStatus(t *testing.T) {
	show := &models.Show{ShowDate: "2026-07-10", CityState: "New York, NY", Status: models.ShowStatusUpcoming, IsActive: true}
	live := &models.Pool{}
	testPool := &models.Pool{IsTestPool: true}

	before := time.Date(2026, 7, 10, 22, 59, 0, 0, time.UTC)
	after := time.Date(2026, 7, 10, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, models.ShowStatusUpcoming, EffectiveShowStatus(show, live, before))
	assert.Equal(t, models.ShowStatusPicksLocked, EffectiveShowStatus(show, live, after))
	assert.Equal(t, models.ShowStatusUpcoming, EffectiveShowStatus(show, testPool, after))

	assert.True(t, PicksOpen(show, live, before))
	assert.False(t, PicksOpen(show, live, after))

	inactive := *show
	inactive.IsActive = false
	assert.False(t, PicksOpen(&inactive, live, before))
}

func TestShowStatusService_LockExpiredShows(t *testing.T) {
	db := newTestDB(t)
	svc := NewShowStatusService(db, logger.Nop())
	svc.Now = fixedClock(time.Date(2026, 7, 11, 0, 0, 0, 0, time.UTC))

	live := seedPool(t, db, nil)
	testPool := seedPool(t, db, func(p *models.Pool) { p.IsTestPool = true })

	due := seedShow(t, db, live.ID, "2026-07-10", nil)
	future := seedShow(t, db, live.ID, "2026-07-12", nil)
	inactive := seedShow(t, db, live.ID, "2026-07-09", func(s *models.Show) { s.IsActive = false })
	manual := seedShow(t, db, testPool.ID, "2026-07-10", nil)

	locked, err := svc.LockExpiredShows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, locked)

	assert.Equal(t, models.ShowStatusPicksLocked, reloadShow(t, db, due.ID).Status)
	assert.Equal(t, models.ShowStatusUpcoming, reloadShow(t, db, future.ID).Status)
	assert.Equal(t, models.ShowStatusUpcoming, reloadShow(t, db, inactive.ID).Status)
	assert.Equal(t, models.ShowStatusUpcoming, reloadShow(t, db, manual.ID).Status)

	again, err := svc.LockExpiredShows(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again)
}

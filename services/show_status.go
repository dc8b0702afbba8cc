package services

import (
	"context"
	"time"

	"setlist-survivor/apperrors"
	"setlist-survivor/logger"
	"setlist-survivor/models"

	"gorm.io/gorm"
)

var showStatusRank = map[models.ShowStatus]int{
	models.ShowStatusUpcoming:    0,
	models.ShowStatusPicksLocked: 1,
	models.ShowStatusPlayed:      2,
}

// AdvanceShowStatus moves current towards target but never backwards.
func AdvanceShowStatus(current, target models.ShowStatus) models.ShowStatus {
	if current == "" {
		current = models.ShowStatusUpcoming
	}
	if showStatusRank[target] > showStatusRank[current] {
		return target
	}
	return current
}

// EffectiveShowStatus is the stored status, except that an UPCOMING show of a live
// pool reads as PICKS_LOCKED once its deadline has passed.
func EffectiveShowStatus(show *models.Show, pool *models.Pool, now time.Time) models.ShowStatus {
	status := AdvanceShowStatus(show.Status, models.ShowStatusUpcoming)
	if status != models.ShowStatusUpcoming || pool == nil || pool.IsTestPool {
		return status
	}
	if !now.Before(ShowDeadline(show, pool)) {
		return models.ShowStatusPicksLocked
	}
	return status
}

// PicksOpen reports whether picks for show may still be created or changed.
func PicksOpen(show *models.Show, pool *models.Pool, now time.Time) bool {
	return show.IsActive && EffectiveShowStatus(show, pool, now) == models.ShowStatusUpcoming
}

type ShowStatusService struct {
	DB  *gorm.DB
	Log *logger.Logger
	Now func() time.Time
}

func NewShowStatusService(db *gorm.DB, log *logger.Logger) *ShowStatusService {
	return &ShowStatusService{DB: db, Log: log, Now: time.Now}
}

// LockExpiredShows persists UPCOMING -> PICKS_LOCKED for active shows of live pools
// whose deadline has passed. It returns how many shows were locked.
func (s *ShowStatusService) LockExpiredShows(ctx context.Context) (int, error) {
	var shows []models.Show
	err := s.DB.WithContext(ctx).
		Preload("Pool").
		Where("status = ? AND is_active = ?", models.ShowStatusUpcoming, true).
		Order("show_date ASC").
		Find(&shows).Error
	if err != nil {
		return 0, apperrors.Database("load upcoming shows", err)
	}

	now := s.Now()
	locked := 0
	for i := range shows {
		show := &shows[i]
		if show.Pool == nil || show.Pool.IsTestPool {
			continue
		}
		if EffectiveShowStatus(show, show.Pool, now) != models.ShowStatusPicksLocked {
			continue
		}

		res := s.DB.WithContext(ctx).
			Model(&models.Show{}).
			Where("id = ? AND status = ?", show.ID, models.ShowStatusUpcoming).
			Update("status", models.ShowStatusPicksLocked)
		if res.Error != nil {
			return locked, apperrors.Database("lock show "+show.ID, res.Error)
		}
		if res.RowsAffected > 0 {
			locked++
			s.Log.Info("[SHOW_STATUS] picks locked",
				"show_id", show.ID,
				"pool_id", show.PoolID,
				"show_date", show.ShowDate,
			)
		}
	}
	return locked, nil
}

package services

import (
	"time"

	"setlist-survivor/models"
	"setlist-survivor/utils"
)

// ResolveDeadline returns the instant picks lock for a show. When the date, venue zone
// or lock time cannot be read it falls back to UTC midnight of the show date.
func ResolveDeadline(showDate string, setTime *string, cityState string, lock models.LockConfig) time.Time {
	start, err := utils.ShowStart(showDate, setTime, cityState)
	if err != nil {
		return utils.UTCMidnight(showDate)
	}

	switch lock.Mode {
	case models.LockModeTimeOfDay:
		hour, minute, err := utils.ParseClock(lock.TimeOfDay)
		if err != nil {
			return utils.UTCMidnight(showDate)
		}
		return time.Date(start.Year(), start.Month(), start.Day(), hour, minute, 0, 0, start.Location())
	default:
		offset := time.Duration(lock.OffsetHours)*time.Hour + time.Duration(lock.OffsetMinutes)*time.Minute
		return start.Add(-offset)
	}
}

// ShowDeadline resolves the pick deadline of show under pool's lock configuration.
func ShowDeadline(show *models.Show, pool *models.Pool) time.Time {
	var lock models.LockConfig
	if pool != nil {
		lock = pool.LockConfig()
	}
	return ResolveDeadline(show.ShowDate, show.SetTime, show.CityState, lock)
}

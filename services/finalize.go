package services

import (
	"time"

	"setlist-survivor/config"
	"setlist-survivor/models"
	"setlist-survivor/utils"
)

// FinalizePolicy decides when a show is over everywhere and its losses may be committed:
// Grace after the local start, or HolidayGrace for shows on the holiday date.
type FinalizePolicy struct {
	Grace        time.Duration
	HolidayGrace time.Duration
	HolidayMonth time.Month
	HolidayDay   int
}

// DefaultFinalizePolicy finalizes 24h after start, 26h for December 31 shows.
func DefaultFinalizePolicy() FinalizePolicy {
	return FinalizePolicy{
		Grace:        24 * time.Hour,
		HolidayGrace: 26 * time.Hour,
		HolidayMonth: time.December,
		HolidayDay:   31,
	}
}

func NewFinalizePolicy(cfg config.GradingConfig) FinalizePolicy {
	p := DefaultFinalizePolicy()
	if cfg.FinalizeAfter > 0 {
		p.Grace = cfg.FinalizeAfter
	}
	if cfg.HolidayFinalizeAfter > 0 {
		p.HolidayGrace = cfg.HolidayFinalizeAfter
	}
	if cfg.HolidayMonth >= 1 && cfg.HolidayMonth <= 12 {
		p.HolidayMonth = time.Month(cfg.HolidayMonth)
	}
	if cfg.HolidayDay >= 1 && cfg.HolidayDay <= 31 {
		p.HolidayDay = cfg.HolidayDay
	}
	return p
}

// FinalizeAt is the earliest instant show may be finalized. Zero when the date is unreadable.
func (p FinalizePolicy) FinalizeAt(show *models.Show) time.Time {
	start, err := utils.ShowStart(show.ShowDate, show.SetTime, show.CityState)
	if err != nil {
		start = utils.UTCMidnight(show.ShowDate)
		if start.IsZero() {
			return time.Time{}
		}
	}

	grace := p.Grace
	if p.isHoliday(show.ShowDate) {
		grace = p.HolidayGrace
	}
	return start.Add(grace)
}

func (p FinalizePolicy) ShouldFinalize(show *models.Show, now time.Time) bool {
	at := p.FinalizeAt(show)
	return !at.IsZero() && !now.Before(at)
}

func (p FinalizePolicy) isHoliday(showDate string) bool {
	day, err := time.Parse(utils.DateLayout, showDate)
	if err != nil {
		return false
	}
	return day.Month() == p.HolidayMonth && day.Day() == p.HolidayDay
}

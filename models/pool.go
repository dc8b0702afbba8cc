package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type PoolStatus string

const (
	PoolStatusSignupsOpen PoolStatus = "SIGNUPS_OPEN"
	PoolStatusActive      PoolStatus = "ACTIVE"
	PoolStatusCompleted   PoolStatus = "COMPLETED"
)

var ErrAmbiguousLockConfig = errors.New("pool pick lock must be either an offset or a fixed time of day, not both")

// Pool is one survivor competition tied to a tour.
type Pool struct {
	ID             string     `gorm:"primaryKey;type:uuid" json:"id"`
	Name           string     `gorm:"not null" json:"name"`
	TourName       string     `json:"tour_name,omitempty"`
	Status         PoolStatus `gorm:"type:varchar(20);not null;default:'SIGNUPS_OPEN'" json:"status"`
	SignupDeadline *time.Time `json:"signup_deadline,omitempty"`
	MaxPlayers     *int       `json:"max_players,omitempty"`

	// Pick lock: hours/minutes before showtime, or a fixed local time of day ("HH:MM")
	PickLockOffsetHours   *int    `json:"pick_lock_offset_hours,omitempty"`
	PickLockOffsetMinutes *int    `json:"pick_lock_offset_minutes,omitempty"`
	PickLockTime          *string `gorm:"type:varchar(10)" json:"pick_lock_time,omitempty"`

	// Test pools are never locked or finalized by the clock
	IsTestPool bool `gorm:"not null;default:false" json:"is_test_pool"`

	Timestamps
}

type LockMode int

const (
	LockModeOffset LockMode = iota
	LockModeTimeOfDay
)

// LockConfig is the resolved pick-lock rule of a pool.
type LockConfig struct {
	Mode          LockMode
	OffsetHours   int
	OffsetMinutes int
	TimeOfDay     string
}

func (p *Pool) LockConfig() LockConfig {
	if p.PickLockTime != nil && *p.PickLockTime != "" {
		return LockConfig{Mode: LockModeTimeOfDay, TimeOfDay: *p.PickLockTime}
	}

	cfg := LockConfig{Mode: LockModeOffset}
	if p.PickLockOffsetHours != nil {
		cfg.OffsetHours = *p.PickLockOffsetHours
	}
	if p.PickLockOffsetMinutes != nil {
		cfg.OffsetMinutes = *p.PickLockOffsetMinutes
	}
	return cfg
}

func (p *Pool) hasOffset() bool {
	return (p.PickLockOffsetHours != nil && *p.PickLockOffsetHours != 0) ||
		(p.PickLockOffsetMinutes != nil && *p.PickLockOffsetMinutes != 0)
}

func (p *Pool) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

func (p *Pool) BeforeSave(tx *gorm.DB) error {
	if p.hasOffset() && p.PickLockTime != nil && *p.PickLockTime != "" {
		return ErrAmbiguousLockConfig
	}
	return nil
}

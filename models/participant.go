package models

import (
	"time"

	"gorm.io/gorm"
)

type ParticipantStatus string

const (
	ParticipantStatusAlive ParticipantStatus = "ALIVE"
	ParticipantStatusOut   ParticipantStatus = "OUT"
)

// Participant is a user's membership in a pool. CurrentStreak is always 0 while OUT.
type Participant struct {
	ID            string            `gorm:"primaryKey;type:uuid" json:"id"`
	PoolID        string            `gorm:"type:uuid;not null;uniqueIndex:idx_participant_pool_user" json:"pool_id"`
	UserID        string            `gorm:"not null;uniqueIndex:idx_participant_pool_user" json:"user_id"`
	Nickname      string            `json:"nickname"`
	Status        ParticipantStatus `gorm:"type:varchar(10);not null;default:'ALIVE';index" json:"status"`
	CurrentStreak int               `gorm:"not null;default:0" json:"current_streak"`
	JoinedAt      time.Time         `gorm:"not null" json:"joined_at"`

	Timestamps
}

func (Participant) TableName() string {
	return "pool_participants"
}

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	return nil
}

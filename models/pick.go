package models

import (
	"time"

	"gorm.io/gorm"
)

type PickResult string

const (
	PickResultPending PickResult = "PENDING"
	PickResultWin     PickResult = "WIN"
	PickResultLose    PickResult = "LOSE"
)

// Pick is a participant's one song prediction for one show.
type Pick struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	ParticipantID string     `gorm:"type:uuid;not null;uniqueIndex:idx_pick_participant_show" json:"participant_id"`
	ShowID        string     `gorm:"type:uuid;not null;uniqueIndex:idx_pick_participant_show;index" json:"show_id"`
	SongID        string     `gorm:"type:uuid;not null;index" json:"song_id"`
	Song          *Song      `gorm:"foreignKey:SongID" json:"song,omitempty"`
	PickedAt      time.Time  `gorm:"not null" json:"picked_at"`
	Result        PickResult `gorm:"type:varchar(10);not null;default:'PENDING';index" json:"result"`
	GradedAt      *time.Time `json:"graded_at,omitempty"`

	Timestamps
}

func (p *Pick) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	if p.PickedAt.IsZero() {
		p.PickedAt = time.Now().UTC()
	}
	return nil
}

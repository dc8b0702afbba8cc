package models

import (
	"setlist-survivor/utils"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Song is a global catalog entry. TitleKey is the normalized title used for matching
// and is unique; slugs may repeat ("Rock & Roll" and "Rock and Roll").
type Song struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	Title          string  `gorm:"not null" json:"title"`
	TitleKey       string  `gorm:"not null;uniqueIndex" json:"-"`
	Slug           string  `gorm:"not null;index" json:"slug"`
	ExternalSongID *string `gorm:"type:varchar(40)" json:"external_song_id,omitempty"`
	TimesPlayed    int     `gorm:"not null;default:0" json:"times_played"`

	Timestamps
}

func NewSong(title string) Song {
	s := Song{Title: title}
	s.fillKeys()
	return s
}

func (s *Song) fillKeys() {
	if s.TitleKey == "" {
		s.TitleKey = utils.NormalizeTitle(s.Title)
	}
	if s.Slug == "" {
		s.Slug = slug.Make(s.Title)
		if s.Slug == "" {
			s.Slug = s.TitleKey
		}
	}
}

func (s *Song) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	s.fillKeys()
	return nil
}

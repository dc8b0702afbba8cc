package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ShowStatus string

const (
	ShowStatusUpcoming    ShowStatus = "UPCOMING"
	ShowStatusPicksLocked ShowStatus = "PICKS_LOCKED"
	ShowStatusPlayed      ShowStatus = "PLAYED"
)

// SetlistSource records who wrote Show.Setlist.
type SetlistSource string

const (
	SetlistSourceNone     SetlistSource = ""
	SetlistSourceProvider SetlistSource = "provider"
	SetlistSourceManual   SetlistSource = "manual"
)

type Show struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	PoolID         string  `gorm:"type:uuid;not null;index" json:"pool_id"`
	Pool           *Pool   `gorm:"foreignKey:PoolID" json:"pool,omitempty"`
	ExternalShowID *string `gorm:"type:varchar(40)" json:"external_show_id,omitempty"`

	// ShowDate is the pool-facing date (YYYY-MM-DD). EventDate is the real concert date
	// used for upstream lookups and may differ in test pools.
	ShowDate  string  `gorm:"type:varchar(10);not null;index" json:"show_date"`
	EventDate *string `gorm:"type:varchar(10)" json:"event_date,omitempty"`
	VenueName string  `json:"venue_name"`
	CityState string  `json:"city_state"`
	SetTime   *string `gorm:"type:varchar(20)" json:"set_time,omitempty"`

	Status        ShowStatus                  `gorm:"type:varchar(20);not null;default:'UPCOMING';index" json:"status"`
	Setlist       datatypes.JSONSlice[string] `json:"setlist"`
	SetlistSource SetlistSource               `gorm:"type:varchar(20)" json:"setlist_source,omitempty"`
	IsActive      bool                        `gorm:"not null;default:false;index" json:"is_active"`

	Timestamps
}

func (s *Show) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// LookupDate is the date used against the setlist provider.
func (s *Show) LookupDate() string {
	if s.EventDate != nil && *s.EventDate != "" {
		return *s.EventDate
	}
	return s.ShowDate
}

func (s *Show) HasSetlist() bool {
	return len(s.Setlist) > 0
}

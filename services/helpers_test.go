package services

import (
	"context"
	"testing"
	"time"

	"setlist-survivor/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens a migrated in-memory database. A single connection keeps every
// query on the same in-memory schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func seedPool(t *testing.T, db *gorm.DB, mutate func(*models.Pool)) models.Pool {
	t.Helper()
	pool := models.Pool{Name: "Summer Tour Survivor", Status: models.PoolStatusActive}
	if mutate != nil {
		mutate(&pool)
	}
	require.NoError(t, db.Create(&pool).Error)
	return pool
}

func seedShow(t *testing.T, db *gorm.DB, poolID, date string, mutate func(*models.Show)) models.Show {
	t.Helper()
	setTime := "7:00 PM"
	show := models.Show{
		PoolID:    poolID,
		ShowDate:  date,
		VenueName: "Madison Square Garden",
		CityState: "New York, NY",
		SetTime:   &setTime,
		Status:    models.ShowStatusUpcoming,
		IsActive:  true,
	}
	if mutate != nil {
		mutate(&show)
	}
	require.NoError(t, db.Create(&show).Error)
	return show
}

func seedSong(t *testing.T, db *gorm.DB, title string) models.Song {
	t.Helper()
	song := models.NewSong(title)
	require.NoError(t, db.Create(&song).Error)
	return song
}

func seedParticipant(t *testing.T, db *gorm.DB, poolID, userID string, mutate func(*models.Participant)) models.Participant {
	t.Helper()
	p := models.Participant{
		PoolID:   poolID,
		UserID:   userID,
		Nickname: userID,
		Status:   models.ParticipantStatusAlive,
	}
	if mutate != nil {
		mutate(&p)
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func seedPick(t *testing.T, db *gorm.DB, participantID, showID, songID string, result models.PickResult) models.Pick {
	t.Helper()
	pick := models.Pick{
		ParticipantID: participantID,
		ShowID:        showID,
		SongID:        songID,
		Result:        result,
	}
	require.NoError(t, db.Create(&pick).Error)
	return pick
}

func reloadParticipant(t *testing.T, db *gorm.DB, id string) models.Participant {
	t.Helper()
	var p models.Participant
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p
}

func reloadPick(t *testing.T, db *gorm.DB, id string) models.Pick {
	t.Helper()
	var p models.Pick
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p
}

func reloadShow(t *testing.T, db *gorm.DB, id string) models.Show {
	t.Helper()
	var s models.Show
	require.NoError(t, db.First(&s, "id = ?", id).Error)
	return s
}

// fakeProvider serves canned setlist text per step.
type fakeProvider struct {
	byID    map[string]string
	byDate  map[string]string
	scrape  map[string]string
	errByID error
	errDate error
	errScr  error
	block   bool
	calls   []string
}

func (f *fakeProvider) GetShowByID(ctx context.Context, externalID string) (string, error) {
	f.calls = append(f.calls, SourceShowID)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.byID[externalID], f.errByID
}

func (f *fakeProvider) GetSetlistByDate(ctx context.Context, date string) (string, error) {
	f.calls = append(f.calls, SourceDate)
	return f.byDate[date], f.errDate
}

func (f *fakeProvider) ScrapeSetlistHTML(ctx context.Context, date string) (string, error) {
	f.calls = append(f.calls, SourceScrape)
	return f.scrape[date], f.errScr
}

type recordingArchive struct {
	stored []string
	err    error
}

func (a *recordingArchive) Store(ctx context.Context, showID, source, text string) error {
	a.stored = append(a.stored, source+":"+text)
	return a.err
}

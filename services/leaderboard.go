package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"setlist-survivor/apperrors"
	"setlist-survivor/logger"
	"setlist-survivor/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LeaderboardEntry struct {
	Rank          int                      `json:"rank"`
	ParticipantID string                   `json:"participant_id"`
	UserID        string                   `json:"user_id"`
	Nickname      string                   `json:"nickname"`
	Status        models.ParticipantStatus `json:"status"`
	CurrentStreak int                      `json:"current_streak"`
	JoinedAt      time.Time                `json:"joined_at"`
	LastPick      *LastPick                `json:"last_pick,omitempty"`
}

type LastPick struct {
	SongTitle string            `json:"song_title"`
	Result    models.PickResult `json:"result"`
	ShowDate  string            `json:"show_date"`
}

type SongPickCount struct {
	SongID    string   `json:"song_id"`
	SongTitle string   `json:"song_title"`
	Count     int      `json:"count"`
	Nicknames []string `json:"nicknames"`
}

type PickStats struct {
	ShowID     string          `json:"show_id"`
	TotalPicks int             `json:"total_picks"`
	Songs      []SongPickCount `json:"songs"`
}

// ShowView is a show as players see it: its resolved deadline and time-adjusted status.
type ShowView struct {
	models.Show
	Deadline        time.Time         `json:"deadline"`
	EffectiveStatus models.ShowStatus `json:"effective_status"`
}

type LeaderboardService struct {
	DB  *gorm.DB
	Log *logger.Logger
	Now func() time.Time
}

func NewLeaderboardService(db *gorm.DB, log *logger.Logger) *LeaderboardService {
	return &LeaderboardService{DB: db, Log: log, Now: time.Now}
}

// GetLeaderboard ranks ALIVE participants first, then by streak, then by join time.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, poolID string) ([]LeaderboardEntry, error) {
	db := s.DB.WithContext(ctx)
	if err := s.ensurePool(db, poolID); err != nil {
		return nil, err
	}

	var participants []models.Participant
	err := db.Where("pool_id = ?", poolID).
		Order("CASE WHEN status = 'ALIVE' THEN 0 ELSE 1 END, current_streak DESC, joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, apperrors.Database("load leaderboard of pool "+poolID, err)
	}

	entries := make([]LeaderboardEntry, 0, len(participants))
	if len(participants) == 0 {
		return entries, nil
	}

	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.ID
	}

	var rows []struct {
		ParticipantID string
		SongTitle     string
		Result        models.PickResult
		ShowDate      string
	}
	err = db.Table("picks").
		Select("picks.participant_id, songs.title AS song_title, picks.result, shows.show_date").
		Joins("JOIN shows ON shows.id = picks.show_id").
		Joins("JOIN songs ON songs.id = picks.song_id").
		Where("picks.participant_id IN ? AND picks.result <> ? AND picks.deleted_at IS NULL", ids, models.PickResultPending).
		Order("shows.show_date DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Database("load graded picks of pool "+poolID, err)
	}

	last := make(map[string]*LastPick, len(rows))
	for _, r := range rows {
		if _, ok := last[r.ParticipantID]; ok {
			continue
		}
		last[r.ParticipantID] = &LastPick{SongTitle: r.SongTitle, Result: r.Result, ShowDate: r.ShowDate}
	}

	for i, p := range participants {
		entries = append(entries, LeaderboardEntry{
			Rank:          i + 1,
			ParticipantID: p.ID,
			UserID:        p.UserID,
			Nickname:      p.Nickname,
			Status:        p.Status,
			CurrentStreak: p.CurrentStreak,
			JoinedAt:      p.JoinedAt,
			LastPick:      last[p.ID],
		})
	}
	return entries, nil
}

// GetPickStats aggregates the picks of a show. Stats stay hidden until picks lock.
func (s *LeaderboardService) GetPickStats(ctx context.Context, poolID, showID string) (*PickStats, error) {
	db := s.DB.WithContext(ctx)

	var show models.Show
	err := db.Preload("Pool").Where("id = ? AND pool_id = ?", showID, poolID).First(&show).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("show", showID)
	}
	if err != nil {
		return nil, apperrors.Database("load show "+showID, err)
	}
	if EffectiveShowStatus(&show, show.Pool, s.Now()) == models.ShowStatusUpcoming {
		return nil, apperrors.New(apperrors.CodeForbidden, "pick stats are hidden until picks lock", nil)
	}

	var rows []struct {
		SongID    string
		SongTitle string
		Nickname  string
	}
	err = db.Table("picks").
		Select("picks.song_id, songs.title AS song_title, pool_participants.nickname").
		Joins("JOIN songs ON songs.id = picks.song_id").
		Joins("JOIN pool_participants ON pool_participants.id = picks.participant_id").
		Where("picks.show_id = ? AND picks.deleted_at IS NULL", showID).
		Order("pool_participants.nickname ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Database("load picks of show "+showID, err)
	}

	stats := &PickStats{ShowID: showID, TotalPicks: len(rows), Songs: []SongPickCount{}}
	bySong := map[string]int{}
	for _, r := range rows {
		idx, ok := bySong[r.SongID]
		if !ok {
			idx = len(stats.Songs)
			bySong[r.SongID] = idx
			stats.Songs = append(stats.Songs, SongPickCount{SongID: r.SongID, SongTitle: r.SongTitle, Nicknames: []string{}})
		}
		stats.Songs[idx].Count++
		if r.Nickname != "" {
			stats.Songs[idx].Nicknames = append(stats.Songs[idx].Nicknames, r.Nickname)
		}
	}
	sort.SliceStable(stats.Songs, func(i, j int) bool {
		if stats.Songs[i].Count != stats.Songs[j].Count {
			return stats.Songs[i].Count > stats.Songs[j].Count
		}
		return stats.Songs[i].SongTitle < stats.Songs[j].SongTitle
	})
	return stats, nil
}

// ListShows returns the active shows of a pool in date order.
func (s *LeaderboardService) ListShows(ctx context.Context, poolID string) ([]ShowView, error) {
	db := s.DB.WithContext(ctx)

	var pool models.Pool
	err := db.First(&pool, "id = ?", poolID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("pool", poolID)
	}
	if err != nil {
		return nil, apperrors.Database("load pool "+poolID, err)
	}

	var shows []models.Show
	err = db.Where("pool_id = ? AND is_active = ?", poolID, true).
		Order("show_date ASC").
		Find(&shows).Error
	if err != nil {
		return nil, apperrors.Database("list shows of pool "+poolID, err)
	}

	now := s.Now()
	views := make([]ShowView, 0, len(shows))
	for i := range shows {
		views = append(views, ShowView{
			Show:            shows[i],
			Deadline:        ShowDeadline(&shows[i], &pool),
			EffectiveStatus: EffectiveShowStatus(&shows[i], &pool, now),
		})
	}
	return views, nil
}

func (s *LeaderboardService) ensurePool(db *gorm.DB, poolID string) error {
	var count int64
	if err := db.Model(&models.Pool{}).Where("id = ?", poolID).Count(&count).Error; err != nil {
		return apperrors.Database("load pool "+poolID, err)
	}
	if count == 0 {
		return apperrors.NotFound("pool", poolID)
	}
	return nil
}

// --- HTTP handlers ---

func (s *LeaderboardService) GetLeaderboardHandler(c *fiber.Ctx) error {
	entries, err := s.GetLeaderboard(c.UserContext(), c.Params("poolId"))
	if err != nil {
		return apperrors.Respond(c, err)
	}
	return c.JSON(fiber.Map{"pool_id": c.Params("poolId"), "entries": entries})
}

func (s *LeaderboardService) GetPickStatsHandler(c *fiber.Ctx) error {
	stats, err := s.GetPickStats(c.UserContext(), c.Params("poolId"), c.Params("showId"))
	if err != nil {
		return apperrors.Respond(c, err)
	}
	return c.JSON(stats)
}

func (s *LeaderboardService) ListShowsHandler(c *fiber.Ctx) error {
	shows, err := s.ListShows(c.UserContext(), c.Params("poolId"))
	if err != nil {
		return apperrors.Respond(c, err)
	}
	return c.JSON(shows)
}

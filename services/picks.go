package services

import (
	"context"
	"errors"
	"time"

	"setlist-survivor/apperrors"
	"setlist-survivor/logger"
	"setlist-survivor/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PickService struct {
	DB  *gorm.DB
	Log *logger.Logger
	Now func() time.Time
}

func NewPickService(db *gorm.DB, log *logger.Logger) *PickService {
	return &PickService{DB: db, Log: log, Now: time.Now}
}

type PickRequest struct {
	PoolID   string
	ShowID   string
	UserID   string
	SongID   string
	Nickname string
}

// JoinPool adds userID to the pool. Joining twice returns the existing membership.
func (s *PickService) JoinPool(ctx context.Context, poolID, userID, nickname string) (*models.Participant, error) {
	if poolID == "" || userID == "" {
		return nil, apperrors.InvalidInput("pool id and user id are required")
	}

	var participant *models.Participant
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pool models.Pool
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&pool, "id = ?", poolID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("pool", poolID)
			}
			return apperrors.Database("load pool "+poolID, err)
		}

		p, err := s.findOrJoin(tx, &pool, userID, nickname)
		if err != nil {
			return err
		}
		participant = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return participant, nil
}

// findOrJoin returns the user's membership, creating it when signups allow.
func (s *PickService) findOrJoin(tx *gorm.DB, pool *models.Pool, userID, nickname string) (*models.Participant, error) {
	var existing models.Participant
	err := tx.Where("pool_id = ? AND user_id = ?", pool.ID, userID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Database("load participant", err)
	}

	now := s.Now().UTC()
	if pool.Status != models.PoolStatusSignupsOpen {
		return nil, apperrors.New(apperrors.CodeSignupsClosed, "signups are closed for this pool", nil)
	}
	if pool.SignupDeadline != nil && now.After(*pool.SignupDeadline) {
		return nil, apperrors.New(apperrors.CodeSignupsClosed, "the signup deadline has passed", nil)
	}
	if pool.MaxPlayers != nil && *pool.MaxPlayers > 0 {
		var count int64
		if err := tx.Model(&models.Participant{}).Where("pool_id = ?", pool.ID).Count(&count).Error; err != nil {
			return nil, apperrors.Database("count participants", err)
		}
		if count >= int64(*pool.MaxPlayers) {
			return nil, apperrors.New(apperrors.CodePoolFull, "this pool is full", nil)
		}
	}

	participant := models.Participant{
		PoolID:        pool.ID,
		UserID:        userID,
		Nickname:      nickname,
		Status:        models.ParticipantStatusAlive,
		CurrentStreak: 0,
		JoinedAt:      now,
	}
	if err := tx.Create(&participant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Conflict("already a member of this pool")
		}
		return nil, apperrors.Database("create participant", err)
	}

	s.Log.Info("[PICKS] participant joined", "pool_id", pool.ID, "user_id", userID)
	return &participant, nil
}

// SubmitPick creates or replaces the user's pick for a show while picks are open.
// A song the participant already won with in this pool cannot be picked again.
func (s *PickService) SubmitPick(ctx context.Context, req PickRequest) (*models.Pick, error) {
	if req.PoolID == "" || req.ShowID == "" || req.UserID == "" || req.SongID == "" {
		return nil, apperrors.InvalidInput("pool, show, user and song are required")
	}

	var saved models.Pick
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var show models.Show
		err := tx.Preload("Pool").Where("id = ? AND pool_id = ?", req.ShowID, req.PoolID).First(&show).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && show.Pool == nil) {
			return apperrors.NotFound("show", req.ShowID)
		}
		if err != nil {
			return apperrors.Database("load show "+req.ShowID, err)
		}

		now := s.Now()
		if !PicksOpen(&show, show.Pool, now) {
			return apperrors.New(apperrors.CodePicksLocked, "picks are locked for this show", nil)
		}

		var songCount int64
		if err := tx.Model(&models.Song{}).Where("id = ?", req.SongID).Count(&songCount).Error; err != nil {
			return apperrors.Database("load song "+req.SongID, err)
		}
		if songCount == 0 {
			return apperrors.NotFound("song", req.SongID)
		}

		// Auto-join counts members against max_players under the same lock as JoinPool.
		var pool models.Pool
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&pool, "id = ?", show.PoolID).Error; err != nil {
			return apperrors.Database("lock pool "+show.PoolID, err)
		}

		participant, err := s.findOrJoin(tx, &pool, req.UserID, req.Nickname)
		if err != nil {
			return err
		}
		if participant.Status != models.ParticipantStatusAlive {
			return apperrors.New(apperrors.CodeParticipantOut, "you have been eliminated from this pool", nil)
		}

		var wins int64
		err = tx.Model(&models.Pick{}).
			Where("participant_id = ? AND song_id = ? AND result = ? AND show_id <> ?",
				participant.ID, req.SongID, models.PickResultWin, req.ShowID).
			Count(&wins).Error
		if err != nil {
			return apperrors.Database("check previous wins", err)
		}
		if wins > 0 {
			return apperrors.New(apperrors.CodeSongAlreadyWon, "you already won with this song in this pool", nil)
		}

		var existing models.Pick
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("participant_id = ? AND show_id = ?", participant.ID, req.ShowID).
			First(&existing).Error
		switch {
		case err == nil:
			if existing.Result != models.PickResultPending {
				return apperrors.New(apperrors.CodePicksLocked, "this pick has already been graded", nil)
			}
			res := tx.Model(&models.Pick{}).
				Where("id = ? AND result = ?", existing.ID, models.PickResultPending).
				Updates(map[string]interface{}{"song_id": req.SongID, "picked_at": now.UTC()})
			if res.Error != nil {
				return apperrors.Database("update pick "+existing.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return apperrors.New(apperrors.CodePicksLocked, "this pick has already been graded", nil)
			}
			existing.SongID = req.SongID
			existing.PickedAt = now.UTC()
			saved = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			saved = models.Pick{
				ParticipantID: participant.ID,
				ShowID:        req.ShowID,
				SongID:        req.SongID,
				PickedAt:      now.UTC(),
				Result:        models.PickResultPending,
			}
			if err := tx.Create(&saved).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return apperrors.Conflict("a pick for this show was submitted concurrently")
				}
				return apperrors.Database("create pick", err)
			}
		default:
			return apperrors.Database("load pick", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("[PICKS] pick saved",
		"pool_id", req.PoolID,
		"show_id", req.ShowID,
		"user_id", req.UserID,
		"song_id", req.SongID,
	)
	return &saved, nil
}

// --- HTTP handlers ---

func (s *PickService) JoinPoolHandler(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var body struct {
		Nickname string `json:"nickname"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return apperrors.Respond(c, apperrors.InvalidInput("invalid request body"))
		}
	}

	participant, err := s.JoinPool(c.UserContext(), c.Params("poolId"), userID, body.Nickname)
	if err != nil {
		return apperrors.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(participant)
}

func (s *PickService) SubmitPickHandler(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var body struct {
		SongID   string `json:"song_id"`
		Nickname string `json:"nickname"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.Respond(c, apperrors.InvalidInput("invalid request body"))
	}

	pick, err := s.SubmitPick(c.UserContext(), PickRequest{
		PoolID:   c.Params("poolId"),
		ShowID:   c.Params("showId"),
		UserID:   userID,
		SongID:   body.SongID,
		Nickname: body.Nickname,
	})
	if err != nil {
		return apperrors.Respond(c, err)
	}
	return c.JSON(pick)
}

package services

import (
	"context"
	"errors"

	"setlist-survivor/apperrors"
	"setlist-survivor/logger"
	"setlist-survivor/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AdminService holds the operator overrides around grading.
type AdminService struct {
	DB      *gorm.DB
	Grading *GradingService
	Log     *logger.Logger
}

func NewAdminService(db *gorm.DB, grading *GradingService, log *logger.Logger) *AdminService {
	return &AdminService{DB: db, Grading: grading, Log: log}
}

// SubmitManualResults grades a show against an operator-entered setlist. The stored
// setlist is marked manual so later scheduled runs use it instead of the provider.
func (s *AdminService) SubmitManualResults(ctx context.Context, showID string, songIDs []string, finalize bool) (*GradeResult, error) {
	songIDs = dedupeIDs(songIDs)
	if len(songIDs) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "at least one song is required", ErrEmptySetlist)
	}

	db := s.DB.WithContext(ctx)
	var show models.Show
	err := db.First(&show, "id = ?", showID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("show", showID)
	}
	if err != nil {
		return nil, apperrors.Database("load show "+showID, err)
	}

	var found int64
	if err := db.Model(&models.Song{}).Where("id IN ?", songIDs).Count(&found).Error; err != nil {
		return nil, apperrors.Database("load songs", err)
	}
	if int(found) != len(songIDs) {
		return nil, apperrors.InvalidInput("setlist contains unknown songs")
	}

	result, err := s.Grading.GradeShow(ctx, GradeRequest{
		ShowID:   show.ID,
		PoolID:   show.PoolID,
		SongIDs:  songIDs,
		Finalize: finalize,
		Source:   models.SetlistSourceManual,
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("[ADMIN] manual results applied",
		"show_id", show.ID,
		"pool_id", show.PoolID,
		"songs", len(songIDs),
		"finalize", finalize,
	)
	return result, nil
}

func (s *AdminService) SetShowActive(ctx context.Context, showID string, active bool) error {
	res := s.DB.WithContext(ctx).Model(&models.Show{}).Where("id = ?", showID).Update("is_active", active)
	if res.Error != nil {
		return apperrors.Database("update show "+showID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("show", showID)
	}
	s.Log.Info("[ADMIN] show activation changed", "show_id", showID, "active", active)
	return nil
}

// SetParticipantStatus overrides a participant's status. Setting OUT clears the streak.
func (s *AdminService) SetParticipantStatus(ctx context.Context, participantID string, status models.ParticipantStatus) (*models.Participant, error) {
	updates := map[string]interface{}{"status": status}
	switch status {
	case models.ParticipantStatusAlive:
	case models.ParticipantStatusOut:
		updates["current_streak"] = 0
	default:
		return nil, apperrors.InvalidInput("status must be ALIVE or OUT")
	}

	var participant models.Participant
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Participant{}).Where("id = ?", participantID).Updates(updates)
		if res.Error != nil {
			return apperrors.Database("update participant "+participantID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.NotFound("participant", participantID)
		}
		if err := tx.First(&participant, "id = ?", participantID).Error; err != nil {
			return apperrors.Database("reload participant "+participantID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("[ADMIN] participant status overridden", "participant_id", participantID, "status", status)
	return &participant, nil
}

// --- HTTP handlers ---

func (s *AdminService) SubmitManualResultsHandler(c *fiber.Ctx) error {
	var body struct {
		SongIDs  []string `json:"song_ids"`
		Finalize bool     `json:"finalize"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.Respond(c, apperrors.InvalidInput("invalid request body"))
	}

	result, err := s.SubmitManualResults(c.UserContext(), c.Params("showId"), body.SongIDs, body.Finalize)
	if err != nil {
		return apperrors.Respond(c, err)
	}
	return c.JSON(result)
}

func (s *AdminService) SetShowActiveHandler(c *fiber.Ctx) error {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := c.BodyParser(&body); err != nil || body.Active == nil {
		return apperrors.Respond(c, apperrors.InvalidInput("active is required"))
	}

	if err := s.SetShowActive(c.UserContext(), c.Params("showId"), *body.Active); err != nil {
		return apperrors.Respond(c, err)
	}
	return c.JSON(fiber.Map{"show_id": c.Params("showId"), "is_active": *body.Active})
}

func (s *AdminService) SetParticipantStatusHandler(c *fiber.Ctx) error {
	var body struct {
		Status models.ParticipantStatus `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.Respond(c, apperrors.InvalidInput("invalid request body"))
	}

	participant, err := s.SetParticipantStatus(c.UserContext(), c.Params("participantId"), body.Status)
	if err != nil {
		return apperrors.Respond(c, err)
	}
	return c.JSON(participant)
}

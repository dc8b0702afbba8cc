package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"setlist-survivor/apperrors"
	"setlist-survivor/logger"
	"setlist-survivor/metrics"
	"setlist-survivor/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrEmptySetlist = errors.New("setlist has no songs")

type GradeRequest struct {
	ShowID   string
	PoolID   string
	SongIDs  []string
	Finalize bool
	// Source is written to Show.SetlistSource when set.
	Source models.SetlistSource
}

// ParticipantOutcome is the state of one ALIVE participant after a pass.
// Committed is true when this pass changed the participant or their pick.
type ParticipantOutcome struct {
	ParticipantID string            `json:"participant_id"`
	UserID        string            `json:"user_id"`
	PickID        string            `json:"pick_id,omitempty"`
	SongID        string            `json:"song_id,omitempty"`
	Result        models.PickResult `json:"result,omitempty"`
	Committed     bool              `json:"committed"`
	Reason        string            `json:"reason,omitempty"`
}

type GradeResult struct {
	ShowID         string               `json:"show_id"`
	PoolID         string               `json:"pool_id"`
	Winners        int                  `json:"winners"`
	Losers         int                  `json:"losers"`
	NewWinners     int                  `json:"new_winners"`
	NewLosers      int                  `json:"new_losers"`
	Finalized      bool                 `json:"finalized"`
	PreviousStatus models.ShowStatus    `json:"previous_status"`
	Status         models.ShowStatus    `json:"status"`
	SetlistSize    int                  `json:"setlist_size"`
	Outcomes       []ParticipantOutcome `json:"outcomes"`
}

// GradingService applies a setlist to every ALIVE participant of a pool for one show.
type GradingService struct {
	DB  *gorm.DB
	Log *logger.Logger
	Now func() time.Time

	locks *keyedMutex
}

func NewGradingService(db *gorm.DB, log *logger.Logger) *GradingService {
	return &GradingService{DB: db, Log: log, Now: time.Now, locks: newKeyedMutex()}
}

// GradeShow grades the show against SongIDs inside one transaction.
//
// A pick whose song is in the setlist becomes WIN and its participant's streak grows by
// one, exactly once. Wrong or missing picks only become LOSE (participant OUT, streak 0)
// when Finalize is set; otherwise they are left alone. The setlist is always stored and
// the show moves to PLAYED on finalize or PICKS_LOCKED otherwise, never backwards.
//
// Passes for the same show are serialized, and every pick transition is a conditional
// update on result = PENDING, so repeating a pass is safe.
func (s *GradingService) GradeShow(ctx context.Context, req GradeRequest) (*GradeResult, error) {
	if req.ShowID == "" || req.PoolID == "" {
		return nil, apperrors.InvalidInput("show id and pool id are required")
	}
	songIDs := dedupeIDs(req.SongIDs)
	if len(songIDs) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "refusing to grade against an empty setlist", ErrEmptySetlist)
	}

	unlock := s.locks.Lock(req.PoolID + "/" + req.ShowID)
	defer unlock()

	started := time.Now()
	defer metrics.RecordDBOperation("grade_show", started)

	inSet := make(map[string]bool, len(songIDs))
	for _, id := range songIDs {
		inSet[id] = true
	}

	result := &GradeResult{
		ShowID:      req.ShowID,
		PoolID:      req.PoolID,
		Finalized:   req.Finalize,
		SetlistSize: len(songIDs),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var show models.Show
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND pool_id = ?", req.ShowID, req.PoolID).
			First(&show).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("show", req.ShowID)
		}
		if err != nil {
			return apperrors.Database("load show "+req.ShowID, err)
		}

		var poolCount int64
		if err := tx.Model(&models.Pool{}).Where("id = ?", req.PoolID).Count(&poolCount).Error; err != nil {
			return apperrors.Database("load pool "+req.PoolID, err)
		}
		if poolCount == 0 {
			return apperrors.NotFound("pool", req.PoolID)
		}

		// One snapshot of participants and picks for the whole pass.
		var participants []models.Participant
		err = tx.Where("pool_id = ? AND status = ?", req.PoolID, models.ParticipantStatusAlive).
			Order("joined_at ASC").
			Find(&participants).Error
		if err != nil {
			return apperrors.Database("load participants of pool "+req.PoolID, err)
		}

		picks := map[string]*models.Pick{}
		if len(participants) > 0 {
			ids := make([]string, len(participants))
			for i, p := range participants {
				ids[i] = p.ID
			}
			var rows []models.Pick
			if err := tx.Where("show_id = ? AND participant_id IN ?", req.ShowID, ids).Find(&rows).Error; err != nil {
				return apperrors.Database("load picks of show "+req.ShowID, err)
			}
			for i := range rows {
				picks[rows[i].ParticipantID] = &rows[i]
			}
		}

		now := s.Now().UTC()
		for i := range participants {
			outcome, err := gradeParticipant(tx, &participants[i], picks[participants[i].ID], inSet, req.Finalize, now)
			if err != nil {
				return err
			}
			switch outcome.Result {
			case models.PickResultWin:
				result.Winners++
				if outcome.Committed {
					result.NewWinners++
				}
			case models.PickResultLose:
				if outcome.Committed {
					result.Losers++
					result.NewLosers++
				}
			}
			result.Outcomes = append(result.Outcomes, outcome)
		}

		target := models.ShowStatusPicksLocked
		if req.Finalize {
			target = models.ShowStatusPlayed
		}
		result.PreviousStatus = AdvanceShowStatus(show.Status, models.ShowStatusUpcoming)
		result.Status = AdvanceShowStatus(show.Status, target)

		updates := map[string]interface{}{
			"setlist": datatypes.JSONSlice[string](songIDs),
			"status":  result.Status,
		}
		if req.Source != models.SetlistSourceNone {
			updates["setlist_source"] = req.Source
		}
		if err := tx.Model(&models.Show{}).Where("id = ?", show.ID).Updates(updates).Error; err != nil {
			return apperrors.Database("update show "+show.ID, err)
		}

		if result.Status == models.ShowStatusPlayed && result.PreviousStatus != models.ShowStatusPlayed {
			err := tx.Model(&models.Song{}).
				Where("id IN ?", songIDs).
				Update("times_played", gorm.Expr("times_played + 1")).Error
			if err != nil {
				return apperrors.Database("count plays for show "+show.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.Log.Error("[GRADING] grading pass rolled back",
			"show_id", req.ShowID,
			"pool_id", req.PoolID,
			"finalize", req.Finalize,
			"error", err,
		)
		return nil, err
	}

	metrics.RecordGrading(req.Finalize, result.NewWinners, result.NewLosers)
	s.Log.Info("[GRADING] show graded",
		"show_id", result.ShowID,
		"pool_id", result.PoolID,
		"finalize", result.Finalized,
		"status", result.Status,
		"winners", result.Winners,
		"losers", result.Losers,
		"new_winners", result.NewWinners,
		"setlist_size", result.SetlistSize,
	)
	return result, nil
}

// gradeParticipant applies one pass to one ALIVE participant. pick is nil when the
// participant made no pick for the show.
func gradeParticipant(tx *gorm.DB, p *models.Participant, pick *models.Pick, inSet map[string]bool, finalize bool, now time.Time) (ParticipantOutcome, error) {
	outcome := ParticipantOutcome{ParticipantID: p.ID, UserID: p.UserID}
	if pick != nil {
		outcome.PickID = pick.ID
		outcome.SongID = pick.SongID
		outcome.Result = pick.Result
	}

	switch {
	case pick == nil:
		if !finalize {
			outcome.Reason = "no pick yet"
			return outcome, nil
		}
		committed, err := eliminate(tx, p.ID)
		if err != nil {
			return outcome, err
		}
		outcome.Result = models.PickResultLose
		outcome.Committed = committed
		outcome.Reason = "no pick"

	case pick.Result == models.PickResultWin:
		outcome.Reason = "already won"

	case pick.Result == models.PickResultLose:
		// terminal; the participant was set back to ALIVE by an admin
		outcome.Reason = "already lost"

	case inSet[pick.SongID]:
		res := tx.Model(&models.Pick{}).
			Where("id = ? AND result = ?", pick.ID, models.PickResultPending).
			Updates(map[string]interface{}{"result": models.PickResultWin, "graded_at": now})
		if res.Error != nil {
			return outcome, apperrors.Database("mark pick "+pick.ID+" WIN", res.Error)
		}
		outcome.Result = models.PickResultWin
		if res.RowsAffected == 0 {
			outcome.Reason = "already won"
			return outcome, nil
		}

		err := tx.Model(&models.Participant{}).
			Where("id = ? AND status = ?", p.ID, models.ParticipantStatusAlive).
			Update("current_streak", gorm.Expr("current_streak + 1")).Error
		if err != nil {
			return outcome, apperrors.Database("increment streak of participant "+p.ID, err)
		}
		outcome.Committed = true

	default:
		if !finalize {
			outcome.Reason = "not in setlist yet"
			return outcome, nil
		}
		res := tx.Model(&models.Pick{}).
			Where("id = ? AND result = ?", pick.ID, models.PickResultPending).
			Updates(map[string]interface{}{"result": models.PickResultLose, "graded_at": now})
		if res.Error != nil {
			return outcome, apperrors.Database("mark pick "+pick.ID+" LOSE", res.Error)
		}
		committed, err := eliminate(tx, p.ID)
		if err != nil {
			return outcome, err
		}
		outcome.Result = models.PickResultLose
		outcome.Committed = committed || res.RowsAffected > 0
		outcome.Reason = "song not played"
	}

	return outcome, nil
}

// eliminate sets an ALIVE participant OUT with a zero streak.
func eliminate(tx *gorm.DB, participantID string) (bool, error) {
	res := tx.Model(&models.Participant{}).
		Where("id = ? AND status = ?", participantID, models.ParticipantStatusAlive).
		Updates(map[string]interface{}{
			"status":         models.ParticipantStatusOut,
			"current_streak": 0,
		})
	if res.Error != nil {
		return false, apperrors.Database(fmt.Sprintf("eliminate participant %s", participantID), res.Error)
	}
	return res.RowsAffected > 0, nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedLock{}}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

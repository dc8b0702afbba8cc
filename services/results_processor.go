package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"setlist-survivor/apperrors"
	"setlist-survivor/logger"
	"setlist-survivor/metrics"
	"setlist-survivor/models"
	"setlist-survivor/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TriggerScheduler = "scheduler"
	TriggerCron      = "cron"
	TriggerAdmin     = "admin"
)

type RunOptions struct {
	// PoolID scopes the run to every active show of one pool, whatever its date.
	PoolID string
	// ForceFinalize finalizes scoped runs regardless of the clock. Test pools only
	// finalize this way. It is ignored on unscoped runs.
	ForceFinalize bool
	Trigger       string
}

type ShowOutcome struct {
	ShowID    string `json:"show_id"`
	PoolID    string `json:"pool_id"`
	ShowDate  string `json:"show_date"`
	Processed bool   `json:"processed"`
	Reason    string `json:"reason,omitempty"`
	Winners   int    `json:"winners"`
	Losers    int    `json:"losers"`
	Finalized bool   `json:"finalized"`
	Source    string `json:"source,omitempty"`
	Error     string `json:"error,omitempty"`
}

type RunSummary struct {
	RunID      string        `json:"run_id"`
	Trigger    string        `json:"trigger"`
	PoolID     string        `json:"pool_id,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	Errored    int           `json:"errored"`
	Shows      []ShowOutcome `json:"shows"`
}

// ResultsProcessor is the scheduling driver: it picks eligible shows, acquires their
// setlists and grades them one at a time.
type ResultsProcessor struct {
	DB       *gorm.DB
	Grading  *GradingService
	Acquirer *SetlistAcquirer
	Policy   FinalizePolicy
	Log      *logger.Logger
	Now      func() time.Time
}

func NewResultsProcessor(db *gorm.DB, grading *GradingService, acquirer *SetlistAcquirer, policy FinalizePolicy, log *logger.Logger) *ResultsProcessor {
	return &ResultsProcessor{
		DB:       db,
		Grading:  grading,
		Acquirer: acquirer,
		Policy:   policy,
		Log:      log,
		Now:      time.Now,
	}
}

// Run processes every eligible show. Unscoped runs take active shows dated today (UTC)
// or earlier and skip test pools. A failing show never stops the others; only a failure
// to list shows is returned as an error.
func (p *ResultsProcessor) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	if opts.Trigger == "" {
		opts.Trigger = TriggerScheduler
	}
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Trigger:   opts.Trigger,
		PoolID:    opts.PoolID,
		StartedAt: p.Now().UTC(),
		Shows:     []ShowOutcome{},
	}
	log := p.Log.With("run_id", summary.RunID, "trigger", opts.Trigger)

	shows, err := p.eligibleShows(ctx, opts)
	if err != nil {
		metrics.GradingRuns.WithLabelValues(opts.Trigger, "failed").Inc()
		log.Error("[SCHEDULER] failed to list eligible shows", "error", err)
		return nil, err
	}
	log.Info("[SCHEDULER] grading run started", "pool_id", opts.PoolID, "shows", len(shows))

	var catalog *SongCatalog
	for i := range shows {
		if ctx.Err() != nil {
			summary.Shows = append(summary.Shows, ShowOutcome{
				ShowID:   shows[i].ID,
				PoolID:   shows[i].PoolID,
				ShowDate: shows[i].ShowDate,
				Reason:   "run cancelled",
			})
			summary.Skipped++
			continue
		}

		outcome := p.processShow(ctx, &shows[i], opts, &catalog, log)
		switch {
		case outcome.Error != "":
			summary.Errored++
		case outcome.Processed:
			summary.Processed++
		default:
			summary.Skipped++
		}
		summary.Shows = append(summary.Shows, outcome)
	}

	summary.FinishedAt = p.Now().UTC()
	result := "ok"
	if summary.Errored > 0 {
		result = "partial"
	}
	metrics.GradingRuns.WithLabelValues(opts.Trigger, result).Inc()
	log.Info("[SCHEDULER] grading run finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"errored", summary.Errored,
	)
	return summary, nil
}

func (p *ResultsProcessor) eligibleShows(ctx context.Context, opts RunOptions) ([]models.Show, error) {
	q := p.DB.WithContext(ctx).
		Preload("Pool").
		Where("is_active = ? AND status <> ?", true, models.ShowStatusPlayed)
	if opts.PoolID != "" {
		q = q.Where("pool_id = ?", opts.PoolID)
	} else {
		q = q.Where("show_date <= ?", utils.DateOf(p.Now()))
	}

	var shows []models.Show
	if err := q.Order("show_date ASC").Find(&shows).Error; err != nil {
		return nil, apperrors.Database("list eligible shows", err)
	}
	return shows, nil
}

// processShow never panics and never returns an error; both end up in the outcome.
func (p *ResultsProcessor) processShow(ctx context.Context, show *models.Show, opts RunOptions, catalog **SongCatalog, log *logger.Logger) (outcome ShowOutcome) {
	outcome = ShowOutcome{ShowID: show.ID, PoolID: show.PoolID, ShowDate: show.ShowDate}
	log = log.With("show_id", show.ID, "pool_id", show.PoolID)

	defer func() {
		if r := recover(); r != nil {
			outcome.Processed = false
			outcome.Reason = "processing failed"
			outcome.Error = fmt.Sprintf("panic: %v", r)
			log.Error("[SCHEDULER] show processing panicked", "panic", r)
		}
	}()

	if show.Pool == nil {
		outcome.Reason = "pool not found"
		return outcome
	}
	if opts.PoolID == "" && show.Pool.IsTestPool {
		outcome.Reason = "test pool: manual runs only"
		return outcome
	}

	finalize := p.shouldFinalize(show, opts)

	songIDs, source, err := p.setlistFor(ctx, show, catalog, log)
	if err != nil {
		if errors.Is(err, ErrNoSetlistData) {
			outcome.Reason = err.Error()
			log.Info("[SCHEDULER] show skipped", "reason", outcome.Reason, "finalize_due", finalize)
			return outcome
		}
		outcome.Reason = "setlist acquisition failed"
		outcome.Error = err.Error()
		log.Error("[SCHEDULER] setlist acquisition failed", "error", err)
		return outcome
	}
	outcome.Source = source

	gradeSource := models.SetlistSourceProvider
	if source == SourceStored {
		gradeSource = models.SetlistSourceNone
	}
	res, err := p.Grading.GradeShow(ctx, GradeRequest{
		ShowID:   show.ID,
		PoolID:   show.PoolID,
		SongIDs:  songIDs,
		Finalize: finalize,
		Source:   gradeSource,
	})
	if err != nil {
		outcome.Reason = "grading failed"
		outcome.Error = err.Error()
		log.Error("[SCHEDULER] grading failed", "error", err)
		return outcome
	}

	outcome.Processed = true
	outcome.Winners = res.Winners
	outcome.Losers = res.Losers
	outcome.Finalized = res.Finalized
	return outcome
}

func (p *ResultsProcessor) shouldFinalize(show *models.Show, opts RunOptions) bool {
	if opts.ForceFinalize && opts.PoolID != "" {
		return true
	}
	if show.Pool != nil && show.Pool.IsTestPool {
		return false
	}
	return p.Policy.ShouldFinalize(show, p.Now())
}

// setlistFor returns the song IDs to grade show against. A stored setlist that was not
// written by the provider is used as is. Otherwise the setlist is acquired, and a stored
// provisional setlist is merged in so the graded set never shrinks.
func (p *ResultsProcessor) setlistFor(ctx context.Context, show *models.Show, catalog **SongCatalog, log *logger.Logger) ([]string, string, error) {
	if show.HasSetlist() && show.SetlistSource != models.SetlistSourceProvider {
		return []string(show.Setlist), SourceStored, nil
	}

	acquired := p.Acquirer.Acquire(ctx, show)
	if !acquired.Found() {
		return nil, "", fmt.Errorf("%w (%s)", ErrNoSetlistData, acquired.Diagnostics())
	}

	if *catalog == nil {
		loaded, err := LoadSongCatalog(ctx, p.DB)
		if err != nil {
			return nil, "", err
		}
		*catalog = loaded
	}

	resolved, err := (*catalog).Resolve(ctx, p.DB, utils.SplitSetlist(acquired.Text))
	if err != nil {
		log.Warn("[SCHEDULER] some setlist titles could not be added to the catalog", "error", err)
	}
	if len(resolved.Unresolved) > 0 {
		log.Warn("[SCHEDULER] unresolved setlist titles", "titles", resolved.Unresolved)
	}
	if resolved.Minted > 0 {
		log.Info("[SCHEDULER] new songs added to catalog", "count", resolved.Minted)
	}

	merged := make([]string, 0, len(show.Setlist)+len(resolved.SongIDs))
	merged = append(merged, show.Setlist...)
	songIDs := dedupeIDs(append(merged, resolved.SongIDs...))
	if len(songIDs) == 0 {
		return nil, "", fmt.Errorf("%w (no catalog songs resolved)", ErrNoSetlistData)
	}
	return songIDs, acquired.Source, nil
}

// ProcessShowsHandler runs grading for GET|POST /cron/process-shows?poolId=&finalize=.
func (p *ResultsProcessor) ProcessShowsHandler(c *fiber.Ctx) error {
	trigger, _ := c.Locals("trigger").(string)
	if trigger == "" {
		trigger = TriggerCron
	}

	opts := RunOptions{
		PoolID:        c.Query("poolId"),
		ForceFinalize: c.QueryBool("finalize", false),
		Trigger:       trigger,
	}

	summary, err := p.Run(c.UserContext(), opts)
	if err != nil {
		return apperrors.Respond(c, err)
	}
	return c.JSON(summary)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"setlist-survivor/logger"
	"setlist-survivor/metrics"
	"setlist-survivor/models"
	"setlist-survivor/utils"
)

var ErrNoSetlistData = errors.New("no setlist data available yet")

// SetlistProvider is the upstream source of raw setlist text.
type SetlistProvider interface {
	GetShowByID(ctx context.Context, externalID string) (string, error)
	GetSetlistByDate(ctx context.Context, date string) (string, error)
	ScrapeSetlistHTML(ctx context.Context, date string) (string, error)
}

const (
	SourceStored = "stored"
	SourceShowID = "show_id"
	SourceDate   = "date"
	SourceScrape = "scrape"
)

type StepOutcome string

const (
	StepFound  StepOutcome = "found"
	StepEmpty  StepOutcome = "empty"
	StepFailed StepOutcome = "failed"
)

// StepResult is what one fallback step produced.
type StepResult struct {
	Source   string
	Outcome  StepOutcome
	Text     string
	Segments int
	Err      error
	Elapsed  time.Duration
}

type AcquisitionResult struct {
	Text     string
	Source   string
	Segments int
	Steps    []StepResult
}

func (r AcquisitionResult) Found() bool {
	return r.Segments > 0
}

// Diagnostics summarises every step, e.g. "show_id=failed(timeout) date=empty scrape=found(12)".
func (r AcquisitionResult) Diagnostics() string {
	parts := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		switch s.Outcome {
		case StepFound:
			parts = append(parts, fmt.Sprintf("%s=found(%d)", s.Source, s.Segments))
		case StepFailed:
			parts = append(parts, fmt.Sprintf("%s=failed(%v)", s.Source, s.Err))
		default:
			parts = append(parts, fmt.Sprintf("%s=%s", s.Source, s.Outcome))
		}
	}
	return strings.Join(parts, " ")
}

type SetlistAcquirer struct {
	Provider    SetlistProvider
	Archive     SetlistArchive
	StepTimeout time.Duration
	Log         *logger.Logger
}

func NewSetlistAcquirer(provider SetlistProvider, archive SetlistArchive, stepTimeout time.Duration, log *logger.Logger) *SetlistAcquirer {
	return &SetlistAcquirer{
		Provider:    provider,
		Archive:     archive,
		StepTimeout: stepTimeout,
		Log:         log,
	}
}

// Acquire fetches raw setlist text for show: by external show ID, then by date, then
// by scraping the public page. The API steps stop at the first hit, the scrape always
// runs, and the result with more segments wins (the API on a tie). Step failures are
// recorded on the result and never returned.
func (a *SetlistAcquirer) Acquire(ctx context.Context, show *models.Show) AcquisitionResult {
	var (
		result AcquisitionResult
		api    *StepResult
	)
	date := show.LookupDate()

	if show.ExternalShowID != nil && *show.ExternalShowID != "" {
		externalID := *show.ExternalShowID
		step := a.runStep(ctx, show.ID, SourceShowID, func(ctx context.Context) (string, error) {
			return a.Provider.GetShowByID(ctx, externalID)
		})
		result.Steps = append(result.Steps, step)
		if step.Outcome == StepFound {
			api = &step
		}
	}

	if api == nil {
		step := a.runStep(ctx, show.ID, SourceDate, func(ctx context.Context) (string, error) {
			return a.Provider.GetSetlistByDate(ctx, date)
		})
		result.Steps = append(result.Steps, step)
		if step.Outcome == StepFound {
			api = &step
		}
	}

	scrape := a.runStep(ctx, show.ID, SourceScrape, func(ctx context.Context) (string, error) {
		return a.Provider.ScrapeSetlistHTML(ctx, date)
	})
	result.Steps = append(result.Steps, scrape)

	best := fullest(api, &scrape)
	if best != nil {
		result.Text = best.Text
		result.Source = best.Source
		result.Segments = best.Segments
	}

	a.Log.Info("[ACQUIRE] setlist acquisition finished",
		"show_id", show.ID,
		"date", date,
		"source", result.Source,
		"segments", result.Segments,
		"steps", result.Diagnostics(),
	)
	return result
}

// fullest applies the merge rule between the API hit (if any) and the scrape.
func fullest(api, scrape *StepResult) *StepResult {
	scrapeFound := scrape != nil && scrape.Outcome == StepFound
	switch {
	case api == nil && scrapeFound:
		return scrape
	case api == nil:
		return nil
	case scrapeFound && scrape.Segments > api.Segments:
		return scrape
	default:
		return api
	}
}

func (a *SetlistAcquirer) runStep(ctx context.Context, showID, source string, fetch func(context.Context) (string, error)) StepResult {
	stepCtx := ctx
	if a.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, a.StepTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := fetch(stepCtx)
	step := StepResult{Source: source, Elapsed: time.Since(start)}

	switch {
	case err != nil:
		step.Outcome = StepFailed
		step.Err = err
		a.Log.Warn("[ACQUIRE] step failed", "show_id", showID, "source", source, "error", err)
	default:
		step.Text = strings.TrimSpace(text)
		step.Segments = utils.SegmentCount(step.Text)
		step.Outcome = StepEmpty
		if step.Segments > 0 {
			step.Outcome = StepFound
		}
	}
	metrics.RecordAcquisitionStep(source, string(step.Outcome), step.Elapsed)

	if step.Text != "" && a.Archive != nil {
		if err := a.Archive.Store(ctx, showID, source, step.Text); err != nil {
			a.Log.Warn("[ACQUIRE] failed to archive raw setlist", "show_id", showID, "source", source, "error", err)
		}
	}
	return step
}

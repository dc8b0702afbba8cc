package services

import (
	"context"
	"testing"
	"time"

	"setlist-survivor/logger"
	"setlist-survivor/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestProcessor(db *gorm.DB, provider SetlistProvider, now time.Time) *ResultsProcessor {
	grading := NewGradingService(db, logger.Nop())
	grading.Now = fixedClock(now)
	acquirer := NewSetlistAcquirer(provider, nil, time.Second, logger.Nop())
	p := NewResultsProcessor(db, grading, acquirer, DefaultFinalizePolicy(), logger.Nop())
	p.Now = fixedClock(now)
	return p
}

func outcomeFor(t *testing.T, summary *RunSummary, showID string) ShowOutcome {
	t.Helper()
	for _, o := range summary.Shows {
		if o.ShowID == showID {
			return o
		}
	}
	t.Fatalf("no outcome for show %s", showID)
	return ShowOutcome{}
}

func TestResultsProcessor_Run(t *testing.T) {
	// a day and a half after a 7 PM show in New York on 2026-07-10
	afterGrace := time.Date(2026, 7, 12, 12, 0, 0, 0, time.UTC)
	// the morning after the same show
	beforeGrace := time.Date(2026, 7, 11, 12, 0, 0, 0, time.UTC)

	t.Run("grades and finalizes once the grace period passed", func(t *testing.T) {
		db := newTestDB(t)
		pool := seedPool(t, db, nil)
		show := seedShow(t, db, pool.ID, "2026-07-10", nil)
		tweezer := seedSong(t, db, "Tweezer")
		reba := seedSong(t, db, "Reba")
		winner := seedParticipant(t, db, pool.ID, "winner", nil)
		loser := seedParticipant(t, db, pool.ID, "loser", nil)
		seedPick(t, db, winner.ID, show.ID, tweezer.ID, models.PickResultPending)
		seedPick(t, db, loser.ID, show.ID, reba.ID, models.PickResultPending)

		provider := &fakeProvider{byDate: map[string]string{"2026-07-10": "Set 1: Tweezer > Possum, Encore: Loving Cup"}}
		p := newTestProcessor(db, provider, afterGrace)

		summary, err := p.Run(context.Background(), RunOptions{Trigger: TriggerCron})
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, TriggerCron, summary.Trigger)
		assert.NotEmpty(t, summary.RunID)
		out := outcomeFor(t, summary, show.ID)
		assert.True(t, out.Finalized)
		assert.Equal(t, 1, out.Winners)
		assert.Equal(t, 1, out.Losers)
		assert.Equal(t, SourceDate, out.Source)

		stored := reloadShow(t, db, show.ID)
		assert.Equal(t, models.ShowStatusPlayed, stored.Status)
		assert.Len(t, stored.Setlist, 3)
		assert.Equal(t, models.SetlistSourceProvider, stored.SetlistSource)
		assert.Equal(t, models.ParticipantStatusOut, reloadParticipant(t, db, loser.ID).Status)

		var minted int64
		require.NoError(t, db.Model(&models.Song{}).Where("title IN ?", []string{"Possum", "Loving Cup"}).Count(&minted).Error)
		assert.Equal(t, int64(2), minted)
	})

	t.Run("provisional before the grace period", func(t *testing.T) {
		db := newTestDB(t)
		pool := seedPool(t, db, nil)
		show := seedShow(t, db, pool.ID, "2026-07-10", nil)
		seedSong(t, db, "Tweezer")
		p := newTestProcessor(db, &fakeProvider{byDate: map[string]string{"2026-07-10": "Tweezer"}}, beforeGrace)

		summary, err := p.Run(context.Background(), RunOptions{})
		require.NoError(t, err)

		out := outcomeFor(t, summary, show.ID)
		assert.True(t, out.Processed)
		assert.False(t, out.Finalized)
		assert.Equal(t, models.ShowStatusPicksLocked, reloadShow(t, db, show.ID).Status)
		assert.Equal(t, TriggerScheduler, summary.Trigger)
	})

	t.Run("skips shows without setlist data", func(t *testing.T) {
		db := newTestDB(t)
		pool := seedPool(t, db, nil)
		show := seedShow(t, db, pool.ID, "2026-07-10", nil)
		p := newTestProcessor(db, &fakeProvider{}, afterGrace)

		summary, err := p.Run(context.Background(), RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Skipped)
		out := outcomeFor(t, summary, show.ID)
		assert.False(t, out.Processed)
		assert.Contains(t, out.Reason, ErrNoSetlistData.Error())
		assert.Equal(t, models.ShowStatusUpcoming, reloadShow(t, db, show.ID).Status)
	})

	t.Run("only past, active, unplayed shows of live pools are eligible", func(t *testing.T) {
		db := newTestDB(t)
		live := seedPool(t, db, nil)
		testPool := seedPool(t, db, func(p *models.Pool) { p.IsTestPool = true })

		eligible := seedShow(t, db, live.ID, "2026-07-10", nil)
		seedShow(t, db, live.ID, "2026-07-20", nil)
		seedShow(t, db, live.ID, "2026-07-09", func(s *models.Show) { s.IsActive = false })
		seedShow(t, db, live.ID, "2026-07-08", func(s *models.Show) { s.Status = models.ShowStatusPlayed })
		testShow := seedShow(t, db, testPool.ID, "2026-07-10", nil)
		seedSong(t, db, "Tweezer")

		provider := &fakeProvider{byDate: map[string]string{"2026-07-10": "Tweezer"}}
		p := newTestProcessor(db, provider, afterGrace)

		summary, err := p.Run(context.Background(), RunOptions{})
		require.NoError(t, err)

		require.Len(t, summary.Shows, 2)
		assert.True(t, outcomeFor(t, summary, eligible.ID).Processed)
		skipped := outcomeFor(t, summary, testShow.ID)
		assert.False(t, skipped.Processed)
		assert.Equal(t, "test pool: manual runs only", skipped.Reason)
	})

	t.Run("test pools finalize only when forced", func(t *testing.T) {
		db := newTestDB(t)
		pool := seedPool(t, db, func(p *models.Pool) { p.IsTestPool = true })
		eventDate := "1997-11-22"
		show := seedShow(t, db, pool.ID, "2026-08-01", func(s *models.Show) { s.EventDate = &eventDate })
		song := seedSong(t, db, "Tweezer")
		miss := seedParticipant(t, db, pool.ID, "miss", nil)
		seedPick(t, db, miss.ID, show.ID, song.ID, models.PickResultPending)

		provider := &fakeProvider{byDate: map[string]string{eventDate: "Reba > Wolfman's Brother"}}
		p := newTestProcessor(db, provider, afterGrace)

		summary, err := p.Run(context.Background(), RunOptions{PoolID: pool.ID})
		require.NoError(t, err)
		assert.False(t, outcomeFor(t, summary, show.ID).Finalized)
		assert.Equal(t, models.ParticipantStatusAlive, reloadParticipant(t, db, miss.ID).Status)

		summary, err = p.Run(context.Background(), RunOptions{PoolID: pool.ID, ForceFinalize: true})
		require.NoError(t, err)
		out := outcomeFor(t, summary, show.ID)
		assert.True(t, out.Finalized)
		assert.Equal(t, 1, out.Losers)
		assert.Equal(t, models.ParticipantStatusOut, reloadParticipant(t, db, miss.ID).Status)
	})

	t.Run("force finalize is ignored on unscoped runs", func(t *testing.T) {
		db := newTestDB(t)
		pool := seedPool(t, db, nil)
		show := seedShow(t, db, pool.ID, "2026-07-10", nil)
		seedSong(t, db, "Tweezer")
		p := newTestProcessor(db, &fakeProvider{byDate: map[string]string{"2026-07-10": "Tweezer"}}, beforeGrace)

		summary, err := p.Run(context.Background(), RunOptions{ForceFinalize: true})
		require.NoError(t, err)
		assert.False(t, outcomeFor(t, summary, show.ID).Finalized)
	})

	t.Run("manual setlists short-circuit acquisition", func(t *testing.T) {
		db := newTestDB(t)
		pool := seedPool(t, db, nil)
		song := seedSong(t, db, "Slave to the Traffic Light")
		show := seedShow(t, db, pool.ID, "2026-07-10", func(s *models.Show) {
			s.Setlist = datatypes.JSONSlice[string]{song.ID}
			s.SetlistSource = models.SetlistSourceManual
		})
		provider := &fakeProvider{byDate: map[string]string{"2026-07-10": "Tweezer > Reba"}}
		p := newTestProcessor(db, provider, afterGrace)

		summary, err := p.Run(context.Background(), RunOptions{})
		require.NoError(t, err)

		assert.Empty(t, provider.calls)
		out := outcomeFor(t, summary, show.ID)
		assert.Equal(t, SourceStored, out.Source)
		stored := reloadShow(t, db, show.ID)
		assert.Equal(t, []string{song.ID}, []string(stored.Setlist))
		assert.Equal(t, models.SetlistSourceManual, stored.SetlistSource)
	})

	t.Run("a shorter upstream setlist never shrinks a provisional one", func(t *testing.T) {
		db := newTestDB(t)
		pool := seedPool(t, db, nil)
		tweezer := seedSong(t, db, "Tweezer")
		reba := seedSong(t, db, "Reba")
		show := seedShow(t, db, pool.ID, "2026-07-10", func(s *models.Show) {
			s.Setlist = datatypes.JSONSlice[string]{tweezer.ID, reba.ID}
			s.SetlistSource = models.SetlistSourceProvider
			s.Status = models.ShowStatusPicksLocked
		})
		rebaFan := seedParticipant(t, db, pool.ID, "reba-fan", nil)
		seedPick(t, db, rebaFan.ID, show.ID, reba.ID, models.PickResultPending)

		p := newTestProcessor(db, &fakeProvider{byDate: map[string]string{"2026-07-10": "Tweezer"}}, afterGrace)

		summary, err := p.Run(context.Background(), RunOptions{})
		require.NoError(t, err)

		out := outcomeFor(t, summary, show.ID)
		assert.True(t, out.Finalized)
		assert.Equal(t, 1, out.Winners)
		assert.ElementsMatch(t, []string{tweezer.ID, reba.ID}, []string(reloadShow(t, db, show.ID).Setlist))
		assert.Equal(t, models.ParticipantStatusAlive, reloadParticipant(t, db, rebaFan.ID).Status)
	})

	t.Run("a failing show does not stop the run", func(t *testing.T) {
		db := newTestDB(t)
		pool := seedPool(t, db, nil)
		first := seedShow(t, db, pool.ID, "2026-07-09", nil)
		second := seedShow(t, db, pool.ID, "2026-07-10", nil)
		seedSong(t, db, "Tweezer")

		provider := &panickyProvider{
			panicDate:    "2026-07-09",
			fakeProvider: fakeProvider{byDate: map[string]string{"2026-07-10": "Tweezer"}},
		}
		p := newTestProcessor(db, provider, afterGrace)

		summary, err := p.Run(context.Background(), RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Errored)
		assert.Equal(t, 1, summary.Processed)
		assert.Contains(t, outcomeFor(t, summary, first.ID).Error, "panic")
		assert.True(t, outcomeFor(t, summary, second.ID).Processed)
	})

	t.Run("a cancelled context fails before any show is touched", func(t *testing.T) {
		db := newTestDB(t)
		pool := seedPool(t, db, nil)
		show := seedShow(t, db, pool.ID, "2026-07-10", nil)
		provider := &fakeProvider{byDate: map[string]string{"2026-07-10": "Tweezer"}}
		p := newTestProcessor(db, provider, afterGrace)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Run(ctx, RunOptions{})

		assert.Error(t, err)
		assert.Empty(t, provider.calls)
		assert.Equal(t, models.ShowStatusUpcoming, reloadShow(t, db, show.ID).Status)
	})
}

type panickyProvider struct {
	fakeProvider
	panicDate string
}

func (p *panickyProvider) GetSetlistByDate(ctx context.Context, date string) (string, error) {
	if date == p.panicDate {
		panic("upstream decoder blew up")
	}
	return p.fakeProvider.GetSetlistByDate(ctx, date)
}

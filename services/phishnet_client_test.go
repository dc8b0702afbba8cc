package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"setlist-survivor/config"
	"setlist-survivor/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPhishNetClient(baseURL string) *PhishNetClient {
	c := NewPhishNetClient(config.ProviderConfig{
		BaseURL:       baseURL + "/v5",
		ScrapeBaseURL: baseURL,
		APIKey:        "test-key",
		Timeout:       2 * time.Second,
		MaxRetries:    2,
		UserAgent:     "survivor-test",
	}, logger.Nop())
	c.retryDelay = time.Millisecond
	return c
}

func TestPhishNetClient_API(t *testing.T) {
	t.Run("by date uses setlistdata html", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v5/setlists/showdate/2026-07-10.json", r.URL.Path)
			assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
			assert.Equal(t, "json", r.URL.Query().Get("format"))
			assert.Equal(t, "survivor-test", r.Header.Get("User-Agent"))
			fmt.Fprint(w, `{"error": false, "error_message": "", "data": [{
				"setlistdata": "<p><span class='set-label'>Set 1</span>: <a href='/song/tweezer'>Tweezer</a> &gt; <a>Reba</a></p><p><span class='set-label'>Encore</span>: <a>Tweezer Reprise</a></p>"
			}]}`)
		}))
		defer srv.Close()

		text, err := newTestPhishNetClient(srv.URL).GetSetlistByDate(context.Background(), "2026-07-10")
		require.NoError(t, err)
		assert.Equal(t, "Set 1: Tweezer > Reba, Encore: Tweezer Reprise", text)
	})

	t.Run("by show id accepts a single record and song rows", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v5/shows/1700000001.json":
				fmt.Fprint(w, `{"error": 0, "data": {"setlistdata": "Chalk Dust Torture, Possum"}}`)
			case "/v5/shows/1700000002.json":
				fmt.Fprint(w, `{"error": false, "data": [
					{"song": "Mike's Song", "trans_mark": " > "},
					{"song": "I Am Hydrogen", "trans_mark": " > "},
					{"song": "Weekapaug Groove", "trans_mark": ", "}
				]}`)
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()
		c := newTestPhishNetClient(srv.URL)

		text, err := c.GetShowByID(context.Background(), "1700000001")
		require.NoError(t, err)
		assert.Equal(t, "Chalk Dust Torture, Possum", text)

		text, err = c.GetShowByID(context.Background(), "1700000002")
		require.NoError(t, err)
		assert.Equal(t, "Mike's Song > I Am Hydrogen > Weekapaug Groove", text)
	})

	t.Run("empty data is not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error": false, "data": []}`)
		}))
		defer srv.Close()

		text, err := newTestPhishNetClient(srv.URL).GetSetlistByDate(context.Background(), "2026-07-10")
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("error flag in the body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error": true, "error_message": "invalid api key", "data": []}`)
		}))
		defer srv.Close()

		_, err := newTestPhishNetClient(srv.URL).GetSetlistByDate(context.Background(), "2026-07-10")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProviderError)
		assert.Contains(t, err.Error(), "invalid api key")
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			fmt.Fprint(w, `{"error": false, "data": [{"setlistdata": "Tweezer"}]}`)
		}))
		defer srv.Close()

		text, err := newTestPhishNetClient(srv.URL).GetSetlistByDate(context.Background(), "2026-07-10")
		require.NoError(t, err)
		assert.Equal(t, "Tweezer", text)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("client errors are final", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "nope")
		}))
		defer srv.Close()

		_, err := newTestPhishNetClient(srv.URL).GetSetlistByDate(context.Background(), "2026-07-10")
		var statusErr *ProviderStatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
		assert.False(t, statusErr.Temporary())
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("missing api key", func(t *testing.T) {
		c := NewPhishNetClient(config.ProviderConfig{BaseURL: "http://127.0.0.1:1"}, logger.Nop())
		_, err := c.GetSetlistByDate(context.Background(), "2026-07-10")
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	})
}

func TestPhishNetClient_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/setlists/", r.URL.Path)
		if r.URL.Query().Get("d") != "2026-07-10" {
			fmt.Fprint(w, `<html><body><p>No setlist</p></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body><div class="setlist-body">
			<p><span class="set-label">Set 1</span>:
			<a href="/song/tweezer">Tweezer</a> &gt;
			<a href="/song/reba">Reba</a>,
			<a href="/song/possum">Possum</a></p>
			<p><span class="set-label">Encore</span>:
			<a href="/song/loving-cup">Loving Cup</a></p>
		</div></body></html>`)
	}))
	defer srv.Close()
	c := newTestPhishNetClient(srv.URL)

	text, err := c.ScrapeSetlistHTML(context.Background(), "2026-07-10")
	require.NoError(t, err)
	assert.Equal(t, "Tweezer > Reba > Possum > Loving Cup", text)

	text, err = c.ScrapeSetlistHTML(context.Background(), "2026-07-11")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestRedactedPath(t *testing.T) {
	assert.Equal(t, "api.phish.net/v5/setlists/showdate/2026-07-10.json",
		redactedPath("https://api.phish.net/v5/setlists/showdate/2026-07-10.json?apikey=secret&format=json"))
}

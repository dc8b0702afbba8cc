package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"setlist-survivor/config"
	"setlist-survivor/logger"
	"setlist-survivor/utils"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrMissingAPIKey = errors.New("phish.net API key is not configured")
	ErrProviderError = errors.New("phish.net returned an error response")
)

const scrapeSelector = ".setlist-body a, .setlist-body span, .setlist-body li.setlist-song"

var (
	trailingDelimiters = regexp.MustCompile(`[>|,]+$`)
	scrapedLabel       = regexp.MustCompile(`(?i)^(set\s*(\d+|[iv]+)|encore)\s*:?$`)
)

// ProviderStatusError is a non-200 answer from the setlist provider.
type ProviderStatusError struct {
	StatusCode int
	Body       string
}

func (e *ProviderStatusError) Error() string {
	return fmt.Sprintf("setlist provider returned %d: %s", e.StatusCode, e.Body)
}

func (e *ProviderStatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// PhishNetClient reads setlists from the phish.net v5 API and falls back to the
// public setlist pages.
type PhishNetClient struct {
	baseURL       string
	scrapeBaseURL string
	apiKey        string
	userAgent     string
	maxRetries    int
	retryDelay    time.Duration
	httpClient    *http.Client
	log           *logger.Logger
}

func NewPhishNetClient(cfg config.ProviderConfig, log *logger.Logger) *PhishNetClient {
	return &PhishNetClient{
		baseURL:       cfg.BaseURL,
		scrapeBaseURL: cfg.ScrapeBaseURL,
		apiKey:        cfg.APIKey,
		userAgent:     cfg.UserAgent,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    500 * time.Millisecond,
		httpClient:    utils.NewHTTPClient(cfg.Timeout),
		log:           log,
	}
}

type phishNetResponse struct {
	Error        json.RawMessage `json:"error"`
	ErrorMessage string          `json:"error_message"`
	Data         json.RawMessage `json:"data"`
}

type setlistRecord struct {
	SetlistData string `json:"setlistdata"`
	Song        string `json:"song"`
	TransMark   string `json:"trans_mark"`
}

func (c *PhishNetClient) GetShowByID(ctx context.Context, externalID string) (string, error) {
	records, err := c.getSetlistRecords(ctx, fmt.Sprintf("shows/%s.json", url.PathEscape(externalID)))
	if err != nil {
		return "", err
	}
	return recordsToText(records)
}

func (c *PhishNetClient) GetSetlistByDate(ctx context.Context, date string) (string, error) {
	records, err := c.getSetlistRecords(ctx, fmt.Sprintf("setlists/showdate/%s.json", url.PathEscape(date)))
	if err != nil {
		return "", err
	}
	return recordsToText(records)
}

// ScrapeSetlistHTML reads the public setlist page for date and rebuilds a
// "Song > Song" string from it. An empty string means the page had no setlist.
func (c *PhishNetClient) ScrapeSetlistHTML(ctx context.Context, date string) (string, error) {
	base, err := url.Parse(c.scrapeBaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid scrape base URL '%s': %w", c.scrapeBaseURL, err)
	}
	pageURL := base.JoinPath("setlists/")
	q := pageURL.Query()
	q.Set("d", date)
	pageURL.RawQuery = q.Encode()

	var text string
	err = c.getWithRetry(ctx, pageURL.String(), func(body io.Reader) error {
		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			return fmt.Errorf("failed to parse setlist page: %w", err)
		}
		text = extractScrapedSetlist(doc)
		return nil
	})
	return text, err
}

func (c *PhishNetClient) getSetlistRecords(ctx context.Context, endpoint string) ([]setlistRecord, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid phish.net base URL '%s': %w", c.baseURL, err)
	}
	endpointURL := base.JoinPath(endpoint)
	q := endpointURL.Query()
	q.Set("apikey", c.apiKey)
	q.Set("format", "json")
	endpointURL.RawQuery = q.Encode()

	var response phishNetResponse
	err = c.getWithRetry(ctx, endpointURL.String(), func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&response)
	})
	if err != nil {
		return nil, err
	}

	if isErrorFlag(response.Error) {
		msg := response.ErrorMessage
		if msg == "" {
			msg = strings.Trim(string(response.Error), `"`)
		}
		return nil, fmt.Errorf("%w (%s): %s", ErrProviderError, endpoint, msg)
	}

	return decodeRecords(response.Data)
}

// getWithRetry issues a GET and hands a 200 body to handle. Network errors, 5xx and
// 429 answers are retried with a linear backoff.
func (c *PhishNetClient) getWithRetry(ctx context.Context, rawURL string, handle func(io.Reader) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		retry, err := c.get(ctx, rawURL, handle)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		c.log.Warn("[PHISHNET] request failed, retrying",
			"path", redactedPath(rawURL),
			"attempt", attempt+1,
			"error", err,
		)
	}
	return lastErr
}

func (c *PhishNetClient) get(ctx context.Context, rawURL string, handle func(io.Reader) error) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request to %s: %w", redactedPath(rawURL), err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("request to %s failed: %w", redactedPath(rawURL), err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := &ProviderStatusError{StatusCode: resp.StatusCode, Body: string(body)}
		return statusErr.Temporary(), statusErr
	}

	return false, handle(resp.Body)
}

// isErrorFlag reads phish.net's "error" field, which is a bool in v5 and a string or
// number in older payloads.
func isErrorFlag(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "false", "null", `""`, "0":
		return false
	}
	return true
}

// decodeRecords accepts "data" as an array of records or as a single record.
func decodeRecords(raw json.RawMessage) ([]setlistRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var records []setlistRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("failed to decode setlist records: %w", err)
		}
		return records, nil
	}
	var record setlistRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode setlist record: %w", err)
	}
	return []setlistRecord{record}, nil
}

// recordsToText uses the first record's setlistdata. When the payload is one row per
// song instead, the rows are joined with their transition marks.
func recordsToText(records []setlistRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	if strings.TrimSpace(records[0].SetlistData) != "" {
		return htmlToSetlistText(records[0].SetlistData)
	}

	var b strings.Builder
	for i, r := range records {
		song := strings.TrimSpace(r.Song)
		if song == "" {
			continue
		}
		b.WriteString(song)
		if i == len(records)-1 {
			break
		}
		if mark := r.TransMark; strings.TrimSpace(mark) != "" {
			b.WriteString(mark)
		} else {
			b.WriteString(", ")
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// htmlToSetlistText strips markup from setlistdata. Each <p> is one set.
func htmlToSetlistText(raw string) (string, error) {
	if !strings.Contains(raw, "<") {
		return strings.TrimSpace(raw), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse setlistdata: %w", err)
	}

	var sets []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			sets = append(sets, text)
		}
	})
	if len(sets) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(sets, ", "), nil
}

func extractScrapedSetlist(doc *goquery.Document) string {
	var texts []string
	doc.Find(scrapeSelector).Each(func(_ int, s *goquery.Selection) {
		cleaned := strings.TrimSpace(trailingDelimiters.ReplaceAllString(strings.TrimSpace(s.Text()), ""))
		if cleaned == "" || scrapedLabel.MatchString(cleaned) {
			return
		}
		// <a><span>Title</span></a> matches twice
		if n := len(texts); n > 0 && texts[n-1] == cleaned {
			return
		}
		texts = append(texts, cleaned)
	})
	return strings.Join(texts, " > ")
}

// redactedPath drops the query string so API keys never reach the logs.
func redactedPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Host + u.Path
}

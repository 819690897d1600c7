package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/attendsync/attendsync/internal/schema"
)

const (
	DefaultAPIURL      = "https://api.github.com"
	DefaultFilename    = "asistencias.json"
	DefaultDescription = "Attendance records"
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
)

// maxBody caps how much of a response is read.
const maxBody = 64 << 20

// Source supplies the data a push sends and the configuration both
// operations use. *store.Store satisfies it.
type Source interface {
	SyncConfig(ctx context.Context) (schema.SyncConfig, error)
	Dataset(ctx context.Context) (*schema.Dataset, error)
}

// Config tunes the client. Zero fields take the defaults above.
type Config struct {
	APIURL      string
	Filename    string
	Description string

	// MaxAttempts bounds the attempts per operation.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt; it doubles
	// after each further failure.
	BaseDelay time.Duration

	HTTPClient *http.Client
	Sleeper    Sleeper
	Logger     *log.Logger
	Now        func() time.Time
}

func (c Config) withDefaults() Config {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.Filename == "" {
		c.Filename = DefaultFilename
	}
	if c.Description == "" {
		c.Description = DefaultDescription
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Sleeper == nil {
		c.Sleeper = RealSleeper
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Client talks to the GitHub Gist API. It implements Remote.
type Client struct {
	src Source
	cfg Config
}

var _ Remote = (*Client)(nil)

// New creates a client reading data and configuration from src.
func New(src Source, cfg Config) *Client {
	return &Client{src: src, cfg: cfg.withDefaults()}
}

type gistFile struct {
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
	RawURL    string `json:"raw_url,omitempty"`
}

type gistBody struct {
	Description string              `json:"description,omitempty"`
	Files       map[string]gistFile `json:"files"`
}

// Push implements Remote.Push.
func (c *Client) Push(ctx context.Context) (Result, error) {
	sc, err := c.src.SyncConfig(ctx)
	if err != nil {
		return c.result(0, err), err
	}
	if !sc.Enabled() {
		return c.skipped(), nil
	}

	ds, err := c.src.Dataset(ctx)
	if err != nil {
		return c.result(0, err), err
	}
	content, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return c.result(0, err), fmt.Errorf("failed to encode dataset: %w", err)
	}
	body, err := json.Marshal(gistBody{
		Description: c.cfg.Description,
		Files:       map[string]gistFile{c.cfg.Filename: {Content: string(content)}},
	})
	if err != nil {
		return c.result(0, err), fmt.Errorf("failed to encode request: %w", err)
	}

	attempts, err := c.retry(ctx, "push", func(ctx context.Context) error {
		_, err := c.do(ctx, http.MethodPatch, c.documentURL(sc), sc.Credential, body)
		return err
	})
	if err == nil {
		c.cfg.Logger.Printf("Pushed %d workers and %d evidence records to %s",
			len(ds.Workers), len(ds.EvidenceRecords), sc.DocumentID)
	}
	return c.result(attempts, err), err
}

// Pull implements Remote.Pull.
func (c *Client) Pull(ctx context.Context) (*schema.Dataset, Result, error) {
	sc, err := c.src.SyncConfig(ctx)
	if err != nil {
		return nil, c.result(0, err), err
	}
	if !sc.Enabled() {
		return nil, c.skipped(), nil
	}

	var content []byte
	found := false
	attempts, err := c.retry(ctx, "pull", func(ctx context.Context) error {
		raw, err := c.do(ctx, http.MethodGet, c.documentURL(sc), sc.Credential, nil)
		if err != nil {
			return err
		}
		var g gistBody
		if err := json.Unmarshal(raw, &g); err != nil {
			return fmt.Errorf("%w: malformed gist response: %v", schema.ErrRemoteTransient, err)
		}
		f, ok := g.Files[c.cfg.Filename]
		if !ok {
			found = false
			return nil
		}
		found = true
		if f.Truncated && f.RawURL != "" {
			content, err = c.do(ctx, http.MethodGet, f.RawURL, sc.Credential, nil)
			return err
		}
		content = []byte(f.Content)
		return nil
	})
	if err != nil {
		return nil, c.result(attempts, err), err
	}

	ds := &schema.Dataset{}
	if found && len(bytes.TrimSpace(content)) > 0 {
		if err := json.Unmarshal(content, ds); err != nil {
			err = fmt.Errorf("%w: remote %s is not a dataset: %v", schema.ErrRemoteSyncFailed, c.cfg.Filename, err)
			return nil, c.result(attempts, err), err
		}
	}
	ds.Normalize()
	if err := ds.Validate(); err != nil {
		err = fmt.Errorf("%w: remote dataset rejected: %v", schema.ErrRemoteSyncFailed, err)
		return nil, c.result(attempts, err), err
	}

	c.cfg.Logger.Printf("Pulled %d workers and %d evidence records from %s",
		len(ds.Workers), len(ds.EvidenceRecords), sc.DocumentID)
	return ds, c.result(attempts, nil), nil
}

func (c *Client) documentURL(sc schema.SyncConfig) string {
	return c.cfg.APIURL + "/gists/" + strings.TrimSpace(sc.DocumentID)
}

// retry runs fn until it succeeds, fails permanently or the attempt budget
// is spent. It returns the number of attempts made.
func (c *Client) retry(ctx context.Context, op string, fn func(context.Context) error) (int, error) {
	var last error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		if !IsRetryable(err) {
			return attempt + 1, err
		}
		last = err

		delay := c.cfg.BaseDelay << attempt
		c.cfg.Logger.Printf("%s attempt %d/%d failed: %v (waiting %s)", op, attempt+1, c.cfg.MaxAttempts, err, delay)
		if err := c.cfg.Sleeper.Sleep(ctx, delay); err != nil {
			return attempt + 1, fmt.Errorf("%w: %s interrupted after %d attempts: %w", schema.ErrRemoteSyncFailed, op, attempt+1, err)
		}
	}
	return c.cfg.MaxAttempts, fmt.Errorf("%w: %s gave up after %d attempts: %w", schema.ErrRemoteSyncFailed, op, c.cfg.MaxAttempts, last)
}

// do performs one HTTP request and classifies the outcome.
func (c *Client) do(ctx context.Context, method, url, token string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", schema.ErrRemoteTransient, method, url, err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", schema.ErrRemoteTransient, err)
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", schema.ErrRemoteNotFound, method, url)
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s %s returned %s: %s", schema.ErrRemoteTransient, method, url, res.Status, snippet(b))
	}
	return b, nil
}

func (c *Client) result(attempts int, err error) Result {
	r := Result{Status: StatusOK, Attempts: attempts, At: c.cfg.Now().UTC()}
	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()
	}
	return r
}

func (c *Client) skipped() Result {
	return Result{Status: StatusSkipped, At: c.cfg.Now().UTC()}
}

// IsRetryable reports whether err is a transient remote failure worth
// another attempt.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, schema.ErrRemoteNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, schema.ErrRemoteTransient)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

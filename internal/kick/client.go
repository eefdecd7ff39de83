package kick

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"kickbot/internal/channel"
	logx "kickbot/pkg/logx"
)

const (
	DefaultBaseURL   = "https://kick.com/api/v2/channels/"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	maxBodyBytes     = 2 << 20
)

var (
	ErrNotFound    = errors.New("kick: channel not found")
	ErrUnavailable = errors.New("kick: api unavailable")
	ErrNoClient    = errors.New("kick: client not initialized")
)

type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	// BulkTimeout caps one BulkStatus call. 0 means only the caller's deadline applies.
	BulkTimeout    time.Duration
	Concurrency    int
	RetryAttempts  int
	RetryDelay     time.Duration
	UserAgent      string
}

// Channel is the identity returned by LookupChannel.
type Channel struct {
	Key         string
	DisplayName string
}

// Status is the current liveness of one channel. Empty Title/Category mean none.
type Status struct {
	Live     bool
	Title    string
	Category string
}

type Client struct {
	http *http.Client
	base *url.URL
	cfg  Config
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("kick base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("kick base url: unsupported scheme %q", base.Scheme)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("kick cookie jar: %w", err)
	}
	return &Client{
		http: &http.Client{Timeout: cfg.RequestTimeout, Jar: jar},
		base: base,
		cfg:  cfg,
		log:  log,
	}, nil
}

// channelPayload is the subset of the channel API response we read.
// livestream is null while the channel is offline.
type channelPayload struct {
	Slug string `json:"slug"`
	User *struct {
		Username string `json:"username"`
	} `json:"user"`
	Livestream *struct {
		IsLive       *bool  `json:"is_live"`
		SessionTitle string `json:"session_title"`
		Categories   []struct {
			Name string `json:"name"`
		} `json:"categories"`
	} `json:"livestream"`
}

func (p *channelPayload) status() Status {
	ls := p.Livestream
	if ls == nil || (ls.IsLive != nil && !*ls.IsLive) {
		return Status{}
	}
	st := Status{Live: true, Title: strings.TrimSpace(ls.SessionTitle)}
	if len(ls.Categories) > 0 {
		st.Category = strings.TrimSpace(ls.Categories[0].Name)
	}
	return st
}

// LookupChannel validates that a channel exists and returns its canonical key
// and display name.
func (c *Client) LookupChannel(ctx context.Context, raw string) (Channel, error) {
	if c == nil || c.http == nil {
		return Channel{}, ErrNoClient
	}
	key, err := channel.Key(raw)
	if err != nil {
		return Channel{}, err
	}
	p, err := c.fetch(ctx, key)
	if err != nil {
		return Channel{}, err
	}

	out := Channel{Key: key, DisplayName: key}
	if slug := strings.TrimSpace(p.Slug); slug != "" {
		out.Key = channel.MustKey(slug)
	}
	if p.User != nil && strings.TrimSpace(p.User.Username) != "" {
		out.DisplayName = strings.TrimSpace(p.User.Username)
	}
	return out, nil
}

// Status fetches the current status of one channel.
func (c *Client) Status(ctx context.Context, key string) (Status, error) {
	if c == nil || c.http == nil {
		return Status{}, ErrNoClient
	}
	p, err := c.fetch(ctx, channel.MustKey(key))
	if err != nil {
		return Status{}, err
	}
	return p.status(), nil
}

func (c *Client) fetch(ctx context.Context, key string) (*channelPayload, error) {
	u := c.base.JoinPath(key).String()

	var (
		payload  *channelPayload
		notFound bool
		lastErr  error
	)
	err := retry.Do(
		func() error {
			p, err := c.get(ctx, u)
			if errors.Is(err, ErrNotFound) {
				notFound = true
				return retry.Unrecoverable(err)
			}
			if err != nil {
				lastErr = err
				return err
			}
			payload = p
			return nil
		},
		retry.Attempts(uint(c.cfg.RetryAttempts)),
		retry.Delay(c.cfg.RetryDelay),
		retry.MaxDelay(5*c.cfg.RetryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("kick request retry", logx.String("channel", key), logx.Int("attempt", int(n)+1), logx.Err(err))
		}),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, errMalformed)
		}),
	)
	switch {
	case notFound:
		return nil, ErrNotFound
	case err == nil && payload != nil:
		return payload, nil
	case lastErr != nil:
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, key, lastErr)
	default:
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, key, err)
	}
}

var errMalformed = errors.New("malformed payload")

func (c *Client) get(ctx context.Context, u string) (*channelPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Trace("kick request",
		logx.String("url", u),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	var p channelPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if strings.TrimSpace(p.Slug) == "" && p.User == nil {
		return nil, fmt.Errorf("%w: missing slug", errMalformed)
	}
	return &p, nil
}

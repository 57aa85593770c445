// Package amap is a small client for the AMap (高德) web service API.
package amap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://restapi.amap.com"

var (
	ErrNoAPIKey = errors.New("amap: api key not configured")
	ErrNoResult = errors.New("amap: no result")
)

type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration // first backoff interval
	Logger     *slog.Logger
}

type Client struct {
	http       *resty.Client
	key        string
	maxRetries uint64
	retryWait  time.Duration
	logger     *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Accept", "application/json").
			SetTimeout(cfg.Timeout),
		key:        cfg.APIKey,
		maxRetries: uint64(cfg.MaxRetries),
		retryWait:  cfg.RetryWait,
		logger:     cfg.Logger,
	}
}

// envelope is the status header every AMap response carries.
type envelope struct {
	Status   string `json:"status"`
	Info     string `json:"info"`
	Infocode string `json:"infocode"`
}

// get calls path with params plus the API key and decodes the body into
// out. Transport errors, 5xx and 429 are retried with exponential backoff;
// API-level failures are not.
func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	if c.key == "" {
		return ErrNoAPIKey
	}
	query := make(map[string]string, len(params)+2)
	for k, v := range params {
		query[k] = v
	}
	query["key"] = c.key
	query["output"] = "JSON"

	op := func() error {
		resp, err := c.http.R().SetContext(ctx).SetQueryParams(query).Get(path)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("amap request failed, will retry", "path", path, "err", err)
			return fmt.Errorf("amap %s: %w", path, err)
		}
		code := resp.StatusCode()
		if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
			c.logger.Warn("amap server error, will retry", "path", path, "status", code)
			return fmt.Errorf("amap %s: HTTP %d", path, code)
		}
		if code != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("amap %s: HTTP %d: %s", path, code, resp.String()))
		}

		var env envelope
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return backoff.Permanent(fmt.Errorf("amap %s: decode: %w", path, err))
		}
		if env.Status != "1" {
			return backoff.Permanent(fmt.Errorf("amap %s: %s (infocode %s)", path, env.Info, env.Infocode))
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return backoff.Permanent(fmt.Errorf("amap %s: decode: %w", path, err))
		}
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryWait
	exp.Multiplier = 2
	exp.Reset()
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(exp, c.maxRetries), ctx))
}

// flexString decodes a JSON string or number, and treats the empty arrays
// AMap sends in place of missing strings as "".
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '[', '{':
		*f = ""
	default:
		*f = flexString(b)
	}
	return nil
}

func (f flexString) String() string { return string(f) }

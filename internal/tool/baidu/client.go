// Package baidu wraps the Baidu AI image-recognition endpoints used for
// travel photos.
package baidu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://aip.baidubce.com"

var (
	ErrNotConfigured = errors.New("baidu: api key and secret key are required")
	ErrNoImage       = errors.New("baidu: empty image")
)

type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Client recognizes landmarks. Access tokens are fetched on first use and
// cached until shortly before they expire.
type Client struct {
	http      *resty.Client
	apiKey    string
	secretKey string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		http:      resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(cfg.Timeout),
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Configured reports whether both credentials are set.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.secretKey != ""
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	var tr tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.apiKey,
			"client_secret": c.secretKey,
		}).
		Get("/oauth/2.0/token")
	if err != nil {
		return "", fmt.Errorf("baidu token: %w", err)
	}
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return "", fmt.Errorf("baidu token: HTTP %d: decode: %w", resp.StatusCode(), err)
	}
	if tr.AccessToken == "" {
		reason := tr.ErrorDescription
		if reason == "" {
			reason = fmt.Sprintf("HTTP %d", resp.StatusCode())
		}
		return "", fmt.Errorf("baidu token: %s", reason)
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.token = tr.AccessToken
	c.expires = c.now().Add(ttl - time.Minute)
	c.logger.Debug("baidu access token refreshed", "ttl", ttl)
	return c.token, nil
}

// Landmark is a recognized landmark. Name is empty when nothing was found.
type Landmark struct {
	Name  string `json:"landmark"`
	LogID int64  `json:"log_id,omitempty"`
}

type landmarkResponse struct {
	LogID     int64  `json:"log_id"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Result    struct {
		Landmark string `json:"landmark"`
	} `json:"result"`
}

// RecognizeLandmark identifies the landmark in image, which may be raw
// base64, a data URL, or an http(s) URL.
func (c *Client) RecognizeLandmark(ctx context.Context, image string) (Landmark, error) {
	form, err := imageForm(image)
	if err != nil {
		return Landmark{}, err
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return Landmark{}, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", token).
		SetFormData(form).
		Post("/rest/2.0/image-classify/v1/landmark")
	if err != nil {
		return Landmark{}, fmt.Errorf("baidu landmark: %w", err)
	}
	var lr landmarkResponse
	if err := json.Unmarshal(resp.Body(), &lr); err != nil {
		return Landmark{}, fmt.Errorf("baidu landmark: HTTP %d: decode: %w", resp.StatusCode(), err)
	}
	if lr.ErrorCode != 0 {
		if lr.ErrorCode == 110 || lr.ErrorCode == 111 {
			c.invalidate()
		}
		return Landmark{}, fmt.Errorf("baidu landmark: %s (error_code %d)", lr.ErrorMsg, lr.ErrorCode)
	}
	return Landmark{Name: lr.Result.Landmark, LogID: lr.LogID}, nil
}

// invalidate drops the cached token after the API rejects it.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func imageForm(image string) (map[string]string, error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return nil, ErrNoImage
	}
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return map[string]string{"url": image}, nil
	}
	return map[string]string{"image": StripDataURL(image)}, nil
}

// StripDataURL removes a "data:<mime>;base64," prefix.
func StripDataURL(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}

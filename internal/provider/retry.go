package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxRetries = 3
	defaultRetryWait  = time.Second
)

// retryPolicy controls how a request that fails transiently is retried.
type retryPolicy struct {
	maxRetries int
	wait       time.Duration
}

// statusError is a non-200 reply.
type statusError struct {
	statusCode int
	body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.body)
}

// doWithRetry sends the request built by buildReq and returns the response
// once it answers 200. Network failures, 5xx and 429 are retried with
// exponential backoff and jitter; other statuses fail at once. The caller
// owns the returned body.
func doWithRetry(ctx context.Context, client *http.Client, policy retryPolicy, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var resp *http.Response
	attempt := 0

	op := func() error {
		attempt++
		req, err := buildReq()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		r, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			logger.Warn("request failed, will retry", "attempt", attempt, "err", err)
			return err
		}
		if r.StatusCode == http.StatusOK {
			resp = r
			return nil
		}

		body, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
		r.Body.Close()
		serr := &statusError{statusCode: r.StatusCode, body: string(body)}
		if r.StatusCode >= http.StatusInternalServerError || r.StatusCode == http.StatusTooManyRequests {
			logger.Warn("server error, will retry", "attempt", attempt, "status", r.StatusCode)
			return serr
		}
		return backoff.Permanent(serr)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.wait
	exp.MaxElapsedTime = 0
	exp.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(max(policy.maxRetries, 0))), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if attempt > 1 {
			return nil, fmt.Errorf("request failed after %d attempts: %w", attempt, err)
		}
		return nil, err
	}
	return resp, nil
}

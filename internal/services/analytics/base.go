package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	xhttp "EconPulse/pkg/http"
)

// HTTPServiceBase centralizes client construction and JSON POSTs for the
// HTTP-backed scorers.
type HTTPServiceBase struct {
	baseURL string
	headers map[string]string
	client  *xhttp.Client
}

func NewHTTPServiceBase(baseURL string, timeout time.Duration, headers map[string]string) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: baseURL,
		headers: headers,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("analytics http client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + path,
		Headers: b.headers,
		Body:    payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries server errors and transport failures with a
// linear backoff. Client errors, 429 included, return immediately.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}, attempts int) error {
	var err error
	for i := 1; ; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil || i >= attempts || !retryable(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * 200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func retryable(err error) bool {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func isRateLimit(err error) bool {
	var se *xhttp.StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

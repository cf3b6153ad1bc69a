package syncer

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ImageChecker verifies image URLs with HEAD requests.
type ImageChecker struct {
	client *resty.Client
}

// NewImageChecker creates a checker with the given per-request timeout.
func NewImageChecker(timeout time.Duration) *ImageChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &ImageChecker{client: client}
}

// Verify reports whether url answers a HEAD request successfully with an
// image content type.
func (c *ImageChecker) Verify(ctx context.Context, url string) bool {
	resp, err := c.client.R().SetContext(ctx).Head(url)
	if err != nil {
		return false
	}
	return resp.IsSuccess() && strings.HasPrefix(resp.Header().Get("Content-Type"), "image/")
}

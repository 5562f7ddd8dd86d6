package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Confirmer completes an SNS subscription handshake.
type Confirmer interface {
	Confirm(ctx context.Context, subscribeURL string) error
}

// HTTPConfirmer visits SubscribeURL. Only https URLs on an allowed host
// suffix are followed.
type HTTPConfirmer struct {
	client       *http.Client
	allowedHosts []string
}

func NewHTTPConfirmer(timeout time.Duration) *HTTPConfirmer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPConfirmer{
		client:       &http.Client{Timeout: timeout},
		allowedHosts: []string{".amazonaws.com", ".amazonaws.com.cn"},
	}
}

func (c *HTTPConfirmer) Confirm(ctx context.Context, subscribeURL string) error {
	u, err := url.Parse(strings.TrimSpace(subscribeURL))
	if err != nil {
		return fmt.Errorf("parse subscribe url: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("subscribe url must use https, got %q", u.Scheme)
	}
	if !c.hostAllowed(u.Hostname()) {
		return fmt.Errorf("subscribe url host %q is not allowed", u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("subscribe url returned %s", resp.Status)
	}
	return nil
}

func (c *HTTPConfirmer) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range c.allowedHosts {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

package genius

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"lyrsync/pkg/ratelimit"
)

// Client talks to the genius.com search API and fetches lyric pages.
type Client struct {
	client    *http.Client
	debug     bool
	ratelimit ratelimit.Lock
	token     string
}

type Config struct {
	Token  string
	Wait   time.Duration
	Debug  bool
	Client *http.Client
}

func New(cfg *Config) *Client {
	wait := cfg.Wait
	if wait == 0 {
		wait = 500 * time.Millisecond
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 20 * time.Second,
		}
	}
	return &Client{
		client:    client,
		debug:     cfg.Debug,
		ratelimit: ratelimit.New(wait),
		token:     cfg.Token,
	}
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

type errStatusCode int

func (e errStatusCode) Error() string {
	return fmt.Sprintf("%d", e)
}

var backoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
}

func (c *Client) do(ctx context.Context, method, u string, out any) ([]byte, error) {
	maxAttempts := 3
	attempts := 0
	var err error
	for {
		if err != nil {
			c.log("genius: retrying %s: %v", u, err)
		}
		var b []byte
		b, err = c.doAttempt(ctx, method, u, out)
		if err == nil {
			return b, nil
		}
		attempts++
		if attempts >= maxAttempts {
			return nil, err
		}
		// Retry timeouts right away.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}
		// Retry transient status codes after a short wait.
		var errStatus errStatusCode
		if !errors.As(err, &errStatus) {
			return nil, err
		}
		switch int(errStatus) {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		default:
			return nil, err
		}
		idx := attempts - 1
		if idx >= len(backoff) {
			idx = len(backoff) - 1
		}
		t := time.NewTimer(backoff[idx])
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) doAttempt(ctx context.Context, method, u string, out any) ([]byte, error) {
	c.log("genius: do %s %s", method, u)
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("genius: couldn't create request: %w", err)
	}
	req.Header.Set("accept", "*/*")
	req.Header.Set("user-agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	if c.token != "" {
		req.Header.Set("authorization", fmt.Sprintf("Bearer %s", c.token))
	}

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genius: couldn't %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("genius: couldn't read response body: %w", err)
	}
	c.log("genius: response %s %s %d", method, u, resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("genius: %s %s returned: %w", method, u, errStatusCode(resp.StatusCode))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("genius: couldn't unmarshal response body (%T): %w", out, err)
		}
	}
	return respBody, nil
}

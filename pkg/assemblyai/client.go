package assemblyai

import (
	"bytes"
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

// Client is a minimal client for the AssemblyAI transcription API, covering
// only the submit/poll surface with word-level timestamps.
type Client struct {
	client       *http.Client
	debug        bool
	ratelimit    ratelimit.Lock
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

type Config struct {
	APIKey       string
	BaseURL      string
	Wait         time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
	Debug        bool
	Client       *http.Client
}

func New(cfg *Config) *Client {
	wait := cfg.Wait
	if wait == 0 {
		wait = 500 * time.Millisecond
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 25 * time.Second,
		}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.assemblyai.com/v2"
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 3 * time.Second
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout == 0 {
		pollTimeout = 5 * time.Minute
	}
	return &Client{
		client:       client,
		debug:        cfg.Debug,
		ratelimit:    ratelimit.New(wait),
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
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
	3 * time.Second,
	10 * time.Second,
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	maxAttempts := 3
	attempts := 0
	var err error
	for {
		if err != nil {
			c.log("assemblyai: retrying %s: %v", path, err)
		}
		var b []byte
		b, err = c.doAttempt(ctx, method, path, in, out)
		if err == nil {
			return b, nil
		}
		attempts++
		if attempts >= maxAttempts {
			return nil, err
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}
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

func (c *Client) doAttempt(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("assemblyai: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	u := fmt.Sprintf("%s/%s", c.baseURL, path)
	c.log("assemblyai: do %s %s", method, u)
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: couldn't create request: %w", err)
	}
	req.Header.Set("authorization", c.apiKey)
	req.Header.Set("content-type", "application/json")

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: couldn't %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: couldn't read response body: %w", err)
	}
	c.log("assemblyai: response %s %s %d", method, u, resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMessage := string(respBody)
		if len(errMessage) > 100 {
			errMessage = errMessage[:100] + "..."
		}
		return nil, fmt.Errorf("assemblyai: %s %s returned (%s): %w", method, u, errMessage, errStatusCode(resp.StatusCode))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("assemblyai: couldn't unmarshal response body (%T): %w", out, err)
		}
	}
	return respBody, nil
}

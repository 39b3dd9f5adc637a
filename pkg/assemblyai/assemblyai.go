package assemblyai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Word is a transcript word with millisecond timestamps.
type Word struct {
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the state of a transcription job.
type Transcript struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Words  []Word `json:"words"`
	Error  string `json:"error"`
}

// ErrPollTimeout is returned when a transcript doesn't complete within the
// polling budget.
var ErrPollTimeout = errors.New("assemblyai: transcript polling timed out")

type submitRequest struct {
	AudioURL string `json:"audio_url"`
}

// Submit queues a transcription job for a fetchable audio URL.
func (c *Client) Submit(ctx context.Context, audioURL string) (string, error) {
	var resp Transcript
	if _, err := c.do(ctx, http.MethodPost, "transcript", &submitRequest{AudioURL: audioURL}, &resp); err != nil {
		return "", fmt.Errorf("assemblyai: couldn't submit %s: %w", audioURL, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("assemblyai: submit returned no transcript id")
	}
	return resp.ID, nil
}

// Poll fetches the current state of a transcription job.
func (c *Client) Poll(ctx context.Context, id string) (*Transcript, error) {
	var resp Transcript
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("transcript/%s", id), nil, &resp); err != nil {
		return nil, fmt.Errorf("assemblyai: couldn't poll %s: %w", id, err)
	}
	return &resp, nil
}

// Transcribe submits an audio URL and polls until the transcript completes,
// fails, or the polling budget runs out.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (*Transcript, error) {
	id, err := c.Submit(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	c.log("assemblyai: submitted %s as %s", audioURL, id)

	deadline := time.Now().Add(c.pollTimeout)
	t := time.NewTicker(c.pollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
		transcript, err := c.Poll(ctx, id)
		if err != nil {
			return nil, err
		}
		switch transcript.Status {
		case "completed":
			return transcript, nil
		case "error":
			return nil, fmt.Errorf("assemblyai: transcript %s failed: %s", id, transcript.Error)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrPollTimeout, id)
		}
	}
}

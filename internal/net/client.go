package net

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/firerescue/viewer/internal/protocol"
	"go.uber.org/zap"
)

const maxBody = 32 << 20

// StatusError is a non-2xx response from the simulation server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("step: http %d", e.Code)
	}
	return fmt.Sprintf("step: http %d: %s", e.Code, e.Body)
}

// Client talks to the simulation server's /step endpoint.
type Client struct {
	url  string
	http *http.Client
	log  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		url:  strings.TrimRight(baseURL, "/") + "/step",
		http: &http.Client{Timeout: timeout},
		log:  log.Named("client"),
	}
}

// Step advances the simulation by one turn and returns the decoded batch
// together with the raw body it was decoded from.
func (c *Client) Step(ctx context.Context) (*protocol.Batch, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("step: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, nil, fmt.Errorf("step: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, raw, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(truncate(raw, 256)))}
	}
	b, err := protocol.Decode(raw)
	if err != nil {
		return nil, raw, fmt.Errorf("step: %w", err)
	}
	c.log.Debug("step received",
		zap.Int("turn", b.Turn),
		zap.Int("frames", len(b.Frames)),
		zap.Int("bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return b, raw, nil
}

// Retryable reports whether a Step error is worth retrying: network
// failures, timeouts, 429 and 5xx. Malformed bodies and other 4xx are not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

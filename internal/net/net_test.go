package net

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

const batchBody = `{"turn": 1, "total_frames": 1, "frames": [
  {"frame": 1, "turn": 1, "action": {"type": "end_of_turn"}}]}`

const finishedBody = `{"message": "Simulation finished", "step": 2}`

// script serves the given responses in order, repeating the last one.
func script(t *testing.T, codes []int, bodies []string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/step" {
			http.Error(rw, "not found", http.StatusNotFound)
			return
		}
		i := int(calls.Add(1)) - 1
		if i >= len(codes) {
			i = len(codes) - 1
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(codes[i])
		rw.Write([]byte(bodies[i]))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClientStep(t *testing.T) {
	srv, _ := script(t, []int{200}, []string{batchBody})
	c := NewClient(srv.URL+"/", time.Second, zaptest.NewLogger(t))

	b, raw, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if b.Turn != 1 || len(b.Frames) != 1 || string(raw) != batchBody {
		t.Fatalf("batch = %+v", b)
	}
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		body      string
		retryable bool
	}{
		{"server error", 503, "busy", true},
		{"rate limited", 429, "", true},
		{"bad request", 400, "nope", false},
		{"malformed body", 200, `{"frames": [`, false},
		{"schema violation", 200, `{"turn": 3}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := script(t, []int{tt.code}, []string{tt.body})
			c := NewClient(srv.URL, time.Second, zaptest.NewLogger(t))
			_, _, err := c.Step(context.Background())
			if err == nil {
				t.Fatal("Step succeeded")
			}
			if got := Retryable(err); got != tt.retryable {
				t.Fatalf("Retryable(%v) = %v, want %v", err, got, tt.retryable)
			}
		})
	}
}

func TestClientUnreachableIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := NewClient(url, time.Second, zaptest.NewLogger(t)).Step(context.Background())
	if err == nil || !Retryable(err) {
		t.Fatalf("err = %v, want retryable", err)
	}
}

func TestPollerRetriesThenStopsWhenFinished(t *testing.T) {
	srv, calls := script(t,
		[]int{503, 200, 200},
		[]string{"busy", batchBody, finishedBody},
	)
	p := NewPoller(NewClient(srv.URL, time.Second, zaptest.NewLogger(t)), PollerOptions{
		RetryBase:  time.Millisecond,
		RetryMax:   5 * time.Millisecond,
		MaxRetries: 3,
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go p.Run(ctx)

	var got []Result
	for res := range p.Results() {
		got = append(got, res)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[0].Err != nil || got[0].Batch.Turn != 1 {
		t.Fatalf("first = %+v", got[0])
	}
	if !got[1].Batch.Finished() {
		t.Fatalf("second = %+v", got[1])
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestPollerReportsExhaustedRetries(t *testing.T) {
	srv, _ := script(t, []int{500}, []string{"down"})
	p := NewPoller(NewClient(srv.URL, time.Second, zaptest.NewLogger(t)), PollerOptions{
		RetryBase:  time.Millisecond,
		RetryMax:   2 * time.Millisecond,
		MaxRetries: 2,
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	res := <-p.Results()
	var se *StatusError
	if !errors.As(res.Err, &se) || se.Code != 500 {
		t.Fatalf("err = %v, want http 500", res.Err)
	}
	cancel()
	for range p.Results() {
	}
}

func TestPollerStopsOnCancel(t *testing.T) {
	srv, _ := script(t, []int{200}, []string{batchBody})
	p := NewPoller(NewClient(srv.URL, time.Second, zaptest.NewLogger(t)), PollerOptions{
		Interval: time.Hour,
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	<-p.Results()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

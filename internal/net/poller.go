package net

import (
	"context"
	"errors"
	"time"

	"github.com/firerescue/viewer/internal/protocol"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Stepper fetches the next batch. *Client satisfies it.
type Stepper interface {
	Step(ctx context.Context) (*protocol.Batch, []byte, error)
}

// Result is one transport outcome handed to the game loop. Exactly one of
// Batch and Err is set.
type Result struct {
	Batch *protocol.Batch
	Raw   []byte
	Err   error
}

type PollerOptions struct {
	Interval   time.Duration // pause between successful steps
	RetryBase  time.Duration
	RetryMax   time.Duration // cap on a single backoff
	MaxRetries uint64
	Buffer     int
}

// Poller runs the request loop on its own goroutine and hands results to
// the game loop over a channel. A full channel blocks the poller, so the
// server is never stepped further ahead than the loop can apply.
type Poller struct {
	client Stepper
	opts   PollerOptions
	out    chan Result
	log    *zap.Logger
}

func NewPoller(client Stepper, opts PollerOptions, log *zap.Logger) *Poller {
	if opts.RetryBase <= 0 {
		opts.RetryBase = 250 * time.Millisecond
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 5 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 4
	}
	return &Poller{
		client: client,
		opts:   opts,
		out:    make(chan Result, opts.Buffer),
		log:    log.Named("poller"),
	}
}

// Results is closed when Run returns.
func (p *Poller) Results() <-chan Result { return p.out }

// Run polls until ctx is cancelled or the server reports the simulation
// finished.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.out)
	for {
		res := p.step(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case p.out <- res:
		case <-ctx.Done():
			return
		}
		if res.Batch != nil && res.Batch.Finished() {
			p.log.Info("simulation finished", zap.Int("step", *res.Batch.Step))
			return
		}

		wait := p.opts.Interval
		if res.Err != nil && wait < p.opts.RetryMax {
			wait = p.opts.RetryMax
		}
		if wait <= 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

func (p *Poller) step(ctx context.Context) Result {
	backoff := retry.NewExponential(p.opts.RetryBase)
	backoff = retry.WithCappedDuration(p.opts.RetryMax, backoff)
	backoff = retry.WithMaxRetries(p.opts.MaxRetries, backoff)

	var res Result
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		b, raw, err := p.client.Step(ctx)
		if err == nil {
			res = Result{Batch: b, Raw: raw}
			return nil
		}
		if Retryable(err) {
			p.log.Debug("step failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn("step failed", zap.Int("attempts", attempt), zap.Error(err))
	}
	if err != nil {
		return Result{Err: err}
	}
	return res
}

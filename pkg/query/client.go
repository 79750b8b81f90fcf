package query

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/ethpandaops/gpxenrich/pkg/observability"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
	"github.com/sirupsen/logrus"
)

// Provider answers a point query with named attributes.
type Provider interface {
	Name() string
	Query(ctx context.Context, p geo.Point) (trajectory.Attributes, error)
}

// Result is the final outcome of a query after retries. Outcome is either
// OutcomeSuccess or OutcomeFailure; Last holds the classification of the
// final attempt.
type Result struct {
	Outcome    Outcome
	Last       Outcome
	Attributes trajectory.Attributes
	Reason     string
	Attempts   int
}

// OK reports whether the query succeeded.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Client runs provider calls through the shared pacer with bounded retries.
type Client struct {
	cfg      Config
	pacer    Pacer
	sleep    Sleeper
	provider Provider
	log      logrus.FieldLogger
}

// Option customises a Client.
type Option func(*Client)

// WithSleeper replaces the backoff sleep.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.sleep = s
	}
}

// NewClient returns a client for provider. A nil provider is allowed for
// clients that only use Execute.
func NewClient(cfg *Config, provider Provider, pacer Pacer, log logrus.FieldLogger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query config: %w", err)
	}

	name := "generic"
	if provider != nil {
		name = provider.Name()
	}

	c := &Client{
		cfg:      *cfg,
		pacer:    pacer,
		sleep:    sleep,
		provider: provider,
		log:      log.WithFields(logrus.Fields{"component": "query", "provider": name}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Query asks the provider about p.
func (c *Client) Query(ctx context.Context, p geo.Point) Result {
	var attrs trajectory.Attributes

	res := c.Execute(ctx, c.provider.Name(), func(ctx context.Context) error {
		out, err := c.provider.Query(ctx, p)
		if err != nil {
			return err
		}

		attrs = out

		return nil
	})

	if res.OK() {
		res.Attributes = attrs
	}

	return res
}

// Execute runs fn with pacing, a per-attempt timeout and retries. The pacer
// is waited on before every attempt.
func (c *Client) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) Result {
	var lastErr error

	last := OutcomeFailure

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return c.fail(attempt, last, err)
		}

		start := time.Now()

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		err := fn(attemptCtx)
		cancel()

		outcome := Classify(err)
		observability.RecordExternalQuery(name, outcome.String(), time.Since(start).Seconds())

		if outcome == OutcomeSuccess {
			return Result{Outcome: OutcomeSuccess, Last: OutcomeSuccess, Attempts: attempt + 1}
		}

		lastErr, last = err, outcome

		if ctx.Err() != nil {
			return c.fail(attempt+1, last, ctx.Err())
		}

		if attempt == c.cfg.MaxRetries-1 {
			break
		}

		delay := c.Backoff(outcome, attempt)

		c.log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"outcome": outcome.String(),
			"delay":   delay.String(),
		}).Warn("External query failed, retrying")
		observability.RecordQueryRetry(name, outcome.String())

		if err := c.sleep(ctx, delay); err != nil {
			return c.fail(attempt+1, last, err)
		}
	}

	return c.fail(c.cfg.MaxRetries, last, lastErr)
}

// Backoff returns the delay before the next attempt after a failed attempt
// (zero-based) classified as outcome.
func (c *Client) Backoff(outcome Outcome, attempt int) time.Duration {
	switch outcome {
	case OutcomeRateLimited:
		return c.cfg.BaseDelay * time.Duration(attempt+2)
	case OutcomeTimeout, OutcomeTransient:
		return c.cfg.BaseDelay * time.Duration(attempt+1)
	default:
		return c.cfg.OtherDelay
	}
}

func (c *Client) fail(attempts int, last Outcome, err error) Result {
	reason := "query failed"
	if err != nil {
		reason = err.Error()
	}

	c.log.WithFields(logrus.Fields{
		"attempts": attempts,
		"outcome":  last.String(),
	}).WithError(err).Warn("External query failed permanently")

	return Result{Outcome: OutcomeFailure, Last: last, Reason: reason, Attempts: attempts}
}

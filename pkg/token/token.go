// Package token exchanges ambient credentials (the provider's HTTP-only
// refresh cookie) for a fresh bearer access token.
//
// The coordinator is explicitly single-flight: overlapping callers share
// one upstream call and all receive its result. A missing or dead session
// is an expected outcome, reported as a nil result rather than an error,
// so callers decide the consequence.
package token

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/craftwork/sessioncore/pkg/payload"
	"github.com/craftwork/sessioncore/pkg/transport"
)

// Endpoint is the fixed refresh endpoint.
const Endpoint = "/sessions/refresh"

// Result is the normalized shape extracted from a refresh response,
// independent of the provider's field naming.
type Result struct {
	AccessToken string

	// ExpiresIn is the advertised token lifetime; zero when the provider
	// does not send one.
	ExpiresIn time.Duration
}

// Coordinator issues refresh calls. Safe for concurrent use.
type Coordinator struct {
	tr      transport.Transport
	timeout time.Duration
	log     *slog.Logger
	group   singleflight.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout bounds each refresh call. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCoordinator creates a Coordinator over the given transport.
func NewCoordinator(tr transport.Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		tr:      tr,
		timeout: 10 * time.Second,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh performs (or joins) one refresh call. It returns (nil, nil) when
// the provider has no session to refresh or the response carries no
// recognizable token, and an error only for transport failures. Callers
// waiting on a shared in-flight call still honor their own context.
func (c *Coordinator) Refresh(ctx context.Context) (*Result, error) {
	ch := c.group.DoChan("refresh", func() (any, error) {
		return c.refresh()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result, _ := res.Val.(*Result)
		return result, nil
	}
}

func (c *Coordinator) refresh() (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	res, err := c.tr.Send(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   Endpoint,
		Header: http.Header{"Accept": []string{"application/json"}},
	})
	if err != nil {
		c.log.Warn("refresh call failed", "error", err)
		return nil, err
	}

	if !res.OK() {
		// Expected: no session to refresh.
		c.log.Debug("refresh declined", "status", res.Status)
		return nil, nil
	}

	body, ok := payload.Decode(res.Body)
	if !ok {
		c.log.Warn("refresh response unparseable")
		return nil, nil
	}

	tok, ok := payload.Token(body)
	if !ok {
		c.log.Warn("refresh response carried no token field")
		return nil, nil
	}

	result := &Result{AccessToken: tok}
	if secs, ok := payload.ExpiresIn(body); ok {
		result.ExpiresIn = time.Duration(secs) * time.Second
	}
	return result, nil
}

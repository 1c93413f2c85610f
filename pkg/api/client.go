// Package api executes authenticated requests against the identity
// provider's API. The client attaches the bearer token, performs exactly
// one coordinated refresh-and-retry on 401, and rejects endpoints outside
// a fixed allow-list so no unvetted route is ever called by accident.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/craftwork/sessioncore/pkg/cache"
	"github.com/craftwork/sessioncore/pkg/metrics"
	"github.com/craftwork/sessioncore/pkg/nav"
	"github.com/craftwork/sessioncore/pkg/payload"
	"github.com/craftwork/sessioncore/pkg/session"
	"github.com/craftwork/sessioncore/pkg/token"
	"github.com/craftwork/sessioncore/pkg/transport"
)

// DefaultAllowList is the fixed set of endpoints the client may call,
// matched exactly or as a path prefix.
var DefaultAllowList = []string{
	"/users/me",
	"/users/me/onboarding",
	"/users/me/freelancer",
	"/users/me/addresses",
	"/sessions/refresh",
	"/sessions/logout",
	"/auth/verify",
}

// Refresher obtains a fresh access token from ambient credentials. A nil
// result with a nil error means "no session to refresh".
type Refresher interface {
	Refresh(ctx context.Context) (*token.Result, error)
}

// Options describes one request. Header and Body may be nil.
type Options struct {
	Method string
	Header http.Header
	Body   []byte
}

// callConfig is the per-call configuration.
type callConfig struct {
	tokenOverride  string
	overrideSet    bool
	disableRefresh bool
}

// CallOption configures a single call.
type CallOption func(*callConfig)

// WithTokenOverride uses the given token instead of the session token.
// A refresh triggered during the call never mutates shared state.
func WithTokenOverride(tok string) CallOption {
	return func(c *callConfig) {
		c.tokenOverride = tok
		c.overrideSet = true
	}
}

// WithoutRefresh disables the refresh-and-retry for this call. A 401 is
// returned as-is after the unauthorized side effect runs.
func WithoutRefresh() CallOption {
	return func(c *callConfig) {
		c.disableRefresh = true
	}
}

// Client is the authenticated request executor. Safe for concurrent use.
type Client struct {
	state     *session.State
	tr        transport.Transport
	refresher Refresher
	navigator nav.Navigator
	allow     []string
	log       *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAllowList replaces the endpoint allow-list.
func WithAllowList(endpoints []string) ClientOption {
	return func(c *Client) {
		if len(endpoints) > 0 {
			c.allow = endpoints
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer enables OpenTelemetry spans around each request using a
// tracer with the given name.
func WithTracer(name string) ClientOption {
	return func(c *Client) {
		if name == "" {
			name = "sessioncore"
		}
		c.tracer = otel.Tracer(name)
	}
}

// NewClient creates an executor bound to a session state, a transport, a
// refresher, and a navigation sink.
func NewClient(state *session.State, tr transport.Transport, refresher Refresher, navigator nav.Navigator, opts ...ClientOption) *Client {
	c := &Client{
		state:     state,
		tr:        tr,
		refresher: refresher,
		navigator: navigator,
		allow:     DefaultAllowList,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// allowed reports whether path (without query) is in, or prefixed by, the
// allow-list.
func (c *Client) allowed(path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, entry := range c.allow {
		if path == entry || strings.HasPrefix(path, entry+"/") {
			return true
		}
	}
	return false
}

// Do executes one request against an allow-listed endpoint.
//
// Token precedence: the per-call override, else the session token. When no
// token is available and refresh is enabled, one proactive refresh runs
// before the request. On a 401 with refresh enabled, exactly one refresh
// and one retry happen; a second 401, or a failed refresh, clears the
// session and redirects to login. The failing response is returned to the
// caller regardless.
func (c *Client) Do(ctx context.Context, path string, opts Options, callOpts ...CallOption) (*transport.Response, error) {
	var cfg callConfig
	for _, opt := range callOpts {
		opt(&cfg)
	}

	if !c.allowed(path) {
		c.log.Error("rejected call to unvetted endpoint", "path", path)
		return nil, &NotAllowedError{Path: path}
	}

	ctx, span := c.startSpan(ctx, path, opts.Method)
	defer span.End()

	tok := cfg.tokenOverride
	if !cfg.overrideSet {
		tok = c.state.Token()
	}

	refreshed := false
	if tok == "" && !cfg.disableRefresh {
		// No credential at all: try one proactive refresh before the
		// first request.
		refreshed = true
		if fresh := c.refreshToken(ctx, cfg); fresh != "" {
			tok = fresh
		}
	}

	res, err := c.send(ctx, path, opts, tok)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, err
	}
	c.metrics.ObserveRequest(path, strconv.Itoa(res.Status))

	if res.Status != http.StatusUnauthorized {
		span.SetAttributes(attribute.Int("http.status_code", res.Status))
		return res, nil
	}

	if cfg.disableRefresh || refreshed {
		// Either the caller opted out of refresh or the single allowed
		// refresh already ran. Terminal.
		c.unauthorized()
		span.SetAttributes(attribute.Int("http.status_code", res.Status))
		return res, nil
	}

	fresh := c.refreshToken(ctx, cfg)
	if fresh == "" {
		c.unauthorized()
		span.SetAttributes(attribute.Int("http.status_code", res.Status))
		return res, nil
	}

	span.SetAttributes(attribute.Bool("sessioncore.retried", true))
	retry, err := c.send(ctx, path, opts, fresh)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure on retry")
		return nil, err
	}
	c.metrics.ObserveRequest(path, strconv.Itoa(retry.Status))

	if retry.Status == http.StatusUnauthorized {
		c.unauthorized()
	}
	span.SetAttributes(attribute.Int("http.status_code", retry.Status))
	return retry, nil
}

// refreshToken runs one refresh and, unless a token override is in play,
// adopts the new token into the session state. Returns "" on failure.
func (c *Client) refreshToken(ctx context.Context, cfg callConfig) string {
	result, err := c.refresher.Refresh(ctx)
	if err != nil {
		c.metrics.ObserveRefresh("error")
		c.log.Warn("token refresh failed", "error", err)
		return ""
	}
	if result == nil || result.AccessToken == "" {
		c.metrics.ObserveRefresh("none")
		return ""
	}
	c.metrics.ObserveRefresh("ok")
	if !cfg.overrideSet {
		c.state.SetToken(result.AccessToken)
	}
	return result.AccessToken
}

func (c *Client) send(ctx context.Context, path string, opts Options, tok string) (*transport.Response, error) {
	header := make(http.Header, len(opts.Header)+1)
	for key, values := range opts.Header {
		header[key] = values
	}
	if tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	return c.tr.Send(ctx, &transport.Request{
		Method: opts.Method,
		Path:   path,
		Header: header,
		Body:   opts.Body,
	})
}

// unauthorized is the terminal side effect for an unrecoverable 401: the
// session is cleared and the user sent to login.
func (c *Client) unauthorized() {
	c.metrics.ObserveUnauthorized()
	c.log.Info("session unauthorized, redirecting to login")
	c.state.Clear()
	c.navigator.Navigate(nav.RouteLogin, nav.WithReplace())
}

// DoJSON is the JSON convenience form of Do. On a 2xx response it returns
// the decoded body; on any other status it returns a *StatusError with the
// best-effort parsed payload.
func (c *Client) DoJSON(ctx context.Context, path string, opts Options, callOpts ...CallOption) (any, error) {
	res, err := c.Do(ctx, path, opts, callOpts...)
	if err != nil {
		return nil, err
	}

	body, parsed := payload.Decode(res.Body)
	if !res.OK() {
		se := &StatusError{Status: res.Status}
		if parsed {
			se.Payload = body
		}
		return nil, se
	}
	return body, nil
}

// Verify probes GET /auth/verify with the current token. A nil error means
// the provider accepted the credential.
func (c *Client) Verify(ctx context.Context) error {
	_, err := c.DoJSON(ctx, "/auth/verify", Options{Method: http.MethodGet})
	return err
}

// Logout posts to the logout endpoint, then clears local state, the cached
// user, and navigates to login. The network call is best-effort: a failure
// still tears the local session down.
func (c *Client) Logout(ctx context.Context, store cache.Store) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.Do(ctx, "/sessions/logout", Options{Method: http.MethodPost}, WithoutRefresh())
	if err != nil {
		c.log.Warn("logout call failed, clearing local session anyway", "error", err)
	}

	c.state.Clear()
	if store != nil {
		if cerr := cache.ClearUser(store); cerr != nil {
			c.log.Warn("failed to clear cached user", "error", cerr)
		}
	}
	c.navigator.Navigate(nav.RouteLogin, nav.WithReplace())
	return err
}

// startSpan opens a span when tracing is configured; otherwise it returns
// a no-op span.
func (c *Client) startSpan(ctx context.Context, path, method string) (context.Context, trace.Span) {
	if c.tracer == nil {
		// SpanFromContext on an empty context yields a no-op span.
		return ctx, trace.SpanFromContext(context.Background())
	}
	if method == "" {
		method = http.MethodGet
	}
	return c.tracer.Start(ctx, "sessioncore.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("sessioncore.endpoint", path),
		),
	)
}

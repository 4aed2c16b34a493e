package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"

	"gatehouse-hq/gatehouse/pkg/cache"
	"gatehouse-hq/gatehouse/pkg/lb"
	"gatehouse-hq/gatehouse/pkg/rewrite"
	"gatehouse-hq/gatehouse/pkg/router"
	"gatehouse-hq/gatehouse/pkg/telemetry/metrics"
	"gatehouse-hq/gatehouse/pkg/upstream"
)

// retryBufferLimit caps how much request body is buffered in memory to
// make a dispatch replayable across retries. Larger bodies are
// streamed and never retried.
const retryBufferLimit = 256 * 1024

// Options configures an Engine.
type Options struct {
	// Pool dispatches requests to upstream locations.
	Pool *upstream.Pool

	// Cache is the optional response cache; nil disables caching.
	Cache *cache.ResponseCache

	// Metrics receives request observations; nil disables them.
	Metrics *metrics.Collector

	// MaxRetries caps upstream retries per request.
	MaxRetries int

	// MaxBodyBytes caps inbound request bodies; 0 means unlimited.
	MaxBodyBytes int64
}

// Engine is the per-request orchestrator. It is shared by all fronts
// and safe for concurrent use.
type Engine struct {
	index atomic.Pointer[router.Index]
	opts  Options
}

// NewEngine creates an engine serving the given routing table.
func NewEngine(ix *router.Index, opts Options) *Engine {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	e := &Engine{opts: opts}
	e.index.Store(ix)
	return e
}

// SwapIndex atomically publishes a new routing table. Requests already
// in flight finish on the snapshot they started with.
func (e *Engine) SwapIndex(ix *router.Index) {
	e.index.Store(ix)
}

// Index returns the current routing table snapshot.
func (e *Engine) Index() *router.Index {
	return e.index.Load()
}

// dispatchResult carries the outcome of dispatch to the handler.
type dispatchResult struct {
	resp         *http.Response
	upstream     *lb.Upstream
	assignCookie string
}

// dispatch sends the request to the route's upstream group, retrying
// transport-level failures against the next healthy member. stickyID
// is the inbound affinity cookie value, if any.
func (e *Engine) dispatch(ctx context.Context, inbound *http.Request, route *router.Route, stickyID string) (dispatchResult, error) {
	sel := route.Group.Pick(stickyID)
	if sel.Upstream == nil {
		return dispatchResult{}, fmt.Errorf("%w: app %s has no upstreams", ErrUpstreamUnavailable, route.AppID)
	}

	body, replayable, err := e.bufferBody(inbound)
	if err != nil {
		return dispatchResult{}, err
	}

	maxAttempts := min(route.Group.Size(), e.opts.MaxRetries)
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	up := sel.Upstream
	failed := make(map[*lb.Upstream]bool)
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		out := rewrite.Forwarded(ctx, inbound, route, up)
		attachBody(out, inbound, body)

		// The wait for response headers is bounded by the pool's
		// ResponseHeaderTimeout, except on h2c clients, whose transport
		// has no such bound; body streaming is not bounded.
		client := e.opts.Pool.Client(up, route.ALPNPreference)
		resp, err := client.Do(out)
		if err == nil {
			up.ReportSuccess()
			return dispatchResult{resp: resp, upstream: up, assignCookie: sel.AssignCookie}, nil
		}

		up.ReportFailure()
		if e.opts.Metrics != nil {
			e.opts.Metrics.ObserveUpstreamFailure(up.Location)
		}
		lastErr = err

		if isTimeout(err) && ctx.Err() == nil {
			return dispatchResult{}, fmt.Errorf("%w: %s: %v", ErrUpstreamTimeout, up.Location, err)
		}
		if ctx.Err() != nil {
			return dispatchResult{}, ctx.Err()
		}
		// A request whose body cannot be replayed is never retried
		// once transmission may have begun, idempotent or not.
		if !replayable {
			break
		}

		failed[up] = true
		up = route.Group.NextAfter(failed)
		if up == nil {
			break
		}
	}

	return dispatchResult{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastErr)
}

// bufferBody reads small request bodies into memory so retries can
// replay them. It reports whether the body is replayable.
func (e *Engine) bufferBody(r *http.Request) ([]byte, bool, error) {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil, true, nil
	}
	if r.ContentLength < 0 || r.ContentLength > retryBufferLimit {
		return nil, false, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, r.ContentLength))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, false, fmt.Errorf("%w: %v", ErrBodyTooLarge, err)
		}
		return nil, false, fmt.Errorf("%w: reading body: %v", ErrBadRequest, err)
	}
	return data, true, nil
}

// attachBody wires the (possibly buffered) inbound body to an attempt.
func attachBody(out, inbound *http.Request, buffered []byte) {
	if buffered != nil {
		out.Body = io.NopCloser(bytes.NewReader(buffered))
		out.ContentLength = int64(len(buffered))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buffered)), nil
		}
		return
	}
	out.Body = inbound.Body
}

// isTimeout classifies an upstream error as a timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}


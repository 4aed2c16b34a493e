package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gatehouse-hq/gatehouse/pkg/cache"
	"gatehouse-hq/gatehouse/pkg/proxy/middleware"
	"gatehouse-hq/gatehouse/pkg/rewrite"
)

// ServeHTTP drives one inbound request through the engine. It is the
// shared entry point for the HTTP/1.1, HTTP/2, and HTTP/3 fronts.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ix := e.Index()

	if err := checkAuthority(r); err != nil {
		e.fail(w, r, "", err)
		return
	}

	viaTLS := r.TLS != nil
	app, route, err := ix.Lookup(r.Host, r.URL.EscapedPath(), viaTLS)
	if err != nil {
		e.fail(w, r, "", err)
		return
	}

	// Redirection gate: plaintext request for a TLS application.
	if !viaTLS && app.TLS && app.HTTPSRedirection {
		target := "https://" + hostOnly(r.Host) + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}

	if e.opts.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, e.opts.MaxBodyBytes)
	}

	if rewrite.IsWebSocketUpgrade(r) {
		e.serveUpgrade(w, r, app, route)
		return
	}

	var cacheKey string
	if e.opts.Cache != nil {
		cacheKey = cache.Key(app.ID, r)
		if entry, ok := e.opts.Cache.Get(cacheKey); ok {
			e.observeCache("hit")
			writeCached(w, entry)
			e.observe(app.ID, "cache", entry.StatusCode, start)
			return
		}
		e.observeCache("miss")
	}

	stickyID := ""
	if route.Group.CookieName != "" {
		if c, err := r.Cookie(route.Group.CookieName); err == nil {
			stickyID = c.Value
		}
	}

	result, err := e.dispatch(r.Context(), r, route, stickyID)
	if err != nil {
		e.fail(w, r, app.ID, err)
		return
	}
	defer result.resp.Body.Close()

	rewrite.RemoveHopByHop(result.resp.Header)
	copyHeader(w.Header(), result.resp.Header)

	if result.assignCookie != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     route.Group.CookieName,
			Value:    result.assignCookie,
			Path:     "/",
			MaxAge:   int(route.Group.CookieTTL / time.Second),
			HttpOnly: true,
			Secure:   viaTLS,
		})
	}

	status := result.resp.StatusCode
	if cacheKey != "" {
		if ttl := cache.Cacheable(r, status, result.resp.Header); ttl > 0 {
			e.storeAndRelay(w, cacheKey, result, ttl, app.ID, start)
			return
		}
	}

	w.WriteHeader(status)
	flushCopy(w, result.resp.Body)
	e.observe(app.ID, result.upstream.Location, status, start)
}

// storeAndRelay tees the response body into the cache while streaming
// it to the client. Bodies that outgrow the cache's per-entry limit
// are relayed without being stored.
func (e *Engine) storeAndRelay(w http.ResponseWriter, key string, result dispatchResult, ttl time.Duration, appID string, start time.Time) {
	w.WriteHeader(result.resp.StatusCode)

	buf := &cappedBuffer{max: e.opts.Cache.MaxBody()}
	flushCopy(w, io.TeeReader(result.resp.Body, buf))

	if !buf.overflowed {
		e.opts.Cache.Put(key, cache.Entry{
			StatusCode: result.resp.StatusCode,
			Header:     result.resp.Header.Clone(),
			Body:       buf.data,
			Expiry:     time.Now().Add(ttl),
		})
		e.observeCache("store")
	}
	e.observe(appID, result.upstream.Location, result.resp.StatusCode, start)
}

// cappedBuffer accumulates up to max bytes; past that it drops what it
// holds, marks itself overflowed, and discards further writes.
type cappedBuffer struct {
	data       []byte
	max        int64
	overflowed bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if !b.overflowed {
		if int64(len(b.data)+len(p)) > b.max {
			b.overflowed = true
			b.data = nil
		} else {
			b.data = append(b.data, p...)
		}
	}
	return len(p), nil
}

// fail writes the error response for a failed request and emits the
// structured event.
func (e *Engine) fail(w http.ResponseWriter, r *http.Request, appID string, err error) {
	status := StatusFor(err)
	slog.Warn("request failed",
		"request_id", middleware.GetRequestID(r.Context()),
		"app", appID,
		"host", r.Host,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	http.Error(w, http.StatusText(status), status)
	e.observe(appID, "", status, time.Now())
}

func (e *Engine) observe(app, upstream string, status int, start time.Time) {
	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveRequest(app, upstream, status, time.Since(start))
	}
}

func (e *Engine) observeCache(event string) {
	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveCache(event)
	}
}

// checkAuthority guards TLS connections against misdirected requests:
// the request authority must equal the negotiated server name,
// case-insensitively with the trailing dot trimmed. Requests on reused
// (coalesced) HTTP/2 connections hit this check per request.
func checkAuthority(r *http.Request) error {
	if r.TLS == nil || r.TLS.ServerName == "" {
		return nil
	}
	sni := normalizeAuthority(r.TLS.ServerName)
	host := normalizeAuthority(r.Host)
	if sni != host {
		return fmt.Errorf("%w: sni %q, host %q", ErrMisdirected, sni, host)
	}
	return nil
}

// normalizeAuthority lowercases, trims the trailing dot, and drops the
// port from a request authority.
func normalizeAuthority(host string) string {
	return strings.TrimSuffix(strings.ToLower(hostOnly(host)), ".")
}

// hostOnly strips a port from host:port; IPv6 literals keep their
// brackets.
func hostOnly(host string) string {
	if strings.HasPrefix(host, "[") {
		if i := strings.IndexByte(host, ']'); i >= 0 {
			return host[:i+1]
		}
		return host
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 && strings.Count(host, ":") == 1 {
		return host[:i]
	}
	return host
}

// copyHeader copies every header value from src to dst.
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// writeCached replays a cache entry to the client.
func writeCached(w http.ResponseWriter, entry cache.Entry) {
	copyHeader(w.Header(), entry.Header)
	w.WriteHeader(entry.StatusCode)
	w.Write(entry.Body)
}

// flushCopy streams src to the client, flushing after every chunk so
// event streams and long-polls propagate promptly.
func flushCopy(w http.ResponseWriter, src io.Reader) {
	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			rc.Flush()
		}
		if err != nil {
			return
		}
	}
}

package proxy

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"gatehouse-hq/gatehouse/pkg/rewrite"
	"gatehouse-hq/gatehouse/pkg/router"
)

// serveUpgrade handles a WebSocket upgrade request. Only the HTTP/1.1
// front can carry an upgrade: both sides switch to raw byte shuttling
// after the 101. H2/H3 fronts reject the request since extended
// CONNECT is not offered to clients.
func (e *Engine) serveUpgrade(w http.ResponseWriter, r *http.Request, app *router.Application, route *router.Route) {
	if r.ProtoMajor != 1 {
		e.fail(w, r, app.ID, fmt.Errorf("%w: upgrade on HTTP/%d", ErrUpgradeRejected, r.ProtoMajor))
		return
	}

	sel := route.Group.Pick("")
	if sel.Upstream == nil {
		e.fail(w, r, app.ID, fmt.Errorf("%w: app %s has no upstreams", ErrUpstreamUnavailable, app.ID))
		return
	}
	up := sel.Upstream

	out := rewrite.Forwarded(r.Context(), r, route, up)
	out.Body = r.Body

	upConn, err := e.opts.Pool.DialRaw(r.Context(), up)
	if err != nil {
		up.ReportFailure()
		e.fail(w, r, app.ID, fmt.Errorf("%w: dialing %s: %v", ErrUpstreamUnavailable, up.Location, err))
		return
	}
	defer upConn.Close()

	if err := out.Write(upConn); err != nil {
		up.ReportFailure()
		e.fail(w, r, app.ID, fmt.Errorf("%w: writing to %s: %v", ErrUpstreamUnavailable, up.Location, err))
		return
	}

	upReader := bufio.NewReader(upConn)
	resp, err := http.ReadResponse(upReader, out)
	if err != nil {
		up.ReportFailure()
		e.fail(w, r, app.ID, fmt.Errorf("%w: reading from %s: %v", ErrUpstreamUnavailable, up.Location, err))
		return
	}
	up.ReportSuccess()

	// The upstream declined the upgrade; relay its answer verbatim.
	if resp.StatusCode != http.StatusSwitchingProtocols {
		defer resp.Body.Close()
		rewrite.RemoveHopByHop(resp.Header)
		copyHeader(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		flushCopy(w, resp.Body)
		return
	}

	clientConn, clientRW, err := http.NewResponseController(w).Hijack()
	if err != nil {
		slog.Error("hijack failed on upgrade", "error", err)
		return
	}
	defer clientConn.Close()

	if err := resp.Write(clientRW); err != nil {
		return
	}
	if err := clientRW.Flush(); err != nil {
		return
	}

	// Raw shuttling. Bytes already buffered on either side go first.
	shuttle(upConn, upReader, clientConn, clientRW.Reader)
}

// shuttle copies bytes between the upgraded client and upstream
// connections until either side closes.
func shuttle(upConn io.ReadWriteCloser, upBuf *bufio.Reader, clientConn io.ReadWriteCloser, clientBuf *bufio.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		io.Copy(clientConn, drained(upBuf, upConn))
		clientConn.Close()
	}()
	go func() {
		defer wg.Done()
		io.Copy(upConn, drained(clientBuf, clientConn))
		upConn.Close()
	}()

	wg.Wait()
}

// drained yields any bytes sitting in the bufio reader before reading
// the underlying connection directly.
func drained(buf *bufio.Reader, conn io.Reader) io.Reader {
	if n := buf.Buffered(); n > 0 {
		peeked, _ := buf.Peek(n)
		pending := make([]byte, n)
		copy(pending, peeked)
		return io.MultiReader(bytes.NewReader(pending), conn)
	}
	return conn
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"gatehouse-hq/gatehouse/pkg/cli"
)

// h3Front is the QUIC listener producing the same inbound-request
// abstraction as the TCP fronts: requests decoded by the HTTP/3 server
// carry r.TLS (with the negotiated SNI) and flow through the shared
// handler chain.
type h3Front struct {
	conn net.PacketConn
	srv  *http3.Server
}

// newH3Front binds the UDP listener and prepares the HTTP/3 server.
func newH3Front(s *Server, handler http.Handler) (*h3Front, error) {
	addr := net.JoinHostPort(s.cfg.ListenAddress, strconv.Itoa(s.cfg.ListenPortH3))
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, cli.BindError(fmt.Errorf("binding %s/udp: %w", addr, err))
	}

	tlsConf := s.tlsConfig()
	return &h3Front{
		conn: conn,
		srv: &http3.Server{
			Handler:        handler,
			TLSConfig:      http3.ConfigureTLSConfig(tlsConf),
			MaxHeaderBytes: s.cfg.MaxHeaderBytes,
			QUICConfig: &quic.Config{
				MaxIdleTimeout: s.cfg.KeepaliveTimeout(),
			},
		},
	}, nil
}

// serve blocks on the QUIC listener.
func (f *h3Front) serve() error {
	slog.Info("h3 front listening", "addr", f.conn.LocalAddr().String())
	err := f.srv.Serve(f.conn)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// shutdown closes the HTTP/3 front, allowing in-flight streams to
// finish until ctx expires.
func (f *h3Front) shutdown(ctx context.Context) error {
	defer f.conn.Close()
	return f.srv.Shutdown(ctx)
}

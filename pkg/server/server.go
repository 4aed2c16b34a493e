package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/net/http2"
	"golang.org/x/net/netutil"

	"gatehouse-hq/gatehouse/pkg/cache"
	"gatehouse-hq/gatehouse/pkg/certs"
	"gatehouse-hq/gatehouse/pkg/cli"
	"gatehouse-hq/gatehouse/pkg/config"
	"gatehouse-hq/gatehouse/pkg/proxy"
	"gatehouse-hq/gatehouse/pkg/proxy/middleware"
	"gatehouse-hq/gatehouse/pkg/router"
	"gatehouse-hq/gatehouse/pkg/telemetry/logging"
	"gatehouse-hq/gatehouse/pkg/telemetry/metrics"
	"gatehouse-hq/gatehouse/pkg/upstream"
)

// Server owns the listening fronts and the reload machinery.
type Server struct {
	cfgPath string
	cfg     *config.Config

	store   *certs.Store
	engine  *proxy.Engine
	pool    *upstream.Pool
	collect *metrics.Collector
	anon    *logging.Anonymizer

	httpSrv    *http.Server
	tlsSrv     *http.Server
	h3         *h3Front
	metricsSrv *http.Server

	scheduler *cron.Cron
}

// New builds a server from a validated configuration. Certificate and
// routing-table construction failures are configuration errors.
func New(cfgPath string, cfg *config.Config) (*Server, error) {
	store, err := certs.NewStore(cfg)
	if err != nil {
		return nil, cli.ConfigError(err)
	}
	ix, err := router.Build(cfg)
	if err != nil {
		return nil, cli.ConfigError(err)
	}

	pool := upstream.NewPool(upstream.Options{
		ConnectTimeout:        cfg.ConnectTimeout(),
		ResponseHeaderTimeout: cfg.RequestTimeout(),
	})

	var respCache *cache.ResponseCache
	if cfg.Cache.Enabled {
		respCache = cache.New(cfg.Cache.MaxEntries, cfg.Cache.MaxEntryBytes)
	}

	collect := metrics.NewCollector()
	engine := proxy.NewEngine(ix, proxy.Options{
		Pool:         pool,
		Cache:        respCache,
		Metrics:      collect,
		MaxRetries:   cfg.MaxRetries,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	return &Server{
		cfgPath:   cfgPath,
		cfg:       cfg,
		store:     store,
		engine:    engine,
		pool:      pool,
		collect:   collect,
		anon:      logging.NewAnonymizer(cfg.AnonymizeClientSubnet),
		scheduler: cron.New(),
	}, nil
}

// handler builds the middleware chain around the engine. altSvc
// advertises the HTTP/3 endpoint on TLS responses.
func (s *Server) handler(altSvc bool) http.Handler {
	var h http.Handler = s.engine
	if altSvc && s.cfg.ListenPortH3 != 0 {
		h = advertiseAltSvc(s.cfg.ListenPortH3, h)
	}
	h = middleware.AccessLog(s.anon)(h)
	h = middleware.RequestID(h)
	h = middleware.Recovery(h)
	return h
}

// advertiseAltSvc announces HTTP/3 availability on every response.
func advertiseAltSvc(port int, next http.Handler) http.Handler {
	value := fmt.Sprintf(`h3=":%d"; ma=2592000`, port)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", value)
		next.ServeHTTP(w, r)
	})
}

// Run binds the listeners, starts every front, and blocks until ctx is
// cancelled, then drains within the graceful timeout. Bind failures
// are reported as cli.BindError.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 4)

	if s.cfg.ListenPort != 0 {
		ln, err := s.listen(s.cfg.ListenPort)
		if err != nil {
			return err
		}
		s.httpSrv = s.newHTTPServer(s.handler(false))
		go func() {
			slog.Info("plaintext front listening", "addr", ln.Addr().String())
			if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("plaintext front: %w", err)
			}
		}()
	}

	if s.cfg.ListenPortTLS != 0 {
		ln, err := s.listen(s.cfg.ListenPortTLS)
		if err != nil {
			return err
		}
		s.tlsSrv = s.newHTTPServer(s.handler(true))
		s.tlsSrv.TLSConfig = s.tlsConfig()
		if err := http2.ConfigureServer(s.tlsSrv, &http2.Server{
			MaxConcurrentStreams: uint32(s.cfg.MaxConcurrentStreams),
		}); err != nil {
			return fmt.Errorf("configuring http/2: %w", err)
		}
		go func() {
			slog.Info("tls front listening", "addr", ln.Addr().String())
			if err := s.tlsSrv.ServeTLS(ln, "", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("tls front: %w", err)
			}
		}()
	}

	if s.cfg.ListenPortH3 != 0 {
		front, err := newH3Front(s, s.handler(true))
		if err != nil {
			return err
		}
		s.h3 = front
		go func() {
			if err := front.serve(); err != nil {
				errChan <- fmt.Errorf("h3 front: %w", err)
			}
		}()
	}

	if s.cfg.MetricsListen != "" {
		ln, err := net.Listen("tcp", s.cfg.MetricsListen)
		if err != nil {
			return cli.BindError(fmt.Errorf("binding metrics listener %s: %w", s.cfg.MetricsListen, err))
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.collect.Handler())
		s.metricsSrv = &http.Server{Handler: mux}
		go func() {
			slog.Info("metrics listening", "addr", ln.Addr().String())
			if err := s.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics listener: %w", err)
			}
		}()
	}

	s.startMaintenance(ctx)
	s.startWatcher(ctx)
	reloads := cli.NotifyReload()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-reloads:
			slog.Info("reload requested (SIGHUP)")
			s.Reload()
		case err := <-errChan:
			s.shutdown()
			return err
		}
	}
}

// listen binds one TCP listener, capped at max_clients concurrent
// connections.
func (s *Server) listen(port int) (net.Listener, error) {
	addr := net.JoinHostPort(s.cfg.ListenAddress, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, cli.BindError(fmt.Errorf("binding %s: %w", addr, err))
	}
	if s.cfg.MaxClients > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxClients)
	}
	return ln, nil
}

// newHTTPServer applies the shared limits to a front.
func (s *Server) newHTTPServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
		IdleTimeout:       s.cfg.KeepaliveTimeout(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Reload loads a fresh configuration and swaps the certificate and
// routing snapshots. Listener topology changes require a restart and
// are logged when detected.
func (s *Server) Reload() {
	if s.cfgPath == "" {
		slog.Warn("reload ignored: server was built without a configuration file")
		return
	}
	cfg, err := config.Load(s.cfgPath)
	if err != nil {
		slog.Error("reload aborted", "error", err)
		s.collect.ObserveReload(false)
		return
	}
	if cfg.ListenPort != s.cfg.ListenPort || cfg.ListenPortTLS != s.cfg.ListenPortTLS || cfg.ListenPortH3 != s.cfg.ListenPortH3 {
		slog.Warn("listener ports changed in configuration; restart required for the change to take effect")
	}

	ix, err := router.Build(cfg)
	if err != nil {
		slog.Error("reload aborted", "error", err)
		s.collect.ObserveReload(false)
		return
	}
	if err := s.store.Reload(cfg); err != nil {
		slog.Error("reload aborted", "error", err)
		s.collect.ObserveReload(false)
		return
	}

	s.engine.SwapIndex(ix)
	s.cfg = cfg
	s.collect.ObserveReload(true)
	slog.Info("configuration reloaded", "apps", len(cfg.Apps))
}

// startMaintenance schedules the daily certificate sweep: expiry gauge
// refresh, expiring-soon warnings, and ACME issuance/renewal checks.
func (s *Server) startMaintenance(ctx context.Context) {
	sweep := func() {
		for name, days := range s.store.Audit(time.Now()) {
			s.collect.SetCertExpiry(name, days)
		}
		if m := s.store.ACME(); m != nil {
			m.Refresh(ctx)
		}
	}
	s.scheduler.AddFunc("17 3 * * *", sweep)
	s.scheduler.Start()
	go sweep()

	go func() {
		<-ctx.Done()
		s.scheduler.Stop()
	}()
}

// startWatcher wires configuration-file changes to Reload. Embedded
// servers built without a file path get no watcher.
func (s *Server) startWatcher(ctx context.Context) {
	if s.cfgPath == "" {
		return
	}
	w, err := config.NewWatcher(s.cfgPath, func() {
		slog.Info("reload requested (configuration file changed)")
		s.Reload()
	})
	if err != nil {
		slog.Warn("configuration watcher unavailable", "error", err)
		return
	}
	w.Start(ctx)
}

// shutdown drains every front within the graceful timeout.
func (s *Server) shutdown() error {
	slog.Info("initiating graceful shutdown", "timeout", s.cfg.GracefulTimeout().String())
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulTimeout())
	defer cancel()

	var firstErr error
	for _, srv := range []*http.Server{s.httpSrv, s.tlsSrv, s.metricsSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			// Drain deadline passed: force-close what is left.
			srv.Close()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if s.h3 != nil {
		if err := s.h3.shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.pool.CloseIdle()
	slog.Info("server stopped")
	return firstErr
}

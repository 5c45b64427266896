package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/syncbridge/apps"
	"github.com/pithecene-io/syncbridge/bridge"
	"github.com/pithecene-io/syncbridge/cli/config"
	"github.com/pithecene-io/syncbridge/cli/reader"
	"github.com/pithecene-io/syncbridge/host/fasthost"
	"github.com/pithecene-io/syncbridge/host/httphost"
	"github.com/pithecene-io/syncbridge/log"
	"github.com/pithecene-io/syncbridge/metrics"
	"github.com/pithecene-io/syncbridge/procapp"
	"github.com/pithecene-io/syncbridge/types"
)

// Exit codes.
const (
	exitServeError  = 1
	exitConfigError = 2
)

// ServeCommand returns the serve command.
// This is the only command that accepts traffic.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve an asynchronous application behind a synchronous host",
		Flags:  configFlags(),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	logger, err := log.New(log.Options{Format: cfg.Log.Format, Level: cfg.Log.Level})
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runServer(ctx, cfg, logger, nil); err != nil {
		return cli.Exit(err.Error(), exitServeError)
	}
	return nil
}

// serverAddrs reports the bound listener addresses once serving starts.
type serverAddrs struct {
	Data    string
	Metrics string
}

// buildApp resolves the configured application and a display name for it.
func buildApp(cfg *config.Config, logger *log.Logger) (types.App, string, error) {
	if cfg.AppCommand != "" {
		path, args, err := procapp.ParseCommand(cfg.AppCommand)
		if err != nil {
			return nil, "", err
		}
		app, err := procapp.New(procapp.Config{Path: path, Args: args, Logger: logger})
		if err != nil {
			return nil, "", err
		}
		return app, cfg.AppCommand, nil
	}
	app, err := apps.Lookup(cfg.App)
	if err != nil {
		return nil, "", err
	}
	return app, cfg.App, nil
}

// runServer serves until ctx is canceled, then drains in-flight requests
// within the shutdown timeout. ready, if non-nil, is called once both
// listeners are bound.
func runServer(ctx context.Context, cfg *config.Config, logger *log.Logger, ready func(serverAddrs)) error {
	app, appName, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	adapter, err := bridge.New(app, bridge.Config{
		Workers:       cfg.Workers,
		QueueDepth:    cfg.QueueDepth,
		MaxBodySize:   cfg.MaxBodySize.Int64(),
		ReadChunkSize: int(min(cfg.ReadChunkSize, math.MaxInt32)),
		StreamBuffer:  cfg.StreamBuffer,
		Logger:        logger,
		Collector:     collector,
	})
	if err != nil {
		return err
	}

	dataLn, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		_ = adapter.Close()
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	addrs := serverAddrs{Data: dataLn.Addr().String()}

	var metricsLn net.Listener
	if cfg.MetricsListen != "" {
		metricsLn, err = net.Listen("tcp", cfg.MetricsListen)
		if err != nil {
			_ = dataLn.Close()
			_ = adapter.Close()
			return fmt.Errorf("failed to listen on %s: %w", cfg.MetricsListen, err)
		}
		addrs.Metrics = metricsLn.Addr().String()
	}

	started := time.Now()
	snapshot := func() reader.Stats {
		return reader.Stats{
			Version: types.Version,
			Host:    cfg.Host,
			App:     appName,
			Uptime:  time.Since(started).Round(time.Second).String(),
			Metrics: collector.Snapshot(),
			Pool:    adapter.Stats(),
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	data := newDataServer(cfg, adapter, logger)
	g.Go(func() error {
		return data.serve(dataLn)
	})

	var metricsSrv *http.Server
	if metricsLn != nil {
		metricsSrv = newMetricsServer(collector, snapshot)
		g.Go(func() error {
			if err := metricsSrv.Serve(metricsLn); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()

		logger.Info("shutting down", map[string]any{"timeout": cfg.ShutdownTimeout.String()})
		errs := []error{data.shutdown(shutdownCtx)}
		_ = dataLn.Close()
		if metricsSrv != nil {
			errs = append(errs, metricsSrv.Shutdown(shutdownCtx))
		}
		errs = append(errs, adapter.Close())
		return errors.Join(errs...)
	})

	logger.Info("serving", map[string]any{
		"listen":         addrs.Data,
		"metrics_listen": addrs.Metrics,
		"host":           cfg.Host,
		"app":            appName,
		"workers":        cfg.Workers,
		"max_body_size":  cfg.MaxBodySize.String(),
	})
	if ready != nil {
		ready(addrs)
	}

	return g.Wait()
}

// dataServer abstracts over the two synchronous hosts.
type dataServer struct {
	serve    func(net.Listener) error
	shutdown func(context.Context) error
}

func newDataServer(cfg *config.Config, adapter *bridge.Adapter, logger *log.Logger) *dataServer {
	if cfg.Host == config.HostFastHTTP {
		srv := &fasthttp.Server{
			Handler: fasthost.Handler(adapter, logger),
			Name:    "syncbridge",
			// One byte over the bridge cap so oversized bodies reach the
			// bridge and get its 413 instead of fasthttp's.
			MaxRequestBodySize: int(min(cfg.MaxBodySize.Int64()+1, math.MaxInt32)),
		}
		return &dataServer{
			serve: srv.Serve,
			shutdown: func(ctx context.Context) error {
				done := make(chan error, 1)
				go func() { done <- srv.Shutdown() }()
				select {
				case err := <-done:
					return err
				case <-ctx.Done():
					return fmt.Errorf("fasthttp shutdown: %w", ctx.Err())
				}
			},
		}
	}

	srv := &http.Server{
		Handler:           httphost.Handler(adapter, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &dataServer{
		serve: func(ln net.Listener) error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		shutdown: srv.Shutdown,
	}
}

func newMetricsServer(collector *metrics.Collector, snapshot func() reader.Stats) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics.NewExporter(collector),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle(reader.StatsPath, reader.Handler(snapshot))
	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

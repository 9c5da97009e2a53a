package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/localweb/config"
	"github.com/angeloszaimis/localweb/internal/channel"
	"github.com/angeloszaimis/localweb/internal/handler"
	"github.com/angeloszaimis/localweb/internal/healthcheck"
	"github.com/angeloszaimis/localweb/internal/httpserver"
	"github.com/angeloszaimis/localweb/internal/metrics"
	"github.com/angeloszaimis/localweb/internal/rewriter"
	"github.com/angeloszaimis/localweb/pkg/logger"
)

type options struct {
	configPath string
	address    string
}

func main() {
	opts, err := parseArgs(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Proxy stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func parseArgs(args []string) (options, error) {
	parser := argparse.NewParser("localweb", "Forwards custom scheme requests to a fixed destination host")

	configPath := parser.String("c", "config", &argparse.Options{
		Help: "Path to a YAML config file (defaults to ./config/config.yaml or ./config.yaml)",
	})
	address := parser.String("a", "address", &argparse.Options{
		Help: "Proxy listen address, overrides server.address",
	})

	if err := parser.Parse(args); err != nil {
		return options{}, errors.New(parser.Usage(err))
	}

	return options{
		configPath: *configPath,
		address:    *address,
	}, nil
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.address != "" {
		cfg.Server.Address = opts.address
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// run wires the components and blocks until ctx is done or a listener fails.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	durations, err := cfg.Durations()
	if err != nil {
		return err
	}

	schemeCfg := cfg.SchemeTriple()
	destination := schemeCfg.DestinationScheme + "://" + schemeCfg.DestinationHost

	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)

	var prober *healthcheck.Prober
	if cfg.HealthCheck.Enabled {
		target, err := url.Parse(destination + cfg.HealthCheck.Path)
		if err != nil {
			return err
		}
		prober = healthcheck.New(target, durations.HealthCheckInterval, log, collector)
	}

	forwarder := channel.New(channel.NewTransport(durations.DialTimeout, durations.ResponseHeaderTimeout), log)
	rw := rewriter.New(schemeCfg, rewriter.Mode(cfg.Rewrite.Mode))
	forwardHandler := handler.NewForwardHandler(log, rw, forwarder, collector)

	timeouts := httpserver.Timeouts{
		Read: durations.ReadTimeout,
		Idle: durations.IdleTimeout,
	}

	proxySrv, err := httpserver.New(cfg.Server.Address, forwardHandler, timeouts)
	if err != nil {
		return err
	}

	var adminSrv *httpserver.Server
	if cfg.Admin.Address != "" {
		adminSrv, err = httpserver.New(cfg.Admin.Address, setupAdminRouter(collector, prober, forwarder, destination), httpserver.DefaultTimeouts)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		collector.Run(gctx)
		return nil
	})

	if prober != nil {
		g.Go(func() error {
			prober.Run(gctx)
			return nil
		})
	}

	g.Go(proxySrv.Start)
	if adminSrv != nil {
		g.Go(adminSrv.Start)
	}

	log.Info("Proxy started",
		slog.String("address", proxySrv.Addr()),
		slog.String("scheme", schemeCfg.Scheme),
		slog.String("destination", destination),
		slog.String("rewrite_mode", string(rw.Mode())))

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		if err := proxySrv.Shutdown(context.Background()); err != nil {
			log.Error("Error during proxy shutdown", slog.Any("err", err))
		}
		if adminSrv != nil {
			if err := adminSrv.Shutdown(context.Background()); err != nil {
				log.Error("Error during admin shutdown", slog.Any("err", err))
			}
		}
		return nil
	})

	return g.Wait()
}

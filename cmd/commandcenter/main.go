// Command commandcenter serves the account analysis API over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"goa.design/clue/debug"
	"goa.design/clue/log"

	"github.com/awsops/commandcenter/agent"
	"github.com/awsops/commandcenter/agent/architecture"
	"github.com/awsops/commandcenter/agent/cost"
	"github.com/awsops/commandcenter/agent/inventory"
	"github.com/awsops/commandcenter/cache"
	"github.com/awsops/commandcenter/cloud"
	"github.com/awsops/commandcenter/cloud/awsapi"
	"github.com/awsops/commandcenter/cloud/fixture"
	"github.com/awsops/commandcenter/config"
	"github.com/awsops/commandcenter/httpapi"
	"github.com/awsops/commandcenter/orchestrator"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration file")
		addrF   = flag.String("addr", "", "Listen address (overrides configuration)")
		dbgF    = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatal(ctx, err)
	}
	if *addrF != "" {
		cfg.HTTPAddr = *addrF
	}
	if *dbgF || cfg.LogLevel == "debug" {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		log.Fatal(ctx, err)
	}

	retry := cloud.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay}
	billing := cache.New(cfg.CacheTTL)
	registry := agent.NewRegistry(
		cost.New(provider, billing, cost.Options{
			WindowDays: cfg.CostWindowDays,
			Retry:      retry,
			CacheTTL:   cfg.CacheTTL,
		}),
		inventory.New(provider, inventory.Options{
			Workers:     cfg.ScanWorkers,
			ScanTimeout: cfg.ScanTimeout,
			Retry:       retry,
		}),
		architecture.New(provider, architecture.Options{Retry: retry}),
	)
	coord := orchestrator.New(registry)

	var handler http.Handler = httpapi.New(coord).Handler()
	if *dbgF {
		handler = debug.HTTP()(handler)
	}
	handler = log.HTTP(ctx)(handler)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler, ReadHeaderTimeout: 60 * time.Second}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf(ctx, "HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf(ctx, err, "graceful shutdown failed")
	}

	wg.Wait()
	log.Printf(ctx, "exited")
}

// buildProvider wires the configured telemetry backend. The fixture
// provider serves canned demo data and is rejected by config validation in
// prod mode.
func buildProvider(ctx context.Context, cfg config.Config) (cloud.Provider, error) {
	switch cfg.Provider {
	case "fixture":
		log.Printf(ctx, "using canned demo data")
		return fixture.Demo(), nil
	default:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load AWS configuration: %w", err)
		}
		return awsapi.New(awsCfg, awsapi.Options{RoleName: cfg.RoleName}), nil
	}
}

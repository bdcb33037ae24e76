package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// arguments holds command-line arguments parsed by go-arg
type arguments struct {
	Listen    string  `arg:"-l,--listen" help:"Socket URL (tcp:host:port or unix:/path)"`
	Config    string  `arg:"-c,--config,required" help:"Path to the YAML route file"`
	Workers   int     `arg:"-w,--workers" help:"Max concurrent CGI invocations (default 4)"`
	MaxRPS    float64 `arg:"--max-rps" help:"Request rate limit in requests/second; 0 disables"`
	LogFormat string  `arg:"--log-format" help:"Log format: 'json' (default) or 'text'"`
	LogLevel  string  `arg:"--log-level" help:"Log level: debug, info, warn or error"`
}

func parseArgs() arguments {
	args := arguments{
		Listen:    "tcp::8080",
		Workers:   4,
		LogFormat: "json",
		LogLevel:  "info",
	}
	arg.MustParse(&args)
	return args
}

func main() {
	args := parseArgs()
	slog.SetDefault(setupLogger(args.LogFormat, args.LogLevel))
	slog.Info("starting cgi-bridge", "listen", args.Listen, "workers", args.Workers, "config", args.Config)

	cfg, err := loadConfig(args.Config)
	if err != nil {
		slog.Error("loading config failed", "err", err)
		os.Exit(1)
	}

	router, err := buildRouter(cfg)
	if err != nil {
		slog.Error("building router failed", "err", err)
		os.Exit(1)
	}

	l, sockPath, err := setupListener(args.Listen)
	if err != nil {
		slog.Error("initializing listener failed", "err", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	var sem *semaphore.Weighted
	if args.Workers > 0 {
		sem = semaphore.NewWeighted(int64(args.Workers))
	}
	var limiter *rate.Limiter
	if args.MaxRPS > 0 {
		burst := int(args.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(args.MaxRPS), burst)
	}

	srv := &http.Server{Handler: gatewayHandler(&wg, sem, limiter, router)}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("serve error", "error", err)
		}
	case <-sigCh:
		slog.Info("shutdown signal received, waiting for active handlers")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("server shutdown", "error", err)
	}

	c := make(chan struct{})
	go func() { wg.Wait(); close(c) }()
	select {
	case <-c:
		slog.Info("all handlers completed")
	case <-ctx.Done():
		slog.Warn("timeout waiting for handlers to finish")
	}

	if sockPath != "" {
		_ = os.Remove(sockPath)
		slog.Debug("removed unix socket", "path", sockPath)
	}
}

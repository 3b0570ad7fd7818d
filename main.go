package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/eflow-agent/server/internal/agent/runner"
	"github.com/eflow-agent/server/internal/agent/tools"
	"github.com/eflow-agent/server/internal/core"
	errx "github.com/eflow-agent/server/internal/core/error"
	"github.com/eflow-agent/server/internal/everflow"
	"github.com/eflow-agent/server/internal/metrics"
	"github.com/eflow-agent/server/internal/resolver"
	"github.com/eflow-agent/server/internal/validator"
	logx "github.com/eflow-agent/server/pkg/logger"
	pkgredis "github.com/eflow-agent/server/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"APP_ENV" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`
	MetricsAddr string           `envconfig:"METRICS_ADDR"`

	// Infrastructure
	Redis pkgredis.Config

	Everflow  everflow.Config
	Resolver  resolver.Config
	Validator validator.Config
	Runner    runner.Config
}

const usage = `usage: eflow <tool> '<json arguments>'

tools:
  resolve_entity            {"kind":"offer","value":"Summer Promo [US]"}
  list_entities             {"kind":"affiliate","search":"acme"}
  entity_report             {"columns":["offer"],"filters":{"country":"United Kingdom"}}
  update_conversion_status  {"conversion_ids":["abc"],"status":"approved"}`

func main() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: Could not load .env file: %v\n", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to process environment config: %v\n", err)
		os.Exit(1)
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel})

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	call := runner.Call{Name: os.Args[1], Raw: "{}"}
	if len(os.Args) > 2 {
		call.Raw = os.Args[2]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, call); err != nil {
		logx.Error().Err(err).Str("tool", call.Name).Msg("Tool call failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg AppConfig, call runner.Call) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg)
	}

	// A nil Cmdable keeps the resolver on its memory cache.
	var rdb goredis.Cmdable
	client, err := cfg.Redis.New(ctx)
	switch {
	case errors.Is(err, pkgredis.ErrDisabled):
		logx.Debug().Msg("Redis disabled")
	case err != nil:
		return fmt.Errorf("initialise redis: %w", err)
	default:
		defer client.Close()
		rdb = client
		logx.Info().Msg("Connected to Redis")
	}

	v := validator.New(cfg.Validator.Source())
	v.Initialize(ctx)
	for path, res := range v.ValidateAll() {
		if !res.Valid {
			logx.Warn().Str("path", path).Strs("errors", res.Errors).Msg("Endpoint table entry is invalid")
		}
	}

	upstream, err := everflow.NewClient(cfg.Everflow,
		everflow.WithValidator(v),
		everflow.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	cache, err := cfg.Resolver.NewCache(rdb, cfg.Redis.KeyPrefix)
	if err != nil {
		return err
	}
	res := resolver.New(upstream,
		resolver.WithCache(cache),
		resolver.WithMetrics(m),
		resolver.WithSnapshotTTL(cfg.Resolver.SnapshotTTL),
	)

	businessTools, err := tools.New(tools.Deps{Resolver: res, Upstream: upstream})
	if err != nil {
		return err
	}
	r, err := runner.New(ctx, businessTools, runner.WithMaxCalls(cfg.Runner.MaxCalls))
	if err != nil {
		return err
	}

	results, err := r.Run(ctx, call)
	if err != nil {
		if msg, ok := describeFailure(v, err); ok {
			fmt.Fprintln(os.Stderr, msg)
		}
		return err
	}

	for _, out := range results {
		var pretty any
		if json.Unmarshal([]byte(out.Content), &pretty) == nil {
			if b, err := json.MarshalIndent(pretty, "", "  "); err == nil {
				fmt.Println(string(b))
				continue
			}
		}
		fmt.Println(out.Content)
	}
	return nil
}

// describeFailure renders upstream and validation failures for the user.
func describeFailure(v *validator.Validator, err error) (string, bool) {
	var apiErr *everflow.APIError
	switch {
	case errors.As(err, &apiErr):
		return v.Describe(err, apiErr.Path, apiErr.Method, nil), true
	case errors.Is(err, errx.ErrValidation):
		return v.Describe(err, "", "", nil), true
	}
	return "", false
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logx.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logx.Error().Err(err).Msg("Metrics server stopped")
	}
}

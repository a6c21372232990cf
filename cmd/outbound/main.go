// Command outbound sends requests through the resilient outbound client and
// prints each result followed by the health report and open alerts.
//
//	outbound -endpoint dictionary https://api.example.com/v1/words/hello
//
// Configuration comes from config.yml, .env and OUTBOUND_* variables.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kbukum/outbound/bootstrap"
	"github.com/kbukum/outbound/config"
	"github.com/kbukum/outbound/database"
	"github.com/kbukum/outbound/httpclient"
	"github.com/kbukum/outbound/logger"
	"github.com/kbukum/outbound/monitoring"
	"github.com/kbukum/outbound/observability"
	"github.com/kbukum/outbound/orchestrator"
	"github.com/kbukum/outbound/redis"
	"github.com/kbukum/outbound/version"
)

type cliFlags struct {
	configFile string
	endpoint   string
	method     string
	body       string
	skipCache  bool
	version    bool
	urls       []string
}

func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "path to config.yml")
	fs.StringVar(&f.endpoint, "endpoint", "dictionary", "endpoint policy to apply")
	fs.StringVar(&f.method, "method", "GET", "HTTP method")
	fs.StringVar(&f.body, "body", "", "JSON request body")
	fs.BoolVar(&f.skipCache, "no-cache", false, "bypass both cache tiers")
	fs.BoolVar(&f.version, "version", false, "print the build version and exit")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	f.urls = fs.Args()
	if len(f.urls) == 0 && !f.version {
		return f, fmt.Errorf("at least one url is required")
	}
	return f, nil
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "outbound:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	if flags.version {
		_, err := fmt.Fprintln(out, version.Get())
		return err
	}

	cfg := defaultConfig()
	var loadOpts []config.LoaderOption
	if flags.configFile != "" {
		loadOpts = append(loadOpts, config.WithConfigFile(flags.configFile))
	}
	if err := config.LoadConfig(serviceName, &cfg, loadOpts...); err != nil {
		return err
	}

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		return err
	}

	var (
		db *database.Component
		rc *redis.Component
	)
	switch {
	case cfg.Store.Database.Enabled:
		db = database.NewComponent(cfg.Store.Database, app.Logger)
		if err := app.RegisterComponent(db); err != nil {
			return err
		}
	case cfg.Store.Redis.Enabled:
		rc = redis.NewComponent(cfg.Store.Redis, app.Logger)
		if err := app.RegisterComponent(rc); err != nil {
			return err
		}
	}

	var client *orchestrator.Client
	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
		transport, err := httpclient.NewTransport(a.Cfg.Transport)
		if err != nil {
			return err
		}

		opts := []orchestrator.Option{
			orchestrator.WithLogger(a.Logger),
			orchestrator.WithNotifier(alertLogger(a.Logger)),
		}
		// EntryStore is nil until its component has started.
		if db != nil && db.EntryStore() != nil {
			opts = append(opts,
				orchestrator.WithStore(db.EntryStore()),
				orchestrator.WithRecordSink(db.RecordStore()))
		}
		if rc != nil && rc.EntryStore() != nil {
			opts = append(opts, orchestrator.WithStore(rc.EntryStore()))
		}
		if a.Cfg.Telemetry.Enabled {
			inst, err := initTelemetry(ctx, a)
			if err != nil {
				return err
			}
			opts = append(opts, orchestrator.WithInstruments(inst))
		}

		client, err = orchestrator.New(ctx, a.Cfg.Outbound, transport, opts...)
		if err != nil {
			return err
		}
		return a.RegisterComponent(client)
	})

	return app.RunTask(ctx, func(ctx context.Context) error {
		return issue(ctx, client, flags, out)
	})
}

// initTelemetry installs the OTLP providers and flushes them on stop.
func initTelemetry(ctx context.Context, a *bootstrap.App[*Config]) (*observability.Instruments, error) {
	tp, err := observability.InitTracer(ctx, a.Cfg.Telemetry.Tracing)
	if err != nil {
		return nil, err
	}
	mp, err := observability.InitMeter(ctx, a.Cfg.Telemetry.Metrics)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	a.OnStop(func(ctx context.Context) error {
		if err := mp.Shutdown(ctx); err != nil {
			return err
		}
		return tp.Shutdown(ctx)
	})
	return observability.NewInstruments(mp.Meter("github.com/kbukum/outbound"))
}

func alertLogger(log *logger.Logger) monitoring.Notifier {
	return monitoring.NotifierFunc(func(_ context.Context, alert monitoring.Alert) error {
		level := "warn"
		switch alert.Severity {
		case monitoring.SeverityCritical:
			level = "error"
		case monitoring.SeverityLow:
			level = "info"
		}
		log.Log(level, alert.Message, logger.Fields(
			logger.FieldRule, alert.RuleName,
			logger.FieldEndpoint, alert.Endpoint,
			logger.FieldSeverity, string(alert.Severity),
		))
		return nil
	})
}

type result struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	Cached     bool   `json:"cached"`
	Tier       string `json:"tier,omitempty"`
	RetryCount int    `json:"retry_count"`
	DurationMs int64  `json:"duration_ms"`
	Bytes      int    `json:"bytes"`
	Error      string `json:"error,omitempty"`
}

type report struct {
	Results []result                `json:"results"`
	Health  monitoring.SystemHealth `json:"health"`
	Alerts  []monitoring.Alert      `json:"alerts"`
}

// issue sends every url in order and writes one JSON report. A failed
// request is reported, not returned, so later urls still run.
func issue(ctx context.Context, client *orchestrator.Client, flags cliFlags, out io.Writer) error {
	opts := orchestrator.RequestOptions{Method: flags.method, SkipCache: flags.skipCache}
	if flags.body != "" {
		opts.Body = json.RawMessage(flags.body)
	}

	rep := report{Results: make([]result, 0, len(flags.urls))}
	failed := 0
	for _, url := range flags.urls {
		if ctx.Err() != nil {
			break
		}
		res := result{URL: url}
		resp, err := client.Request(ctx, flags.endpoint, url, opts)
		if err != nil {
			failed++
			res.Error = err.Error()
		} else {
			res.StatusCode = resp.StatusCode
			res.Cached = resp.Cached
			res.Tier = string(resp.Tier)
			res.RetryCount = resp.RetryCount
			res.DurationMs = resp.Timing.Duration.Milliseconds()
			res.Bytes = len(resp.Body)
		}
		rep.Results = append(rep.Results, res)
	}
	rep.Health = client.SystemHealth()
	rep.Alerts = client.ActiveAlerts()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(flags.urls))
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/slacklytics/slacklytics/internal/config"
	"github.com/slacklytics/slacklytics/pkg/alert"
	"github.com/slacklytics/slacklytics/pkg/analysis"
	"github.com/slacklytics/slacklytics/pkg/logger"
	"github.com/slacklytics/slacklytics/pkg/pipeline"
	"github.com/slacklytics/slacklytics/pkg/report"
	"github.com/slacklytics/slacklytics/pkg/slackapi"
	"github.com/slacklytics/slacklytics/pkg/store"
	"github.com/slacklytics/slacklytics/pkg/telemetry"
)

func main() {
	logger.Init()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	switch os.Args[1] {
	case "fetch":
		runFetch(cfg, os.Args[2:])
	case "report":
		runReport(cfg, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func runFetch(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	var (
		channels  = fs.String("channels", "", "Comma-separated channel IDs (default: SLACK_CHANNELS)")
		days      = fs.Int("days", 1, "Fetch the last N days of history")
		archive   = fs.String("archive", "", "Ingest from an export archive directory instead of the API")
		chanName  = fs.String("channel-name", "", "Channel name for archive ingestion (required with -archive)")
		noThreads = fs.Bool("no-threads", false, "Skip thread reply expansion")
	)
	fs.Parse(args)

	ctx := context.Background()
	st := mustStore(ctx, cfg)
	slackClient := slackapi.New(cfg.Slack.BotToken)

	pipeCfg := pipeline.DefaultConfig()
	pipeCfg.BatchSize = cfg.Ingest.BatchSize
	pipeCfg.PageLimit = cfg.Ingest.PageLimit
	pipeCfg.IncludeThreads = cfg.Ingest.IncludeThreads && !*noThreads
	pipeCfg.PagePause = cfg.Ingest.PagePause
	pipeCfg.Timezone = cfg.Report.Timezone

	window := pipeline.Window{
		Oldest: time.Now().AddDate(0, 0, -*days),
		Latest: time.Now(),
	}

	if *archive != "" {
		if *chanName == "" {
			log.Fatal("-channel-name is required with -archive")
		}
		source := pipeline.NewArchiveSource(*archive)
		svc := pipeline.NewService(source, st, pipeCfg)
		result, err := svc.FetchAndStore(ctx, pipeline.Channel{ID: *chanName, Name: *chanName}, pipeline.Window{})
		if err != nil {
			log.Fatalf("Archive ingestion failed: %v", err)
		}
		fmt.Printf("Ingested %d documents from %s (%d failed)\n", result.Success, *archive, result.Failed)
		return
	}

	ids := cfg.Slack.Channels
	if *channels != "" {
		ids = splitList(*channels)
	}
	if len(ids) == 0 {
		log.Fatal("No channels configured; set SLACK_CHANNELS or pass -channels")
	}

	svc := pipeline.NewService(slackClient, st, pipeCfg)
	for _, id := range ids {
		channel, err := slackClient.ChannelInfo(ctx, id)
		if err != nil {
			log.Fatalf("Failed to resolve channel %s: %v", id, err)
		}
		result, err := svc.FetchAndStore(ctx, channel, window)
		if err != nil {
			log.Fatalf("Ingestion failed for #%s: %v", channel.Name, err)
		}
		fmt.Printf("#%s: %d documents indexed, %d failed\n", channel.Name, result.Success, result.Failed)
	}
}

func runReport(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	var (
		channels = fs.String("channels", "", "Comma-separated channel IDs (default: SLACK_CHANNELS)")
		kind     = fs.String("kind", "daily", "Report kind: 'daily' or 'weekly'")
		dateStr  = fs.String("date", "", "Report date YYYY-MM-DD (default: yesterday)")
		dryRun   = fs.Bool("dry-run", cfg.Report.DryRun, "Render the report without posting it")
		charts   = fs.Bool("charts", false, "Attach an hourly activity chart to weekly reports")
	)
	fs.Parse(args)

	if *kind != "daily" && *kind != "weekly" {
		log.Fatalf("Invalid -kind %q: must be 'daily' or 'weekly'", *kind)
	}

	date := time.Now().In(cfg.Report.Timezone).AddDate(0, 0, -1)
	if *dateStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", *dateStr, cfg.Report.Timezone)
		if err != nil {
			log.Fatalf("Invalid -date: %v", err)
		}
		date = parsed
	}

	ctx := context.Background()
	st := mustStore(ctx, cfg)
	slackClient := slackapi.New(cfg.Slack.BotToken)

	engine := analysis.NewEngine(st, analysis.Config{Timezone: cfg.Report.Timezone})

	var alerter *alert.Alerter
	if cfg.Alert.Channel != "" {
		minLevel, err := alert.ParseLevel(cfg.Alert.MinLevel)
		if err != nil {
			log.Fatalf("Invalid alert configuration: %v", err)
		}
		alerter = alert.New(slackClient, alert.Config{
			Channel:        cfg.Alert.Channel,
			MinLevel:       minLevel,
			ThrottleWindow: cfg.Alert.ThrottleWindow,
			HourlyLimit:    cfg.Alert.HourlyLimit,
		})
	}

	repCfg := report.Config{DryRun: *dryRun}
	if *charts {
		repCfg.Renderer = report.SVGChartRenderer{}
		repCfg.Uploader = slackClient
	}
	reporter := report.NewReporter(engine, slackClient, alerter, repCfg)

	ids := cfg.Slack.Channels
	if *channels != "" {
		ids = splitList(*channels)
	}
	if len(ids) == 0 {
		log.Fatal("No channels configured; set SLACK_CHANNELS or pass -channels")
	}

	failed := 0
	for _, id := range ids {
		channel, err := slackClient.ChannelInfo(ctx, id)
		if err != nil {
			log.Fatalf("Failed to resolve channel %s: %v", id, err)
		}
		switch *kind {
		case "daily":
			err = reporter.PostDaily(ctx, channel, date)
		case "weekly":
			err = reporter.PostWeekly(ctx, channel, date)
		}
		if err != nil {
			logger.L().Error("report failed", "channel", channel.Name, "kind", *kind, "err", err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func mustStore(ctx context.Context, cfg *config.Config) *store.ES {
	st, err := store.NewES(ctx, store.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Elasticsearch: %v", err)
	}
	return st
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.L().Error("metrics server stopped", "err", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printUsage() {
	fmt.Println("Slacklytics - Slack channel analytics")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  slacklytics fetch [flags]    Ingest channel history into the store")
	fmt.Println("  slacklytics report [flags]   Compute and post channel reports")
	fmt.Println()
	fmt.Println("Run 'slacklytics <command> -h' for command flags.")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  SLACK_BOT_TOKEN           Bot token (required)")
	fmt.Println("  SLACK_CHANNELS            Default channel IDs, comma separated")
	fmt.Println("  ELASTICSEARCH_ADDRESSES   Store addresses (default http://localhost:9200)")
	fmt.Println("  SLACKLYTICS_TIMEZONE      Reporting timezone (default UTC)")
	fmt.Println("  ALERT_CHANNEL             Channel for operational alerts (optional)")
	fmt.Println("  METRICS_ADDR              Prometheus endpoint address (optional)")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"ytdownloader/internal/adapters/apify"
	"ytdownloader/internal/adapters/backend"
	"ytdownloader/internal/adapters/downloader"
	"ytdownloader/internal/adapters/ffmpeg"
	"ytdownloader/internal/adapters/localstorage"
	"ytdownloader/internal/adapters/objectstore"
	"ytdownloader/internal/adapters/redisstatus"
	"ytdownloader/internal/adapters/webpage"
	"ytdownloader/internal/adapters/youtube"
	"ytdownloader/internal/adapters/ytdlp"
	"ytdownloader/internal/config"
	"ytdownloader/internal/core/ports"
	"ytdownloader/internal/logging"
	"ytdownloader/internal/service"
)

func main() {
	if err := config.LoadDotEnv(""); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, cancelling...")
		cancel()
	}()

	os.Exit(run(ctx, os.Args[1:], os.Getenv, os.Stdout))
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, args []string, getenv func(string) string, stdout io.Writer) int {
	cfg := config.FromEnv(getenv)

	if len(args) > 0 && args[0] == "list" {
		return listManifest(ctx, cfg, args[1:], stdout)
	}

	fs := flag.NewFlagSet("ytdownloader", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: ytdownloader -url <video-url> [flags]")
		fmt.Fprintln(fs.Output(), "       ytdownloader list [-manifest <path>]")
		fs.PrintDefaults()
	}
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if cfg.URL == "" && fs.NArg() > 0 {
		cfg.URL = fs.Arg(0)
	}

	cfgErr := cfg.Finalize()
	logger := logging.New(stdout, cfg.LogLevel, cfg.LogFormat)
	jobLog := logger.WithField("job", cfg.JobID)

	httpReporter := backend.NewHTTPReporter(cfg.BackendURL, cfg.JobID, cfg.Secret, cfg.ProgressTimeout, jobLog)
	reporter := backend.MultiReporter{httpReporter}
	if cfg.Redis.Enabled() {
		rs := redisstatus.New(redisstatus.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.JobID, jobLog)
		defer rs.Close()
		reporter = append(reporter, rs)
	}

	if cfgErr != nil {
		jobLog.Errorf("Configuration error: %v", cfgErr)
		reporter.Report(ctx, service.FailureMessage(cfgErr), service.ProgressDone, nil)
		return 1
	}

	orchestrator, err := buildOrchestrator(cfg, reporter, logger)
	if err != nil {
		jobLog.Errorf("Setup failed: %v", err)
		reporter.Report(ctx, service.FailureMessage(err), service.ProgressDone, nil)
		return 1
	}

	result, err := orchestrator.RunJob(ctx, service.Request{JobID: cfg.JobID, URL: cfg.URL})
	if err != nil {
		return 1
	}

	fmt.Fprintln(stdout, "\n=== Job Summary ===")
	fmt.Fprintf(stdout, "Job ID:       %s\n", result.Job.ID)
	fmt.Fprintf(stdout, "Title:        %s\n", result.Record.Title)
	fmt.Fprintf(stdout, "Video:        %s\n", result.VideoPath)
	if result.AudioPath != "" {
		fmt.Fprintf(stdout, "Audio:        %s\n", result.AudioPath)
	}
	fmt.Fprintf(stdout, "Completed At: %s\n", result.CompletedAt.Format(time.RFC3339))
	return 0
}

func buildOrchestrator(cfg config.Config, reporter ports.Reporter, logger *log.Logger) (*service.Orchestrator, error) {
	jobLog := logger.WithField("job", cfg.JobID)

	ytDlp := ytdlp.NewYtDlpDownloader(cfg.YtDlpPath, jobLog)
	httpDL := downloader.NewHTTPDownloader(30 * time.Second)

	var fetcher ports.MetadataFetcher
	switch cfg.MetadataSource {
	case config.SourceYouTube:
		fetcher = youtube.NewFetcher(httpDL.Client())
	case config.SourceWebpage:
		fetcher = webpage.NewFetcher(httpDL)
	case config.SourceApify:
		scraper, err := apify.NewApifyScraper(cfg.ApifyToken, cfg.ApifyBaseURL)
		if err != nil {
			return nil, err
		}
		fetcher = scraper
	case config.SourceAuto:
		chain := &service.FetcherChain{
			Logger: jobLog,
			Fetchers: []service.NamedFetcher{
				{Name: config.SourceYtDlp, Fetcher: ytDlp},
				{Name: config.SourceYouTube, Fetcher: youtube.NewFetcher(httpDL.Client())},
				{Name: config.SourceWebpage, Fetcher: webpage.NewFetcher(httpDL)},
			},
		}
		if cfg.ApifyToken != "" {
			if scraper, err := apify.NewApifyScraper(cfg.ApifyToken, cfg.ApifyBaseURL); err == nil {
				chain.Fetchers = append(chain.Fetchers, service.NamedFetcher{Name: config.SourceApify, Fetcher: scraper})
			}
		}
		fetcher = chain
	default:
		fetcher = ytDlp
	}

	var publisher ports.Publisher
	if cfg.Minio.Enabled() {
		p, err := objectstore.NewMinioPublisher(objectstore.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
			Prefix:    cfg.Minio.Prefix,
		}, jobLog)
		if err != nil {
			return nil, err
		}
		publisher = p
	}

	return service.NewOrchestrator(
		fetcher,
		ytDlp,
		ffmpeg.NewTranscoder(cfg.FFmpegPath, jobLog),
		localstorage.NewLocalStorage(cfg.WorkDir, cfg.OutputDir),
		localstorage.NewManifest(cfg.ManifestPath),
		reporter,
		publisher,
		service.Options{
			PublicPrefix: cfg.PublicPrefix,
			AudioExt:     cfg.AudioExt(),
			Cookies:      cfg.Cookies,
		},
		logger,
	), nil
}

func listManifest(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.StringVar(&cfg.ManifestPath, "manifest", cfg.ManifestPath, "path of the JSON manifest")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	records, err := localstorage.NewManifest(cfg.ManifestPath).Load(ctx)
	if err != nil {
		fmt.Fprintln(stdout, err)
		return 1
	}
	if len(records) == 0 {
		fmt.Fprintln(stdout, "No videos yet.")
		return 0
	}
	for i, r := range records {
		fmt.Fprintf(stdout, "%2d. %s - %s\n    %s\n", i+1, r.Title, r.Author, r.VideoPath)
	}
	return 0
}

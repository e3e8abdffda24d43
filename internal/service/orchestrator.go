package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"ytdownloader/internal/adapters/toolexec"
	"ytdownloader/internal/core/domain"
	"ytdownloader/internal/core/ports"
	"ytdownloader/internal/naming"
)

// Progress values reported at the start of each stage.
const (
	ProgressStart    = 5
	ProgressVideo    = 15
	ProgressAudio    = 45
	ProgressMerge    = 70
	ProgressConvert  = 85
	ProgressPublish  = 90
	ProgressManifest = 95
	ProgressDone     = 100
)

// CompleteMessage is the final message of a successful job.
const CompleteMessage = "Complete"

// CookieUser is implemented by adapters that can pass cookies to the site.
type CookieUser interface {
	UseCookies(path string)
}

// Options holds per-run settings for the orchestrator.
type Options struct {
	PublicPrefix string // prefix of videoPath/audioPath in the manifest
	AudioExt     string // "mp3", "m4a" or "" for no standalone audio file
	Cookies      string // optional Netscape cookie payload
}

// Request identifies a job.
type Request struct {
	JobID string
	URL   string
}

// Orchestrator coordinates the download workflow.
type Orchestrator struct {
	fetcher    ports.MetadataFetcher
	downloader ports.StreamDownloader
	transcoder ports.Transcoder
	workspace  ports.Workspace
	manifest   ports.Manifest
	reporter   ports.Reporter
	publisher  ports.Publisher // optional
	opts       Options
	logger     log.FieldLogger
}

// NewOrchestrator creates a new Orchestrator. publisher may be nil.
func NewOrchestrator(
	fetcher ports.MetadataFetcher,
	downloader ports.StreamDownloader,
	transcoder ports.Transcoder,
	workspace ports.Workspace,
	manifest ports.Manifest,
	reporter ports.Reporter,
	publisher ports.Publisher,
	opts Options,
	logger log.FieldLogger,
) *Orchestrator {
	return &Orchestrator{
		fetcher:    fetcher,
		downloader: downloader,
		transcoder: transcoder,
		workspace:  workspace,
		manifest:   manifest,
		reporter:   reporter,
		publisher:  publisher,
		opts:       opts,
		logger:     logger,
	}
}

// RunJob executes a complete download job for req. On failure the error is
// reported to the backend at 100% and returned.
func (o *Orchestrator) RunJob(ctx context.Context, req Request) (*domain.JobResult, error) {
	job := domain.Job{
		ID:        req.JobID,
		URL:       req.URL,
		CreatedAt: time.Now().UTC(),
	}
	result := &domain.JobResult{Job: job}
	logger := o.logger.WithField("job", job.ID)
	logger.Infof("Starting job for URL: %s", job.URL)

	err := o.run(ctx, logger, result)
	if cleanupErr := o.workspace.Cleanup(); cleanupErr != nil {
		logger.Warnf("Cleanup failed: %v", cleanupErr)
	}
	if err != nil {
		result.ErrorMessage = FailureMessage(err)
		logger.Errorf("Job failed: %s", result.ErrorMessage)
		// The job context may already be cancelled; the failure still has
		// to reach the tracker.
		o.reporter.Report(context.WithoutCancel(ctx), result.ErrorMessage, ProgressDone, nil)
		return result, err
	}

	result.Success = true
	result.CompletedAt = time.Now().UTC()
	o.reporter.Report(ctx, CompleteMessage, ProgressDone, result.Record)
	logger.Infof("Job completed successfully: %s", result.VideoPath)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, logger log.FieldLogger, result *domain.JobResult) error {
	job := result.Job

	workDir, err := o.workspace.InitWorkspace(ctx, job.ID)
	if err != nil {
		return err
	}
	if o.opts.Cookies != "" {
		cookieFile, err := o.workspace.WriteCookies(ctx, o.opts.Cookies)
		if err != nil {
			return err
		}
		o.useCookies(cookieFile)
	}

	// Step 1: metadata
	o.reporter.Report(ctx, "Fetching video details...", ProgressStart, nil)
	info, err := o.fetcher.FetchInfo(ctx, job.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch video details: %w", err)
	}
	result.Info = info
	logger.Infof("Fetched video: %q by %q", info.Title, info.Author)

	outDir, err := o.workspace.OutputDir()
	if err != nil {
		return err
	}
	// Outputs are built under a hidden staging directory next to their final
	// location and only renamed into place once every stage has succeeded, so
	// a failed rerun never touches files an existing record points to.
	stageDir, err := os.MkdirTemp(outDir, ".staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stageDir)

	base := naming.BaseName(info.Title, job.ID)
	videoFile := naming.VideoFilename(base)
	videoStaged := filepath.Join(stageDir, videoFile)

	// Step 2 and 3: adaptive streams
	videoTmp := filepath.Join(workDir, "video.mp4")
	audioTmp := filepath.Join(workDir, "audio.m4a")

	msg := "Downloading video: " + info.Title
	if info.Resolution != "" {
		msg += " (" + info.Resolution + ")"
	}
	o.reporter.Report(ctx, msg, ProgressVideo, nil)
	if err := o.downloader.DownloadStream(ctx, job.URL, domain.StreamVideo, videoTmp); err != nil {
		return fmt.Errorf("failed to download video stream: %w", err)
	}

	o.reporter.Report(ctx, "Downloading audio...", ProgressAudio, nil)
	if err := o.downloader.DownloadStream(ctx, job.URL, domain.StreamAudio, audioTmp); err != nil {
		return fmt.Errorf("failed to download audio stream: %w", err)
	}

	// Step 4: merge
	o.reporter.Report(ctx, "Merging video and audio...", ProgressMerge, nil)
	if err := o.transcoder.Merge(ctx, videoTmp, audioTmp, videoStaged); err != nil {
		return fmt.Errorf("failed to merge streams: %w", err)
	}
	staged := []string{videoStaged}

	// Step 5: standalone audio
	audioFile := ""
	if o.opts.AudioExt != "" {
		audioFile = naming.AudioFilename(base, o.opts.AudioExt)
		audioStaged := filepath.Join(stageDir, audioFile)
		o.reporter.Report(ctx, "Converting audio...", ProgressConvert, nil)
		if err := o.transcoder.ExtractAudio(ctx, audioTmp, audioStaged); err != nil {
			return fmt.Errorf("failed to convert audio: %w", err)
		}
		staged = append(staged, audioStaged)
	}

	// Step 6: optional upload
	if o.publisher != nil {
		o.reporter.Report(ctx, "Uploading files...", ProgressPublish, nil)
		if err := o.publisher.Publish(ctx, job.ID, staged...); err != nil {
			return fmt.Errorf("failed to upload files: %w", err)
		}
	}

	for _, src := range staged {
		dst := filepath.Join(outDir, filepath.Base(src))
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to move %s into place: %w", filepath.Base(src), err)
		}
	}
	result.VideoPath = filepath.Join(outDir, videoFile)
	if audioFile != "" {
		result.AudioPath = filepath.Join(outDir, audioFile)
	}

	// Step 7: manifest
	record := domain.VideoRecord{
		Title:     info.Title,
		Author:    info.Author,
		VideoFile: videoFile,
		VideoPath: naming.PublicPath(o.opts.PublicPrefix, videoFile),
	}
	if audioFile != "" {
		record.AudioFile = audioFile
		record.AudioPath = naming.PublicPath(o.opts.PublicPrefix, audioFile)
	}
	o.reporter.Report(ctx, "Updating library...", ProgressManifest, nil)
	if err := o.manifest.Prepend(ctx, record); err != nil {
		return fmt.Errorf("failed to update manifest: %w", err)
	}
	result.Record = &record
	return nil
}

func (o *Orchestrator) useCookies(path string) {
	for _, c := range []any{o.fetcher, o.downloader} {
		if cu, ok := c.(CookieUser); ok {
			cu.UseCookies(path)
		}
	}
}

// FailureMessage formats err for the tracker. Tool failures include the
// captured stderr.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "Error: job cancelled"
	}
	msg := err.Error()
	if te, ok := toolexec.AsToolError(err); ok && te.Stderr != "" && !strings.Contains(msg, te.Stderr) {
		msg += ": " + te.Stderr
	}
	return "Error: " + msg
}

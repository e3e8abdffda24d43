package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ytdownloader/internal/adapters/localstorage"
	"ytdownloader/internal/adapters/toolexec"
	"ytdownloader/internal/core/domain"
	"ytdownloader/internal/logging"
)

type fakeFetcher struct {
	info    *domain.VideoInfo
	err     error
	cookies string
}

func (f *fakeFetcher) FetchInfo(ctx context.Context, url string) (*domain.VideoInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := *f.info
	return &v, nil
}

func (f *fakeFetcher) UseCookies(path string) { f.cookies = path }

type fakeDownloader struct {
	failOn  domain.StreamKind
	err     error
	kinds   []domain.StreamKind
	cookies string
}

func (d *fakeDownloader) DownloadStream(ctx context.Context, url string, kind domain.StreamKind, dest string) error {
	d.kinds = append(d.kinds, kind)
	if kind == d.failOn {
		return d.err
	}
	return os.WriteFile(dest, []byte(string(kind)), 0o644)
}

func (d *fakeDownloader) UseCookies(path string) { d.cookies = path }

type fakeTranscoder struct {
	mergeErr error
	audioErr error
	merged   []string
}

func (t *fakeTranscoder) Merge(ctx context.Context, v, a, out string) error {
	if t.mergeErr != nil {
		return t.mergeErr
	}
	t.merged = append(t.merged, v, a)
	return os.WriteFile(out, []byte("merged"), 0o644)
}

func (t *fakeTranscoder) ExtractAudio(ctx context.Context, in, out string) error {
	if t.audioErr != nil {
		return t.audioErr
	}
	return os.WriteFile(out, []byte("audio"), 0o644)
}

type event struct {
	message  string
	progress int
	final    *domain.VideoRecord
}

type recordingReporter struct {
	events []event
}

func (r *recordingReporter) Report(ctx context.Context, message string, progress int, final *domain.VideoRecord) {
	r.events = append(r.events, event{message, progress, final})
}

func (r *recordingReporter) last() event { return r.events[len(r.events)-1] }

type fakePublisher struct {
	err   error
	paths []string
}

func (p *fakePublisher) Publish(ctx context.Context, jobID string, paths ...string) error {
	p.paths = append(p.paths, paths...)
	return p.err
}

type fixture struct {
	root       string
	outDir     string
	manifest   *localstorage.Manifest
	storage    *localstorage.LocalStorage
	fetcher    *fakeFetcher
	downloader *fakeDownloader
	transcoder *fakeTranscoder
	reporter   *recordingReporter
	publisher  *fakePublisher
	opts       Options
}

func newFixture(t *testing.T) *fixture {
	root := t.TempDir()
	f := &fixture{
		root:       root,
		outDir:     filepath.Join(root, "public", "videos"),
		manifest:   localstorage.NewManifest(filepath.Join(root, "public", "videos.json")),
		fetcher:    &fakeFetcher{info: &domain.VideoInfo{Title: "My/Video:Title?", Author: "Someone", Resolution: "1080p"}},
		downloader: &fakeDownloader{},
		transcoder: &fakeTranscoder{},
		reporter:   &recordingReporter{},
		opts:       Options{PublicPrefix: "public/videos", AudioExt: "mp3"},
	}
	f.storage = localstorage.NewLocalStorage(filepath.Join(root, "work"), f.outDir)
	return f
}

func (f *fixture) orchestrator() *Orchestrator {
	o := NewOrchestrator(f.fetcher, f.downloader, f.transcoder, f.storage, f.manifest, f.reporter, nil, f.opts, logging.Discard())
	if f.publisher != nil {
		o.publisher = f.publisher
	}
	return o
}

func TestRunJobSuccess(t *testing.T) {
	f := newFixture(t)
	res, err := f.orchestrator().RunJob(context.Background(), Request{JobID: "job-1", URL: "https://youtu.be/x"})
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}

	records, _ := f.manifest.Load(context.Background())
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	want := domain.VideoRecord{
		Title:     "My/Video:Title?",
		Author:    "Someone",
		VideoFile: "MyVideoTitle.mp4",
		AudioFile: "MyVideoTitle_audio.mp3",
		VideoPath: "public/videos/MyVideoTitle.mp4",
		AudioPath: "public/videos/MyVideoTitle_audio.mp3",
	}
	if records[0] != want {
		t.Errorf("record = %+v, want %+v", records[0], want)
	}
	for _, name := range []string{want.VideoFile, want.AudioFile} {
		if _, err := os.Stat(filepath.Join(f.outDir, name)); err != nil {
			t.Errorf("output %s missing: %v", name, err)
		}
	}
	if _, err := os.Stat(f.storage.GetJobPath("job-1")); !os.IsNotExist(err) {
		t.Errorf("workspace should be cleaned up, stat err = %v", err)
	}

	wantProgress := []int{ProgressStart, ProgressVideo, ProgressAudio, ProgressMerge, ProgressConvert, ProgressManifest, ProgressDone}
	if len(f.reporter.events) != len(wantProgress) {
		t.Fatalf("events = %+v", f.reporter.events)
	}
	for i, p := range wantProgress {
		if f.reporter.events[i].progress != p {
			t.Errorf("event %d progress = %d, want %d", i, f.reporter.events[i].progress, p)
		}
	}
	final := f.reporter.last()
	if final.message != CompleteMessage || final.final == nil || *final.final != want {
		t.Errorf("final event = %+v", final)
	}
	if !strings.Contains(f.reporter.events[1].message, "(1080p)") {
		t.Errorf("video message = %q", f.reporter.events[1].message)
	}
}

func TestRunJobPrependsToExistingManifest(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(filepath.Dir(f.manifest.Path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.manifest.Path, []byte(`[{"title":"older"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orchestrator().RunJob(context.Background(), Request{JobID: "j", URL: "u"}); err != nil {
		t.Fatal(err)
	}
	records, _ := f.manifest.Load(context.Background())
	if len(records) != 2 || records[0].Title != "My/Video:Title?" || records[1].Title != "older" {
		t.Errorf("records = %+v", records)
	}
}

func TestRunJobWithoutStandaloneAudio(t *testing.T) {
	f := newFixture(t)
	f.opts.AudioExt = ""
	res, err := f.orchestrator().RunJob(context.Background(), Request{JobID: "j", URL: "u"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Record.AudioFile != "" || res.Record.AudioPath != "" || res.AudioPath != "" {
		t.Errorf("record = %+v", res.Record)
	}
	for _, e := range f.reporter.events {
		if e.progress == ProgressConvert {
			t.Errorf("unexpected convert stage: %+v", e)
		}
	}
}

func TestRunJobToolFailureReportsStderr(t *testing.T) {
	f := newFixture(t)
	f.transcoder.mergeErr = &toolexec.ToolError{Tool: "ffmpeg", ExitCode: 1, Stderr: "audio.m4a: Invalid data found when processing input"}

	res, err := f.orchestrator().RunJob(context.Background(), Request{JobID: "j", URL: "u"})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Success {
		t.Error("result should not be successful")
	}
	final := f.reporter.last()
	if final.progress != ProgressDone || final.final != nil {
		t.Errorf("final event = %+v", final)
	}
	if !strings.HasPrefix(final.message, "Error: ") || !strings.Contains(final.message, "Invalid data found when processing input") {
		t.Errorf("final message = %q", final.message)
	}

	records, _ := f.manifest.Load(context.Background())
	if len(records) != 0 {
		t.Errorf("manifest should be untouched: %+v", records)
	}
	if _, err := os.Stat(filepath.Join(f.outDir, "MyVideoTitle.mp4")); !os.IsNotExist(err) {
		t.Errorf("partial output should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(f.storage.GetJobPath("j")); !os.IsNotExist(err) {
		t.Errorf("workspace should be cleaned up on failure, stat err = %v", err)
	}
}

func TestRunJobDownloadFailureStopsPipeline(t *testing.T) {
	f := newFixture(t)
	f.downloader.failOn = domain.StreamAudio
	f.downloader.err = &toolexec.ToolError{Tool: "yt-dlp", ExitCode: 1, Stderr: "ERROR: Requested format is not available"}

	if _, err := f.orchestrator().RunJob(context.Background(), Request{JobID: "j", URL: "u"}); err == nil {
		t.Fatal("expected error")
	}
	if len(f.transcoder.merged) != 0 {
		t.Error("merge must not run after a failed download")
	}
	if msg := f.reporter.last().message; !strings.Contains(msg, "Requested format is not available") {
		t.Errorf("final message = %q", msg)
	}
}

func TestRunJobMetadataFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = errors.New("video unavailable")
	if _, err := f.orchestrator().RunJob(context.Background(), Request{JobID: "j", URL: "u"}); err == nil {
		t.Fatal("expected error")
	}
	if len(f.downloader.kinds) != 0 {
		t.Errorf("downloads should not start: %v", f.downloader.kinds)
	}
	if last := f.reporter.last(); last.progress != 100 || !strings.Contains(last.message, "video unavailable") {
		t.Errorf("final event = %+v", last)
	}
}

func TestRunJobPublishes(t *testing.T) {
	f := newFixture(t)
	f.publisher = &fakePublisher{}
	if _, err := f.orchestrator().RunJob(context.Background(), Request{JobID: "j", URL: "u"}); err != nil {
		t.Fatal(err)
	}
	if len(f.publisher.paths) != 2 {
		t.Errorf("published = %v", f.publisher.paths)
	}

	f2 := newFixture(t)
	f2.publisher = &fakePublisher{err: errors.New("access denied")}
	if _, err := f2.orchestrator().RunJob(context.Background(), Request{JobID: "j", URL: "u"}); err == nil {
		t.Fatal("expected publish error")
	}
	if records, _ := f2.manifest.Load(context.Background()); len(records) != 0 {
		t.Errorf("manifest should be untouched: %+v", records)
	}
}

func TestRunJobPassesCookies(t *testing.T) {
	f := newFixture(t)
	f.opts.Cookies = "# Netscape HTTP Cookie File\n"
	if _, err := f.orchestrator().RunJob(context.Background(), Request{JobID: "j", URL: "u"}); err != nil {
		t.Fatal(err)
	}
	if f.downloader.cookies == "" || f.fetcher.cookies != f.downloader.cookies {
		t.Errorf("cookies not passed: fetcher=%q downloader=%q", f.fetcher.cookies, f.downloader.cookies)
	}
	if _, err := os.Stat(f.downloader.cookies); !os.IsNotExist(err) {
		t.Errorf("cookie file should be removed with the workspace")
	}
}

func TestRunJobEmptyTitleFallsBackToJobID(t *testing.T) {
	f := newFixture(t)
	f.fetcher.info = &domain.VideoInfo{Title: "???", Author: "a"}
	res, err := f.orchestrator().RunJob(context.Background(), Request{JobID: "abcdef123456", URL: "u"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Record.VideoFile != "video_abcdef12.mp4" {
		t.Errorf("VideoFile = %q", res.Record.VideoFile)
	}
}

func TestFailureMessage(t *testing.T) {
	te := &toolexec.ToolError{Tool: "yt-dlp", ExitCode: 1, Stderr: "boom"}
	if got := FailureMessage(te); got != "Error: yt-dlp exited with status 1: boom" {
		t.Errorf("FailureMessage = %q", got)
	}
	if got := FailureMessage(context.Canceled); got != "Error: job cancelled" {
		t.Errorf("FailureMessage(cancel) = %q", got)
	}
	if got := FailureMessage(nil); got != "" {
		t.Errorf("FailureMessage(nil) = %q", got)
	}
}

func TestRunJobFailedRerunKeepsEarlierOutputs(t *testing.T) {
	cases := []struct {
		name     string
		breakRun func(f *fixture)
	}{
		{"merge", func(f *fixture) { f.transcoder.mergeErr = errors.New("merge failed") }},
		{"convert", func(f *fixture) { f.transcoder.audioErr = errors.New("convert failed") }},
		{"publish", func(f *fixture) { f.publisher = &fakePublisher{err: errors.New("access denied")} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if _, err := f.orchestrator().RunJob(context.Background(), Request{JobID: "first", URL: "u"}); err != nil {
				t.Fatalf("first run: %v", err)
			}

			tc.breakRun(f)
			if _, err := f.orchestrator().RunJob(context.Background(), Request{JobID: "second", URL: "u"}); err == nil {
				t.Fatal("second run should fail")
			}

			records, _ := f.manifest.Load(context.Background())
			if len(records) != 1 {
				t.Fatalf("records = %+v", records)
			}
			for _, name := range []string{records[0].VideoFile, records[0].AudioFile} {
				if _, err := os.Stat(filepath.Join(f.outDir, name)); err != nil {
					t.Errorf("%s from the first run is gone: %v", name, err)
				}
			}
			entries, err := os.ReadDir(f.outDir)
			if err != nil {
				t.Fatal(err)
			}
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), ".staging-") {
					t.Errorf("staging directory left behind: %s", e.Name())
				}
			}
		})
	}
}

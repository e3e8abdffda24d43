package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"ytdownloader/internal/logging"
	"ytdownloader/internal/tracker"
)

const fakeYtDlp = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$a" = "--dump-single-json" ]; then
    echo '{"id":"X","title":"My/Video:Title?","uploader":"Uploader","height":720}'
    exit 0
  fi
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
printf stream > "$out"
`

const fakeFFmpeg = `#!/bin/sh
for a in "$@"; do last="$a"; done
printf media > "$last"
`

const failingFFmpeg = `#!/bin/sh
echo "audio.m4a: Invalid data found when processing input" >&2
exit 1
`

type env struct {
	root    string
	vars    map[string]string
	tracker *tracker.Tracker
}

func newEnv(t *testing.T, ffmpegScript string) *env {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(name, body string) string {
		p := filepath.Join(bin, name)
		if err := os.WriteFile(p, []byte(body), 0o755); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tr := tracker.New("s3cret", logging.Discard())
	srv := httptest.NewServer(tr.Router())
	t.Cleanup(srv.Close)

	return &env{
		root:    root,
		tracker: tr,
		vars: map[string]string{
			"JOB_ID":          "job-1",
			"YOUTUBE_URL":     "https://www.youtube.com/watch?v=X",
			"BACKEND_URL":     srv.URL,
			"INTERNAL_SECRET": "s3cret",
			"OUTPUT_DIR":      filepath.Join(root, "public", "videos"),
			"MANIFEST_PATH":   filepath.Join(root, "public", "videos.json"),
			"WORK_DIR":        filepath.Join(root, "tmp"),
			"YTDLP_PATH":      write("yt-dlp", fakeYtDlp),
			"FFMPEG_PATH":     write("ffmpeg", ffmpegScript),
		},
	}
}

func (e *env) getenv(k string) string { return e.vars[k] }

func TestRunSuccess(t *testing.T) {
	e := newEnv(t, fakeFFmpeg)
	var out bytes.Buffer
	if code := run(context.Background(), nil, e.getenv, &out); code != 0 {
		t.Fatalf("exit code = %d\n%s", code, out.String())
	}

	data, err := os.ReadFile(e.vars["MANIFEST_PATH"])
	if err != nil {
		t.Fatal(err)
	}
	var records []map[string]string
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %v", records)
	}
	first := records[0]
	if first["title"] != "My/Video:Title?" || first["author"] != "Uploader" {
		t.Errorf("record = %v", first)
	}
	if first["videoPath"] != "public/videos/MyVideoTitle.mp4" || first["audioPath"] != "public/videos/MyVideoTitle_audio.mp3" {
		t.Errorf("paths = %v", first)
	}
	if _, err := os.Stat(filepath.Join(e.vars["OUTPUT_DIR"], "MyVideoTitle.mp4")); err != nil {
		t.Errorf("video missing: %v", err)
	}

	s, ok := e.tracker.Get("job-1")
	if !ok || s.Status != tracker.StatusComplete || s.FinalFile == nil || s.FinalFile.VideoFile != "MyVideoTitle.mp4" {
		t.Errorf("tracker status = %+v", s)
	}
	if !strings.Contains(out.String(), "=== Job Summary ===") {
		t.Errorf("missing summary:\n%s", out.String())
	}
}

func TestRunToolFailureExitsOne(t *testing.T) {
	e := newEnv(t, failingFFmpeg)
	var out bytes.Buffer
	if code := run(context.Background(), nil, e.getenv, &out); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	s, ok := e.tracker.Get("job-1")
	if !ok {
		t.Fatal("failure was not reported")
	}
	if s.Progress != 100 || s.Status != tracker.StatusFailed {
		t.Errorf("status = %+v", s)
	}
	if !strings.Contains(s.Message, "Invalid data found when processing input") {
		t.Errorf("message should carry tool stderr: %q", s.Message)
	}
	if _, err := os.Stat(e.vars["MANIFEST_PATH"]); !os.IsNotExist(err) {
		t.Errorf("manifest should not be written, stat err = %v", err)
	}
	entries, _ := os.ReadDir(e.vars["WORK_DIR"])
	if len(entries) != 0 {
		t.Errorf("work dir not cleaned: %v", entries)
	}
}

func TestRunMissingURLExitsOne(t *testing.T) {
	e := newEnv(t, fakeFFmpeg)
	delete(e.vars, "YOUTUBE_URL")
	var out bytes.Buffer
	if code := run(context.Background(), nil, e.getenv, &out); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	s, ok := e.tracker.Get("job-1")
	if !ok || s.Status != tracker.StatusFailed || !strings.Contains(s.Message, "YOUTUBE_URL") {
		t.Errorf("status = %+v, ok=%v", s, ok)
	}
}

func TestRunURLFromFlag(t *testing.T) {
	e := newEnv(t, fakeFFmpeg)
	delete(e.vars, "YOUTUBE_URL")
	var out bytes.Buffer
	code := run(context.Background(), []string{"-url", "https://youtu.be/X", "-audio-format", "none"}, e.getenv, &out)
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, out.String())
	}
	if _, err := os.Stat(filepath.Join(e.vars["OUTPUT_DIR"], "MyVideoTitle_audio.mp3")); !os.IsNotExist(err) {
		t.Errorf("no standalone audio expected, stat err = %v", err)
	}
}

func TestListManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "videos.json")
	var out bytes.Buffer

	getenv := func(k string) string {
		if k == "MANIFEST_PATH" {
			return path
		}
		return ""
	}
	if code := run(context.Background(), []string{"list"}, getenv, &out); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out.String(), "No videos yet.") {
		t.Errorf("output = %q", out.String())
	}

	if err := os.WriteFile(path, []byte(`[{"title":"A","author":"B","videoPath":"public/videos/A.mp4"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if code := run(context.Background(), []string{"list"}, getenv, &out); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out.String(), " 1. A - B") || !strings.Contains(out.String(), "public/videos/A.mp4") {
		t.Errorf("output = %q", out.String())
	}
}

// Package ffmpeg merges adaptive streams and extracts audio with the ffmpeg
// binary.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"ytdownloader/internal/adapters/toolexec"
)

// Transcoder implements ports.Transcoder.
type Transcoder struct {
	binaryPath string
	runner     toolexec.Runner
	logger     log.FieldLogger
}

// NewTranscoder creates a Transcoder. An empty binaryPath means "ffmpeg"
// from PATH.
func NewTranscoder(binaryPath string, logger log.FieldLogger) *Transcoder {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &Transcoder{
		binaryPath: binaryPath,
		runner:     toolexec.Runner{Logger: logger},
		logger:     logger,
	}
}

// MergeArgs builds the argument list for muxing video and audio into out.
// Video is copied as-is, audio is re-encoded to AAC for mp4 compatibility.
func MergeArgs(videoPath, audioPath, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy", "-c:a", "aac",
		"-movflags", "+faststart",
		out,
	}
}

// AudioArgs builds the argument list for writing in's audio track to out.
func AudioArgs(in, out string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", in, "-vn"}
	switch strings.ToLower(filepath.Ext(out)) {
	case ".m4a", ".aac":
		args = append(args, "-c:a", "copy")
	default:
		args = append(args, "-c:a", "libmp3lame", "-q:a", "2")
	}
	return append(args, out)
}

// Merge muxes videoPath and audioPath into out.
func (t *Transcoder) Merge(ctx context.Context, videoPath, audioPath, out string) error {
	if _, err := t.runner.Run(ctx, t.binaryPath, MergeArgs(videoPath, audioPath, out)...); err != nil {
		return err
	}
	return t.checkOutput(out)
}

// ExtractAudio writes the audio track of in to out.
func (t *Transcoder) ExtractAudio(ctx context.Context, in, out string) error {
	if _, err := t.runner.Run(ctx, t.binaryPath, AudioArgs(in, out)...); err != nil {
		return err
	}
	return t.checkOutput(out)
}

func (t *Transcoder) checkOutput(out string) error {
	fi, err := os.Stat(out)
	if err != nil {
		return fmt.Errorf("ffmpeg reported success but %s is missing: %w", out, err)
	}
	if t.logger != nil {
		t.logger.Infof("Wrote %s (%s)", filepath.Base(out), humanize.Bytes(uint64(fi.Size())))
	}
	return nil
}

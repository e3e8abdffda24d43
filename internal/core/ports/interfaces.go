package ports

import (
	"context"
	"io"

	"ytdownloader/internal/core/domain"
)

// MetadataFetcher resolves title/author information for a video page URL.
type MetadataFetcher interface {
	FetchInfo(ctx context.Context, videoURL string) (*domain.VideoInfo, error)
}

// StreamDownloader downloads one adaptive stream of a video to dest.
type StreamDownloader interface {
	DownloadStream(ctx context.Context, videoURL string, kind domain.StreamKind, dest string) error
}

// Transcoder merges and converts media files.
type Transcoder interface {
	// Merge muxes a video-only and an audio-only file into out.
	Merge(ctx context.Context, videoPath, audioPath, out string) error

	// ExtractAudio writes the audio track of in to out. The container is
	// chosen from out's extension.
	ExtractAudio(ctx context.Context, in, out string) error
}

// Downloader defines the contract for fetching a remote resource over HTTP.
type Downloader interface {
	// Download fetches the given URL.
	// Returns a ReadCloser that the caller must close.
	Download(ctx context.Context, resourceURL string) (io.ReadCloser, error)
}

// Reporter pushes progress events. Implementations must never fail the
// caller: transport problems are logged and swallowed.
type Reporter interface {
	Report(ctx context.Context, message string, progress int, finalFile *domain.VideoRecord)
}

// Manifest is the local list of produced videos, newest first.
type Manifest interface {
	Prepend(ctx context.Context, record domain.VideoRecord) error
	Load(ctx context.Context) ([]domain.VideoRecord, error)
}

// Workspace owns the per-job temporary directory.
type Workspace interface {
	// InitWorkspace creates the working directory for a job.
	InitWorkspace(ctx context.Context, jobID string) (string, error)

	// WriteCookies stores a cookie payload in the workspace and returns its path.
	WriteCookies(ctx context.Context, payload string) (string, error)

	// OutputDir returns the public output directory, creating it if needed.
	OutputDir() (string, error)

	// Cleanup removes the working directory. It is best-effort.
	Cleanup() error
}

// Publisher uploads final media files to remote storage.
type Publisher interface {
	Publish(ctx context.Context, jobID string, paths ...string) error
}

package domain

import "time"

// Job represents a single download job.
type Job struct {
	ID        string    `json:"job_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// VideoInfo is the metadata resolved for a video URL before downloading.
type VideoInfo struct {
	ID         string `json:"id,omitempty"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Resolution string `json:"resolution,omitempty"` // e.g. "1080p", may be empty
}

// VideoRecord is one manifest entry. Newest entries are kept first.
type VideoRecord struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	VideoFile string `json:"videoFile"`
	AudioFile string `json:"audioFile"`
	VideoPath string `json:"videoPath"`
	AudioPath string `json:"audioPath"`
}

// ProgressEvent is the payload pushed to the job tracker.
type ProgressEvent struct {
	JobID     string       `json:"jobId"`
	Message   string       `json:"message"`
	Progress  int          `json:"progress"`
	Secret    string       `json:"secret"`
	FinalFile *VideoRecord `json:"finalFile,omitempty"`
}

// StreamKind selects which adaptive stream to download.
type StreamKind string

const (
	StreamVideo StreamKind = "video"
	StreamAudio StreamKind = "audio"
)

// JobResult holds the outcome of a completed job.
type JobResult struct {
	Job          Job
	Info         *VideoInfo
	Record       *VideoRecord
	VideoPath    string
	AudioPath    string
	Success      bool
	ErrorMessage string
	CompletedAt  time.Time
}

package backend

import (
	"context"

	"ytdownloader/internal/core/domain"
	"ytdownloader/internal/core/ports"
)

// MultiReporter forwards every event to each reporter in order.
type MultiReporter []ports.Reporter

// Report implements ports.Reporter.
func (m MultiReporter) Report(ctx context.Context, message string, progress int, finalFile *domain.VideoRecord) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, message, progress, finalFile)
		}
	}
}

package driven

import (
	"context"

	"github.com/taskdeck/ingestd/internal/core/domain"
)

// Downloader fetches and persists binary attachments.
type Downloader interface {
	// DownloadAttachments fetches each attachment with retry. A failed
	// attachment comes back with Error set rather than failing the
	// batch; a successful one has LocalPath set.
	DownloadAttachments(ctx context.Context, sourceID string, atts []domain.Attachment, authHeaders map[string]string) []domain.Attachment
}

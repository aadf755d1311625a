// Package download fetches and persists binary attachments with retry.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/logger"
)

const (
	maxAttempts    = 3
	requestTimeout = 30 * time.Second
	attemptBackoff = 2 * time.Second
	maxNameLen     = 100
)

// extByContentType maps well-known content types to filename extensions.
var extByContentType = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
}

// Ensure Downloader implements the interface.
var _ driven.Downloader = (*Downloader)(nil)

// Downloader fetches attachments over HTTP into a per-source directory.
// Requests pass through a shared politeness rate limiter so a burst of
// attachment-heavy items does not hammer a provider.
type Downloader struct {
	dir     string
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a downloader writing under dir. If dir is empty, defaults
// to ~/.ingestd/attachments.
func New(dir string) (*Downloader, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".ingestd", "attachments")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating attachments directory: %w", err)
	}
	return &Downloader{
		dir:     dir,
		client:  &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}, nil
}

// DownloadAttachments fetches each attachment with up to three
// attempts and linear backoff between them. A failed attachment comes
// back with Error set to a placeholder embedding the URL, so the caller
// records partial failure without aborting the item.
func (d *Downloader) DownloadAttachments(
	ctx context.Context,
	sourceID string,
	atts []domain.Attachment,
	authHeaders map[string]string,
) []domain.Attachment {
	out := make([]domain.Attachment, len(atts))
	// Two attachments in one item can sanitise to the same basename;
	// later ones get a numeric suffix instead of overwriting.
	taken := make(map[string]bool)
	for i, att := range atts {
		localPath, err := d.fetchOne(ctx, sourceID, att, authHeaders, taken)
		if err != nil {
			logger.Warn("source %s: attachment %s: %v", sourceID, att.URL, err)
			att.Error = fmt.Sprintf("download failed: %s", att.URL)
		} else {
			att.LocalPath = localPath
		}
		out[i] = att
	}
	return out
}

func (d *Downloader) fetchOne(
	ctx context.Context,
	sourceID string,
	att domain.Attachment,
	authHeaders map[string]string,
	taken map[string]bool,
) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt) * attemptBackoff
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		localPath, err := d.attempt(ctx, sourceID, att, authHeaders, taken)
		if err == nil {
			return localPath, nil
		}
		lastErr = err
		logger.Debug("source %s: attachment attempt %d/%d failed: %v", sourceID, attempt, maxAttempts, err)
	}
	return "", lastErr
}

func (d *Downloader) attempt(
	ctx context.Context,
	sourceID string,
	att domain.Attachment,
	authHeaders map[string]string,
	taken map[string]bool,
) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, att.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	for k, v := range authHeaders {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	// An empty body on a 200 is still a failure.
	if len(body) == 0 {
		return "", fmt.Errorf("empty response body")
	}

	name := uniqueName(taken, FileName(att, resp.Header.Get("Content-Type"), body))
	destDir := filepath.Join(d.dir, sourceID)
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return "", fmt.Errorf("create source directory: %w", err)
	}
	dest := filepath.Join(destDir, name)
	if err := os.WriteFile(dest, body, 0600); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	taken[name] = true
	return dest, nil
}

// uniqueName returns name, or the first "name-N" variant (suffix before
// the extension) not yet claimed in taken.
func uniqueName(taken map[string]bool, name string) string {
	if !taken[name] {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}

// FileName picks the local filename for an attachment: the sanitised
// adapter-supplied name when usable, else a name derived from the URL,
// else a content hash with an extension inferred from the content type
// or URL.
func FileName(att domain.Attachment, contentType string, body []byte) string {
	if name := Sanitize(att.Name); name != "" {
		return name
	}
	if name := nameFromURL(att.URL); name != "" {
		return name
	}
	return domain.ContentHash(string(body)) + inferExt(contentType, att.URL)
}

// Sanitize restricts a filename to [A-Za-z0-9._-] and truncates it.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > maxNameLen {
		s = s[:maxNameLen]
	}
	// A name of only dots is not a usable filename.
	if strings.Trim(s, ".") == "" {
		return ""
	}
	return s
}

// nameFromURL derives a filename from the URL path, rejecting generic
// or non-descriptive names.
func nameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." || base == "" {
		return ""
	}
	// Overlong basenames fall through to the content-hash name instead
	// of being truncated into something unrecognisable.
	if len(base) > maxNameLen {
		return ""
	}
	name := Sanitize(base)
	if name == "" {
		return ""
	}
	if strings.EqualFold(name, "download") {
		return ""
	}
	return name
}

// inferExt picks an extension from the content type, falling back to
// the URL extension, then .bin.
func inferExt(contentType, rawURL string) string {
	ct := contentType
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(strings.ToLower(ct))
	if ext, ok := extByContentType[ct]; ok {
		return ext
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return ".bin"
}

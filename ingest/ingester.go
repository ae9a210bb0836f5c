package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
)

// Submitter runs one document through the registry's acceptance flow.
// The HTTP handler's store flow satisfies this.
type Submitter interface {
	StoreDocument(ctx context.Context, orgID, name string, body []byte) error
}

// SubmitFunc adapts a function to the Submitter interface.
type SubmitFunc func(ctx context.Context, orgID, name string, body []byte) error

// StoreDocument calls f.
func (f SubmitFunc) StoreDocument(ctx context.Context, orgID, name string, body []byte) error {
	return f(ctx, orgID, name, body)
}

// Ingester consumes watcher events and submits each changed document.
// Files are expected at {org}/{name}.json under the drop directory;
// files directly in the root use defaultOrg.
type Ingester struct {
	watcher    *Watcher
	submitter  Submitter
	defaultOrg string
	logger     *slog.Logger
}

// NewIngester constructs an Ingester over a started watcher.
func NewIngester(watcher *Watcher, submitter Submitter, defaultOrg string, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		watcher:    watcher,
		submitter:  submitter,
		defaultOrg: defaultOrg,
		logger:     logger,
	}
}

// Run consumes watch events until the context is cancelled or the
// watcher's event channel closes. A document that fails validation is
// logged and skipped; the ingester keeps running.
func (i *Ingester) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-i.watcher.Events():
			if !ok {
				return
			}
			i.handle(ctx, event)
		}
	}
}

func (i *Ingester) handle(ctx context.Context, event WatchEvent) {
	if event.Operation == WatchOpDelete {
		// Stored documents are never removed by file deletion.
		i.logger.Debug("Ignoring deleted file", "path", event.Path)
		return
	}

	orgID, name, ok := i.splitPath(event.Path)
	if !ok {
		i.logger.Warn("Cannot derive document identity from path", "path", event.Path)
		return
	}

	if err := i.submitter.StoreDocument(ctx, orgID, name, event.Content); err != nil {
		i.logger.Warn("Dropped document rejected",
			"path", event.Path,
			"org_id", orgID,
			"name", name,
			"error", err)
		return
	}
	i.logger.Info("Dropped document accepted",
		"path", event.Path,
		"org_id", orgID,
		"name", name,
		"op", event.Operation)
}

// splitPath derives (orgID, name) from a relative drop path.
func (i *Ingester) splitPath(relPath string) (orgID, name string, ok bool) {
	rel := filepath.ToSlash(relPath)
	base := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	if base == "" {
		return "", "", false
	}

	segments := strings.Split(rel, "/")
	if len(segments) == 1 {
		if i.defaultOrg == "" {
			return "", "", false
		}
		return i.defaultOrg, base, true
	}
	return segments[0], base, true
}

package main

import (
	"log/slog"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/openmined/assetsync/internal/assets"
)

// progressLogger turns engine events into log lines.
type progressLogger struct {
	chunks atomic.Int64
	sent   atomic.Int64
}

func newProgressLogger() *progressLogger {
	return &progressLogger{}
}

func (p *progressLogger) Handle(ev assets.Event) {
	switch ev.Kind {
	case assets.EventGathered:
		slog.Debug("local assets gathered", "count", ev.Count)
	case assets.EventFetched:
		slog.Debug("remote assets fetched", "count", ev.Count)
	case assets.EventPlanned:
		p.chunks.Store(0)
		p.sent.Store(0)
		if ev.Count > 0 {
			slog.Info("changes planned", "operations", ev.Count, "batches", ev.Batches, "content", humanize.Bytes(uint64(ev.Bytes)))
		}
	case assets.EventConsentRequired:
		slog.Debug("confirmation required", "changes", ev.Count)
	case assets.EventBatchCreated:
		slog.Debug("batch created", "batch", ev.Batch, "id", ev.BatchID)
	case assets.EventChunkUploaded:
		n := p.chunks.Add(1)
		sent := p.sent.Add(int64(ev.Bytes))
		slog.Debug("chunk uploaded", "batch", ev.Batch, "key", ev.Key, "chunks", n, "sent", humanize.Bytes(uint64(sent)))
	case assets.EventBatchRestarted:
		slog.Warn("batch expired, restarting", "batch", ev.Batch, "restarts", ev.Count)
	case assets.EventBatchCommitted:
		slog.Debug("batch progress", "done", ev.Batch+1, "of", ev.Batches)
	case assets.EventBatchFailed:
		slog.Debug("batch progress", "failed", ev.Batch, "of", ev.Batches)
	}
}

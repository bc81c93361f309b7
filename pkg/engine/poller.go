package engine

import (
	"context"
	"time"

	"github.com/bitflood/bitflood/internal/config"
	"github.com/bitflood/bitflood/pkg/model"
)

// Run polls the session at the configured refresh interval, pushing
// status batches onto the alert queue and enforcing per-torrent
// throttles. It returns when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.pollerDone)

	cfg := config.Get()
	interval := time.Duration(cfg.RefreshInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Debug().Dur("interval", interval).Msg("Status poller started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug().Msg("Status poller stopped")
			return ctx.Err()
		case <-ticker.C:
			e.poll(time.Now())
		}
	}
}

func (e *Engine) poll(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows := make([]model.StatusRow, 0, len(e.handles))
	for hash, entry := range e.handles {
		row, justFinished := e.snapshot(hash, entry, now)
		rows = append(rows, row)
		if justFinished {
			e.push(Alert{Type: AlertFinished, InfoHash: hash, Name: row.Name})
		}
	}

	// Pushed while still holding e.mu: Remove needs the lock to drop
	// a handle, so a status batch can never be enqueued after the
	// removal alert for a hash it contains.
	if len(rows) > 0 {
		e.push(Alert{Type: AlertStatus, Rows: rows})
	}
}

// push enqueues an alert without blocking the poll loop. Status
// updates are idempotent per identifier, so dropping a batch when the
// consumer lags is safe.
func (e *Engine) push(alert Alert) {
	select {
	case e.alerts <- alert:
	default:
		e.logger.Debug().Msg("Alert queue full, dropping batch")
	}
}

// snapshot builds one status row and applies throttle enforcement.
// Caller holds e.mu.
func (e *Engine) snapshot(hash string, entry *handleEntry, now time.Time) (model.StatusRow, bool) {
	t := entry.t
	hasInfo := t.Info() != nil

	var done, total int64
	if hasInfo {
		total = t.Length()
		done = t.BytesCompleted()
	}
	stats := t.Stats()
	uploaded := stats.BytesWrittenData.Int64()

	var dlRate, ulRate float64
	if !entry.lastPoll.IsZero() {
		elapsed := now.Sub(entry.lastPoll).Seconds()
		if elapsed > 0 {
			dlRate = float64(done-entry.lastDone) / elapsed
			ulRate = float64(uploaded-entry.lastUploaded) / elapsed
		}
	}
	entry.lastDone = done
	entry.lastUploaded = uploaded
	entry.lastPoll = now

	complete := hasInfo && total > 0 && done >= total
	justFinished := complete && !entry.wasComplete
	entry.wasComplete = complete

	e.enforceCaps(entry, dlRate, ulRate)

	progress := 0.0
	if total > 0 {
		progress = float64(done) / float64(total)
	}

	row := model.StatusRow{
		InfoHash:     hash,
		Name:         t.Name(),
		Progress:     progress,
		DownloadRate: dlRate,
		UploadRate:   ulRate,
		ETA:          model.FormatETA(computeETA(total, done, dlRate)),
		Ratio:        computeRatio(uploaded, done),
		State:        stateLabel(entry.paused, hasInfo, complete, t.Seeding()),
		Size:         total,
		Downloaded:   done,
		Uploaded:     uploaded,
		Peers:        stats.ActivePeers,
		Seeds:        stats.ConnectedSeeders,
		SavePath:     entry.savePath,
	}
	return row, justFinished
}

// enforceCaps duty-cycles data transfer for torrents with per-torrent
// limits: once the measured rate exceeds the cap, transfer is
// disallowed until a poll measures it back under. Caller holds e.mu.
func (e *Engine) enforceCaps(entry *handleEntry, dlRate, ulRate float64) {
	if entry.paused {
		return
	}
	if over := throttled(entry.dlCap, dlRate); over != entry.dlThrottled {
		entry.dlThrottled = over
		if over {
			entry.t.DisallowDataDownload()
		} else {
			entry.t.AllowDataDownload()
		}
	}
	if over := throttled(entry.ulCap, ulRate); over != entry.ulThrottled {
		entry.ulThrottled = over
		if over {
			entry.t.DisallowDataUpload()
		} else {
			entry.t.AllowDataUpload()
		}
	}
}

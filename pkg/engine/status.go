package engine

import (
	"context"
	"math"

	"github.com/bitflood/bitflood/pkg/model"
	"github.com/rs/zerolog"
)

// AlertType classifies poller notifications.
type AlertType int

const (
	// AlertStatus carries a batch of status rows, one per live torrent.
	AlertStatus AlertType = iota
	// AlertFinished fires once when a torrent completes.
	AlertFinished
	// AlertRemoved fires when a torrent leaves the session.
	AlertRemoved
)

// Alert is one asynchronous notification from the engine. Status
// batches are idempotent per info hash; the consumer may drop or
// replay them.
type Alert struct {
	Type     AlertType
	Rows     []model.StatusRow
	InfoHash string
	Name     string
}

// Drain applies alerts to the status table until ctx is cancelled.
// Alerts are ordered at the source: a removal is always enqueued after
// any status batch still carrying the removed torrent, so applying
// them in order keeps the table consistent with the handle set.
func Drain(ctx context.Context, alerts <-chan Alert, table *model.Table, log zerolog.Logger) {
	for {
		select {
		case alert := <-alerts:
			switch alert.Type {
			case AlertStatus:
				table.BulkUpdate(alert.Rows)
			case AlertRemoved:
				table.Remove(alert.InfoHash)
			case AlertFinished:
				log.Info().Str("name", alert.Name).Msg("Download complete")
			}
		case <-ctx.Done():
			return
		}
	}
}

func stateLabel(paused, hasInfo, complete, seeding bool) string {
	if complete {
		if seeding {
			return model.StateSeeding
		}
		return model.StateFinished
	}
	if paused {
		return model.StatePaused
	}
	if !hasInfo {
		return model.StateMetadata
	}
	return model.StateDownloading
}

// computeETA returns seconds until completion, +Inf when the rate is
// zero or the remaining size is unknown.
func computeETA(total, done int64, dlRate float64) float64 {
	if total <= 0 || done >= total {
		return math.Inf(1)
	}
	if dlRate <= 0 {
		return math.Inf(1)
	}
	return float64(total-done) / dlRate
}

func computeRatio(uploaded, done int64) float64 {
	if done <= 0 {
		return 0
	}
	return float64(uploaded) / float64(done)
}

// throttled decides whether a capped torrent should have its data
// transfer disallowed for the rest of the poll interval. capKiB of 0
// means uncapped.
func throttled(capKiB int, rateBytes float64) bool {
	if capKiB <= 0 {
		return false
	}
	return rateBytes > float64(capKiB*1024)
}

package schedule

import (
	"context"
	"time"

	"github.com/bitflood/bitflood/internal/config"
	"github.com/bitflood/bitflood/internal/logger"
)

const maxSleep = 5 * time.Minute

// Limiter is the slice of the session engine the applier drives.
type Limiter interface {
	SetGlobalLimits(dlKiB, ulKiB int) error
}

// Applier re-applies bandwidth limits whenever a schedule window opens
// or closes. It sleeps until the next window boundary (capped, so
// config reloads are picked up) instead of rediscovering the active
// window on a coarse timer.
type Applier struct {
	limiter Limiter
}

func NewApplier(limiter Limiter) *Applier {
	return &Applier{limiter: limiter}
}

func (a *Applier) Start(ctx context.Context) error {
	log := logger.New("schedule")

	apply := func() time.Duration {
		cfg := config.Get()
		windows, err := Windows(cfg.BandwidthSchedules)
		if err != nil {
			log.Error().Err(err).Msg("Invalid bandwidth schedule, applying defaults")
		}

		now := time.Now()
		dl, ul := cfg.DownloadLimit, cfg.UploadLimit
		if w := Pick(now, windows); w != nil {
			dl, ul = w.Download, w.Upload
			log.Debug().Int("dl", dl).Int("ul", ul).Msg("Schedule window active")
		}
		if err := a.limiter.SetGlobalLimits(dl, ul); err != nil {
			log.Error().Err(err).Msg("Failed to apply bandwidth limits")
		}

		sleep := maxSleep
		if next := NextBoundary(now, windows); !next.IsZero() {
			if d := time.Until(next); d < sleep {
				sleep = d
			}
		}
		if sleep < time.Second {
			sleep = time.Second
		}
		return sleep
	}

	timer := time.NewTimer(apply())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Schedule applier stopped")
			return ctx.Err()
		case <-timer.C:
			timer.Reset(apply())
		}
	}
}

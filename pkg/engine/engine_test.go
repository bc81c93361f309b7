package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/types"
	"github.com/bitflood/bitflood/pkg/model"
	"github.com/rs/zerolog"
)

func TestStateLabel(t *testing.T) {
	tests := []struct {
		name                               string
		paused, hasInfo, complete, seeding bool
		want                               string
	}{
		{"fetching metadata", false, false, false, false, model.StateMetadata},
		{"downloading", false, true, false, false, model.StateDownloading},
		{"paused while downloading", true, true, false, false, model.StatePaused},
		{"paused before metadata", true, false, false, false, model.StatePaused},
		{"seeding", false, true, true, true, model.StateSeeding},
		{"finished not seeding", false, true, true, false, model.StateFinished},
		{"paused never wins over seeding", true, true, true, true, model.StateSeeding},
		{"paused never wins over finished", true, true, true, false, model.StateFinished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stateLabel(tt.paused, tt.hasInfo, tt.complete, tt.seeding)
			if got != tt.want {
				t.Errorf("stateLabel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComputeETA(t *testing.T) {
	if eta := computeETA(1000, 200, 100); eta != 8 {
		t.Errorf("computeETA(1000, 200, 100) = %v, want 8", eta)
	}
	if eta := computeETA(1000, 200, 0); !math.IsInf(eta, 1) {
		t.Errorf("computeETA with zero rate = %v, want +Inf", eta)
	}
	if eta := computeETA(1000, 1000, 100); !math.IsInf(eta, 1) {
		t.Errorf("computeETA when complete = %v, want +Inf", eta)
	}
	if eta := computeETA(0, 0, 100); !math.IsInf(eta, 1) {
		t.Errorf("computeETA with unknown size = %v, want +Inf", eta)
	}
}

func TestComputeRatio(t *testing.T) {
	if r := computeRatio(500, 1000); r != 0.5 {
		t.Errorf("computeRatio(500, 1000) = %v, want 0.5", r)
	}
	if r := computeRatio(500, 0); r != 0 {
		t.Errorf("computeRatio with nothing downloaded = %v, want 0", r)
	}
}

func TestThrottled(t *testing.T) {
	tests := []struct {
		name   string
		capKiB int
		rate   float64
		want   bool
	}{
		{"uncapped", 0, 1 << 30, false},
		{"under cap", 100, 50 * 1024, false},
		{"at cap", 100, 100 * 1024, false},
		{"over cap", 100, 150 * 1024, true},
		{"idle", 100, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := throttled(tt.capKiB, tt.rate); got != tt.want {
				t.Errorf("throttled(%d, %v) = %v, want %v", tt.capKiB, tt.rate, got, tt.want)
			}
		})
	}
}

func TestPriorityMapping(t *testing.T) {
	tests := []struct {
		in   int
		want types.PiecePriority
	}{
		{PrioritySkip, torrent.PiecePriorityNone},
		{-1, torrent.PiecePriorityNone},
		{PriorityNormal, torrent.PiecePriorityNormal},
		{PriorityHigh, torrent.PiecePriorityHigh},
		{PriorityMax, torrent.PiecePriorityNow},
		{7, torrent.PiecePriorityNow},
	}
	for _, tt := range tests {
		if got := toPiecePriority(tt.in); got != tt.want {
			t.Errorf("toPiecePriority(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}

	// Round-trip for the values the UI can set
	for _, p := range []int{PrioritySkip, PriorityNormal, PriorityHigh, PriorityMax} {
		if got := fromPiecePriority(toPiecePriority(p)); got != p {
			t.Errorf("priority round-trip: %d became %d", p, got)
		}
	}
}

func TestDrainRemovalAfterStatusBatch(t *testing.T) {
	alerts := make(chan Alert, 4)
	table := model.NewTable()

	// A removal enqueued after a batch carrying the same hash must
	// leave no row behind, even though the batch re-populates it.
	alerts <- Alert{Type: AlertStatus, Rows: []model.StatusRow{{InfoHash: "aaa", Name: "ubuntu"}}}
	alerts <- Alert{Type: AlertRemoved, InfoHash: "aaa"}
	alerts <- Alert{Type: AlertStatus, Rows: []model.StatusRow{{InfoHash: "bbb"}}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Drain(ctx, alerts, table, zerolog.Nop())
		close(done)
	}()

	// The trailing batch acts as a fence: once bbb is visible the
	// earlier alerts have been applied in order.
	deadline := time.After(2 * time.Second)
	for {
		if _, ok := table.Get("bbb"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("drain did not apply the status batches in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if _, ok := table.Get("aaa"); ok {
		t.Error("removed torrent still has a status row")
	}
}

func TestBurstFor(t *testing.T) {
	if b := burstFor(10); b != 1<<20 {
		t.Errorf("burstFor(10) = %d, want floor of 1MiB", b)
	}
	if b := burstFor(4096); b != 4096*1024 {
		t.Errorf("burstFor(4096) = %d, want %d", b, 4096*1024)
	}
}

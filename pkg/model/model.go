package model

import (
	"fmt"
	"math"
	"sync"
)

// State labels derived from engine status. Paused wins over
// downloading states but never over seeding/finished.
const (
	StateMetadata    = "metadata"
	StateDownloading = "downloading"
	StateFinished    = "finished"
	StateSeeding     = "seeding"
	StatePaused      = "paused"
)

// StatusRow is one UI-facing torrent row, rebuilt from engine polls.
type StatusRow struct {
	InfoHash     string  `json:"info_hash"`
	Name         string  `json:"name"`
	Progress     float64 `json:"progress"` // 0.0 to 1.0
	DownloadRate float64 `json:"download_rate"` // bytes/s
	UploadRate   float64 `json:"upload_rate"`   // bytes/s
	ETA          string  `json:"eta"` // human readable, "∞" when unknown
	Ratio        float64 `json:"ratio"`
	State        string  `json:"state"`
	Size         int64   `json:"size"`
	Downloaded   int64   `json:"downloaded"`
	Uploaded     int64   `json:"uploaded"`
	Peers        int     `json:"peers"`
	Seeds        int     `json:"seeds"`
	SavePath     string  `json:"save_path"`
}

// Table holds status rows in insertion order. Updates for a known
// info hash mutate the existing row; unseen hashes append. Updates are
// idempotent per identifier, so replaying a poll batch is harmless.
type Table struct {
	rows  map[string]*StatusRow
	order []string
	mu    sync.RWMutex
}

func NewTable() *Table {
	return &Table{
		rows: make(map[string]*StatusRow),
	}
}

func (t *Table) Update(row StatusRow) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.update(row)
}

// BulkUpdate applies a poll batch atomically.
func (t *Table) BulkUpdate(rows []StatusRow) {
	if len(rows) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, row := range rows {
		t.update(row)
	}
}

func (t *Table) update(row StatusRow) {
	if existing, ok := t.rows[row.InfoHash]; ok {
		*existing = row
		return
	}
	r := row
	t.rows[row.InfoHash] = &r
	t.order = append(t.order, row.InfoHash)
}

func (t *Table) Get(infoHash string) (StatusRow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[infoHash]
	if !ok {
		return StatusRow{}, false
	}
	return *row, true
}

// Rows returns a snapshot of all rows in insertion order.
func (t *Table) Rows() []StatusRow {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := make([]StatusRow, 0, len(t.order))
	for _, hash := range t.order {
		rows = append(rows, *t.rows[hash])
	}
	return rows
}

func (t *Table) Remove(infoHash string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[infoHash]; !ok {
		return
	}
	delete(t.rows, infoHash)
	for i, hash := range t.order {
		if hash == infoHash {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// FormatETA renders an ETA in seconds as "2h 13m" / "4m 10s", or "∞"
// when unknown.
func FormatETA(seconds float64) string {
	if seconds <= 0 || math.IsInf(seconds, 1) || math.IsNaN(seconds) {
		return "∞"
	}
	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, total%60)
}

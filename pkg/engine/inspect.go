package engine

import (
	"fmt"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/types"
)

type FileInfo struct {
	Index     int    `json:"index"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Completed int64  `json:"completed"`
	Priority  int    `json:"priority"`
}

type TrackerInfo struct {
	URL  string `json:"url"`
	Tier int    `json:"tier"`
}

type PeerInfo struct {
	Addr         string  `json:"addr"`
	Client       string  `json:"client"`
	DownloadRate float64 `json:"download_rate"` // bytes/s
}

// File priorities exposed to the UI. Matches the libtorrent-style
// scale the original settings used: 0 skips the file.
const (
	PrioritySkip   = 0
	PriorityNormal = 1
	PriorityHigh   = 2
	PriorityMax    = 3
)

// Files returns the file list for a torrent. Empty until metadata is
// known.
func (e *Engine) Files(infoHash string) ([]FileInfo, error) {
	entry, err := e.entry(infoHash)
	if err != nil {
		return nil, err
	}
	t := entry.t
	if t.Info() == nil {
		return nil, nil
	}

	files := t.Files()
	out := make([]FileInfo, 0, len(files))
	for i, f := range files {
		out = append(out, FileInfo{
			Index:     i,
			Path:      f.Path(),
			Size:      f.Length(),
			Completed: f.BytesCompleted(),
			Priority:  fromPiecePriority(f.Priority()),
		})
	}
	return out, nil
}

// Trackers returns the announce list. The engine does not expose
// announce results, so only URL and tier are reported.
func (e *Engine) Trackers(infoHash string) ([]TrackerInfo, error) {
	entry, err := e.entry(infoHash)
	if err != nil {
		return nil, err
	}
	mi := entry.t.Metainfo()

	var out []TrackerInfo
	seen := make(map[string]bool)
	for tier, urls := range mi.AnnounceList {
		for _, u := range urls {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, TrackerInfo{URL: u, Tier: tier})
		}
	}
	if mi.Announce != "" && !seen[mi.Announce] {
		out = append(out, TrackerInfo{URL: mi.Announce, Tier: 0})
	}
	return out, nil
}

// Peers returns the currently connected peers.
func (e *Engine) Peers(infoHash string) ([]PeerInfo, error) {
	entry, err := e.entry(infoHash)
	if err != nil {
		return nil, err
	}

	conns := entry.t.PeerConns()
	out := make([]PeerInfo, 0, len(conns))
	for _, pc := range conns {
		info := PeerInfo{
			DownloadRate: pc.DownloadRate(),
		}
		if pc.RemoteAddr != nil {
			info.Addr = pc.RemoteAddr.String()
		}
		if name := fmt.Sprint(pc.PeerClientName.Load()); name != "" && name != "<nil>" {
			info.Client = name
		}
		out = append(out, info)
	}
	return out, nil
}

// SetFilePriority sets the priority for one file of a torrent.
func (e *Engine) SetFilePriority(infoHash string, index, priority int) error {
	entry, err := e.entry(infoHash)
	if err != nil {
		return err
	}
	t := entry.t
	if t.Info() == nil {
		return fmt.Errorf("metadata not yet available for %s", infoHash)
	}
	files := t.Files()
	if index < 0 || index >= len(files) {
		return fmt.Errorf("file index %d out of range", index)
	}

	files[index].SetPriority(toPiecePriority(priority))
	e.logger.Debug().
		Str("infoHash", infoHash).
		Int("index", index).
		Int("priority", priority).
		Msg("Set file priority")
	return nil
}

// FilePriorities returns the per-file priorities, empty until
// metadata is known.
func (e *Engine) FilePriorities(infoHash string) ([]int, error) {
	entry, err := e.entry(infoHash)
	if err != nil {
		return nil, err
	}
	t := entry.t
	if t.Info() == nil {
		return nil, nil
	}
	files := t.Files()
	out := make([]int, len(files))
	for i, f := range files {
		out[i] = fromPiecePriority(f.Priority())
	}
	return out, nil
}

func toPiecePriority(p int) types.PiecePriority {
	switch {
	case p <= PrioritySkip:
		return torrent.PiecePriorityNone
	case p == PriorityNormal:
		return torrent.PiecePriorityNormal
	case p == PriorityHigh:
		return torrent.PiecePriorityHigh
	default:
		return torrent.PiecePriorityNow
	}
}

func fromPiecePriority(p types.PiecePriority) int {
	switch p {
	case torrent.PiecePriorityNone:
		return PrioritySkip
	case torrent.PiecePriorityHigh:
		return PriorityHigh
	case torrent.PiecePriorityNow:
		return PriorityMax
	default:
		return PriorityNormal
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	analog "github.com/anacrolix/log"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"github.com/bitflood/bitflood/internal/config"
	"github.com/bitflood/bitflood/internal/logger"
	"github.com/bitflood/bitflood/internal/store"
	"github.com/bitflood/bitflood/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	ErrNotFound      = errors.New("torrent not found")
	ErrInvalidMagnet = errors.New("invalid magnet link")
	ErrUnsafePath    = errors.New("save path escapes the download directory")
)

// handleEntry is one live torrent in the session. All fields are
// guarded by Engine.mu.
type handleEntry struct {
	t        *torrent.Torrent
	savePath string
	origin   string
	source   string
	paused   bool

	// Per-torrent caps in KiB/s, 0 = unlimited. Enforced by the
	// poller as a duty-cycle throttle; the engine itself only has
	// client-wide limiters.
	dlCap int
	ulCap int

	dlThrottled bool
	ulThrottled bool

	lastDone     int64
	lastUploaded int64
	lastPoll     time.Time
	wasComplete  bool
}

// Engine wraps the torrent session client with a lock-guarded handle
// table, persistence and global rate limiters. The UI layer and the
// background poller race on the table; a single mutex serializes them.
type Engine struct {
	client *torrent.Client
	store  *store.Store
	logger zerolog.Logger

	mu      sync.Mutex
	handles map[string]*handleEntry
	dlKiB   int
	ulKiB   int

	dlLimiter *rate.Limiter
	ulLimiter *rate.Limiter

	alerts     chan Alert
	pollerDone chan struct{}
	done       chan struct{}
}

func New(st *store.Store) (*Engine, error) {
	cfg := config.Get()
	log := logger.New("engine")

	dlKiB, err := strconv.Atoi(st.LoadSetting("dl_limit", strconv.Itoa(cfg.DownloadLimit)))
	if err != nil {
		dlKiB = cfg.DownloadLimit
	}
	ulKiB, err := strconv.Atoi(st.LoadSetting("ul_limit", strconv.Itoa(cfg.UploadLimit)))
	if err != nil {
		ulKiB = cfg.UploadLimit
	}

	dlLimiter := newLimiter(dlKiB)
	ulLimiter := newLimiter(ulKiB)

	ccfg := torrent.NewDefaultClientConfig()
	ccfg.DataDir = cfg.DownloadPath
	ccfg.ListenPort = cfg.ListenPort
	ccfg.NoDHT = cfg.DisableDHT
	ccfg.DisableUTP = cfg.DisableUTP
	ccfg.NoDefaultPortForwarding = cfg.DisablePortForwarding
	ccfg.DisableIPv6 = cfg.DisableIPv6
	ccfg.Seed = !cfg.DisableSeeding
	ccfg.EstablishedConnsPerTorrent = cfg.MaxConnections
	ccfg.DownloadRateLimiter = dlLimiter
	ccfg.UploadRateLimiter = ulLimiter
	ccfg.Logger.SetHandlers(analog.DiscardHandler)

	client, err := torrent.NewClient(ccfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start session client: %w", err)
	}

	log.Info().
		Int("listenPort", cfg.ListenPort).
		Bool("dht", !cfg.DisableDHT).
		Int("dl", dlKiB).
		Int("ul", ulKiB).
		Msg("Session engine started")

	return &Engine{
		client:     client,
		store:      st,
		logger:     log,
		handles:    make(map[string]*handleEntry),
		dlKiB:      dlKiB,
		ulKiB:      ulKiB,
		dlLimiter:  dlLimiter,
		ulLimiter:  ulLimiter,
		alerts:     make(chan Alert, 64),
		pollerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

func newLimiter(kib int) *rate.Limiter {
	if kib <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(kib*1024), burstFor(kib))
}

func burstFor(kib int) int {
	burst := kib * 1024
	if burst < 1<<20 {
		burst = 1 << 20
	}
	return burst
}

// Restore re-adds every persisted torrent. Per-record failures are
// logged and skipped so one bad record can't block the session.
func (e *Engine) Restore(ctx context.Context) {
	records := e.store.LoadTorrents()
	if len(records) == 0 {
		return
	}
	e.logger.Info().Msgf("Restoring %d saved torrents", len(records))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, rec := range records {
		g.Go(func() error {
			var err error
			switch rec.Type {
			case store.TypeMagnet:
				_, err = e.add(rec.Source, rec.SavePath, store.TypeMagnet, true)
			case store.TypeFile:
				_, err = e.add(rec.Source, rec.SavePath, store.TypeFile, true)
			default:
				err = fmt.Errorf("unknown torrent type %q", rec.Type)
			}
			if err != nil {
				e.logger.Error().Err(err).Str("infoHash", rec.InfoHash).Msg("Failed to restore torrent")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// AddMagnet adds a torrent by magnet URI, persists it, and returns
// its info hash.
func (e *Engine) AddMagnet(uri, saveDir string) (string, error) {
	return e.add(uri, saveDir, store.TypeMagnet, false)
}

// AddFromFile adds a torrent from a .torrent file on disk, persists
// it, and returns its info hash.
func (e *Engine) AddFromFile(path, saveDir string) (string, error) {
	return e.add(path, saveDir, store.TypeFile, false)
}

func (e *Engine) add(source, saveDir, origin string, restoring bool) (string, error) {
	cfg := config.Get()

	safeSave, ok := utils.SanitizePath(cfg.DownloadPath, saveDir)
	if !ok {
		e.logger.Error().Str("saveDir", saveDir).Msg("Rejected save path outside download directory")
		return "", ErrUnsafePath
	}
	if err := os.MkdirAll(safeSave, 0755); err != nil {
		return "", fmt.Errorf("failed to create save directory: %w", err)
	}

	var spec *torrent.TorrentSpec
	switch origin {
	case store.TypeMagnet:
		if !strings.HasPrefix(source, "magnet:") {
			return "", ErrInvalidMagnet
		}
		s, err := torrent.TorrentSpecFromMagnetUri(source)
		if err != nil {
			e.logger.Error().Err(err).Msg("Failed to parse magnet link")
			return "", ErrInvalidMagnet
		}
		spec = s
	case store.TypeFile:
		if !utils.PathExists(source) {
			return "", fmt.Errorf("torrent file not found: %s", source)
		}
		mi, err := metainfo.LoadFromFile(source)
		if err != nil {
			e.logger.Error().Err(err).Str("path", source).Msg("Failed to load torrent file")
			return "", fmt.Errorf("invalid torrent file: %w", err)
		}
		s, err := torrent.TorrentSpecFromMetaInfoErr(mi)
		if err != nil {
			return "", fmt.Errorf("invalid torrent file: %w", err)
		}
		spec = s
	default:
		return "", fmt.Errorf("unknown origin %q", origin)
	}

	spec.Storage = storage.NewFile(safeSave)

	t, isNew, err := e.client.AddTorrentSpec(spec)
	if err != nil {
		e.logger.Error().Err(err).Msg("Session engine rejected torrent")
		return "", err
	}
	hash := t.InfoHash().HexString()
	if !isNew {
		e.logger.Debug().Str("infoHash", hash).Msg("Torrent already in session")
		return hash, nil
	}

	e.mu.Lock()
	e.handles[hash] = &handleEntry{
		t:        t,
		savePath: safeSave,
		origin:   origin,
		source:   source,
	}
	e.mu.Unlock()

	// Download starts once metadata is known; for magnets that can
	// take a while, so wait in the background.
	go func() {
		select {
		case <-t.GotInfo():
			t.DownloadAll()
		case <-e.done:
		}
	}()

	if !restoring {
		if err := e.store.SaveTorrent(store.TorrentRecord{
			InfoHash: hash,
			SavePath: safeSave,
			Type:     origin,
			Source:   source,
		}); err != nil {
			e.logger.Error().Err(err).Str("infoHash", hash).Msg("Failed to persist torrent")
		}
	}

	e.logger.Info().Str("infoHash", hash).Str("name", t.Name()).Msgf("Added torrent from %s", origin)
	return hash, nil
}

func (e *Engine) entry(infoHash string) (*handleEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.handles[infoHash]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Pause stops data transfer for a torrent. The handle stays in the
// session so metadata and peer bookkeeping survive.
func (e *Engine) Pause(infoHash string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.handles[infoHash]
	if !ok {
		return ErrNotFound
	}
	entry.paused = true
	entry.t.DisallowDataDownload()
	entry.t.DisallowDataUpload()
	e.logger.Info().Str("infoHash", infoHash).Msg("Paused torrent")
	return nil
}

func (e *Engine) Resume(infoHash string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.handles[infoHash]
	if !ok {
		return ErrNotFound
	}
	entry.paused = false
	entry.dlThrottled = false
	entry.ulThrottled = false
	entry.t.AllowDataDownload()
	entry.t.AllowDataUpload()
	e.logger.Info().Str("infoHash", infoHash).Msg("Resumed torrent")
	return nil
}

// Remove drops a torrent from the session and the database. With
// deleteData the downloaded payload is removed as well; the engine
// itself never deletes data on drop.
func (e *Engine) Remove(infoHash string, deleteData bool) error {
	e.mu.Lock()
	entry, ok := e.handles[infoHash]
	if !ok {
		e.mu.Unlock()
		return ErrNotFound
	}
	delete(e.handles, infoHash)
	name := ""
	if entry.t.Info() != nil {
		name = entry.t.Name()
	}
	savePath := entry.savePath
	entry.t.Drop()
	e.mu.Unlock()

	if err := e.store.RemoveTorrent(infoHash); err != nil {
		e.logger.Error().Err(err).Str("infoHash", infoHash).Msg("Failed to remove torrent record")
	}

	if deleteData && name != "" {
		cfg := config.Get()
		if target, ok := utils.SanitizePath(cfg.DownloadPath, filepath.Join(savePath, name)); ok {
			if err := os.RemoveAll(target); err != nil {
				e.logger.Error().Err(err).Str("path", target).Msg("Failed to delete torrent data")
			}
		}
	}

	select {
	case e.alerts <- Alert{Type: AlertRemoved, InfoHash: infoHash, Name: name}:
	default:
	}

	e.logger.Info().Str("infoHash", infoHash).Bool("deleteData", deleteData).Msg("Removed torrent")
	return nil
}

// SetGlobalLimits updates the client-wide rate limiters and persists
// the values. Limits are KiB/s, 0 = unlimited.
func (e *Engine) SetGlobalLimits(dlKiB, ulKiB int) error {
	if dlKiB < 0 || ulKiB < 0 {
		return errors.New("limits cannot be negative")
	}

	e.mu.Lock()
	changed := dlKiB != e.dlKiB || ulKiB != e.ulKiB
	e.dlKiB = dlKiB
	e.ulKiB = ulKiB
	e.mu.Unlock()

	applyLimit(e.dlLimiter, dlKiB)
	applyLimit(e.ulLimiter, ulKiB)

	if !changed {
		return nil
	}

	if err := e.store.SaveSetting("dl_limit", strconv.Itoa(dlKiB)); err != nil {
		e.logger.Error().Err(err).Msg("Failed to persist download limit")
	}
	if err := e.store.SaveSetting("ul_limit", strconv.Itoa(ulKiB)); err != nil {
		e.logger.Error().Err(err).Msg("Failed to persist upload limit")
	}

	e.logger.Info().Int("dl", dlKiB).Int("ul", ulKiB).Msg("Set global limits (KiB/s)")
	return nil
}

// GlobalLimits returns the currently applied limits in KiB/s.
func (e *Engine) GlobalLimits() (dlKiB, ulKiB int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dlKiB, e.ulKiB
}

func applyLimit(l *rate.Limiter, kib int) {
	if kib <= 0 {
		l.SetLimit(rate.Inf)
		return
	}
	l.SetLimit(rate.Limit(kib * 1024))
	l.SetBurst(burstFor(kib))
}

// SetTorrentLimits caps a single torrent's rates. The poller enforces
// the caps by disallowing data transfer for the remainder of a poll
// interval once the measured rate exceeds them.
func (e *Engine) SetTorrentLimits(infoHash string, dlKiB, ulKiB int) error {
	if dlKiB < 0 || ulKiB < 0 {
		return errors.New("limits cannot be negative")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.handles[infoHash]
	if !ok {
		return ErrNotFound
	}
	entry.dlCap = dlKiB
	entry.ulCap = ulKiB
	if !entry.paused {
		if dlKiB == 0 && entry.dlThrottled {
			entry.dlThrottled = false
			entry.t.AllowDataDownload()
		}
		if ulKiB == 0 && entry.ulThrottled {
			entry.ulThrottled = false
			entry.t.AllowDataUpload()
		}
	}
	e.logger.Info().Str("infoHash", infoHash).Int("dl", dlKiB).Int("ul", ulKiB).Msg("Set per-torrent limits (KiB/s)")
	return nil
}

// Alerts is the queue the poller pushes status batches onto. The UI
// layer drains it on its own timer.
func (e *Engine) Alerts() <-chan Alert {
	return e.alerts
}

// Shutdown waits for the poller to stop, bounded by timeout, then
// closes the session client. In-flight alerts past the window are
// dropped.
func (e *Engine) Shutdown(timeout time.Duration) {
	close(e.done)
	select {
	case <-e.pollerDone:
	case <-time.After(timeout):
		e.logger.Warn().Msg("Poller did not stop in time, closing session anyway")
	}
	e.client.Close()
	e.logger.Info().Msg("Session engine shut down")
}

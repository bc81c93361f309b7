package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Torrent origin types persisted in the torrents table.
const (
	TypeMagnet = "magnet"
	TypeFile   = "file"
)

// TorrentRecord is one persisted torrent: enough to re-add it to the
// session engine after a restart.
type TorrentRecord struct {
	InfoHash string `json:"info_hash"`
	SavePath string `json:"save_path"`
	Type     string `json:"type"`
	Source   string `json:"source"`
}

// Store is a thin shim over a SQLite database holding torrent records
// and string settings. The database is opened and closed per call;
// there is no caching layer.
type Store struct {
	file   string
	logger zerolog.Logger
}

func New(file string, logger zerolog.Logger) *Store {
	return &Store{
		file:   file,
		logger: logger,
	}
}

func (s *Store) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.file)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return db, nil
}

// Init creates the torrents and settings tables if they don't exist.
func (s *Store) Init() error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS torrents (
			info_hash TEXT PRIMARY KEY,
			save_path TEXT NOT NULL,
			type TEXT NOT NULL,
			source TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	s.logger.Debug().Str("file", s.file).Msg("Database initialized")
	return nil
}

func (s *Store) SaveTorrent(rec TorrentRecord) error {
	if rec.InfoHash == "" {
		return errors.New("torrent record is missing an info hash")
	}
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`
		REPLACE INTO torrents (info_hash, save_path, type, source)
		VALUES (?, ?, ?, ?)
	`, rec.InfoHash, rec.SavePath, rec.Type, rec.Source)
	if err != nil {
		return fmt.Errorf("error saving torrent %s: %w", rec.InfoHash, err)
	}
	s.logger.Debug().Str("infoHash", rec.InfoHash).Msg("Saved torrent record")
	return nil
}

// LoadTorrents returns every persisted torrent record. Read failures
// are logged and an empty list is returned.
func (s *Store) LoadTorrents() []TorrentRecord {
	db, err := s.open()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error loading torrents")
		return nil
	}
	defer db.Close()

	rows, err := db.Query(`SELECT info_hash, save_path, type, source FROM torrents`)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error loading torrents")
		return nil
	}
	defer rows.Close()

	var records []TorrentRecord
	for rows.Next() {
		var rec TorrentRecord
		if err := rows.Scan(&rec.InfoHash, &rec.SavePath, &rec.Type, &rec.Source); err != nil {
			s.logger.Error().Err(err).Msg("Error scanning torrent row")
			return records
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error().Err(err).Msg("Error iterating torrent rows")
	}
	return records
}

func (s *Store) RemoveTorrent(infoHash string) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`DELETE FROM torrents WHERE info_hash = ?`, infoHash)
	if err != nil {
		return fmt.Errorf("error removing torrent %s: %w", infoHash, err)
	}
	s.logger.Debug().Str("infoHash", infoHash).Msg("Removed torrent record")
	return nil
}

func (s *Store) SaveSetting(key, value string) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("error saving setting %s: %w", key, err)
	}
	return nil
}

// LoadSetting returns the stored value for key, or fallback when the
// key is absent or the read fails.
func (s *Store) LoadSetting(key, fallback string) string {
	db, err := s.open()
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Error loading setting")
		return fallback
	}
	defer db.Close()

	var value string
	err = db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback
	}
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Error loading setting")
		return fallback
	}
	return value
}

package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bitflood/bitflood/internal/config"
	"github.com/bitflood/bitflood/pkg/engine"
	"github.com/bitflood/bitflood/pkg/fetch"
	"github.com/bitflood/bitflood/pkg/version"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type AddRequest struct {
	Magnet  string `json:"magnet,omitempty"`
	URL     string `json:"url,omitempty"`
	SaveDir string `json:"save_dir,omitempty"`
}

type AddResponse struct {
	InfoHash string `json:"info_hash"`
}

type LimitsRequest struct {
	Download int `json:"dl"`
	Upload   int `json:"ul"`
}

type PriorityRequest struct {
	Priority int `json:"priority"`
}

func JSONResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (ui *Handler) clientError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrInvalidMagnet), errors.Is(err, engine.ErrUnsafePath):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (ui *Handler) handleGetTorrents(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, ui.table.Rows(), http.StatusOK)
}

func (ui *Handler) handleAddTorrent(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		ui.handleAddUpload(w, r)
		return
	}

	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var (
		hash string
		err  error
	)
	switch {
	case req.Magnet != "":
		hash, err = ui.eng.AddMagnet(req.Magnet, req.SaveDir)
	case req.URL != "":
		var path string
		path, err = ui.fetcher.Fetch(r.Context(), req.URL)
		if err != nil {
			ui.logger.Error().Err(err).Str("url", req.URL).Msg("Failed to fetch torrent")
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		hash, err = ui.eng.AddFromFile(path, req.SaveDir)
	default:
		http.Error(w, "No torrent provided", http.StatusBadRequest)
		return
	}
	if err != nil {
		ui.clientError(w, err)
		return
	}
	JSONResponse(w, AddResponse{InfoHash: hash}, http.StatusOK)
}

// handleAddUpload accepts multipart uploads of .torrent files. Each
// file is spooled to disk before it is handed to the engine.
func (ui *Handler) handleAddUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	files := r.MultipartForm.File["torrents"]
	if len(files) == 0 {
		http.Error(w, "No torrent provided", http.StatusBadRequest)
		return
	}
	saveDir := r.FormValue("save_dir")
	spoolDir := config.Get().SpoolDir()

	hashes := make([]string, 0, len(files))
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		spooled := filepath.Join(spoolDir, uuid.NewString()+"-"+fetch.Filename(fileHeader.Filename))
		out, err := os.Create(spooled)
		if err == nil {
			_, err = io.Copy(out, file)
			_ = out.Close()
		}
		_ = file.Close()
		if err != nil {
			ui.logger.Error().Err(err).Str("file", fileHeader.Filename).Msg("Failed to spool upload")
			http.Error(w, "Failed to store upload", http.StatusInternalServerError)
			return
		}

		hash, err := ui.eng.AddFromFile(spooled, saveDir)
		if err != nil {
			ui.clientError(w, err)
			return
		}
		hashes = append(hashes, hash)
	}
	JSONResponse(w, hashes, http.StatusOK)
}

func (ui *Handler) handleDeleteTorrent(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	deleteData := r.URL.Query().Get("deleteData") == "true"
	if err := ui.eng.Remove(hash, deleteData); err != nil {
		ui.clientError(w, err)
		return
	}
	ui.table.Remove(hash)
	w.WriteHeader(http.StatusOK)
}

func (ui *Handler) handlePauseTorrent(w http.ResponseWriter, r *http.Request) {
	if err := ui.eng.Pause(chi.URLParam(r, "hash")); err != nil {
		ui.clientError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (ui *Handler) handleResumeTorrent(w http.ResponseWriter, r *http.Request) {
	if err := ui.eng.Resume(chi.URLParam(r, "hash")); err != nil {
		ui.clientError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (ui *Handler) handleGetFiles(w http.ResponseWriter, r *http.Request) {
	files, err := ui.eng.Files(chi.URLParam(r, "hash"))
	if err != nil {
		ui.clientError(w, err)
		return
	}
	JSONResponse(w, files, http.StatusOK)
}

func (ui *Handler) handleGetTrackers(w http.ResponseWriter, r *http.Request) {
	trackers, err := ui.eng.Trackers(chi.URLParam(r, "hash"))
	if err != nil {
		ui.clientError(w, err)
		return
	}
	JSONResponse(w, trackers, http.StatusOK)
}

func (ui *Handler) handleGetPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := ui.eng.Peers(chi.URLParam(r, "hash"))
	if err != nil {
		ui.clientError(w, err)
		return
	}
	JSONResponse(w, peers, http.StatusOK)
}

func (ui *Handler) handleGetPriorities(w http.ResponseWriter, r *http.Request) {
	priorities, err := ui.eng.FilePriorities(chi.URLParam(r, "hash"))
	if err != nil {
		ui.clientError(w, err)
		return
	}
	JSONResponse(w, priorities, http.StatusOK)
}

func (ui *Handler) handleSetFilePriority(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid file index", http.StatusBadRequest)
		return
	}
	var req PriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := ui.eng.SetFilePriority(chi.URLParam(r, "hash"), index, req.Priority); err != nil {
		ui.clientError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (ui *Handler) handleSetTorrentLimits(w http.ResponseWriter, r *http.Request) {
	var req LimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := ui.eng.SetTorrentLimits(chi.URLParam(r, "hash"), req.Download, req.Upload); err != nil {
		ui.clientError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (ui *Handler) handleGetLimits(w http.ResponseWriter, r *http.Request) {
	dl, ul := ui.eng.GlobalLimits()
	JSONResponse(w, LimitsRequest{Download: dl, Upload: ul}, http.StatusOK)
}

func (ui *Handler) handleSetLimits(w http.ResponseWriter, r *http.Request) {
	var req LimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := ui.eng.SetGlobalLimits(req.Download, req.Upload); err != nil {
		ui.clientError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (ui *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, config.Get(), http.StatusOK)
}

func (ui *Handler) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	cfg := config.Get()
	updated := *cfg
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	updated.Path = cfg.Path

	if err := config.ValidateConfig(&updated); err != nil {
		http.Error(w, fmt.Sprintf("Invalid config: %v", err), http.StatusBadRequest)
		return
	}
	if err := updated.Save(); err != nil {
		ui.logger.Error().Err(err).Msg("Failed to save config")
		http.Error(w, "Failed to save config", http.StatusInternalServerError)
		return
	}
	config.Reload()

	// Default limits take effect immediately; engine-level settings
	// (ports, toggles) need a restart.
	if err := ui.eng.SetGlobalLimits(updated.DownloadLimit, updated.UploadLimit); err != nil {
		ui.logger.Error().Err(err).Msg("Failed to apply limits")
	}

	w.WriteHeader(http.StatusOK)
}

func (ui *Handler) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, version.GetInfo(), http.StatusOK)
}

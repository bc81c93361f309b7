package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (ui *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/login", ui.LoginHandler)
	r.Post("/login", ui.LoginHandler)
	r.Get("/logout", ui.LogoutHandler)
	r.Get("/setup", ui.SetupHandler)
	r.Post("/setup", ui.SetupHandler)

	r.Group(func(r chi.Router) {
		r.Use(ui.authMiddleware)
		r.Get("/", ui.IndexHandler)
		r.Get("/config", ui.ConfigHandler)
		r.Route("/internal", func(r chi.Router) {
			r.Get("/torrents", ui.handleGetTorrents)
			r.Post("/torrents", ui.handleAddTorrent)
			r.Route("/torrents/{hash}", func(r chi.Router) {
				r.Delete("/", ui.handleDeleteTorrent)
				r.Post("/pause", ui.handlePauseTorrent)
				r.Post("/resume", ui.handleResumeTorrent)
				r.Get("/files", ui.handleGetFiles)
				r.Get("/trackers", ui.handleGetTrackers)
				r.Get("/peers", ui.handleGetPeers)
				r.Get("/priorities", ui.handleGetPriorities)
				r.Post("/files/{index}/priority", ui.handleSetFilePriority)
				r.Post("/limits", ui.handleSetTorrentLimits)
			})
			r.Get("/limits", ui.handleGetLimits)
			r.Post("/limits", ui.handleSetLimits)
			r.Get("/config", ui.handleGetConfig)
			r.Post("/config", ui.handleSaveConfig)
			r.Get("/version", ui.handleGetVersion)
		})
	})

	return r
}

package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/bitflood/bitflood/internal/config"
	"github.com/bitflood/bitflood/internal/logger"
	"github.com/bitflood/bitflood/pkg/engine"
	"github.com/bitflood/bitflood/pkg/model"
	"github.com/bitflood/bitflood/pkg/version"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Orchestrator is the slice of the session engine the UI drives.
type Orchestrator interface {
	AddMagnet(uri, saveDir string) (string, error)
	AddFromFile(path, saveDir string) (string, error)
	Pause(infoHash string) error
	Resume(infoHash string) error
	Remove(infoHash string, deleteData bool) error
	Files(infoHash string) ([]engine.FileInfo, error)
	Trackers(infoHash string) ([]engine.TrackerInfo, error)
	Peers(infoHash string) ([]engine.PeerInfo, error)
	SetFilePriority(infoHash string, index, priority int) error
	FilePriorities(infoHash string) ([]int, error)
	SetGlobalLimits(dlKiB, ulKiB int) error
	GlobalLimits() (dlKiB, ulKiB int)
	SetTorrentLimits(infoHash string, dlKiB, ulKiB int) error
}

// Fetcher downloads a .torrent file by URL and returns its local path.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

//go:embed web/*
var content embed.FS

var (
	store     = sessions.NewCookieStore([]byte(uuid.NewString()))
	templates *template.Template
)

func init() {
	templates = template.Must(template.ParseFS(
		content,
		"web/layout.html",
		"web/index.html",
		"web/config.html",
		"web/login.html",
		"web/setup.html",
	))

	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
	}
}

type Handler struct {
	eng     Orchestrator
	table   *model.Table
	fetcher Fetcher
	logger  zerolog.Logger
}

func New(eng Orchestrator, table *model.Table, fetcher Fetcher) *Handler {
	return &Handler{
		eng:     eng,
		table:   table,
		fetcher: fetcher,
		logger:  logger.New("ui"),
	}
}

func (ui *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := config.Get()
		if !cfg.UseAuth {
			next.ServeHTTP(w, r)
			return
		}
		if cfg.NeedsAuth() && r.URL.Path != "/setup" {
			http.Redirect(w, r, "/setup", http.StatusSeeOther)
			return
		}

		session, _ := store.Get(r, "bitflood-session")
		if auth, ok := session.Values["authenticated"].(bool); !ok || !auth {
			if strings.HasPrefix(r.URL.Path, "/internal") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type pageData struct {
	Page    string
	Theme   string
	Version string
	Config  *config.Config
}

func (ui *Handler) render(w http.ResponseWriter, page string) {
	cfg := config.Get()
	data := pageData{
		Page:    page,
		Theme:   cfg.Theme,
		Version: version.GetInfo().String(),
		Config:  cfg,
	}
	if err := templates.ExecuteTemplate(w, page+".html", data); err != nil {
		ui.logger.Error().Err(err).Str("page", page).Msg("Failed to render template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (ui *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	ui.render(w, "index")
}

func (ui *Handler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	ui.render(w, "config")
}

func (ui *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	cfg := config.Get()
	if r.Method == http.MethodGet {
		ui.render(w, "login")
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")

	auth := cfg.GetAuth()
	if auth == nil || username != auth.Username ||
		bcrypt.CompareHashAndPassword([]byte(auth.Password), []byte(password)) != nil {
		ui.logger.Warn().Str("username", username).Msg("Failed login attempt")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	session, _ := store.Get(r, "bitflood-session")
	session.Values["authenticated"] = true
	if err := session.Save(r, w); err != nil {
		ui.logger.Error().Err(err).Msg("Failed to save session")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (ui *Handler) SetupHandler(w http.ResponseWriter, r *http.Request) {
	cfg := config.Get()
	if !cfg.UseAuth || !cfg.NeedsAuth() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if r.Method == http.MethodGet {
		ui.render(w, "setup")
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if err := cfg.SaveAuth(&config.Auth{Username: username, Password: string(hashed)}); err != nil {
		ui.logger.Error().Err(err).Msg("Failed to save auth")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (ui *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := store.Get(r, "bitflood-session")
	session.Values["authenticated"] = false
	session.Options.MaxAge = -1
	_ = session.Save(r, w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

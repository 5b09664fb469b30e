// Package main provides the main entry point for the movie catalog server.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cineai/config"
	"cineai/database"
	"cineai/jobs"
	"cineai/logging"
	"cineai/models"
	"cineai/repository"
	"cineai/services"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	searchLimit     = 20
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// App represents the application with its dependencies
type App struct {
	movieRepo     *repository.MovieRepository
	progressRepo  *repository.ProgressRepository
	accounts      *services.AccountService
	backup        *services.BackupService
	search        *services.CatalogSearch
	importSession *jobs.ImportSession
	sessions      sessions.Store
	importDir     string
	upgrader      websocket.Upgrader
	now           func() time.Time
}

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Printf("Warning: file logging disabled: %v", err)
	} else {
		defer logCloser.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal("Failed to initialize schema:", err)
	}

	users, err := repository.NewUserRepository(cfg.Accounts.Path)
	if err != nil {
		log.Fatal("Failed to open account store:", err)
	}
	defer func() {
		if err := users.Close(); err != nil {
			log.Printf("Failed to close account store: %v", err)
		}
	}()

	if n, err := users.Count(); err == nil {
		log.Printf("Account store holds %d users", n)
	}

	// Initialize repositories
	movieRepo := repository.NewMovieRepository(db)
	progressRepo := repository.NewProgressRepository(db)

	tmdbService := services.NewTMDBService(cfg.TMDB.APIKey,
		services.WithTMDBLanguage(cfg.TMDB.Language),
		services.WithTMDBRateLimit(cfg.TMDB.RequestsPerSecond),
	)

	engine := jobs.NewIngestionEngine(tmdbService, movieRepo,
		jobs.WithBatchSize(cfg.Import.BatchSize),
		jobs.WithBatchPause(cfg.Import.BatchPause),
	)

	// Server-side file imports are confined to import.dir
	importFs := afero.NewMemMapFs()
	if cfg.Import.Dir != "" {
		importFs = afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), cfg.Import.Dir))
		log.Printf("File imports enabled from %s", cfg.Import.Dir)
	}
	importSession := jobs.NewImportSession(engine, movieRepo, importFs)
	if count, err := importSession.RefreshCount(ctx); err != nil {
		log.Printf("Failed to count catalog: %v", err)
	} else {
		log.Printf("Catalog holds %d movies", count)
	}

	cookieStore := sessions.NewCookieStore([]byte(cfg.Auth.SessionSecret))
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	app := &App{
		movieRepo:     movieRepo,
		progressRepo:  progressRepo,
		accounts:      services.NewAccountService(users, cfg.Auth.AdminEmail),
		backup:        services.NewBackupService(movieRepo),
		search:        services.NewCatalogSearch(movieRepo),
		importSession: importSession,
		sessions:      cookieStore,
		importDir:     cfg.Import.Dir,
		now:           time.Now,
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}

	// Stops a running import before its next batch
	importSession.Close()
}

// routes builds the HTTP router
func (app *App) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	// Health check endpoint
	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API routes
	api := r.PathPrefix("/api/v1").Subrouter()

	// Catalog endpoints
	api.HandleFunc("/movies", app.getMoviesHandler).Methods("GET")
	api.HandleFunc("/movies/count", app.getMovieCountHandler).Methods("GET")
	api.HandleFunc("/movies/{id}", app.getMovieByIDHandler).Methods("GET")
	api.HandleFunc("/search", app.searchHandler).Methods("GET")

	// Accounts
	api.HandleFunc("/auth/register", app.registerHandler).Methods("POST")
	api.HandleFunc("/auth/login", app.loginHandler).Methods("POST")
	api.HandleFunc("/auth/logout", app.logoutHandler).Methods("POST")
	api.HandleFunc("/me", app.requireUser(app.meHandler)).Methods("GET")
	api.HandleFunc("/me/favorites", app.requireUser(app.getFavoritesHandler)).Methods("GET")
	api.HandleFunc("/me/favorites/{id}", app.requireUser(app.toggleFavoriteHandler)).Methods("POST")

	// Continue watching
	api.HandleFunc("/progress", app.getProgressHandler).Methods("GET")
	api.HandleFunc("/progress", app.saveProgressHandler).Methods("POST")
	api.HandleFunc("/progress/{id}", app.getMovieProgressHandler).Methods("GET")

	// Admin
	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/import", app.requireAdmin(app.startImportHandler)).Methods("POST")
	admin.HandleFunc("/import/file", app.requireAdmin(app.startFileImportHandler)).Methods("POST")
	admin.HandleFunc("/import", app.requireAdmin(app.importStatusHandler)).Methods("GET")
	admin.HandleFunc("/import/outcomes", app.requireAdmin(app.importOutcomesHandler)).Methods("GET")
	admin.HandleFunc("/import", app.requireAdmin(app.cancelImportHandler)).Methods("DELETE")
	admin.HandleFunc("/import/ws", app.requireAdmin(app.importStreamHandler)).Methods("GET")
	admin.HandleFunc("/backup", app.requireAdmin(app.exportBackupHandler)).Methods("GET")
	admin.HandleFunc("/backup", app.requireAdmin(app.importBackupHandler)).Methods("POST")
	admin.HandleFunc("/movies", app.requireAdmin(app.clearCatalogHandler)).Methods("DELETE")

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// MoviePage is one page of the catalog
type MoviePage struct {
	Movies []models.Movie `json:"movies"`
	Total  int            `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

// queryInt reads a positive integer query parameter, falling back to def
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func (app *App) getMoviesHandler(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		http.Error(w, "Invalid page", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	limit = min(limit, maxPageSize)

	movies, err := app.movieRepo.GetPage(r.Context(), (page-1)*limit, limit)
	if err != nil {
		log.Printf("Error getting movies: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	total, err := app.movieRepo.Count(r.Context())
	if err != nil {
		log.Printf("Error counting movies: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, MoviePage{Movies: movies, Total: total, Page: page, Limit: limit})
}

func (app *App) getMovieCountHandler(w http.ResponseWriter, r *http.Request) {
	total, err := app.movieRepo.Count(r.Context())
	if err != nil {
		log.Printf("Error counting movies: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": total})
}

func (app *App) getMovieByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	movie, err := app.movieRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrMovieNotFound) {
			http.Error(w, "Movie not found", http.StatusNotFound)
			return
		}
		log.Printf("Error getting movie by ID: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, movie)
}

func (app *App) searchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit, err := queryInt(r, "limit", searchLimit)
	if err != nil {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}

	movies, err := app.search.Search(r.Context(), query, min(limit, maxPageSize))
	if err != nil {
		log.Printf("Error searching catalog: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

// progressRequest is the body of POST /progress
type progressRequest struct {
	MovieID            string `json:"movieId" validate:"required"`
	ProgressPercentage int    `json:"progressPercentage" validate:"gte=0,lte=100"`
}

func (app *App) getProgressHandler(w http.ResponseWriter, r *http.Request) {
	progress, err := app.progressRepo.GetAll(r.Context())
	if err != nil {
		log.Printf("Error getting progress: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (app *App) getMovieProgressHandler(w http.ResponseWriter, r *http.Request) {
	progress, err := app.progressRepo.GetByMovieID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, repository.ErrProgressNotFound) {
			http.Error(w, "No progress for movie", http.StatusNotFound)
			return
		}
		log.Printf("Error getting progress: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (app *App) saveProgressHandler(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Invalid progress: "+err.Error(), http.StatusBadRequest)
		return
	}

	movie, err := app.movieRepo.GetByID(r.Context(), req.MovieID)
	if err != nil {
		if errors.Is(err, repository.ErrMovieNotFound) {
			http.Error(w, "Movie not found", http.StatusNotFound)
			return
		}
		log.Printf("Error getting movie by ID: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	progress := models.ViewingProgress{
		MovieID:            movie.ID,
		MovieTitle:         movie.Title,
		PosterURL:          movie.PosterURL,
		LastPlayed:         app.now().UnixMilli(),
		ProgressPercentage: req.ProgressPercentage,
	}
	if err := app.progressRepo.Upsert(r.Context(), progress); err != nil {
		log.Printf("Error saving progress: %v", err)
		http.Error(w, "Failed to save progress", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

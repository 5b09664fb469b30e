package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"cineai/jobs"
	"cineai/services"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	maxImportSize = 10 << 20
	maxBackupSize = 100 << 20

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// importError maps an import start error to a response
func importError(w http.ResponseWriter, err error) {
	if catalogBusy(w, err) {
		return
	}
	switch {
	case errors.Is(err, jobs.ErrNothingFound):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, jobs.ErrUnreadableInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Error starting import: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// startImportHandler accepts a multipart upload in the "file" field or the
// import text as the raw request body
func (app *App) startImportHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			http.Error(w, "Missing import file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		err = app.importSession.ProcessReader(header.Filename, file)
	} else {
		body, rerr := io.ReadAll(r.Body)
		if rerr != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		err = app.importSession.ProcessContent(string(body))
	}

	if err != nil {
		importError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, app.importSession.Status())
}

// startFileImportHandler imports a file from the configured import directory
func (app *App) startFileImportHandler(w http.ResponseWriter, r *http.Request) {
	if app.importDir == "" {
		http.Error(w, "File imports are disabled", http.StatusForbidden)
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Path) == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := app.importSession.ProcessFile(req.Path); err != nil {
		importError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, app.importSession.Status())
}

func (app *App) importStatusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, app.importSession.Status())
}

func (app *App) importOutcomesHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, app.importSession.Outcomes())
}

func (app *App) cancelImportHandler(w http.ResponseWriter, _ *http.Request) {
	if !app.importSession.Cancel() {
		http.Error(w, "No import is running", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, app.importSession.Status())
}

// importStreamHandler pushes every import status change over a websocket
func (app *App) importStreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := app.importSession.Subscribe()
	defer unsubscribe()

	// The reader only watches for the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case status, ok := <-updates:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(status); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (app *App) exportBackupHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := app.backup.Export(r.Context(), &buf)
	if err != nil {
		log.Printf("Error exporting backup: %v", err)
		http.Error(w, "Failed to export backup", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("cineai-backup-%s.json", app.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("Failed to write backup: %v", err)
		return
	}
	log.Printf("Exported backup of %d movies", n)
}

// catalogBusy answers a request refused because an import holds the catalog
func catalogBusy(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, jobs.ErrImportRunning), errors.Is(err, jobs.ErrCatalogBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, jobs.ErrSessionClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		return false
	}
	return true
}

func (app *App) importBackupHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBackupSize)

	var n int
	err := app.importSession.Exclusive(func() error {
		var err error
		n, err = app.backup.Import(r.Context(), r.Body)
		return err
	})
	if err != nil {
		if catalogBusy(w, err) {
			return
		}
		if errors.Is(err, services.ErrInvalidBackup) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("Error importing backup: %v", err)
		http.Error(w, "Failed to import backup", http.StatusInternalServerError)
		return
	}

	count, err := app.importSession.RefreshCount(r.Context())
	if err != nil {
		log.Printf("Failed to refresh catalog count: %v", err)
	}
	log.Printf("Restored %d movies from backup", n)
	writeJSON(w, http.StatusOK, map[string]int{"imported": n, "count": count})
}

func (app *App) clearCatalogHandler(w http.ResponseWriter, r *http.Request) {
	err := app.importSession.Exclusive(func() error {
		return app.movieRepo.Clear(r.Context())
	})
	if err != nil {
		if catalogBusy(w, err) {
			return
		}
		log.Printf("Error clearing catalog: %v", err)
		http.Error(w, "Failed to clear catalog", http.StatusInternalServerError)
		return
	}

	if _, err := app.importSession.RefreshCount(r.Context()); err != nil {
		log.Printf("Failed to refresh catalog count: %v", err)
	}
	log.Println("Catalog cleared")
	w.WriteHeader(http.StatusNoContent)
}

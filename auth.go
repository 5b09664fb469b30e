package main

import (
	"context"
	"errors"
	"log"
	"net/http"

	"cineai/models"
	"cineai/repository"
	"cineai/services"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

const (
	sessionName   = "cineai-session"
	sessionUserID = "user_id"
)

type contextKey string

const userContextKey contextKey = "user"

// credentials is the body of the register and login endpoints
type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userFromContext returns the user stored by requireUser
func userFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// sessionUser loads the user of the request's session, nil when logged out
func (app *App) sessionUser(r *http.Request) (*models.User, error) {
	session, err := app.sessions.Get(r, sessionName)
	if err != nil {
		// A cookie signed with an old secret is treated as logged out
		return nil, nil
	}

	id, ok := session.Values[sessionUserID].(string)
	if !ok || id == "" {
		return nil, nil
	}

	user, err := app.accounts.Get(id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}

// requireUser rejects requests without a logged in user
func (app *App) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := app.sessionUser(r)
		if err != nil {
			log.Printf("Error loading session user: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "Not logged in", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	}
}

// requireAdmin rejects requests from anyone but a logged in admin
func (app *App) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return app.requireUser(func(w http.ResponseWriter, r *http.Request) {
		if !userFromContext(r.Context()).IsAdmin() {
			http.Error(w, "Admin access required", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

func (app *App) startSession(w http.ResponseWriter, r *http.Request, user *models.User) error {
	// Get never returns a nil session, even when the cookie is invalid
	session, _ := app.sessions.Get(r, sessionName)
	session.Values[sessionUserID] = user.ID
	return session.Save(r, w)
}

func (app *App) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := app.accounts.Register(req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAccount):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrUserExists):
			http.Error(w, "Email already registered", http.StatusConflict)
		default:
			log.Printf("Error registering user: %v", err)
			http.Error(w, "Failed to register", http.StatusInternalServerError)
		}
		return
	}

	if err := app.startSession(w, r, user); err != nil {
		log.Printf("Error saving session: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.Printf("Registered user %s (%s)", user.Email, user.Role)
	writeJSON(w, http.StatusCreated, user.Public())
}

func (app *App) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := app.accounts.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			http.Error(w, "Invalid email or password", http.StatusUnauthorized)
			return
		}
		log.Printf("Error logging in: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := app.startSession(w, r, user); err != nil {
		log.Printf("Error saving session: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, user.Public())
}

func (app *App) logoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := app.sessions.Get(r, sessionName)
	delete(session.Values, sessionUserID)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		log.Printf("Error clearing session: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) meHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFromContext(r.Context()).Public())
}

func (app *App) getFavoritesHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	movies, err := app.movieRepo.GetByIDs(r.Context(), user.Favorites)
	if err != nil {
		log.Printf("Error getting favorites: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

func (app *App) toggleFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	movieID := mux.Vars(r)["id"]

	if _, err := app.movieRepo.GetByID(r.Context(), movieID); err != nil {
		if errors.Is(err, repository.ErrMovieNotFound) {
			http.Error(w, "Movie not found", http.StatusNotFound)
			return
		}
		log.Printf("Error getting movie by ID: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	updated, favorite, err := app.accounts.ToggleFavorite(user.ID, movieID)
	if err != nil {
		log.Printf("Error toggling favorite: %v", err)
		http.Error(w, "Failed to update favorites", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"favorite":  favorite,
		"favorites": updated.Favorites,
	})
}

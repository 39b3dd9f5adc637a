package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lyrsync/pkg/cmd/run"
	"lyrsync/pkg/lrc"
	"lyrsync/pkg/pipeline"
	"lyrsync/pkg/storage"
	"lyrsync/pkg/versions"
)

type Config struct {
	run.Config

	Addr        string
	Credentials map[string]string
}

// Serve starts the admin API service.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("serve: server started")
	defer log.Println("serve: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runner, store, svc, err := run.Wire(ctx, &cfg.Config)
	if err != nil {
		return err
	}

	// Create router
	mux := chi.NewRouter()

	// Add middleware
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Timeout(60 * time.Second))

	// Add BasicAuth middleware
	if len(cfg.Credentials) > 0 {
		mux.Use(middleware.BasicAuth("private", cfg.Credentials))
	}

	// Create subrouter for api endpoints
	r := mux.Group(func(r chi.Router) {
		if cfg.Debug {
			r.Use(middleware.Logger)
		}
	})

	// Create server
	split := strings.Split(cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("serve: invalid address: %s", cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("serve: invalid port: %s", split[1])
	}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: mux,
	}
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("all interfaces http://localhost:%d", port)
		}
		log.Printf("Starting server on %s", note)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v\n", err)
			cancel()
		}
	}()

	r.Post("/api/pipeline/trigger", func(w http.ResponseWriter, r *http.Request) {
		reason := r.URL.Query().Get("reason")
		if reason == "" {
			reason = "api"
		}
		mode := pipeline.Mode(r.URL.Query().Get("mode"))
		switch mode {
		case "", pipeline.ModeAll:
			mode = pipeline.ModeAll
		case pipeline.ModeRetrieval, pipeline.ModeAlignment, pipeline.ModeForce:
		default:
			http.Error(w, fmt.Sprintf("unknown mode: %s", mode), http.StatusBadRequest)
			return
		}
		started := runner.Trigger(reason, mode)
		w.Header().Set("Content-Type", "application/json")
		if started {
			w.WriteHeader(http.StatusAccepted)
		}
		if err := json.NewEncoder(w).Encode(map[string]bool{"started": started}); err != nil {
			log.Println("couldn't encode response:", err)
		}
	})

	r.Get("/api/pipeline/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, runner.Status())
	})

	r.Get("/api/songs", func(w http.ResponseWriter, r *http.Request) {
		// Obtain page from query params
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil {
			page = 1
		}
		size, err := strconv.Atoi(r.URL.Query().Get("size"))
		if err != nil {
			size = 100
		}
		var filters []storage.Filter
		if v := r.URL.Query().Get("category"); v != "" {
			filters = append(filters, storage.Where("category = ?", v))
		}
		if v := r.URL.Query().Get("name"); v != "" {
			filters = append(filters, storage.Where("name LIKE ?", "%"+v+"%"))
		}
		if v := r.URL.Query().Get("missing-lyrics"); v == "true" {
			filters = append(filters, storage.Where("raw_lyrics = ?", ""))
		}
		songs, err := store.ListSongs(ctx, page, size, "songs.id asc", filters...)
		if err != nil {
			log.Println("couldn't list songs:", err)
			http.Error(w, fmt.Sprintf("couldn't list songs: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, songs)
	})

	r.Get("/api/songs/{id}/versions", func(w http.ResponseWriter, r *http.Request) {
		vs, err := store.ListVersions(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, fmt.Sprintf("couldn't list versions: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, vs)
	})

	r.Get("/api/songs/{id}/lyrics", func(w http.ResponseWriter, r *http.Request) {
		v, err := store.CanonicalVersion(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "no canonical version", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("couldn't get canonical version: %v", err), http.StatusInternalServerError)
			return
		}
		if r.URL.Query().Get("format") == "lrc" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(lrc.Format(v.Lines)))
			return
		}
		writeJSON(w, v)
	})

	r.Post("/api/songs/{id}/regenerate", func(w http.ResponseWriter, r *http.Request) {
		v, err := runner.Regenerate(r.Context(), chi.URLParam(r, "id"))
		switch {
		case err == nil:
			writeJSON(w, v)
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "song not found", http.StatusNotFound)
		case errors.Is(err, pipeline.ErrNoAudio),
			errors.Is(err, pipeline.ErrNoLyrics),
			errors.Is(err, pipeline.ErrNoWords),
			errors.Is(err, pipeline.ErrLowConfidence):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			log.Println("couldn't regenerate:", err)
			http.Error(w, fmt.Sprintf("couldn't regenerate: %v", err), http.StatusInternalServerError)
		}
	})

	r.Post("/api/songs/{id}/versions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Author string        `json:"author"`
			Lines  storage.Lines `json:"lines"`
			Notes  string        `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("couldn't decode request: %v", err), http.StatusBadRequest)
			return
		}
		if req.Author == "" {
			req.Author = username(r)
		}
		v, err := svc.Create(r.Context(), chi.URLParam(r, "id"), storage.SourceManual, req.Author, req.Lines, req.Notes)
		if err != nil {
			http.Error(w, fmt.Sprintf("couldn't create version: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, v)
	})

	r.Post("/api/versions/{id}/submit", func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Submit(r.Context(), chi.URLParam(r, "id"), false)
		var covErr *versions.CoverageError
		switch {
		case errors.As(err, &covErr):
			http.Error(w, covErr.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, versions.ErrNotDraft):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "version not found", http.StatusNotFound)
		case err != nil:
			http.Error(w, fmt.Sprintf("couldn't submit version: %v", err), http.StatusInternalServerError)
		default:
			writeJSON(w, res)
		}
	})

	r.Put("/api/versions/{id}/approve", func(w http.ResponseWriter, r *http.Request) {
		reviewVersion(w, r, func(id string) error {
			return svc.Approve(r.Context(), id, username(r))
		})
	})
	r.Put("/api/versions/{id}/reject", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Notes string `json:"notes"`
		}
		// An empty body is a rejection without notes.
		_ = json.NewDecoder(r.Body).Decode(&req)
		reviewVersion(w, r, func(id string) error {
			return svc.Reject(r.Context(), id, username(r), req.Notes)
		})
	})
	r.Put("/api/versions/{id}/revert", func(w http.ResponseWriter, r *http.Request) {
		reviewVersion(w, r, func(id string) error {
			return svc.Revert(r.Context(), id, username(r))
		})
	})

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("serve: couldn't shutdown server: %w", err)
	}
	return nil
}

func reviewVersion(w http.ResponseWriter, r *http.Request, review func(id string) error) {
	err := review(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "version not found", http.StatusNotFound)
	case errors.Is(err, versions.ErrNotPending), errors.Is(err, versions.ErrNotApproved):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		log.Println("couldn't update version:", err)
		http.Error(w, fmt.Sprintf("couldn't update version: %v", err), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// username attributes review actions to the authenticated user.
func username(r *http.Request) string {
	if user, _, ok := r.BasicAuth(); ok && user != "" {
		return user
	}
	return "admin"
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("couldn't encode response:", err)
	}
}

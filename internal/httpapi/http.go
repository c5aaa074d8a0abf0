package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/calls"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/config"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/geocode"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/metrics"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/pkg/json"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/recordings"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/store"
)

const maxBodyBytes = 1 << 20

// LocationResolver resolves coordinates into a location description.
type LocationResolver interface {
	Resolve(ctx context.Context, lat, lon float64) geocode.LocationResult
}

// Router builds HTTP handlers for /api and /ops.
type Router struct {
	cfg        config.Config
	calls      *calls.Registry
	recordings *recordings.Manager
	locations  LocationResolver
	store      *store.Store
}

func NewRouter(cfg config.Config, reg *calls.Registry, recs *recordings.Manager, locations LocationResolver, st *store.Store) *Router {
	return &Router{cfg: cfg, calls: reg, recordings: recs, locations: locations, store: st}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/emergency-call", r.emergencyCall)
	mux.HandleFunc("/api/location", r.location)
	mux.HandleFunc("/api/recording/start", r.startRecording)
	mux.HandleFunc("/api/recording/stop/", r.stopRecording)
	mux.HandleFunc("/api/calls", r.listCalls)
	mux.HandleFunc("/api/health", r.health)
	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/ops/health", r.opsHealth)
	if info, err := os.Stat(r.cfg.StaticDir); err == nil && info.IsDir() {
		mux.Handle("/", http.FileServer(http.Dir(r.cfg.StaticDir)))
	}
}

func (r *Router) emergencyCall(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodPost) {
		return
	}
	var body map[string]any
	if err := decodeObject(w, req, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := r.calls.Record(calls.InputFromBody(body))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Emergency call recorded",
		"call_id": id,
	})
}

func (r *Router) location(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodPost) {
		return
	}
	var body struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := decodeObject(w, req, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Latitude == nil || body.Longitude == nil {
		respondError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	loc := r.locations.Resolve(req.Context(), *body.Latitude, *body.Longitude)
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "location": loc})
}

func (r *Router) startRecording(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodPost) {
		return
	}
	id := r.recordings.Start()
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "recording_id": id})
}

func (r *Router) stopRecording(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodPost) {
		return
	}
	// /api/recording/stop/{recording_id}
	id := strings.TrimPrefix(req.URL.Path, "/api/recording/stop/")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusNotFound, "Recording not found")
		return
	}
	err := r.recordings.Stop(id)
	switch {
	case errors.Is(err, recordings.ErrNotFound):
		respondError(w, http.StatusNotFound, "Recording not found")
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Recording saved"})
	}
}

func (r *Router) listCalls(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodGet) {
		return
	}
	list, total := r.calls.List()
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "calls": list, "total": total})
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if !allowMethod(w, req, http.MethodGet) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": config.Timestamp(config.Now()),
	})
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	payload := map[string]any{"metrics": metrics.Snapshot()}
	if r.store != nil {
		archived, indexed, err := r.store.Counts(ctx)
		if err != nil {
			log.Printf("ops status: %v", err)
		}
		recent, _ := r.store.ListCalls(ctx, 5)
		payload["archived_calls"] = archived
		payload["archived_recordings"] = indexed
		payload["recent_calls"] = recent
	}
	respondJSON(w, http.StatusOK, payload)
}

func (r *Router) opsHealth(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, "archive disabled", http.StatusServiceUnavailable)
		return
	}
	if err := r.store.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func allowMethod(w http.ResponseWriter, req *http.Request, method string) bool {
	if req.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// decodeObject reads a JSON object body into v.
func decodeObject(w http.ResponseWriter, req *http.Request, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return errors.New("request body must be a JSON object")
	}
	return json.Unmarshal(data, v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]any{"success": false, "error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("write json: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Cocoseas/lambosync/cache"
)

// Handlers serves read access to the query cache
type Handlers struct {
	store *cache.Store
}

// NewHandlers creates admin handlers over a cache store
func NewHandlers(store *cache.Store) *Handlers {
	return &Handlers{store: store}
}

// entrySummary is the list view of one cache entry
type entrySummary struct {
	Key      string `json:"key"`
	Endpoint string `json:"endpoint"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

func (h *Handlers) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries := h.store.Entries()
	out := make([]entrySummary, 0, len(entries))
	for _, e := range entries {
		s := entrySummary{
			Key:      strconv.FormatUint(e.Key(), 10),
			Endpoint: e.Endpoint(),
			State:    e.State().String(),
		}
		if err := e.Err(); err != nil {
			s.Error = err.Error()
		}
		out = append(out, s)
	}
	writeJSON(w, map[string]any{"entries": out})
}

func (h *Handlers) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	key, err := strconv.ParseUint(chi.URLParam(r, "key"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry key")
		return
	}

	if e, ok := h.store.Entry(key); ok {
		writeJSON(w, map[string]any{
			"endpoint": e.Endpoint(),
			"state":    e.State().String(),
			"args":     e.Args(),
			"value":    e.Value(),
		})
		return
	}

	// Fall back to the stale retention window
	if retained, ok := h.store.Stale(key); ok {
		writeJSON(w, map[string]any{
			"state":      "stale",
			"value":      retained.Value,
			"evicted_at": retained.EvictedAt,
		})
		return
	}

	writeError(w, http.StatusNotFound, "entry not found")
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

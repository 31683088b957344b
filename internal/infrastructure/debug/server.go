// ABOUTME: JSON introspection endpoints over a reactor's live-stream stats
// ABOUTME: Adapted from the station proxy's /stations and /healthz handlers
package debug

import (
	"encoding/json"
	"net/http"

	"github.com/harper/httpstreaminput/internal/infrastructure/reactor"
)

// StatsHandler reports the reactor's point-in-time stats as JSON,
// mirroring the station proxy's StationsHandler.
type StatsHandler struct {
	r *reactor.Reactor
}

func NewStatsHandler(r *reactor.Reactor) *StatsHandler {
	return &StatsHandler{r: r}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats := h.r.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// HealthzHandler always reports ok: the debug server has nothing of its
// own to be unhealthy about, it just reflects the reactor.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	type response struct {
		OK bool `json:"ok"`
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response{OK: true})
}

// NewMux builds the debug server's routes: /stats and /healthz.
func NewMux(r *reactor.Reactor) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/stats", NewStatsHandler(r))
	mux.HandleFunc("/healthz", HealthzHandler)
	return mux
}

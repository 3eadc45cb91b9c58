package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrWong99/jurubahasa/internal/session"
)

// Control is the headless session the control endpoints drive.
type Control interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Inspect(ctx context.Context) (session.Info, error)
}

const controlTimeout = 5 * time.Second

type controlResponse struct {
	ID             string `json:"id,omitempty"`
	State          string `json:"state,omitempty"`
	RestartEnabled bool   `json:"restart_enabled"`
	Accumulated    string `json:"accumulated,omitempty"`
	LastFinalized  string `json:"last_finalized,omitempty"`
	Error          string `json:"error,omitempty"`
}

// RegisterControl adds POST /control/start, POST /control/stop and
// GET /control/status for ctrl to mux.
func RegisterControl(mux *http.ServeMux, ctrl Control) {
	mux.HandleFunc("POST /control/start", func(w http.ResponseWriter, r *http.Request) {
		operate(w, r, ctrl, ctrl.Start)
	})
	mux.HandleFunc("POST /control/stop", func(w http.ResponseWriter, r *http.Request) {
		operate(w, r, ctrl, ctrl.Stop)
	})
	mux.HandleFunc("GET /control/status", func(w http.ResponseWriter, r *http.Request) {
		operate(w, r, ctrl, nil)
	})
}

func operate(w http.ResponseWriter, r *http.Request, ctrl Control, op func(context.Context) error) {
	ctx, cancel := context.WithTimeout(r.Context(), controlTimeout)
	defer cancel()

	if op != nil {
		if err := op(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, controlResponse{Error: err.Error()})
			return
		}
	}
	info, err := ctrl.Inspect(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, controlResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{
		ID:             info.ID,
		State:          info.State.String(),
		RestartEnabled: info.RestartEnabled,
		Accumulated:    info.Text.Accumulated,
		LastFinalized:  info.Text.LastFinalized,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

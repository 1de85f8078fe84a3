package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mcdev12/buzzer/go/internal/buzzer/game"
	"github.com/rs/zerolog/log"
)

// StateProvider returns a consistent view of the game
type StateProvider interface {
	Snapshot(ctx context.Context) (game.Snapshot, error)
}

// StateHandler handles HTTP requests for game state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetState handles GET /api/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, err := h.stateProvider.Snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get game state")
		http.Error(w, "Failed to get game state", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode game state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", h.HandleGetState)
}

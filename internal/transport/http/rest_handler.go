package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// RestHandler serves the plain request/response read model the clients
// poll outside the socket protocol.
type RestHandler struct {
	service *app.RoomService
	logger  zerolog.Logger
}

func NewRestHandler(service *app.RoomService, logger zerolog.Logger) *RestHandler {
	return &RestHandler{service: service, logger: logger}
}

// Leaderboard handles GET /leaderboard?code=ABC123.
func (h *RestHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	lb, err := h.service.Leaderboard(r.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			http.Error(w, "leaderboard not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("room", code).Msg("leaderboard read failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(lb); err != nil {
		h.logger.Debug().Err(err).Msg("leaderboard encode failed")
	}
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/defuselab/defusal-tournament/services"
)

type SessionHandler struct {
	tournamentService services.TournamentService
}

func NewSessionHandler(tournamentService services.TournamentService) *SessionHandler {
	return &SessionHandler{tournamentService: tournamentService}
}

// Complete is the completion callback from the game engine. Duplicate
// reports for the same session are accepted and ignored.
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	sessionID, err := idParam(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Attempts int `json:"attempts"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Attempts < 0 {
		badRequestResponse(w, r, errors.New("attempts must not be negative"))
		return
	}

	if err := h.tournamentService.ReportSessionCompletion(r.Context(), sessionID, input.Attempts); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": "recorded"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

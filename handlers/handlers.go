package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"deduction/db"
	"deduction/engine"
	"deduction/phase"
)

// Handler exposes the engine's inbound commands over HTTP. It stays thin:
// decode, validate, dispatch. Everything interesting happens in the engine.
type Handler struct {
	engine *engine.Engine
	logger *log.Logger
}

// New builds the handler set.
func New(eng *engine.Engine, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	return &Handler{engine: eng, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine failures onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, engine.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, "player not part of this game")
	case errors.Is(err, engine.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "unknown card")
	case errors.Is(err, engine.ErrGameEnded):
		writeError(w, http.StatusConflict, "game has ended")
	case errors.Is(err, engine.ErrWrongPhase):
		writeError(w, http.StatusConflict, "action not allowed in current phase")
	case errors.Is(err, engine.ErrNoBudget):
		writeError(w, http.StatusConflict, "no exploration actions left")
	case errors.Is(err, phase.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "only the host may do that")
	default:
		h.logger.Printf("[INTERNAL] %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type createGameRequest struct {
	ScenarioID string            `json:"scenario_id"`
	HostID     string            `json:"host_id"`
	Players    map[string]string `json:"players"` // player id -> character id
}

// CreateGame sets up a new game instance.
func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.ScenarioID == "" || req.HostID == "" {
		writeError(w, http.StatusBadRequest, "scenario_id and host_id are required")
		return
	}

	gameID, err := h.engine.CreateGame(r.Context(), req.ScenarioID, req.HostID, req.Players)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"game_id": gameID})
}

type thinkRequest struct {
	GameID      string `json:"game_id"`
	Trigger     string `json:"trigger"`
	CharacterID string `json:"character_id,omitempty"`
}

// Think requests a cognition cycle.
func (h *Handler) Think(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req thinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	trigger := engine.Trigger(req.Trigger)
	if req.GameID == "" || !trigger.Valid() {
		writeError(w, http.StatusBadRequest, "game_id and a valid trigger are required")
		return
	}

	if err := h.engine.Think(r.Context(), req.GameID, trigger, req.CharacterID); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type voteRequest struct {
	GameID      string `json:"game_id"`
	CharacterID string `json:"character_id,omitempty"`
}

// Vote makes one agent, or all agents, cast a culprit vote.
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.GameID == "" {
		writeError(w, http.StatusBadRequest, "game_id is required")
		return
	}

	if err := h.engine.Vote(r.Context(), req.GameID, req.CharacterID); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type advancePhaseRequest struct {
	GameID      string `json:"game_id"`
	RequestedBy string `json:"requested_by"`
}

// AdvancePhase applies a host-requested manual transition. An already-ended
// game reports advanced=false rather than an error so callers can tell
// "game over" apart from a fault.
func (h *Handler) AdvancePhase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req advancePhaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.GameID == "" || req.RequestedBy == "" {
		writeError(w, http.StatusBadRequest, "game_id and requested_by are required")
		return
	}

	tr, err := h.engine.AdvancePhase(r.Context(), req.GameID, req.RequestedBy)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if tr == nil {
		writeJSON(w, http.StatusOK, map[string]any{"advanced": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"advanced": true,
		"from":     tr.From,
		"to":       tr.To,
		"deadline": tr.Deadline,
	})
}

type explorationRequest struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	CardID   string `json:"card_id,omitempty"` // empty means skip
}

// ExplorationAction spends one exploration action.
func (h *Handler) ExplorationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req explorationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.GameID == "" || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "game_id and player_id are required")
		return
	}

	if err := h.engine.ExplorationAction(r.Context(), req.GameID, req.PlayerID, req.CardID); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

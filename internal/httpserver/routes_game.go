// internal/httpserver/routes_game.go
//
// Game routes. All but /game/status require auth; the caller identity is
// the username from the session token.
//   - POST /inputs       → attest a ciphertext for the caller (relayer role)
//   - POST /game/secret  → admin sets the encrypted secret
//   - POST /game/reset   → admin deactivates the game
//   - POST /game/guess   → submit an encrypted guess, returns the request id
//   - GET  /game/status  → {active, round}
//   - GET  /stats/me     → caller's statistics

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
	"github.com/chandiniv1/secret-number-game/internal/game"
)

// ciphertextReq carries a base64 ciphertext and, except for /inputs, its
// attestation.
type ciphertextReq struct {
	Ciphertext []byte `json:"ciphertext"`
	Proof      string `json:"proof"`
}

type inputRes struct {
	Handle fhe.Handle `json:"handle"`
	Proof  string     `json:"proof"`
}

type guessRes struct {
	RequestID game.RequestID `json:"requestId"`
}

func (s *Server) mountGame() {
	s.r.Get("/game/status", s.handleStatus)
	s.r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/inputs", s.handleInput)
		r.Post("/game/secret", s.handleSetSecret)
		r.Post("/game/reset", s.handleReset)
		r.Post("/game/guess", s.handleGuess)
		r.Get("/stats/me", s.handleStats)
	})
}

func decodeCiphertext(w http.ResponseWriter, r *http.Request) (ciphertextReq, bool) {
	var req ciphertextReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Ciphertext) == 0 {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// handleInput attests that the caller submitted this ciphertext. The token is
// bound to the caller, so it cannot be replayed by another player.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCiphertext(w, r)
	if !ok {
		return
	}
	h, err := s.deps.Coprocessor.InputHandleFor(req.Ciphertext)
	if errors.Is(err, fhe.ErrMalformedCiphertext) {
		http.Error(w, `{"error":"malformed_ciphertext"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("input handle")
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	tok, err := s.deps.Attestor.Attest(h.String(), currentUser(r).Username)
	if err != nil {
		log.Error().Err(err).Msg("attest input")
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, inputRes{Handle: h, Proof: tok})
}

func (s *Server) handleSetSecret(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCiphertext(w, r)
	if !ok {
		return
	}
	if err := s.deps.Machine.SetSecret(r.Context(), currentUser(r).Username, req.Ciphertext, req.Proof); err != nil {
		writeGameError(w, "set_secret", err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Machine.ResetGame(r.Context(), currentUser(r).Username); err != nil {
		writeGameError(w, "reset", err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCiphertext(w, r)
	if !ok {
		return
	}
	id, err := s.deps.Machine.MakeGuess(r.Context(), currentUser(r).Username, req.Ciphertext, req.Proof)
	if err != nil {
		writeGameError(w, "guess", err)
		return
	}
	writeJSON(w, http.StatusAccepted, guessRes{RequestID: id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Machine.Status(r.Context())
	if err != nil {
		writeGameError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Machine.MyStats(r.Context(), currentUser(r).Username)
	if err != nil {
		writeGameError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

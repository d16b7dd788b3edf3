// internal/httpserver/routes_requests.go
//
// Decryption request and notification routes.
//   - POST /decryption/callback → deliver a signed decryption result (no auth;
//                                 the decryption proof is what is trusted)
//   - GET  /requests/mine       → caller's requests, newest first (auth)
//   - GET  /requests/{id}       → {requestId, player, processed}
//   - GET  /events              → committed notifications after ?since=
//
// Callback status codes are what oracle.HTTPDeliverer maps back to errors:
// 204 applied, 409 already processed, 404 unknown id, 401 bad proof,
// 422 malformed result.

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chandiniv1/secret-number-game/internal/events"
	"github.com/chandiniv1/secret-number-game/internal/game"
	"github.com/chandiniv1/secret-number-game/internal/oracle"
)

type requestRes struct {
	RequestID game.RequestID `json:"requestId"`
	Player    string         `json:"player"`
	Processed bool           `json:"processed"`
}

type eventsRes struct {
	Events []events.Event `json:"events"`
	Next   int64          `json:"next"`
}

func (s *Server) mountRequests() {
	s.r.Post("/decryption/callback", s.handleCallback)
	s.r.With(s.requireAuth).Get("/requests/mine", s.handleMyRequests)
	s.r.Get("/requests/{id}", s.handleRequest)
	s.r.Get("/events", s.handleEvents)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var cb oracle.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil || cb.RequestID == "" {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if err := s.deps.Machine.CallbackGuessResult(r.Context(), cb.RequestID, cb.Cleartext, cb.Proof); err != nil {
		writeGameError(w, "callback", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRequest reports unknown ids as unprocessed with no player.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	id := game.RequestID(chi.URLParam(r, "id"))
	req, _, err := s.deps.Machine.Request(r.Context(), id)
	if err != nil {
		writeGameError(w, "request", err)
		return
	}
	writeJSON(w, http.StatusOK, requestRes{RequestID: id, Player: req.Player, Processed: req.Processed})
}

func (s *Server) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.deps.Machine.PlayerRequests(r.Context(), currentUser(r).Username, queryInt(r, "limit", 50))
	if err != nil {
		writeGameError(w, "requests", err)
		return
	}
	if reqs == nil {
		reqs = []game.PendingRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since := int64(queryInt(r, "since", 0))
	evs, err := s.deps.Events.List(r.Context(), since, queryInt(r, "limit", events.DefaultLimit))
	if err != nil {
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	next := since
	if len(evs) > 0 {
		next = evs[len(evs)-1].Seq
	}
	writeJSON(w, http.StatusOK, eventsRes{Events: evs, Next: next})
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, k string, def int) int {
	v := r.URL.Query().Get(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

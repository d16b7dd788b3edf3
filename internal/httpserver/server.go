// internal/httpserver/server.go
//
// HTTP server wiring for the confidential guessing game.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/metrics", "/fhe/params",
//     "/fhe/pk".
//   - Auth endpoints: /auth/signup, /auth/login, /auth/logout, /auth/me.
//   - Game endpoints (require auth) in routes_game.go.
//   - Decryption callback, request and event endpoints in routes_requests.go.
//   - JWT + cookie handling and the game error to status mapping.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - The username is the caller identity handed to the game.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/chandiniv1/secret-number-game/internal/accounts"
	"github.com/chandiniv1/secret-number-game/internal/events"
	"github.com/chandiniv1/secret-number-game/internal/fhe"
	"github.com/chandiniv1/secret-number-game/internal/game"
	"github.com/chandiniv1/secret-number-game/internal/metrics"
	"github.com/chandiniv1/secret-number-game/internal/proof"
)

// Deps are the components the server routes to.
type Deps struct {
	Machine     *game.Machine
	Accounts    *accounts.Service
	Coprocessor *fhe.Coprocessor
	Attestor    *proof.InputAttestor
	Scheme      fhe.Scheme
	Events      events.Log
}

// Options carry the HTTP-level settings.
type Options struct {
	CookieName   string
	CookieSecure bool
	ClientOrigin string
}

// Server bundles router and dependencies.
type Server struct {
	r    *chi.Mux
	deps Deps
	opts Options
}

// New constructs a Server, installs middleware, and registers routes.
func New(deps Deps, opts Options) *Server {
	if opts.CookieName == "" {
		opts.CookieName = "fheguess_token"
	}
	s := &Server{r: chi.NewRouter(), deps: deps, opts: opts}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(cors(opts.ClientOrigin))         // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"service":"fhe-guess","endpoints":["/health","/game/status","POST /game/guess","POST /decryption/callback","/events","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.r.Handle("/metrics", promhttp.Handler())
	s.r.Get("/fhe/params", s.handleParams)
	s.r.Get("/fhe/pk", s.handlePublicKey)

	s.mountAuthRoutes()
	s.mountGame()
	s.mountRequests()

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})
	return s
}

// Handler exposes the router (used by serve and tests).
func (s *Server) Handler() http.Handler { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for a single origin.
func cors(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ------------------------------- AUTH --------------------------------------

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// authUser is placed into request context by requireAuth.
type authUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type ctxUserKey struct{}

func (s *Server) mountAuthRoutes() {
	s.r.Post("/auth/signup", s.handleSignup)
	s.r.Post("/auth/login", s.handleLogin)
	s.r.Post("/auth/logout", s.handleLogout)
	s.r.With(s.requireAuth).Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)
		writeJSON(w, http.StatusOK, map[string]any{
			"id":       me.ID,
			"username": me.Username,
			"admin":    me.Username == s.deps.Machine.Admin(),
		})
	})
}

// handleSignup creates a new user, signs a JWT and sets the auth cookie.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	u, err := s.deps.Accounts.Create(r.Context(), body.Username, body.Password)
	switch {
	case errors.Is(err, accounts.ErrUsernameTaken):
		http.Error(w, `{"error":"Username taken"}`, http.StatusConflict)
		return
	case errors.Is(err, accounts.ErrInvalidUsername), errors.Is(err, accounts.ErrInvalidPassword):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Msg("signup")
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	if !s.issueSession(w, u) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "username": u.Username, "createdAt": u.CreatedAt})
}

// handleLogin authenticates a user and sets the auth cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	u, err := s.deps.Accounts.Authenticate(r.Context(), body.Username, body.Password)
	if err != nil {
		if !errors.Is(err, accounts.ErrBadCredentials) {
			log.Error().Err(err).Msg("login")
		}
		http.Error(w, `{"error":"Invalid username or password"}`, http.StatusUnauthorized)
		return
	}
	if !s.issueSession(w, u) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "username": u.Username})
}

// handleLogout clears the auth cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.setAuthCookie(w, "", time.Time{}, -1)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) issueSession(w http.ResponseWriter, u *accounts.User) bool {
	tok, exp, err := s.deps.Accounts.Sign(u)
	if err != nil {
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return false
	}
	s.setAuthCookie(w, tok, exp, 0)
	w.Header().Set("X-Auth-Token", tok)
	return true
}

// setAuthCookie writes (or, with maxAge < 0, deletes) the auth token cookie.
func (s *Server) setAuthCookie(w http.ResponseWriter, token string, exp time.Time, maxAge int) {
	sameSite := http.SameSiteLaxMode
	if s.opts.CookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: sameSite,
		Expires:  exp,
		MaxAge:   maxAge,
	})
}

// bearerOrCookie extracts a bearer token from Authorization header or auth cookie.
func (s *Server) bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.opts.CookieName); err == nil {
		return c.Value
	}
	return ""
}

// requireAuth enforces a valid JWT for an existing user and injects authUser.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := s.bearerOrCookie(r)
		if tokenStr == "" {
			http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		claims, err := s.deps.Accounts.Parse(tokenStr)
		if err != nil {
			http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
			return
		}
		// Ensure user still exists
		if _, err := s.deps.Accounts.FindByID(r.Context(), claims.ID); err != nil {
			http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserKey{}, &authUser{ID: claims.ID, Username: claims.Username})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser is non-nil behind requireAuth.
func currentUser(r *http.Request) *authUser {
	me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
	return me
}

// ------------------------------- params ------------------------------------

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"scheme": s.deps.Scheme.Name()}
	if d, ok := s.deps.Scheme.(fhe.Describer); ok {
		out["params"] = d.Describe()
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePublicKey serves the encryption key of public-key schemes as raw
// bytes. Symmetric schemes have nothing to publish.
func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	pe, ok := s.deps.Scheme.(fhe.PublicKeyExporter)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no_public_key", "scheme": s.deps.Scheme.Name()})
		return
	}
	pk, err := pe.PublicKey()
	if err != nil {
		log.Error().Err(err).Msg("export public key")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pk)
}

// ------------------------------- errors ------------------------------------

// errorKinds maps the game taxonomy onto status codes and wire names.
var errorKinds = []struct {
	err    error
	status int
	kind   string
}{
	{game.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{game.ErrInvalidProof, http.StatusBadRequest, "invalid_proof"},
	{game.ErrGameNotActive, http.StatusConflict, "game_not_active"},
	{game.ErrAlreadyWon, http.StatusConflict, "already_won"},
	{game.ErrAlreadyProcessed, http.StatusConflict, "already_processed"},
	{game.ErrInvalidRequest, http.StatusNotFound, "invalid_request"},
	{game.ErrUnauthorizedDecryption, http.StatusUnauthorized, "unauthorized_decryption"},
	{game.ErrMalformedResult, http.StatusUnprocessableEntity, "malformed_result"},
}

// writeGameError writes err as {"error":"<kind>"} and counts the rejection.
func writeGameError(w http.ResponseWriter, op string, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			metrics.RejectionsTotal.WithLabelValues(op, k.kind).Inc()
			writeJSON(w, k.status, map[string]string{"error": k.kind})
			return
		}
	}
	metrics.RejectionsTotal.WithLabelValues(op, "internal").Inc()
	log.Error().Err(err).Str("op", op).Msg("game operation failed")
	http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
}

// writeJSON encodes v with status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

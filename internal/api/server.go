// Package api serves the studio over HTTP and WebSocket for the browser UI.
package api

import (
	"bufio"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"

	"github.com/user/composablestudio/internal/gateway"
	"github.com/user/composablestudio/internal/metrics"
	"github.com/user/composablestudio/internal/studio"
)

// Options configures a Server.
type Options struct {
	// AuthToken, when set, must be presented as a bearer token on /api and
	// /ws routes.
	AuthToken      string
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

// Server is the HTTP handler for the studio API.
type Server struct {
	svc      *studio.Service
	gateway  *gateway.Gateway
	opts     Options
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	handler  http.Handler
}

// NewServer creates a Server. Actions are dispatched through gw.
func NewServer(svc *studio.Service, gw *gateway.Gateway, opts Options) *Server {
	s := &Server{
		svc:     svc,
		gateway: gw,
		opts:    opts,
		mux:     http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	s.mux.HandleFunc("GET /api/compositions", s.handleListCompositions)
	s.mux.HandleFunc("POST /api/compositions", s.handleCreateComposition)
	s.mux.HandleFunc("GET /api/compositions/{id}", s.handleGetComposition)
	s.mux.HandleFunc("DELETE /api/compositions/{id}", s.handleDeleteComposition)
	s.mux.HandleFunc("POST /api/compositions/{id}/messages", s.handleSendMessage)
	s.mux.HandleFunc("POST /api/compositions/{id}/advance", s.handleAdvance)
	s.mux.HandleFunc("POST /api/compositions/{id}/reset", s.handleReset)
	s.mux.HandleFunc("POST /api/compositions/{id}/disambiguate", s.handleDisambiguate)
	s.mux.HandleFunc("POST /api/compositions/{id}/actions", s.handleInvokeAction)
	s.mux.HandleFunc("PUT /api/compositions/{id}/view", s.handleSetView)
	s.mux.HandleFunc("GET /api/compositions/{id}/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/compositions/{id}/transcript", s.handleTranscript)
	s.mux.HandleFunc("GET /api/compositions/{id}/components", s.handleListComponents)
	s.mux.HandleFunc("POST /api/compositions/{id}/components", s.handleAddComponent)
	s.mux.HandleFunc("PATCH /api/compositions/{id}/components/{cid}", s.handleUpdateComponent)
	s.mux.HandleFunc("DELETE /api/compositions/{id}/components/{cid}", s.handleRemoveComponent)
	s.mux.HandleFunc("POST /api/compositions/{id}/attachments", s.handleUploadAttachment)
	s.mux.HandleFunc("GET /api/attachments/{aid}", s.handleGetAttachment)
	s.mux.HandleFunc("GET /api/attachments/{aid}/raw", s.handleGetAttachmentRaw)
	s.mux.HandleFunc("PUT /api/attachments/{aid}/analysis", s.handleAnalyzeAttachment)

	s.mux.HandleFunc("GET /api/content/models", s.handleListModels)
	s.mux.HandleFunc("POST /api/content/models", s.handleCreateModel)
	s.mux.HandleFunc("GET /api/content/models/{mid}", s.handleGetModel)
	s.mux.HandleFunc("DELETE /api/content/models/{mid}", s.handleDeleteModel)
	s.mux.HandleFunc("POST /api/content/models/{mid}/fields", s.handleAddField)
	s.mux.HandleFunc("GET /api/content/models/{mid}/entries", s.handleListEntries)
	s.mux.HandleFunc("POST /api/content/models/{mid}/entries", s.handleCreateEntry)
	s.mux.HandleFunc("GET /api/content/entries/{eid}", s.handleGetEntry)
	s.mux.HandleFunc("PUT /api/content/entries/{eid}", s.handleUpdateEntry)

	s.mux.HandleFunc("GET /ws/compositions/{id}", s.handleStream)

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	})
	s.handler = c.Handler(s.countRequests(s.requireToken(s.mux)))
	return s
}

// ServeHTTP delegates to the middleware chain, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, "*") || slices.Contains(s.opts.AllowedOrigins, origin)
}

// requireToken guards the /api and /ws routes with the configured bearer
// token. Browsers cannot set headers on a WebSocket handshake, so /ws also
// accepts the token as a query parameter.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AuthToken == "" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/api/") && !strings.HasPrefix(r.URL.Path, "/ws/") {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" && strings.HasPrefix(r.URL.Path, "/ws/") {
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AuthToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Kind: "auth"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	if s.opts.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.opts.Metrics.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

// statusRecorder captures the response code. It passes hijacking through so
// WebSocket upgrades keep working behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// maxJSONBytes caps JSON request bodies.
const maxJSONBytes = 1 << 20

// decode reads a JSON request body of at most maxJSONBytes into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &badRequest{
				reason: "request body exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes",
				status: http.StatusRequestEntityTooLarge,
			}
		}
		return &badRequest{reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aridsondez/queue-engine/internal/logging"
	"github.com/aridsondez/queue-engine/internal/queue"
	"github.com/aridsondez/queue-engine/internal/queue/store"
)

type Server struct {
	store   store.Store
	addr    string
	timeout time.Duration
	log     logging.Logger
}

func NewServer(addr string, s store.Store, log logging.Logger) *http.Server {
	if log == nil {
		log = logging.Nop{}
	}
	srv := &Server{
		store:   s,
		addr:    addr,
		timeout: 5 * time.Second,
		log:     log,
	}
	return &http.Server{
		Addr:    srv.addr,
		Handler: srv.Routes(),
	}
}

// Routes builds the router; exposed so tests can mount it on httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// push: POST /v1/queues/{queue}/messages
		r.Post("/queues/{queue}/messages", s.handlePush)

		// pull: POST /v1/queues/{queue}:receive
		r.Post("/queues/{queue}:receive", s.handlePull)

		// delete: POST /v1/queues/{queue}/messages/{receipt}:ack
		r.Post("/queues/{queue}/messages/{receipt}:ack", s.handleDelete)

		// purge: POST /v1/queues/{queue}:purge
		r.Post("/queues/{queue}:purge", s.handlePurge)
	})

	return r
}

// NewHandler is Routes on a Server built from s.
func NewHandler(s store.Store, log logging.Logger) http.Handler {
	return NewServer("", s, log).Handler
}

type pushRequest struct {
	Body     string `json:"body"`
	Priority int    `json:"priority,omitempty"`
}

type receivedMessage struct {
	Body    string `json:"body"`
	Receipt string `json:"receipt"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// ---------- Handlers ----------

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	qname, ok := pathParam(w, r, "queue")
	if !ok {
		return
	}
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}

	if err := s.store.Push(r.Context(), qname, req.Body, req.Priority); err != nil {
		writeStoreError(w, "push", err)
		return
	}
	writeJSON(w, http.StatusCreated, &okResponse{OK: true})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	qname, ok := pathParam(w, r, "queue")
	if !ok {
		return
	}
	msg, err := s.store.Pull(r.Context(), qname)
	if err != nil {
		writeStoreError(w, "pull", err)
		return
	}
	if msg == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, &receivedMessage{Body: msg.Body, Receipt: msg.ReceiptID})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	qname, ok := pathParam(w, r, "queue")
	if !ok {
		return
	}
	receipt, ok := pathParam(w, r, "receipt")
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), qname, receipt); err != nil {
		writeStoreError(w, "delete", err)
		return
	}
	writeJSON(w, http.StatusOK, &okResponse{OK: true})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	qname, ok := pathParam(w, r, "queue")
	if !ok {
		return
	}
	if err := s.store.Purge(r.Context(), qname); err != nil {
		writeStoreError(w, "purge", err)
		return
	}
	writeJSON(w, http.StatusOK, &okResponse{OK: true})
}

// ---------- helpers ----------

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F("status", ww.Status()),
			logging.F("duration", time.Since(start)),
			logging.F("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// pathParam returns the decoded URL parameter. chi matches on RawPath when
// the request has one, so parameters arrive still escaped in that case.
func pathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, true
	}
	decoded, err := url.PathUnescape(v)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid %s: %v", key, err)
		return "", false
	}
	return decoded, true
}

func writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, queue.ErrEmptyQueue),
		errors.Is(err, queue.ErrInvalidQueueName),
		errors.Is(err, queue.ErrEmptyBody),
		errors.Is(err, queue.ErrInvalidBody),
		errors.Is(err, queue.ErrEmptyReceipt):
		httpError(w, http.StatusBadRequest, "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "%s failed: %v", op, err)
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hashsync/internal/api"
	"hashsync/internal/logging"
	"hashsync/internal/services"
)

const (
	headerRequestID = "X-Request-ID"
	headerActor     = "X-Hashsync-Actor"

	// maxBodyBytes bounds JSON request bodies, CSV uploads included.
	maxBodyBytes = 16 << 20
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind, token string, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(token),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/status", s.handleStatus)
	protected.HandleFunc("GET /api/kennels", s.handleKennels)
	protected.HandleFunc("GET /api/sources", s.handleSources)
	protected.HandleFunc("POST /api/scrape", s.handleScrape)
	protected.HandleFunc("POST /api/resolve", s.handleResolve)
	protected.HandleFunc("POST /api/cache/clear", s.handleCacheClear)
	protected.HandleFunc("GET /api/alerts", s.handleAlerts)
	protected.HandleFunc("GET /api/alerts/{id}", s.handleAlert)
	protected.HandleFunc("POST /api/alerts/{id}/ack", s.handleAcknowledge)
	protected.HandleFunc("POST /api/alerts/{id}/snooze", s.handleSnooze)
	protected.HandleFunc("POST /api/alerts/{id}/resolve", s.handleResolveAlert)
	protected.HandleFunc("POST /api/sources/{id}/alerts/resolve", s.handleResolveSource)
	protected.HandleFunc("POST /api/alerts/{id}/repairs/rescrape", s.handleRepairRescrape)
	protected.HandleFunc("POST /api/alerts/{id}/repairs/alias", s.handleRepairAlias)
	protected.HandleFunc("POST /api/alerts/{id}/repairs/kennel", s.handleRepairKennel)
	protected.HandleFunc("POST /api/alerts/{id}/repairs/link", s.handleRepairLink)
	protected.HandleFunc("POST /api/alerts/{id}/repairs/issue", s.handleRepairIssue)
	protected.HandleFunc("POST /api/merge", s.handleMerge)
	protected.HandleFunc("POST /api/import", s.handleImport)
	protected.HandleFunc("POST /api/notifications/test", s.handleTestNotification)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", s.daemon.app.Metrics.Handler())
	mux.Handle("/api/", authMiddleware(token, protected))
	return s.requestContext(mux)
}

// requestContext stamps the request id and actor onto the request context.
func (s *apiServer) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(headerRequestID))
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(headerRequestID, rid)
		ctx := services.WithRequestID(r.Context(), rid)
		if actor := strings.TrimSpace(r.Header.Get(headerActor)); actor != "" {
			ctx = services.WithActor(ctx, actor)
		}
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// statusFor maps an error marker to an HTTP status code.
func statusFor(err error) int {
	switch services.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "unauthorized":
		return http.StatusUnauthorized
	case "external":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	writeError(w, status, services.Message(err), services.Kind(err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, kind string) {
	writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return services.Wrap(services.ErrValidation, "api", "decode", "invalid request body", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "path", fmt.Sprintf("invalid id %q", r.PathValue("id")), nil)
	}
	return id, nil
}

// Package api serves the prediction, page scan and history endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"trinayana/packages/domain"
	"trinayana/packages/service"
	"trinayana/packages/worker"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	maxBodyBytes        = 1 << 20
)

type Predictor interface {
	PredictURL(ctx context.Context, rawURL string) (domain.Verdict, error)
}

type PageScanner interface {
	ScanPage(ctx context.Context, pageURL string) (domain.PageScan, error)
}

type HistoryStore interface {
	Recent(ctx context.Context, limit int) ([]domain.ScanRecord, error)
	Clear(ctx context.Context) (int64, error)
}

// Server holds the handler dependencies. Scanner and History may be nil;
// their routes then answer 503.
type Server struct {
	Predictor Predictor
	Scanner   PageScanner
	History   HistoryStore
	Limiter   *ClientLimiter
}

// Handler returns the routed handler with CORS, rate limiting and request
// logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("POST /predict/url", s.handlePredictURL)
	mux.HandleFunc("POST /predict/page", s.handlePredictPage)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("DELETE /history", s.handleClearHistory)

	return withRequestLog(withCORS(withRateLimit(s.Limiter, mux)))
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Phishing Detection API is Live!"})
}

func (s *Server) handlePredictURL(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	verdict, err := s.Predictor.PredictURL(r.Context(), req.URL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, verdict)
	case errors.Is(err, service.ErrMissingURL):
		writeError(w, http.StatusBadRequest, "No URL provided")
	case errors.Is(err, service.ErrClassifierUnavailable):
		writeError(w, http.StatusInternalServerError, "Model not loaded")
	default:
		slog.Error("Prediction failed", "url", req.URL, "error", err)
		writeError(w, http.StatusInternalServerError, "Prediction failed: "+err.Error())
	}
}

func (s *Server) handlePredictPage(w http.ResponseWriter, r *http.Request) {
	if s.Scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "Page scanning disabled")
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	scan, err := s.Scanner.ScanPage(r.Context(), req.URL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, scan)
	case errors.Is(err, worker.ErrNotHTML):
		writeError(w, http.StatusUnprocessableEntity, "Page is not HTML")
	default:
		slog.Warn("Page scan failed", "url", req.URL, "error", err)
		writeError(w, http.StatusBadGateway, "Page scan failed: "+err.Error())
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusServiceUnavailable, "History disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.History.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to read history", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}
	if records == nil {
		records = []domain.ScanRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusServiceUnavailable, "History disabled")
		return
	}
	deleted, err := s.History.Clear(r.Context())
	if err != nil {
		slog.Error("Failed to clear history", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear history")
		return
	}
	slog.Info("Cleared scan history", "deleted", deleted)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// decodeRequest returns the request with its URL trimmed. It writes the 400
// itself when the body carries no usable URL.
func decodeRequest(w http.ResponseWriter, r *http.Request) (domain.PredictionRequest, bool) {
	var req domain.PredictionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No URL provided")
		return req, false
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "No URL provided")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

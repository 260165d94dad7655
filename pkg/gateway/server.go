// Package gateway exposes the live-session pipeline over HTTP: media
// ingestion, narrative queries and a websocket stream of narrative updates.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/auralens/auralens/internal/config"
	"github.com/auralens/auralens/internal/observability"
	"github.com/auralens/auralens/pkg/analysis"
	"github.com/auralens/auralens/pkg/dataset"
	"github.com/auralens/auralens/pkg/media"
	"github.com/auralens/auralens/pkg/session"
)

// multipartMemoryLimit caps how much of an upload stays in memory before
// spilling to temp files.
const multipartMemoryLimit = 32 << 20

// Config holds gateway configuration
type Config struct {
	Host         string
	Port         int
	Models       config.ModelsConfig
	Orchestrator *session.Orchestrator
	Analysis     *analysis.Service
	Broadcaster  *Broadcaster
	Dataset      *dataset.Recorder // optional
	Logger       zerolog.Logger
}

// Server is the HTTP gateway
type Server struct {
	host         string
	port         int
	models       config.ModelsConfig
	orchestrator *session.Orchestrator
	analysis     *analysis.Service
	broadcaster  *Broadcaster
	dataset      *dataset.Recorder
	upgrader     websocket.Upgrader
	server       *http.Server
	logger       zerolog.Logger
	startTime    time.Time
}

// NewServer creates the gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("gateway: orchestrator is required")
	}
	if cfg.Analysis == nil {
		return nil, errors.New("gateway: analysis service is required")
	}
	if cfg.Broadcaster == nil {
		return nil, errors.New("gateway: broadcaster is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("gateway: invalid port: %d", cfg.Port)
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}

	return &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		models:       cfg.Models,
		orchestrator: cfg.Orchestrator,
		analysis:     cfg.Analysis,
		broadcaster:  cfg.Broadcaster,
		dataset:      cfg.Dataset,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:    cfg.Logger.With().Str("module", "gateway").Logger(),
		startTime: time.Now(),
	}, nil
}

// routes builds the request handler
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /session/start", s.handleStart)
	mux.HandleFunc("POST /session/process-frame", s.handleUpload(media.KindFrame))
	mux.HandleFunc("POST /session/process-clip", s.handleUpload(media.KindClip))
	mux.HandleFunc("POST /session/query", s.handleQuery)
	mux.HandleFunc("GET /session/{id}/narrative", s.handleNarrative)
	mux.HandleFunc("GET /session/{id}/stream", s.handleStream)
	mux.HandleFunc("POST /vqa", s.handleVQA)
	mux.HandleFunc("POST /ocr", s.handleOCR)
	mux.HandleFunc("POST /video-analysis", s.handleChangeDetection)
	mux.HandleFunc("GET /config/models", s.handleModels)
	mux.HandleFunc("GET /dataset/status", s.handleDatasetStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.MetricsHandler())

	return s.withRequestID(mux)
}

// withRequestID tags every request with a short id for log correlation
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, err := gonanoid.New()
		if err != nil {
			reqID = "unknown"
		}
		w.Header().Set("X-Request-ID", reqID)

		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// Start runs the gateway until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.routes(),
	}

	s.logger.Info().
		Str("host", s.host).
		Int("port", s.port).
		Msg("Starting gateway")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// Stop gracefully shuts the gateway down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info().Msg("Shutting down gateway")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := s.orchestrator.CreateSession()
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// handleUpload accepts a multipart frame or clip and hands it to the
// pipeline. A valid submission is acknowledged before analysis runs.
func (s *Server) handleUpload(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadSize)

		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}

		sessionID := r.FormValue("session_id")
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, "session_id is required")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload")
			return
		}

		contentType := header.Header.Get("Content-Type")

		var m media.File
		if kind == media.KindClip {
			m, err = media.NewClip(header.Filename, contentType, content)
		} else {
			m, err = media.NewFrame(header.Filename, contentType, content)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		err = s.orchestrator.SubmitMedia(r.Context(), sessionID, m, s.models.SceneExtractor, s.models.NarrativeAggregator)
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to submit media")
			writeError(w, http.StatusInternalServerError, "failed to submit media")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":     "accepted",
			"session_id": sessionID,
		})
	}
}

type queryRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Model     string `json:"model,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	model := req.Model
	if model == "" {
		model = s.models.ContextualQA
	}

	answer, err := s.orchestrator.Query(r.Context(), session.QueryRequest{
		SessionID: req.SessionID,
		Question:  req.Question,
		Model:     model,
		Mode:      req.Mode,
	})
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("Query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": req.SessionID,
		"answer":     answer,
	})
}

func (s *Server) handleNarrative(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	narrative, err := s.orchestrator.Narrative(id)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read narrative")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"narrative":  narrative,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := s.orchestrator.Narrative(id); errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s.broadcaster.Attach(id, conn)
}

// readFrame pulls the "image" part out of a multipart one-shot request.
// Writes the error response itself when the upload is unusable.
func (s *Server) readFrame(w http.ResponseWriter, r *http.Request) (media.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadSize)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return media.File{}, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image is required")
		return media.File{}, false
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return media.File{}, false
	}

	m, err := media.NewFrame(header.Filename, header.Header.Get("Content-Type"), content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return media.File{}, false
	}
	return m, true
}

func (s *Server) handleVQA(w http.ResponseWriter, r *http.Request) {
	m, ok := s.readFrame(w, r)
	if !ok {
		return
	}

	question := r.FormValue("question")
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := s.analysis.AnswerQuestion(r.Context(), m, question, s.models.VisualQA)
	if err != nil {
		s.logger.Error().Err(err).Msg("Visual QA failed")
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"answer":          result.Answer,
		"processing_time": roundSeconds(result.Elapsed),
		"analyzed_path":   result.AnalyzedPath,
	})
}

func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	m, ok := s.readFrame(w, r)
	if !ok {
		return
	}

	result, err := s.analysis.ExtractText(r.Context(), m, s.models.TextExtraction)
	if err != nil {
		s.logger.Error().Err(err).Msg("Text extraction failed")
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"text":            result.Text,
		"processing_time": roundSeconds(result.Elapsed),
		"analyzed_path":   result.AnalyzedPath,
	})
}

func (s *Server) handleChangeDetection(w http.ResponseWriter, r *http.Request) {
	m, ok := s.readFrame(w, r)
	if !ok {
		return
	}

	previous := r.FormValue("previous_scene_description")

	result, err := s.analysis.DetectChange(r.Context(), m, previous, s.models.ChangeDetection)
	if err != nil {
		s.logger.Error().Err(err).Msg("Change detection failed")
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"description_of_change": result.Description,
		"has_changed":           result.Changed,
		"processing_time":       roundSeconds(result.Elapsed),
		"analyzed_path":         result.AnalyzedPath,
	})
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.models)
}

func (s *Server) handleDatasetStatus(w http.ResponseWriter, r *http.Request) {
	if s.dataset == nil {
		writeError(w, http.StatusNotFound, "dataset recorder is disabled")
		return
	}

	stats, err := s.dataset.Status(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read dataset status")
		writeError(w, http.StatusInternalServerError, "failed to read dataset status")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xhad/printdesk/internal/models"
	"github.com/xhad/printdesk/pkg/rag"
)

const maxRequestBody = 64 << 10

// querier is the part of the pipeline the HTTP layer needs.
type querier interface {
	Query(ctx context.Context, req rag.Request) (*models.Response, error)
	CorpusSize() int
	VectorSearch() bool
}

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type QueryRequest struct {
	Question         string `json:"question"`
	TopK             int    `json:"top_k"`
	DialogContext    string `json:"dialog_context"`
	EnableValidation *bool  `json:"enable_validation"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	CorpusSize   int    `json:"corpus_size"`
	VectorSearch bool   `json:"vector_search"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	pipeline querier
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	validate bool
	upgrader websocket.Upgrader
}

func NewServer(pipeline querier, gatherer prometheus.Gatherer, logger *zap.Logger, validate bool, allowedOrigins []string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		pipeline: pipeline,
		gatherer: gatherer,
		logger:   logger,
		validate: validate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// checkOrigin allows any origin when none are configured.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if strings.EqualFold(origin, a) {
				return true
			}
		}
		return false
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "printdesk",
		"status":    "running",
		"endpoints": []string{"GET /health", "POST /query", "GET /ws", "GET /metrics"},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		CorpusSize:   s.pipeline.CorpusSize(),
		VectorSearch: s.pipeline.VectorSearch(),
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}
	if req.TopK < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "top_k must be positive"})
		return
	}

	resp, err := s.pipeline.Query(r.Context(), s.toRequest(req))
	if err != nil {
		s.logger.Info("query not completed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "query was cancelled"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) toRequest(req QueryRequest) rag.Request {
	validate := s.validate
	if req.EnableValidation != nil {
		validate = *req.EnableValidation
	}
	return rag.Request{
		Question:         req.Question,
		TopK:             req.TopK,
		DialogContext:    req.DialogContext,
		EnableValidation: validate,
	}
}

// handleWebSocket answers "query" messages one at a time, keeping the last
// exchange as dialog context for the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBody)

	var dialog string
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				var syntaxErr *json.SyntaxError
				if errors.As(err, &syntaxErr) {
					s.sendMessage(conn, "error", "invalid message", nil)
					continue
				}
				s.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}

		question := strings.TrimSpace(msg.Content)
		if msg.Type != "query" || question == "" {
			s.sendMessage(conn, "error", "expected a query message with content", nil)
			continue
		}

		resp, err := s.pipeline.Query(r.Context(), s.toRequest(QueryRequest{
			Question:      question,
			DialogContext: dialog,
		}))
		if err != nil {
			s.sendMessage(conn, "error", "query was cancelled", nil)
			return
		}
		dialog = "Пользователь: " + question + "\nАссистент: " + resp.Answer

		s.sendMessage(conn, "response", resp.Answer, map[string]interface{}{
			"category": resp.Category,
			"sources":  resp.Sources,
		})
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType, content string, data interface{}) {
	msg := Message{
		Type:    msgType,
		Content: content,
		Data:    data,
	}
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("failed to send websocket message", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

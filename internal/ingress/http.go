// Package ingress exposes the HTTP surface that notification channels call
// back into: a JSON decision endpoint for webhook integrations and a Slack
// interactions endpoint for button presses. Both converge on the engine's
// single decision path.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/hanko/internal/contract"
	"github.com/harunnryd/hanko/internal/engine"
	hankoErrors "github.com/harunnryd/hanko/internal/errors"
	"github.com/harunnryd/hanko/internal/idempotency"
	"github.com/harunnryd/hanko/internal/logger"
)

// DeliveryIDHeader carries the caller-assigned delivery ID used for
// at-least-once dedupe on the decision endpoint.
const DeliveryIDHeader = "X-Delivery-ID"

type Server struct {
	engine        *engine.Engine
	deliveries    *idempotency.Store
	dedupTTL      time.Duration
	signingSecret string
	server        *http.Server
}

type ServerConfig struct {
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	SigningSecret string
	DedupTTL      time.Duration
}

func NewServer(cfg ServerConfig, eng *engine.Engine, deliveries *idempotency.Store) *Server {
	mux := http.NewServeMux()
	s := &Server{
		engine:        eng,
		deliveries:    deliveries,
		dedupTTL:      cfg.DedupTTL,
		signingSecret: cfg.SigningSecret,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}

	mux.HandleFunc("POST /api/v1/approvals/{id}/decision", s.handleDecision)
	mux.HandleFunc("GET /api/v1/approvals/{id}", s.handleGet)
	mux.HandleFunc("POST /slack/interactions", s.handleSlackInteraction)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return s
}

// Handler is exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("Starting approval callback server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	}()
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type decisionRequest struct {
	Decision   string `json:"decision"`
	ApprovedBy string `json:"approved_by"`
	Comment    string `json:"comment"`
}

type decisionResponse struct {
	Status          string            `json:"status"`
	ApprovalID      string            `json:"approval_id"`
	Decision        contract.Decision `json:"decision,omitempty"`
	AgentValidation string            `json:"agent_validation,omitempty"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	approvalID := r.PathValue("id")

	// At-least-once delivery: a replayed delivery ID is acknowledged
	// without touching the engine. The key is marked only once the engine
	// accepted the decision, so a redelivery after a transient failure is
	// processed rather than dropped.
	deliveryKey := ""
	if deliveryID := strings.TrimSpace(r.Header.Get(DeliveryIDHeader)); deliveryID != "" && s.deliveries != nil {
		deliveryKey = "decision:" + deliveryID
		if s.deliveries.Seen(deliveryKey) {
			slog.Info("Duplicate delivery dropped", "approval_id", approvalID, "delivery_id", deliveryID)
			writeJSON(w, http.StatusOK, decisionResponse{Status: "duplicate", ApprovalID: approvalID})
			return
		}
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Decision == "" || req.ApprovedBy == "" {
		http.Error(w, "Missing required fields: decision, approved_by", http.StatusBadRequest)
		return
	}

	ctx := logger.WithApprovalID(r.Context(), approvalID)
	if deliveryID := r.Header.Get(DeliveryIDHeader); deliveryID != "" {
		ctx = logger.WithTraceID(ctx, deliveryID)
	}
	s.resolve(w, r.WithContext(ctx), approvalID, contract.Decision(req.Decision), req.ApprovedBy, req.Comment, deliveryKey)
}

// resolve funnels every decision surface through the engine and maps its
// error taxonomy onto HTTP statuses. The delivery key is marked only on a
// terminal outcome; a failed delivery stays eligible for redelivery.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request, approvalID string, decision contract.Decision, approvedBy, comment, deliveryKey string) {
	c, err := s.engine.ProcessResponse(r.Context(), approvalID, decision, approvedBy, comment)
	if err != nil {
		switch {
		case errors.Is(err, hankoErrors.ErrNotFound):
			http.Error(w, "Approval not found", http.StatusNotFound)
		case errors.Is(err, hankoErrors.ErrAlreadyResolved):
			// Idempotent: the standing terminal state is reported, not an error.
			s.markDelivered(deliveryKey)
			writeJSON(w, http.StatusOK, decisionResponse{
				Status:          "already_resolved",
				ApprovalID:      approvalID,
				Decision:        c.Decision,
				AgentValidation: string(c.AgentValidation),
			})
		case errors.Is(err, hankoErrors.ErrInvalidDecision):
			http.Error(w, fmt.Sprintf("Invalid decision %q", decision), http.StatusBadRequest)
		default:
			slog.Error("Failed to process decision", "approval_id", approvalID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	s.markDelivered(deliveryKey)
	writeJSON(w, http.StatusOK, decisionResponse{
		Status:          "resolved",
		ApprovalID:      approvalID,
		Decision:        c.Decision,
		AgentValidation: string(c.AgentValidation),
	})
}

func (s *Server) markDelivered(key string) {
	if key == "" || s.deliveries == nil {
		return
	}
	s.deliveries.Mark(key, s.dedupTTL)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, hankoErrors.ErrNotFound) {
			http.Error(w, "Approval not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load approval", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

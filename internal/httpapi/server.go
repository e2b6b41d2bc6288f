// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

// Package httpapi exposes the authorization decision endpoint over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/hearthgate/hearthgate/internal/authz"
)

// ContextSource builds the authorization context for a principal. Implemented
// by store.ContextLoader in production.
type ContextSource interface {
	Load(ctx context.Context, principal *authz.Principal, lastPasswordChange time.Time) (*authz.Context, error)
}

// CheckRequest is the decision endpoint's request body. An empty entity_id
// evaluates the request against the anonymous context; an empty place_id
// means no place is bound to the session.
type CheckRequest struct {
	EntityID string       `json:"entity_id,omitempty"`
	Username string       `json:"username,omitempty"`
	PlaceID  string       `json:"place_id,omitempty"`
	Message  CheckMessage `json:"message"`
}

// CheckMessage is the wire form of the message under evaluation.
type CheckMessage struct {
	Type        string         `json:"type"`
	PlaceID     string         `json:"place_id,omitempty"`
	Destination string         `json:"destination,omitempty"`
	Actor       string         `json:"actor,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// CheckResponse is the decision endpoint's response body.
type CheckResponse struct {
	Allowed bool   `json:"allowed"`
	Subject string `json:"subject"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves POST /v1/check decisions. Decisions themselves never fail
// the request; only malformed input and context-loading failures produce
// non-200 responses.
type Server struct {
	addr       string
	authorizer authz.Authorizer
	contexts   ContextSource
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a decision API server. contexts may be nil, in which
// case every request is evaluated against the anonymous context.
func NewServer(addr string, authorizer authz.Authorizer, contexts ContextSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:       addr,
		authorizer: authorizer,
		contexts:   contexts,
		logger:     logger,
	}
}

// Start begins serving the decision endpoint. It returns an error channel
// that receives any error from the HTTP server after startup; the channel
// is closed on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("decision server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/check", s.handleCheck)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("decision server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("decision server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the decision server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_decision_server").Wrap(err)
		}
	}
	s.logger.Info("decision server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not
// running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.Message.Type == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message.type is required"})
		return
	}

	actx, status, err := s.resolveContext(r.Context(), &req)
	if err != nil {
		s.logger.Error("context resolution failed", "error", err, "entityID", req.EntityID)
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	placeID := uuid.Nil
	if req.PlaceID != "" {
		placeID, err = uuid.Parse(req.PlaceID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed place_id"})
			return
		}
	}

	msg, err := buildMessage(req.Message)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	allowed, err := s.authorizer.Authorize(r.Context(), actx, placeID, msg)
	if err != nil {
		// Strategy errors are malformed-request errors, not denials.
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, CheckResponse{Allowed: allowed, Subject: actx.SubjectString()})
}

// resolveContext loads the principal's context, or returns the anonymous
// context when no entity is named.
func (s *Server) resolveContext(ctx context.Context, req *CheckRequest) (*authz.Context, int, error) {
	if req.EntityID == "" {
		return authz.EmptyContext, 0, nil
	}
	entityID, err := uuid.Parse(req.EntityID)
	if err != nil {
		return nil, http.StatusBadRequest, oops.Wrapf(err, "malformed entity_id")
	}
	if s.contexts == nil {
		return authz.EmptyContext, 0, nil
	}
	principal := &authz.Principal{ID: entityID, Username: req.Username}
	actx, err := s.contexts.Load(ctx, principal, time.Time{})
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return actx, 0, nil
}

func buildMessage(cm CheckMessage) (*authz.Message, error) {
	msg := &authz.Message{
		Type:       cm.Type,
		PlaceID:    cm.PlaceID,
		Attributes: cm.Attributes,
	}
	if cm.Destination != "" {
		addr, err := authz.ParseAddress(cm.Destination)
		if err != nil {
			return nil, err
		}
		msg.Destination = addr
	}
	if cm.Actor != "" {
		addr, err := authz.ParseAddress(cm.Actor)
		if err != nil {
			return nil, err
		}
		msg.Actor = addr
	}
	return msg, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write error is acceptable, client may disconnect
	json.NewEncoder(w).Encode(body)
}

// Package api exposes the flow engine to telephony and speech collaborators
// over HTTP and websocket.
//
// The surface is deliberately thin: it decodes a request, advances or resets
// the call, records the turn to the audit log once the call's lock has been
// released, and encodes the response. All conversation behaviour lives in
// package flow.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrWong99/callscript/internal/audit"
	"github.com/MrWong99/callscript/internal/flow"
	"github.com/MrWong99/callscript/internal/guardrail"
	"github.com/MrWong99/callscript/internal/observe"
	"github.com/MrWong99/callscript/internal/payment"
	"github.com/MrWong99/callscript/internal/session"
)

// maxBodyBytes bounds request bodies. Utterances and envelopes are small.
const maxBodyBytes = 64 << 10

// Server serves the call API.
type Server struct {
	engine   *flow.Engine
	audit    audit.Recorder
	payments payment.Gateway
	metrics  *observe.Metrics
	now      func() time.Time
}

// Option is a functional option for [New].
type Option func(*Server)

// WithAudit records every advance to rec.
func WithAudit(rec audit.Recorder) Option {
	return func(s *Server) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// WithPaymentGateway hands accepted payment envelopes to gw.
func WithPaymentGateway(gw payment.Gateway) Option {
	return func(s *Server) {
		if gw != nil {
			s.payments = gw
		}
	}
}

// WithMetrics records payment validations and stream connections to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock replaces time.Now for card expiry checks and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a [Server] over engine. Without options, turns are not
// recorded and payment hand-offs are logged.
func New(engine *flow.Engine, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		audit:    audit.Nop{},
		payments: payment.NewLogGateway(nil),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the call routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/calls/{id}/advance", s.handleAdvance)
	mux.HandleFunc("GET /v1/calls/{id}", s.handleSnapshot)
	mux.HandleFunc("DELETE /v1/calls/{id}", s.handleReset)
	mux.HandleFunc("POST /v1/calls/{id}/payment", s.handlePayment)
	mux.HandleFunc("GET /v1/calls/{id}/stream", s.handleStream)
}

// advanceRequest is the body of POST /v1/calls/{id}/advance.
type advanceRequest struct {
	Utterance string `json:"utterance"`
}

// errorBody is the JSON body of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req advanceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.advance(r.Context(), id, req.Utterance)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// advance runs one turn and records it. The engine releases the call's lock
// before returning, so the audit write never holds up the call.
func (s *Server) advance(ctx context.Context, id, utterance string) (flow.Response, error) {
	resp, err := s.engine.Advance(ctx, id, utterance)
	if err != nil {
		return flow.Response{}, err
	}

	interventions := make([]string, len(resp.Interventions))
	for i, in := range resp.Interventions {
		interventions[i] = string(in)
	}
	if err := s.audit.Record(ctx, audit.Turn{
		CallID:        id,
		NodeID:        resp.NodeID,
		Intent:        string(resp.Intent),
		Utterance:     utterance,
		Reply:         resp.Text,
		Terminal:      resp.Terminal,
		Interventions: interventions,
		At:            s.now(),
	}); err != nil {
		observe.CallLogger(ctx, id).Warn("audit write failed", "err", err)
	}
	return resp, nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	cs, err := s.engine.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// paymentRequest is the body of POST /v1/calls/{id}/payment. Expiry may be
// sent as one "MM/YY" string instead of separate fields.
type paymentRequest struct {
	guardrail.Envelope
	Expiry string `json:"expiry,omitempty"`
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	if _, err := s.engine.Snapshot(ctx, id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	var req paymentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	env := req.Envelope
	if req.Expiry != "" {
		env.SetExpiry(req.Expiry)
	}

	res := guardrail.Validate(env, s.now())
	if s.metrics != nil {
		result := "ok"
		if !res.OK {
			result = string(res.Reason)
		}
		s.metrics.RecordPaymentValidation(ctx, string(env.Mode), result)
	}
	if !res.OK {
		observe.CallLogger(ctx, id).Info("payment envelope rejected", "mode", env.Mode, "reason", res.Reason)
		writeJSON(w, http.StatusOK, res)
		return
	}

	if err := s.payments.Submit(ctx, payment.Handoff{CallID: id, Brand: res.Brand, Envelope: env}); err != nil {
		observe.CallLogger(ctx, id).Error("payment hand-off failed", "err", err)
		writeError(w, http.StatusBadGateway, errors.New("payment hand-off failed"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusFor maps engine and store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, flow.ErrCallEnded):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode"}`, http.StatusInternalServerError)
	}
}

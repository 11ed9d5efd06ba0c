// Package flow holds the conversation graph and the traversal engine that
// walks a call through it.
//
// A [Graph] is built once from an authored [Document] and validated
// exhaustively at load time: every reachable non-terminal node resolves to an
// existing node for every intent, so traversal can never dead-end. The
// [Engine] advances one call per utterance under that call's lock and
// consults the guardrail rules before a transition and on every outbound
// line. Advance does no I/O beyond the session store.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrWong99/callscript/internal/guardrail"
	"github.com/MrWong99/callscript/internal/intent"
	"github.com/MrWong99/callscript/internal/observe"
	"github.com/MrWong99/callscript/internal/session"
	"github.com/MrWong99/callscript/internal/speech"
)

// ErrCallEnded is returned by [Engine.Advance] once the call has reached a
// terminal node. Reset the session to reuse its id.
var ErrCallEnded = errors.New("flow: call has ended")

// DefaultMaxSilenceReasks is how many consecutive silent turns re-emit the
// current line before silence resolves like any other intent.
const DefaultMaxSilenceReasks = 2

// maxGuardPasses bounds the re-checks after a guardrail redirects a
// transition. Validated graphs settle in at most four.
const maxGuardPasses = 8

// Response is the result of one advance.
type Response struct {
	SessionID     string                   `json:"session_id"`
	NodeID        string                   `json:"node_id"`
	Intent        intent.Intent            `json:"intent,omitempty"`
	Text          string                   `json:"text"`
	Markup        string                   `json:"markup"`
	Tone          speech.Tone              `json:"tone"`
	PauseMs       int                      `json:"pause_ms"`
	Terminal      bool                     `json:"terminal"`
	Interventions []guardrail.Intervention `json:"interventions,omitempty"`
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithClock replaces time.Now for the value-window gate.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithClassifier replaces the default keyword classifier.
func WithClassifier(c *intent.Classifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.classifier.Store(c)
		}
	}
}

// WithMetrics records advances and interventions to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithMaxSilenceReasks sets how many silent turns in a row re-emit the
// current line. Zero disables re-asking.
func WithMaxSilenceReasks(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxSilenceReasks = n
		}
	}
}

// Engine is the flow traversal engine. It is safe for concurrent use; calls
// with different session ids proceed in parallel.
type Engine struct {
	graph            *Graph
	store            session.Store
	rules            atomic.Pointer[guardrail.Rules]
	classifier       atomic.Pointer[intent.Classifier]
	now              func() time.Time
	metrics          *observe.Metrics
	maxSilenceReasks int
}

// NewEngine returns an engine over g backed by store.
func NewEngine(g *Graph, store session.Store, rules *guardrail.Rules, opts ...Option) (*Engine, error) {
	switch {
	case g == nil:
		return nil, errors.New("flow: graph is required")
	case store == nil:
		return nil, errors.New("flow: session store is required")
	case rules == nil:
		return nil, errors.New("flow: guardrail rules are required")
	}
	e := &Engine{
		graph:            g,
		store:            store,
		now:              time.Now,
		maxSilenceReasks: DefaultMaxSilenceReasks,
	}
	e.rules.Store(rules)
	e.classifier.Store(intent.MustDefault())
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Graph returns the graph the engine traverses.
func (e *Engine) Graph() *Graph { return e.graph }

// Rules returns the guardrail rules currently in force.
func (e *Engine) Rules() *guardrail.Rules { return e.rules.Load() }

// SetClassifier swaps the intent classifier. A nil classifier is ignored.
func (e *Engine) SetClassifier(c *intent.Classifier) {
	if c != nil {
		e.classifier.Store(c)
	}
}

// SetRules swaps the guardrail rules. Advances already running finish with
// the rules they started with.
func (e *Engine) SetRules(r *guardrail.Rules) {
	if r != nil {
		e.rules.Store(r)
	}
}

// Advance processes one caller utterance for the call sessionID and returns
// the next line. The first advance for an unknown id starts the call and
// returns the entry line without classifying raw.
//
// Caller input never causes an error. Advance fails only with
// [ErrCallEnded], a session store error, or a context error while waiting
// for the call's lock.
func (e *Engine) Advance(ctx context.Context, sessionID, raw string) (Response, error) {
	if sessionID == "" {
		return Response{}, errors.New("flow: session id is required")
	}
	ctx, span := observe.StartCallSpan(ctx, "flow.Advance", sessionID)
	start := time.Now()

	var resp Response
	err := e.store.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		resp, err = e.advanceLocked(ctx, sessionID, raw)
		return err
	})
	observe.EndTurn(span, resp.NodeID, string(resp.Intent), err)
	if err != nil {
		return Response{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordAdvance(ctx, string(resp.Intent), time.Since(start))
		for _, iv := range resp.Interventions {
			e.metrics.RecordIntervention(ctx, string(iv))
		}
	}
	return resp, nil
}

func (e *Engine) advanceLocked(ctx context.Context, id, raw string) (Response, error) {
	now := e.now()
	rules := e.rules.Load()
	log := observe.CallLogger(ctx, id)

	cs, err := e.store.Get(ctx, id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return e.start(ctx, id, rules, now)
	case err != nil:
		return Response{}, fmt.Errorf("flow: load session %q: %w", id, err)
	case cs.Closed:
		return Response{}, fmt.Errorf("%w: %s", ErrCallEnded, id)
	}

	cur, ok := e.graph.Node(cs.CurrentNodeID)
	if !ok {
		return Response{}, fmt.Errorf("flow: session %q is at unknown node %q", id, cs.CurrentNodeID)
	}
	b := cur.Base()

	normalized := speech.NormalizeInbound(raw)
	if slot := captureSlot(cur); slot != "" {
		cs.SetSlot(slot, normalized)
	}
	in := e.classifier.Load().Classify(normalized)

	var applied []guardrail.Intervention
	applyFlag(&cs.Eligibility, b.Sets, in)
	if b.Objection && (in == intent.No || in == intent.Hesitate) {
		if cs.Eligibility.Objections.Record(cs.Visit) {
			applied = append(applied, guardrail.InterventionObjection)
		}
	}

	var target string
	reask := false
	switch {
	case in == intent.Service:
		target = e.graph.Hotline()
		applied = append(applied, guardrail.InterventionServiceOverride)
	case in == intent.Silence && !hasBranch(cur, intent.Silence) && cs.SilenceCount < e.maxSilenceReasks:
		target, reask = b.ID, true
		applied = append(applied, guardrail.InterventionSilenceReask)
	default:
		target, applied = e.guard(ctx, cs, resolve(cur, in, e.graph.Fallback()), rules, now, applied)
	}

	next, ok := e.graph.Node(target)
	if !ok {
		return Response{}, fmt.Errorf("flow: node %q resolved to unknown node %q", b.ID, target)
	}
	if reask {
		cs.SilenceCount++
		cs.UpdatedAt = now
	} else {
		moveTo(cs, next, now)
	}

	resp := e.render(cs, next, rules, applied)
	resp.Intent = in
	if err := e.store.Put(ctx, cs); err != nil {
		return Response{}, fmt.Errorf("flow: save session %q: %w", id, err)
	}
	if cs.Closed && e.metrics != nil {
		e.metrics.ActiveSessions.Add(ctx, -1)
	}
	log.Debug("call advanced",
		"from", b.ID,
		"to", resp.NodeID,
		"intent", in,
		"interventions", resp.Interventions,
	)
	return resp, nil
}

// start creates the session for a first contact and returns the entry line.
func (e *Engine) start(ctx context.Context, id string, rules *guardrail.Rules, now time.Time) (Response, error) {
	cs := session.New(id, e.graph.Entry(), now)
	entry, ok := e.graph.Node(cs.CurrentNodeID)
	if !ok {
		return Response{}, fmt.Errorf("flow: entry node %q missing", cs.CurrentNodeID)
	}
	enter(cs, entry, now)

	resp := e.render(cs, entry, rules, nil)
	if err := e.store.Put(ctx, cs); err != nil {
		return Response{}, fmt.Errorf("flow: save session %q: %w", id, err)
	}
	if !cs.Closed && e.metrics != nil {
		e.metrics.ActiveSessions.Add(ctx, 1)
	}
	observe.CallLogger(ctx, id).Info("call started", "node_id", resp.NodeID)
	return resp, nil
}

// guard applies the transition guardrails to target, following redirects
// until a target passes every check.
func (e *Engine) guard(ctx context.Context, cs *session.CallSession, target string, rules *guardrail.Rules, now time.Time, applied []guardrail.Intervention) (string, []guardrail.Intervention) {
	log := observe.CallLogger(ctx, cs.ID)
	for range maxGuardPasses {
		n, ok := e.graph.Node(target)
		if !ok {
			return target, applied
		}
		b := n.Base()

		if err := guardrail.CheckStep(cs.OfferTier, b.OfferTier); err != nil {
			forced := e.graph.Fallback()
			if id, ok := e.graph.OfferNode(cs.OfferTier.Next()); ok {
				forced = id
			}
			log.Error("offer tier step-down violated; forcing nearest legal state",
				"from_tier", cs.OfferTier,
				"to_tier", b.OfferTier,
				"node_id", b.ID,
				"forced_node_id", forced,
				"err", err,
			)
			applied = append(applied, guardrail.InterventionTierViolation)
			target = forced
			continue
		}

		if b.Pricing {
			switch rules.CheckValueWindow(&cs.ValueWindow, now) {
			case guardrail.GateBlocked:
				applied = append(applied, guardrail.InterventionValueWindow)
				target = e.graph.ValueContinuation()
				continue
			case guardrail.GateFailedOpen:
				log.Warn("value window did not complete before its maximum; pricing allowed",
					"started_at", cs.ValueWindow.StartedAt,
					"node_id", b.ID,
				)
				applied = append(applied, guardrail.InterventionValueWindowFailOpen)
			}
		}

		if b.Discount && !rules.DiscountAllowed(cs.Eligibility) {
			applied = append(applied, guardrail.InterventionDiscountIneligible)
			target = b.Ineligible
			if target == "" {
				target = e.graph.Fallback()
			}
			continue
		}
		return target, applied
	}
	log.Error("guardrail redirects did not settle; using fallback", "node_id", target)
	return e.graph.Fallback(), applied
}

func (e *Engine) render(cs *session.CallSession, n Node, rules *guardrail.Rules, applied []guardrail.Intervention) Response {
	b := n.Base()
	line, lineApplied := rules.CheckLine(e.graph.fill(b.Line, cs), b.Closing)
	text := speech.NormalizeOutbound(line)
	return Response{
		SessionID:     cs.ID,
		NodeID:        b.ID,
		Text:          text,
		Markup:        speech.Compose(text, b.Tone, b.PauseMs),
		Tone:          b.Tone,
		PauseMs:       b.PauseMs,
		Terminal:      n.Kind() == KindTerminal,
		Interventions: append(applied, lineApplied...),
	}
}

// Reset removes the call so its id can start a new call. Resetting an
// unknown call is a no-op.
func (e *Engine) Reset(ctx context.Context, sessionID string) error {
	return e.store.WithLock(ctx, sessionID, func(ctx context.Context) error {
		cs, err := e.store.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("flow: load session %q: %w", sessionID, err)
		}
		if err := e.store.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("flow: delete session %q: %w", sessionID, err)
		}
		// Ended calls already left the active count.
		if !cs.Closed && e.metrics != nil {
			e.metrics.ActiveSessions.Add(ctx, -1)
		}
		observe.CallLogger(ctx, sessionID).Info("call reset")
		return nil
	})
}

// Snapshot returns a copy of the call's current state.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (*session.CallSession, error) {
	return e.store.Get(ctx, sessionID)
}

// moveTo makes n the call's current node.
func moveTo(cs *session.CallSession, n Node, now time.Time) {
	cs.CurrentNodeID = n.Base().ID
	cs.Visit++
	cs.SilenceCount = 0
	enter(cs, n, now)
}

// enter applies the session effects of reaching n.
func enter(cs *session.CallSession, n Node, now time.Time) {
	b := n.Base()
	if b.Value {
		cs.ValueWindow.Engaged = true
	}
	if b.OfferTier.IsOffer() {
		cs.OfferTier = b.OfferTier
	}
	if n.Kind() == KindTerminal {
		cs.Closed = true
	}
	cs.UpdatedAt = now
}

func applyFlag(e *guardrail.Eligibility, f Flag, in intent.Intent) {
	var v bool
	switch in {
	case intent.Yes:
		v = true
	case intent.No:
		v = false
	default:
		return
	}
	switch f {
	case FlagSenior:
		e.IsSenior = v
	case FlagVeteran:
		e.IsVeteran = v
	}
}

// Package payment hands validated payment envelopes to the system that
// settles them.
//
// Nothing here validates or stores payment details. The API layer validates
// an envelope with [guardrail.Validate] and only an accepted envelope reaches
// a [Gateway]. Gateways are selected by name through a [Registry] and
// wrapped in a [Guarded] circuit breaker.
package payment

import (
	"context"
	"log/slog"

	"github.com/MrWong99/callscript/internal/guardrail"
)

// Handoff is one accepted envelope on its way to settlement.
type Handoff struct {
	CallID   string             `json:"call_id"`
	Brand    guardrail.Brand    `json:"brand,omitempty"`
	Envelope guardrail.Envelope `json:"envelope"`
}

// LogValue implements [slog.LogValuer] so a hand-off never reaches a log with
// its full card or account number.
func (h Handoff) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("call_id", h.CallID),
		slog.String("mode", string(h.Envelope.Mode)),
	}
	switch h.Envelope.Mode {
	case guardrail.ModeCard:
		attrs = append(attrs,
			slog.String("brand", string(h.Brand)),
			slog.String("number", guardrail.MaskNumber(h.Envelope.Number)),
		)
	case guardrail.ModeBank:
		attrs = append(attrs, slog.String("account", guardrail.MaskNumber(h.Envelope.Account)))
	}
	return slog.GroupValue(attrs...)
}

// Gateway accepts hand-offs for settlement.
//
// Implementations must be safe for concurrent use.
type Gateway interface {
	Submit(ctx context.Context, h Handoff) error
}

// LogGateway records a masked hand-off and settles nothing. It is the
// default for deployments where settlement is wired up out of band.
type LogGateway struct {
	log *slog.Logger
}

// NewLogGateway returns a [LogGateway] writing to log, or to the default
// logger when log is nil.
func NewLogGateway(log *slog.Logger) *LogGateway {
	if log == nil {
		log = slog.Default()
	}
	return &LogGateway{log: log}
}

// Submit implements [Gateway].
func (g *LogGateway) Submit(ctx context.Context, h Handoff) error {
	g.log.InfoContext(ctx, "payment hand-off", "handoff", h)
	return nil
}

var _ Gateway = (*LogGateway)(nil)

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/callscript/internal/flow"
	"github.com/MrWong99/callscript/internal/observe"
)

// Frame types exchanged on the stream.
const (
	FrameUtterance = "utterance"
	FrameReset     = "reset"
	FrameResponse  = "response"
	FrameError     = "error"
)

// inFrame is a frame sent by the collaborator.
type inFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// outFrame is a frame sent to the collaborator.
type outFrame struct {
	Type     string         `json:"type"`
	Response *flow.Response `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// handleStream bridges one call over a websocket. Every utterance frame
// advances the call and is answered with a response frame. The server closes
// the socket normally once the call reaches a terminal node.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	log := observe.CallLogger(r.Context(), id)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("stream: accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	if s.metrics != nil {
		s.metrics.StreamConnections.Add(ctx, 1)
		defer s.metrics.StreamConnections.Add(context.WithoutCancel(ctx), -1)
	}
	log.Debug("stream: connected")

	for {
		var in inFrame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("stream: closed by peer")
			default:
				if !errors.Is(err, context.Canceled) {
					log.Warn("stream: read failed", "err", err)
				}
			}
			return
		}

		out, done := s.handleFrame(ctx, id, in)
		if err := wsjson.Write(ctx, conn, out); err != nil {
			log.Warn("stream: write failed", "err", err)
			return
		}
		if done {
			conn.Close(websocket.StatusNormalClosure, "call ended")
			return
		}
	}
}

// handleFrame processes one inbound frame and reports whether the call has
// ended.
func (s *Server) handleFrame(ctx context.Context, id string, in inFrame) (outFrame, bool) {
	switch in.Type {
	case FrameUtterance:
		resp, err := s.advance(ctx, id, in.Text)
		if err != nil {
			return outFrame{Type: FrameError, Error: err.Error()}, false
		}
		return outFrame{Type: FrameResponse, Response: &resp}, resp.Terminal
	case FrameReset:
		if err := s.engine.Reset(ctx, id); err != nil {
			return outFrame{Type: FrameError, Error: err.Error()}, false
		}
		return outFrame{Type: FrameReset}, false
	default:
		return outFrame{Type: FrameError, Error: fmt.Sprintf("unknown frame type %q", in.Type)}, false
	}
}

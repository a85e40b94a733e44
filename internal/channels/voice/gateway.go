package voice

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/stayline/hotel-concierge/internal/conversation"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

// Gateway bridges real-time voice turns to the conversation engine over
// a websocket. Each call gets its own session identity; the transport
// layer upstream handles speech-to-text and text-to-speech, so frames
// carry plain text.
type Gateway struct {
	service *conversation.Service
	calls   *conversation.CallStore
	logger  *logging.Logger

	mu     sync.RWMutex
	active map[string]*wsConn // callID -> active connection
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// InboundFrame is a frame sent by the telephony bridge.
type InboundFrame struct {
	Type   string `json:"type"` // "start", "turn", "ping", "end"
	CallID string `json:"call_id,omitempty"`
	Caller string `json:"caller,omitempty"`
	Text   string `json:"text,omitempty"`
}

// OutboundFrame is a frame sent back to the bridge.
type OutboundFrame struct {
	Type string `json:"type"` // "say", "pong", "error"
	Text string `json:"text,omitempty"`
}

// NewGateway creates the voice gateway. calls may be nil, in which case
// call state tracking is skipped.
func NewGateway(service *conversation.Service, calls *conversation.CallStore, logger *logging.Logger) *Gateway {
	if service == nil {
		panic("voice: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gateway{
		service: service,
		calls:   calls,
		logger:  logger,
		active:  make(map[string]*wsConn),
	}
}

// SessionUserID derives the conversation session identity for a call.
func SessionUserID(callID string) string {
	return "call-" + callID
}

// HandleWS upgrades to a websocket and serves frames until the peer
// disconnects.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		g.serve(conn, r)
	}).ServeHTTP(w, r)
}

func (g *Gateway) serve(conn *websocket.Conn, r *http.Request) {
	var callID string
	defer func() {
		if callID != "" {
			g.unregister(callID)
		}
	}()

	for {
		var frame InboundFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			if callID != "" {
				g.logger.Debug("voice connection closed", "call_id", callID, "error", err)
				g.markEnded(callID, conversation.CallOutcomeAbandoned)
			}
			return
		}

		switch frame.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "pong"})

		case "start":
			if frame.CallID == "" {
				_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Text: "call_id is required"})
				continue
			}
			callID = frame.CallID
			g.register(callID, conn)
			g.startCall(r.Context(), conn, frame)

		case "turn":
			id := frame.CallID
			if id == "" {
				id = callID
			}
			if id == "" || strings.TrimSpace(frame.Text) == "" {
				_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Text: "call_id and text are required"})
				continue
			}
			g.handleTurn(r.Context(), conn, id, frame.Text)

		case "end":
			id := frame.CallID
			if id == "" {
				id = callID
			}
			if id != "" {
				g.markEnded(id, g.outcomeFor(r.Context(), id))
			}
			return

		default:
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Text: "unknown frame type"})
		}
	}
}

func (g *Gateway) startCall(ctx context.Context, conn *websocket.Conn, frame InboundFrame) {
	if g.calls != nil {
		now := time.Now().UTC()
		err := g.calls.SaveCallState(ctx, &conversation.CallState{
			CallID:         frame.CallID,
			CallerPhone:    frame.Caller,
			UserID:         SessionUserID(frame.CallID),
			Status:         conversation.CallStatusActive,
			StartedAt:      now,
			LastActivityAt: now,
		})
		if err != nil {
			g.logger.Error("failed to save call state", "error", err, "call_id", frame.CallID)
		}
	}

	// An empty utterance against a fresh session produces the greeting,
	// so the caller hears it before saying anything.
	reply, err := g.service.ProcessUtterance(ctx, conversation.Utterance{
		UserID:     SessionUserID(frame.CallID),
		Text:       "",
		Channel:    conversation.ChannelVoice,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		g.logger.Error("failed to start voice call", "error", err, "call_id", frame.CallID)
		_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Text: "Sorry, something went wrong. Please try again."})
		return
	}
	g.say(ctx, conn, frame.CallID, reply.Text)
}

func (g *Gateway) handleTurn(ctx context.Context, conn *websocket.Conn, callID, text string) {
	g.appendTranscript(ctx, callID, "guest", text)

	reply, err := g.service.ProcessUtterance(ctx, conversation.Utterance{
		UserID:     SessionUserID(callID),
		Text:       text,
		Channel:    conversation.ChannelVoice,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		g.logger.Error("failed to process voice turn", "error", err, "call_id", callID)
		_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Text: "Sorry, something went wrong. Please try again."})
		return
	}

	if g.calls != nil {
		if err := g.calls.IncrementTurn(ctx, callID); err != nil {
			g.logger.Debug("failed to bump turn counter", "error", err, "call_id", callID)
		}
	}
	g.say(ctx, conn, callID, reply.Text)

	if reply.Confirmed {
		g.markEnded(callID, conversation.CallOutcomeBooked)
	}
}

func (g *Gateway) say(ctx context.Context, conn *websocket.Conn, callID, text string) {
	g.appendTranscript(ctx, callID, "concierge", text)
	_ = websocket.JSON.Send(conn, OutboundFrame{Type: "say", Text: text})
}

func (g *Gateway) appendTranscript(ctx context.Context, callID, role, text string) {
	if g.calls == nil || text == "" {
		return
	}
	err := g.calls.AppendTranscript(ctx, callID, conversation.CallTranscriptEntry{
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		g.logger.Debug("failed to append call transcript", "error", err, "call_id", callID)
	}
}

// outcomeFor picks the end-of-call outcome from the stored state. A call
// that already booked keeps its outcome; anything else ended incomplete.
func (g *Gateway) outcomeFor(ctx context.Context, callID string) string {
	if g.calls == nil {
		return conversation.CallOutcomeIncomplete
	}
	state, err := g.calls.GetCallState(ctx, callID)
	if err != nil || state == nil {
		return conversation.CallOutcomeIncomplete
	}
	if state.Outcome == conversation.CallOutcomeBooked {
		return conversation.CallOutcomeBooked
	}
	return conversation.CallOutcomeIncomplete
}

func (g *Gateway) markEnded(callID, outcome string) {
	if g.calls == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := g.calls.GetCallState(ctx, callID)
	if err != nil || state == nil {
		return
	}
	if state.Status == conversation.CallStatusEnded {
		return
	}
	if err := g.calls.EndCall(ctx, callID, outcome); err != nil {
		g.logger.Debug("failed to end call", "error", err, "call_id", callID)
	}
}

func (g *Gateway) register(callID string, conn *websocket.Conn) {
	wsc := &wsConn{conn: conn, done: make(chan struct{})}
	g.mu.Lock()
	g.active[callID] = wsc
	g.mu.Unlock()
	g.logger.Info("voice call connected", "call_id", callID)
}

func (g *Gateway) unregister(callID string) {
	g.mu.Lock()
	wsc, ok := g.active[callID]
	if ok {
		delete(g.active, callID)
	}
	g.mu.Unlock()
	if ok {
		close(wsc.done)
	}
}

package ws

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded WS message payload.
type HandlerFunc func(ctx context.Context, session *Session, payload json.RawMessage) error

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

type errorPayload struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate
// handler. Handler failures are answered with an "error" packet carrying the
// offending seq.
func (r *Router) Dispatch(s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.String("session", s.ID),
			zap.Error(err))
		return
	}

	// Monotonic seq check (anti-replay). Seq == 0 means no seq tracking.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("session", s.ID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	// Assign a trace ID for this message dispatch.
	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.String("session", s.ID))
		return
	}

	if err := r.call(ctx, fn, s, pkt.Payload); err != nil {
		r.logger.Warn("handler error",
			zap.String("type", pkt.Type),
			zap.String("session", s.ID),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
		payload, _ := json.Marshal(errorPayload{Type: pkt.Type, Error: err.Error()})
		s.Send(&Packet{Seq: pkt.Seq, Type: "error", Payload: payload})
	}
}

// call runs one handler, turning a panic into an error.
func (r *Router) call(ctx context.Context, fn HandlerFunc, s *Session, payload json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in ws handler",
				zap.Any("recover", rec),
				zap.String("stack", string(debug.Stack())))
			err = errHandlerPanic
		}
	}()
	return fn(ctx, s, payload)
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}

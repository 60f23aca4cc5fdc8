package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HandlerFunc runs one client command. Returning an error sends the client a
// generic "internal error" reply; handlers answer expected failures
// themselves with replyError.
type HandlerFunc func(ctx context.Context, s *Session, payload json.RawMessage) error

// Router maps packet types to handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger

	// Per-session command budget; zero disables it.
	rps   rate.Limit
	burst int
}

// NewRouter creates a Router with no command rate limit.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// WithRateLimit caps each session at rps commands per second with the given
// burst.
func (r *Router) WithRateLimit(rps float64, burst int) *Router {
	r.rps = rate.Limit(rps)
	r.burst = burst
	return r
}

// On registers fn for msgType, replacing any earlier handler.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch handles one raw client message. Sessions are read by a single
// goroutine, so LastSeq and the limiter need no lock.
func (r *Router) Dispatch(ctx context.Context, s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet", zap.Int64("user_id", s.UserID), zap.Error(err))
		replyError(s, "", "malformed packet")
		return
	}
	if !s.acceptSeq(pkt.Seq) {
		r.logger.Warn("replayed or out-of-order packet",
			zap.Int64("user_id", s.UserID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if !r.allow(s) {
		replyError(s, pkt.Type, "too many requests")
		return
	}

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type", zap.String("type", pkt.Type), zap.Int64("user_id", s.UserID))
		replyError(s, pkt.Type, "unknown message type")
		return
	}

	s.TraceID = uuid.NewString()
	ctx = context.WithValue(ctx, ctxKeyTraceID{}, s.TraceID)
	if err := r.call(ctx, fn, s, pkt.Payload); err != nil {
		r.logger.Error("ws handler failed",
			zap.String("type", pkt.Type),
			zap.Int64("user_id", s.UserID),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
		replyError(s, pkt.Type, "internal error")
	}
}

// call runs fn, turning a panic into an error so one bad command does not
// kill the connection's read loop.
func (r *Router) call(ctx context.Context, fn HandlerFunc, s *Session, payload json.RawMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, s, payload)
}

func (r *Router) allow(s *Session) bool {
	if r.rps <= 0 {
		return true
	}
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(r.rps, r.burst)
	}
	return s.limiter.Allow()
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyTraceID{}).(string)
	return v
}

func replyError(s *Session, msgType, msg string) {
	s.Reply("error", map[string]string{"type": msgType, "error": msg})
}

package message

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// HandlerFunc processes one decoded request frame and returns the response
// body. Returned errors are normalized into an ErrorResponse by the router.
type HandlerFunc func(ctx context.Context, raw json.RawMessage) (any, error)

// Router is the single entry point for inbound frames: it reads the type
// discriminator, dispatches to the registered handler, and guarantees the
// caller always gets a well-formed response — never a raw panic.
type Router struct {
	handlers map[Type]HandlerFunc
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[Type]HandlerFunc)}
}

// Register installs a handler for one message kind. Registering the same
// kind twice is a programming error and panics at startup.
func (r *Router) Register(t Type, h HandlerFunc) {
	if _, dup := r.handlers[t]; dup {
		panic(fmt.Sprintf("message: duplicate handler for %q", t))
	}
	r.handlers[t] = h
}

// Dispatch routes one raw frame and returns the response body along with
// the request id to echo. It never panics and never returns nil.
func (r *Router) Dispatch(ctx context.Context, raw []byte) (body any, requestID string) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ErrorResponse{Error: "malformed request frame"}, ""
	}

	handler, ok := r.handlers[env.Type]
	if !ok {
		return ErrorResponse{Error: fmt.Sprintf("unknown message type %q", env.Type)}, env.RequestID
	}

	return r.invoke(ctx, env, handler, raw), env.RequestID
}

// invoke runs the handler with panic containment. Non-error panic values
// are normalized to a generic message rather than propagated as-is.
func (r *Router) invoke(ctx context.Context, env Envelope, handler HandlerFunc, raw json.RawMessage) (body any) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("handler panicked", "type", env.Type, "panic", rec)
			body = ErrorResponse{Error: normalizePanic(rec)}
		}
	}()

	resp, err := handler(ctx, raw)
	if err != nil {
		return ErrorResponse{Error: err.Error()}
	}
	return resp
}

func normalizePanic(rec any) string {
	if err, ok := rec.(error); ok {
		return err.Error()
	}
	return "internal error"
}

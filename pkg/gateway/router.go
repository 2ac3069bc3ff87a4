package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Router maps method names to handlers.
type Router struct {
	mu      sync.RWMutex
	methods map[string]RequestHandler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{methods: make(map[string]RequestHandler)}
}

// Register registers a method handler.
func (r *Router) Register(name string, handler RequestHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = handler
	return nil
}

// Methods returns the registered method names.
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	return names
}

// ParseRequest parses and validates a client request frame.
func (r *Router) ParseRequest(data []byte) (*Request, *Error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &Error{Code: ParseError, Message: "parse error"}
	}
	if req.Method == "" {
		return nil, &Error{Code: InvalidRequest, Message: "method is required"}
	}
	return &req, nil
}

// Route executes the handler for a request against one client.
func (r *Router) Route(client *Client, req *Request) Response {
	r.mu.RLock()
	handler, found := r.methods[req.Method]
	r.mu.RUnlock()

	if !found {
		return Response{
			ID:    req.ID,
			Error: &Error{Code: MethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)},
		}
	}

	result, err := handler(client, req.Params)
	if err != nil {
		if rpcErr, ok := err.(*Error); ok {
			return Response{ID: req.ID, Error: rpcErr}
		}
		return Response{ID: req.ID, Error: &Error{Code: InternalError, Message: err.Error()}}
	}
	return Response{ID: req.ID, Result: result}
}

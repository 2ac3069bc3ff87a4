package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Request is a JSON request from an attached UI client.
type Request struct {
	ID     string                 `json:"id"`
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Response answers one Request.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *Error      `json:"error,omitempty"`
}

// Error is a structured request failure.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Request error codes.
const (
	ParseError             = -32700
	InvalidRequest         = -32600
	MethodNotFound         = -32601
	InvalidParams          = -32602
	InternalError          = -32603
	AuthenticationRequired = -32001
)

// EventMessage is a server-initiated frame: bus fanout or a UI command.
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Seq       int64       `json:"seq,omitempty"`
}

// AuthChallenge is the first frame sent to a new client.
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResult reports the outcome of a client's auth response.
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// ClientState tracks a connection through its handshake.
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

// Client is one attached UI connection.
type Client struct {
	ID            string
	Conn          *websocket.Conn
	State         ClientState
	Authenticated bool
	Challenge     string
	AuthAttempts  int
	ConnectedAt   time.Time
	LastActivity  time.Time
	IPAddress     string

	// SessionID is set once the client has attached an assistant session.
	SessionID string
	// DeviceID identifies the browser device for persisted preferences.
	DeviceID string
	// Role and Identification describe the caller for tool authorization.
	Role           string
	Identification string

	writeMu sync.Mutex
}

// WriteJSON serializes writes, gorilla allows one concurrent writer only.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

// ClientInfo is the reporting view of a client.
type ClientInfo struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	SessionID     string    `json:"session_id,omitempty"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastActivity  time.Time `json:"last_activity"`
	IPAddress     string    `json:"ip_address"`
	Idle          bool      `json:"idle"`
}

// RequestHandler handles one method for one client.
type RequestHandler func(client *Client, params map[string]interface{}) (interface{}, error)

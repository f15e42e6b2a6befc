// Package daemon implements the assetrev daemon server and client. The
// daemon keeps a resolver and builder warm for one project and serves them
// to template layers over JSON-RPC 2.0 on a unix socket.
package daemon

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// JSON-RPC 2.0 version string.
const JSONRPCVersion = "2.0"

// JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Server error codes from the implementation-defined range.
const (
	ErrCodeBuildFailed     = -32000
	ErrCodeManifestCorrupt = -32001
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"` // nil for notifications
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification represents a JSON-RPC 2.0 notification.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		var detail string
		if json.Unmarshal(e.Data, &detail) == nil && detail != "" {
			return fmt.Sprintf("RPC error %d: %s: %s", e.Code, e.Message, detail)
		}
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// NewRequest creates a new JSON-RPC request.
func NewRequest(id int64, method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Method:  method,
	}
	data, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	req.Params = data
	return req, nil
}

// NewNotification creates a new JSON-RPC notification.
func NewNotification(method string, params any) (*Notification, error) {
	data, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Notification{JSONRPC: JSONRPCVersion, Method: method, Params: data}, nil
}

// NewResponse creates a successful JSON-RPC response. A nil result is
// encoded as null since success responses must carry a result.
func NewResponse(id int64, result any) (*Response, error) {
	data, err := marshalOptional(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	if data == nil {
		data = json.RawMessage("null")
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: &id, Result: data}, nil
}

// NewErrorResponse creates an error JSON-RPC response.
func NewErrorResponse(id *int64, code int, message string, data any) *Response {
	resp := &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
	if d, err := marshalOptional(data); err == nil {
		resp.Error.Data = d
	}
	return resp
}

func marshalOptional(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// RPC methods.
const (
	MethodPing        = "ping"
	MethodShutdown    = "shutdown"
	MethodResolve     = "resolve"
	MethodManifestGet = "manifest/get"
	MethodBuildRun    = "build/run"
	MethodStatusGet   = "status/get"
	MethodWatchStart  = "watch/start"
	MethodWatchStop   = "watch/stop"
	MethodWatchStatus = "watch/status"
	MethodWatchEvent  = "watch/event" // notification from server to client
)

// PingResult is the response to a ping request.
type PingResult struct {
	Pong      bool   `json:"pong"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	StartTime string `json:"start_time"`
	Root      string `json:"root"`
}

// ShutdownResult is the response to a shutdown request.
type ShutdownResult struct {
	Message string `json:"message"`
}

// ResolveParams are the parameters for resolve.
type ResolveParams struct {
	Names []string `json:"names"`
}

// ResolveResult is the response to resolve. Names no strategy resolved
// are listed in Unresolved with the reason in Errors.
type ResolveResult struct {
	URLs       map[string]string `json:"urls"`
	Strategies map[string]string `json:"strategies"`
	Unresolved []string          `json:"unresolved,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// ManifestGetResult is the response to manifest/get.
type ManifestGetResult struct {
	Path    string            `json:"path"`
	Exists  bool              `json:"exists"`
	Entries map[string]string `json:"entries"`
}

// BuildRunResult is the response to build/run.
type BuildRunResult struct {
	Status    string   `json:"status"` // "ok" or "partial"
	Added     []string `json:"added,omitempty"`
	Updated   []string `json:"updated,omitempty"`
	Unchanged int      `json:"unchanged"`
	Deleted   []string `json:"deleted,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Saved     bool     `json:"saved"`
	Duration  string   `json:"duration"`
}

// StatusGetResult is the response to status/get.
type StatusGetResult struct {
	Pending bool     `json:"pending"`
	Added   []string `json:"added,omitempty"`
	Updated []string `json:"updated,omitempty"`
	Stale   []string `json:"stale,omitempty"`
	Failed  []string `json:"failed,omitempty"`
}

// WatchStartParams are the parameters for watch/start.
type WatchStartParams struct {
	Kinds    []string `json:"kinds,omitempty"`
	Debounce int      `json:"debounce,omitempty"` // milliseconds
	Build    bool     `json:"build,omitempty"`    // build once before watching
}

// WatchStartResult is the response to watch/start.
type WatchStartResult struct {
	Status string   `json:"status"`
	Root   string   `json:"root"`
	Kinds  []string `json:"kinds,omitempty"`
}

// WatchStopResult is the response to watch/stop.
type WatchStopResult struct {
	Status string `json:"status"`
}

// WatchStatusResult is the response to watch/status.
type WatchStatusResult struct {
	Watching  bool     `json:"watching"`
	Root      string   `json:"root,omitempty"`
	Kinds     []string `json:"kinds,omitempty"`
	Builds    int      `json:"builds"`
	Errors    int      `json:"errors"`
	LastBuild string   `json:"last_build,omitempty"`
}

// WatchEventParams are the parameters for watch/event notifications.
type WatchEventParams struct {
	Type      string   `json:"type"` // "built", "error", "shutdown"
	Paths     []string `json:"paths,omitempty"`
	Message   string   `json:"message,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// IDGenerator generates unique request IDs.
type IDGenerator struct {
	counter atomic.Int64
}

// Next returns the next unique ID.
func (g *IDGenerator) Next() int64 {
	return g.counter.Add(1)
}

// DaemonInfo contains information about the running daemon.
type DaemonInfo struct {
	PID         int       `json:"pid"`
	SocketPath  string    `json:"socket_path"`
	Root        string    `json:"root,omitempty"`
	StartTime   time.Time `json:"start_time"`
	Version     string    `json:"version"`
	Watching    bool      `json:"watching"`
	ClientCount int       `json:"client_count"`
}

// Package rpc implements the JSON-RPC 2.0 envelope used by the MCP wire
// protocol.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version tag.
const Version = "2.0"

// Well-known JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Message represents a JSON-RPC message: request, response, or notification.
// A message with a method and no id is a notification; a message with a
// result or error is a response.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// NewRequest creates a new request message.
func NewRequest(id any, method string, params any) (*Message, error) {
	paramsJSON, err := marshalField(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  paramsJSON,
	}, nil
}

// NewNotification creates a new notification message (no id).
func NewNotification(method string, params any) (*Message, error) {
	paramsJSON, err := marshalField(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Message{
		JSONRPC: Version,
		Method:  method,
		Params:  paramsJSON,
	}, nil
}

// NewResult creates a success response for the given id.
func NewResult(id any, result any) (*Message, error) {
	resultJSON, err := marshalField(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Result:  resultJSON,
	}, nil
}

// NewRawResult creates a success response carrying an already-encoded result.
func NewRawResult(id any, result json.RawMessage) *Message {
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
}

// NewError creates an error response for the given id.
func NewError(id any, code int, message string, data json.RawMessage) *Message {
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// NewErrorf creates an error response with a formatted message.
func NewErrorf(id any, code int, format string, args ...any) *Message {
	return NewError(id, code, fmt.Sprintf(format, args...), nil)
}

func marshalField(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// IsNotification returns true if the message is a notification.
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.ID == nil
}

// IsRequest returns true if the message is a request.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.ID != nil
}

// IsResponse returns true if the message is a response.
func (m *Message) IsResponse() bool {
	return m.ID != nil && (m.Result != nil || m.Error != nil) && m.Method == ""
}

// Validate checks the message against the JSON-RPC 2.0 envelope rules.
func (m *Message) Validate() error {
	if m.JSONRPC != Version {
		return fmt.Errorf("invalid JSON-RPC version: %q", m.JSONRPC)
	}
	if !m.IsRequest() && !m.IsResponse() && !m.IsNotification() {
		return fmt.Errorf("invalid JSON-RPC message format")
	}
	return nil
}

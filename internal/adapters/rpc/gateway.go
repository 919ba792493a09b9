// Package rpc calls whitelisted server methods on the ERP backend.
//
// Each remote method has a typed descriptor so callers never build argument
// maps or pick fields out of an untyped reply by hand.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Gateway executes a named remote method. args is encoded as the JSON
// request body and the reply's "message" field is decoded into out.
// A nil out discards the reply.
type Gateway interface {
	Call(ctx context.Context, method string, args any, out any) error
}

// Method describes one remote method and the types it exchanges.
type Method[Req, Resp any] struct {
	Name string
}

// Invoke calls m through gw.
func (m Method[Req, Resp]) Invoke(ctx context.Context, gw Gateway, req Req) (Resp, error) {
	var resp Resp
	if err := gw.Call(ctx, m.Name, req, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// RemoteError is a failure reported by the server.
type RemoteError struct {
	Method  string
	Status  int
	Type    string
	Message string
	Payload json.RawMessage
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.Type != "" {
		return fmt.Sprintf("%s: %s (%s, status %d)", e.Method, msg, e.Type, e.Status)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Method, msg, e.Status)
}

// Is reports whether target is a *RemoteError of the same exception type.
// A target without a type matches any remote error.
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*RemoteError)
	if !ok {
		return false
	}
	return t.Type == "" || t.Type == e.Type
}

// Common server exception types.
var (
	ErrPermission        = &RemoteError{Type: "PermissionError"}
	ErrValidation        = &RemoteError{Type: "ValidationError"}
	ErrTimestampMismatch = &RemoteError{Type: "TimestampMismatchError"}
	ErrDoesNotExist      = &RemoteError{Type: "DoesNotExistError"}
)

// errorEnvelope is the body the server sends with a failed call.
type errorEnvelope struct {
	ExcType        string `json:"exc_type"`
	Exception      string `json:"exception"`
	ServerMessages string `json:"_server_messages"`
	Message        string `json:"message"`
}

// decodeRemoteError turns a failed response body into a *RemoteError.
func decodeRemoteError(method string, status int, body []byte) *RemoteError {
	rerr := &RemoteError{Method: method, Status: status}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		rerr.Message = strings.TrimSpace(string(body))
		return rerr
	}

	rerr.Type = env.ExcType
	rerr.Message = firstServerMessage(env.ServerMessages)
	if rerr.Message == "" {
		rerr.Message = env.Exception
	}
	if rerr.Message == "" {
		rerr.Message = env.Message
	}
	if env.ServerMessages != "" {
		rerr.Payload = json.RawMessage(body)
	}
	return rerr
}

// firstServerMessage unpacks "_server_messages", a JSON array of JSON
// encoded message objects.
func firstServerMessage(raw string) string {
	if raw == "" {
		return ""
	}
	var messages []string
	if err := json.Unmarshal([]byte(raw), &messages); err != nil || len(messages) == 0 {
		return ""
	}
	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(messages[0]), &msg); err != nil {
		return messages[0]
	}
	return msg.Message
}

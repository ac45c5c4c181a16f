// Package fetcher is the boundary to the ERP server: typed remote
// procedures returning master data the document cannot derive locally.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"txcalc/internal/core/apperror"
)

// Response is the RPC envelope returned by the server.
type Response struct {
	Message json.RawMessage `json:"message,omitempty"`
	// Exc holds the server traceback when the call raised.
	Exc json.RawMessage `json:"exc,omitempty"`
	// ServerMessages carries user-facing messages raised during the call.
	ServerMessages string `json:"_server_messages,omitempty"`
}

// Failed reports whether the server signalled an exception.
func (r Response) Failed() bool {
	exc := bytes.TrimSpace(r.Exc)
	switch string(exc) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

// ExcMessage returns a short description of the server exception.
func (r Response) ExcMessage() string {
	if r.ServerMessages != "" {
		return r.ServerMessages
	}
	var s string
	if err := json.Unmarshal(r.Exc, &s); err == nil {
		return lastLine(s)
	}
	return lastLine(string(r.Exc))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// Invoker performs a remote procedure call.
type Invoker interface {
	Invoke(ctx context.Context, method string, args map[string]any) (Response, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, method string, args map[string]any) (Response, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, method string, args map[string]any) (Response, error) {
	return f(ctx, method, args)
}

// Client exposes the remote procedures used by the transaction handlers.
type Client struct {
	invoker Invoker
}

// New creates a client on top of an invoker.
func New(invoker Invoker) *Client {
	return &Client{invoker: invoker}
}

// Call invokes method and decodes the message into out (which may be nil).
// Transport failures and server exceptions become REMOTE_CALL_FAILED errors.
func (c *Client) Call(ctx context.Context, method string, args map[string]any, out any) error {
	resp, err := c.invoker.Invoke(ctx, method, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return apperror.NewRemoteCall(method, err)
	}
	if resp.Failed() {
		return apperror.NewRemoteCall(method, errors.New(resp.ExcMessage()))
	}
	if out == nil || len(bytes.TrimSpace(resp.Message)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(resp.Message))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return apperror.NewRemoteCall(method, fmt.Errorf("decode message: %w", err))
	}
	return nil
}

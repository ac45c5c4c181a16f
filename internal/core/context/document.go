// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// DocumentContext identifies the document a request or background fetch works on.
type DocumentContext struct {
	SessionID string
	DocType   string
	Name      string
}

type documentContextKey struct{}

// WithDocument adds DocumentContext to context.
func WithDocument(ctx context.Context, doc *DocumentContext) context.Context {
	return context.WithValue(ctx, documentContextKey{}, doc)
}

// GetDocument returns DocumentContext from context.
func GetDocument(ctx context.Context) *DocumentContext {
	if v, ok := ctx.Value(documentContextKey{}).(*DocumentContext); ok {
		return v
	}
	return nil
}

package mw

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// OperationOption is a function that modifies an operation.
type OperationOption func(*huma.Operation)

// WithTags adds tags to the operation.
func WithTags(tags ...string) OperationOption {
	return func(op *huma.Operation) {
		op.Tags = append(op.Tags, tags...)
	}
}

// WithSummary sets the operation summary.
func WithSummary(summary string) OperationOption {
	return func(op *huma.Operation) {
		op.Summary = summary
	}
}

// WithDescription sets the operation description.
func WithDescription(desc string) OperationOption {
	return func(op *huma.Operation) {
		op.Description = desc
	}
}

// WithOperationID sets a custom operation ID.
func WithOperationID(id string) OperationOption {
	return func(op *huma.Operation) {
		op.OperationID = id
	}
}

func register[I, O any](api huma.API, op huma.Operation, handler func(context.Context, *I) (*O, error), opts []OperationOption) {
	for _, opt := range opts {
		opt(&op)
	}
	huma.Register(api, op, handler)
}

func protected(method, path string) huma.Operation {
	return huma.Operation{
		Method:   method,
		Path:     path,
		Security: []map[string][]string{{SecurityScheme: {}}},
	}
}

// PublicGet registers a GET endpoint that never requires auth.
func PublicGet[I, O any](api huma.API, path string, handler func(context.Context, *I) (*O, error), opts ...OperationOption) {
	register(api, huma.Operation{Method: http.MethodGet, Path: path}, handler, opts)
}

// ProtectedGet registers a GET endpoint that requires bearer auth when a
// signing key is configured.
func ProtectedGet[I, O any](api huma.API, path string, handler func(context.Context, *I) (*O, error), opts ...OperationOption) {
	register(api, protected(http.MethodGet, path), handler, opts)
}

// ProtectedPost registers a POST endpoint that requires bearer auth when a
// signing key is configured.
func ProtectedPost[I, O any](api huma.API, path string, handler func(context.Context, *I) (*O, error), opts ...OperationOption) {
	register(api, protected(http.MethodPost, path), handler, opts)
}

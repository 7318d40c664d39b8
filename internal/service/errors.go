// Package service contains the business logic layer.
package service

import "errors"

var (
	// ErrInvalidInput marks request validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRenderFailed marks failures fetching or rendering the target page.
	ErrRenderFailed = errors.New("render failed")
	// ErrHistoryDisabled is returned by run queries when no repository is
	// configured.
	ErrHistoryDisabled = errors.New("run history is disabled")
)

package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/sitesift/internal/repository"
	"github.com/jmylchreest/sitesift/internal/service"
)

// toHumaError maps service errors to HTTP errors. Unknown errors become a
// 500 without their detail.
func toHumaError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrInvalidInput):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return huma.Error404NotFound("run not found")
	case errors.Is(err, service.ErrRenderFailed):
		return huma.Error502BadGateway(err.Error())
	case errors.Is(err, service.ErrHistoryDisabled):
		return huma.Error503ServiceUnavailable("run history is disabled")
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("request timed out")
	default:
		return huma.Error500InternalServerError("internal error")
	}
}

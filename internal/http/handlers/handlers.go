// Package handlers contains the Huma operation handlers for the HTTP API.
package handlers

import (
	"context"

	"github.com/jmylchreest/sitesift/internal/version"
)

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status" example:"healthy" doc:"Service health status"`
		Version string `json:"version" example:"1.0.0" doc:"Build version"`
	}
}

// HealthCheck handles health check requests.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().String()
	return out, nil
}

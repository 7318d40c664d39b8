package handlers

import (
	"context"

	"github.com/jmylchreest/sitesift/internal/models"
	"github.com/jmylchreest/sitesift/internal/service"
)

// Extractor runs and records extractions.
type Extractor interface {
	Extract(ctx context.Context, in service.ExtractInput) (*service.ExtractOutput, error)
	Estimate(ctx context.Context, in service.EstimateInput) (*service.EstimateOutput, error)
	Check(ctx context.Context) *service.CheckResult
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)
}

// ExtractionHandler serves extraction, estimate, run history and model
// check endpoints.
type ExtractionHandler struct {
	svc Extractor
}

// NewExtractionHandler creates an ExtractionHandler.
func NewExtractionHandler(svc Extractor) *ExtractionHandler {
	return &ExtractionHandler{svc: svc}
}

// ExtractRequest is the body shared by extract and estimate.
type ExtractRequest struct {
	URL         string `json:"url,omitempty" doc:"Page to fetch. Ignored when content is set." example:"https://example.com/shop"`
	Content     string `json:"content,omitempty" doc:"Text to extract from instead of fetching url"`
	Instruction string `json:"instruction" minLength:"1" doc:"What to extract" example:"List every product with its price"`
	ChunkSize   int    `json:"chunk_size,omitempty" minimum:"0" doc:"Maximum characters per chunk; 0 uses the server default"`
}

// ExtractInput is the extract request.
type ExtractInput struct {
	Body struct {
		ExtractRequest
		Export bool `json:"export,omitempty" doc:"Write the result to the configured export target"`
	}
}

// ExtractResponse summarizes a finished run.
type ExtractResponse struct {
	RunID          string `json:"run_id"`
	URL            string `json:"url,omitempty"`
	Text           string `json:"text"`
	ChunkCount     int    `json:"chunk_count"`
	Sections       int    `json:"sections"`
	Failures       int    `json:"failures"`
	CacheHits      int    `json:"cache_hits"`
	APICalls       int    `json:"api_calls"`
	StoppedAt      int    `json:"stopped_at,omitempty" doc:"Section at which quota exhaustion stopped the run"`
	ElapsedMs      int64  `json:"elapsed_ms"`
	ExportLocation string `json:"export_location,omitempty"`
}

// ExtractOutput wraps ExtractResponse.
type ExtractOutput struct {
	Body ExtractResponse
}

// Extract runs an instruction over a page and waits for the result.
func (h *ExtractionHandler) Extract(ctx context.Context, input *ExtractInput) (*ExtractOutput, error) {
	out, err := h.svc.Extract(ctx, service.ExtractInput{
		URL:         input.Body.URL,
		Content:     input.Body.Content,
		Instruction: input.Body.Instruction,
		ChunkSize:   input.Body.ChunkSize,
		Export:      input.Body.Export,
	})
	if err != nil {
		return nil, toHumaError(err)
	}

	resp := ExtractResponse{
		RunID:          out.RunID,
		URL:            out.URL,
		Text:           out.Text,
		ChunkCount:     out.ChunkCount,
		ExportLocation: out.ExportLocation,
	}
	if rep := out.Report; rep != nil {
		resp.Sections = rep.Sections
		resp.Failures = rep.Failures
		resp.CacheHits = rep.CacheHits
		resp.APICalls = rep.APICalls
		resp.StoppedAt = rep.StoppedAt
		resp.ElapsedMs = rep.Elapsed.Milliseconds()
	}
	return &ExtractOutput{Body: resp}, nil
}

// EstimateInput is the estimate request.
type EstimateInput struct {
	Body ExtractRequest
}

// EstimateResponse projects the cost of a run.
type EstimateResponse struct {
	Chunks        int     `json:"chunks"`
	Cached        int     `json:"cached"`
	APICalls      int     `json:"api_calls"`
	CachePercent  float64 `json:"cache_percent"`
	EstimatedSecs float64 `json:"estimated_seconds"`
	ContentLength int     `json:"content_length"`
}

// EstimateOutput wraps EstimateResponse.
type EstimateOutput struct {
	Body EstimateResponse
}

// Estimate reports how many chunks are cached and how long the rest will take.
func (h *ExtractionHandler) Estimate(ctx context.Context, input *EstimateInput) (*EstimateOutput, error) {
	est, err := h.svc.Estimate(ctx, service.EstimateInput{
		URL:         input.Body.URL,
		Content:     input.Body.Content,
		Instruction: input.Body.Instruction,
		ChunkSize:   input.Body.ChunkSize,
	})
	if err != nil {
		return nil, toHumaError(err)
	}
	return &EstimateOutput{Body: EstimateResponse{
		Chunks:        est.Total,
		Cached:        est.Cached,
		APICalls:      est.APICalls,
		CachePercent:  est.CachePercent(),
		EstimatedSecs: est.EstimatedDuration.Seconds(),
		ContentLength: est.ContentLength,
	}}, nil
}

// CheckOutput is the model connection check result.
type CheckOutput struct {
	Body *service.CheckResult
}

// Check sends a fixed prompt to the configured model. A failed check is
// still a 200; the body says why.
func (h *ExtractionHandler) Check(ctx context.Context, input *struct{}) (*CheckOutput, error) {
	return &CheckOutput{Body: h.svc.Check(ctx)}, nil
}

// ListRunsInput filters the run list.
type ListRunsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum number of runs to return"`
}

// ListRunsOutput is the most recent runs, newest first.
type ListRunsOutput struct {
	Body struct {
		Runs []*models.Run `json:"runs"`
	}
}

// ListRuns returns recorded runs.
func (h *ExtractionHandler) ListRuns(ctx context.Context, input *ListRunsInput) (*ListRunsOutput, error) {
	runs, err := h.svc.ListRuns(ctx, input.Limit)
	if err != nil {
		return nil, toHumaError(err)
	}
	out := &ListRunsOutput{}
	out.Body.Runs = runs
	if out.Body.Runs == nil {
		out.Body.Runs = []*models.Run{}
	}
	return out, nil
}

// GetRunInput selects one run.
type GetRunInput struct {
	ID string `path:"id" doc:"Run ID"`
}

// GetRunOutput is one recorded run.
type GetRunOutput struct {
	Body *models.Run
}

// GetRun returns one recorded run.
func (h *ExtractionHandler) GetRun(ctx context.Context, input *GetRunInput) (*GetRunOutput, error) {
	run, err := h.svc.GetRun(ctx, input.ID)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &GetRunOutput{Body: run}, nil
}

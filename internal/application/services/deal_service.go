package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/RevLensAI/revlens-go/internal/infrastructure/gateway"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
)

// UpstreamError is a classified upstream failure surfaced from a
// passthrough fetch. Handlers map it to the right response: timeouts and
// server errors are retryable, client errors surface generically.
type UpstreamError struct {
	Kind       gateway.OutcomeKind
	StatusCode int
	Endpoint   gateway.Endpoint
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %s (%d)", e.Endpoint, e.Kind, e.StatusCode)
}

// Retryable reports whether the user should be offered a retry.
func (e *UpstreamError) Retryable() bool {
	return e.Kind == gateway.OutcomeTimeout || e.Kind == gateway.OutcomeServerError
}

// Superseded reports whether a newer request won upstream.
func (e *UpstreamError) Superseded() bool {
	return e.Kind == gateway.OutcomeRetryableConflict
}

// DealService serves the deal-detail panel: per-deal timeline, info,
// contacts, concerns, event content, the company overview, the pipeline
// summary and customer Q&A. These are passthrough fetches — the upstream
// payloads render as-is, so they flow through untyped.
type DealService struct {
	caller Caller
	logger *logging.ChanneledLogger
}

// NewDealService creates a deal detail service.
func NewDealService(caller Caller, logger *logging.ChanneledLogger) *DealService {
	return &DealService{caller: caller, logger: logger}
}

// fetch runs a passthrough call and returns the raw JSON payload.
func (s *DealService) fetch(ctx context.Context, endpoint gateway.Endpoint, opts gateway.CallOptions) (json.RawMessage, error) {
	outcome, err := s.caller.Call(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	if !outcome.IsSuccess() {
		return nil, &UpstreamError{Kind: outcome.Kind, StatusCode: outcome.StatusCode, Endpoint: endpoint}
	}
	if !json.Valid(outcome.Body) {
		return nil, fmt.Errorf("%w from %s", gateway.ErrMalformedResponse, endpoint)
	}
	return json.RawMessage(outcome.Body), nil
}

func dealQuery(dealName string) gateway.CallOptions {
	return gateway.CallOptions{Query: url.Values{"deal": []string{dealName}}}
}

// Timeline returns the deal's activity timeline.
func (s *DealService) Timeline(ctx context.Context, dealName string) (json.RawMessage, error) {
	return s.fetch(ctx, gateway.EndpointDealTimeline, dealQuery(dealName))
}

// Info returns the deal's core record.
func (s *DealService) Info(ctx context.Context, dealName string) (json.RawMessage, error) {
	return s.fetch(ctx, gateway.EndpointDealInfo, dealQuery(dealName))
}

// Contacts returns the deal's contact/champion list.
func (s *DealService) Contacts(ctx context.Context, dealName string) (json.RawMessage, error) {
	return s.fetch(ctx, gateway.EndpointContacts, dealQuery(dealName))
}

// Concerns returns the concerns raised on the deal's calls.
func (s *DealService) Concerns(ctx context.Context, dealName string) (json.RawMessage, error) {
	return s.fetch(ctx, gateway.EndpointConcerns, dealQuery(dealName))
}

// EventContent returns the content of a single deal event.
func (s *DealService) EventContent(ctx context.Context, dealName, eventID string) (json.RawMessage, error) {
	return s.fetch(ctx, gateway.EndpointEventContent, gateway.CallOptions{
		Query: url.Values{"deal": []string{dealName}, "event": []string{eventID}},
	})
}

// CompanyOverview returns the overview for the deal's company.
func (s *DealService) CompanyOverview(ctx context.Context, company string) (json.RawMessage, error) {
	return s.fetch(ctx, gateway.EndpointCompanyOverview, gateway.CallOptions{
		Query: url.Values{"company": []string{company}},
	})
}

// PipelineSummary returns the whole-pipeline summary figures.
func (s *DealService) PipelineSummary(ctx context.Context) (json.RawMessage, error) {
	return s.fetch(ctx, gateway.EndpointPipelineSummary, gateway.CallOptions{})
}

// CustomerQARequest asks the prepared customer-facing Q&A for a deal.
type CustomerQARequest struct {
	DealName string `json:"dealName" binding:"required"`
	Question string `json:"question" binding:"required"`
}

// CustomerQA runs a customer Q&A question through the upstream.
func (s *DealService) CustomerQA(ctx context.Context, req CustomerQARequest) (json.RawMessage, error) {
	return s.fetch(ctx, gateway.EndpointCustomerQA, gateway.CallOptions{
		Method: "POST",
		Body:   req,
	})
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/AssemblyAI/assemblyai-go-sdk"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/gateway"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/RevLensAI/revlens-go/pkg/config"
)

// ChatService answers questions about deals. Plain chat questions go to the
// upstream chat endpoint; transcript questions load the call transcript
// upstream and run the question through Assembly AI LeMUR.
type ChatService struct {
	caller  Caller
	aaiKey  string
	timeout time.Duration
	logger  *logging.ChanneledLogger
}

// NewChatService creates a chat service. The Assembly AI key may be empty,
// in which case transcript Q&A reports unavailable.
func NewChatService(caller Caller, logger *logging.ChanneledLogger) *ChatService {
	return &ChatService{
		caller:  caller,
		aaiKey:  config.AAIAPIKey,
		timeout: config.AAITimeout,
		logger:  logger,
	}
}

// ChatRequest is a question scoped to an optional deal.
type ChatRequest struct {
	Question string `json:"question" binding:"required"`
	DealName string `json:"dealName,omitempty"`
}

// ChatAnswer is the assistant's reply.
type ChatAnswer struct {
	Answer string `json:"answer"`
}

// Ask sends a question to the upstream chat endpoint.
func (s *ChatService) Ask(ctx context.Context, req ChatRequest) (*ChatAnswer, error) {
	outcome, err := s.caller.Call(ctx, gateway.EndpointChat, gateway.CallOptions{
		Method: "POST",
		Body:   req,
	})
	if err != nil {
		return nil, err
	}
	if !outcome.IsSuccess() {
		return nil, fmt.Errorf("chat request failed: %s (%d)", outcome.Kind, outcome.StatusCode)
	}

	var answer ChatAnswer
	if err := outcome.Decode(&answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// transcriptPayload is the upstream transcript response.
type transcriptPayload struct {
	DealName string `json:"dealName"`
	Text     string `json:"text"`
}

// loadTranscript fetches the call transcript text for a deal.
func (s *ChatService) loadTranscript(ctx context.Context, dealName string) (string, error) {
	outcome, err := s.caller.Call(ctx, gateway.EndpointTranscript, gateway.CallOptions{
		Query: url.Values{"deal": []string{dealName}},
	})
	if err != nil {
		return "", err
	}
	if !outcome.IsSuccess() {
		return "", fmt.Errorf("transcript load failed: %s (%d)", outcome.Kind, outcome.StatusCode)
	}

	var payload transcriptPayload
	if err := outcome.Decode(&payload); err != nil {
		return "", err
	}
	if payload.Text == "" {
		return "", fmt.Errorf("no transcript recorded for deal %q", dealName)
	}
	return payload.Text, nil
}

// AskTranscript answers a question against the call transcript for a deal
// using Assembly AI LeMUR.
func (s *ChatService) AskTranscript(ctx context.Context, dealName, question string) (*ChatAnswer, error) {
	if s.aaiKey == "" {
		return nil, fmt.Errorf("transcript Q&A not configured")
	}

	start := time.Now()
	transcript, err := s.loadTranscript(ctx, dealName)
	if err != nil {
		return nil, err
	}

	client := assemblyai.NewClient(s.aaiKey)

	lemurCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var params assemblyai.LeMURTaskParams
	params.Prompt = assemblyai.String(question)
	params.InputText = assemblyai.String(transcript)
	params.FinalModel = assemblyai.LeMURModel("anthropic/claude-3-5-sonnet")
	params.MaxOutputSize = assemblyai.Int64(4000)
	params.Temperature = assemblyai.Float64(0.0)

	response, err := client.LeMUR.Task(lemurCtx, params)
	if err != nil {
		if s.logger != nil {
			s.logger.Chat().Error("LeMUR call failed", "deal", dealName, "error", err.Error(), "duration", time.Since(start))
		}
		return nil, fmt.Errorf("transcript Q&A failed: %w", err)
	}

	answer := ""
	if response.Response != nil {
		answer = *response.Response
		// Some prompts come back as a JSON-encoded string; unwrap those.
		var unwrapped string
		if err := json.Unmarshal([]byte(answer), &unwrapped); err == nil {
			answer = unwrapped
		}
	}

	if s.logger != nil {
		s.logger.Chat().Info("Transcript question answered", "deal", dealName, "duration", time.Since(start))
	}
	return &ChatAnswer{Answer: answer}, nil
}

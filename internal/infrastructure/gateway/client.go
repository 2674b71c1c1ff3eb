package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/google/uuid"
)

// Identity header names on the upstream wire.
const (
	HeaderBrowserID = "X-Browser-ID"
	HeaderSessionID = "X-Session-ID"
	HeaderRequestID = "X-Request-ID"
)

// IdentityProvider supplies the identifier pair for outbound calls and
// absorbs session rotations echoed back by the upstream.
type IdentityProvider interface {
	BrowserID() string
	SessionID() string
	AbsorbSessionHeader(header http.Header)
}

// CallOptions configures a single upstream call.
type CallOptions struct {
	Method string     // defaults to GET
	Query  url.Values // appended to the resolved path
	Body   any        // JSON-encoded when non-nil
}

// Client issues calls against the upstream analytics API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	identity   IdentityProvider
	logger     *logging.ChanneledLogger
}

// NewClient creates a gateway client for the given upstream base URL.
func NewClient(baseURL string, timeout time.Duration, identity IdentityProvider, logger *logging.ChanneledLogger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		identity:   identity,
		logger:     logger,
	}
}

// Call resolves the logical endpoint, attaches identity headers, issues the
// request and classifies the response. The session header is absorbed from
// every response, success or failure, before status dispatch. Expected
// statuses return typed outcomes; only transport failures return an error.
func (c *Client) Call(ctx context.Context, endpoint Endpoint, opts CallOptions) (Outcome, error) {
	start := time.Now()

	path, err := ResolvePath(endpoint)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}

	fullURL := c.baseURL + path
	if len(opts.Query) > 0 {
		fullURL += "?" + opts.Query.Encode()
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(HeaderBrowserID, c.identity.BrowserID())
	req.Header.Set(HeaderSessionID, c.identity.SessionID())
	req.Header.Set(HeaderRequestID, requestID)
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Every log line for this call carries the correlation id sent upstream.
	var callLog *slog.Logger
	if c.logger != nil {
		callLog = c.logger.WithRequest(logging.ChannelGateway, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if callLog != nil {
			callLog.Error("Upstream transport failure", "endpoint", string(endpoint), "method", method, "url", fullURL, "error", err, "duration", time.Since(start))
		}
		return Outcome{}, fmt.Errorf("upstream call failed: %w", err)
	}
	defer resp.Body.Close()

	// Server is authoritative for the session id, regardless of status.
	c.identity.AbsorbSessionHeader(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to read upstream response: %w", err)
	}

	outcome := Outcome{
		Kind:       classify(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
	}

	switch outcome.Kind {
	case OutcomeSuccess:
		if callLog != nil {
			callLog.Debug("Upstream call completed", "endpoint", string(endpoint), "status", resp.StatusCode, "duration", time.Since(start))
		}
	case OutcomeRetryableConflict:
		if callLog != nil {
			callLog.Debug("Upstream request superseded", "endpoint", string(endpoint), "duration", time.Since(start))
		}
	case OutcomeTimeout, OutcomeServerError:
		if callLog != nil {
			callLog.Warn("Upstream failure", "endpoint", string(endpoint), "status", resp.StatusCode, "duration", time.Since(start))
		}
	case OutcomeClientError:
		outcome.Message = string(body)
		// Full request context for diagnosis; the user only ever sees a
		// generic failure for this class.
		if callLog != nil {
			logger := callLog.With(
				"endpoint", string(endpoint),
				"status", resp.StatusCode,
				"method", method,
				"url", fullURL,
				"browserIdPresent", c.identity.BrowserID() != "",
				"sessionIdPresent", c.identity.SessionID() != "",
			)
			if resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(string(body)), "browser") {
				logger.Error("Upstream rejected call: missing or invalid browser identity", "body", string(body))
			} else {
				logger.Error("Upstream rejected call", "body", string(body))
			}
		}
	}

	return outcome, nil
}

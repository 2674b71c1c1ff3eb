// Package gateway provides the typed client for the upstream analytics API.
// It resolves logical endpoint names to versioned paths, attaches identity
// headers to every call, and classifies responses into tagged outcomes so
// that expected upstream statuses never surface as errors.
package gateway

import (
	"fmt"

	"github.com/RevLensAI/revlens-go/pkg/config"
)

// Endpoint is a logical upstream endpoint name.
type Endpoint string

const (
	EndpointStages           Endpoint = "stages"
	EndpointDealsByStage     Endpoint = "dealsByStage"
	EndpointPipelineSummary  Endpoint = "pipelineSummary"
	EndpointDealTimeline     Endpoint = "dealTimeline"
	EndpointDealInfo         Endpoint = "dealInfo"
	EndpointActivityCount    Endpoint = "activityCount"
	EndpointContacts         Endpoint = "contacts"
	EndpointEventContent     Endpoint = "eventContent"
	EndpointConcerns         Endpoint = "concerns"
	EndpointCompanyOverview  Endpoint = "companyOverview"
	EndpointChat             Endpoint = "chat"
	EndpointTranscript       Endpoint = "transcript"
	EndpointCustomerQA       Endpoint = "customerQA"
	EndpointDealInsights     Endpoint = "dealInsights"
	EndpointOwnerPerformance Endpoint = "ownerPerformance"
	EndpointHealthScores     Endpoint = "healthScores"
	EndpointSignalsGroup     Endpoint = "signalsGroup"
)

// route maps a logical endpoint to its upstream path. Which endpoints live
// under the v2 prefix is static configuration, not a runtime decision.
type route struct {
	path string
	v2   bool
}

var routes = map[Endpoint]route{
	EndpointStages:           {path: "/stages", v2: true},
	EndpointDealsByStage:     {path: "/deals", v2: true},
	EndpointPipelineSummary:  {path: "/pipeline/summary", v2: true},
	EndpointDealTimeline:     {path: "/deal/timeline", v2: false},
	EndpointDealInfo:         {path: "/deal/info", v2: false},
	EndpointActivityCount:    {path: "/deal/activity-count", v2: false},
	EndpointContacts:         {path: "/deal/contacts", v2: false},
	EndpointEventContent:     {path: "/deal/event-content", v2: false},
	EndpointConcerns:         {path: "/deal/concerns", v2: false},
	EndpointCompanyOverview:  {path: "/company/overview", v2: false},
	EndpointChat:             {path: "/chat", v2: true},
	EndpointTranscript:       {path: "/transcripts/load", v2: true},
	EndpointCustomerQA:       {path: "/customer-qa", v2: true},
	EndpointDealInsights:     {path: "/insights/aggregate", v2: true},
	EndpointOwnerPerformance: {path: "/owners/performance", v2: true},
	EndpointHealthScores:     {path: "/health-scores", v2: true},
	EndpointSignalsGroup:     {path: "/signals/group", v2: true},
}

// ResolvePath returns the full upstream path for a logical endpoint.
func ResolvePath(endpoint Endpoint) (string, error) {
	r, exists := routes[endpoint]
	if !exists {
		return "", fmt.Errorf("unknown endpoint: %s", endpoint)
	}
	prefix := config.UpstreamAPIPrefix
	if r.v2 {
		prefix = config.UpstreamV2Prefix
	}
	return prefix + r.path, nil
}

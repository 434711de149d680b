package usecases

import (
	"context"
	"net/http"
	"time"

	"github.com/sophialabs/plugmock/internal/domain/endpoint"
	"github.com/sophialabs/plugmock/internal/domain/platform"
	"github.com/sophialabs/plugmock/internal/domain/trace"
	"github.com/sophialabs/plugmock/internal/infrastructure/ports"
)

// Request is the part of an HTTP request the adapter decision depends on.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	// Target is where the request goes if the endpoint is in passthrough mode.
	// Empty means no real destination is known.
	Target string
}

// HandleRequestResult is the outcome of processing a mock request.
type HandleRequestResult struct {
	Outcome trace.Outcome
	// Status is zero for a passthrough with a known target: the real
	// destination decides it.
	Status     int
	Payload    any
	ScenarioID string
	TraceEntry trace.Entry
}

// Passthrough reports whether the request should be forwarded to Target.
func (r HandleRequestResult) Passthrough() bool {
	return r.Outcome == trace.OutcomePassthrough && r.Status == 0
}

// HandleRequestUseCase turns a platform resolution into an HTTP-shaped answer.
type HandleRequestUseCase struct {
	clock       ports.Clock
	rateLimiter ports.RateLimiter
	logger      ports.Logger
	traceBuf    *trace.RingBuffer
}

// NewHandleRequestUseCase creates a new use case.
func NewHandleRequestUseCase(
	clock ports.Clock,
	rateLimiter ports.RateLimiter,
	logger ports.Logger,
	traceBuf *trace.RingBuffer,
) *HandleRequestUseCase {
	return &HandleRequestUseCase{
		clock:       clock,
		rateLimiter: rateLimiter,
		logger:      logger,
		traceBuf:    traceBuf,
	}
}

// Execute decides how to answer a request routed to endpointID:
//
//  1. disabled endpoint: passthrough
//  2. raw query equal to a query response key: that payload with 200
//  3. rate limit policy exhausted: 429
//  4. latency policy: delay, cut short by ctx
//  5. platform resolution: the payload with the effective status, else 404
func (uc *HandleRequestUseCase) Execute(ctx context.Context, p *platform.Platform, endpointID string, req Request) HandleRequestResult {
	entry := trace.Entry{
		Timestamp:  uc.clock.Now(),
		Method:     req.Method,
		Path:       req.Path,
		Query:      req.RawQuery,
		EndpointID: endpointID,
	}
	if active, ok := p.ActiveScenario(); ok {
		entry.ActiveScenario = active
	}

	result := uc.decide(ctx, p, endpointID, req)

	entry.Outcome = result.Outcome
	entry.Status = result.Status
	entry.ScenarioID = result.ScenarioID
	if result.Outcome == trace.OutcomePassthrough {
		entry.Target = req.Target
	}
	result.TraceEntry = entry
	uc.traceBuf.Add(entry)

	return result
}

func (uc *HandleRequestUseCase) decide(ctx context.Context, p *platform.Platform, endpointID string, req Request) HandleRequestResult {
	if p.IsDisabled(endpointID) {
		if req.Target == "" {
			uc.logger.Warn("passthrough without target", "endpoint", endpointID, "path", req.Path)
			return HandleRequestResult{
				Outcome: trace.OutcomePassthrough,
				Status:  http.StatusBadGateway,
				Payload: map[string]any{"error": "passthrough_unavailable"},
			}
		}
		uc.logger.Debug("passthrough", "endpoint", endpointID, "target", req.Target)
		return HandleRequestResult{Outcome: trace.OutcomePassthrough}
	}

	ep, ok := p.Endpoint(endpointID)
	if !ok {
		return notFound()
	}

	if req.RawQuery != "" {
		if payload, ok := ep.QueryResponses[req.RawQuery]; ok {
			uc.logger.Debug("query response", "endpoint", endpointID, "query", req.RawQuery)
			return HandleRequestResult{
				Outcome: trace.OutcomeQuery,
				Status:  http.StatusOK,
				Payload: endpoint.Clone(payload),
			}
		}
	}

	if ep.Policy != nil && ep.Policy.RateLimit != nil {
		rl := ep.Policy.RateLimit
		key := rl.Key
		if key == "" {
			key = ep.ID
		}
		if !uc.rateLimiter.Allow(ctx, key, rl.Rate, rl.Burst) {
			uc.logger.Debug("rate limited", "endpoint", endpointID, "key", key)
			return HandleRequestResult{
				Outcome: trace.OutcomeRateLimited,
				Status:  http.StatusTooManyRequests,
				Payload: map[string]any{"error": "rate_limited", "message": "Too many requests"},
			}
		}
	}

	if ep.Policy != nil && ep.Policy.Latency != nil {
		lat := ep.Policy.Latency
		delay := time.Duration(lat.FixedMs) * time.Millisecond
		if lat.JitterMs > 0 {
			delay += uc.clock.Jitter(time.Duration(lat.JitterMs) * time.Millisecond)
		}
		if delay > 0 {
			if err := uc.clock.SleepContext(ctx, delay); err != nil {
				uc.logger.Debug("latency sleep cancelled", "endpoint", endpointID, "error", err)
			}
		}
	}

	res := p.Resolve(endpointID, 0)
	if !res.Found {
		return notFound()
	}
	return HandleRequestResult{
		Outcome:    trace.OutcomeMocked,
		Status:     res.Status,
		Payload:    res.Payload,
		ScenarioID: res.ScenarioID,
	}
}

func notFound() HandleRequestResult {
	return HandleRequestResult{
		Outcome: trace.OutcomeNotFound,
		Status:  http.StatusNotFound,
		Payload: map[string]any{"error": "Not found"},
	}
}

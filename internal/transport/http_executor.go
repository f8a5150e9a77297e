// Package transport provides the demo Executor and Subscriber used by
// cmd/server: an HTTP POST executor for queries/mutations, rate-limited
// the way the HTTP middleware throttles inbound traffic, and a
// WebSocket subscriber for subscriptions, which is not rate-limited.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/time/rate"

	"graphqlcache"
)

// HTTPExecutorConfig configures an HTTPExecutor.
type HTTPExecutorConfig struct {
	URL     string
	Headers map[string]string
	Client  *http.Client

	// RequestsPerSecond and Burst throttle outbound calls; zero disables
	// throttling.
	RequestsPerSecond float64
	Burst             int
}

// HTTPExecutor sends each query/mutation as a single POST of
// {"query": ..., "operationName": ...} to a GraphQL HTTP endpoint,
// matching the teacher's hand-rolled admin CLIs' request shape.
type HTTPExecutor struct {
	url     string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPExecutor builds an HTTPExecutor from cfg.
func NewHTTPExecutor(cfg HTTPExecutorConfig) *HTTPExecutor {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst == 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPExecutor{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  client,
		limiter: limiter,
	}
}

type graphQLRequestBody struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName,omitempty"`
}

type graphQLResponseBody struct {
	Data   map[string]interface{} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Resolve implements graphqlcache.Executor.
func (e *HTTPExecutor) Resolve(ctx context.Context, query string, _ *ast.OperationDefinition, opts graphqlcache.ExecutorOptions) (graphqlcache.ExecutorResult, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return graphqlcache.ExecutorResult{}, fmt.Errorf("transport: rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(graphQLRequestBody{Query: query, OperationName: opts.OperationName})
	if err != nil {
		return graphqlcache.ExecutorResult{}, fmt.Errorf("transport: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return graphqlcache.ExecutorResult{}, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return graphqlcache.ExecutorResult{}, fmt.Errorf("transport: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return graphqlcache.ExecutorResult{}, fmt.Errorf("transport: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return graphqlcache.ExecutorResult{}, fmt.Errorf("transport: endpoint returned status %d: %s", resp.StatusCode, raw)
	}

	var parsed graphQLResponseBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return graphqlcache.ExecutorResult{}, fmt.Errorf("transport: decode response: %w", err)
	}

	result := graphqlcache.ExecutorResult{Data: parsed.Data}
	for _, e := range parsed.Errors {
		result.Errors = append(result.Errors, fmt.Errorf("%s", e.Message))
	}
	return result, nil
}

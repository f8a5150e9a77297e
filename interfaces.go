// Package graphqlcache is an isomorphic GraphQL client that transparently
// caches query responses, the individual data entities reachable inside
// them, and the query-path metadata that lets partial responses be
// composed from cached fragments.
package graphqlcache

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"
)

// ExecutorOptions carries the per-call knobs an Executor or Subscriber
// needs: the variables already inlined by the request parser are not
// resent, but headers and the operation name are.
type ExecutorOptions struct {
	OperationName string
	Headers       map[string]string
}

// ExecutorResult is what an Executor or a single Subscriber message
// returns: the raw (un-normalised) response data plus any transport or
// GraphQL-level errors. Headers and CacheControl are carried along but
// the Client does not read them.
type ExecutorResult struct {
	Data         map[string]interface{}
	Headers      map[string]string
	CacheControl string
	Errors       []error
}

// Executor resolves one query or mutation document against the real
// GraphQL endpoint. It is the core's only collaborator for query and
// mutation fetches; HTTP batching, retries and timeouts are its concern,
// not the cache manager's.
type Executor interface {
	Resolve(ctx context.Context, query string, op *ast.OperationDefinition, opts ExecutorOptions) (ExecutorResult, error)
}

// Subscriber drives a subscription operation, invoking onMessage once
// per delivered message until the subscription ends or ctx is
// cancelled.
type Subscriber interface {
	Resolve(ctx context.Context, query string, op *ast.OperationDefinition, onMessage func(ExecutorResult) error, opts ExecutorOptions) error
}

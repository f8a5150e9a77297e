package graphqlcache

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"graphqlcache/internal/cachecore"
	"graphqlcache/internal/reqparser"
	"graphqlcache/pkg/gqlerr"
)

// Subscribe drives a subscription operation against the configured
// Subscriber, returning a channel that receives one Result per
// delivered message. The channel is closed when ctx is cancelled, the
// subscription ends, or the Subscriber returns an error. A message that
// carries errors is not resolved: an empty Result is sent in its place,
// its first error is emitted as EventError, and the subscription ends.
// Result has no error field; errors reach the caller only as
// EventError.
func (c *Client) Subscribe(ctx context.Context, query string, opts RequestOptions) (<-chan Result, error) {
	if c.subscriber == nil {
		return nil, gqlerr.NewConfigError("graphqlcache: no Subscriber configured")
	}

	parsed, err := reqparser.Parse(c.schema, query, reqparser.Options{
		Fragments:     opts.Fragments,
		Variables:     opts.Variables,
		OperationName: opts.OperationName,
	}, reqparser.RequestContext{HandlID: newHandlID(), OperationName: opts.OperationName})
	if err != nil {
		c.emit(Event{Type: EventError, Query: query, Err: err})
		return nil, err
	}
	if parsed.Operation.Operation != ast.Subscription {
		return nil, gqlerr.New(gqlerr.KindValidation, "Subscribe requires a subscription operation")
	}

	c.emit(Event{Type: EventRequest, OperationName: parsed.Operation.Name, Query: parsed.Query})

	out := make(chan Result, 1)
	go func() {
		defer close(out)

		err := c.subscriber.Resolve(ctx, parsed.Query, parsed.Operation, func(msg ExecutorResult) error {
			if len(msg.Errors) > 0 {
				err := gqlerr.NewExecutorError("subscriber returned errors", nil, msg.Errors[0])
				c.emit(Event{Type: EventError, OperationName: parsed.Operation.Name, Err: err})
				select {
				case out <- Result{}:
				case <-ctx.Done():
				}
				return err
			}

			resolved, err := c.mgr.ResolveSubscription(ctx, parsed.Operation, parsed.Document.Fragments, parsed.FieldTypeMap, msg.Data, cachecore.ResolveOptions{Tag: opts.Tag})
			if err != nil {
				c.emit(Event{Type: EventError, OperationName: parsed.Operation.Name, Err: err})
				return err
			}

			c.emit(Event{Type: EventSubscription, OperationName: parsed.Operation.Name, Data: resolved.Data, CacheMetadata: resolved.CacheMetadata})

			select {
			case out <- Result{Data: resolved.Data, CacheMetadata: resolved.CacheMetadata}:
			case <-ctx.Done():
			}
			return nil
		}, ExecutorOptions{OperationName: opts.OperationName, Headers: mergeHeaderMaps(c.headers, opts.Headers)})
		if err != nil {
			c.emit(Event{Type: EventError, OperationName: parsed.Operation.Name, Err: err})
		}
	}()

	return out, nil
}

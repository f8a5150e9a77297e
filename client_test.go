package graphqlcache

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"graphqlcache/internal/cachecore"
)

// fakeExecutor answers each Resolve call with the next entry of a
// caller-supplied queue of responses, recording every query it actually
// saw so tests can assert on fetch granularity.
type fakeExecutor struct {
	responses []map[string]interface{}
	calls     []string
}

func (f *fakeExecutor) Resolve(_ context.Context, query string, _ *ast.OperationDefinition, _ ExecutorOptions) (ExecutorResult, error) {
	f.calls = append(f.calls, query)
	if len(f.responses) == 0 {
		return ExecutorResult{}, nil
	}
	data := f.responses[0]
	f.responses = f.responses[1:]
	return ExecutorResult{Data: data}, nil
}

func newTestClientWithControls(t *testing.T, exec *fakeExecutor) *Client {
	t.Helper()
	c, err := Create(Config{
		Executor:    exec,
		NewInstance: true,
		DefaultCacheControls: cachecore.DefaultCacheControls{
			Query:        "max-age=300",
			Mutation:     "max-age=0, no-cache, no-store",
			Subscription: "max-age=0, no-cache, no-store",
		},
	})
	require.NoError(t, err)
	return c
}

func TestRequest_ColdQueryThenHotReplay(t *testing.T) {
	exec := &fakeExecutor{responses: []map[string]interface{}{
		{"user": map[string]interface{}{"id": "1", "name": "Ada"}},
	}}
	c := newTestClientWithControls(t, exec)
	ctx := context.Background()

	res1, err := c.Request(ctx, `{ user(id:"1") { id name } }`, RequestOptions{})
	require.NoError(t, err)
	assert.False(t, res1.FromCache)

	res2, err := c.Request(ctx, `{ user(id:"1") { id name } }`, RequestOptions{})
	require.NoError(t, err)
	assert.True(t, res2.FromCache)
	assert.Len(t, exec.calls, 1, "second identical request must not reach the executor")
}

func TestRequest_PartialSynthesisOnlyFetchesMissingField(t *testing.T) {
	exec := &fakeExecutor{responses: []map[string]interface{}{
		{"user": map[string]interface{}{"id": "1", "name": "Ada"}},
		{"user": map[string]interface{}{"email": "ada@example.com"}},
	}}
	c := newTestClientWithControls(t, exec)
	ctx := context.Background()

	_, err := c.Request(ctx, `{ user(id:"1") { id name } }`, RequestOptions{})
	require.NoError(t, err)

	res, err := c.Request(ctx, `{ user(id:"1") { id name email } }`, RequestOptions{})
	require.NoError(t, err)
	require.Len(t, exec.calls, 2)
	assert.NotContains(t, exec.calls[1], "name", "the second fetch must not re-request an already-cached field")
	assert.Contains(t, exec.calls[1], "email")

	data := res.Data.(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "Ada", data["name"])
	assert.Equal(t, "ada@example.com", data["email"])
}

func TestRequest_MutationDoesNotWriteResponseCache(t *testing.T) {
	exec := &fakeExecutor{responses: []map[string]interface{}{
		{"user": map[string]interface{}{"id": "1", "name": "Ada"}},
		{"updateUser": map[string]interface{}{"id": "1", "name": "Grace"}},
	}}
	c := newTestClientWithControls(t, exec)
	ctx := context.Background()

	_, err := c.Request(ctx, `{ user(id:"1") { id name } }`, RequestOptions{})
	require.NoError(t, err)

	_, err = c.Request(ctx, `mutation { updateUser(id:"1", name:"Grace") { id name } }`, RequestOptions{})
	require.NoError(t, err)

	size, err := c.GetCacheSize(ctx, "responses")
	require.NoError(t, err)
	assert.Equal(t, 1, size, "the mutation itself must not add a response-cache entry")
}

func TestClearCache_EmptiesEveryTier(t *testing.T) {
	exec := &fakeExecutor{responses: []map[string]interface{}{
		{"user": map[string]interface{}{"id": "1", "name": "Ada"}},
	}}
	c := newTestClientWithControls(t, exec)
	ctx := context.Background()

	_, err := c.Request(ctx, `{ user(id:"1") { id name } }`, RequestOptions{})
	require.NoError(t, err)

	require.NoError(t, c.ClearCache(ctx))

	for _, tier := range []string{"responses", "queryPaths", "dataEntities"} {
		size, err := c.GetCacheSize(ctx, tier)
		require.NoError(t, err)
		assert.Zero(t, size, tier)
	}
}

func TestRequest_SubscriptionOperationRejected(t *testing.T) {
	exec := &fakeExecutor{}
	c := newTestClientWithControls(t, exec)

	_, err := c.Request(context.Background(), `subscription { userUpdated { id } }`, RequestOptions{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Subscribe"))
}

package cachecore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"graphqlcache/internal/astutil"
	"graphqlcache/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := New(Config{
		Responses:    store.NewMemoryStore(store.MemoryConfig{}, nil),
		QueryPaths:   store.NewMemoryStore(store.MemoryConfig{}, nil),
		DataEntities: store.NewMemoryStore(store.MemoryConfig{}, nil),
		DefaultCacheControls: DefaultCacheControls{
			Query:        "max-age=300",
			Mutation:     "max-age=0, no-cache, no-store",
			Subscription: "max-age=0, no-cache, no-store",
		},
	})
	require.NoError(t, err)
	return mgr
}

func parseOp(t *testing.T, query string) (*ast.OperationDefinition, ast.FragmentDefinitionList) {
	t.Helper()
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	require.NoError(t, err)
	return doc.Operations[0], doc.Fragments
}

// userFieldTypeMap returns the fieldTypeMap entries needed to treat
// "user"/"updateUser" root fields as returning a User entity, keyed by
// hashKey the way reqparser would have recorded them from a real
// schema.
func userFieldTypeMap(rootField string) map[string]string {
	return map[string]string{rootField: "User"}
}

func TestScenario_ColdQueryHotReplay(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	op, fragments := parseOp(t, `{ user(id:"1") { id name } }`)
	data := map[string]interface{}{
		"user": map[string]interface{}{"id": "1", "name": "Ada"},
	}

	h := astutil.HashRequest(`{user(id:"1"){id name}}`)
	_, err := mgr.ResolveQuery(ctx, h, op, fragments, userFieldTypeMap("user"), data, ResolveOptions{})
	require.NoError(t, err)

	resp, ok, err := mgr.GetResponse(ctx, h)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, resp.Data)

	result, err := mgr.Analyse(ctx, op, fragments)
	require.NoError(t, err)
	assert.True(t, result.FullHit)
	assert.Equal(t, "Ada", result.CachedData.(map[string]interface{})["user"].(map[string]interface{})["name"])
}

func TestScenario_PartialSynthesis(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	op1, fragments1 := parseOp(t, `{ user(id:"1") { id name } }`)
	h1 := astutil.HashRequest(`{user(id:"1"){id name}}`)
	data1 := map[string]interface{}{"user": map[string]interface{}{"id": "1", "name": "Ada"}}
	_, err := mgr.ResolveQuery(ctx, h1, op1, fragments1, userFieldTypeMap("user"), data1, ResolveOptions{})
	require.NoError(t, err)

	op2, fragments2 := parseOp(t, `{ user(id:"1") { id name email } }`)
	result, err := mgr.Analyse(ctx, op2, fragments2)
	require.NoError(t, err)
	assert.True(t, result.Filtered)
	require.Len(t, result.UpdatedSelectionSet, 1)

	missingUser := result.UpdatedSelectionSet[0].(*ast.Field)
	var missingNames []string
	for _, sel := range missingUser.SelectionSet {
		missingNames = append(missingNames, sel.(*ast.Field).Name)
	}
	assert.Contains(t, missingNames, "email")
	assert.NotContains(t, missingNames, "name")
}

func TestScenario_MutationUpdatesEntityNotResponseCache(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	mutationOp, mutationFragments := parseOp(t, `mutation { updateUser(id:"1", name:"Grace") { id name } }`)
	mutationData := map[string]interface{}{
		"updateUser": map[string]interface{}{"id": "1", "name": "Grace"},
	}
	_, err := mgr.ResolveMutation(ctx, mutationOp, mutationFragments, userFieldTypeMap("updateUser"), mutationData, ResolveOptions{})
	require.NoError(t, err)

	size, err := mgr.GetCacheSize(ctx, "responses")
	require.NoError(t, err)
	assert.Zero(t, size, "mutation must never write the responses tier")

	entity, ok, err := mgr.lookupEntity(ctx, "User:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Grace", entity.Fields["name"])
}

func TestExportImportRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	op, fragments := parseOp(t, `{ user(id:"1") { id name } }`)
	h := astutil.HashRequest(`{user(id:"1"){id name}}`)
	data := map[string]interface{}{"user": map[string]interface{}{"id": "1", "name": "Ada"}}
	_, err := mgr.ResolveQuery(ctx, h, op, fragments, userFieldTypeMap("user"), data, ResolveOptions{})
	require.NoError(t, err)

	snap, err := mgr.Export(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, snap.Responses)
	require.NotEmpty(t, snap.QueryPaths)
	require.NotEmpty(t, snap.DataEntities)

	fresh := newTestManager(t)
	require.NoError(t, fresh.Import(ctx, snap))

	result, err := fresh.Analyse(ctx, op, fragments)
	require.NoError(t, err)
	assert.True(t, result.FullHit)
}

func TestClear_EmptiesAllTiers(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	op, fragments := parseOp(t, `{ user(id:"1") { id name } }`)
	h := astutil.HashRequest(`{user(id:"1"){id name}}`)
	data := map[string]interface{}{"user": map[string]interface{}{"id": "1", "name": "Ada"}}
	_, err := mgr.ResolveQuery(ctx, h, op, fragments, userFieldTypeMap("user"), data, ResolveOptions{})
	require.NoError(t, err)

	require.NoError(t, mgr.Clear(ctx))

	for _, tier := range []string{"responses", "queryPaths", "dataEntities"} {
		size, err := mgr.GetCacheSize(ctx, tier)
		require.NoError(t, err)
		assert.Zero(t, size, tier)
	}
}

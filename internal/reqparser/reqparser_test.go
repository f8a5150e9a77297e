package reqparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"graphqlcache/pkg/gqlerr"
)

func TestParse_InlinesVariablesIntoCanonicalQuery(t *testing.T) {
	res, err := Parse(nil, `query Get($id: ID!) { user(id: $id) { name } }`, Options{
		Variables: map[string]interface{}{"id": "42"},
	}, RequestContext{})
	require.NoError(t, err)
	assert.Contains(t, res.Query, `id: "42"`)
	assert.NotContains(t, res.Query, "$id")
}

func TestParse_InlinesExternalFragments(t *testing.T) {
	res, err := Parse(nil, `query { user(id: "1") { ...UserFields } }`, Options{
		Fragments: `fragment UserFields on User { name email }`,
	}, RequestContext{})
	require.NoError(t, err)
	assert.Contains(t, res.Query, "name")
	assert.Contains(t, res.Query, "email")
	assert.NotContains(t, res.Query, "...UserFields")
}

func TestParse_TwoOperationsWithoutNameIsTooMany(t *testing.T) {
	_, err := Parse(nil, `query A { a } query B { b }`, Options{}, RequestContext{})
	require.Error(t, err)
	var e *gqlerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, gqlerr.KindTooManyOps, e.Kind)
}

func TestParse_OperationNameSelectsAmongMultiple(t *testing.T) {
	res, err := Parse(nil, `query A { a } query B { b }`, Options{OperationName: "B"}, RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "B", res.Operation.Name)
	assert.Contains(t, res.Query, "b")
}

func TestParse_MissingVariableIsValidationError(t *testing.T) {
	_, err := Parse(nil, `query Get($id: ID!) { user(id: $id) { name } }`, Options{}, RequestContext{})
	require.Error(t, err)
	var e *gqlerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, gqlerr.KindValidation, e.Kind)
}

func TestParse_MutationOperationPreserved(t *testing.T) {
	res, err := Parse(nil, `mutation { createUser(name: "a") { id } }`, Options{}, RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, ast.Mutation, res.Operation.Operation)
}

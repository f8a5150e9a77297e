package astutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

func mustParse(t *testing.T, query string) *ast.QueryDocument {
	t.Helper()
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	require.NoError(t, err)
	return doc
}

func TestOperationDefinitions(t *testing.T) {
	doc := mustParse(t, `query Foo { a } mutation Bar { b }`)
	ops := OperationDefinitions(doc)
	require.Len(t, ops, 2)
	assert.Equal(t, "Foo", ops[0].Name)
	assert.Equal(t, "Bar", ops[1].Name)
}

func TestIterateChildFields_InlinesFragmentsAndInlineFragments(t *testing.T) {
	doc := mustParse(t, `
		query {
			a
			... on Query { b }
			...Frag
		}
		fragment Frag on Query { c }
	`)

	var names []string
	err := IterateChildFields(doc.Operations[0].SelectionSet, doc.Fragments, func(f *ast.Field) error {
		names = append(names, f.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestGetKeys_AliasAffectsDataKeyNotHashKey(t *testing.T) {
	doc := mustParse(t, `query { renamed: user(id: "1") { name } }`)
	var field *ast.Field
	_ = IterateChildFields(doc.Operations[0].SelectionSet, doc.Fragments, func(f *ast.Field) error {
		field = f
		return nil
	})
	require.NotNil(t, field)

	keys := GetKeys(field, RootKeys)
	assert.Equal(t, "renamed", keys.DataKey)
	assert.Equal(t, "user", keys.HashKey)
	assert.Contains(t, keys.CacheKey, "id:\"1\"")
	assert.Contains(t, keys.QueryKey, "id:\"1\"")
}

func TestKeys_IndexedAddsSuffixButLeavesHashKey(t *testing.T) {
	k := Keys{CacheKey: "users", DataKey: "users", HashKey: "users", QueryKey: "users"}
	idxd := k.Indexed(2)
	assert.Equal(t, "users[2]", idxd.CacheKey)
	assert.Equal(t, "users[2]", idxd.DataKey)
	assert.Equal(t, "users", idxd.HashKey)
	assert.Equal(t, "2", idxd.PropKey)
}

func TestSerialiseArguments_OrderIndependent(t *testing.T) {
	docA := mustParse(t, `query { f(a: 1, b: 2) }`)
	docB := mustParse(t, `query { f(b: 2, a: 1) }`)

	var fa, fb *ast.Field
	_ = IterateChildFields(docA.Operations[0].SelectionSet, docA.Fragments, func(f *ast.Field) error { fa = f; return nil })
	_ = IterateChildFields(docB.Operations[0].SelectionSet, docB.Fragments, func(f *ast.Field) error { fb = f; return nil })

	ka := GetKeys(fa, RootKeys)
	kb := GetKeys(fb, RootKeys)
	assert.Equal(t, ka.CacheKey, kb.CacheKey)
}

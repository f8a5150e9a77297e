package astutil

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// OperationDefinitions filters a document to its operation nodes,
// preserving document order.
func OperationDefinitions(doc *ast.QueryDocument) []*ast.OperationDefinition {
	ops := make([]*ast.OperationDefinition, 0, len(doc.Operations))
	ops = append(ops, doc.Operations...)
	return ops
}

// IterateChildFields yields only ast.Field nodes from a selection set,
// inlining inline fragments in place and resolving fragment spreads
// against the document's fragment table. cb may return an error to
// abort the walk early.
func IterateChildFields(set ast.SelectionSet, fragments ast.FragmentDefinitionList, cb func(*ast.Field) error) error {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if err := cb(s); err != nil {
				return err
			}
		case *ast.InlineFragment:
			if err := IterateChildFields(s.SelectionSet, fragments, cb); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			def := fragments.ForName(s.Name)
			if def == nil {
				continue
			}
			if err := IterateChildFields(def.SelectionSet, fragments, cb); err != nil {
				return err
			}
		}
	}
	return nil
}

// Keys is the set of coordinates the analyser and resolver use to
// address a single field occurrence: a query-shaped path, a
// response-shaped path, an argument/alias-independent identity path,
// and (inside list contexts) an integer list index.
type Keys struct {
	// CacheKey is the dot-joined path used to index CacheMetadata;
	// includes serialised arguments per segment. The query-paths store
	// is keyed by QueryKey instead.
	CacheKey string
	// DataKey is the dot-joined path following response shape (alias
	// where present), used to place values into the shaped response.
	DataKey string
	// HashKey is independent of alias, arguments and list index; used
	// for fieldTypeMap and entity field identity.
	HashKey string
	// Name is this field's own GraphQL field name (unqualified).
	Name string
	// PropKey is the list index as a string when this path segment was
	// produced by Indexed, otherwise empty.
	PropKey string
	// QueryKey is the dot-joined path following query (as-written)
	// shape: field name plus serialised arguments, no alias.
	QueryKey string
}

// RootKeys is the Keys value at the root of a query (before any field
// has been visited).
var RootKeys = Keys{}

// GetKeys computes the child Keys for field given the accumulated
// parent path.
func GetKeys(field *ast.Field, parent Keys) Keys {
	responseKey := field.Alias
	if responseKey == "" {
		responseKey = field.Name
	}

	argsSegment := field.Name
	if args := serialiseArguments(field.Arguments); args != "" {
		argsSegment = field.Name + "(" + args + ")"
	}

	return Keys{
		CacheKey: join(parent.CacheKey, argsSegment),
		DataKey:  join(parent.DataKey, responseKey),
		HashKey:  join(parent.HashKey, field.Name),
		Name:     field.Name,
		QueryKey: join(parent.QueryKey, argsSegment),
	}
}

// Indexed returns a copy of k addressed at list index idx: the
// CacheKey, DataKey and QueryKey each gain a "[idx]" suffix and PropKey
// is set. HashKey is left untouched since list position does not
// affect field/type identity.
func (k Keys) Indexed(idx int) Keys {
	suffix := "[" + strconv.Itoa(idx) + "]"
	k.CacheKey += suffix
	k.DataKey += suffix
	k.QueryKey += suffix
	k.PropKey = strconv.Itoa(idx)
	return k
}

// WithEntityID returns a copy of k with the resource id folded into the
// CacheKey segment, for a caller that knows a DataEntity's identity
// (GetKeys alone, operating on the AST only, cannot know this). The
// analyser and resolver do not call it.
func (k Keys) WithEntityID(typeName, id string) Keys {
	k.CacheKey += "#" + typeName + ":" + id
	return k
}

func join(parent, segment string) string {
	if parent == "" {
		return segment
	}
	return parent + "." + segment
}

func serialiseArguments(args ast.ArgumentList) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.Name+":"+serialiseValue(a.Value))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func serialiseValue(v *ast.Value) string {
	if v == nil {
		return "null"
	}
	switch v.Kind {
	case ast.ListValue:
		parts := make([]string, 0, len(v.Children))
		for _, c := range v.Children {
			parts = append(parts, serialiseValue(c.Value))
		}
		return "[" + strings.Join(parts, ",") + "]"
	case ast.ObjectValue:
		parts := make([]string, 0, len(v.Children))
		for _, c := range v.Children {
			parts = append(parts, c.Name+":"+serialiseValue(c.Value))
		}
		sort.Strings(parts)
		return "{" + strings.Join(parts, ",") + "}"
	case ast.StringValue, ast.BlockValue:
		return strconv.Quote(v.Raw)
	default:
		return v.Raw
	}
}

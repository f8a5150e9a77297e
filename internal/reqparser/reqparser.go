// Package reqparser implements component C: normalising a raw GraphQL
// request (query text, variables, an optional operation name and
// externally supplied fragments) into a single canonical, fragment-free,
// variable-free query string plus the AST and field-type table the
// cache manager needs to analyse and resolve it.
package reqparser

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"

	"graphqlcache/internal/astutil"
	"graphqlcache/pkg/gqlerr"
)

// maxOperations bounds how many operation definitions a document may
// contain when no OperationName is given; Parse rejects documents that
// exceed it. With an OperationName, the named operation is selected
// from any number of them.
const maxOperations = 1

// Options carries the caller-supplied pieces of a request that are not
// part of the query text itself.
type Options struct {
	// Fragments are extra fragment definitions to prepend to the query
	// before parsing, letting callers split reusable fragments out of
	// the query string they hand to Request.
	Fragments string
	// Variables are the runtime values substituted for $-prefixed
	// variable references in the query.
	Variables map[string]interface{}
	// OperationName selects which operation to execute when the
	// document defines more than one; required in that case.
	OperationName string
}

// RequestContext identifies the call this parse belongs to, for log
// correlation and for the cache manager's in-flight registries.
type RequestContext struct {
	HandlID       string
	Operation     ast.Operation
	OperationName string
}

// Result is the normalised output of Parse.
type Result struct {
	// Query is the canonical, fragment-free, variable-free query text.
	Query string
	// Document is the parsed (and, if a schema was supplied, validated)
	// AST of Query.
	Document *ast.QueryDocument
	// Operation is the single operation definition Query executes.
	Operation *ast.OperationDefinition
	// FieldTypeMap maps each field's hash key (astutil.Keys.HashKey) to
	// its GraphQL type name, as declared by the schema. Empty when no
	// schema was supplied.
	FieldTypeMap map[string]string
}

// Parse normalises query (plus opts.Fragments) into a Result. schema is
// optional: when nil, the document is parsed but not validated and
// FieldTypeMap is left empty, matching the spec's treatment of schema
// validation as an external collaborator the core never depends on.
func Parse(schema *ast.Schema, query string, opts Options, reqCtx RequestContext) (*Result, error) {
	source := query
	if strings.TrimSpace(opts.Fragments) != "" {
		source = opts.Fragments + "\n" + query
	}

	doc, parseErr := parser.ParseQuery(&ast.Source{Input: source, Name: "request"})
	if parseErr != nil {
		return nil, gqlerr.Wrap(gqlerr.KindParse, "failed to parse query", parseErr)
	}

	if len(doc.Operations) == 0 {
		return nil, gqlerr.New(gqlerr.KindParse, "query contains no operations")
	}
	if len(doc.Operations) > maxOperations && opts.OperationName == "" {
		return nil, gqlerr.NewTooManyOperationsError(len(doc.Operations))
	}

	op, err := selectOperation(doc.Operations, opts.OperationName)
	if err != nil {
		return nil, err
	}

	if err := inlineVariables(op.SelectionSet, doc.Fragments, opts.Variables); err != nil {
		return nil, gqlerr.Wrap(gqlerr.KindValidation, "failed to inline variables", err)
	}
	op.VariableDefinitions = nil

	if err := inlineFragmentSpreads(op.SelectionSet, doc.Fragments); err != nil {
		return nil, gqlerr.Wrap(gqlerr.KindValidation, "failed to inline fragments", err)
	}

	canonicalDoc := &ast.QueryDocument{Operations: ast.OperationList{op}}

	fieldTypeMap := map[string]string{}
	if schema != nil {
		if errs := validator.Validate(schema, canonicalDoc); len(errs) > 0 {
			return nil, gqlerr.NewValidationError("query failed schema validation", errs)
		}
		if err := recordFieldTypes(schema, op, fieldTypeMap); err != nil {
			return nil, gqlerr.Wrap(gqlerr.KindType, "failed to resolve field types", err)
		}
	}

	var sb strings.Builder
	formatter.NewFormatter(&sb).FormatQueryDocument(canonicalDoc)

	return &Result{
		Query:        sb.String(),
		Document:     canonicalDoc,
		Operation:    op,
		FieldTypeMap: fieldTypeMap,
	}, nil
}

func selectOperation(ops ast.OperationList, name string) (*ast.OperationDefinition, error) {
	if name == "" {
		return ops[0], nil
	}
	for _, op := range ops {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, gqlerr.Newf(gqlerr.KindParse, "operation %q not found in query", name)
}

// inlineVariables replaces every ast.Variable value in set with its
// runtime value from vars, walking into list and object values, so the
// canonical query holds no $-references and hashes identically for
// requests that differ only in variable binding but not value.
func inlineVariables(set ast.SelectionSet, fragments ast.FragmentDefinitionList, vars map[string]interface{}) error {
	return astutil.IterateChildFields(set, fragments, func(f *ast.Field) error {
		for _, arg := range f.Arguments {
			if err := inlineValue(arg.Value, vars); err != nil {
				return err
			}
		}
		if f.SelectionSet != nil {
			return inlineVariables(f.SelectionSet, fragments, vars)
		}
		return nil
	})
}

func inlineValue(v *ast.Value, vars map[string]interface{}) error {
	if v == nil {
		return nil
	}
	if v.Kind == ast.Variable {
		val, ok := vars[v.Raw]
		if !ok {
			return fmt.Errorf("no value supplied for variable $%s", v.Raw)
		}
		lit, err := literalValue(val)
		if err != nil {
			return err
		}
		*v = *lit
		return nil
	}
	for _, child := range v.Children {
		if err := inlineValue(child.Value, vars); err != nil {
			return err
		}
	}
	return nil
}

// literalValue converts a Go runtime value into the ast.Value literal
// form that would have produced it if written directly in the query.
func literalValue(val interface{}) (*ast.Value, error) {
	switch x := val.(type) {
	case nil:
		return &ast.Value{Kind: ast.NullValue, Raw: "null"}, nil
	case string:
		return &ast.Value{Kind: ast.StringValue, Raw: x}, nil
	case bool:
		return &ast.Value{Kind: ast.BooleanValue, Raw: fmt.Sprintf("%v", x)}, nil
	case int:
		return &ast.Value{Kind: ast.IntValue, Raw: fmt.Sprintf("%d", x)}, nil
	case int64:
		return &ast.Value{Kind: ast.IntValue, Raw: fmt.Sprintf("%d", x)}, nil
	case float64:
		return &ast.Value{Kind: ast.FloatValue, Raw: fmt.Sprintf("%v", x)}, nil
	case []interface{}:
		children := make(ast.ChildValueList, 0, len(x))
		for _, item := range x {
			lit, err := literalValue(item)
			if err != nil {
				return nil, err
			}
			children = append(children, &ast.ChildValue{Value: lit})
		}
		return &ast.Value{Kind: ast.ListValue, Children: children}, nil
	case map[string]interface{}:
		children := make(ast.ChildValueList, 0, len(x))
		for k, item := range x {
			lit, err := literalValue(item)
			if err != nil {
				return nil, err
			}
			children = append(children, &ast.ChildValue{Name: k, Value: lit})
		}
		return &ast.Value{Kind: ast.ObjectValue, Children: children}, nil
	default:
		return nil, fmt.Errorf("unsupported variable value type %T", val)
	}
}

// inlineFragmentSpreads replaces every fragment spread in set, in place,
// with an inline fragment carrying the fragment's type condition and
// selections, so the canonical query no longer refers to fragment
// definitions. Inline fragments are kept as inline fragments; they are
// not flattened into their parent selection set.
func inlineFragmentSpreads(set ast.SelectionSet, fragments ast.FragmentDefinitionList) error {
	for i, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if s.SelectionSet != nil {
				if err := inlineFragmentSpreads(s.SelectionSet, fragments); err != nil {
					return err
				}
			}
		case *ast.InlineFragment:
			if err := inlineFragmentSpreads(s.SelectionSet, fragments); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			def := fragments.ForName(s.Name)
			if def == nil {
				return fmt.Errorf("unknown fragment %q", s.Name)
			}
			if err := inlineFragmentSpreads(def.SelectionSet, fragments); err != nil {
				return err
			}
			set[i] = &ast.InlineFragment{
				TypeCondition:    def.TypeCondition,
				Directives:       s.Directives,
				SelectionSet:     def.SelectionSet,
				ObjectDefinition: def.ObjectDefinition,
				Position:         s.Position,
			}
		}
	}
	return nil
}

// recordFieldTypes walks op against schema, recording each field's
// declared GraphQL type name under its hash key.
func recordFieldTypes(schema *ast.Schema, op *ast.OperationDefinition, out map[string]string) error {
	var rootName string
	switch op.Operation {
	case ast.Mutation:
		rootName = schema.Mutation.Name
	case ast.Subscription:
		rootName = schema.Subscription.Name
	default:
		rootName = schema.Query.Name
	}
	rootType := schema.Types[rootName]
	if rootType == nil {
		return fmt.Errorf("schema has no root type for operation %q", op.Operation)
	}
	return walkFieldTypes(schema, rootType, op.SelectionSet, astutil.RootKeys, out)
}

func walkFieldTypes(schema *ast.Schema, parentType *ast.Definition, set ast.SelectionSet, parent astutil.Keys, out map[string]string) error {
	return astutil.IterateChildFields(set, nil, func(f *ast.Field) error {
		fieldDef := parentType.Fields.ForName(f.Name)
		if fieldDef == nil {
			return nil
		}
		keys := astutil.GetKeys(f, parent)
		out[keys.HashKey] = fieldDef.Type.Name()

		if f.SelectionSet == nil {
			return nil
		}
		nextType := schema.Types[fieldDef.Type.Name()]
		if nextType == nil {
			return nil
		}
		return walkFieldTypes(schema, nextType, f.SelectionSet, keys, out)
	})
}

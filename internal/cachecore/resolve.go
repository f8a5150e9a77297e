package cachecore

import (
	"context"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"graphqlcache/internal/astutil"
	"graphqlcache/internal/cacheability"
)

// queryPathValue is what gets stored in the query-paths tier: the
// concrete value (scalar, entity ref, or list of refs/scalars) observed
// at a path, plus the Cacheability that governed the write, so a later
// analyse can independently judge freshness at that exact path.
type queryPathValue struct {
	Value        interface{}
	Cacheability cacheability.Cacheability
}

// ResolveQuery writes a freshly-fetched (or partially-fetched) query
// response into all three tiers and returns the shaped data plus the
// CacheMetadata accumulated for it. Per spec this is the only resolve
// variant that also writes the responses tier.
func (m *Manager) ResolveQuery(ctx context.Context, h astutil.Fingerprint, op *ast.OperationDefinition, fragments ast.FragmentDefinitionList, fieldTypeMap map[string]string, data map[string]interface{}, opts ResolveOptions) (*ResolveResult, error) {
	meta := CacheMetadata{}
	if err := m.resolveSelectionSet(ctx, op.SelectionSet, fragments, astutil.RootKeys, data, "", fieldTypeMap, meta, m.defaultCacheControls.Query, opts.Tag); err != nil {
		return nil, fmt.Errorf("cachecore: resolve query: %w", err)
	}

	top := m.cacheabilityForType("", m.defaultCacheControls.Query)
	meta[QueryKey] = top

	if err := m.responses.Set(ctx, h.String(), Response{Data: data, CacheMetadata: meta, Tag: opts.Tag}, time.Duration(top.Metadata().TTL)*time.Second); err != nil {
		return nil, fmt.Errorf("cachecore: write response %s: %w", h, err)
	}

	return &ResolveResult{Data: data, CacheMetadata: meta}, nil
}

// ResolveMutation writes entity and query-path updates for a mutation
// response but never touches the responses tier, and defaults to a
// no-store directive unless overridden.
func (m *Manager) ResolveMutation(ctx context.Context, op *ast.OperationDefinition, fragments ast.FragmentDefinitionList, fieldTypeMap map[string]string, data map[string]interface{}, opts ResolveOptions) (*ResolveResult, error) {
	directive := m.defaultCacheControls.Mutation
	if directive == "" {
		directive = cacheability.NoStoreCacheability().String()
	}
	meta := CacheMetadata{}
	if err := m.resolveSelectionSet(ctx, op.SelectionSet, fragments, astutil.RootKeys, data, "", fieldTypeMap, meta, directive, opts.Tag); err != nil {
		return nil, fmt.Errorf("cachecore: resolve mutation: %w", err)
	}
	meta[QueryKey] = m.cacheabilityForType("", directive)
	return &ResolveResult{Data: data, CacheMetadata: meta}, nil
}

// ResolveSubscription has identical cache effects to ResolveMutation:
// each delivered message updates entities and query-paths but never the
// response cache.
func (m *Manager) ResolveSubscription(ctx context.Context, op *ast.OperationDefinition, fragments ast.FragmentDefinitionList, fieldTypeMap map[string]string, data map[string]interface{}, opts ResolveOptions) (*ResolveResult, error) {
	directive := m.defaultCacheControls.Subscription
	if directive == "" {
		directive = cacheability.NoStoreCacheability().String()
	}
	meta := CacheMetadata{}
	if err := m.resolveSelectionSet(ctx, op.SelectionSet, fragments, astutil.RootKeys, data, "", fieldTypeMap, meta, directive, opts.Tag); err != nil {
		return nil, fmt.Errorf("cachecore: resolve subscription: %w", err)
	}
	meta[QueryKey] = m.cacheabilityForType("", directive)
	return &ResolveResult{Data: data, CacheMetadata: meta}, nil
}

// resolveSelectionSet walks set against dataNode (the response object
// at this level), writing query-paths and (when parentEntityKey is
// non-empty) merging fields into the enclosing data-entity.
func (m *Manager) resolveSelectionSet(ctx context.Context, set ast.SelectionSet, fragments ast.FragmentDefinitionList, parentKeys astutil.Keys, dataNode interface{}, parentEntityKey string, fieldTypeMap map[string]string, meta CacheMetadata, defaultDirective string, tag string) error {
	dataMap, _ := dataNode.(map[string]interface{})

	return astutil.IterateChildFields(set, fragments, func(field *ast.Field) error {
		keys := astutil.GetKeys(field, parentKeys)
		responseKey := field.Alias
		if responseKey == "" {
			responseKey = field.Name
		}
		var value interface{}
		if dataMap != nil {
			value = dataMap[responseKey]
		}

		if field.SelectionSet == nil {
			c := m.cacheabilityForType(fieldTypeMap[keys.HashKey], defaultDirective)
			if err := m.writeQueryPath(ctx, keys.QueryKey, value, c); err != nil {
				return err
			}
			if parentEntityKey != "" {
				if err := m.mergeEntityField(ctx, parentEntityKey, field.Name, value); err != nil {
					return err
				}
			}
			return nil
		}

		typeName := fieldTypeMap[keys.HashKey]
		c := m.cacheabilityForType(typeName, defaultDirective)
		meta[keys.CacheKey] = c

		switch v := value.(type) {
		case []interface{}:
			refs := make([]interface{}, len(v))
			for i, item := range v {
				idxKeys := keys.Indexed(i)
				ref, err := m.resolveObjectNode(ctx, field.SelectionSet, fragments, idxKeys, item, typeName, fieldTypeMap, meta, defaultDirective, tag)
				if err != nil {
					return err
				}
				refs[i] = ref
			}
			if err := m.writeQueryPath(ctx, keys.QueryKey, refs, c); err != nil {
				return err
			}
			if parentEntityKey != "" {
				if err := m.mergeEntityField(ctx, parentEntityKey, field.Name, refs); err != nil {
					return err
				}
			}
		default:
			ref, err := m.resolveObjectNode(ctx, field.SelectionSet, fragments, keys, value, typeName, fieldTypeMap, meta, defaultDirective, tag)
			if err != nil {
				return err
			}
			if err := m.writeQueryPath(ctx, keys.QueryKey, ref, c); err != nil {
				return err
			}
			if parentEntityKey != "" {
				if err := m.mergeEntityField(ctx, parentEntityKey, field.Name, ref); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// resolveObjectNode recurses into a single composite value (not a list
// element wrapper), returning the reference to record in the parent
// (the entity key when value carries an id, otherwise the raw value
// denormalised in place).
func (m *Manager) resolveObjectNode(ctx context.Context, set ast.SelectionSet, fragments ast.FragmentDefinitionList, keys astutil.Keys, value interface{}, typeName string, fieldTypeMap map[string]string, meta CacheMetadata, defaultDirective string, tag string) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	obj, ok := value.(map[string]interface{})
	if !ok {
		return value, nil
	}

	entityKey := ""
	if typeName != "" {
		if id, hasID := obj[m.resourceKey]; hasID && id != nil {
			entityKey = EntityKey(typeName, fmt.Sprint(id))
		}
	}

	if err := m.resolveSelectionSet(ctx, set, fragments, keys, obj, entityKey, fieldTypeMap, meta, defaultDirective, tag); err != nil {
		return nil, err
	}

	if entityKey != "" {
		return entityKey, nil
	}
	return obj, nil
}

func (m *Manager) writeQueryPath(ctx context.Context, queryKey string, value interface{}, c cacheability.Cacheability) error {
	key := astutil.PathHash(queryKey)
	return m.queryPaths.Set(ctx, key, queryPathValue{Value: value, Cacheability: c}, time.Duration(c.Metadata().TTL)*time.Second)
}

func (m *Manager) mergeEntityField(ctx context.Context, entityKey, fieldName string, value interface{}) error {
	typeName, id := splitEntityKey(entityKey)

	entity := DataEntity{TypeName: typeName, ID: id, Fields: map[string]interface{}{}}
	if entry, ok, err := m.dataEntities.Get(ctx, entityKey); err != nil {
		return err
	} else if ok {
		if existing, ok := entry.Value.(DataEntity); ok {
			entity = existing
		}
	}

	if entity.Fields == nil {
		entity.Fields = map[string]interface{}{}
	}
	entity.Fields[fieldName] = value

	return m.dataEntities.Set(ctx, entityKey, entity, 0)
}

func splitEntityKey(key string) (typeName, id string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

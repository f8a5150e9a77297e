package cachecore

import (
	"context"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"graphqlcache/internal/astutil"
)

// Analyse decides whether op can be served from cache, fully, partially
// or not at all, and if partially, returns the pruned selection set to
// forward to the external executor. The responses-tier full-hit check
// is the orchestrator's job (it owns H and the response record); Analyse
// implements the per-field walk of §4.D.1 steps 2-4.
func (m *Manager) Analyse(ctx context.Context, op *ast.OperationDefinition, fragments ast.FragmentDefinitionList) (*AnalyseResult, error) {
	meta := CacheMetadata{}
	data, missingFields, anyCached, anyMissing, err := m.analyseFromRoot(ctx, op.SelectionSet, fragments, astutil.RootKeys, meta)
	if err != nil {
		return nil, err
	}

	result := &AnalyseResult{
		CachedData:          data,
		CacheMetadata:       meta,
		Filtered:            anyCached && anyMissing,
		FullHit:             anyCached && !anyMissing,
		UpdatedSelectionSet: missingFields,
	}
	return result, nil
}

// analyseFromRoot walks a selection set whose fields are not already
// inside a known entity, resolving each field's identity via the
// query-paths store.
func (m *Manager) analyseFromRoot(ctx context.Context, set ast.SelectionSet, fragments ast.FragmentDefinitionList, parentKeys astutil.Keys, meta CacheMetadata) (map[string]interface{}, ast.SelectionSet, bool, bool, error) {
	data := map[string]interface{}{}
	var missingSelections ast.SelectionSet
	anyCached, anyMissing := false, false

	err := astutil.IterateChildFields(set, fragments, func(field *ast.Field) error {
		keys := astutil.GetKeys(field, parentKeys)
		responseKey := field.Alias
		if responseKey == "" {
			responseKey = field.Name
		}

		qv, ok, err := m.lookupQueryPath(ctx, keys.QueryKey)
		if err != nil {
			return err
		}

		if field.SelectionSet == nil {
			if ok {
				data[responseKey] = qv
				anyCached = true
			} else {
				missingSelections = append(missingSelections, field)
				anyMissing = true
			}
			return nil
		}

		if !ok {
			missingSelections = append(missingSelections, field)
			anyMissing = true
			return nil
		}

		value, missingChild, fieldCached, fieldMissing, err := m.analyseComposite(ctx, field.SelectionSet, fragments, keys, qv, meta)
		if err != nil {
			return err
		}
		if fieldCached {
			data[responseKey] = value
			anyCached = true
		}
		if fieldMissing {
			missingSelections = append(missingSelections, rewriteField(field, missingChild))
			anyMissing = true
		}
		return nil
	})
	return data, missingSelections, anyCached, anyMissing, err
}

// analyseComposite interprets identity (whatever was found at this
// field's query-path: an entity ref, a list of refs/values, a raw
// denormalised object, or nil) and recurses accordingly.
func (m *Manager) analyseComposite(ctx context.Context, set ast.SelectionSet, fragments ast.FragmentDefinitionList, keys astutil.Keys, identity interface{}, meta CacheMetadata) (value interface{}, missingChild ast.SelectionSet, cached bool, missing bool, err error) {
	switch v := identity.(type) {
	case nil:
		return nil, nil, true, false, nil

	case string:
		entity, ok, err := m.lookupEntity(ctx, v)
		if err != nil {
			return nil, nil, false, false, err
		}
		if !ok {
			return nil, nil, false, true, nil
		}
		return m.analyseFromEntity(ctx, set, fragments, keys, entity, meta)

	case []interface{}:
		results := make([]interface{}, 0, len(v))
		missingUnion := map[string]*ast.Field{}
		anyElementMissing := false
		wholeElementMissing := false
		for i, item := range v {
			idxKeys := keys.Indexed(i)
			elemValue, elemMissing, elemCached, elemIsMissing, err := m.analyseComposite(ctx, set, fragments, idxKeys, item, meta)
			if err != nil {
				return nil, nil, false, false, err
			}
			if elemIsMissing {
				anyElementMissing = true
				if elemMissing == nil {
					wholeElementMissing = true
				}
				for _, sel := range elemMissing {
					if f, ok := sel.(*ast.Field); ok {
						missingUnion[f.Name] = f
					}
				}
				continue
			}
			if elemCached {
				results = append(results, elemValue)
			}
		}
		if wholeElementMissing {
			return nil, nil, false, true, nil
		}
		if anyElementMissing {
			union := make(ast.SelectionSet, 0, len(missingUnion))
			for _, f := range missingUnion {
				union = append(union, f)
			}
			return nil, union, false, true, nil
		}
		return results, nil, true, false, nil

	case map[string]interface{}:
		data, missingFromRaw := projectRawMap(set, fragments, v)
		if len(missingFromRaw) > 0 {
			return data, missingFromRaw, len(data) > 0, true, nil
		}
		return data, nil, true, false, nil

	default:
		return v, nil, true, false, nil
	}
}

// analyseFromEntity reads children directly from the entity's Fields,
// per §4.D.1: once identity is known, the DataEntity is the source of
// truth rather than further query-path lookups.
func (m *Manager) analyseFromEntity(ctx context.Context, set ast.SelectionSet, fragments ast.FragmentDefinitionList, parentKeys astutil.Keys, entity DataEntity, meta CacheMetadata) (interface{}, ast.SelectionSet, bool, bool, error) {
	data := map[string]interface{}{}
	var missingSelections ast.SelectionSet
	anyCached, anyMissing := false, false

	err := astutil.IterateChildFields(set, fragments, func(field *ast.Field) error {
		keys := astutil.GetKeys(field, parentKeys)
		responseKey := field.Alias
		if responseKey == "" {
			responseKey = field.Name
		}

		raw, present := entity.Fields[field.Name]
		if !present {
			missingSelections = append(missingSelections, field)
			anyMissing = true
			return nil
		}

		if field.SelectionSet == nil {
			data[responseKey] = raw
			anyCached = true
			return nil
		}

		value, missingChild, fieldCached, fieldMissing, err := m.analyseComposite(ctx, field.SelectionSet, fragments, keys, raw, meta)
		if err != nil {
			return err
		}
		if fieldCached {
			data[responseKey] = value
			anyCached = true
		}
		if fieldMissing {
			missingSelections = append(missingSelections, rewriteField(field, missingChild))
			anyMissing = true
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, false, err
	}
	return data, missingSelections, anyCached, anyMissing, nil
}

func (m *Manager) lookupQueryPath(ctx context.Context, queryKey string) (interface{}, bool, error) {
	key := astutil.PathHash(queryKey)
	entry, ok, err := m.queryPaths.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	qv, ok := entry.Value.(queryPathValue)
	if !ok {
		return nil, false, nil
	}
	if !qv.Cacheability.IsValid(time.Now()) {
		return nil, false, nil
	}
	return qv.Value, true, nil
}

func (m *Manager) lookupEntity(ctx context.Context, entityKey string) (DataEntity, bool, error) {
	entry, ok, err := m.dataEntities.Get(ctx, entityKey)
	if err != nil || !ok {
		return DataEntity{}, false, err
	}
	entity, ok := entry.Value.(DataEntity)
	return entity, ok, nil
}

// projectRawMap reads exactly the requested selection out of a raw,
// previously-denormalised (non-entity) object, reporting any requested
// field that was not present when the object was stored.
func projectRawMap(set ast.SelectionSet, fragments ast.FragmentDefinitionList, raw map[string]interface{}) (map[string]interface{}, ast.SelectionSet) {
	data := map[string]interface{}{}
	var missing ast.SelectionSet
	_ = astutil.IterateChildFields(set, fragments, func(field *ast.Field) error {
		responseKey := field.Alias
		if responseKey == "" {
			responseKey = field.Name
		}
		val, present := raw[responseKey]
		if !present {
			missing = append(missing, field)
			return nil
		}
		if field.SelectionSet == nil {
			data[responseKey] = val
			return nil
		}
		if sub, ok := val.(map[string]interface{}); ok {
			subData, subMissing := projectRawMap(field.SelectionSet, fragments, sub)
			data[responseKey] = subData
			missing = append(missing, subMissing...)
			return nil
		}
		data[responseKey] = val
		return nil
	})
	return data, missing
}

// rewriteField returns a copy of field pruned to only its missing
// children; when missing is nil (a leaf, or a composite with no missing
// children at all) it returns field unchanged.
func rewriteField(field *ast.Field, missing ast.SelectionSet) *ast.Field {
	if missing == nil {
		return field
	}
	cp := *field
	cp.SelectionSet = missing
	return &cp
}

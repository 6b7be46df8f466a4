package translate

var droppedSchemaKeys = map[string]bool{
	"$schema":     true,
	"$id":         true,
	"$defs":       true,
	"definitions": true,
	"examples":    true,
	"example":     true,
	"deprecated":  true,
	"readOnly":    true,
	"writeOnly":   true,
}

// sanitizeSchema recursively bounds an arbitrary caller-supplied JSON
// schema: depth limit 6, arrays capped at 32 items, objects at 96 entries,
// known noise keys dropped, and strings truncated (description/title to
// 512 chars, everything else to 1024). An empty result substitutes a
// minimal permissive object schema so the upstream always receives
// something parseable.
func sanitizeSchema(schema map[string]interface{}, depth int) map[string]interface{} {
	out := sanitizeObject(schema, depth)
	if len(out) == 0 {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return out
}

func sanitizeObject(m map[string]interface{}, depth int) map[string]interface{} {
	if depth >= schemaMaxDepth {
		return map[string]interface{}{}
	}

	out := make(map[string]interface{}, len(m))
	count := 0
	for k, v := range m {
		if count >= schemaMaxObjectKeys {
			break
		}
		if droppedSchemaKeys[k] {
			continue
		}
		out[k] = sanitizeValue(k, v, depth+1)
		count++
	}
	return out
}

func sanitizeValue(key string, v interface{}, depth int) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if depth >= schemaMaxDepth {
			return map[string]interface{}{}
		}
		return sanitizeObject(val, depth)
	case []interface{}:
		if depth >= schemaMaxDepth {
			return []interface{}{}
		}
		capped := val
		if len(capped) > schemaMaxArrayItems {
			capped = capped[:schemaMaxArrayItems]
		}
		out := make([]interface{}, len(capped))
		for i, item := range capped {
			out[i] = sanitizeValue(key, item, depth+1)
		}
		return out
	case string:
		limit := schemaLongStrLen
		if key == "description" || key == "title" {
			limit = schemaShortStrLen
		}
		return truncate(val, limit)
	default:
		return val
	}
}

package tools

import (
	"encoding/json"
	"sort"
)

// StrictSchema transforms a JSON schema into the shape strict function
// calling requires: object schemas forbid additional properties and list
// every property as required, with originally-optional properties made
// nullable instead. The transformation recurses through properties, items,
// and the anyOf/oneOf/allOf branches. Schemas that fail to parse are
// returned unchanged.
func StrictSchema(schema json.RawMessage) json.RawMessage {
	var node any
	if err := json.Unmarshal(schema, &node); err != nil {
		return schema
	}
	strict := strictNode(node, true)
	out, err := json.Marshal(strict)
	if err != nil {
		return schema
	}
	return out
}

func strictNode(node any, required bool) any {
	m, ok := node.(map[string]any)
	if !ok {
		return node
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	if props, ok := out["properties"].(map[string]any); ok {
		originallyRequired := map[string]bool{}
		if reqList, ok := out["required"].([]any); ok {
			for _, r := range reqList {
				if name, ok := r.(string); ok {
					originallyRequired[name] = true
				}
			}
		}

		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)

		newProps := make(map[string]any, len(props))
		allNames := make([]any, 0, len(props))
		for _, name := range names {
			newProps[name] = strictNode(props[name], originallyRequired[name])
			allNames = append(allNames, name)
		}
		out["properties"] = newProps
		out["required"] = allNames
		out["additionalProperties"] = false
	}

	if items, ok := out["items"]; ok {
		out["items"] = strictNode(items, true)
	}
	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if branches, ok := out[key].([]any); ok {
			newBranches := make([]any, len(branches))
			for i, b := range branches {
				newBranches[i] = strictNode(b, true)
			}
			out[key] = newBranches
		}
	}

	if !required {
		out["type"] = nullableType(out["type"])
	}
	return out
}

// nullableType extends a schema type with "null" unless already present.
func nullableType(t any) any {
	switch v := t.(type) {
	case string:
		if v == "null" {
			return v
		}
		return []any{v, "null"}
	case []any:
		for _, e := range v {
			if e == "null" {
				return v
			}
		}
		return append(append([]any(nil), v...), "null")
	default:
		return t
	}
}

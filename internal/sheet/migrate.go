package sheet

import (
	"encoding/json"
	"fmt"
)

// migration upgrades a decoded document in place from version v to v+1.
type migration func(doc map[string]any) error

// migrations is keyed by the version a step upgrades from.
var migrations = map[int]migration{
	1: migrateV1ToV2,
}

// migrate applies every step from version `from` up to CurrentSchemaVersion.
func migrate(doc map[string]any, from int) error {
	for v := from; v < CurrentSchemaVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return parseErrorf("schemaVersion", "no migration from version %d", v)
		}
		if err := step(doc); err != nil {
			return err
		}
		doc["schemaVersion"] = v + 1
	}
	return nil
}

// migrateV1ToV2 converts untagged values to tagged ones, moves list children
// out of the value array, declares every field as "any" and adds the
// tombstone list.
//
//	v1: {"id": ..., "label": "Skills", "value": [ {...}, {...} ], ...}
//	v2: {"id": ..., "label": "Skills", "type": "any", "value": {"kind": "list"}, "children": [ ... ], ...}
func migrateV1ToV2(doc map[string]any) error {
	if _, ok := doc["tombstones"]; !ok {
		doc["tombstones"] = []any{}
	}
	entities, ok := doc["entities"].([]any)
	if !ok {
		return parseErrorf("entities", "required array missing")
	}
	return migrateV1Entities(entities, "entities")
}

func migrateV1Entities(list []any, path string) error {
	for i, item := range list {
		p := fmt.Sprintf("%s[%d]", path, i)
		e, ok := item.(map[string]any)
		if !ok {
			return parseErrorf(p, "entity must be an object")
		}
		if _, ok := e["type"]; !ok {
			e["type"] = string(KindAny)
		}
		raw, ok := e["value"]
		if !ok {
			return parseErrorf(p+".value", "required field missing")
		}
		switch v := raw.(type) {
		case string:
			e["value"] = map[string]any{"kind": string(KindText), "text": v}
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return &ParseError{Path: p + ".value", Message: "bad number", Err: err}
			}
			e["value"] = map[string]any{"kind": string(KindNumber), "number": f}
		case bool:
			e["value"] = map[string]any{"kind": string(KindBool), "bool": v}
		case []any:
			if err := migrateV1Entities(v, p+".value"); err != nil {
				return err
			}
			e["value"] = map[string]any{"kind": string(KindList)}
			e["children"] = v
		default:
			return parseErrorf(p+".value", "unsupported version 1 value %v", raw)
		}
		if _, ok := e["children"]; !ok {
			e["children"] = []any{}
		}
	}
	return nil
}

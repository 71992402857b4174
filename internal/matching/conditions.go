package matching

import (
	"encoding/json"

	"github.com/virtserve/virtserve/pkg/virt"
)

// EvaluateConditions reports whether a condition list holds for a request.
// AND mode requires every condition; OR mode requires at least one. An empty
// list always matches (catch-all). Unknown modes default to AND.
func EvaluateConditions(conds []virt.Condition, mode virt.LogicMode, req *virt.RequestContext, protocol virt.Protocol) bool {
	if len(conds) == 0 {
		return true
	}

	if mode == virt.LogicOr {
		for _, c := range conds {
			if Evaluate(c.Operator, ExtractValue(c, req, protocol), c.Value) {
				return true
			}
		}
		return false
	}

	for _, c := range conds {
		if !Evaluate(c.Operator, ExtractValue(c, req, protocol), c.Value) {
			return false
		}
	}
	return true
}

// DecodeConditions parses a stored JSON condition list. Malformed JSON
// yields an empty list and false, letting callers fall back to catch-all
// semantics without failing the load.
func DecodeConditions(raw string) ([]virt.Condition, bool) {
	if raw == "" {
		return nil, true
	}
	var conds []virt.Condition
	if err := json.Unmarshal([]byte(raw), &conds); err != nil {
		return nil, false
	}
	return conds, true
}

// DecodeHeaders parses a stored JSON header map, degrading to an empty map
// on malformed input.
func DecodeHeaders(raw string) (map[string]string, bool) {
	if raw == "" {
		return nil, true
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil, false
	}
	return headers, true
}

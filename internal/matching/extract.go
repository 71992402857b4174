package matching

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/virtserve/virtserve/pkg/virt"
)

// ExtractValue pulls the actual value for a condition out of the request.
// A nil return means "no value": the body failed to parse, the expression
// was invalid, or the key simply is not there. Extraction never fails loudly;
// operators decide what absence means.
func ExtractValue(cond virt.Condition, req *virt.RequestContext, protocol virt.Protocol) *string {
	switch cond.Source {
	case virt.SourceBody:
		if len(req.Body) == 0 {
			return nil
		}
		if protocol == virt.ProtocolSOAP {
			return extractXPath(req.Body, cond.Field)
		}
		return extractJSONPath(req.Body, cond.Field)
	case virt.SourceHeader:
		if v, ok := req.Header(cond.Field); ok {
			return &v
		}
		return nil
	case virt.SourceQuery:
		if v, ok := req.QueryParam(cond.Field); ok {
			return &v
		}
		return nil
	case virt.SourcePath:
		name := strings.Trim(cond.Field, "{}")
		if v, ok := req.PathParam(name); ok {
			return &v
		}
		return nil
	case virt.SourceMetadata:
		// Metadata is not carried on HTTP requests; conditions against it
		// never see a value.
		return nil
	default:
		return nil
	}
}

// extractJSONPath evaluates a JSONPath expression against a JSON body.
// Scalar results are stringified; structured results are re-serialized as
// JSON so they can still be compared or schema-validated.
func extractJSONPath(body []byte, path string) *string {
	data, err := oj.Parse(body)
	if err != nil {
		return nil
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil
	}
	results := expr.Get(data)
	if len(results) == 0 {
		return nil
	}
	s := stringifyValue(results[0])
	return &s
}

// stringifyValue renders a parsed JSON value the way conditions expect to
// compare it: scalars verbatim, composites as compact JSON.
func stringifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return oj.JSON(v)
	}
}

// extractXPath evaluates a simplified XPath against an XML body with
// namespace-agnostic local-name matching: "/Envelope/Body/GetUser/id"
// matches regardless of any prefixes in the document or the expression.
// A trailing "@name" step selects an attribute. "//name" searches anywhere.
func extractXPath(body []byte, path string) *string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil
	}

	anywhere := strings.HasPrefix(path, "//")
	segs := splitXPathSteps(path)
	if len(segs) == 0 {
		return nil
	}

	var attr string
	last := segs[len(segs)-1]
	if strings.HasPrefix(last, "@") {
		attr = last[1:]
		segs = segs[:len(segs)-1]
		if len(segs) == 0 {
			return nil
		}
	}

	var elem *etree.Element
	if anywhere {
		elem = findAnywhere(&doc.Element, segs)
	} else {
		elem = descend(&doc.Element, segs)
	}
	if elem == nil {
		return nil
	}

	if attr != "" {
		for _, a := range elem.Attr {
			if strings.EqualFold(a.Key, attr) {
				v := a.Value
				return &v
			}
		}
		return nil
	}
	text := strings.TrimSpace(elem.Text())
	return &text
}

// splitXPathSteps splits an XPath into steps with namespace prefixes
// removed, so "soap:Envelope" and "Envelope" are the same step.
func splitXPathSteps(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	raw := strings.Split(trimmed, "/")
	steps := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		if idx := strings.Index(s, ":"); idx >= 0 && !strings.HasPrefix(s, "@") {
			s = s[idx+1:]
		}
		steps = append(steps, s)
	}
	return steps
}

// descend walks children by local name, one step per level, starting at the
// document element.
func descend(root *etree.Element, steps []string) *etree.Element {
	for _, child := range root.ChildElements() {
		if elem := descendFrom(child, steps); elem != nil {
			return elem
		}
	}
	return nil
}

func descendFrom(e *etree.Element, steps []string) *etree.Element {
	if !strings.EqualFold(e.Tag, steps[0]) {
		return nil
	}
	if len(steps) == 1 {
		return e
	}
	for _, child := range e.ChildElements() {
		if elem := descendFrom(child, steps[1:]); elem != nil {
			return elem
		}
	}
	return nil
}

// findAnywhere locates the first element in document order whose local name
// matches the first step, then descends through the remaining steps.
func findAnywhere(root *etree.Element, steps []string) *etree.Element {
	for _, child := range root.ChildElements() {
		if elem := descendFrom(child, steps); elem != nil {
			return elem
		}
		if elem := findAnywhere(child, steps); elem != nil {
			return elem
		}
	}
	return nil
}

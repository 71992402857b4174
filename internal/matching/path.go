// Package matching implements the pure request-matching primitives: path
// template matching, condition operators and per-source value extraction.
package matching

import "strings"

// MatchPath reports whether a request path matches an endpoint path
// template. Matching is case-insensitive. A template may contain {name}
// placeholders, each standing in for exactly one path segment; segment
// counts must line up exactly, so a placeholder never spans a "/".
func MatchPath(template, path string) bool {
	if strings.EqualFold(template, path) {
		return true
	}
	if !strings.Contains(template, "{") {
		return false
	}

	tplParts := splitSegments(template)
	reqParts := splitSegments(path)
	if len(tplParts) != len(reqParts) {
		return false
	}

	for i, part := range tplParts {
		if isPlaceholder(part) {
			if reqParts[i] == "" {
				return false
			}
			continue
		}
		if !strings.EqualFold(part, reqParts[i]) {
			return false
		}
	}
	return true
}

// ExtractParams returns placeholder name -> captured segment for a template
// and path that already matched. For a non-matching pair or a template with
// no placeholders it returns an empty map, never an error.
func ExtractParams(template, path string) map[string]string {
	params := make(map[string]string)
	if !strings.Contains(template, "{") {
		return params
	}

	tplParts := splitSegments(template)
	reqParts := splitSegments(path)
	if len(tplParts) != len(reqParts) {
		return params
	}

	for i, part := range tplParts {
		if isPlaceholder(part) {
			name := part[1 : len(part)-1]
			params[name] = reqParts[i]
		}
	}
	return params
}

func splitSegments(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func isPlaceholder(segment string) bool {
	return len(segment) > 2 && strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")
}

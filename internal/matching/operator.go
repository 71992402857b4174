package matching

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/virtserve/virtserve/pkg/virt"
)

// Evaluate applies one comparison operator to an actual/expected pair.
// A nil actual means the value was absent or could not be extracted. The
// function is pure: identical inputs always produce the same result, and
// malformed expected values (bad regex, bad schema, bad expression) evaluate
// to false rather than failing.
func Evaluate(op virt.Operator, actual *string, expected string) (result bool) {
	// User-supplied regex/schema/expression strings must not be able to
	// take down request handling for other rules.
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	switch op {
	case virt.OpEquals:
		return actual != nil && strings.EqualFold(*actual, expected)
	case virt.OpNotEquals:
		// An absent value is still "not equal".
		return actual == nil || !strings.EqualFold(*actual, expected)
	case virt.OpContains:
		return actual != nil && strings.Contains(strings.ToLower(*actual), strings.ToLower(expected))
	case virt.OpStartsWith:
		return actual != nil && strings.HasPrefix(strings.ToLower(*actual), strings.ToLower(expected))
	case virt.OpEndsWith:
		return actual != nil && strings.HasSuffix(strings.ToLower(*actual), strings.ToLower(expected))
	case virt.OpRegex:
		if actual == nil {
			return false
		}
		re, err := regexp.Compile(expected)
		if err != nil {
			return false
		}
		return re.MatchString(*actual)
	case virt.OpGreaterThan:
		a, b, ok := parseDecimalPair(actual, expected)
		return ok && a > b
	case virt.OpLessThan:
		a, b, ok := parseDecimalPair(actual, expected)
		return ok && a < b
	case virt.OpExists:
		return actual != nil
	case virt.OpNotExists:
		return actual == nil
	case virt.OpIsEmpty:
		return actual == nil || *actual == ""
	case virt.OpJSONSchema:
		return evaluateJSONSchema(actual, expected)
	case virt.OpExpression:
		return evaluateExpression(actual, expected)
	default:
		return false
	}
}

func parseDecimalPair(actual *string, expected string) (a, b float64, ok bool) {
	if actual == nil {
		return 0, 0, false
	}
	a, errA := strconv.ParseFloat(strings.TrimSpace(*actual), 64)
	b, errB := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return a, b, true
}

// evaluateJSONSchema validates the actual value, parsed as JSON, against the
// expected value interpreted as a JSON Schema document.
func evaluateJSONSchema(actual *string, schemaDoc string) bool {
	if actual == nil {
		return false
	}
	schema, err := jsonschema.CompileString("condition.schema.json", schemaDoc)
	if err != nil {
		return false
	}
	var doc any
	if err := json.Unmarshal([]byte(*actual), &doc); err != nil {
		return false
	}
	return schema.Validate(doc) == nil
}

// evaluateExpression runs the expected value as a boolean expression with
// the extracted value bound as "value" (nil when absent).
func evaluateExpression(actual *string, expression string) bool {
	env := map[string]any{"value": nil}
	if actual != nil {
		env["value"] = *actual
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	b, ok := out.(bool)
	return ok && b
}

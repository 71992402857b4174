package template

import (
	"math"
	mathrand "math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// evaluate resolves one template expression to its output string. Unknown
// expressions and malformed helper arguments render as empty strings.
func (e *Engine) evaluate(expr string, ctx *Context) string {
	expr = strings.TrimSpace(expr)

	switch expr {
	case "now":
		return time.Now().UTC().Format(time.RFC3339)
	case "uuid":
		return uuid.New().String()
	}

	if strings.HasPrefix(expr, "request.") {
		return e.evaluateRequest(expr[len("request."):], ctx)
	}

	parts := splitArgs(expr)
	if len(parts) < 2 {
		return ""
	}
	name, args := parts[0], parts[1:]

	switch name {
	case "now":
		return funcNow(unquote(args[0]))
	case "randomInt":
		if len(args) != 2 {
			return ""
		}
		return funcRandomInt(args[0], args[1])
	case "math":
		if len(args) != 3 {
			return ""
		}
		return funcMath(e.resolveArg(args[0], ctx), unquote(args[1]), e.resolveArg(args[2], ctx))
	case "eq", "ne", "gt", "lt":
		if len(args) != 2 {
			return ""
		}
		return funcCompare(name, e.resolveArg(args[0], ctx), e.resolveArg(args[1], ctx))
	case "jsonPath":
		if len(args) != 2 {
			return ""
		}
		return funcJSONPath(e.resolveArg(args[0], ctx), unquote(args[1]))
	case "toJson":
		return funcToJSON(e.resolveStructured(args[0], ctx))
	}

	return ""
}

// evaluateRequest resolves a dotted request-context reference, the part
// after the "request." prefix.
func (e *Engine) evaluateRequest(expr string, ctx *Context) string {
	if ctx == nil || ctx.req == nil {
		return ""
	}

	parts := strings.SplitN(expr, ".", 2)
	switch parts[0] {
	case "method":
		return ctx.req.Method
	case "path":
		return ctx.req.Path
	case "query":
		if len(parts) == 2 {
			val, _ := ctx.req.QueryParam(parts[1])
			return val
		}
		return ctx.req.RawQuery
	case "body":
		if len(parts) == 2 {
			return e.evaluateBodyField(parts[1], ctx)
		}
		return string(ctx.req.Body)
	case "header":
		if len(parts) == 2 {
			val, _ := ctx.req.Header(parts[1])
			return val
		}
	case "pathParam":
		if len(parts) == 2 {
			val, _ := ctx.req.PathParam(parts[1])
			return val
		}
	}
	return ""
}

// evaluateBodyField walks a dotted path through the JSON-parsed body.
// Arrays and non-object intermediates end the walk with an empty result.
func (e *Engine) evaluateBodyField(path string, ctx *Context) string {
	current, ok := ctx.parsedBody()
	if !ok {
		return ""
	}
	for _, part := range strings.Split(path, ".") {
		obj, isObj := current.(map[string]interface{})
		if !isObj {
			return ""
		}
		current, ok = obj[part]
		if !ok {
			return ""
		}
	}
	return formatValue(current)
}

// resolveArg resolves a helper argument: quoted strings are literals,
// request references and nested helpers are evaluated, anything else is
// taken verbatim.
func (e *Engine) resolveArg(arg string, ctx *Context) string {
	arg = strings.TrimSpace(arg)
	if isQuoted(arg) {
		return arg[1 : len(arg)-1]
	}
	if arg == "now" || arg == "uuid" || strings.HasPrefix(arg, "request.") {
		return e.evaluate(arg, ctx)
	}
	return arg
}

// resolveStructured resolves a reference to a structured value for JSON
// serialization. Plain references fall back to their string form.
func (e *Engine) resolveStructured(ref string, ctx *Context) interface{} {
	ref = strings.TrimSpace(ref)
	if ctx != nil && ctx.req != nil {
		switch ref {
		case "request.body":
			if val, ok := ctx.parsedBody(); ok {
				return val
			}
			return string(ctx.req.Body)
		case "request.query":
			return flattenMulti(ctx.req.Query)
		case "request.header", "request.headers":
			return flattenMulti(ctx.req.Headers)
		case "request.pathParam", "request.pathParams":
			return ctx.req.PathParams
		}
		if rest, ok := strings.CutPrefix(ref, "request.body."); ok {
			if val, found := e.bodySubValue(rest, ctx); found {
				return val
			}
			return ""
		}
	}
	return e.resolveArg(ref, ctx)
}

func (e *Engine) bodySubValue(path string, ctx *Context) (interface{}, bool) {
	current, ok := ctx.parsedBody()
	if !ok {
		return nil, false
	}
	for _, part := range strings.Split(path, ".") {
		obj, isObj := current.(map[string]interface{})
		if !isObj {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func funcNow(layout string) string {
	if layout == "" {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(layout)
}

// funcRandomInt renders a uniform random integer in [min, max].
func funcRandomInt(minArg, maxArg string) string {
	min, err1 := strconv.Atoi(minArg)
	max, err2 := strconv.Atoi(maxArg)
	if err1 != nil || err2 != nil || max < min {
		return ""
	}
	return strconv.Itoa(min + mathrand.IntN(max-min+1))
}

// funcMath applies a binary arithmetic operator to two decimals.
// Division and modulo by zero yield "0".
func funcMath(a, op, b string) string {
	x, err1 := strconv.ParseFloat(a, 64)
	y, err2 := strconv.ParseFloat(b, 64)
	if err1 != nil || err2 != nil {
		return ""
	}
	var result float64
	switch op {
	case "+":
		result = x + y
	case "-":
		result = x - y
	case "*":
		result = x * y
	case "/":
		if y == 0 {
			return "0"
		}
		result = x / y
	case "%":
		if y == 0 {
			return "0"
		}
		result = math.Mod(x, y)
	default:
		return ""
	}
	return strconv.FormatFloat(result, 'f', -1, 64)
}

// funcCompare renders "true" or "false". Both sides are compared
// numerically when they parse as decimals; eq and ne fall back to string
// equality, gt and lt render "false" on a parse failure.
func funcCompare(op, a, b string) string {
	x, err1 := strconv.ParseFloat(a, 64)
	y, err2 := strconv.ParseFloat(b, 64)
	numeric := err1 == nil && err2 == nil

	var result bool
	switch op {
	case "eq":
		if numeric {
			result = x == y
		} else {
			result = a == b
		}
	case "ne":
		if numeric {
			result = x != y
		} else {
			result = a != b
		}
	case "gt":
		result = numeric && x > y
	case "lt":
		result = numeric && x < y
	}
	return strconv.FormatBool(result)
}

// funcJSONPath extracts a value from a JSON document string, empty on any
// parse failure.
func funcJSONPath(doc, path string) (result string) {
	defer func() {
		if recover() != nil {
			result = ""
		}
	}()
	data, err := oj.ParseString(doc)
	if err != nil {
		return ""
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		return ""
	}
	matches := expr.Get(data)
	if len(matches) == 0 {
		return ""
	}
	return formatValue(matches[0])
}

func funcToJSON(val interface{}) string {
	if val == nil {
		return ""
	}
	return oj.JSON(val)
}

// formatValue renders a JSON-derived value as template output. Scalars
// render bare, composites as JSON.
func formatValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return oj.JSON(v)
	}
}

// flattenMulti reduces a multi-value map to first values for serialization.
func flattenMulti(m map[string][]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, vals := range m {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

// splitArgs splits an expression on spaces, keeping quoted strings intact.
func splitArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case inQuote:
			current.WriteByte(ch)
			if ch == quoteChar {
				inQuote = false
			}
		case ch == '"' || ch == '\'':
			inQuote = true
			quoteChar = ch
			current.WriteByte(ch)
		case ch == ' ' || ch == '\t':
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(ch)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

func isQuoted(s string) bool {
	return len(s) >= 2 &&
		((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\''))
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if isQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

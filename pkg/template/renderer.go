// Package template implements the response template language: {{expression}}
// substitution against the request context plus a small set of helpers.
// Unknown or malformed expressions render as empty strings; only invalid
// block syntax is a hard error.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

// Engine renders templates. It is stateless and safe for concurrent use.
type Engine struct{}

// New creates a template engine.
func New() *Engine {
	return &Engine{}
}

// rbraceMarker stands in for a literal '}' that immediately follows an
// expression close. Without it, "{"num":{{randomInt 1 100}}}" is ambiguous:
// a naive parser reads the last three braces as an unescaped-output close.
// The pre-scan substitutes the marker and Render restores it verbatim.
const rbraceMarker = "\x00}\x00"

// expressionRegex matches a single {{expression}} with optional whitespace.
var expressionRegex = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// blockOpenRegex matches an #if or #unless block opening tag.
var blockOpenRegex = regexp.MustCompile(`\{\{#(if|unless)([^}]*)\}\}`)

// Render evaluates a template against ctx. It returns an error only for
// invalid block syntax; every other failure degrades to empty output.
func (e *Engine) Render(tpl string, ctx *Context) (string, error) {
	if err := validateBlocks(tpl); err != nil {
		return "", err
	}
	out, err := e.renderBlocks(disambiguateBraces(tpl), ctx)
	if err != nil {
		return "", err
	}
	out = expressionRegex.ReplaceAllStringFunc(out, func(match string) string {
		inner := expressionRegex.FindStringSubmatch(match)
		if len(inner) < 2 {
			return ""
		}
		return e.evaluate(inner[1], ctx)
	})
	return strings.ReplaceAll(out, rbraceMarker, "}"), nil
}

// validateBlocks rejects conditional blocks with no condition before any
// rendering happens.
func validateBlocks(tpl string) error {
	for _, m := range blockOpenRegex.FindAllStringSubmatch(tpl, -1) {
		if strings.TrimSpace(m[2]) == "" {
			return fmt.Errorf("template: #%s block requires a condition", m[1])
		}
	}
	return nil
}

// disambiguateBraces pre-scans the template. Unescaped-output blocks
// ({{{expr}}}) are normalized to plain expressions, and any literal '}'
// run directly after an expression close is replaced with rbraceMarker so
// expression parsing cannot absorb it.
func disambiguateBraces(tpl string) string {
	var b strings.Builder
	b.Grow(len(tpl))
	for i := 0; i < len(tpl); {
		if !strings.HasPrefix(tpl[i:], "{{") {
			b.WriteByte(tpl[i])
			i++
			continue
		}
		unescaped := strings.HasPrefix(tpl[i:], "{{{")
		open, close := 2, "}}"
		if unescaped {
			open, close = 3, "}}}"
		}
		rel := strings.Index(tpl[i+open:], close)
		if rel < 0 {
			b.WriteString(tpl[i:])
			break
		}
		b.WriteString("{{")
		b.WriteString(tpl[i+open : i+open+rel])
		b.WriteString("}}")
		i += open + rel + len(close)
		if !unescaped {
			for i < len(tpl) && tpl[i] == '}' {
				b.WriteString(rbraceMarker)
				i++
			}
		}
	}
	return b.String()
}

// renderBlocks expands #if/#unless blocks, innermost branches first via
// recursion. Block tags never survive into expression substitution.
func (e *Engine) renderBlocks(tpl string, ctx *Context) (string, error) {
	var b strings.Builder
	rest := tpl
	for {
		loc := blockOpenRegex.FindStringSubmatchIndex(rest)
		if loc == nil {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:loc[0]])
		name := rest[loc[2]:loc[3]]
		condition := strings.TrimSpace(rest[loc[4]:loc[5]])

		body, after, ok := splitBlock(rest[loc[1]:], name)
		if !ok {
			return "", fmt.Errorf("template: unclosed #%s block", name)
		}
		thenPart, elsePart := splitElse(body, name)

		truthy := isTruthy(e.evaluate(condition, ctx))
		if name == "unless" {
			truthy = !truthy
		}
		branch := thenPart
		if !truthy {
			branch = elsePart
		}
		rendered, err := e.renderBlocks(branch, ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(rendered)
		rest = after
	}
}

// splitBlock finds the matching {{/name}} for an already-consumed opening
// tag, honoring nested blocks of the same name. Returns the block body and
// the text after the closing tag.
func splitBlock(s, name string) (body, after string, ok bool) {
	openTag := "{{#" + name
	closeTag := "{{/" + name + "}}"
	depth := 0
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], closeTag):
			if depth == 0 {
				return s[:i], s[i+len(closeTag):], true
			}
			depth--
			i += len(closeTag)
		case strings.HasPrefix(s[i:], openTag):
			depth++
			i += len(openTag)
		default:
			i++
		}
	}
	return "", "", false
}

// splitElse splits a block body at a top-level {{else}} tag, ignoring else
// tags that belong to nested blocks.
func splitElse(body, name string) (thenPart, elsePart string) {
	const elseTag = "{{else}}"
	depth := 0
	for i := 0; i < len(body); {
		switch {
		case strings.HasPrefix(body[i:], "{{#if") || strings.HasPrefix(body[i:], "{{#unless"):
			depth++
			i += 3
		case strings.HasPrefix(body[i:], "{{/if}}") || strings.HasPrefix(body[i:], "{{/unless}}"):
			depth--
			i += 3
		case depth == 0 && strings.HasPrefix(body[i:], elseTag):
			return body[:i], body[i+len(elseTag):]
		default:
			i++
		}
	}
	return body, ""
}

// isTruthy reports whether a rendered condition value selects the then
// branch. Empty, "false" and "0" are falsy.
func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "false", "0":
		return false
	default:
		return true
	}
}

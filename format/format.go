// Package format renders arbitrary structured data as readable key/value text.
//
// Tool servers answer with anything from plain prose to deeply nested JSON.
// Format normalizes all of it into indented key/value lines so replies stay
// readable inside a plain-text chat channel. The function is pure and never
// fails; on any internal error it degrades to the raw string representation
// of its input.
package format

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// nestedItemLimit caps rendered items of a sequence nested inside a mapping.
	nestedItemLimit = 5
	// topItemLimit caps rendered items of a top-level sequence.
	topItemLimit = 10
)

// jsonFragmentRe finds the first brace-delimited fragment in free text.
// Greedy with dot-matches-newline, so it spans from the first "{" to the
// last "}".
var jsonFragmentRe = regexp.MustCompile(`(?s)\{.*\}`)

// Format renders value as readable text.
//
// Strings that parse as JSON re-enter formatting on the parsed document.
// Strings containing an embedded brace-delimited JSON fragment have that
// fragment extracted and formatted; if extraction or parsing fails the
// original string is returned unchanged. Non-string values are rendered as
// mappings ("Key: value" lines, nested structures indented) or enumerated
// sequences with item caps and an elision note.
func Format(value any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("%v", value)
		}
	}()

	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return formatString(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return formatResult(gjson.ParseBytes(data))
	}
}

// formatString applies the string rules: full JSON parse first, then embedded
// fragment extraction, then passthrough.
func formatString(s string) string {
	if gjson.Valid(s) {
		return formatResult(gjson.Parse(s))
	}
	if frag := jsonFragmentRe.FindString(s); frag != "" && gjson.Valid(frag) {
		return formatResult(gjson.Parse(frag))
	}
	return s
}

// formatResult dispatches on the parsed JSON kind. Object keys keep document
// order; values marshaled from Go maps arrive alphabetically sorted, keeping
// output deterministic either way.
func formatResult(res gjson.Result) string {
	switch {
	case res.IsObject():
		// Wrapped tool-call answers carry their payload at
		// result.artifacts[0].parts[0].text.
		if inner := res.Get("result.artifacts.0.parts.0.text"); inner.Exists() {
			return formatString(inner.String())
		}
		return formatObject(res)
	case res.IsArray():
		return formatTopArray(res)
	case res.Type == gjson.String:
		return formatString(res.String())
	case res.Type == gjson.Null:
		return "null"
	default:
		return res.String()
	}
}

// formatObject renders one mapping. Nested mappings and sequences get a
// labeled header line and indented entries; only one structural level is
// expanded, deeper values render raw.
func formatObject(res gjson.Result) string {
	var lines []string

	res.ForEach(func(key, value gjson.Result) bool {
		label := humanizeKey(key.String())

		switch {
		case value.IsObject():
			lines = append(lines, label+":")
			value.ForEach(func(subKey, subValue gjson.Result) bool {
				lines = append(lines, fmt.Sprintf("  • %s: %s", humanizeKey(subKey.String()), scalarString(subValue)))
				return true
			})
		case value.IsArray():
			lines = append(lines, label+":")
			items := value.Array()
			for i, item := range items {
				if i >= nestedItemLimit {
					break
				}
				if item.IsObject() {
					lines = append(lines, fmt.Sprintf("  [%d]", i+1))
					item.ForEach(func(subKey, subValue gjson.Result) bool {
						lines = append(lines, fmt.Sprintf("    • %s: %s", humanizeKey(subKey.String()), scalarString(subValue)))
						return true
					})
				} else {
					lines = append(lines, fmt.Sprintf("  • %s", scalarString(item)))
				}
			}
			if len(items) > nestedItemLimit {
				lines = append(lines, fmt.Sprintf("  ... and %d more items", len(items)-nestedItemLimit))
			}
		default:
			lines = append(lines, fmt.Sprintf("%s: %s", label, scalarString(value)))
		}

		return true
	})

	return strings.Join(lines, "\n")
}

// formatTopArray enumerates a top-level sequence as "Item N" entries.
func formatTopArray(res gjson.Result) string {
	var lines []string

	items := res.Array()
	for i, item := range items {
		if i >= topItemLimit {
			break
		}
		if item.IsObject() {
			lines = append(lines, fmt.Sprintf("Item %d:", i+1))
			item.ForEach(func(key, value gjson.Result) bool {
				lines = append(lines, fmt.Sprintf("  • %s: %s", humanizeKey(key.String()), scalarString(value)))
				return true
			})
		} else {
			lines = append(lines, fmt.Sprintf("Item %d: %s", i+1, scalarString(item)))
		}
	}
	if len(items) > topItemLimit {
		lines = append(lines, fmt.Sprintf("... and %d more items", len(items)-topItemLimit))
	}

	return strings.Join(lines, "\n")
}

// scalarString renders a leaf value. JSON strings drop their quotes;
// anything structural keeps its raw JSON form.
func scalarString(res gjson.Result) string {
	if res.Type == gjson.String {
		return res.String()
	}
	if res.IsObject() || res.IsArray() {
		return res.Raw
	}
	if res.Type == gjson.Null {
		return "null"
	}
	return res.String()
}

// humanizeKey turns snake_case or kebab-case keys into Title Case words.
func humanizeKey(key string) string {
	key = strings.ReplaceAll(key, "_", " ")
	key = strings.ReplaceAll(key, "-", " ")

	words := strings.Fields(key)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// Package parsing recovers flat field/value records from free-text model replies.
package parsing

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jonathan/docmeta/internal/llm"
	"github.com/jonathan/docmeta/internal/types"
)

// ParseResponse extracts key/value pairs from a model reply. It tries, in
// order: the whole reply (minus any code fence) as a JSON object, the span
// from the first '{' to the last '}', and finally "key: value" lines.
// It never fails; an unparseable reply yields an empty map.
func ParseResponse(text string) map[string]string {
	text = strings.TrimSpace(text)
	if text == "" {
		return map[string]string{}
	}

	if obj, ok := decodeObject(llm.CleanJSONBlock(text)); ok {
		return obj
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if obj, ok := decodeObject(text[start : end+1]); ok {
			return obj
		}
	}

	return parseKeyValueLines(text)
}

// FillFields returns a value for every declared field: the parsed value when
// present and non-empty, otherwise types.NotFound. Undeclared keys are dropped.
func FillFields(parsed map[string]string, fields []types.TemplateField) map[string]string {
	var folded map[string]string
	out := make(map[string]string, len(fields))

	for _, f := range fields {
		if v, ok := parsed[f.Name]; ok && strings.TrimSpace(v) != "" {
			out[f.Name] = strings.TrimSpace(v)
			continue
		}

		// Models sometimes change the case or spacing of a key.
		if folded == nil {
			folded = foldKeys(parsed)
		}
		if v, ok := folded[foldKey(f.Name)]; ok && strings.TrimSpace(v) != "" {
			out[f.Name] = strings.TrimSpace(v)
			continue
		}

		out[f.Name] = types.NotFound
	}
	return out
}

func decodeObject(s string) (map[string]string, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, false
	}
	// Reject trailing garbage after the object.
	if dec.More() {
		return nil, false
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[strings.TrimSpace(k)] = stringify(v)
	}
	return out, true
}

// stringify flattens a decoded JSON value to the single string stored in a cell.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return types.NotFound
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return types.NotFound
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return ""
		}
		return strings.TrimSpace(buf.String())
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func parseKeyValueLines(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•> \t")
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = cleanToken(key)
		value = cleanToken(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func cleanToken(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ",")
	s = strings.Trim(s, `"'*`+"`")
	return strings.TrimSpace(s)
}

func foldKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[foldKey(k)] = v
	}
	return out
}

func foldKey(k string) string {
	return strings.Join(strings.Fields(strings.ToLower(k)), " ")
}

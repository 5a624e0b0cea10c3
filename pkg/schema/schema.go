// Package schema implements the data-type tag enumeration and the
// "soft casting" conversions between them (spec.md §3 "Data-type tag" and
// §4.6 "soft-cast each value to the declared port type").
//
// Adapted from the teacher's pkg/schema (StringSchema/NumberSchema/...): the
// teacher validated a value against a schema and rejected on mismatch; here
// a port never rejects, it coerces — a failed conversion falls back to a
// type-appropriate zero value plus a warning, per spec.md §4.6 and §8's
// boundary-behavior laws ("abc" -> 0.0 with a warning, not an exception).
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// DataType is the closed enumeration of port types from spec.md §3.
type DataType string

const (
	Flow         DataType = "flow"
	ProviderFlow DataType = "provider_flow"
	Any          DataType = "any"
	String       DataType = "string"
	Int          DataType = "int"
	Float        DataType = "float"
	Number       DataType = "number"
	Boolean      DataType = "boolean"
	List         DataType = "list"
	Dict         DataType = "dict"
	Image        DataType = "image"
	Bytes        DataType = "bytes"
	Color        DataType = "color"
)

// IsFlowClass reports whether a wire of this type carries control flow
// rather than a data value (spec.md §4.6.1 "wire whose to_port is not a
// flow-class port").
func (d DataType) IsFlowClass() bool {
	return d == Flow || d == ProviderFlow
}

// CastWarning records a non-fatal coercion fallback (spec.md §4.6: numeric
// targets "returning 0 with a warning rather than raising").
type CastWarning struct {
	Target DataType
	Input  any
	Reason string
}

func (w *CastWarning) String() string {
	return fmt.Sprintf("soft-cast to %s: %s (input=%v)", w.Target, w.Reason, w.Input)
}

// Cast performs the soft-cast described in spec.md §4.6. It never returns an
// error: on failure it returns the type's zero value and a non-nil warning
// the caller may log. Domain tags not recognized here (image, bytes, color,
// any family-specific tag) pass the value through unchanged, matching
// "unknown casts pass through".
func Cast(value any, target DataType) (any, *CastWarning) {
	switch target {
	case String:
		return castString(value)
	case Int:
		return castInt(value)
	case Float, Number:
		return castFloat(value)
	case Boolean:
		return castBoolean(value)
	case List:
		return castList(value)
	case Dict:
		return castDict(value)
	default:
		return value, nil
	}
}

func castString(value any) (any, *CastWarning) {
	if value == nil {
		return "", nil
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", value), nil
}

// stripNumericNoise removes thousands separators and currency symbols before
// numeric parsing, per spec.md §4.6 ("strip commas/currency symbols").
func stripNumericNoise(s string) string {
	r := strings.NewReplacer(",", "", "$", "", "€", "", "£", "", "%", "", " ", "")
	return strings.TrimSpace(r.Replace(s))
}

// extractDigits pulls the first embedded numeric run out of a string that
// failed to parse outright, per spec.md §4.6 ("extract embedded digits on
// failure").
func extractDigits(s string) (string, bool) {
	var b strings.Builder
	seenDigit := false
	seenDot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			seenDigit = true
		case r == '.' && !seenDot && seenDigit:
			b.WriteRune(r)
			seenDot = true
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		default:
			if seenDigit {
				// stop at the first non-numeric rune after digits began
				return b.String(), true
			}
		}
	}
	if seenDigit {
		return b.String(), true
	}
	return "", false
}

func castFloat(value any) (any, *CastWarning) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		cleaned := stripNumericNoise(v)
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return f, nil
		}
		if digits, ok := extractDigits(cleaned); ok {
			if f, err := strconv.ParseFloat(digits, 64); err == nil {
				return f, &CastWarning{Target: Float, Input: value, Reason: "extracted embedded digits"}
			}
		}
		return 0.0, &CastWarning{Target: Float, Input: value, Reason: "unparseable string, defaulted to 0"}
	case nil:
		return 0.0, nil
	default:
		return 0.0, &CastWarning{Target: Float, Input: value, Reason: "unsupported type"}
	}
}

func castInt(value any) (any, *CastWarning) {
	f, warn := castFloat(value)
	return int(f.(float64)), warn
}

func castBoolean(value any) (any, *CastWarning) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1", "on", "y":
			return true, nil
		case "false", "no", "0", "off", "n", "":
			return false, nil
		default:
			return false, &CastWarning{Target: Boolean, Input: value, Reason: "unrecognized boolean token, defaulted to false"}
		}
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case nil:
		return false, nil
	default:
		return false, &CastWarning{Target: Boolean, Input: value, Reason: "unsupported type"}
	}
}

func castList(value any) (any, *CastWarning) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var out []any
			if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
				return out, nil
			}
		}
		if trimmed == "" {
			return []any{}, nil
		}
		parts := strings.Split(trimmed, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out, &CastWarning{Target: List, Input: value, Reason: "split on commas, not valid JSON"}
	case nil:
		return []any{}, nil
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			out := make([]any, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				out[i] = rv.Index(i).Interface()
			}
			return out, nil
		}
		return []any{value}, &CastWarning{Target: List, Input: value, Reason: "wrapped scalar in single-element list"}
	}
}

func castDict(value any) (any, *CastWarning) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err == nil {
			return out, nil
		}
		return map[string]any{}, &CastWarning{Target: Dict, Input: value, Reason: "unparseable JSON object, defaulted to empty map"}
	case nil:
		return map[string]any{}, nil
	default:
		return map[string]any{}, &CastWarning{Target: Dict, Input: value, Reason: "unsupported type"}
	}
}

package robot

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Schema selects the structural check applied to a relay reply.
type Schema string

const (
	SchemaStandard Schema = "standard"
	SchemaState    Schema = "state"
)

// Relay result codes. not_on_charge_base is undocumented but returned.
const (
	ResultOK              = "ok"
	ResultInvalidJSON     = "invalid_json"
	ResultBadRequest      = "bad_request"
	ResultCommandNotFound = "command_not_found"
	ResultCommandRejected = "command_rejected"
	ResultKO              = "ko"
	ResultNotOnChargeBase = "not_on_charge_base"
)

var knownResults = []string{
	ResultOK,
	ResultInvalidJSON,
	ResultBadRequest,
	ResultCommandNotFound,
	ResultCommandRejected,
	ResultKO,
	ResultNotOnChargeBase,
}

// Mismatch is one field that did not match the schema.
type Mismatch struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

func (m Mismatch) String() string {
	return m.Field + ": " + m.Problem
}

type ValidationResult struct {
	Valid      bool       `json:"valid"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

func (r ValidationResult) String() string {
	if r.Valid {
		return "valid"
	}
	parts := make([]string, len(r.Mismatches))
	for i, m := range r.Mismatches {
		parts[i] = m.String()
	}
	return strings.Join(parts, "; ")
}

type fieldKind int

const (
	kindInt fieldKind = iota
	kindString
	kindBool
	kindObject
	kindNullableString
	kindStringMap
)

func (k fieldKind) String() string {
	switch k {
	case kindInt:
		return "integer"
	case kindString:
		return "string"
	case kindBool:
		return "boolean"
	case kindObject:
		return "object"
	case kindNullableString:
		return "string or null"
	case kindStringMap:
		return "object of strings"
	}
	return "unknown"
}

type field struct {
	name     string
	kind     fieldKind
	required bool
	enum     []string
	ranged   bool
	min, max float64
	children []field
}

func intRange(name string, lo, hi float64) field {
	return field{name: name, kind: kindInt, ranged: true, min: lo, max: hi}
}

func ints(names ...string) []field {
	out := make([]field, len(names))
	for i, n := range names {
		out[i] = field{name: n, kind: kindInt}
	}
	return out
}

func bools(names ...string) []field {
	out := make([]field, len(names))
	for i, n := range names {
		out[i] = field{name: n, kind: kindBool}
	}
	return out
}

var standardFields = []field{
	{name: "version", kind: kindInt},
	{name: "reqId", kind: kindString},
	{name: "result", kind: kindString, required: true, enum: knownResults},
	{name: "data", kind: kindObject},
}

var stateFields = append(append([]field{}, standardFields...),
	field{name: "state", kind: kindInt, required: true},
	field{name: "action", kind: kindInt},
	field{name: "error", kind: kindNullableString},
	field{name: "alert", kind: kindNullableString},
	field{name: "cleaning", kind: kindObject, children: ints(
		"category", "mode", "modifier", "navigationMode", "spotWidth", "spotHeight")},
	field{name: "details", kind: kindObject, children: append(
		bools("isCharging", "isDocked", "dockHasBeenSeen", "isScheduleEnabled"),
		intRange("charge", 0, 100))},
	field{name: "availableCommands", kind: kindObject, children: bools(
		"start", "stop", "pause", "resume", "goToBase")},
	field{name: "availableServices", kind: kindStringMap, required: true},
	field{name: "meta", kind: kindObject, children: []field{
		{name: "modelName", kind: kindString},
		{name: "firmware", kind: kindString},
	}},
)

var schemas = map[Schema][]field{
	SchemaStandard: standardFields,
	SchemaState:    stateFields,
}

// Validate checks payload against schema. Extra fields are always allowed.
// It never fails hard; the caller decides what to do with the mismatches.
func Validate(payload map[string]interface{}, schema Schema) ValidationResult {
	fields, ok := schemas[schema]
	if !ok {
		return ValidationResult{Mismatches: []Mismatch{{Field: "", Problem: fmt.Sprintf("unknown schema %q", schema)}}}
	}
	if payload == nil {
		return ValidationResult{Mismatches: []Mismatch{{Field: "", Problem: "response is not a JSON object"}}}
	}

	var mismatches []Mismatch
	checkObject("", payload, fields, &mismatches)
	return ValidationResult{Valid: len(mismatches) == 0, Mismatches: mismatches}
}

func checkObject(prefix string, obj map[string]interface{}, fields []field, out *[]Mismatch) {
	for _, f := range fields {
		path := f.name
		if prefix != "" {
			path = prefix + "." + f.name
		}

		value, present := obj[f.name]
		if !present {
			if f.required {
				*out = append(*out, Mismatch{Field: path, Problem: "required field missing"})
			}
			continue
		}
		checkValue(path, value, f, out)
	}
}

func checkValue(path string, value interface{}, f field, out *[]Mismatch) {
	wrongType := func() {
		*out = append(*out, Mismatch{Field: path, Problem: fmt.Sprintf("expected %s, got %s", f.kind, describe(value))})
	}

	switch f.kind {
	case kindInt:
		n, ok := value.(float64)
		if !ok || n != math.Trunc(n) {
			wrongType()
			return
		}
		if f.ranged && (n < f.min || n > f.max) {
			*out = append(*out, Mismatch{Field: path, Problem: fmt.Sprintf("value %v outside [%v, %v]", n, f.min, f.max)})
		}
	case kindString:
		s, ok := value.(string)
		if !ok {
			wrongType()
			return
		}
		if len(f.enum) > 0 && !contains(f.enum, s) {
			*out = append(*out, Mismatch{Field: path, Problem: fmt.Sprintf("unexpected value %q", s)})
		}
	case kindNullableString:
		if value == nil {
			return
		}
		if _, ok := value.(string); !ok {
			wrongType()
		}
	case kindBool:
		if _, ok := value.(bool); !ok {
			wrongType()
		}
	case kindObject:
		obj, ok := value.(map[string]interface{})
		if !ok {
			wrongType()
			return
		}
		checkObject(path, obj, f.children, out)
	case kindStringMap:
		obj, ok := value.(map[string]interface{})
		if !ok {
			wrongType()
			return
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := obj[k].(string); !ok {
				*out = append(*out, Mismatch{Field: path + "." + k, Problem: fmt.Sprintf("expected string, got %s", describe(obj[k]))})
			}
		}
	}
}

func describe(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package domain

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"

	"github.com/spf13/cast"
)

// Attribute keys understood by the runtime. Device adapters may report more.
const (
	AttrOn         = "on"
	AttrBrightness = "brightness"
	AttrHSColor    = "hs_color"
	AttrRGBColor   = "rgb_color"
	AttrColorTemp  = "color_temp"
	AttrEffect     = "effect"
)

// ColorKeys are the attributes an override mode (e.g. a running color cycle)
// is allowed to move away from the static expectation.
var ColorKeys = map[string]struct{}{
	AttrBrightness: {},
	AttrHSColor:    {},
	AttrRGBColor:   {},
	AttrColorTemp:  {},
	AttrEffect:     {},
}

// Attributes is a bag of device attributes (desired or reported).
type Attributes map[string]any

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Diff compares every key present in a against other and returns the keys whose
// values disagree. Keys listed in skip are ignored. A key missing from other counts
// as a disagreement.
func (a Attributes) Diff(other Attributes, skip map[string]struct{}) []string {
	var diff []string
	for _, k := range a.Keys() {
		if _, ignored := skip[k]; ignored {
			continue
		}
		ov, ok := other[k]
		if !ok || !ValuesEqual(a[k], ov) {
			diff = append(diff, k)
		}
	}
	return diff
}

// Matches reports whether other agrees with every key of a.
func (a Attributes) Matches(other Attributes) bool {
	return len(a.Diff(other, nil)) == 0
}

// ValuesEqual compares two attribute values loosely: numbers compare by value
// regardless of their Go type, "on"/"off" strings compare with booleans, and
// slices compare element-wise.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if ab, ok := asBool(a); ok {
		if bb, ok := asBool(b); ok {
			return ab == bb
		}
	}

	if af, err := cast.ToFloat64E(a); err == nil && isNumeric(a) {
		if bf, err := cast.ToFloat64E(b); err == nil && isNumeric(b) {
			return af == bf
		}
	}

	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if (av.Kind() == reflect.Slice || av.Kind() == reflect.Array) &&
		(bv.Kind() == reflect.Slice || bv.Kind() == reflect.Array) {
		if av.Len() != bv.Len() {
			return false
		}
		for i := 0; i < av.Len(); i++ {
			if !ValuesEqual(av.Index(i).Interface(), bv.Index(i).Interface()) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b) || cast.ToString(a) == cast.ToString(b)
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch t {
		case "on", "true":
			return true, true
		case "off", "false":
			return false, true
		}
	}
	return false, false
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	}
	return false
}

// EqualJSON reports whether two values encode to the same JSON document.
// It is used to compare persisted properties, where numbers may be json.Number
// on one side and native Go numbers on the other.
func EqualJSON(a, b any) bool {
	na, errA := normalizeJSON(a)
	nb, errB := normalizeJSON(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

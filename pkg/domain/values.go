package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// NormalizeValue coerces raw into the canonical Go representation for the
// field type: string, int64, float64, bool, []string, SymbolicID or
// []SymbolicID. It accepts the shapes produced by the JSON and MessagePack
// decoders ([]any, map[string]any, differently sized numbers) so dumps can be
// restored without per-codec logic. Set values are de-duplicated keeping the
// first occurrence.
func NormalizeValue(t FieldType, raw any) (any, error) {
	switch t {
	case FieldString:
		s, ok := raw.(string)
		if !ok {
			return nil, typeMismatch(t, raw)
		}
		return s, nil
	case FieldInt:
		return normalizeInt(raw)
	case FieldFloat:
		return normalizeFloat(raw)
	case FieldBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, typeMismatch(t, raw)
		}
		return b, nil
	case FieldList:
		return normalizeStrings(t, raw)
	case FieldSet:
		list, err := normalizeStrings(t, raw)
		if err != nil {
			return nil, err
		}
		return dedupe(list), nil
	case FieldLink:
		return normalizeSymbolic(raw)
	case FieldLinks:
		return normalizeSymbolicList(raw)
	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
}

func typeMismatch(t FieldType, raw any) error {
	return fmt.Errorf("value of type %T is not assignable to %s field", raw, t)
}

func normalizeInt(raw any) (any, error) {
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int field", n)
		}
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int field", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("float %v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("number %s is not an int64", n)
		}
		return i, nil
	default:
		return nil, typeMismatch(FieldInt, raw)
	}
}

func normalizeFloat(raw any) (any, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s is not a float: %w", n, err)
		}
		return f, nil
	default:
		return nil, typeMismatch(FieldFloat, raw)
	}
}

func normalizeStrings(t FieldType, raw any) ([]string, error) {
	switch list := raw.(type) {
	case []string:
		return slices.Clone(list), nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s element of type %T is not a string", t, item)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return []string{}, nil
	default:
		return nil, typeMismatch(t, raw)
	}
}

func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := list[:0]
	for _, s := range list {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func normalizeSymbolic(raw any) (SymbolicID, error) {
	switch v := raw.(type) {
	case SymbolicID:
		return v, nil
	case *SymbolicID:
		if v == nil {
			return SymbolicID{}, fmt.Errorf("nil symbolic id")
		}
		return *v, nil
	case string:
		return ParseSymbolicID(v)
	case map[string]any:
		kind, _ := v["kind"].(string)
		key, _ := v["key"].(string)
		if kind == "" {
			return SymbolicID{}, fmt.Errorf("symbolic id missing kind")
		}
		return SymbolicID{Kind: Kind(kind), Key: key}, nil
	default:
		return SymbolicID{}, typeMismatch(FieldLink, raw)
	}
}

func normalizeSymbolicList(raw any) ([]SymbolicID, error) {
	switch list := raw.(type) {
	case []SymbolicID:
		return slices.Clone(list), nil
	case []any:
		out := make([]SymbolicID, 0, len(list))
		for _, item := range list {
			sid, err := normalizeSymbolic(item)
			if err != nil {
				return nil, err
			}
			out = append(out, sid)
		}
		return out, nil
	case nil:
		return []SymbolicID{}, nil
	default:
		return nil, typeMismatch(FieldLinks, raw)
	}
}

// LinksOf returns the symbolic ids referenced by a normalized link value.
func LinksOf(v any) []SymbolicID {
	switch t := v.(type) {
	case SymbolicID:
		return []SymbolicID{t}
	case []SymbolicID:
		return t
	}
	return nil
}

// ValuesEqual compares two normalized values.
func ValuesEqual(a, b any) bool {
	switch av := a.(type) {
	case []string:
		bv, ok := b.([]string)
		return ok && slices.Equal(av, bv)
	case []SymbolicID:
		bv, ok := b.([]SymbolicID)
		return ok && slices.Equal(av, bv)
	default:
		return a == b
	}
}

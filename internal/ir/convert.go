package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/godbus/dbus/v5"
)

// SplitSignature splits a signature into its complete top-level types:
// "isa{sv}" -> ["i", "s", "a{sv}"]. The signature must first pass godbus's
// own validation.
func SplitSignature(sig string) ([]string, error) {
	if _, err := dbus.ParseSignature(sig); err != nil {
		return nil, err
	}
	var out []string
	for rest := sig; rest != ""; {
		n, err := completeType(rest)
		if err != nil {
			return nil, fmt.Errorf("signature %q: %w", sig, err)
		}
		out = append(out, rest[:n])
		rest = rest[n:]
	}
	return out, nil
}

// completeType returns the length of the single complete type at the start
// of sig.
func completeType(sig string) (int, error) {
	if sig == "" {
		return 0, fmt.Errorf("unexpected end")
	}
	switch sig[0] {
	case 'y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'v', 'h':
		return 1, nil
	case 'a':
		if len(sig) > 1 && sig[1] == '{' {
			k, err := completeType(sig[2:])
			if err != nil {
				return 0, err
			}
			v, err := completeType(sig[2+k:])
			if err != nil {
				return 0, err
			}
			end := 2 + k + v
			if end >= len(sig) || sig[end] != '}' {
				return 0, fmt.Errorf("unterminated dict entry")
			}
			return end + 1, nil
		}
		n, err := completeType(sig[1:])
		return n + 1, err
	case '(':
		i := 1
		for i < len(sig) && sig[i] != ')' {
			n, err := completeType(sig[i:])
			if err != nil {
				return 0, err
			}
			i += n
		}
		if i >= len(sig) || i == 1 {
			return 0, fmt.Errorf("bad struct")
		}
		return i + 1, nil
	}
	return 0, fmt.Errorf("unknown type code %q", sig[0])
}

// ToBody converts loosely typed values (decoded JSON, YAML or CUE) into a
// message body matching sig, one value per top-level type.
func ToBody(sig string, values []any) ([]any, error) {
	types, err := SplitSignature(sig)
	if err != nil {
		return nil, err
	}
	if len(types) != len(values) {
		return nil, fmt.Errorf("signature %q wants %d args, got %d", sig, len(types), len(values))
	}
	out := make([]any, len(values))
	for i, t := range types {
		v, err := ToDBus(t, values[i])
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// ToDBus converts v to the Go representation of the single complete type
// sig. Struct types are not supported.
func ToDBus(sig string, v any) (any, error) {
	if sig == "" {
		return nil, fmt.Errorf("empty signature")
	}
	switch sig[0] {
	case 'y':
		n, err := toInt(v, 0, math.MaxUint8)
		return byte(n), err
	case 'n':
		n, err := toInt(v, math.MinInt16, math.MaxInt16)
		return int16(n), err
	case 'q':
		n, err := toInt(v, 0, math.MaxUint16)
		return uint16(n), err
	case 'i':
		n, err := toInt(v, math.MinInt32, math.MaxInt32)
		return int32(n), err
	case 'u':
		n, err := toInt(v, 0, math.MaxUint32)
		return uint32(n), err
	case 'x':
		n, err := toInt(v, math.MinInt64, math.MaxInt64)
		return n, err
	case 't':
		return toUint64(v)
	case 'h':
		n, err := toInt(v, 0, math.MaxUint32)
		return dbus.UnixFDIndex(n), err
	case 'd':
		return toFloat(v)
	case 'b':
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", v)
		}
		return b, nil
	case 's':
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		return s, nil
	case 'o':
		s, ok := v.(string)
		if !ok || !dbus.ObjectPath(s).IsValid() {
			return nil, fmt.Errorf("want object path, got %v", v)
		}
		return dbus.ObjectPath(s), nil
	case 'g':
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want signature, got %T", v)
		}
		g, err := dbus.ParseSignature(s)
		if err != nil {
			return nil, err
		}
		return g, nil
	case 'v':
		return toVariant(v)
	case 'a':
		if len(sig) > 1 && sig[1] == '{' {
			return toDict(sig, v)
		}
		return toArray(sig, v)
	}
	return nil, fmt.Errorf("unsupported signature %q", sig)
}

// GoType returns the Go type godbus decodes sig into.
func GoType(sig string) (reflect.Type, error) {
	if sig == "" {
		return nil, fmt.Errorf("empty signature")
	}
	switch sig[0] {
	case 'y':
		return reflect.TypeFor[byte](), nil
	case 'b':
		return reflect.TypeFor[bool](), nil
	case 'n':
		return reflect.TypeFor[int16](), nil
	case 'q':
		return reflect.TypeFor[uint16](), nil
	case 'i':
		return reflect.TypeFor[int32](), nil
	case 'u':
		return reflect.TypeFor[uint32](), nil
	case 'x':
		return reflect.TypeFor[int64](), nil
	case 't':
		return reflect.TypeFor[uint64](), nil
	case 'd':
		return reflect.TypeFor[float64](), nil
	case 's':
		return reflect.TypeFor[string](), nil
	case 'o':
		return reflect.TypeFor[dbus.ObjectPath](), nil
	case 'g':
		return reflect.TypeFor[dbus.Signature](), nil
	case 'v':
		return reflect.TypeFor[dbus.Variant](), nil
	case 'h':
		return reflect.TypeFor[dbus.UnixFDIndex](), nil
	case 'a':
		if len(sig) > 1 && sig[1] == '{' {
			k, err := completeType(sig[2:])
			if err != nil {
				return nil, err
			}
			kt, err := GoType(sig[2 : 2+k])
			if err != nil {
				return nil, err
			}
			vt, err := GoType(sig[2+k : len(sig)-1])
			if err != nil {
				return nil, err
			}
			return reflect.MapOf(kt, vt), nil
		}
		et, err := GoType(sig[1:])
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(et), nil
	}
	return nil, fmt.Errorf("unsupported signature %q", sig)
}

func toArray(sig string, v any) (any, error) {
	elemSig := sig[1:]
	st, err := GoType(sig)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return reflect.MakeSlice(st, 0, 0).Interface(), nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("want list for %s, got %T", sig, v)
	}
	out := reflect.MakeSlice(st, len(items), len(items))
	for i, item := range items {
		ev, err := ToDBus(elemSig, item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", sig, i, err)
		}
		out.Index(i).Set(reflect.ValueOf(ev))
	}
	return out.Interface(), nil
}

func toDict(sig string, v any) (any, error) {
	mt, err := GoType(sig)
	if err != nil {
		return nil, err
	}
	k, _ := completeType(sig[2:])
	keySig, valSig := sig[2:2+k], sig[2+k:len(sig)-1]
	out := reflect.MakeMap(mt)
	if v == nil {
		return out.Interface(), nil
	}
	entries, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("want object for %s, got %T", sig, v)
	}
	for ks, item := range entries {
		var key any = ks
		if keySig != "s" {
			parsed, err := parseKey(ks)
			if err != nil {
				return nil, fmt.Errorf("%s key %q: %w", sig, ks, err)
			}
			if key, err = ToDBus(keySig, parsed); err != nil {
				return nil, fmt.Errorf("%s key %q: %w", sig, ks, err)
			}
		}
		val, err := ToDBus(valSig, item)
		if err != nil {
			return nil, fmt.Errorf("%s[%q]: %w", sig, ks, err)
		}
		out.SetMapIndex(reflect.ValueOf(key), reflect.ValueOf(val))
	}
	return out.Interface(), nil
}

// parseKey reads a non-string dict key back from its object-key form.
func parseKey(s string) (any, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return json.Number(s), nil
	}
	return s, nil
}

// toVariant accepts either {"sig": <signature>, "value": <value>} or a bare
// scalar whose type is inferred: bool -> b, string -> s, integer -> i (x
// when out of int32 range), other numbers -> d.
func toVariant(v any) (dbus.Variant, error) {
	if m, ok := v.(map[string]any); ok {
		sig, hasSig := m["sig"].(string)
		if value, hasValue := m["value"]; hasSig && hasValue && len(m) == 2 {
			parsed, err := dbus.ParseSignature(sig)
			if err != nil {
				return dbus.Variant{}, err
			}
			inner, err := ToDBus(sig, value)
			if err != nil {
				return dbus.Variant{}, fmt.Errorf("variant: %w", err)
			}
			return dbus.MakeVariantWithSignature(inner, parsed), nil
		}
		return dbus.Variant{}, fmt.Errorf("variant object needs exactly sig and value")
	}
	switch val := v.(type) {
	case bool, string:
		return dbus.MakeVariant(val), nil
	case dbus.Variant:
		return val, nil
	}
	if n, err := toInt(v, math.MinInt64, math.MaxInt64); err == nil {
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return dbus.MakeVariant(int32(n)), nil
		}
		return dbus.MakeVariant(n), nil
	}
	if f, err := toFloat(v); err == nil {
		return dbus.MakeVariant(f), nil
	}
	return dbus.Variant{}, fmt.Errorf("cannot infer variant type for %T", v)
}

// Infer converts a value with no declared type the way an untyped variant
// is inferred, and returns the variant's content. {"sig", "value"} objects
// give the type explicitly.
func Infer(v any) (any, error) {
	vv, err := toVariant(v)
	if err != nil {
		return nil, err
	}
	return vv.Value(), nil
}

func toInt(v any, lo, hi int64) (int64, error) {
	var n int64
	switch val := v.(type) {
	case int:
		n = int64(val)
	case int8:
		n = int64(val)
	case int16:
		n = int64(val)
	case int32:
		n = int64(val)
	case int64:
		n = val
	case uint8:
		n = int64(val)
	case uint16:
		n = int64(val)
	case uint32:
		n = int64(val)
	case uint64:
		if val > math.MaxInt64 {
			return 0, fmt.Errorf("%d out of range", val)
		}
		n = int64(val)
	case IRInt:
		n = int64(val)
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			return 0, fmt.Errorf("want integer, got %s", val)
		}
		n = i
	case float64:
		if val != math.Trunc(val) || val < math.MinInt64 || val >= math.MaxInt64 {
			return 0, fmt.Errorf("want integer, got %v", val)
		}
		n = int64(val)
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func toUint64(v any) (uint64, error) {
	switch val := v.(type) {
	case uint64:
		return val, nil
	case json.Number:
		return strconv.ParseUint(string(val), 10, 64)
	case string:
		return strconv.ParseUint(val, 10, 64)
	}
	n, err := toInt(v, 0, math.MaxInt64)
	return uint64(n), err
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case json.Number:
		return val.Float64()
	case string:
		return strconv.ParseFloat(val, 64)
	}
	n, err := toInt(v, math.MinInt64, math.MaxInt64)
	return float64(n), err
}

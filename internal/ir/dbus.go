package ir

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/godbus/dbus/v5"
)

// FromBody converts a message body into an IRArray, one element per
// top-level argument.
func FromBody(body []any) (IRArray, error) {
	out := make(IRArray, len(body))
	for i, v := range body {
		iv, err := FromDBus(v)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out[i] = iv
	}
	return out, nil
}

// FromDBus converts one bus value into an IRValue.
//
//   - integers become IRInt; uint64 above MaxInt64 becomes its decimal string
//   - doubles become their shortest round-trip decimal string
//   - object paths and signatures become strings
//   - variants become {"sig": ..., "value": ...}
//   - arrays and structs become IRArray, dicts become IRObject with keys
//     rendered as their decimal or string form
func FromDBus(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("nil bus value")
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case byte:
		return IRInt(val), nil
	case int16:
		return IRInt(val), nil
	case uint16:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case uint32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case int:
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return IRString(strconv.FormatUint(val, 10)), nil
		}
		return IRInt(val), nil
	case float64:
		return IRString(strconv.FormatFloat(val, 'g', -1, 64)), nil
	case dbus.ObjectPath:
		return IRString(val), nil
	case dbus.Signature:
		return IRString(val.String()), nil
	case dbus.UnixFDIndex:
		return IRInt(val), nil
	case dbus.Variant:
		inner, err := FromDBus(val.Value())
		if err != nil {
			return nil, fmt.Errorf("variant: %w", err)
		}
		return IRObject{"sig": IRString(val.Signature().String()), "value": inner}, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make(IRArray, rv.Len())
		for i := range rv.Len() {
			iv, err := FromDBus(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = iv
		}
		return out, nil
	case reflect.Map:
		out := make(IRObject, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, err := mapKey(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			iv, err := FromDBus(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", key, err)
			}
			out[key] = iv
		}
		return out, nil
	case reflect.Struct:
		out := make(IRArray, 0, rv.NumField())
		for i := range rv.NumField() {
			if !rv.Type().Field(i).IsExported() {
				continue
			}
			iv, err := FromDBus(rv.Field(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", rv.Type().Field(i).Name, err)
			}
			out = append(out, iv)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported bus value type %T", v)
}

func mapKey(k any) (string, error) {
	iv, err := FromDBus(k)
	if err != nil {
		return "", fmt.Errorf("map key: %w", err)
	}
	switch kv := iv.(type) {
	case IRString:
		return string(kv), nil
	case IRInt:
		return strconv.FormatInt(int64(kv), 10), nil
	case IRBool:
		return strconv.FormatBool(bool(kv)), nil
	}
	return "", fmt.Errorf("map key of type %T", k)
}

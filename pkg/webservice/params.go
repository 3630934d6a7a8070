package webservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"

	"github.com/ArionMiles/trackmanager/pkg/api"
)

// EncodeParameters flattens p into form values using the bracket notation
// PHP decodes into arrays: slices of scalars become "key[]" entries, nested
// maps and slices of maps become "key[sub]" and "key[i]". Structs are
// encoded like maps keyed by their json field names, unless they implement
// fmt.Stringer. Keys are visited in sorted order.
func EncodeParameters(p api.Parameters) url.Values {
	values := url.Values{}
	for _, key := range sortedKeys(p) {
		addParam(values, key, p[key])
	}
	return values
}

func sortedKeys(p api.Parameters) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func addParam(values url.Values, prefix string, v any) {
	if v == nil {
		values.Add(prefix, "")
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			values.Add(prefix, string(rv.Bytes()))
			return
		}
		for i := 0; i < rv.Len(); i++ {
			elem := rv.Index(i).Interface()
			if isComposite(elem) {
				addParam(values, fmt.Sprintf("%s[%d]", prefix, i), elem)
			} else {
				addParam(values, prefix+"[]", elem)
			}
		}
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		byKey := make(map[string]reflect.Value, rv.Len())
		for _, k := range rv.MapKeys() {
			ks := fmt.Sprint(k.Interface())
			keys = append(keys, ks)
			byKey[ks] = rv.MapIndex(k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			addParam(values, prefix+"["+k+"]", byKey[k].Interface())
		}
	case reflect.Struct:
		if _, ok := v.(fmt.Stringer); ok {
			values.Add(prefix, scalarString(v))
			return
		}
		fields, err := structFields(v)
		if err != nil {
			values.Add(prefix, scalarString(v))
			return
		}
		addParam(values, prefix, fields)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			values.Add(prefix, "")
			return
		}
		addParam(values, prefix, rv.Elem().Interface())
	default:
		values.Add(prefix, scalarString(v))
	}
}

func isComposite(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	case reflect.Struct:
		_, ok := v.(fmt.Stringer)
		return !ok
	case reflect.Pointer:
		rv := reflect.ValueOf(v)
		return !rv.IsNil() && isComposite(rv.Elem().Interface())
	default:
		return false
	}
}

// structFields returns v's fields as its JSON encoding names them, so tags
// and omitempty apply. Numbers stay exact as json.Number.
func structFields(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func scalarString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

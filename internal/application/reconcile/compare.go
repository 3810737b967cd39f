package reconcile

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// asList normalizes a multivalued value. nil is the empty list and a
// scalar is a list of one.
func asList(v any) []any {
	switch list := v.(type) {
	case nil:
		return nil
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// canonical renders a value so that equal values from different sources
// compare equal, for example int 5 and float64 5.
func canonical(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to compare value of type %T: %w", v, err)
	}
	return string(b), nil
}

func sameValue(a, b any) (bool, error) {
	ka, err := canonical(a)
	if err != nil {
		return false, err
	}
	kb, err := canonical(b)
	if err != nil {
		return false, err
	}
	return ka == kb, nil
}

// sameSet compares lists ignoring order and duplicates.
func sameSet(a, b []any) (bool, error) {
	sa, err := keys(a)
	if err != nil {
		return false, err
	}
	sb, err := keys(b)
	if err != nil {
		return false, err
	}
	if len(sa) != len(sb) {
		return false, nil
	}
	for k := range sa {
		if _, ok := sb[k]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func keys(list []any) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		k, err := canonical(v)
		if err != nil {
			return nil, err
		}
		set[k] = struct{}{}
	}
	return set, nil
}

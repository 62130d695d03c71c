package hook

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Args is the option bag handed to Listener.Create. Values come from YAML or
// JSON decoding, or from command-line flags, so scalars may arrive as
// strings.
type Args map[string]any

// LookupString returns the first key present with a non-empty value.
func (a Args) LookupString(keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := a[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case fmt.Stringer:
			s = x.String()
		default:
			s = fmt.Sprint(x)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}

// LookupInt returns the first key present as an integer. A present value that
// is not integral is an error.
func (a Args) LookupInt(keys ...string) (int, bool, error) {
	for _, k := range keys {
		v, ok := a[k]
		if !ok || v == nil {
			continue
		}
		n, err := toInt(v)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", k, err)
		}
		return n, true, nil
	}
	return 0, false, nil
}

// LookupBool returns the first key present as a bool.
func (a Args) LookupBool(keys ...string) (bool, bool, error) {
	for _, k := range keys {
		v, ok := a[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case bool:
			return x, true, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return false, true, fmt.Errorf("%s: invalid bool %q", k, x)
			}
			return b, true, nil
		default:
			n, err := toInt(x)
			if err != nil {
				return false, true, fmt.Errorf("%s: invalid bool %v", k, x)
			}
			return n != 0, true, nil
		}
	}
	return false, false, nil
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("not an integer: %v", x)
		}
		return int(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("not an integer: %s", x)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

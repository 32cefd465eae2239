package picam

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ParseParameterSet converts a name->value map, as decoded from YAML or JSON,
// into a ParameterSet.  Every entry is attempted; the error lists all of the
// entries which could not be converted.
//
// Integer parameters with an enumeration accept the display string
// ("Low", "Rising Edge") as well as the number.  Numbers may also arrive as
// strings, as they do from the environment.  Pulses are maps with delay and
// width keys.
func ParseParameterSet(settings map[string]interface{}) (ParameterSet, error) {
	ps := ParameterSet{}
	names := make([]string, 0, len(settings))
	for k := range settings {
		names = append(names, k)
	}
	sort.Strings(names)

	strs := []string{}
	for _, k := range names {
		v := settings[k]
		p, ok := ParameterByName(k)
		if !ok {
			strs = append(strs, fmt.Sprintf("%s: unknown parameter", k))
			continue
		}
		val, err := parseValue(p, v)
		if err != nil {
			strs = append(strs, fmt.Sprintf("%s: %s", k, err))
			continue
		}
		ps[p] = val
	}
	if len(strs) == 0 {
		return ps, nil
	}
	return ps, fmt.Errorf("%s", strings.Join(strs, "\n"))
}

func parseValue(p Parameter, v interface{}) (Value, error) {
	info := Parameters[p]
	switch info.Type {
	case TypeInteger, TypeLargeInteger:
		var i int64
		switch x := v.(type) {
		case int:
			i = int64(x)
		case int64:
			i = x
		case float64:
			if x != math.Trunc(x) {
				return Value{}, fmt.Errorf("value %v is not an integer", v)
			}
			i = int64(x)
		case bool:
			if x {
				i = 1
			}
		case string:
			if e, ok := enumValue(info.Enum, x); ok {
				i = int64(e)
				break
			}
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				if info.Enum != 0 {
					return Value{}, fmt.Errorf("value %q is not a known %s", x, p)
				}
				return Value{}, fmt.Errorf("value %q is not an integer", x)
			}
			i = n
		default:
			return Value{}, fmt.Errorf("value %v of type %T is not an integer", v, v)
		}
		if info.Type == TypeLargeInteger {
			return LargeInt(i), nil
		}
		return Int(int(i)), nil
	case TypeFloatingPoint:
		switch x := v.(type) {
		case float64:
			return Float(x), nil
		case int:
			return Float(float64(x)), nil
		case int64:
			return Float(float64(x)), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err == nil {
				return Float(f), nil
			}
		}
		return Value{}, fmt.Errorf("value %v of type %T is not a float", v, v)
	case TypePulse:
		m, err := stringKeyed(v)
		if err != nil {
			return Value{}, err
		}
		d, dok := toFloat(m["delay"])
		w, wok := toFloat(m["width"])
		if !dok || !wok {
			return Value{}, fmt.Errorf("pulse %v needs numeric delay and width", v)
		}
		return PulseOf(d, w), nil
	}
	return Value{}, ErrParameterHasInvalidValueType
}

// yaml.v2 decodes nested maps with interface keys
func stringKeyed(v interface{}) (map[string]interface{}, error) {
	switch m := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[strings.ToLower(k)] = val
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[strings.ToLower(fmt.Sprint(k))] = val
		}
		return out, nil
	case Pulse:
		return map[string]interface{}{"delay": m.Delay, "width": m.Width}, nil
	}
	return nil, fmt.Errorf("value %v of type %T is not a pulse", v, v)
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
